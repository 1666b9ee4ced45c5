package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
		ok       bool
	}{
		{"cpu", KindCPU, true},
		{"CUDA", KindCUDA, true},
		{" directml ", KindDirectML, true},
		{"mps", KindMPS, true},
		{"auto", "", false},
		{"rocm", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		kind, ok := ParseKind(tt.input)
		assert.Equal(t, tt.expected, kind, tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
	}
}

func TestSelection(t *testing.T) {
	tests := []struct {
		device     DeviceInfo
		label      string
		identifier string
	}{
		{DeviceInfo{Backend: KindCPU}, "cpu", "cpu"},
		{DeviceInfo{Backend: KindCUDA, Index: 0}, "cuda", "cuda"},
		{DeviceInfo{Backend: KindCUDA, Index: 2}, "cuda:2", "cuda:2"},
		{DeviceInfo{Backend: KindDirectML, Index: 0}, "directml:0", "privateuseone:0"},
		{DeviceInfo{Backend: KindDirectML, Index: 1}, "directml:1", "privateuseone:1"},
		{DeviceInfo{Backend: KindMPS}, "mps", "mps"},
	}

	for _, tt := range tests {
		sel := newSelection(tt.device)
		assert.Equal(t, tt.label, sel.Label)
		assert.Equal(t, tt.identifier, sel.Identifier())
	}

	named := newSelection(DeviceInfo{Backend: KindDirectML, Index: 1, Name: "AMD Radeon RX 6600"})
	assert.Equal(t, "directml:1 (AMD Radeon RX 6600)", named.String())
}

func TestParseIndex(t *testing.T) {
	index, err := ParseIndex("")
	require.NoError(t, err)
	assert.Nil(t, index)

	index, err = ParseIndex("3")
	require.NoError(t, err)
	require.NotNil(t, index)
	assert.Equal(t, 3, *index)

	index, err = ParseIndex("-1")
	require.NoError(t, err)
	assert.Equal(t, -1, *index)

	_, err = ParseIndex("1.5")
	assert.Error(t, err)

	_, err = ParseIndex("gpu1")
	assert.Error(t, err)
}

func TestSelectIndex(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		index      *int
		preferLast bool
		expected   int
		ok         bool
	}{
		{"one device", 1, nil, true, 0, true},
		{"three devices prefer last", 3, nil, true, 2, true},
		{"three devices first", 3, nil, false, 0, true},
		{"valid explicit", 3, intPtr(1), true, 1, true},
		{"explicit overrides heuristic", 4, intPtr(0), true, 0, true},
		{"too large", 2, intPtr(2), true, 0, false},
		{"negative", 2, intPtr(-5), false, 0, false},
		{"no devices", 0, nil, true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, ok := SelectIndex(tt.count, tt.index, tt.preferLast)
			assert.Equal(t, tt.expected, selected)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSelectIndex_InvalidAlwaysZero(t *testing.T) {
	for count := 1; count <= 8; count++ {
		for _, index := range []int{-100, -1, count, count + 1, 1000} {
			selected, ok := SelectIndex(count, intPtr(index), true)
			assert.False(t, ok)
			assert.Equal(t, 0, selected)
		}
	}
}
