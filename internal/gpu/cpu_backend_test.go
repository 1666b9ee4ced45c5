package gpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCPUBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewCPUBackend(zap.NewNop())

	assert.Equal(t, KindCPU, backend.Kind())
	assert.True(t, backend.IsInstalled(ctx))
	assert.True(t, backend.IsAvailable(ctx))
	assert.Equal(t, 1, backend.DeviceCount(ctx))

	device, err := backend.GetDeviceInfo(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, KindCPU, device.Backend)
	assert.Equal(t, 0, device.Index)
	assert.NotEmpty(t, device.Name)
	assert.GreaterOrEqual(t, device.TotalMemory, int64(0))

	again, err := backend.GetDeviceInfo(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, device, again)

	_, err = backend.GetDeviceInfo(ctx, 1)
	assert.Error(t, err)
}

func TestResolverAddsCPUBackend(t *testing.T) {
	resolver := NewResolver(zap.NewNop())

	backend, ok := resolver.Backend(KindCPU)
	require.True(t, ok)
	assert.IsType(t, &CPUBackend{}, backend)

	sel := resolver.Resolve(context.Background(), Request{})
	assert.Equal(t, "cpu", sel.Label)
}
