package gpu

import (
	"fmt"
	"strconv"
	"strings"
)

// Selection is the single device chosen for the process lifetime.
type Selection struct {
	Device DeviceInfo `json:"device"`
	// Label is the canonical human-readable form: cuda, cuda:1, directml:1, mps, cpu.
	Label string `json:"label"`
}

func newSelection(device DeviceInfo) Selection {
	s := Selection{Device: device}
	switch device.Backend {
	case KindCUDA:
		s.Label = "cuda"
		if device.Index > 0 {
			s.Label = fmt.Sprintf("cuda:%d", device.Index)
		}
	case KindDirectML:
		s.Label = fmt.Sprintf("directml:%d", device.Index)
	default:
		s.Label = string(device.Backend)
	}
	return s
}

// Identifier is the torch device string handed to the server as MODEL_DEVICE.
// DirectML devices surface in torch as the privateuseone dispatch key.
func (s Selection) Identifier() string {
	switch s.Device.Backend {
	case KindDirectML:
		return fmt.Sprintf("privateuseone:%d", s.Device.Index)
	default:
		return s.Label
	}
}

// IsAccelerated is false only for the CPU fallback.
func (s Selection) IsAccelerated() bool {
	return s.Device.Backend != KindCPU
}

func (s Selection) String() string {
	if s.Device.Name == "" {
		return s.Label
	}
	return fmt.Sprintf("%s (%s)", s.Label, s.Device.Name)
}

// ParseIndex parses an explicit device index. An empty string means no index was given.
func ParseIndex(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	index, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid device index %q: %w", s, err)
	}
	return &index, nil
}

// SelectIndex picks a device within a backend of count devices.
//
// A valid explicit index wins. An invalid one yields 0 and ok=false so the caller can warn.
// Without an explicit index, preferLast selects count-1 when there is more than one device,
// on the assumption that integrated adapters enumerate first. That ordering is not guaranteed.
func SelectIndex(count int, index *int, preferLast bool) (selected int, ok bool) {
	if index != nil {
		if *index >= 0 && *index < count {
			return *index, true
		}
		return 0, false
	}
	if preferLast && count > 1 {
		return count - 1, true
	}
	return 0, true
}
