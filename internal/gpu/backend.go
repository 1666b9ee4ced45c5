package gpu

import (
	"context"
	"strings"
)

// Kind names a compute backend family.
type Kind string

const (
	KindCPU      Kind = "cpu"
	KindCUDA     Kind = "cuda"
	KindDirectML Kind = "directml"
	KindMPS      Kind = "mps"
)

// Kinds lists every backend in auto-resolution priority order, CPU last.
var Kinds = []Kind{KindCUDA, KindDirectML, KindMPS, KindCPU}

// ParseKind maps a preference string onto a backend kind. It is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCPU, KindCUDA, KindDirectML, KindMPS:
		return k, true
	}
	return "", false
}

// DeviceInfo describes a concrete compute target. It is produced once by probing and never mutated.
type DeviceInfo struct {
	Backend     Kind   `json:"backend"`
	Index       int    `json:"index"`
	Name        string `json:"name"`
	TotalMemory int64  `json:"total_memory,omitempty"` // in bytes, 0 when unknown
}

// Backend defines the interface the resolver uses to probe a compute family.
// Implementations exist for the CPU and for each torch accelerator (CUDA, DirectML, MPS).
//
// Implementation notes:
// - Probing may be expensive (it can start a Python interpreter), so backends cache
//   the first probe and answer every later call from the cache
// - A failed probe is not an error: the backend simply reports itself unavailable
// - Backends must be safe for concurrent use
type Backend interface {
	// Kind identifies the backend family.
	Kind() Kind

	// IsInstalled reports whether the runtime library for this backend can be loaded.
	// A backend can be installed yet expose no devices.
	IsInstalled(ctx context.Context) bool

	// IsAvailable reports whether the backend can run work right now.
	// Used by the resolver to decide whether auto-resolution stops at this backend.
	IsAvailable(ctx context.Context) bool

	// DeviceCount returns the number of devices the backend enumerates.
	DeviceCount(ctx context.Context) int

	// GetDeviceInfo returns the descriptor for one device.
	// Returns an error when index is outside [0, DeviceCount).
	GetDeviceInfo(ctx context.Context, index int) (DeviceInfo, error)
}
