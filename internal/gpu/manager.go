package gpu

import (
	"context"

	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"go.uber.org/zap"
)

// Manager holds the one device selection made for this process.
type Manager struct {
	selection Selection
}

// NewManager resolves the device once. The selection never changes afterwards.
func NewManager(ctx context.Context, resolver *Resolver, req Request, log *zap.Logger) *Manager {
	log.Debug("resolving device", zap.String("preference", req.Preference))
	return &Manager{selection: resolver.Resolve(ctx, req)}
}

// Selection returns the resolved device.
func (m *Manager) Selection() Selection {
	return m.selection
}

// GetDeviceInfo returns the descriptor of the resolved device
func (m *Manager) GetDeviceInfo() DeviceInfo {
	return m.selection.Device
}

// IsGPUAvailable returns true if an accelerated backend was selected
func (m *Manager) IsGPUAvailable() bool {
	return m.selection.IsAccelerated()
}

// GetBackendType returns the kind of the resolved backend
func (m *Manager) GetBackendType() string {
	return string(m.selection.Device.Backend)
}

// DefaultBackends returns the accelerator backends probed through runner.
func DefaultBackends(runner pyenv.ScriptRunner, log *zap.Logger) []Backend {
	log = log.Named("gpu")
	return []Backend{
		NewCUDABackend(runner, log),
		NewDirectMLBackend(runner, log),
		NewMPSBackend(runner, log),
		NewCPUBackend(log),
	}
}
