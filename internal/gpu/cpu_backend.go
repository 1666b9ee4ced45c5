package gpu

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

// CPUBackend is the software fallback. It is always available and exposes exactly one device.
type CPUBackend struct {
	log *zap.Logger

	once   sync.Once
	device DeviceInfo
}

func NewCPUBackend(log *zap.Logger) *CPUBackend {
	return &CPUBackend{log: log}
}

func (c *CPUBackend) Kind() Kind { return KindCPU }

func (c *CPUBackend) IsInstalled(context.Context) bool { return true }

func (c *CPUBackend) IsAvailable(context.Context) bool { return true }

func (c *CPUBackend) DeviceCount(context.Context) int { return 1 }

// GetDeviceInfo describes the host processor. Host details are best effort.
func (c *CPUBackend) GetDeviceInfo(ctx context.Context, index int) (DeviceInfo, error) {
	if index != 0 {
		return DeviceInfo{}, fmt.Errorf("cpu device index out of range: %d", index)
	}
	c.once.Do(func() {
		c.device = c.describe(ctx)
		metrics.DeviceProbes.WithLabelValues(string(KindCPU), "available").Inc()
	})
	return c.device, nil
}

func (c *CPUBackend) describe(ctx context.Context) DeviceInfo {
	device := DeviceInfo{
		Backend: KindCPU,
		Index:   0,
		Name:    fmt.Sprintf("CPU (%s, %d threads)", runtime.GOARCH, runtime.NumCPU()),
	}

	if infos, err := cpu.InfoWithContext(ctx); err != nil {
		c.log.Debug("could not read cpu model", zap.Error(err))
	} else if len(infos) > 0 && strings.TrimSpace(infos[0].ModelName) != "" {
		device.Name = fmt.Sprintf("%s (%d threads)", strings.TrimSpace(infos[0].ModelName), runtime.NumCPU())
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.log.Debug("could not read system memory", zap.Error(err))
	} else {
		device.TotalMemory = int64(vm.Total)
	}
	return device
}
