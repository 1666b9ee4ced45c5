package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/plataforma/vibevoice-launcher/fixtures"
	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"go.uber.org/zap"
)

type probeReport struct {
	Installed bool         `json:"installed"`
	Available bool         `json:"available"`
	Devices   []DeviceInfo `json:"devices"`
	Error     string       `json:"error,omitempty"`
}

// TorchBackend probes an accelerator through the Python interpreter that will host the server,
// so the answer reflects the exact torch build the server imports.
type TorchBackend struct {
	kind   Kind
	script []byte
	runner pyenv.ScriptRunner
	log    *zap.Logger

	once     sync.Once
	report   probeReport
	probeErr error
}

func NewCUDABackend(runner pyenv.ScriptRunner, log *zap.Logger) *TorchBackend {
	return newTorchBackend(KindCUDA, fixtures.ProbeCUDA, runner, log)
}

func NewDirectMLBackend(runner pyenv.ScriptRunner, log *zap.Logger) *TorchBackend {
	return newTorchBackend(KindDirectML, fixtures.ProbeDirectML, runner, log)
}

func NewMPSBackend(runner pyenv.ScriptRunner, log *zap.Logger) *TorchBackend {
	return newTorchBackend(KindMPS, fixtures.ProbeMPS, runner, log)
}

func newTorchBackend(kind Kind, script []byte, runner pyenv.ScriptRunner, log *zap.Logger) *TorchBackend {
	return &TorchBackend{
		kind:   kind,
		script: script,
		runner: runner,
		log:    log.With(zap.String("backend", string(kind))),
	}
}

func (t *TorchBackend) Kind() Kind { return t.kind }

func (t *TorchBackend) probe(ctx context.Context) probeReport {
	t.once.Do(func() {
		var report probeReport
		if err := t.runner.RunScript(ctx, t.script, &report); err != nil {
			t.probeErr = err
			t.log.Debug("probe failed", zap.Error(err))
			metrics.DeviceProbes.WithLabelValues(string(t.kind), "error").Inc()
			return
		}
		if report.Error != "" {
			t.probeErr = fmt.Errorf("%s probe: %s", t.kind, report.Error)
		}
		for i := range report.Devices {
			report.Devices[i].Backend = t.kind
			report.Devices[i].Index = i
		}
		t.report = report

		outcome := "available"
		switch {
		case !report.Installed:
			outcome = "not_installed"
		case report.Error != "":
			outcome = "error"
		case !report.Available || len(report.Devices) == 0:
			outcome = "unavailable"
		}
		t.log.Debug("probe finished", zap.String("outcome", outcome), zap.Int("devices", len(report.Devices)))
		metrics.DeviceProbes.WithLabelValues(string(t.kind), outcome).Inc()
	})
	return t.report
}

func (t *TorchBackend) IsInstalled(ctx context.Context) bool {
	return t.probe(ctx).Installed
}

func (t *TorchBackend) IsAvailable(ctx context.Context) bool {
	report := t.probe(ctx)
	return report.Available && len(report.Devices) > 0
}

func (t *TorchBackend) DeviceCount(ctx context.Context) int {
	return len(t.probe(ctx).Devices)
}

func (t *TorchBackend) GetDeviceInfo(ctx context.Context, index int) (DeviceInfo, error) {
	devices := t.probe(ctx).Devices
	if index < 0 || index >= len(devices) {
		return DeviceInfo{}, fmt.Errorf("%s device index out of range: %d (have %d)", t.kind, index, len(devices))
	}
	return devices[index], nil
}

// ProbeError returns why the probe could not complete, if it failed. Nil before the first probe.
func (t *TorchBackend) ProbeError() error {
	return t.probeErr
}
