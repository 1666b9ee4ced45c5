package gpu

import (
	"context"
	"strings"

	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"go.uber.org/zap"
)

// Request is the resolver input: a preference ("auto" or a backend name) and an optional index
// scoped to whichever backend is finally chosen.
type Request struct {
	Preference string
	Index      *int
}

// NewRequest builds a Request from raw configuration strings. A malformed index is logged and
// replaced with an out-of-range one so the resolver applies its own index-0 fallback.
func NewRequest(preference, index string, log *zap.Logger) Request {
	req := Request{Preference: preference}
	parsed, err := ParseIndex(index)
	if err != nil {
		log.Warn("ignoring malformed device index", zap.String("index", index), zap.Error(err))
		invalid := -1
		parsed = &invalid
	}
	req.Index = parsed
	return req
}

// Resolver picks one device from a set of backends. It never fails: every probe
// failure degrades to the next backend and finally to the CPU.
type Resolver struct {
	backends map[Kind]Backend
	log      *zap.Logger
}

// NewResolver registers backends by kind. A CPU backend is added when none is given.
func NewResolver(log *zap.Logger, backends ...Backend) *Resolver {
	r := &Resolver{
		backends: make(map[Kind]Backend, len(backends)+1),
		log:      log.Named("gpu"),
	}
	for _, b := range backends {
		r.backends[b.Kind()] = b
	}
	if _, ok := r.backends[KindCPU]; !ok {
		r.backends[KindCPU] = NewCPUBackend(r.log)
	}
	return r
}

// Backend returns the registered backend for kind.
func (r *Resolver) Backend(kind Kind) (Backend, bool) {
	b, ok := r.backends[kind]
	return b, ok
}

// Resolve selects the device for this process.
//
// "auto" tries CUDA, then DirectML, then the CPU, and stops at the first backend with a device.
// An explicit backend is configured directly without probing the others.
// Unknown preferences are treated as "cpu".
func (r *Resolver) Resolve(ctx context.Context, req Request) Selection {
	preference := strings.ToLower(strings.TrimSpace(req.Preference))

	var sel Selection
	if preference == "" || preference == "auto" {
		sel = r.auto(ctx, req.Index)
	} else if kind, ok := ParseKind(preference); !ok {
		r.log.Warn("unknown device preference, using cpu", zap.String("preference", req.Preference))
		sel = r.cpu(ctx)
	} else {
		sel = r.explicit(ctx, kind, req.Index)
	}

	metrics.DeviceSelected.WithLabelValues(string(sel.Device.Backend), sel.Label).Set(1)
	r.log.Info("device selected",
		zap.String("label", sel.Label),
		zap.String("identifier", sel.Identifier()),
		zap.String("name", sel.Device.Name),
	)
	return sel
}

func (r *Resolver) auto(ctx context.Context, index *int) Selection {
	if b, ok := r.backends[KindCUDA]; ok {
		available := b.IsAvailable(ctx)
		r.probed(ctx, b, available)
		if available {
			if sel, ok := r.pick(ctx, b, index, false); ok {
				return sel
			}
		}
	}

	if b, ok := r.backends[KindDirectML]; ok {
		available := b.DeviceCount(ctx) > 0
		r.probed(ctx, b, available)
		if available {
			if sel, ok := r.pick(ctx, b, index, true); ok {
				return sel
			}
		}
	}

	return r.cpu(ctx)
}

func (r *Resolver) explicit(ctx context.Context, kind Kind, index *int) Selection {
	if kind == KindCPU {
		return r.cpu(ctx)
	}

	b, ok := r.backends[kind]
	if !ok {
		r.log.Warn("requested backend is not installed, using cpu", zap.String("backend", string(kind)))
		return r.cpu(ctx)
	}
	r.probed(ctx, b, b.DeviceCount(ctx) > 0)
	if !b.IsInstalled(ctx) {
		r.log.Warn("requested backend is not installed, using cpu", zap.String("backend", string(kind)))
		return r.cpu(ctx)
	}
	if b.DeviceCount(ctx) == 0 {
		r.log.Warn("requested backend has no devices, using cpu", zap.String("backend", string(kind)))
		return r.cpu(ctx)
	}
	if sel, ok := r.pick(ctx, b, index, kind == KindDirectML); ok {
		return sel
	}
	return r.cpu(ctx)
}

// probed reports the outcome of probing b, one line per backend.
func (r *Resolver) probed(ctx context.Context, b Backend, available bool) {
	fields := []zap.Field{
		zap.String("backend", string(b.Kind())),
		zap.Bool("installed", b.IsInstalled(ctx)),
		zap.Int("devices", b.DeviceCount(ctx)),
	}
	if available {
		r.log.Info("backend available", fields...)
		return
	}
	r.log.Info("backend not available", fields...)
}

func (r *Resolver) pick(ctx context.Context, b Backend, index *int, preferLast bool) (Selection, bool) {
	count := b.DeviceCount(ctx)
	selected, ok := SelectIndex(count, index, preferLast)
	if !ok {
		r.log.Warn("device index out of range, using 0",
			zap.String("backend", string(b.Kind())),
			zap.Int("index", *index),
			zap.Int("devices", count),
		)
	}

	device, err := b.GetDeviceInfo(ctx, selected)
	if err != nil {
		r.log.Warn("could not describe device", zap.String("backend", string(b.Kind())), zap.Error(err))
		return Selection{}, false
	}
	return newSelection(device), true
}

func (r *Resolver) cpu(ctx context.Context) Selection {
	device, err := r.backends[KindCPU].GetDeviceInfo(ctx, 0)
	if err != nil {
		device = DeviceInfo{Backend: KindCPU, Name: "CPU"}
	}
	return newSelection(device)
}

// BackendReport is the probe outcome of one backend, for diagnostics.
type BackendReport struct {
	Kind      Kind
	Installed bool
	Available bool
	Devices   []DeviceInfo
	Err       error
}

// Enumerate probes every registered backend in priority order.
func (r *Resolver) Enumerate(ctx context.Context) []BackendReport {
	var reports []BackendReport
	for _, kind := range Kinds {
		b, ok := r.backends[kind]
		if !ok {
			continue
		}
		report := BackendReport{
			Kind:      kind,
			Installed: b.IsInstalled(ctx),
			Available: b.IsAvailable(ctx),
		}
		for i := 0; i < b.DeviceCount(ctx); i++ {
			device, err := b.GetDeviceInfo(ctx, i)
			if err != nil {
				report.Err = err
				break
			}
			report.Devices = append(report.Devices, device)
		}
		if p, ok := b.(interface{ ProbeError() error }); ok && report.Err == nil {
			report.Err = p.ProbeError()
		}
		reports = append(reports, report)
	}
	return reports
}
