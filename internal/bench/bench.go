// Package bench times a matrix workload on each compute device and ranks the devices.
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/plataforma/vibevoice-launcher/fixtures"
	"github.com/plataforma/vibevoice-launcher/internal/gpu"
	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Target is one device to benchmark.
type Target struct {
	Device gpu.DeviceInfo
	Label  string
}

// TargetFor labels a device the same way the resolver does.
func TargetFor(device gpu.DeviceInfo) Target {
	label := string(device.Backend)
	switch device.Backend {
	case gpu.KindCUDA, gpu.KindDirectML:
		label = fmt.Sprintf("%s:%d", device.Backend, device.Index)
	}
	return Target{Device: device, Label: label}
}

// Workload times size×size matrix products on a target. It returns one sample per iteration.
type Workload interface {
	Run(ctx context.Context, target Target, size, iterations int) ([]time.Duration, error)
}

// CPUWorkload multiplies a random matrix by its transpose with gonum, in process.
type CPUWorkload struct {
	rnd *rand.Rand
}

func NewCPUWorkload(seed int64) *CPUWorkload {
	return &CPUWorkload{rnd: rand.New(rand.NewSource(seed))}
}

func (w *CPUWorkload) randomDense(n int) *mat.Dense {
	data := make([]float64, n*n)
	for i := range data {
		data[i] = w.rnd.NormFloat64()
	}
	return mat.NewDense(n, n, data)
}

func (w *CPUWorkload) Run(ctx context.Context, _ Target, size, iterations int) ([]time.Duration, error) {
	if size <= 0 || iterations <= 0 {
		return nil, fmt.Errorf("invalid benchmark shape: size=%d iterations=%d", size, iterations)
	}

	warm := w.randomDense(max(size/2, 1))
	var res mat.Dense
	res.Mul(warm, warm.T())

	samples := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		start := time.Now()
		x := w.randomDense(size)
		var y mat.Dense
		y.Mul(x, x.T())
		samples = append(samples, time.Since(start))
	}
	return samples, nil
}

// TorchWorkload runs the same product through torch on the target device.
type TorchWorkload struct {
	Runner pyenv.ScriptRunner
}

func (w TorchWorkload) Run(ctx context.Context, target Target, size, iterations int) ([]time.Duration, error) {
	var report struct {
		Samples []float64 `json:"samples"`
		Error   string    `json:"error,omitempty"`
	}
	err := w.Runner.RunScript(ctx, fixtures.Benchmark, &report,
		string(target.Device.Backend),
		strconv.Itoa(target.Device.Index),
		strconv.Itoa(size),
		strconv.Itoa(iterations),
	)
	if err != nil {
		return nil, err
	}
	if report.Error != "" {
		return nil, fmt.Errorf("%s: %s", target.Label, report.Error)
	}
	samples := make([]time.Duration, 0, len(report.Samples))
	for _, s := range report.Samples {
		samples = append(samples, time.Duration(s*float64(time.Second)))
	}
	return samples, nil
}

// Options shapes a benchmark run.
type Options struct {
	Size          int
	CPUIterations int
	GPUIterations int
}

// DefaultOptions matches a 2000×2000 product, 5 CPU and 10 accelerator iterations.
var DefaultOptions = Options{Size: 2000, CPUIterations: 5, GPUIterations: 10}

// Result holds the timings of one target.
type Result struct {
	Target  Target
	Samples []time.Duration
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
	Err     error
}

func summarize(target Target, samples []time.Duration, err error) Result {
	r := Result{Target: target, Samples: samples, Err: err}
	if err != nil || len(samples) == 0 {
		if r.Err == nil {
			r.Err = fmt.Errorf("%s: no samples", target.Label)
		}
		return r
	}
	r.Min, r.Max = samples[0], samples[0]
	var total time.Duration
	for _, s := range samples {
		total += s
		r.Min = min(r.Min, s)
		r.Max = max(r.Max, s)
		metrics.BenchmarkIterationSeconds.WithLabelValues(target.Label).Observe(s.Seconds())
	}
	r.Mean = total / time.Duration(len(samples))
	return r
}

// Run benchmarks every target in order. CPU targets use cpu, the rest use accelerated.
// A failing target is recorded in its Result and does not stop the run.
func Run(ctx context.Context, targets []Target, cpu, accelerated Workload, opts Options, log *zap.Logger) []Result {
	log = log.Named("bench")
	results := make([]Result, 0, len(targets))
	for _, target := range targets {
		workload, iterations := accelerated, opts.GPUIterations
		if target.Device.Backend == gpu.KindCPU {
			workload, iterations = cpu, opts.CPUIterations
		}

		log.Info("benchmarking", zap.String("device", target.Label), zap.String("name", target.Device.Name), zap.Int("iterations", iterations))
		samples, err := workload.Run(ctx, target, opts.Size, iterations)
		result := summarize(target, samples, err)
		if result.Err != nil {
			log.Warn("benchmark failed", zap.String("device", target.Label), zap.Error(result.Err))
		} else {
			log.Info("benchmark finished", zap.String("device", target.Label), zap.Duration("mean", result.Mean))
		}
		results = append(results, result)
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

// Ranked is a successful result placed in the ranking.
type Ranked struct {
	Result
	Rank int
	// Speedup is the fastest mean divided by this mean, so the winner is 1.0.
	Speedup float64
}

// Rank orders successful results fastest first.
func Rank(results []Result) []Ranked {
	var ranked []Ranked
	for _, r := range results {
		if r.Err == nil && r.Mean > 0 {
			ranked = append(ranked, Ranked{Result: r})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Mean < ranked[j].Mean })
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Speedup = float64(ranked[0].Mean) / float64(ranked[i].Mean)
	}
	return ranked
}

// Recommend returns the environment that pins the launcher to target.
func Recommend(target Target) map[string]string {
	env := map[string]string{"VIBEVOICE_DEVICE": string(target.Device.Backend)}
	switch target.Device.Backend {
	case gpu.KindDirectML:
		env["DIRECTML_DEVICE"] = strconv.Itoa(target.Device.Index)
	case gpu.KindCUDA:
		if target.Device.Index > 0 {
			env["DIRECTML_DEVICE"] = strconv.Itoa(target.Device.Index)
		}
	}
	return env
}
