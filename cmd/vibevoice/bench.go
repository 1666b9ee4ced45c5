package main

import (
	"fmt"
	"io"

	"github.com/plataforma/vibevoice-launcher/internal/bench"
	"github.com/plataforma/vibevoice-launcher/internal/compat"
	"github.com/plataforma/vibevoice-launcher/internal/gpu"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark the CPU and every accelerated device and recommend the fastest",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Value: bench.DefaultOptions.Size, Usage: "Matrix dimension"},
			&cli.IntFlag{Name: "cpu-iterations", Value: bench.DefaultOptions.CPUIterations},
			&cli.IntFlag{Name: "gpu-iterations", Value: bench.DefaultOptions.GPUIterations},
			&cli.BoolFlag{Name: "native-cpu", Usage: "Time the CPU in process instead of through torch"},
			&cli.StringFlag{Name: "pushgateway", Usage: "Push the timings to this Pushgateway"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if c.IsSet("pushgateway") {
				cfg.Metrics.PushGateway = c.String("pushgateway")
			}
			log := appLogger(c)
			printBanner(c, "Device benchmark")

			resolver, interp := newResolver(cfg, log)
			var targets []bench.Target
			for _, r := range resolver.Enumerate(c.Context) {
				if !r.Available {
					continue
				}
				for _, d := range r.Devices {
					targets = append(targets, bench.TargetFor(d))
				}
			}

			var cpu bench.Workload = bench.TorchWorkload{Runner: interp}
			caps, err := compat.Check(c.Context, interp)
			if c.Bool("native-cpu") || err != nil || !caps.TorchInstalled {
				if err != nil {
					log.Warn("torch not usable, timing the CPU in process", zap.Error(err))
				}
				cpu = bench.NewCPUWorkload(1)
			}

			opts := bench.Options{
				Size:          c.Int("size"),
				CPUIterations: c.Int("cpu-iterations"),
				GPUIterations: c.Int("gpu-iterations"),
			}
			results := bench.Run(c.Context, targets, cpu, bench.TorchWorkload{Runner: interp}, opts, log)
			pushMetrics(c.Context, cfg, "vibevoice_bench", log)
			ranked := bench.Rank(results)
			if len(ranked) == 0 {
				return cli.Exit("no device completed the benchmark", 1)
			}
			printRanking(c.App.Writer, ranked, results)
			return nil
		},
	}
}

func printRanking(w io.Writer, ranked []bench.Ranked, results []bench.Result) {
	fmt.Fprintln(w, "\nResults (fastest first):")
	for _, r := range ranked {
		fmt.Fprintf(w, "   %d. %-12s %-40s avg %-12s min %-12s max %-12s %.2fx\n",
			r.Rank, r.Target.Label, r.Target.Device.Name, r.Mean, r.Min, r.Max, r.Speedup)
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "   -  %-12s failed: %v\n", r.Target.Label, r.Err)
		}
	}

	best := ranked[0]
	fmt.Fprintf(w, "\nRecommended device: %s (%s)\n", best.Target.Label, best.Target.Device.Name)
	if best.Target.Device.Backend == gpu.KindCPU {
		fmt.Fprintln(w, "No accelerator beats the CPU on this machine. To pin it, set:")
	} else {
		fmt.Fprintln(w, "To always use it, set:")
	}
	printEnv(w, bench.Recommend(best.Target))
}
