package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"

	"github.com/plataforma/vibevoice-launcher/internal/bench"
	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/gpu"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func newResolver(cfg *config.Config, log *zap.Logger) (*gpu.Resolver, *pyenv.Interpreter) {
	interp := pyenv.New(cfg.Server.Python, log)
	return gpu.NewResolver(log, gpu.DefaultBackends(interp, log)...), interp
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "List display adapters and torch devices and recommend one",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "test", Usage: "Run a quick matrix multiplication on every device"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)
			w := c.App.Writer
			printBanner(c, "Device detection")

			adapters, err := gpu.ListAdapters(c.Context, pyenv.DefaultExecutor, runtime.GOOS, log)
			if err != nil {
				log.Warn("could not list display adapters", zap.Error(err))
			}
			printAdapters(w, adapters)

			resolver, interp := newResolver(cfg, log)
			reports := resolver.Enumerate(c.Context)
			printBackends(w, reports)

			sel := resolver.Resolve(c.Context, gpu.NewRequest(cfg.Device.Preference, cfg.Device.Index, log))
			fmt.Fprintf(w, "\nSelected device: %s (MODEL_DEVICE=%s)\n", sel, sel.Identifier())
			printPinHint(w, reports)

			if c.Bool("test") {
				testDevices(c.Context, w, reports, interp, log)
			}
			return nil
		},
	}
}

func printAdapters(w io.Writer, adapters []gpu.Adapter) {
	fmt.Fprintln(w, "Display adapters:")
	if len(adapters) == 0 {
		fmt.Fprintln(w, "   none detected")
		return
	}
	for i, a := range adapters {
		fmt.Fprintf(w, "   [%d] %s (%s)\n", i, a.Name, a.Class)
		if a.DriverVersion != "" {
			fmt.Fprintf(w, "       Driver: %s\n", a.DriverVersion)
		}
		fmt.Fprintf(w, "       VRAM: %s\n", formatMB(a.VRAMTotalMB))
	}
	if i, ok := gpu.RecommendAdapter(adapters); ok {
		fmt.Fprintf(w, "   Recommended: [%d] %s\n", i, adapters[i].Name)
	} else {
		fmt.Fprintln(w, "   No dedicated adapter found")
	}
}

func printBackends(w io.Writer, reports []gpu.BackendReport) {
	fmt.Fprintln(w, "\nTorch backends:")
	for _, r := range reports {
		status := "available"
		switch {
		case !r.Installed:
			status = "not installed"
		case !r.Available:
			status = "unavailable"
		}
		fmt.Fprintf(w, "   %-9s %s\n", r.Kind, status)
		if r.Err != nil {
			fmt.Fprintf(w, "             error: %v\n", r.Err)
		}
		for _, d := range r.Devices {
			fmt.Fprintf(w, "             [%d] %s, %s\n", d.Index, d.Name, formatBytes(d.TotalMemory))
		}
	}
}

// printPinHint explains how to pin an adapter when DirectML sees more than one.
func printPinHint(w io.Writer, reports []gpu.BackendReport) {
	for _, r := range reports {
		if r.Kind != gpu.KindDirectML || len(r.Devices) < 2 {
			continue
		}
		fmt.Fprintln(w, "\nSeveral DirectML adapters are present. To pin one, set:")
		last := r.Devices[len(r.Devices)-1]
		printEnv(w, map[string]string{"VIBEVOICE_DEVICE": "directml", "DIRECTML_DEVICE": strconv.Itoa(last.Index)})
	}
}

func testDevices(ctx context.Context, w io.Writer, reports []gpu.BackendReport, interp *pyenv.Interpreter, log *zap.Logger) {
	fmt.Fprintln(w, "\nQuick test:")
	torch := bench.TorchWorkload{Runner: interp}
	cpu := bench.NewCPUWorkload(1)
	for _, r := range reports {
		if !r.Available {
			continue
		}
		for _, d := range r.Devices {
			target := bench.TargetFor(d)
			var workload bench.Workload = torch
			size := 1000
			if d.Backend == gpu.KindCPU {
				workload, size = cpu, 500
			}
			samples, err := workload.Run(ctx, target, size, 1)
			if err != nil || len(samples) == 0 {
				log.Debug("device test failed", zap.String("device", target.Label), zap.Error(err))
				fmt.Fprintf(w, "   %-12s FAILED %v\n", target.Label, err)
				continue
			}
			fmt.Fprintf(w, "   %-12s ok in %s\n", target.Label, samples[0])
		}
	}
}
