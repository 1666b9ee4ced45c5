package gpu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"go.uber.org/zap"
)

// AdapterClass tells integrated adapters apart from dedicated ones.
type AdapterClass string

const (
	ClassIntegrated      AdapterClass = "integrated"
	ClassDedicatedNVIDIA AdapterClass = "dedicated-nvidia"
	ClassDedicatedAMD    AdapterClass = "dedicated-amd"
	ClassUnknown         AdapterClass = "unknown"
)

func (c AdapterClass) Dedicated() bool {
	return c == ClassDedicatedNVIDIA || c == ClassDedicatedAMD
}

// Adapter is a display adapter as reported by the operating system, independent of any torch backend.
type Adapter struct {
	Name          string       `json:"name"`
	DriverVersion string       `json:"driver_version"`
	VRAMTotalMB   int          `json:"vram_total_mb"`
	Class         AdapterClass `json:"class"`
}

// Classify guesses the adapter class from its marketing name.
func Classify(name string) AdapterClass {
	switch {
	case strings.Contains(name, "Intel"), strings.Contains(name, "UHD"), strings.Contains(name, "HD Graphics"):
		return ClassIntegrated
	case strings.Contains(name, "NVIDIA"), strings.Contains(name, "GeForce"), strings.Contains(name, "RTX"):
		return ClassDedicatedNVIDIA
	case strings.Contains(name, "AMD"), strings.Contains(name, "Radeon"):
		return ClassDedicatedAMD
	case strings.HasPrefix(name, "Apple M"):
		return ClassIntegrated
	}
	return ClassUnknown
}

// RecommendAdapter returns the position of the first dedicated adapter.
func RecommendAdapter(adapters []Adapter) (int, bool) {
	for i, a := range adapters {
		if a.Class.Dedicated() {
			return i, true
		}
	}
	return 0, false
}

// ListAdapters enumerates display adapters with the platform tool for goos.
func ListAdapters(ctx context.Context, executor pyenv.Executor, goos string, log *zap.Logger) ([]Adapter, error) {
	log = log.Named("gpu")
	log.Debug("listing display adapters", zap.String("os", goos))

	var (
		adapters []Adapter
		err      error
	)
	switch goos {
	case "windows":
		adapters, err = listWindowsAdapters(ctx, executor)
	case "darwin":
		adapters, err = listMacAdapters(ctx, executor)
	default:
		adapters, err = listNvidiaAdapters(ctx, executor, log)
		if err != nil {
			log.Debug("nvidia-smi failed, trying rocm-smi", zap.Error(err))
			adapters, err = listAmdAdapters(ctx, executor, log)
		}
	}
	if err != nil {
		return nil, err
	}

	for i := range adapters {
		adapters[i].Class = Classify(adapters[i].Name)
	}
	return adapters, nil
}

func runTool(ctx context.Context, executor pyenv.Executor, name string, args ...string) ([]byte, error) {
	output, err := executor.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s failed: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s not found", name)
		}
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return output, nil
}

const wmiQuery = "Get-CimInstance Win32_VideoController | Select-Object Name, AdapterRAM, DriverVersion | ConvertTo-Json"

func listWindowsAdapters(ctx context.Context, executor pyenv.Executor) ([]Adapter, error) {
	output, err := runTool(ctx, executor, "powershell", "-NoProfile", "-Command", wmiQuery)
	if err != nil {
		return nil, err
	}
	return parseWindowsAdapters(output)
}

type wmiVideoController struct {
	Name          string `json:"Name"`
	AdapterRAM    int64  `json:"AdapterRAM"`
	DriverVersion string `json:"DriverVersion"`
}

// parseWindowsAdapters accepts both shapes ConvertTo-Json emits: an object for one adapter, an array otherwise.
func parseWindowsAdapters(output []byte) ([]Adapter, error) {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, nil
	}

	var controllers []wmiVideoController
	if strings.HasPrefix(trimmed, "{") {
		var single wmiVideoController
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("failed to parse adapter list: %w", err)
		}
		controllers = append(controllers, single)
	} else if err := json.Unmarshal([]byte(trimmed), &controllers); err != nil {
		return nil, fmt.Errorf("failed to parse adapter list: %w", err)
	}

	adapters := make([]Adapter, 0, len(controllers))
	for _, c := range controllers {
		adapters = append(adapters, Adapter{
			Name:          c.Name,
			DriverVersion: c.DriverVersion,
			VRAMTotalMB:   int(c.AdapterRAM / 1024 / 1024),
		})
	}
	return adapters, nil
}

func listMacAdapters(ctx context.Context, executor pyenv.Executor) ([]Adapter, error) {
	output, err := runTool(ctx, executor, "system_profiler", "SPDisplaysDataType")
	if err != nil {
		return nil, err
	}
	driverVersion := "N/A"
	if ver, err := runTool(ctx, executor, "sw_vers", "-productVersion"); err == nil {
		driverVersion = strings.TrimSpace(string(ver))
	}
	return parseMacAdapters(output, driverVersion), nil
}

func parseMacAdapters(output []byte, driverVersion string) []Adapter {
	var (
		adapters []Adapter
		current  *Adapter
	)
	for _, line := range strings.Split(string(output), "\n") {
		trimmed := strings.TrimSpace(line)
		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch {
		case key == "Chipset Model":
			if current != nil {
				adapters = append(adapters, *current)
			}
			current = &Adapter{Name: value, DriverVersion: driverVersion}
		case strings.HasPrefix(key, "VRAM") && current != nil:
			if mb, err := parseMemoryString(value); err == nil {
				current.VRAMTotalMB = mb
			}
		}
	}
	if current != nil {
		adapters = append(adapters, *current)
	}
	return adapters
}

func listNvidiaAdapters(ctx context.Context, executor pyenv.Executor, log *zap.Logger) ([]Adapter, error) {
	output, err := runTool(ctx, executor, "nvidia-smi", "--query-gpu=name,driver_version,memory.total", "--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	return parseNvidiaAdapters(output, log), nil
}

func parseNvidiaAdapters(output []byte, log *zap.Logger) []Adapter {
	var adapters []Adapter
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		values := strings.Split(line, ", ")
		if len(values) < 3 {
			log.Warn("Unexpected nvidia-smi format", zap.String("line", line))
			continue
		}
		total, _ := strconv.Atoi(strings.TrimSpace(values[2]))
		adapters = append(adapters, Adapter{
			Name:          strings.TrimSpace(values[0]),
			DriverVersion: strings.TrimSpace(values[1]),
			VRAMTotalMB:   total,
		})
	}
	return adapters
}

func listAmdAdapters(ctx context.Context, executor pyenv.Executor, log *zap.Logger) ([]Adapter, error) {
	output, err := runTool(ctx, executor, "rocm-smi", "--showproductname", "--showdriverversion", "--showmeminfo", "vram", "--csv")
	if err != nil {
		return nil, err
	}
	return parseAmdAdapters(output, log), nil
}

// parseAmdAdapters expects rocm-smi CSV: device, card series, VRAM total bytes, ...
func parseAmdAdapters(output []byte, log *zap.Logger) []Adapter {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	var adapters []Adapter
	// header row
	for _, line := range lines[1:] {
		values := strings.Split(line, ",")
		if len(values) < 3 {
			log.Warn("Unexpected rocm-smi format", zap.String("line", line))
			continue
		}
		totalBytes, _ := strconv.ParseInt(strings.TrimSpace(values[2]), 10, 64)
		adapters = append(adapters, Adapter{
			Name:          strings.TrimSpace(values[1]),
			DriverVersion: "N/A",
			VRAMTotalMB:   int(totalBytes / 1024 / 1024),
		})
	}
	return adapters
}

var memoryPattern = regexp.MustCompile(`(\d+)\s*(MB|GB|TB)`)

func parseMemoryString(memStr string) (int, error) {
	matches := memoryPattern.FindStringSubmatch(memStr)
	if len(matches) < 3 {
		val, err := strconv.Atoi(strings.TrimSpace(memStr))
		if err == nil {
			return val, nil
		}
		return 0, fmt.Errorf("invalid memory string format: %s", memStr)
	}

	val, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, err
	}

	switch strings.ToUpper(matches[2]) {
	case "GB":
		val *= 1024
	case "TB":
		val *= 1024 * 1024
	}
	return val, nil
}
