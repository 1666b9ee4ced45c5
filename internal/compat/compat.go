// Package compat inspects the torch build the server will import and prepares the
// startup shim for builds that lack the torch.xpu namespace.
package compat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plataforma/vibevoice-launcher/fixtures"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
)

// ShimFile is the module name Python's site machinery imports automatically.
const ShimFile = "sitecustomize.py"

// Capabilities is what the interpreter's torch installation offers.
type Capabilities struct {
	TorchInstalled bool   `json:"torch"`
	TorchVersion   string `json:"version"`
	XPU            bool   `json:"xpu"`
	Threads        int    `json:"threads"`
}

// Check runs the capability script through runner.
func Check(ctx context.Context, runner pyenv.ScriptRunner) (Capabilities, error) {
	var caps Capabilities
	if err := runner.RunScript(ctx, fixtures.Capabilities, &caps); err != nil {
		return Capabilities{}, fmt.Errorf("failed to inspect torch: %w", err)
	}
	return caps, nil
}

// NeedsXPUShim is true for torch builds that do not expose torch.xpu.
func (c Capabilities) NeedsXPUShim() bool {
	return c.TorchInstalled && !c.XPU
}

// InstallShim writes the startup shim into dir and returns dir.
func InstallShim(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create shim directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ShimFile), fixtures.SiteCustomize, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", ShimFile, err)
	}
	return dir, nil
}

// PythonPath prepends shimDir to an existing PYTHONPATH value.
func PythonPath(shimDir, existing string) string {
	if existing == "" {
		return shimDir
	}
	for _, entry := range filepath.SplitList(existing) {
		if entry == shimDir {
			return existing
		}
	}
	return strings.Join([]string{shimDir, existing}, string(os.PathListSeparator))
}
