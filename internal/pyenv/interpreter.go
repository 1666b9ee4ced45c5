// Package pyenv runs the Python interpreter that hosts the speech server and its probes.
package pyenv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/plataforma/vibevoice-launcher/fixtures"
	"go.uber.org/zap"
)

// Executor creates commands. Tests substitute it to avoid spawning a real interpreter.
type Executor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

type osExecutor struct{}

func (osExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// DefaultExecutor runs commands through os/exec.
var DefaultExecutor Executor = osExecutor{}

// ScriptRunner evaluates an inline script and decodes its JSON report.
type ScriptRunner interface {
	RunScript(ctx context.Context, script []byte, out any, args ...string) error
}

// Interpreter is a Python executable plus extra environment for every invocation.
type Interpreter struct {
	Path string
	// Env entries are KEY=VALUE and are appended after the inherited environment.
	Env []string

	exec Executor
	log  *zap.Logger
}

func New(path string, log *zap.Logger) *Interpreter {
	return NewWithExecutor(path, DefaultExecutor, log)
}

func NewWithExecutor(path string, executor Executor, log *zap.Logger) *Interpreter {
	return &Interpreter{
		Path: path,
		exec: executor,
		log:  log.Named("pyenv"),
	}
}

// Command prepares an interpreter invocation without starting it.
func (p *Interpreter) Command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := p.exec.CommandContext(ctx, p.Path, args...)
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	return cmd
}

// RunScript executes script with `python -c` and decodes the last JSON line of stdout into out.
func (p *Interpreter) RunScript(ctx context.Context, script []byte, out any, args ...string) error {
	cmd := p.Command(ctx, append([]string{"-c", string(script)}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			p.log.Debug("python script failed", zap.String("interpreter", p.Path), zap.String("stderr", stderr))
			return fmt.Errorf("%s exited with code %d: %s", p.Path, exitErr.ExitCode(), lastLine([]byte(stderr)))
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("python interpreter %q not found: %w", p.Path, err)
		}
		return fmt.Errorf("failed to run %s: %w", p.Path, err)
	}

	line := lastLine(output)
	if line == "" {
		return fmt.Errorf("%s produced no output", p.Path)
	}
	if err := json.Unmarshal([]byte(line), out); err != nil {
		return fmt.Errorf("failed to decode script output %q: %w", line, err)
	}
	return nil
}

// MissingModules reports which of names cannot be imported.
func (p *Interpreter) MissingModules(ctx context.Context, names ...string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var report struct {
		Missing []string `json:"missing"`
	}
	if err := p.RunScript(ctx, fixtures.FindModules, &report, names...); err != nil {
		return nil, err
	}
	return report.Missing, nil
}

func lastLine(output []byte) string {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	return strings.TrimSpace(string(lines[len(lines)-1]))
}
