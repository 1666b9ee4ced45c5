package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// AppFile is the server module every app directory must contain, relative to it.
var AppFile = filepath.Join("web", "app.py")

// RequiredModules must be importable by the server interpreter.
var RequiredModules = []string{"torch", "fastapi", "uvicorn", "websockets"}

// ModuleChecker reports Python modules that cannot be imported.
type ModuleChecker interface {
	MissingModules(ctx context.Context, names ...string) ([]string, error)
}

// CheckAppDir verifies that dir holds the server application.
func CheckAppDir(dir string) error {
	path := filepath.Join(dir, AppFile)
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%s is a directory", path)
	}
	return &StartupError{
		Kind: FailureMissingAppDir,
		Err:  fmt.Errorf("%s not found: %w", path, err),
		Remediation: []string{
			"run the launcher from the VibeVoice demo directory (the one containing web/app.py)",
			"or point VIBEVOICE_APP_DIR / --app-dir at it",
		},
	}
}

// CheckModules verifies that every required module is importable.
func CheckModules(ctx context.Context, checker ModuleChecker) error {
	missing, err := checker.MissingModules(ctx, RequiredModules...)
	if err != nil {
		return &StartupError{
			Kind: FailureUnexpected,
			Err:  fmt.Errorf("failed to check python packages: %w", err),
			Remediation: []string{
				"make sure VIBEVOICE_PYTHON / --python points at a working Python 3 interpreter",
			},
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &StartupError{
		Kind:        FailureMissingPackages,
		Err:         fmt.Errorf("python packages not installed: %s", strings.Join(missing, ", ")),
		Remediation: []string{"pip install " + strings.Join(missing, " ")},
	}
}

// CheckPort verifies that host:port can be bound.
func CheckPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err == nil {
		return ln.Close()
	}
	if isAddrInUse(err) {
		return portInUse(port, err)
	}
	return &StartupError{
		Kind: FailureUnexpected,
		Err:  fmt.Errorf("cannot bind %s:%d: %w", host, port, err),
	}
}

func portInUse(port int, err error) *StartupError {
	return &StartupError{
		Kind: FailurePortInUse,
		Err:  fmt.Errorf("port %d is already in use: %w", port, err),
		Remediation: []string{
			fmt.Sprintf("use another port, e.g. VIBEVOICE_PORT=%d", port+1),
			fmt.Sprintf("or stop the process listening on port %d", port),
		},
	}
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return containsAddrInUse(err.Error())
}

// containsAddrInUse matches the POSIX and Windows wordings of EADDRINUSE.
func containsAddrInUse(s string) bool {
	return strings.Contains(s, "address already in use") ||
		strings.Contains(s, "Address already in use") ||
		strings.Contains(s, "Only one usage of each socket address")
}

// Preflight runs every check that must pass before the server is started, in order:
// application directory, python packages, port.
func Preflight(ctx context.Context, opts Options, checker ModuleChecker) error {
	if err := CheckAppDir(opts.AppDir); err != nil {
		return err
	}
	if err := CheckModules(ctx, checker); err != nil {
		return err
	}
	return CheckPort(opts.Host, opts.Port)
}
