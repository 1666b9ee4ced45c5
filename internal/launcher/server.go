package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"go.uber.org/zap"
)

// Server supervises the speech server child process.
type Server struct {
	opts   Options
	interp *pyenv.Interpreter
	log    *zap.Logger

	// Stdout and Stderr receive the child's output. They default to the launcher's own streams.
	Stdout io.Writer
	Stderr io.Writer

	mu       sync.Mutex
	cmd      *exec.Cmd
	started  bool
	done     chan struct{}
	stopping bool
	exitCode int
	err      error
	conflict *conflictDetector
}

func NewServer(opts Options, interp *pyenv.Interpreter, log *zap.Logger) *Server {
	return &Server{
		opts:   opts,
		interp: interp,
		log:    log.Named("launcher"),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		done:   make(chan struct{}),
	}
}

// Start launches the child. The child is not bound to ctx; use Stop to end it.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("server already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// a failed launch also counts: done is closed either way
	s.started = true

	s.conflict = &conflictDetector{}
	cmd := s.interp.Command(context.Background(), s.opts.Args()...)
	cmd.Dir = s.opts.AppDir
	cmd.Env = s.opts.Environ(cmd.Environ())
	cmd.Stdout = s.Stdout
	cmd.Stderr = io.MultiWriter(s.Stderr, s.conflict)
	// grandchildren may keep stderr open after the server exits
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		s.err = &StartupError{Kind: FailureUnexpected, Err: fmt.Errorf("failed to start server: %w", err)}
		s.exitCode = 1
		close(s.done)
		return s.err
	}
	s.cmd = cmd
	metrics.ServerUp.Set(1)

	httpURL, streamURL, healthURL := s.opts.URLs()
	s.log.Info("server started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("model", s.opts.Model),
		zap.String("device", s.opts.Selection.Label),
		zap.String("url", httpURL),
		zap.String("websocket", streamURL),
		zap.String("health", healthURL),
	)

	go s.wait()
	return nil
}

func (s *Server) wait() {
	err := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay) && s.cmd.ProcessState.Success():
		s.exitCode = 0
	case s.stopping:
		s.log.Info("server stopped")
		s.exitCode = 0
	case s.conflict.Seen():
		s.err = portInUse(s.opts.Port, err)
		s.exitCode = 1
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			s.log.Error("server exited", zap.Int("code", exitErr.ExitCode()))
		}
		s.err = &StartupError{Kind: FailureUnexpected, Err: fmt.Errorf("server exited: %w", err)}
		s.exitCode = 1
	}
	metrics.ServerUp.Set(0)
	metrics.ServerExitCode.Set(float64(s.exitCode))
	close(s.done)
}

// Done is closed once the child has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// ExitCode is 0 after a clean or requested shutdown and 1 otherwise. Valid once Done is closed.
func (s *Server) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Err describes why the launch failed, or nil.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Server) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.exitCode = 1
}

// Stop interrupts the child and kills it if it has not exited after the stop timeout or when ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	if cmd == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
	}
	s.stopping = true
	s.mu.Unlock()

	s.log.Info("stopping server", zap.Int("pid", cmd.Process.Pid))
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// os.Interrupt is not deliverable on windows
		_ = cmd.Process.Kill()
	}

	timeout := s.opts.StopTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		s.log.Warn("server did not stop in time, killing", zap.Duration("timeout", timeout))
	case <-ctx.Done():
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	<-s.done
	return nil
}

// conflictDetector watches the child's stderr for a bind failure.
type conflictDetector struct {
	mu   sync.Mutex
	tail []byte
	seen bool
}

func (d *conflictDetector) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return len(p), nil
	}
	d.tail = append(d.tail, p...)
	if containsAddrInUse(string(d.tail)) {
		d.seen = true
		d.tail = nil
		return len(p), nil
	}
	// keep enough to match a phrase split across writes
	if i := bytes.LastIndexByte(d.tail, '\n'); i >= 0 {
		d.tail = append([]byte(nil), d.tail[i+1:]...)
	}
	return len(p), nil
}

func (d *conflictDetector) Seen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen
}
