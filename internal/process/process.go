package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Status represents the current state of a driver process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
)

// maxStderrLine bounds a single captured stderr line.
const maxStderrLine = 64 * 1024

// defaultGracefulTimeout applies when Config.GracefulTimeout is zero.
const defaultGracefulTimeout = 5 * time.Second

// ErrAlreadyStarted is returned by Start on a second call.
var ErrAlreadyStarted = errors.New("process: already started")

// Config holds configuration for a driver process.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH if not absolute.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the broker's own environment.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for driver processes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Process is a single run of a driver executable.
type Process struct {
	config Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	lastError error
	startTime time.Time

	stdin  *os.File
	stdout *os.File

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a driver process that has not been started yet.
func New(cfg Config) *Process {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Process{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the process.
func (p *Process) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Start launches the executable with fresh pipes on stdin, stdout and
// stderr.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusStopped || p.cmd != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.status = StatusStarting
	p.mu.Unlock()

	if err := p.startProcess(ctx); err != nil {
		p.mu.Lock()
		p.status = StatusExited
		p.lastError = err
		p.mu.Unlock()
		close(p.done)
		return err
	}
	return nil
}

func (p *Process) startProcess(ctx context.Context) error {
	p.logger.Info("starting driver process",
		"name", p.config.Name,
		"binary", p.config.Binary,
		"args", p.config.Args,
	)

	// Pipes are created by hand rather than with StdoutPipe so that Wait
	// never closes the read side before the broker has drained it.
	inR, inW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW, outR, outW)
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	cmd := exec.Command(p.config.Binary, p.config.Args...) //nolint:gosec // driver names come from the operator
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), p.config.Env...)
	if p.config.WorkDir != "" {
		cmd.Dir = p.config.WorkDir
	}
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := ctx.Err(); err != nil {
		closeAll(inR, inW, outR, outW, errR, errW)
		return err
	}
	if err := cmd.Start(); err != nil {
		closeAll(inR, inW, outR, outW, errR, errW)
		return fmt.Errorf("starting %s: %w", p.config.Name, err)
	}

	// The child holds its own copies now.
	closeAll(inR, outW, errW)

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = inW
	p.stdout = outR
	p.status = StatusRunning
	p.startTime = time.Now()
	p.mu.Unlock()

	go p.captureStderr(errR)
	go p.wait(cmd)

	p.logger.Info("driver process started",
		"name", p.config.Name,
		"pid", cmd.Process.Pid,
	)
	return nil
}

// captureStderr logs each stderr line the driver writes.
func (p *Process) captureStderr(r io.ReadCloser) {
	defer r.Close() //nolint:errcheck // read side of our own pipe

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxStderrLine)
	for scanner.Scan() {
		p.logger.Info("driver stderr",
			"name", p.config.Name,
			"line", scanner.Text(),
		)
	}
}

func (p *Process) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	p.status = StatusExited
	p.lastError = err
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("driver process exited", "name", p.config.Name, "error", err)
	} else {
		p.logger.Info("driver process exited", "name", p.config.Name)
	}
	close(p.done)
}

// Read reads protocol bytes from the driver's stdout.
func (p *Process) Read(b []byte) (int, error) {
	p.mu.RLock()
	r := p.stdout
	p.mu.RUnlock()
	if r == nil {
		return 0, io.EOF
	}
	return r.Read(b)
}

// Write writes protocol bytes to the driver's stdin.
func (p *Process) Write(b []byte) (int, error) {
	p.mu.RLock()
	w := p.stdin
	p.mu.RUnlock()
	if w == nil {
		return 0, io.ErrClosedPipe
	}
	return w.Write(b)
}

// Close stops the driver and releases both protocol pipes. It is safe to
// call more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.mu.RLock()
		stdin, stdout := p.stdin, p.stdout
		p.mu.RUnlock()

		if stdin != nil {
			stdin.Close() //nolint:errcheck // driver may already be gone
		}
		p.closeErr = p.Stop()
		if stdout != nil {
			stdout.Close() //nolint:errcheck // unblocks any pending Read
		}
	})
	return p.closeErr
}

// Stop sends SIGTERM to the driver's process group and waits for it to
// exit, escalating to SIGKILL after the graceful timeout.
func (p *Process) Stop() error {
	p.mu.RLock()
	cmd := p.cmd
	status := p.status
	p.mu.RUnlock()

	if cmd == nil || cmd.Process == nil || status != StatusRunning {
		return nil
	}

	pid := cmd.Process.Pid
	p.logger.Info("stopping driver process", "name", p.config.Name, "pid", pid)

	// Negative PID signals the whole process group created via Setpgid.
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Warn("failed to send SIGTERM to process group", "name", p.config.Name, "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(p.config.GracefulTimeout):
		p.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", p.config.Name,
			"timeout", p.config.GracefulTimeout,
		)
	}

	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", p.config.Name, err)
	}
	<-p.done
	return nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Status returns the current status of the process.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// PID returns the process ID, or 0 if never started.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// LastError returns the error the process exited with, if any.
func (p *Process) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

// Stats describes a driver process for status reporting.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (p *Process) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		Name:   p.config.Name,
		Status: p.status,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		stats.PID = p.cmd.Process.Pid
	}
	if p.status == StatusRunning {
		stats.Uptime = time.Since(p.startTime)
	}
	if p.lastError != nil {
		stats.LastError = p.lastError.Error()
	}
	return stats
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close() //nolint:errcheck // cleanup of pipe ends
	}
}
