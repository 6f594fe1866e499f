package process

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) Debug(string, ...any) {}
func (r *recordingLogger) Warn(string, ...any)  {}
func (r *recordingLogger) Error(string, ...any) {}
func (r *recordingLogger) Info(msg string, args ...any) {
	if msg != "driver stderr" {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			r.mu.Lock()
			r.lines = append(r.lines, args[i+1].(string))
			r.mu.Unlock()
		}
	}
}

func (r *recordingLogger) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{Name: "indi_simulator_ccd", Binary: "/usr/bin/indi_simulator_ccd"})

	if p.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", p.config.GracefulTimeout, defaultGracefulTimeout)
	}
	if p.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", p.Status(), StatusStopped)
	}
	if p.PID() != 0 {
		t.Errorf("PID() = %d, want 0", p.PID())
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}
}

func TestProcess_EchoThroughPipes(t *testing.T) {
	p := New(Config{Name: "cat", Binary: "/bin/cat"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Close() //nolint:errcheck // Test cleanup

	if p.Status() != StatusRunning {
		t.Errorf("Status() = %q, want %q", p.Status(), StatusRunning)
	}
	if p.PID() == 0 {
		t.Error("PID() = 0 for running process")
	}

	msg := "<getProperties version='1.7'/>\n"
	if _, err := p.Write([]byte(msg)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(p, buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf) != msg {
		t.Errorf("echoed %q, want %q", buf, msg)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if p.Status() != StatusExited {
		t.Errorf("Status() after Close = %q, want %q", p.Status(), StatusExited)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestProcess_ExitEndsStdoutAndCapturesStderr(t *testing.T) {
	log := &recordingLogger{}
	p := New(Config{
		Name:   "failing",
		Binary: "/bin/sh",
		Args:   []string{"-c", `echo "$INDIDEV is broken" >&2; exit 3`},
		Env:    []string{"INDIDEV=CCD Simulator"},
	})
	p.SetLogger(log)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Close() //nolint:errcheck // Test cleanup

	if _, err := io.ReadAll(p); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	if p.LastError() == nil {
		t.Error("LastError() = nil, want exit status")
	}
	if got := p.Stats(); got.Status != StatusExited || got.LastError == "" {
		t.Errorf("Stats() = %+v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		lines := log.snapshot()
		if len(lines) == 1 && lines[0] == "CCD Simulator is broken" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stderr lines = %q", lines)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcess_StartTwice(t *testing.T) {
	p := New(Config{Name: "sleep", Binary: "/bin/sleep", Args: []string{"30"}})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Close() //nolint:errcheck // Test cleanup

	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestProcess_StartWithInvalidBinary(t *testing.T) {
	p := New(Config{Name: "missing", Binary: "/nonexistent/indi_driver"})

	if err := p.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid binary should fail")
	}
	if p.Status() != StatusExited {
		t.Errorf("Status() = %q, want %q", p.Status(), StatusExited)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done() should be closed after a failed start")
	}
	if _, err := p.Write([]byte("x")); err == nil {
		t.Error("Write() on unstarted process should fail")
	}
}

func TestProcess_StopEscalatesToKill(t *testing.T) {
	p := New(Config{
		Name:            "stubborn",
		Binary:          "/bin/sh",
		Args:            []string{"-c", `trap "" TERM; sleep 30`},
		GracefulTimeout: 200 * time.Millisecond,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Give the shell time to install its trap.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Close() took %v", elapsed)
	}
	if p.Status() != StatusExited {
		t.Errorf("Status() = %q, want %q", p.Status(), StatusExited)
	}
}
