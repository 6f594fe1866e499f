package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/indihub/internal/transport"
)

// maxLine bounds a single control line.
const maxLine = 4096

// reopenDelay throttles reopen attempts after a read error.
const reopenDelay = 100 * time.Millisecond

// Logger is the logging interface used by FIFO.
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

// Handler receives each successfully parsed command.
type Handler func(Command)

// FIFO reads commands from a named pipe, creating it if needed.
type FIFO struct {
	path   string
	logger Logger

	mu   sync.Mutex
	file *os.File
}

// NewFIFO returns a reader for the named pipe at path.
func NewFIFO(path string) *FIFO {
	return &FIFO{path: path, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (f *FIFO) SetLogger(l Logger) {
	if l != nil {
		f.logger = l
	}
}

// Path returns the pipe path.
func (f *FIFO) Path() string { return f.path }

// Run reads lines until ctx is cancelled, calling h for each valid
// command. The pipe is reopened whenever a read ends or fails. Invalid
// lines are logged and skipped.
func (f *FIFO) Run(ctx context.Context, h Handler) error {
	if err := transport.EnsureFIFO(f.path); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, f.closeFile)
	defer stop()

	for ctx.Err() == nil {
		file, err := f.open(ctx)
		if err != nil {
			return err
		}
		if file == nil {
			break
		}

		f.readLines(file, h)
		f.closeFile()

		if ctx.Err() != nil {
			break
		}
		f.logger.Debug("control channel reopened", "path", f.path)

		select {
		case <-ctx.Done():
		case <-time.After(reopenDelay):
		}
	}
	return nil
}

func (f *FIFO) open(ctx context.Context) (*os.File, error) {
	// O_RDWR keeps a writer attached so reads block instead of returning
	// EOF while no external writer is connected.
	file, err := os.OpenFile(f.path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("control: open %s: %w", f.path, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		file.Close() //nolint:errcheck // cancelled while opening
		return nil, nil
	}
	f.file = file
	return file, nil
}

func (f *FIFO) closeFile() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil {
		f.file.Close() //nolint:errcheck // pipe close on shutdown or reopen
		f.file = nil
	}
}

func (f *FIFO) readLines(file *os.File, h Handler) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 512), maxLine)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		f.logger.Info("control command received", "line", line)

		cmd, err := Parse(line)
		if err != nil {
			f.logger.Warn("ignoring control line", "line", line, "error", err)
			continue
		}
		h(cmd)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		f.logger.Warn("control channel read failed", "path", f.path, "error", err)
	}
}

// Send writes cmd as one line to the named pipe at path. It blocks until a
// reader has the pipe open.
func Send(path string, cmd Command) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("control: open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // write error is what matters

	if _, err := file.WriteString(cmd.String() + "\n"); err != nil {
		return fmt.Errorf("control: write %s: %w", path, err)
	}
	return nil
}
