package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// fifoPollInterval is how often a write-side open is retried while the
// driver has not opened its end yet.
const fifoPollInterval = 100 * time.Millisecond

// EnsureFIFO creates a named pipe at path if nothing exists there, and
// checks that an existing file is a pipe.
func EnsureFIFO(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe == 0 {
			return fmt.Errorf("transport: %s exists and is not a named pipe", path)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := unix.Mkfifo(path, 0o660); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("transport: mkfifo %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("transport: stat %s: %w", path, err)
	}
}

// fifoPair is the broker's side of a local driver's named pipes.
type fifoPair struct {
	in  *os.File // broker writes, driver reads
	out *os.File // driver writes, broker reads

	closeOnce sync.Once
}

func (p *fifoPair) Read(b []byte) (int, error)  { return p.out.Read(b) }
func (p *fifoPair) Write(b []byte) (int, error) { return p.in.Write(b) }

func (p *fifoPair) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = errors.Join(p.in.Close(), p.out.Close())
	})
	return err
}

// OpenFIFOPair opens base+".in" for writing and base+".out" for reading,
// creating either pipe if missing.
func OpenFIFOPair(ctx context.Context, base string) (io.ReadWriteCloser, error) {
	inPath, outPath := base+".in", base+".out"
	for _, p := range []string{inPath, outPath} {
		if err := EnsureFIFO(p); err != nil {
			return nil, err
		}
	}

	in, err := openWriter(ctx, inPath)
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	out, err := openReader(ctx, outPath)
	if err != nil {
		in.Close() //nolint:errcheck // abandoning the pair
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	return &fifoPair{in: in, out: out}, nil
}

// openWriter polls a non-blocking write open, which fails with ENXIO until
// a reader is attached.
func openWriter(ctx context.Context, path string) (*os.File, error) {
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, syscall.ENXIO) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fifoPollInterval):
		}
	}
}

// openReader performs a blocking read open, which returns once a writer is
// attached. A non-blocking open would succeed at once and then read EOF.
func openReader(ctx context.Context, path string) (*os.File, error) {
	type result struct {
		f   *os.File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		return r.f, r.err
	case <-ctx.Done():
		// Attach a writer for a moment so the pending open returns.
		if w, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
			w.Close() //nolint:errcheck // only used to release the open
		}
		go func() {
			if r := <-ch; r.f != nil {
				r.f.Close() //nolint:errcheck // nobody wants it any more
			}
		}()
		return nil, ctx.Err()
	}
}
