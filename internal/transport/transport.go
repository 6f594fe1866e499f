package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"time"

	"github.com/nerrad567/indihub/internal/process"
)

// Mode selects how local drivers are reached.
type Mode string

const (
	// ModeFIFO opens <name>.in and <name>.out named pipes.
	ModeFIFO Mode = "fifo"
	// ModeExec spawns the driver executable.
	ModeExec Mode = "exec"
)

// Default timeouts.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// Logger is the logging interface used by spawned driver processes.
type Logger = process.Logger

// LocalSpec describes a local driver and the environment it is started
// with.
type LocalSpec struct {
	Name     string
	Device   string
	Config   string
	Skeleton string
	Prefix   string
}

// Env returns the INDI* environment variables for the spec. Unset fields
// are omitted.
func (s LocalSpec) Env() []string {
	var env []string
	for _, kv := range []struct{ key, value string }{
		{"INDIDEV", s.Device},
		{"INDICONFIG", s.Config},
		{"INDISKEL", s.Skeleton},
		{"INDIPREFIX", s.Prefix},
	} {
		if kv.value != "" {
			env = append(env, kv.key+"="+kv.value)
		}
	}
	return env
}

// Dialer opens driver transports.
type Dialer struct {
	Mode        Mode
	FIFODir     string
	DialTimeout time.Duration
	StopTimeout time.Duration
	Logger      Logger
}

// OpenLocal opens the stream to a local driver. In FIFO mode it blocks
// until the driver side of both pipes is attached or ctx ends.
func (d *Dialer) OpenLocal(ctx context.Context, spec LocalSpec) (io.ReadWriteCloser, error) {
	switch d.Mode {
	case ModeExec:
		return d.spawn(ctx, spec)
	case ModeFIFO, "":
		base := spec.Name
		if d.FIFODir != "" && !filepath.IsAbs(base) {
			base = filepath.Join(d.FIFODir, base)
		}
		return OpenFIFOPair(ctx, base)
	default:
		return nil, fmt.Errorf("transport: unknown local driver mode %q", d.Mode)
	}
}

func (d *Dialer) spawn(ctx context.Context, spec LocalSpec) (io.ReadWriteCloser, error) {
	timeout := d.StopTimeout
	if timeout == 0 {
		timeout = DefaultStopTimeout
	}
	p := process.New(process.Config{
		Name:            spec.Name,
		Binary:          spec.Name,
		Env:             spec.Env(),
		GracefulTimeout: timeout,
	})
	if d.Logger != nil {
		p.SetLogger(d.Logger)
	}
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// DialRemote connects to another broker at addr (host:port).
func (d *Dialer) DialRemote(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	timeout := d.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	nd := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: connecting to %s: %w", addr, err)
	}
	return conn, nil
}
