package broker

import (
	"context"
	"io"
	"time"

	"github.com/nerrad567/indihub/internal/events"
	"github.com/nerrad567/indihub/internal/transport"
)

// inboxSize bounds how many posted operations may wait for the
// dispatcher. Readers block when it is full.
const inboxSize = 256

// Logger defines the logging interface for the broker.
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

// Dialer opens driver transports.
type Dialer interface {
	OpenLocal(ctx context.Context, spec transport.LocalSpec) (io.ReadWriteCloser, error)
	DialRemote(ctx context.Context, addr string) (io.ReadWriteCloser, error)
}

// Broker is the routing context shared by all clients and drivers.
type Broker struct {
	cfg    Config
	dialer Dialer
	logger Logger
	sink   events.Sink
	dlog   *driverLog
	now    func() time.Time

	clients  []*Client
	drivers  []*Driver
	restarts restartList
	stats    Stats

	ctx     context.Context
	inbox   chan func()
	stopped chan struct{}
	exitErr error
}

// New creates a broker. Nothing runs until Run is called.
func New(cfg Config, dialer Dialer) *Broker {
	cfg.applyDefaults()
	b := &Broker{
		cfg:     cfg,
		dialer:  dialer,
		logger:  noopLogger{},
		sink:    events.Discard,
		now:     time.Now,
		ctx:     context.Background(),
		inbox:   make(chan func(), inboxSize),
		stopped: make(chan struct{}),
	}
	if cfg.DriverLogDir != "" {
		b.dlog = &driverLog{dir: cfg.DriverLogDir, now: b.now}
	}
	return b
}

// SetLogger sets the logger. Call before Run.
func (b *Broker) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// SetEventSink sets where lifecycle events go. Call before Run.
func (b *Broker) SetEventSink(sink events.Sink) {
	if sink != nil {
		b.sink = sink
	}
}

// Config returns the effective configuration.
func (b *Broker) Config() Config {
	return b.cfg
}

func (b *Broker) emit(ev events.Event) {
	ev.Time = b.now().UTC()
	b.sink.HandleEvent(ev)
}

// post queues fn for the dispatcher. It reports false once Run has exited.
func (b *Broker) post(fn func()) bool {
	select {
	case b.inbox <- fn:
		return true
	case <-b.stopped:
		return false
	}
}
