package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/indihub/internal/events"
)

const (
	// DefaultBuffer is the Recorder's channel size.
	DefaultBuffer = 1024

	pruneInterval = time.Hour
	// writeTimeout bounds each database write so a locked database
	// cannot stall the recorder forever.
	writeTimeout = 5 * time.Second
)

// Logger defines the logging interface for the recorder.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Recorder persists events asynchronously.
type Recorder struct {
	repo      *SQLiteRepository
	queue     chan events.Event
	retention time.Duration
	logger    Logger
	dropped   atomic.Uint64
	written   atomic.Uint64
}

// NewRecorder creates a Recorder writing to repo. Events older than
// retention are pruned hourly; zero keeps everything.
func NewRecorder(repo *SQLiteRepository, buffer int, retention time.Duration) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		repo:      repo,
		queue:     make(chan events.Event, buffer),
		retention: retention,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// HandleEvent queues ev for writing. It drops ev when the queue is full.
func (r *Recorder) HandleEvent(ev events.Event) {
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many events were stored.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Run writes queued events until ctx is cancelled, then flushes what is
// already queued.
func (r *Recorder) Run(ctx context.Context) error {
	var prune <-chan time.Time
	if r.retention > 0 {
		t := time.NewTicker(pruneInterval)
		defer t.Stop()
		prune = t.C
		r.prune(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case ev := <-r.queue:
			r.record(ctx, ev)
		case <-prune:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) flush() {
	ctx := context.Background()
	for {
		select {
		case ev := <-r.queue:
			r.record(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev events.Event) {
	// A dequeued event is written even when shutdown has begun.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if _, err := r.repo.Create(ctx, ev); err != nil {
		r.logger.Warn("recording broker event", "kind", ev.Kind, "error", err)
		return
	}
	r.written.Add(1)

	if ev.Driver == "" {
		return
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var err error
	switch ev.Kind {
	case events.DriverConnected:
		_, err = r.repo.OpenSession(ctx, ev.Driver, at)
	case events.DriverStopped:
		_, err = r.repo.CloseSessions(ctx, ev.Driver, at, "stopped", ev.Restarts)
	case events.DriverRestartScheduled:
		_, err = r.repo.CloseSessions(ctx, ev.Driver, at, "failed", ev.Restarts)
	case events.DriverRetired:
		_, err = r.repo.CloseSessions(ctx, ev.Driver, at, "retired", ev.Restarts)
	}
	if err != nil {
		r.logger.Warn("recording driver session", "driver", ev.Driver, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	n, err := r.repo.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Warn("pruning broker events", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned broker events", "deleted", n, "retention", r.retention)
	}
}
