// Package telemetry periodically snapshots the broker and hands the result
// to the metrics registry, InfluxDB and the MQTT stats topic.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/indihub/internal/broker"
)

// DefaultInterval is used when NewCollector is given a non-positive interval.
const DefaultInterval = 10 * time.Second

// snapshotTimeout bounds one Snapshot call on a busy dispatcher.
const snapshotTimeout = 5 * time.Second

// Source supplies snapshots. *broker.Broker implements it.
type Source interface {
	Snapshot(ctx context.Context) (broker.Snapshot, error)
}

// Observer receives every snapshot the collector takes.
type Observer interface {
	Observe(broker.Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(broker.Snapshot)

// Observe calls f(snap).
func (f ObserverFunc) Observe(snap broker.Snapshot) { f(snap) }

// Logger is the logging interface used by the collector.
type Logger interface {
	Warn(msg string, args ...any)
}

// Collector polls a Source on a fixed interval.
type Collector struct {
	source    Source
	interval  time.Duration
	observers []Observer
	logger    Logger
}

// NewCollector creates a collector polling source every interval.
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Collector{source: source, interval: interval}
}

// SetLogger sets the logger for snapshot failures.
func (c *Collector) SetLogger(logger Logger) {
	c.logger = logger
}

// Add registers an observer. Call before Run.
func (c *Collector) Add(o Observer) {
	c.observers = append(c.observers, o)
}

// Run collects once immediately and then on every tick until ctx is
// cancelled or the broker stops.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.CollectOnce(ctx); err != nil {
			if errors.Is(err, broker.ErrStopped) || ctx.Err() != nil {
				return nil
			}
			if c.logger != nil {
				c.logger.Warn("broker snapshot failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CollectOnce takes one snapshot and passes it to every observer.
func (c *Collector) CollectOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, o := range c.observers {
		o.Observe(snap)
	}
	return nil
}
