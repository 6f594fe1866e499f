package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/indihub/internal/events"
)

// defaultEventBuffer is the EventPublisher queue size.
const defaultEventBuffer = 256

// Publisher is the subset of Client used by EventPublisher.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventPublisher forwards broker events to indihub/events/<kind>. It is an
// events.Sink: HandleEvent never blocks and drops events when the queue is
// full or the connection is down.
type EventPublisher struct {
	pub    Publisher
	qos    byte
	queue  chan events.Event
	logger Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewEventPublisher creates a publisher writing through pub.
func NewEventPublisher(pub Publisher, qos byte, buffer int) *EventPublisher {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &EventPublisher{
		pub:   pub,
		qos:   qos,
		queue: make(chan events.Event, buffer),
	}
}

// SetLogger sets a logger for publish failures. Call before Run.
func (p *EventPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// HandleEvent queues ev for publishing.
func (p *EventPublisher) HandleEvent(ev events.Event) {
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Published returns how many events reached the broker.
func (p *EventPublisher) Published() uint64 { return p.published.Load() }

// Dropped returns how many events were discarded.
func (p *EventPublisher) Dropped() uint64 { return p.dropped.Load() }

// Run publishes queued events until ctx is cancelled.
func (p *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.queue:
			p.publish(ev)
		}
	}
}

func (p *EventPublisher) publish(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.dropped.Add(1)
		return
	}
	if err := p.pub.Publish(Topics{}.Event(string(ev.Kind)), payload, p.qos, false); err != nil {
		p.dropped.Add(1)
		if p.logger != nil {
			p.logger.Warn("publishing broker event", "kind", ev.Kind, "error", err)
		}
		return
	}
	p.published.Add(1)
}

// PublishStats publishes v as JSON on the retained stats topic.
func (p *EventPublisher) PublishStats(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	return p.pub.Publish(Topics{}.Stats(), payload, p.qos, true)
}
