// Package events defines the broker lifecycle events that feed the audit
// store, MQTT, WebSocket subscribers and metrics.
package events

import (
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	ClientConnected        Kind = "client.connected"
	ClientDisconnected     Kind = "client.disconnected"
	DriverStarted          Kind = "driver.started"
	DriverConnected        Kind = "driver.connected"
	DriverStopped          Kind = "driver.stopped"
	DriverRestartScheduled Kind = "driver.restart_scheduled"
	DriverRetired          Kind = "driver.retired"
	DeviceDiscovered       Kind = "device.discovered"
	SnoopRegistered        Kind = "snoop.registered"
	BrokerTerminated       Kind = "broker.terminated"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	ClientConnected,
	ClientDisconnected,
	DriverStarted,
	DriverConnected,
	DriverStopped,
	DriverRestartScheduled,
	DriverRetired,
	DeviceDiscovered,
	SnoopRegistered,
	BrokerTerminated,
}

// Event is a single broker lifecycle event.
type Event struct {
	Kind     Kind      `json:"kind"`
	Time     time.Time `json:"time"`
	Client   string    `json:"client,omitempty"`
	Driver   string    `json:"driver,omitempty"`
	Device   string    `json:"device,omitempty"`
	Property string    `json:"property,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Restarts int       `json:"restarts,omitempty"`
	Delay    float64   `json:"delay_seconds,omitempty"`
}

// Sink receives events. HandleEvent is called from the broker dispatcher
// and must not block.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// HandleEvent calls f(ev).
func (f SinkFunc) HandleEvent(ev Event) { f(ev) }

// Fanout delivers each event to every registered sink in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// Add registers a sink. Nil sinks are ignored.
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// HandleEvent implements Sink.
func (f *Fanout) HandleEvent(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.HandleEvent(ev)
	}
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})
