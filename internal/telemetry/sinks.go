package telemetry

import (
	"time"

	"github.com/nerrad567/indihub/internal/broker"
)

// StatsWriter is the subset of the InfluxDB client used by InfluxObserver.
type StatsWriter interface {
	WriteBrokerStats(fields map[string]any, at time.Time)
	WriteDriverStats(driver, state string, fields map[string]any, at time.Time)
}

// InfluxObserver writes one broker point and one point per driver.
func InfluxObserver(w StatsWriter) Observer {
	return ObserverFunc(func(snap broker.Snapshot) {
		w.WriteBrokerStats(BrokerFields(snap), snap.Time)
		for _, d := range snap.Drivers {
			w.WriteDriverStats(d.Name, d.State, map[string]any{
				"restarts":        d.Restarts,
				"devices":         len(d.Devices),
				"queued_messages": d.QueuedMessages,
				"queued_bytes":    d.QueuedBytes,
			}, snap.Time)
		}
	})
}

// BrokerFields flattens the broker-wide numbers of snap.
func BrokerFields(snap broker.Snapshot) map[string]any {
	s := snap.Stats
	return map[string]any{
		"clients":                  len(snap.Clients),
		"drivers":                  len(snap.Drivers),
		"queued_bytes":             snap.QueuedBytes(),
		"client_elements":          s.ClientElements,
		"driver_elements":          s.DriverElements,
		"elements_routed":          s.ElementsRouted,
		"messages_queued":          s.MessagesQueued,
		"bytes_queued":             s.BytesQueued,
		"stream_drops":             s.StreamDrops,
		"backpressure_disconnects": s.BackpressureDisconnects,
	}
}

// Summary is the retained stats message published over MQTT.
type Summary struct {
	Time        time.Time      `json:"time"`
	Clients     int            `json:"clients"`
	Drivers     map[string]int `json:"drivers"`
	QueuedBytes int            `json:"queued_bytes"`
	Stats       broker.Stats   `json:"stats"`
}

// Summarize reduces snap to a Summary.
func Summarize(snap broker.Snapshot) Summary {
	return Summary{
		Time:        snap.Time,
		Clients:     len(snap.Clients),
		Drivers:     snap.DriverStates(),
		QueuedBytes: snap.QueuedBytes(),
		Stats:       snap.Stats,
	}
}

// StatsPublisher is the subset of mqtt.EventPublisher used by
// StatsObserver.
type StatsPublisher interface {
	PublishStats(v any) error
}

// StatsObserver publishes a Summary of every snapshot. Publish failures
// go to logger, which may be nil.
func StatsObserver(p StatsPublisher, logger Logger) Observer {
	return ObserverFunc(func(snap broker.Snapshot) {
		if err := p.PublishStats(Summarize(snap)); err != nil && logger != nil {
			logger.Warn("publishing stats", "error", err)
		}
	})
}
