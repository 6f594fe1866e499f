// Package metrics exposes broker state and lifecycle events to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/indihub/internal/broker"
	"github.com/nerrad567/indihub/internal/events"
)

const namespace = "indihub"

// driverStates are the label values always present on the drivers gauge.
var driverStates = []string{"starting", "active", "pending_restart", "retired"}

// Metrics holds the hub's Prometheus collectors. Gauges follow the latest
// Observe call; routing counters mirror the broker's cumulative Stats.
type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec // by kind
	clients        prometheus.Gauge
	drivers        *prometheus.GaugeVec // by state
	driverRestarts *prometheus.GaugeVec // by driver
	queuedBytes    prometheus.Gauge

	mu    sync.RWMutex
	stats broker.Stats
}

// New creates Metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Broker lifecycle events by kind",
		}, []string{"kind"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Connected clients",
		}),
		drivers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drivers",
			Help:      "Drivers by lifecycle state",
		}, []string{"state"}),
		driverRestarts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "restarts",
			Help:      "Restarts of the current driver incarnation",
		}, []string{"driver"}),
		queuedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_queued_bytes",
			Help:      "Bytes queued for clients, excluding inline messages",
		}),
	}

	m.registry.MustRegister(
		m.events,
		m.clients,
		m.drivers,
		m.driverRestarts,
		m.queuedBytes,
		m.statCounter("client_elements_total", "Elements read from clients", func(s broker.Stats) uint64 { return s.ClientElements }),
		m.statCounter("driver_elements_total", "Elements read from drivers", func(s broker.Stats) uint64 { return s.DriverElements }),
		m.statCounter("elements_routed_total", "Element deliveries to clients and drivers", func(s broker.Stats) uint64 { return s.ElementsRouted }),
		m.statCounter("messages_queued_total", "Messages pushed onto connection queues", func(s broker.Stats) uint64 { return s.MessagesQueued }),
		m.statCounter("bytes_queued_total", "Bytes pushed onto connection queues", func(s broker.Stats) uint64 { return s.BytesQueued }),
		m.statCounter("stream_drops_total", "Streamed BLOB frames dropped for slow clients", func(s broker.Stats) uint64 { return s.StreamDrops }),
		m.statCounter("backpressure_disconnects_total", "Clients disconnected for exceeding the queue limit", func(s broker.Stats) uint64 { return s.BackpressureDisconnects }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, kind := range events.Kinds {
		m.events.WithLabelValues(string(kind))
	}
	for _, state := range driverStates {
		m.drivers.WithLabelValues(state)
	}
	return m
}

func (m *Metrics) statCounter(name, help string, get func(broker.Stats) uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return float64(get(m.stats))
	})
}

// HandleEvent counts ev.
func (m *Metrics) HandleEvent(ev events.Event) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
}

// Observe updates gauges and counters from snap.
func (m *Metrics) Observe(snap broker.Snapshot) {
	m.clients.Set(float64(len(snap.Clients)))
	m.queuedBytes.Set(float64(snap.QueuedBytes()))

	counts := snap.DriverStates()
	for _, state := range driverStates {
		m.drivers.WithLabelValues(state).Set(float64(counts[state]))
	}

	m.driverRestarts.Reset()
	for _, d := range snap.Drivers {
		m.driverRestarts.WithLabelValues(d.Name).Set(float64(d.Restarts))
	}

	m.mu.Lock()
	m.stats = snap.Stats
	m.mu.Unlock()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
