package broker

import (
	"context"
	"slices"
	"time"

	"github.com/nerrad567/indihub/internal/protocol"
)

// Stats are cumulative routing counters.
type Stats struct {
	ClientElements          uint64 `json:"client_elements"`
	DriverElements          uint64 `json:"driver_elements"`
	ElementsRouted          uint64 `json:"elements_routed"`
	MessagesQueued          uint64 `json:"messages_queued"`
	BytesQueued             uint64 `json:"bytes_queued"`
	StreamDrops             uint64 `json:"stream_drops"`
	BackpressureDisconnects uint64 `json:"backpressure_disconnects"`
}

// ClientInfo describes one connected client.
type ClientInfo struct {
	ID             string            `json:"id"`
	Addr           string            `json:"addr"`
	Scope          string            `json:"scope"`
	BlobMode       protocol.BlobMode `json:"blob_mode"`
	Interests      []Property        `json:"interests,omitempty"`
	QueuedMessages int               `json:"queued_messages"`
	QueuedBytes    int               `json:"queued_bytes"`
	ConnectedAt    time.Time         `json:"connected_at"`
}

// DriverInfo describes one driver slot.
type DriverInfo struct {
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	State          string     `json:"state"`
	Address        string     `json:"address,omitempty"`
	Devices        []string   `json:"devices,omitempty"`
	Snoops         []Property `json:"snoops,omitempty"`
	Restarts       int        `json:"restarts"`
	RestartIn      float64    `json:"restart_in_seconds,omitempty"`
	QueuedMessages int        `json:"queued_messages"`
	QueuedBytes    int        `json:"queued_bytes"`
	StartedAt      time.Time  `json:"started_at,omitzero"`
}

// Snapshot is a point-in-time copy of the broker's registries.
type Snapshot struct {
	Time    time.Time    `json:"time"`
	Clients []ClientInfo `json:"clients"`
	Drivers []DriverInfo `json:"drivers"`
	Stats   Stats        `json:"stats"`
}

// QueuedBytes sums queued bytes over every client.
func (s Snapshot) QueuedBytes() int {
	n := 0
	for _, c := range s.Clients {
		n += c.QueuedBytes
	}
	return n
}

// DriverStates counts drivers per state name.
func (s Snapshot) DriverStates() map[string]int {
	counts := make(map[string]int)
	for _, d := range s.Drivers {
		counts[d.State]++
	}
	return counts
}

// Snapshot copies the registries on the dispatcher.
func (b *Broker) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := b.postWait(ctx, func() { snap = b.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (b *Broker) snapshot() Snapshot {
	snap := Snapshot{
		Time:    b.now().UTC(),
		Clients: []ClientInfo{},
		Drivers: []DriverInfo{},
		Stats:   b.stats,
	}

	for _, c := range b.clients {
		if c == nil || !c.active {
			continue
		}
		snap.Clients = append(snap.Clients, ClientInfo{
			ID:             c.ID,
			Addr:           c.Addr,
			Scope:          c.scope.String(),
			BlobMode:       c.blobMode,
			Interests:      slices.Clone(c.interests),
			QueuedMessages: c.queue.Len(),
			QueuedBytes:    c.queue.Bytes(),
			ConnectedAt:    c.connected,
		})
	}

	for _, d := range b.drivers {
		if d == nil || d.state == StateInactive {
			continue
		}
		info := DriverInfo{
			Name:      d.Name,
			Kind:      d.kind.String(),
			State:     d.state.String(),
			Devices:   slices.Clone(d.devices),
			Snoops:    slices.Clone(d.snoops),
			Restarts:  d.restarts,
			StartedAt: d.started,
		}
		if d.kind == KindRemote {
			info.Address = d.hostPort()
		}
		if d.queue != nil && d.live() {
			info.QueuedMessages = d.queue.Len()
			info.QueuedBytes = d.queue.Bytes()
		}
		if left, ok := b.restarts.remaining(d); ok {
			info.RestartIn = left.Seconds()
		}
		snap.Drivers = append(snap.Drivers, info)
	}

	return snap
}
