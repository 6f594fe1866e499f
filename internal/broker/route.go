package broker

import (
	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/protocol"
)

// routeToClients appends the queues of every client other than src that
// should receive el. Clients found over the queue limit are disconnected
// instead.
func (b *Broker) routeToClients(src *Client, el *protocol.Element, dst []*message.Queue) []*message.Queue {
	return b.fanToClients(src, el, false, dst)
}

// routeRemovalToClients is routeToClients for a device-wide removal: every
// client watching any property of el's device receives it.
func (b *Broker) routeRemovalToClients(el *protocol.Element, dst []*message.Queue) []*message.Queue {
	return b.fanToClients(nil, el, true, dst)
}

func (b *Broker) fanToClients(src *Client, el *protocol.Element, wholeDevice bool, dst []*message.Queue) []*message.Queue {
	device, name := el.Device(), el.Name()
	isBlob := el.IsBLOB()

	for _, c := range b.clients {
		if c == nil || !c.active || c == src {
			continue
		}
		if wholeDevice {
			if !c.matchesDevice(device) {
				continue
			}
		} else if !c.matchesInterest(device, name) {
			continue
		}
		if isBlob {
			if c.blobModeFor(device, name) == protocol.BlobNever {
				continue
			}
		} else if c.blobMode == protocol.BlobOnly {
			continue
		}

		queued := c.queue.Bytes()
		if isBlob && b.cfg.MaxStreamBytes > 0 && queued > b.cfg.MaxStreamBytes && el.IsStreamBLOB() {
			b.stats.StreamDrops++
			b.logger.Debug("dropping stream BLOB",
				"client", c.ID,
				"device", device,
				"property", name,
				"queued_bytes", queued,
			)
			continue
		}
		if queued > b.cfg.MaxQueueBytes {
			b.stats.BackpressureDisconnects++
			b.shutdownClient(c, "queue limit exceeded", "queued_bytes", queued)
			continue
		}

		dst = append(dst, c.queue)
	}
	return dst
}

// routeToChainedServers appends the queues of clients forwarding for a
// device that d serves, and of every chained broker.
func (b *Broker) routeToChainedServers(d *Driver, dst []*message.Queue) []*message.Queue {
	for _, c := range b.clients {
		if c == nil || !c.active {
			continue
		}

		wanted := false
		switch c.scope {
		case ScopeChained:
			wanted = true
		case ScopeListed:
			for i := range c.interests {
				if d.serves(c.interests[i].Device) {
					wanted = true
					break
				}
			}
		}
		if !wanted {
			continue
		}

		if queued := c.queue.Bytes(); queued > b.cfg.MaxQueueBytes {
			b.stats.BackpressureDisconnects++
			b.shutdownClient(c, "queue limit exceeded", "queued_bytes", queued)
			continue
		}
		dst = append(dst, c.queue)
	}
	return dst
}

// routeToDrivers appends the queues of live drivers serving device, or of
// all live drivers when device is empty or "*". Unscoped traffic reaches
// each remote host:port once. enableBLOB only goes to remote drivers.
func (b *Broker) routeToDrivers(device string, el *protocol.Element, dst []*message.Queue) []*message.Queue {
	var seenRemote map[string]bool

	for _, d := range b.drivers {
		if d == nil || !d.live() {
			continue
		}
		if device != "" && device != "*" && !d.serves(device) {
			continue
		}
		if d.kind == KindRemote {
			hp := d.hostPort()
			if device == "" && seenRemote[hp] {
				continue
			}
			if seenRemote == nil {
				seenRemote = make(map[string]bool)
			}
			seenRemote[hp] = true
		} else if el.Tag == protocol.TagEnableBLOB {
			continue
		}

		dst = append(dst, d.queue)
	}
	return dst
}

// routeToSnoopers appends the queues of live drivers snooping el's
// property, honouring each snoop's BLOB mode. Two remote drivers behind
// the same host:port already share traffic upstream, so one does not
// feed the other.
func (b *Broker) routeToSnoopers(src *Driver, el *protocol.Element, dst []*message.Queue) []*message.Queue {
	device, name := el.Device(), el.Name()
	isBlob := el.IsBLOB()

	for _, d := range b.drivers {
		if d == nil || !d.live() {
			continue
		}
		sp := d.matchSnoop(device, name)
		if sp == nil {
			continue
		}
		if (isBlob && sp.BlobMode == protocol.BlobNever) || (!isBlob && sp.BlobMode == protocol.BlobOnly) {
			continue
		}
		if src != nil && src.kind == KindRemote && d.kind == KindRemote && src.hostPort() == d.hostPort() {
			continue
		}

		dst = append(dst, d.queue)
	}
	return dst
}

// deliver serialises el once and pushes the shared message onto every
// target queue. It holds its own reference until every push is done, so a
// writer finishing early cannot free the message mid fan-out.
func (b *Broker) deliver(el *protocol.Element, targets []*message.Queue) {
	if len(targets) == 0 {
		return
	}
	m := message.New(el.Marshal())
	m.Retain()
	for _, q := range targets {
		if q.Push(m) {
			b.stats.MessagesQueued++
			b.stats.BytesQueued += uint64(m.Len())
		}
	}
	m.Release()
	b.stats.ElementsRouted++
}
