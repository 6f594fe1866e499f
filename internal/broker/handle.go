package broker

import (
	"strings"

	"github.com/nerrad567/indihub/internal/events"
	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/protocol"
)

// handleClientElement updates c's interests from el and routes it.
func (b *Broker) handleClientElement(c *Client, el *protocol.Element) {
	device, name := el.Device(), el.Name()
	b.stats.ClientElements++

	c.noteRequest(el.Tag, device, name, el.IsBLOB())
	if el.Tag == protocol.TagEnableBLOB {
		c.setBlobMode(device, name, el.Text)
	}

	b.logger.Debug("client element",
		"client", c.ID,
		"tag", el.Tag,
		"device", device,
		"property", name,
	)

	targets := b.routeToDrivers(device, el, nil)
	if strings.HasPrefix(el.Tag, protocol.PrefixSet) {
		targets = b.routeToSnoopers(nil, el, targets)
	}
	if strings.HasPrefix(el.Tag, protocol.PrefixNew) {
		targets = b.routeToClients(c, el, targets)
	}
	b.deliver(el, targets)
}

// handleDriverElement records what el reveals about d and routes it.
func (b *Broker) handleDriverElement(d *Driver, el *protocol.Element) {
	device, name := el.Device(), el.Name()
	b.stats.DriverElements++

	b.logger.Debug("driver element",
		"driver", d.Name,
		"tag", el.Tag,
		"device", device,
		"property", name,
	)

	switch el.Tag {
	case protocol.TagGetProperties:
		if d.addSnoop(device, name) {
			b.logger.Info("driver snooping", "driver", d.Name, "device", device, "property", name)
			b.emit(events.Event{Kind: events.SnoopRegistered, Driver: d.Name, Device: device, Property: name})
		}
		var targets []*message.Queue
		targets = b.routeToChainedServers(d, targets)
		targets = b.routeToDrivers(device, el, targets)
		b.deliver(el, targets)
		return

	case protocol.TagEnableBLOB:
		if sp := d.matchSnoop(device, name); sp != nil {
			if mode, ok := protocol.ParseBlobMode(el.Text); ok {
				sp.BlobMode = mode
			}
		}
		return
	}

	if d.addDevice(device) {
		b.logger.Info("driver serves new device", "driver", d.Name, "device", device)
		b.emit(events.Event{Kind: events.DeviceDiscovered, Driver: d.Name, Device: device})
	}

	if b.dlog != nil {
		if err := b.dlog.record(el, device); err != nil {
			b.logger.Warn("writing driver message log", "driver", d.Name, "error", err)
		}
	}

	targets := b.routeToClients(nil, el, nil)
	targets = b.routeToSnoopers(d, el, targets)
	b.deliver(el, targets)
}
