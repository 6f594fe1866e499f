package broker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/indihub/internal/events"
	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/protocol"
)

// addClient registers a new connection in the first free slot.
func (b *Broker) addClient(conn io.ReadWriteCloser, addr string) *Client {
	c := &Client{
		ID:        uuid.NewString(),
		Addr:      addr,
		conn:      conn,
		active:    true,
		connected: b.now(),
		queue:     message.NewQueue(),
	}

	slot := -1
	for i, old := range b.clients {
		if old == nil || !old.active {
			slot = i
			break
		}
	}
	if slot < 0 {
		b.clients = append(b.clients, c)
	} else {
		b.clients[slot] = c
	}

	b.logger.Info("client connected", "client", c.ID, "addr", addr)
	b.emit(events.Event{Kind: events.ClientConnected, Client: c.ID, Reason: addr})
	return c
}

// shutdownClient closes the client's transport and releases its queue.
func (b *Broker) shutdownClient(c *Client, reason string, args ...any) {
	if !c.active {
		return
	}
	c.active = false
	c.queue.Close()
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // connection is being abandoned
	}

	b.logger.Info("client disconnected", append([]any{"client", c.ID, "reason", reason}, args...)...)
	b.emit(events.Event{Kind: events.ClientDisconnected, Client: c.ID, Reason: reason})
}

// allocateDriver reuses an inactive slot or grows the registry.
func (b *Broker) allocateDriver(name string) *Driver {
	d := &Driver{Name: name}
	for i, old := range b.drivers {
		if old == nil || old.state == StateInactive {
			b.drivers[i] = d
			return d
		}
	}
	b.drivers = append(b.drivers, d)
	return d
}

// findDriver returns the driver with name that is not inactive or retired.
func (b *Broker) findDriver(name string) *Driver {
	for _, d := range b.drivers {
		if d != nil && d.Name == name && d.alive() {
			return d
		}
	}
	return nil
}

// startDriver launches d as a local or remote driver according to its
// name.
func (b *Broker) startDriver(d *Driver) error {
	if isRemoteSpec(d.Name) {
		return b.startRemote(d)
	}
	b.startLocal(d)
	return nil
}

func (b *Broker) startLocal(d *Driver) {
	d.kind = KindLocal
	d.host, d.port = "localhost", -1
	b.reset(d)

	d.queue.Push(message.New(protocol.GetProperties("").Marshal()))

	spec := d.env
	spec.Name = d.Name
	b.logger.Info("starting local driver", "driver", d.Name, "restarts", d.restarts)
	b.emit(events.Event{Kind: events.DriverStarted, Driver: d.Name, Restarts: d.restarts})

	b.openDriver(d, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return b.dialer.OpenLocal(ctx, spec)
	})
}

func (b *Broker) startRemote(d *Driver) error {
	device, host, port, err := parseRemoteSpec(d.Name)
	if err != nil {
		return err
	}

	d.kind = KindRemote
	d.host, d.port = host, port
	d.remoteDevice = device
	b.reset(d)
	d.addDevice(device)

	switch {
	case device != "":
		d.queue.Push(message.New(protocol.GetProperties(device).Marshal()))
	case b.wildcardAnnounced(d):
		b.logger.Debug("suppressing duplicate wildcard announce", "driver", d.Name, "addr", d.hostPort())
	default:
		d.queue.Push(message.New(protocol.GetProperties("*").Marshal()))
	}

	addr := d.hostPort()
	b.logger.Info("connecting remote driver", "driver", d.Name, "addr", addr, "restarts", d.restarts)
	b.emit(events.Event{Kind: events.DriverStarted, Driver: d.Name, Device: device, Restarts: d.restarts})

	b.openDriver(d, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return b.dialer.DialRemote(ctx, addr)
	})
	return nil
}

// reset gives d a fresh queue and empty device and snoop lists and moves
// it to StateStarting.
func (b *Broker) reset(d *Driver) {
	d.gen++
	d.queue = message.NewQueue()
	d.devices = nil
	d.snoops = nil
	d.conn = nil
	d.state = StateStarting
	d.started = b.now()
}

// wildcardAnnounced reports whether another live remote driver already
// sent an unscoped announce to d's host:port.
func (b *Broker) wildcardAnnounced(d *Driver) bool {
	for _, other := range b.drivers {
		if other == nil || other == d || !other.live() || other.kind != KindRemote {
			continue
		}
		if other.remoteDevice == "" && other.hostPort() == d.hostPort() {
			return true
		}
	}
	return false
}

// openDriver opens the transport off the dispatcher and reports back.
func (b *Broker) openDriver(d *Driver, open func(context.Context) (io.ReadWriteCloser, error)) {
	gen := d.gen
	ctx := b.ctx
	go func() {
		conn, err := open(ctx)
		posted := b.post(func() { b.driverOpened(d, gen, conn, err) })
		if !posted && conn != nil {
			conn.Close() //nolint:errcheck // broker is gone
		}
	}()
}

func (b *Broker) driverOpened(d *Driver, gen uint64, conn io.ReadWriteCloser, err error) {
	if d.gen != gen || d.state != StateStarting {
		if conn != nil {
			go conn.Close() //nolint:errcheck // stale transport
		}
		return
	}
	if err != nil {
		b.logger.Warn("driver transport failed to open", "driver", d.Name, "error", err)
		b.shutdownDriver(d, true, fmt.Sprintf("open failed: %v", err))
		return
	}

	d.conn = conn
	d.state = StateActive
	b.logger.Info("driver connected", "driver", d.Name, "kind", d.kind.String())
	b.emit(events.Event{Kind: events.DriverConnected, Driver: d.Name})

	go b.readDriver(d, gen, conn)
	go func() {
		if err := b.pump(conn, d.queue); err != nil {
			b.post(func() { b.driverFailed(d, gen, "write failed", err) })
		}
	}()
}

// driverFailed handles a transport error from driver generation gen.
func (b *Broker) driverFailed(d *Driver, gen uint64, reason string, err error) {
	if d.gen != gen || !d.live() {
		return
	}
	b.logger.Warn("driver transport failed", "driver", d.Name, "reason", reason, "error", err)
	b.shutdownDriver(d, true, fmt.Sprintf("%s: %v", reason, err))
}

// shutdownDriver tears d down. With restart it is scheduled for relaunch
// unless it has used up its restarts, in which case it is retired.
func (b *Broker) shutdownDriver(d *Driver, restart bool, reason string) {
	switch d.state {
	case StateInactive, StateRetired:
		return
	case StatePendingRestart:
		if restart {
			return
		}
		b.restarts.remove(d)
		d.state = StateInactive
		b.logger.Info("driver stopped", "driver", d.Name, "reason", reason)
		b.emit(events.Event{Kind: events.DriverStopped, Driver: d.Name, Reason: reason})
		return
	}

	for _, dev := range d.devices {
		el := protocol.DelProperty(dev)
		b.deliver(el, b.routeRemovalToClients(el, nil))
	}

	if d.conn != nil {
		go d.conn.Close() //nolint:errcheck // local drivers may take a while to stop
		d.conn = nil
	}
	d.queue.Close()
	d.devices = nil
	d.snoops = nil
	d.gen++

	if !restart {
		d.state = StateInactive
		b.logger.Info("driver stopped", "driver", d.Name, "reason", reason)
		b.emit(events.Event{Kind: events.DriverStopped, Driver: d.Name, Reason: reason})
		return
	}

	if b.cfg.MaxRestarts > 0 && d.restarts >= b.cfg.MaxRestarts {
		d.state = StateRetired
		b.logger.Error("driver reached restart limit, retiring",
			"driver", d.Name,
			"restarts", d.restarts,
			"reason", reason,
		)
		b.emit(events.Event{Kind: events.DriverRetired, Driver: d.Name, Restarts: d.restarts, Reason: reason})

		if b.aliveDrivers() == 0 && !b.cfg.ControlChannel {
			b.terminate(ErrNothingToServe)
		}
		return
	}

	d.restarts++
	d.state = StatePendingRestart
	b.restarts.add(d, b.cfg.RestartDelay)
	b.logger.Warn("driver scheduled for restart",
		"driver", d.Name,
		"restarts", d.restarts,
		"delay", b.cfg.RestartDelay,
		"reason", reason,
	)
	b.emit(events.Event{
		Kind:     events.DriverRestartScheduled,
		Driver:   d.Name,
		Restarts: d.restarts,
		Delay:    b.cfg.RestartDelay.Seconds(),
		Reason:   reason,
	})
}

func (b *Broker) aliveDrivers() int {
	n := 0
	for _, d := range b.drivers {
		if d != nil && d.alive() {
			n++
		}
	}
	return n
}

// serviceRestartList counts down pending restarts by elapsed and relaunches
// those that are due.
func (b *Broker) serviceRestartList(elapsed time.Duration) {
	for _, d := range b.restarts.tick(elapsed) {
		if d.state != StatePendingRestart {
			continue
		}
		b.logger.Info("restarting driver", "driver", d.Name, "restarts", d.restarts)
		if err := b.startDriver(d); err != nil {
			b.logger.Error("driver restart failed", "driver", d.Name, "error", err)
			d.state = StateInactive
		}
	}
}

func (b *Broker) terminate(err error) {
	if b.exitErr != nil {
		return
	}
	b.exitErr = err
	b.logger.Error("broker terminating", "error", err)
	b.emit(events.Event{Kind: events.BrokerTerminated, Reason: err.Error()})
}
