package broker

import (
	"context"

	"github.com/nerrad567/indihub/internal/control"
	"github.com/nerrad567/indihub/internal/transport"
)

// Submit queues a control command without waiting for it. Failures are
// logged.
func (b *Broker) Submit(cmd control.Command) {
	b.post(func() {
		if err := b.execute(cmd); err != nil {
			b.logger.Warn("control command failed", "command", cmd.String(), "error", err)
		}
	})
}

// Execute runs a control command on the dispatcher and returns its result.
func (b *Broker) Execute(ctx context.Context, cmd control.Command) error {
	var result error
	if err := b.postWait(ctx, func() { result = b.execute(cmd) }); err != nil {
		return err
	}
	return result
}

func (b *Broker) execute(cmd control.Command) error {
	switch cmd.Verb {
	case control.VerbStart:
		return b.startCommand(cmd)
	case control.VerbStop:
		return b.stopCommand(cmd)
	default:
		return control.ErrUnknownCommand
	}
}

// startCommand starts a driver. A running driver is left alone; one
// waiting to restart is started immediately.
func (b *Broker) startCommand(cmd control.Command) error {
	d := b.findDriver(cmd.Driver)
	if d != nil {
		if !b.restarts.remove(d) {
			b.logger.Info("driver already started", "driver", cmd.Driver)
			return nil
		}
		b.logger.Info("starting driver ahead of its restart delay", "driver", cmd.Driver)
	} else {
		d = b.allocateDriver(cmd.Driver)
	}

	if !cmd.Remote() {
		d.env = transport.LocalSpec{
			Device:   cmd.Name,
			Config:   cmd.Config,
			Skeleton: cmd.Skeleton,
			Prefix:   cmd.Prefix,
		}
	}

	if err := b.startDriver(d); err != nil {
		d.state = StateInactive
		return err
	}
	return nil
}

// stopCommand shuts down the first live driver with the given name, or the
// one serving cmd.Name if set, without restart. A driver waiting to
// restart serves no devices, so the device filter does not apply to it.
func (b *Broker) stopCommand(cmd control.Command) error {
	for _, d := range b.drivers {
		if d == nil || d.Name != cmd.Driver || !d.alive() {
			continue
		}
		if cmd.Name != "" && d.state != StatePendingRestart && !d.serves(cmd.Name) {
			continue
		}
		b.shutdownDriver(d, false, "stop command")
		return nil
	}
	return ErrDriverNotFound
}
