package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/protocol"
)

// acceptRetryDelay throttles the accept loop after a transient error.
const acceptRetryDelay = 100 * time.Millisecond

// Run starts the configured drivers, accepts clients from ln and
// dispatches until ctx is cancelled or there is nothing left to serve.
// Every connection is closed before Run returns. Run must be called once.
func (b *Broker) Run(ctx context.Context, ln net.Listener) error {
	b.ctx = ctx

	acceptDone := make(chan struct{})
	go b.acceptLoop(ln, acceptDone)

	err := b.startConfiguredDrivers()
	if err == nil {
		err = b.dispatch(ctx)
	}

	close(b.stopped)
	ln.Close() //nolint:errcheck // unblocks the accept loop
	<-acceptDone
	b.closeAll()

	return err
}

func (b *Broker) startConfiguredDrivers() error {
	for _, name := range b.cfg.Drivers {
		d := b.allocateDriver(name)
		if err := b.startDriver(d); err != nil {
			d.state = StateInactive
			return fmt.Errorf("starting driver %s: %w", name, err)
		}
	}
	return nil
}

func (b *Broker) dispatch(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()
	last := b.now()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broker stopping")
			return nil
		case fn := <-b.inbox:
			fn()
		case <-ticker.C:
			now := b.now()
			b.serviceRestartList(now.Sub(last))
			last = now
		}

		if b.exitErr != nil {
			return b.exitErr
		}
	}
}

func (b *Broker) closeAll() {
	for _, c := range b.clients {
		if c != nil {
			b.shutdownClient(c, "broker stopping")
		}
	}
	for _, d := range b.drivers {
		if d != nil {
			b.shutdownDriver(d, false, "broker stopping")
		}
	}
}

func (b *Broker) acceptLoop(ln net.Listener, done chan<- struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			b.logger.Warn("accept failed", "error", err)
			select {
			case <-b.stopped:
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		if !b.post(func() { b.clientAccepted(conn) }) {
			conn.Close() //nolint:errcheck // broker is gone
			return
		}
	}
}

func (b *Broker) clientAccepted(conn net.Conn) {
	c := b.addClient(conn, conn.RemoteAddr().String())

	go b.readClient(c)
	go func() {
		if err := b.pump(conn, c.queue); err != nil {
			b.post(func() { b.shutdownClient(c, "write failed", "error", err) })
		}
	}()
}

func (b *Broker) readClient(c *Client) {
	dec := protocol.NewDecoder(c.conn)
	for {
		el, err := dec.Next()
		if err != nil {
			reason := readFailureReason(err)
			b.post(func() { b.shutdownClient(c, reason, "error", err) })
			return
		}
		if !b.post(func() {
			if c.active {
				b.handleClientElement(c, el)
			}
		}) {
			return
		}
	}
}

func (b *Broker) readDriver(d *Driver, gen uint64, conn io.Reader) {
	dec := protocol.NewDecoder(conn)
	for {
		el, err := dec.Next()
		if err != nil {
			reason := readFailureReason(err)
			b.post(func() { b.driverFailed(d, gen, reason, err) })
			return
		}
		if !b.post(func() {
			if d.gen == gen && d.state == StateActive {
				b.handleDriverElement(d, el)
			}
		}) {
			return
		}
	}
}

func readFailureReason(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "end of stream"
	case errors.Is(err, protocol.ErrMalformed):
		return "protocol error"
	default:
		return "read failed"
	}
}

// pump writes queued messages to w in chunks of at most MaxWriteSize,
// releasing each one once it is fully written. It returns nil when the
// queue is closed and the write error otherwise.
func (b *Broker) pump(w io.Writer, q *message.Queue) error {
	sent := 0
	for {
		m, ok := q.Wait()
		if !ok {
			return nil
		}
		p := m.Payload()
		if p == nil {
			// Drained underneath us; the next Wait sees the close.
			continue
		}

		n := min(len(p)-sent, MaxWriteSize)
		nw, err := w.Write(p[sent : sent+n])
		if err != nil {
			if q.Closed() {
				return nil
			}
			return err
		}
		sent += nw
		if sent >= len(p) {
			q.Complete(m)
			sent = 0
		}
	}
}

// postWait runs fn on the dispatcher and waits for it to finish.
func (b *Broker) postWait(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}

	select {
	case b.inbox <- wrapped:
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
