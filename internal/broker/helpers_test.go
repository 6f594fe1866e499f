package broker

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/indihub/internal/events"
	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/protocol"
	"github.com/nerrad567/indihub/internal/transport"
)

// pipeDialer hands the broker one end of a net.Pipe per open and keeps the
// other end for the test to play the driver.
type pipeDialer struct {
	mu      sync.Mutex
	fail    error
	locals  []transport.LocalSpec
	remotes []string
	peers   chan net.Conn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{peers: make(chan net.Conn, 16)}
}

func (p *pipeDialer) OpenLocal(_ context.Context, spec transport.LocalSpec) (io.ReadWriteCloser, error) {
	p.mu.Lock()
	p.locals = append(p.locals, spec)
	fail := p.fail
	p.mu.Unlock()
	return p.open(fail)
}

func (p *pipeDialer) DialRemote(_ context.Context, addr string) (io.ReadWriteCloser, error) {
	p.mu.Lock()
	p.remotes = append(p.remotes, addr)
	fail := p.fail
	p.mu.Unlock()
	return p.open(fail)
}

func (p *pipeDialer) open(fail error) (io.ReadWriteCloser, error) {
	if fail != nil {
		return nil, fail
	}
	ours, theirs := net.Pipe()
	p.peers <- theirs
	return ours, nil
}

func (p *pipeDialer) setFail(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

func (p *pipeDialer) localSpecs() []transport.LocalSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transport.LocalSpec(nil), p.locals...)
}

// eventLog records emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) HandleEvent(ev events.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) has(k events.Kind) bool {
	for _, got := range l.kinds() {
		if got == k {
			return true
		}
	}
	return false
}

func newTestBroker(t *testing.T, mutate func(*Config)) (*Broker, *pipeDialer, *eventLog) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	dialer := newPipeDialer()
	b := New(cfg, dialer)
	log := &eventLog{}
	b.SetEventSink(log)
	return b, dialer, log
}

// addTestClient registers a client with no transport.
func addTestClient(b *Broker) *Client {
	return b.addClient(nil, "test")
}

// addActiveDriver registers a live driver without a transport.
func addActiveDriver(b *Broker, name string, kind DriverKind, devices ...string) *Driver {
	d := b.allocateDriver(name)
	d.kind = kind
	d.host, d.port = "localhost", -1
	if kind == KindRemote {
		d.host, d.port = "upstream.example", DefaultPort
	}
	d.queue = message.NewQueue()
	d.state = StateActive
	for _, dev := range devices {
		d.addDevice(dev)
	}
	return d
}

// drain pops and decodes every queued message.
func drain(t *testing.T, q *message.Queue) []*protocol.Element {
	t.Helper()
	var out []*protocol.Element
	for m := q.PopHead(); m != nil; m = q.PopHead() {
		el, err := protocol.NewDecoder(bytes.NewReader(m.Payload())).Next()
		if err != nil {
			t.Fatalf("decoding queued message %q: %v", m.Payload(), err)
		}
		out = append(out, el)
		m.Release()
	}
	return out
}

func tags(els []*protocol.Element) []string {
	out := make([]string, 0, len(els))
	for _, el := range els {
		out = append(out, el.Tag)
	}
	return out
}

// runNext executes the next posted dispatcher operation.
func runNext(t *testing.T, b *Broker) {
	t.Helper()
	select {
	case fn := <-b.inbox:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatcher operation was posted")
	}
}

func readElement(t *testing.T, conn net.Conn, dec *protocol.Decoder) *protocol.Element {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck // test deadline
	el, err := dec.Next()
	if err != nil {
		t.Fatalf("reading element: %v", err)
	}
	return el
}

func el(tag string, kv ...string) *protocol.Element {
	return protocol.New(tag, kv...)
}

func blob(device, name, format string, size int) *protocol.Element {
	e := protocol.New(protocol.TagSetBLOBVector, "device", device, "name", name)
	one := protocol.New(protocol.TagOneBLOB, "name", name, "format", format)
	one.Text = string(bytes.Repeat([]byte("A"), size))
	e.Children = []*protocol.Element{one}
	return e
}
