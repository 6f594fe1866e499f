package message

import (
	"fmt"
	"sync/atomic"
)

// InlineSize is the payload length below which a message counts as a short
// message. Short messages are not included in Queue.Bytes.
const InlineSize = 2048

// Message is an immutable payload shared by every Queue it is pushed onto.
type Message struct {
	pending atomic.Int32
	size    int
	payload atomic.Pointer[[]byte]
	onFree  func()
}

// New creates a Message owning payload. The caller must not modify payload
// afterwards.
func New(payload []byte) *Message {
	m := &Message{size: len(payload)}
	m.payload.Store(&payload)
	return m
}

// NewString creates a Message from a literal string.
func NewString(s string) *Message {
	return New([]byte(s))
}

// OnFree registers fn to run once when the payload is released. It must be
// set before the message is pushed anywhere.
func (m *Message) OnFree(fn func()) {
	m.onFree = fn
}

// Retain adds a consumer reference.
func (m *Message) Retain() {
	if m.payload.Load() == nil {
		panic("message: retain after free")
	}
	m.pending.Add(1)
}

// Release drops a consumer reference and reports whether this call freed the
// payload.
func (m *Message) Release() bool {
	n := m.pending.Add(-1)
	switch {
	case n > 0:
		return false
	case n < 0:
		panic(fmt.Sprintf("message: release below zero (%d)", n))
	}
	if m.payload.Swap(nil) == nil {
		panic("message: double free")
	}
	if m.onFree != nil {
		m.onFree()
	}
	return true
}

// Pending returns the number of queues still holding the message.
func (m *Message) Pending() int {
	return int(m.pending.Load())
}

// Payload returns the message bytes, or nil once freed.
func (m *Message) Payload() []byte {
	p := m.payload.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Freed reports whether the last reference has been released.
func (m *Message) Freed() bool {
	return m.payload.Load() == nil
}

// Len returns the payload length. It stays valid after the payload is freed.
func (m *Message) Len() int {
	return m.size
}

// Inline reports whether the message is a short message.
func (m *Message) Inline() bool {
	return m.size < InlineSize
}
