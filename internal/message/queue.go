package message

import "sync"

// Queue is an ordered per-endpoint list of messages awaiting transmission.
type Queue struct {
	mu     sync.Mutex
	msgs   []*Message
	bytes  int
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// NewQueue returns an empty, open Queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends m and takes a reference to it. Pushing onto a closed queue
// is a no-op and reports false.
func (q *Queue) Push(m *Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	m.Retain()
	q.msgs = append(q.msgs, m)
	if !m.Inline() {
		q.bytes += m.Len()
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Peek returns the head message without removing it, or nil.
func (q *Queue) Peek() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.msgs) == 0 {
		return nil
	}
	return q.msgs[0]
}

// PopHead removes and returns the head message without touching its
// reference count. The caller takes over the queue's reference.
func (q *Queue) PopHead() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.msgs) == 0 {
		return nil
	}
	m := q.msgs[0]
	q.msgs[0] = nil
	q.msgs = q.msgs[1:]
	if !m.Inline() {
		q.bytes -= m.Len()
	}
	return m
}

// Complete pops m if it is still the head and releases the queue's
// reference. It reports false if the queue was drained in the meantime, in
// which case the drain already released it.
func (q *Queue) Complete(m *Message) bool {
	q.mu.Lock()
	if q.closed || len(q.msgs) == 0 || q.msgs[0] != m {
		q.mu.Unlock()
		return false
	}
	q.msgs[0] = nil
	q.msgs = q.msgs[1:]
	if !m.Inline() {
		q.bytes -= m.Len()
	}
	q.mu.Unlock()

	m.Release()
	return true
}

// Wait blocks until a head message is available or the queue is closed.
// The second return value is false once the queue is closed.
func (q *Queue) Wait() (*Message, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.msgs) > 0 {
			m := q.msgs[0]
			q.mu.Unlock()
			return m, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Bytes returns the total size of queued messages, not counting short
// messages.
func (q *Queue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close drains the queue, releasing every message it still holds, and wakes
// any waiting writer. Further pushes are ignored. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	msgs := q.msgs
	q.msgs = nil
	q.bytes = 0
	close(q.done)
	q.mu.Unlock()

	for _, m := range msgs {
		m.Release()
	}
}
