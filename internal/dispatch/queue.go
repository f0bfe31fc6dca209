package dispatch

import (
	"sync"

	"github.com/roach88/cloister/internal/transport"
)

// updateQueue is a thread-safe FIFO queue of inbound updates.
//
// The queue is unbounded so a burst of platform updates never blocks the
// receiver (polling loop or webhook handler).
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type updateQueue struct {
	mu      sync.Mutex
	updates []transport.Update
	closed  bool
	signal  chan struct{} // Signals update availability (buffered, size 1)
}

// newUpdateQueue creates an empty update queue.
func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updates: make([]transport.Update, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an update to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *updateQueue) Enqueue(u transport.Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.updates = append(q.updates, u)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (transport.Update{}, false) if queue is empty.
func (q *updateQueue) TryDequeue() (transport.Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.updates) == 0 {
		return transport.Update{}, false
	}

	u := q.updates[0]
	q.updates[0] = transport.Update{}

	if len(q.updates) == 1 {
		q.updates = q.updates[:0]
	} else {
		q.updates = q.updates[1:]
	}

	return u, true
}

// Wait returns a channel that signals when updates may be available.
// The channel is closed once the queue is closed.
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

// Close signals that no more updates will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// closedAndEmpty reports whether the queue is closed and drained.
func (q *updateQueue) closedAndEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.updates) == 0
}
