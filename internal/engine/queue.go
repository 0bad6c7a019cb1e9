package engine

import (
	"sync"
)

// requestQueue is a thread-safe FIFO of pending requests.
//
// Callers on any goroutine enqueue; the Engine's Run loop dequeues. The
// signal channel lets Run wait for work and for context cancellation in
// the same select.
type requestQueue struct {
	mu       sync.Mutex
	requests []*pending
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]*pending, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(p *pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, p)

	// non-blocking; the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (*pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return nil, false
	}
	p := q.requests[0]
	q.requests[0] = nil
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return p, true
}

// Wait returns a channel that signals when requests may be available.
// It is closed when the queue closes.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close stops accepting requests and wakes the waiter.
// Requests still queued are handed back so the caller can fail them.
func (q *requestQueue) Close() []*pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	left := q.requests
	q.requests = nil
	return left
}
