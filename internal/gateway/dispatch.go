package gateway

import (
	"context"
	"sync"

	"portal/pkg/websocket"
)

// Handler receives dispatch events in arrival order, on a goroutine of its
// own so slow handlers never delay heartbeats.
type Handler interface {
	HandleDispatch(ctx context.Context, d Dispatch)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, d Dispatch)

// HandleDispatch calls f(ctx, d).
func (f HandlerFunc) HandleDispatch(ctx context.Context, d Dispatch) {
	f(ctx, d)
}

// dispatchQueue is a bounded ring buffer of dispatch events.
type dispatchQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []Dispatch
	head     int
	tail     int
	size     int
	closed   bool
	policy   websocket.OverflowPolicy
}

func newDispatchQueue(capacity int, policy websocket.OverflowPolicy) *dispatchQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &dispatchQueue{
		buf:    make([]Dispatch, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues d according to the overflow policy. dropped counts events
// lost to make room or refused.
func (q *dispatchQueue) Push(d Dispatch) (ok bool, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return false, 1
		}
		if q.size < len(q.buf) {
			q.buf[q.tail] = d
			q.tail = (q.tail + 1) % len(q.buf)
			q.size++
			q.notEmpty.Signal()
			return true, dropped
		}
		switch q.policy {
		case websocket.OverflowBlock:
			q.notFull.Wait()
		case websocket.OverflowDropOldest:
			q.buf[q.head] = Dispatch{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			dropped++
		default:
			return false, 1
		}
	}
}

// Pop dequeues the next event, blocking until available or closed. Events
// queued before Close are still returned.
func (q *dispatchQueue) Pop() (Dispatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.size > 0 {
			d := q.buf[q.head]
			q.buf[q.head] = Dispatch{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.notFull.Signal()
			return d, true
		}
		if q.closed {
			return Dispatch{}, false
		}
		q.notEmpty.Wait()
	}
}

// Close stops accepting events and wakes all waiters.
func (q *dispatchQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.notEmpty.Broadcast()
		q.notFull.Broadcast()
	}
	q.mu.Unlock()
}

// Len returns the number of queued events.
func (q *dispatchQueue) Len() int {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return size
}

// serve feeds h until the queue is closed and drained.
func (q *dispatchQueue) serve(ctx context.Context, h Handler) {
	for {
		d, ok := q.Pop()
		if !ok {
			return
		}
		h.HandleDispatch(ctx, d)
	}
}
