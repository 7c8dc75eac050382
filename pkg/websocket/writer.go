package websocket

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected is returned when sending while the writer is disconnected.
	ErrNotConnected = errors.New("websocket: not connected")
	// ErrQueueFull is returned when the outbound queue cannot accept more frames.
	ErrQueueFull = errors.New("websocket: outbound queue full")
)

// OutboundFrame represents a queued write payload.
type OutboundFrame struct {
	// MsgType is the WebSocket message type for the payload.
	MsgType MessageType
	// Buf is the payload buffer to send.
	Buf []byte
	// Code and Reason are only used by close frames.
	Code   CloseCode
	Reason string
}

// Writer provides a bounded outbound queue drained by a single goroutine.
type Writer struct {
	queue     chan OutboundFrame
	policy    OverflowPolicy
	limiter   *rate.Limiter
	connected atomic.Bool
	done      chan struct{}
	stopped   atomic.Bool
}

// NewWriter creates a Writer with a bounded queue. A nil limiter disables
// send rate limiting.
func NewWriter(capacity int, policy OverflowPolicy, limiter *rate.Limiter) *Writer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Writer{
		queue:   make(chan OutboundFrame, capacity),
		policy:  policy,
		limiter: limiter,
		done:    make(chan struct{}),
	}
}

// SetConnected toggles the writer connection state.
func (w *Writer) SetConnected(connected bool) {
	w.connected.Store(connected)
}

// Enqueue queues a frame for writing according to the overflow policy.
func (w *Writer) Enqueue(frame OutboundFrame) bool {
	if !w.connected.Load() {
		return false
	}
	switch w.policy {
	case OverflowBlock:
		select {
		case w.queue <- frame:
			return true
		case <-w.done:
			return false
		}
	case OverflowDropOldest:
		for {
			select {
			case w.queue <- frame:
				return true
			default:
				select {
				case <-w.queue:
				default:
					return false
				}
			}
		}
	default:
		select {
		case w.queue <- frame:
			return true
		default:
			return false
		}
	}
}

// Send copies payload and enqueues it.
func (w *Writer) Send(msgType MessageType, payload []byte) bool {
	if !w.connected.Load() {
		return false
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return w.Enqueue(OutboundFrame{MsgType: msgType, Buf: buf})
}

// SendClose enqueues a close frame behind any pending data frames.
func (w *Writer) SendClose(code CloseCode, reason string) bool {
	return w.Enqueue(OutboundFrame{MsgType: MessageClose, Code: code, Reason: reason})
}

// Next waits for the next outbound frame or context cancellation.
func (w *Writer) Next(ctx context.Context) (OutboundFrame, bool) {
	select {
	case <-ctx.Done():
		return OutboundFrame{}, false
	case <-w.done:
		return OutboundFrame{}, false
	case frame := <-w.queue:
		return frame, true
	}
}

// Drain clears the queue.
func (w *Writer) Drain() {
	for {
		select {
		case <-w.queue:
		default:
			return
		}
	}
}

// Stop disconnects the writer and unblocks pending producers.
func (w *Writer) Stop() {
	w.connected.Store(false)
	if w.stopped.CompareAndSwap(false, true) {
		close(w.done)
	}
	w.Drain()
}

// Run writes queued frames to conn until ctx is done, the writer is stopped
// or a write fails. It is the only goroutine that writes to conn.
func (w *Writer) Run(ctx context.Context, conn Conn) error {
	for {
		frame, ok := w.Next(ctx)
		if !ok {
			return nil
		}
		if frame.MsgType == MessageClose {
			if err := conn.WriteClose(frame.Code, frame.Reason); err != nil {
				return err
			}
			continue
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		if err := conn.Write(ctx, frame.MsgType, frame.Buf); err != nil {
			return err
		}
	}
}
