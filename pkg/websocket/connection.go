package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrNilDialer is returned by Open without a dialer.
var ErrNilDialer = errors.New("websocket: nil dialer")

// Option configures a Connection.
type Option struct {
	WriteQueueSize int
	WriteOverflow  OverflowPolicy
	// SendLimit and SendBurst configure the outbound token bucket.
	// A zero SendLimit disables limiting.
	SendLimit   rate.Limit
	SendBurst   int
	EventBuffer int
}

// DefaultOption returns the gateway send limit of 120 frames per minute.
func DefaultOption() Option {
	return Option{
		WriteQueueSize: 256,
		WriteOverflow:  OverflowDropNewest,
		SendLimit:      rate.Every(time.Minute / 120),
		SendBurst:      120,
		EventBuffer:    64,
	}
}

// Connection is a live transport handle. Inbound messages are delivered in
// arrival order on Events, followed by exactly one close event, after which
// the channel is closed. All writes go through a single writer goroutine.
type Connection struct {
	id     string
	url    string
	conn   Conn
	writer *Writer
	events chan Event
	cancel context.CancelFunc

	mu    sync.Mutex
	local *CloseEvent

	teardownOnce sync.Once
	releaseOnce  sync.Once
	released     chan struct{}
}

// Open dials url and starts the reader and writer goroutines. The lifetime
// of the connection is not bound to ctx; it ends through Shutdown, Abort or
// a transport failure.
func Open(ctx context.Context, d Dialer, url string, opt Option) (*Connection, error) {
	if d == nil {
		return nil, ErrNilDialer
	}
	conn, err := d.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if opt.SendLimit > 0 {
		burst := opt.SendBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opt.SendLimit, burst)
	}
	if opt.EventBuffer <= 0 {
		opt.EventBuffer = 64
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       uuid.NewString(),
		url:      url,
		conn:     conn,
		writer:   NewWriter(opt.WriteQueueSize, opt.WriteOverflow, limiter),
		events:   make(chan Event, opt.EventBuffer),
		cancel:   cancel,
		released: make(chan struct{}),
	}
	c.writer.SetConnected(true)

	go c.readLoop(runCtx)
	go c.writeLoop(runCtx)
	return c, nil
}

// ID returns the connection identifier used for log correlation.
func (c *Connection) ID() string {
	return c.id
}

// URL returns the URL the connection was opened against.
func (c *Connection) URL() string {
	return c.url
}

// Events returns the ordered inbound stream.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Send enqueues a text frame.
func (c *Connection) Send(payload []byte) error {
	if !c.writer.connected.Load() {
		return ErrNotConnected
	}
	if !c.writer.Send(MessageText, payload) {
		return ErrQueueFull
	}
	return nil
}

// Abort force-closes the socket without a close frame. The close event
// reported on Events carries CloseNetworkFailure and reason.
func (c *Connection) Abort(reason string) {
	c.fail(CloseEvent{Code: CloseNetworkFailure, Reason: reason})
}

// Shutdown sends a close frame and waits for the peer to close the
// connection or for ctx to expire, whichever comes first. Inbound messages
// received meanwhile are discarded. The connection is released on return.
func (c *Connection) Shutdown(ctx context.Context, code CloseCode, reason string) error {
	defer c.Release()
	if !c.writer.SendClose(code, reason) {
		c.Abort(reason)
	}
	for {
		select {
		case _, ok := <-c.events:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			c.Abort(reason)
			return ctx.Err()
		}
	}
}

// Release stops both goroutines and frees the socket. Events not yet
// consumed are dropped.
func (c *Connection) Release() {
	c.releaseOnce.Do(func() {
		close(c.released)
	})
	c.teardown()
}

func (c *Connection) fail(ev CloseEvent) {
	c.mu.Lock()
	if c.local == nil {
		c.local = &ev
	}
	c.mu.Unlock()
	c.teardown()
}

func (c *Connection) teardown() {
	c.teardownOnce.Do(func() {
		c.writer.Stop()
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *Connection) closeEvent(err error) CloseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		return *c.local
	}
	var ce *CloseEvent
	if errors.As(err, &ce) {
		return *ce
	}
	return CloseEvent{Code: CloseNetworkFailure, Reason: err.Error()}
}

func (c *Connection) readLoop(ctx context.Context) {
	defer close(c.events)
	for {
		msgType, payload, err := c.conn.Read(ctx)
		if err != nil {
			ev := c.closeEvent(err)
			c.teardown()
			c.emit(Event{Close: &ev})
			return
		}
		if msgType != MessageText && msgType != MessageBinary {
			continue
		}
		if !c.emit(Event{Payload: payload}) {
			c.teardown()
			return
		}
	}
}

func (c *Connection) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.released:
		return false
	}
}

func (c *Connection) writeLoop(ctx context.Context) {
	if err := c.writer.Run(ctx, c.conn); err != nil {
		c.fail(CloseEvent{Code: CloseNetworkFailure, Reason: err.Error()})
	}
}
