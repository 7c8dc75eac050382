// Package wstest provides an in-memory websocket.Dialer whose connections
// are driven from the test through a Peer, the server half of the pipe.
package wstest

import (
	"context"
	"io"
	"sync"
	"time"

	"portal/pkg/websocket"
)

// Frame is a message written by the client.
type Frame struct {
	Type    websocket.MessageType
	Payload []byte
	Code    websocket.CloseCode
	Reason  string
}

type readResult struct {
	msgType websocket.MessageType
	payload []byte
	err     error
}

// Peer is the server side of one in-memory connection.
type Peer struct {
	URL string

	toClient   chan readResult
	fromClient chan Frame
	closed     chan struct{}
	closeOnce  sync.Once
	echoClose  bool
}

func newPeer(url string, echoClose bool) *Peer {
	return &Peer{
		URL:        url,
		toClient:   make(chan readResult, 256),
		fromClient: make(chan Frame, 256),
		closed:     make(chan struct{}),
		echoClose:  echoClose,
	}
}

// SendText delivers a text message to the client.
func (p *Peer) SendText(payload []byte) {
	select {
	case p.toClient <- readResult{msgType: websocket.MessageText, payload: payload}:
	case <-p.closed:
	}
}

// CloseWith makes the client observe a close frame with code and reason.
func (p *Peer) CloseWith(code websocket.CloseCode, reason string) {
	select {
	case p.toClient <- readResult{err: &websocket.CloseEvent{Code: code, Reason: reason}}:
	case <-p.closed:
	}
}

// Drop makes the client observe a network failure.
func (p *Peer) Drop() {
	select {
	case p.toClient <- readResult{err: io.ErrUnexpectedEOF}:
	case <-p.closed:
	}
}

// Next returns the next frame written by the client.
func (p *Peer) Next(timeout time.Duration) (Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-p.fromClient:
		return f, true
	case <-timer.C:
		return Frame{}, false
	}
}

// Closed is closed once the client released the socket.
func (p *Peer) Closed() <-chan struct{} {
	return p.closed
}

type conn struct {
	p *Peer
}

func (c *conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case r := <-c.p.toClient:
		return r.msgType, r.payload, r.err
	case <-c.p.closed:
		return 0, nil, io.ErrClosedPipe
	}
}

func (c *conn) Write(ctx context.Context, msgType websocket.MessageType, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case c.p.fromClient <- Frame{Type: msgType, Payload: buf}:
		return nil
	case <-c.p.closed:
		return io.ErrClosedPipe
	}
}

func (c *conn) WriteClose(code websocket.CloseCode, reason string) error {
	select {
	case c.p.fromClient <- Frame{Type: websocket.MessageClose, Code: code, Reason: reason}:
	case <-c.p.closed:
		return io.ErrClosedPipe
	}
	if c.p.echoClose {
		c.p.CloseWith(code, reason)
	}
	return nil
}

func (c *conn) Close() error {
	c.p.closeOnce.Do(func() {
		close(c.p.closed)
	})
	return nil
}

// Dialer hands out in-memory connections and publishes their peers.
type Dialer struct {
	// EchoClose makes peers answer a client close frame with the same code.
	EchoClose bool

	mu       sync.Mutex
	failures []error
	dialed   []string
	peers    chan *Peer
}

// NewDialer returns a Dialer whose peers echo close frames.
func NewDialer() *Dialer {
	return &Dialer{
		EchoClose: true,
		peers:     make(chan *Peer, 64),
	}
}

// FailNext makes the next dial attempts fail with errs, in order.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	d.failures = append(d.failures, errs...)
	d.mu.Unlock()
}

// Dialed returns every URL passed to Dial so far.
func (d *Dialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dialed))
	copy(out, d.dialed)
	return out
}

func (d *Dialer) Dial(ctx context.Context, url string) (websocket.Conn, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, url)
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	echo := d.EchoClose
	d.mu.Unlock()

	p := newPeer(url, echo)
	select {
	case d.peers <- p:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &conn{p: p}, nil
}

// Accept waits for the next dialed connection.
func (d *Dialer) Accept(timeout time.Duration) (*Peer, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-d.peers:
		return p, true
	case <-timer.C:
		return nil, false
	}
}
