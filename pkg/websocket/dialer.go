package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultDialerTimeout = 10 * time.Second
	DefaultWriteWait     = 10 * time.Second
	DefaultReadLimit     = 1 << 20
)

var errProtocol = errors.New("websocket: protocol error")

type dialer struct {
	dialer    websocket.Dialer
	header    http.Header
	writeWait time.Duration
	readLimit int64
}

// DialerOption tunes the gorilla-backed dialer.
type DialerOption func(*dialer)

// WithHeader adds request headers to the opening handshake.
func WithHeader(header http.Header) DialerOption {
	return func(d *dialer) {
		d.header = header
	}
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(limit int64) DialerOption {
	return func(d *dialer) {
		d.readLimit = limit
	}
}

// WithWriteWait bounds each write to the socket.
func WithWriteWait(wait time.Duration) DialerOption {
	return func(d *dialer) {
		d.writeWait = wait
	}
}

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer(opts ...DialerOption) Dialer {
	d := &dialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultDialerTimeout,
			ReadBufferSize:   32 << 10,
			WriteBufferSize:  4 << 10,
		},
		writeWait: DefaultWriteWait,
		readLimit: DefaultReadLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *dialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return &wsConn{conn: conn, writeWait: d.writeWait}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (c *wsConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if err := setDeadline(ctx, c.conn.SetReadDeadline); err != nil {
		return 0, nil, err
	}
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return 0, nil, &CloseEvent{Code: CloseCode(closeErr.Code), Reason: closeErr.Text}
		}
		return 0, nil, err
	}
	return MessageType(msgType), payload, nil
}

func (c *wsConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	switch msgType {
	case MessageText, MessageBinary:
	default:
		return errProtocol
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

func (c *wsConn) WriteClose(code CloseCode, reason string) error {
	msg := websocket.FormatCloseMessage(int(code), reason)
	return c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.writeWait)
	if ctx == nil {
		return deadline
	}
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}
