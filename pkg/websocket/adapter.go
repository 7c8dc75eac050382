package websocket

import "context"

// Conn is a minimal interface for a WebSocket connection.
// Read must return a *CloseEvent (or an error wrapping one) when the peer
// sends a close frame. Write and WriteClose are only ever called from one
// goroutine; Close may be called concurrently with Read.
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	WriteClose(code CloseCode, reason string) error
	Close() error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
