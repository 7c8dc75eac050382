package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordConn struct {
	mu     sync.Mutex
	frames []OutboundFrame
}

func (c *recordConn) Read(ctx context.Context) (MessageType, []byte, error) {
	<-ctx.Done()
	return 0, nil, ctx.Err()
}

func (c *recordConn) Write(_ context.Context, msgType MessageType, payload []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, OutboundFrame{MsgType: msgType, Buf: payload})
	c.mu.Unlock()
	return nil
}

func (c *recordConn) WriteClose(code CloseCode, reason string) error {
	c.mu.Lock()
	c.frames = append(c.frames, OutboundFrame{MsgType: MessageClose, Code: code, Reason: reason})
	c.mu.Unlock()
	return nil
}

func (c *recordConn) Close() error { return nil }

func (c *recordConn) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestWriterRejectsWhileDisconnected(t *testing.T) {
	w := NewWriter(4, OverflowBlock, nil)
	assert.False(t, w.Send(MessageText, []byte("x")))
	w.SetConnected(true)
	assert.True(t, w.Send(MessageText, []byte("x")))
	w.Stop()
	assert.False(t, w.Send(MessageText, []byte("x")))
}

func TestWriterOverflowPolicies(t *testing.T) {
	w := NewWriter(2, OverflowDropNewest, nil)
	w.SetConnected(true)
	assert.True(t, w.Send(MessageText, []byte("1")))
	assert.True(t, w.Send(MessageText, []byte("2")))
	assert.False(t, w.Send(MessageText, []byte("3")))

	w = NewWriter(2, OverflowDropOldest, nil)
	w.SetConnected(true)
	for _, p := range []string{"1", "2", "3"} {
		assert.True(t, w.Send(MessageText, []byte(p)))
	}
	f, ok := w.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "2", string(f.Buf))
}

func TestWriterSendCopiesPayload(t *testing.T) {
	w := NewWriter(1, OverflowBlock, nil)
	w.SetConnected(true)
	buf := []byte("abc")
	require.True(t, w.Send(MessageText, buf))
	buf[0] = 'x'
	f, ok := w.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "abc", string(f.Buf))
}

func TestWriterRunKeepsOrderAndClosesLast(t *testing.T) {
	w := NewWriter(8, OverflowBlock, nil)
	w.SetConnected(true)
	conn := &recordConn{}
	w.Send(MessageText, []byte("a"))
	w.Send(MessageText, []byte("b"))
	w.SendClose(CloseNormal, "bye")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, conn) }()
	require.Eventually(t, func() bool { return conn.len() == 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "a", string(conn.frames[0].Buf))
	assert.Equal(t, "b", string(conn.frames[1].Buf))
	assert.Equal(t, MessageClose, conn.frames[2].MsgType)
	assert.Equal(t, CloseNormal, conn.frames[2].Code)
}

func TestWriterLimiterPacesDataFrames(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	w := NewWriter(8, OverflowBlock, limiter)
	w.SetConnected(true)
	conn := &recordConn{}
	for i := 0; i < 4; i++ {
		w.Send(MessageText, []byte{byte(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start := time.Now()
	go func() { _ = w.Run(ctx, conn) }()
	require.Eventually(t, func() bool { return conn.len() == 4 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}
