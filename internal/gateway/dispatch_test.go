package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/pkg/websocket"
)

func seqs(q *dispatchQueue) []int64 {
	var out []int64
	for q.Len() > 0 {
		d, _ := q.Pop()
		out = append(out, d.Seq)
	}
	return out
}

func TestDispatchQueueDropNewest(t *testing.T) {
	q := newDispatchQueue(2, websocket.OverflowDropNewest)
	for i := int64(1); i <= 3; i++ {
		ok, dropped := q.Push(Dispatch{Seq: i})
		if i == 3 {
			assert.False(t, ok)
			assert.Equal(t, 1, dropped)
		} else {
			assert.True(t, ok)
		}
	}
	assert.Equal(t, []int64{1, 2}, seqs(q))
}

func TestDispatchQueueDropOldest(t *testing.T) {
	q := newDispatchQueue(2, websocket.OverflowDropOldest)
	for i := int64(1); i <= 4; i++ {
		ok, _ := q.Push(Dispatch{Seq: i})
		assert.True(t, ok)
	}
	assert.Equal(t, []int64{3, 4}, seqs(q))
}

func TestDispatchQueueBlockWaitsForSpace(t *testing.T) {
	q := newDispatchQueue(1, websocket.OverflowBlock)
	ok, _ := q.Push(Dispatch{Seq: 1})
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		q.Push(Dispatch{Seq: 2})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("push must block while full")
	case <-time.After(20 * time.Millisecond):
	}
	d, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), d.Seq)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push not released")
	}
}

func TestDispatchQueueCloseDrains(t *testing.T) {
	q := newDispatchQueue(4, websocket.OverflowBlock)
	q.Push(Dispatch{Seq: 1})
	q.Push(Dispatch{Seq: 2})
	q.Close()

	ok, dropped := q.Push(Dispatch{Seq: 3})
	assert.False(t, ok)
	assert.Equal(t, 1, dropped)

	var got []int64
	var mu sync.Mutex
	q.serve(context.Background(), HandlerFunc(func(_ context.Context, d Dispatch) {
		mu.Lock()
		got = append(got, d.Seq)
		mu.Unlock()
	}))
	assert.Equal(t, []int64{1, 2}, got)
}
