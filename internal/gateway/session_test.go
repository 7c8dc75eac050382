package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionObserveSequenceKeepsMaximum(t *testing.T) {
	s := NewSession()
	_, ok := s.Sequence()
	assert.False(t, ok)

	for _, seq := range []int64{4, 2, 9, -1, 7} {
		s.ObserveSequence(seq)
	}
	seq, ok := s.Sequence()
	require.True(t, ok)
	assert.Equal(t, int64(9), seq)
}

func TestSessionEstablishNewIDResetsSequence(t *testing.T) {
	s := NewSession()
	s.Establish("a", "wss://resume.test", "")
	s.ObserveSequence(10)

	s.Establish("a", "wss://resume2.test", "")
	seq, _ := s.Sequence()
	assert.Equal(t, int64(10), seq, "same id keeps the sequence")
	assert.Equal(t, "wss://resume2.test", s.Snapshot().ResumeURL)

	s.Establish("b", "", "wss://fallback.test")
	_, ok := s.Sequence()
	assert.False(t, ok)
	assert.Equal(t, SessionState{ID: "b", ResumeURL: "wss://fallback.test"}, s.Snapshot())
}

func TestSessionEstablishIgnoresIncomplete(t *testing.T) {
	s := NewSession()
	s.Establish("", "wss://resume.test", "")
	s.Establish("a", "", "")
	assert.False(t, s.Resumable())
}

func TestSessionClear(t *testing.T) {
	s := NewSession()
	s.Establish("a", "wss://resume.test", "")
	s.ObserveSequence(3)
	s.Clear()

	assert.False(t, s.Resumable())
	assert.Equal(t, SessionState{}, s.Snapshot())
}

func TestSessionRestoreThroughMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := NewSession()
	s.Establish("abc123", "wss://resume.test", "")
	s.ObserveSequence(42)
	require.NoError(t, store.Save(ctx, s.Snapshot()))

	s.ObserveSequence(50)
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.Sequence)
	assert.Equal(t, int64(42), *loaded.Sequence, "stored snapshot must not alias the session")

	restored := NewSession()
	restored.Restore(loaded)
	assert.True(t, restored.Resumable())
	seq, ok := restored.Sequence()
	require.True(t, ok)
	assert.Equal(t, int64(42), seq)
	assert.Equal(t, 1, store.Saves())

	restored.Restore(SessionState{ID: "only-id"})
	assert.False(t, restored.Resumable())
}
