package gateway

import (
	"context"
	"sync"
)

// SessionStore persists session checkpoints so a restarted process can
// resume instead of identifying again.
type SessionStore interface {
	Load(ctx context.Context) (SessionState, error)
	Save(ctx context.Context, state SessionState) error
}

// MemoryStore keeps the checkpoint in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state SessionState
	saves int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state), nil
}

func (s *MemoryStore) Save(ctx context.Context, state SessionState) error {
	s.mu.Lock()
	s.state = copyState(state)
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyState(state SessionState) SessionState {
	if state.Sequence != nil {
		seq := *state.Sequence
		state.Sequence = &seq
	}
	return state
}
