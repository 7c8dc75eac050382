package gateway

import "sync"

// SessionState is a snapshot of the resumable identity of a session.
type SessionState struct {
	ID        string
	Sequence  *int64
	ResumeURL string
}

// Resumable reports whether the state is enough to send a Resume.
func (s SessionState) Resumable() bool {
	return s.ID != "" && s.ResumeURL != ""
}

// Session owns the session id, the last sequence number and the resume
// endpoint. Every component that needs them is handed the same *Session.
type Session struct {
	mu        sync.RWMutex
	id        string
	seq       int64
	hasSeq    bool
	resumeURL string
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// ObserveSequence records seq when it is larger than anything seen so far.
func (s *Session) ObserveSequence(seq int64) {
	if seq < 0 {
		return
	}
	s.mu.Lock()
	if !s.hasSeq || seq > s.seq {
		s.seq = seq
		s.hasSeq = true
	}
	s.mu.Unlock()
}

// Sequence returns the last sequence number, ok is false when none was seen.
func (s *Session) Sequence() (seq int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq, s.hasSeq
}

// Establish binds the session id and resume endpoint. fallbackURL is used
// when the server did not provide a resume endpoint. A different id starts
// a new sequence.
func (s *Session) Establish(id, resumeURL, fallbackURL string) {
	if id == "" {
		return
	}
	if resumeURL == "" {
		resumeURL = fallbackURL
	}
	if resumeURL == "" {
		return
	}
	s.mu.Lock()
	if s.id != "" && s.id != id {
		s.seq, s.hasSeq = 0, false
	}
	s.id = id
	s.resumeURL = resumeURL
	s.mu.Unlock()
}

// Clear forgets the session entirely.
func (s *Session) Clear() {
	s.mu.Lock()
	s.id = ""
	s.resumeURL = ""
	s.seq, s.hasSeq = 0, false
	s.mu.Unlock()
}

// Resumable reports whether a Resume can be attempted.
func (s *Session) Resumable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != "" && s.resumeURL != ""
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := SessionState{ID: s.id, ResumeURL: s.resumeURL}
	if s.hasSeq {
		seq := s.seq
		state.Sequence = &seq
	}
	return state
}

// Restore replaces the session with a previously saved snapshot. Snapshots
// without both an id and a resume endpoint clear the session.
func (s *Session) Restore(state SessionState) {
	if !state.Resumable() {
		s.Clear()
		return
	}
	s.mu.Lock()
	s.id = state.ID
	s.resumeURL = state.ResumeURL
	s.seq, s.hasSeq = 0, false
	if state.Sequence != nil {
		s.seq, s.hasSeq = *state.Sequence, true
	}
	s.mu.Unlock()
}
