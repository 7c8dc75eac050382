package gateway

import (
	"sync"
	"time"
)

// DefaultPresenceStatus is the status sent with every presence update.
const DefaultPresenceStatus = "online"

// PresenceEntry is one step of the presence rotation.
type PresenceEntry struct {
	Text string
	Kind ActivityKind
}

// Presence is the process-wide presence rotation. Its index is not reset
// by reconnects.
type Presence struct {
	mu      sync.Mutex
	entries []PresenceEntry
	index   int
	status  string
}

// NewPresence builds a rotation over entries. An empty status means online.
func NewPresence(status string, entries ...PresenceEntry) *Presence {
	if status == "" {
		status = DefaultPresenceStatus
	}
	cp := make([]PresenceEntry, len(entries))
	copy(cp, entries)
	return &Presence{entries: cp, status: status}
}

// Len returns the number of entries.
func (p *Presence) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Index returns the position of the current entry.
func (p *Presence) Index() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Current returns the update for the current entry, nil without entries.
func (p *Presence) Current() *PresenceUpdate {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return nil
	}
	return p.update(p.entries[p.index])
}

// Advance moves to the next entry, wrapping around, and returns its update.
func (p *Presence) Advance() *PresenceUpdate {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return nil
	}
	p.index = (p.index + 1) % len(p.entries)
	return p.update(p.entries[p.index])
}

func (p *Presence) update(e PresenceEntry) *PresenceUpdate {
	activity := Activity{Name: e.Text, Type: e.Kind}
	if e.Kind == ActivityCustom {
		activity.Name = "Custom Status"
		activity.State = e.Text
	}
	return &PresenceUpdate{
		Activities: []Activity{activity},
		Status:     p.status,
	}
}

// rotator drives presence updates. It ticks only between resume and
// suspend; the client resumes it on Ready and suspends it on every exit
// from Ready.
type rotator struct {
	presence *Presence
	interval time.Duration
	ticker   *time.Ticker
}

func newRotator(presence *Presence, interval time.Duration) *rotator {
	return &rotator{presence: presence, interval: interval}
}

// C returns the tick channel, nil while suspended.
func (r *rotator) C() <-chan time.Time {
	if r == nil || r.ticker == nil {
		return nil
	}
	return r.ticker.C
}

func (r *rotator) active() bool {
	return r != nil && r.ticker != nil
}

func (r *rotator) resume() {
	if r == nil || r.ticker != nil || r.interval <= 0 || r.presence.Len() == 0 {
		return
	}
	r.ticker = time.NewTicker(r.interval)
}

func (r *rotator) suspend() {
	if r == nil || r.ticker == nil {
		return
	}
	r.ticker.Stop()
	r.ticker = nil
}
