package gateway

import (
	"math/rand"
	"time"
)

// maxMissedAcks is the number of consecutive unacknowledged intervals after
// which a connection is considered zombied.
const maxMissedAcks = 2

// heartbeat schedules liveness pings for one connection. Deadlines advance
// by exactly interval from the previous deadline, never from the time the
// beat was actually handled.
type heartbeat struct {
	interval time.Duration
	next     time.Time
	pending  bool
	missed   int
	lastSent time.Time
	lastAck  time.Time
}

// newHeartbeat schedules the first beat at now plus a jitter in [0, interval).
func newHeartbeat(interval time.Duration, now time.Time, rng *rand.Rand) *heartbeat {
	var jitter time.Duration
	if interval > 0 {
		if rng != nil {
			jitter = time.Duration(rng.Int63n(int64(interval)))
		} else {
			jitter = time.Duration(rand.Int63n(int64(interval)))
		}
	}
	return &heartbeat{interval: interval, next: now.Add(jitter)}
}

// until returns how long to wait for the next deadline.
func (h *heartbeat) until(now time.Time) time.Duration {
	d := h.next.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (h *heartbeat) due(now time.Time) bool {
	return !now.Before(h.next)
}

// beat is called when the deadline passed. It reports zombie when the
// previous beats went unacknowledged for maxMissedAcks intervals; otherwise
// the caller must send a heartbeat now.
func (h *heartbeat) beat(now time.Time) (zombie bool) {
	if h.pending {
		h.missed++
		if h.missed >= maxMissedAcks {
			return true
		}
	}
	h.pending = true
	h.lastSent = now
	h.next = h.next.Add(h.interval)
	return false
}

// sentOutOfBand records a heartbeat the server asked for. It does not move
// the schedule.
func (h *heartbeat) sentOutOfBand(now time.Time) {
	h.pending = true
	h.lastSent = now
}

// ack records a Heartbeat Ack and returns the round trip of the last beat.
func (h *heartbeat) ack(now time.Time) time.Duration {
	h.pending = false
	h.missed = 0
	h.lastAck = now
	if h.lastSent.IsZero() {
		return 0
	}
	return now.Sub(h.lastSent)
}
