package obs

import (
	"sync/atomic"
	"time"
)

// Counter names one gateway counter.
type Counter uint8

const (
	CounterConnects Counter = iota
	CounterDialFailures
	CounterIdentifies
	CounterResumes
	CounterReady
	CounterResumed
	CounterReconnects
	CounterInvalidSessions
	CounterZombies
	CounterHeartbeats
	CounterHeartbeatAcks
	CounterPresenceUpdates
	CounterDispatches
	CounterDispatchDrops
	CounterProtocolErrors
	counterCount
)

var counterNames = [counterCount]string{
	CounterConnects:        "connects",
	CounterDialFailures:    "dial_failures",
	CounterIdentifies:      "identifies",
	CounterResumes:         "resumes",
	CounterReady:           "ready",
	CounterResumed:         "resumed",
	CounterReconnects:      "reconnects",
	CounterInvalidSessions: "invalid_sessions",
	CounterZombies:         "zombies",
	CounterHeartbeats:      "heartbeats",
	CounterHeartbeatAcks:   "heartbeat_acks",
	CounterPresenceUpdates: "presence_updates",
	CounterDispatches:      "dispatches",
	CounterDispatchDrops:   "dispatch_drops",
	CounterProtocolErrors:  "protocol_errors",
}

func (c Counter) String() string {
	if c < counterCount {
		return counterNames[c]
	}
	return "unknown"
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	counts           [counterCount]uint64
	heartbeatLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counts           map[Counter]uint64
	HeartbeatLatency LatencySnapshot
}

// Get returns the value of c, zero when never incremented.
func (s Snapshot) Get(c Counter) uint64 {
	return s.Counts[c]
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments c.
func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

// Add adds n to c.
func (m *Metrics) Add(c Counter, n uint64) {
	if m == nil || c >= counterCount {
		return
	}
	atomic.AddUint64(&m.counts[c], n)
}

// ObserveHeartbeat records the round trip between a heartbeat and its ack.
func (m *Metrics) ObserveHeartbeat(d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[Counter]uint64)
	for i := range m.counts {
		if v := atomic.LoadUint64(&m.counts[i]); v > 0 {
			counts[Counter(i)] = v
		}
	}
	return Snapshot{
		Counts:           counts,
		HeartbeatLatency: m.heartbeatLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
