package websocket

import (
	"math/rand"
	"time"
)

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    time.Second,
		Max:    60 * time.Second,
		Factor: 2.0,
		Jitter: 0.1,
	}
}

// Next returns the backoff duration for the given attempt (1-based).
// The jitter only ever adds to the exponential delay, so for consecutive
// attempts the result strictly increases until it reaches Max.
// A nil rng uses the shared math/rand source.
func (b Backoff) Next(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Second
	}
	if min > max {
		min = max
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if wait >= max || b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if limit := (factor - 1) / 2; jitter > limit {
		jitter = limit
	}
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	wait += time.Duration(f * jitter * float64(wait))
	if wait > max {
		return max
	}
	return wait
}
