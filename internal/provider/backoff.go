package provider

import "time"

// Backoff computes exponential retry delays: base × 2^attempt, capped.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the retry posture of the scheduled runs: short
// enough that a run's worst case stays bounded, long enough to clear a
// per-minute rate window.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Max: 60 * time.Second}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
