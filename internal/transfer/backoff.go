package transfer

import "time"

// Backoff is an exponential retry ceiling, grounded on the
// retry-with-backoff idiom used across the retrieval pack's rate-limited
// clients rather than hand-rolled per-call sleep loops.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches spec.md §4.6's "failure semantics": retry
// quickly at first, cap the wait so a stalled transfer doesn't starve
// its queue slot forever.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

// Duration returns the wait before retry attempt n (0-indexed).
func (b Backoff) Duration(attempt int) time.Duration {
	if b.Base <= 0 {
		b.Base = DefaultBackoff.Base
	}
	if b.Max <= 0 {
		b.Max = DefaultBackoff.Max
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}
