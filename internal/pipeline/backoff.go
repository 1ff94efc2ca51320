package pipeline

import (
	"math/rand"
	"time"
)

// RetryDelay computes the wait before retry number `attempt` (1-based):
// exponential growth from base, capped at max, with equal jitter so the
// result always lands in [cap/2, cap]. Jitter keeps a burst of transient
// failures from re-hitting the provider in lockstep.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
