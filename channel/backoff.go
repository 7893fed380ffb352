package channel

import (
	"math/rand"
	"time"
)

// BackoffDelay computes the exponential backoff for the given attempt
// (1-based): base doubled per attempt, capped at max. The result is
// non-decreasing in attempt.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// jitter spreads a delay uniformly over [d/2, d) so a fleet of recovering
// clients does not reconnect in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
