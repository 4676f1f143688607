package store

import (
	"math"
	"math/rand"
	"time"
)

// backoff returns the delay before connect attempt+1 (0-indexed) using
// exponential back-off with optional jitter, capped at maxDelay.
func backoff(base, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if limit := float64(maxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if jitter > 0 {
		// jitter adds up to ±jitter fraction of the delay.
		delay += delay * jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
