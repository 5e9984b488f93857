package worker

import (
	"math"
	"time"
)

const (
	backoffBaseSeconds = 2.0
	backoffCapSeconds  = 15 * 60.0
	rateLimitFloor     = 60.0
)

// computeBackoff returns the delay before the next attempt: exponential in
// the attempt count with full-second base 2s, capped at 15 minutes, plus up
// to one second of jitter to spread thundering retries. A 429 raises the
// floor to 60s so a provider rate limit is never hammered on the short early
// steps. rng yields a value in [0, 1).
func computeBackoff(attemptCount, statusCode int, rng func() float64) time.Duration {
	exponent := attemptCount - 1
	if exponent < 0 {
		exponent = 0
	}
	delay := backoffBaseSeconds * math.Pow(2, float64(exponent))
	if delay > backoffCapSeconds {
		delay = backoffCapSeconds
	}
	if statusCode == 429 && delay < rateLimitFloor {
		delay = rateLimitFloor
	}
	delay += rng()
	if delay > backoffCapSeconds {
		delay = backoffCapSeconds
	}
	return time.Duration(delay * float64(time.Second))
}
