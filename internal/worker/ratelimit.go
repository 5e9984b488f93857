package worker

import "time"

// rateLimiter serializes sends to a minimum interval using a single
// last-send-time cursor. The worker is the only sender, so no locking is
// needed. Clock and sleep are injectable for tests.
type rateLimiter struct {
	minInterval time.Duration
	lastSendAt  time.Time
	now         func() time.Time
	sleep       func(time.Duration)
}

func newRateLimiter(ratePerSecond int, now func() time.Time, sleep func(time.Duration)) *rateLimiter {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &rateLimiter{
		minInterval: time.Second / time.Duration(ratePerSecond),
		now:         now,
		sleep:       sleep,
	}
}

// Wait blocks until the minimum interval since the previous send has elapsed
// and advances the cursor. The first call never waits.
func (l *rateLimiter) Wait() {
	now := l.now()
	if !l.lastSendAt.IsZero() {
		if elapsed := now.Sub(l.lastSendAt); elapsed < l.minInterval {
			l.sleep(l.minInterval - elapsed)
			now = l.now()
		}
	}
	l.lastSendAt = now
}
