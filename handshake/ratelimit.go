package handshake

import "time"

// pingLimiter throttles ping attempts per peer, adapted from the teacher's
// internal/server.TokenBucket (there used to throttle IP-allocation
// attempts); here it guards capability-session creation instead. Not
// thread-safe: callers hold ServerEngine's lock while using it.
type pingLimiter struct {
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newPingLimiter(ratePerSec, burst int) *pingLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if burst <= 0 {
		burst = ratePerSec
	}
	return &pingLimiter{
		rate:   float64(ratePerSec),
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// allow reports whether a ping attempt may proceed, refilling tokens based
// on elapsed time since the last check.
func (t *pingLimiter) allow() bool {
	now := time.Now()
	dt := now.Sub(t.last).Seconds()
	t.last = now
	t.tokens += dt * t.rate
	if t.tokens > t.burst {
		t.tokens = t.burst
	}
	if t.tokens < 1 {
		return false
	}
	t.tokens--
	return true
}
