package api

import (
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// writeLimiter throttles setting updates with a token bucket. Reads are never
// limited. A nil *writeLimiter admits everything.
type writeLimiter struct {
	bucket   *rate.Limiter
	now      func() time.Time
	rejected atomic.Int64
}

// newWriteLimiter returns nil, meaning unlimited, unless both rps and burst
// are positive.
func newWriteLimiter(rps float64, burst int, now func() time.Time) *writeLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &writeLimiter{
		bucket: rate.NewLimiter(rate.Limit(rps), burst),
		now:    now,
	}
}

// admit takes a token for one update. When the bucket is empty it returns
// false and how long until a token is available; no token is consumed then.
func (l *writeLimiter) admit() (time.Duration, bool) {
	if l == nil {
		return 0, true
	}
	now := l.now()
	reservation := l.bucket.ReserveN(now, 1)
	if !reservation.OK() {
		l.rejected.Add(1)
		return time.Second, false
	}
	wait := reservation.DelayFrom(now)
	if wait <= 0 {
		return 0, true
	}
	reservation.CancelAt(now)
	l.rejected.Add(1)
	return wait, false
}

// Rejected counts the updates refused since the limiter was built.
func (l *writeLimiter) Rejected() int64 {
	if l == nil {
		return 0
	}
	return l.rejected.Load()
}

// retryAfter renders wait as the whole seconds of a Retry-After header.
func retryAfter(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
