// Package ratelimit is the admission gate in front of the database: a
// fail-fast token bucket followed by a queueing FIFO semaphore.
package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket holds at most capacity tokens and refills at rate tokens per
// second. It never blocks: TryConsume either takes tokens or reports how
// long the caller would have to wait.
type TokenBucket struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(capacity int, ratePerSecond float64, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		lim: rate.NewLimiter(rate.Limit(ratePerSecond), capacity),
		now: now,
	}
}

// TryConsume takes n tokens. On failure it returns false and the time after
// which the deficit will have been refilled, rounded up to milliseconds.
func (b *TokenBucket) TryConsume(n int) (bool, time.Duration) {
	now := b.now()
	if b.lim.AllowN(now, n) {
		return true, 0
	}

	r := b.lim.ReserveN(now, n)
	if !r.OK() {
		return false, time.Duration(math.MaxInt64)
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, ceilMillis(wait)
}

// Available returns the current token count.
func (b *TokenBucket) Available() float64 {
	return b.lim.TokensAt(b.now())
}

// ceilMillis rounds d up to whole milliseconds, ignoring float noise below
// a microsecond.
func ceilMillis(d time.Duration) time.Duration {
	d = d.Round(time.Microsecond)
	return time.Duration(math.Ceil(float64(d)/float64(time.Millisecond))) * time.Millisecond
}
