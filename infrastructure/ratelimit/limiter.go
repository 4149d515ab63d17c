package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

// Stats is a snapshot of the limiter.
type Stats struct {
	QPS               int     `json:"qps"`
	MaxConcurrent     int     `json:"max_concurrent"`
	CurrentConcurrent int     `json:"current_concurrent"`
	QueueLength       int     `json:"queue_length"`
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	TotalRejected     int64   `json:"total_rejected"`
	AvailableTokens   float64 `json:"available_tokens"`
}

// Limiter composes the token bucket and the semaphore. One instance is
// shared by every request of a process.
type Limiter struct {
	bucket        *TokenBucket
	sem           *Semaphore
	qps           int
	maxConcurrent int

	active   atomic.Int64
	requests atomic.Int64
	errors   atomic.Int64
	rejected atomic.Int64
}

// Option configures a Limiter.
type Option func(*limiterOptions)

type limiterOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now for the token bucket.
func WithClock(now func() time.Time) Option {
	return func(o *limiterOptions) {
		o.now = now
	}
}

// New creates a limiter admitting qps requests per second with at most
// maxConcurrent in flight.
func New(qps, maxConcurrent int, opts ...Option) *Limiter {
	o := limiterOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if qps <= 0 {
		qps = 1
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		bucket:        NewTokenBucket(qps, float64(qps), o.now),
		sem:           NewSemaphore(maxConcurrent),
		qps:           qps,
		maxConcurrent: maxConcurrent,
	}
}

// Execute consumes a token (failing fast with RATE_LIMIT_ERROR when none is
// left), then waits for a permit and runs fn. The permit is released before
// Execute returns, whatever fn does.
func Execute[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if ok, wait := l.bucket.TryConsume(1); !ok {
		l.rejected.Add(1)
		err := query.NewRateLimitError(wait)
		logging.Warn().
			Add(logging.Component("ratelimit")).
			Add(logging.Duration(wait)).
			Add(logging.ErrorCode(err)).
			Msg("rate limit exceeded")
		return zero, err
	}

	if err := l.sem.Acquire(ctx); err != nil {
		return zero, err
	}
	defer l.sem.Release()

	l.active.Add(1)
	defer l.active.Add(-1)
	l.requests.Add(1)

	v, err := fn(ctx)
	if err != nil {
		l.errors.Add(1)
	}
	return v, err
}

// Stats returns a snapshot of the limiter counters.
func (l *Limiter) Stats() Stats {
	return Stats{
		QPS:               l.qps,
		MaxConcurrent:     l.maxConcurrent,
		CurrentConcurrent: int(l.active.Load()),
		QueueLength:       l.sem.QueueLength(),
		TotalRequests:     l.requests.Load(),
		TotalErrors:       l.errors.Load(),
		TotalRejected:     l.rejected.Load(),
		AvailableTokens:   l.bucket.Available(),
	}
}
