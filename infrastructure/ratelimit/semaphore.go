package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting gate with a strict FIFO wait queue: a newcomer
// never overtakes a queued caller. Acquire honours context cancellation and
// an abandoned waiter leaves the queue.
type Semaphore struct {
	w       *semaphore.Weighted
	max     int64
	held    atomic.Int64
	waiting atomic.Int64
}

// NewSemaphore returns a semaphore with n free permits.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{w: semaphore.NewWeighted(int64(n)), max: int64(n)}
}

// Acquire takes a permit, suspending in FIFO order while none is free.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.TryAcquire() {
		return nil
	}

	s.waiting.Add(1)
	err := s.w.Acquire(ctx, 1)
	s.waiting.Add(-1)
	if err != nil {
		return err
	}
	s.held.Add(1)
	return nil
}

// TryAcquire takes a permit only if one is free and nobody is queued.
func (s *Semaphore) TryAcquire() bool {
	if !s.w.TryAcquire(1) {
		return false
	}
	s.held.Add(1)
	return true
}

// Release returns a permit, waking the longest-waiting caller first.
func (s *Semaphore) Release() {
	s.held.Add(-1)
	s.w.Release(1)
}

// Available returns the number of free permits.
func (s *Semaphore) Available() int {
	return int(s.max - s.held.Load())
}

// QueueLength returns the number of suspended callers.
func (s *Semaphore) QueueLength() int {
	return int(s.waiting.Load())
}
