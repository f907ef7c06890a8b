package flow

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore with a FIFO waiter queue.
//
// Release hands a freed permit directly to the oldest waiter instead of
// returning it to the pool, so waiters proceed in arrival order without
// starvation or spurious wakeups. A buffered channel per waiter makes the
// handoff non-blocking for the releaser.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity. Capacities
// below 1 are clamped to 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{permits: capacity}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{}, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The permit was already handed to us; pass it on.
		<-ch
		s.Release()
		return ctx.Err()
	}
}

// Release frees a permit, handing it to the head waiter if one exists.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		ch <- struct{}{}
		return
	}
	s.permits++
	s.mu.Unlock()
}
