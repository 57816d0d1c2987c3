// Package syncx provides synchronization primitives shared by the engine worker.
package syncx

import (
	"context"
	"sync"
)

// Queue is a mutex that admits holders in arrival order.
// Waiters whose context ends leave the line without acquiring.
type Queue struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// Acquire blocks until the caller holds the queue or ctx is done.
func (q *Queue) Acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.held && len(q.waiters) == 0 {
		q.held = true
		q.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, w := range q.waiters {
			if w == ready {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				return ctx.Err()
			}
		}
		// Ownership was handed over concurrently; pass it on.
		q.releaseLocked()
		return ctx.Err()
	}
}

// Release hands the queue to the next waiter, if any.
func (q *Queue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked()
}

func (q *Queue) releaseLocked() {
	if len(q.waiters) == 0 {
		q.held = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// Len returns the number of callers waiting behind the holder.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
