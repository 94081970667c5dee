// ABOUTME: Generic bounded FIFO queue with non-blocking put and timed get.
// ABOUTME: The only channel between the agent loop and the reporter worker.

package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by Put when the queue is at capacity.
	ErrFull = errors.New("queue is full")

	// ErrTimeout is returned by Get when no item arrived within the timeout.
	ErrTimeout = errors.New("queue get timed out")

	// ErrClosed is returned by Put after Close, and by Get once the queue
	// has been closed and drained.
	ErrClosed = errors.New("queue is closed")
)

// Queue is a fixed-capacity FIFO safe for concurrent producers and consumers.
// Items from a single producer are delivered in the order they were put.
type Queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding at most capacity items. A capacity below one
// is raised to one.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Put appends item without blocking. The caller decides what to do with
// ErrFull; nothing is dropped silently.
func (q *Queue[T]) Put(item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrFull
	}
}

// Get removes the oldest item, waiting up to timeout for one to arrive.
// A timeout <= 0 waits until an item arrives, the queue is closed, or ctx
// is done.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	// Fast path so a ready item wins over an expired timer or closed queue.
	select {
	case item := <-q.items:
		return item, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case item := <-q.items:
		return item, nil
	case <-expired:
		return zero, ErrTimeout
	case <-q.done:
		if item, ok := q.TryGet(); ok {
			return item, nil
		}
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryGet removes the oldest item if one is immediately available.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Close stops further puts. Items already queued can still be read.
// It is safe to call multiple times.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
