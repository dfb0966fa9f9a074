// Package queue provides a bounded FIFO queue for many producers and a single
// consumer. Producers never block: a push into a full queue is rejected.
package queue

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New when the capacity is not positive.
var ErrInvalidCapacity = errors.New("queue capacity must be positive")

// Queue is a bounded FIFO queue backed by a buffered channel.
type Queue[T any] struct {
	items chan T

	pushed   atomic.Int64
	rejected atomic.Int64
}

func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Queue[T]{items: make(chan T, capacity)}, nil
}

// TryPush appends item to the queue. It returns false without blocking if the
// queue is full.
func (q *Queue[T]) TryPush(item T) bool {
	select {
	case q.items <- item:
		q.pushed.Add(1)
		return true
	default:
		q.rejected.Add(1)
		return false
	}
}

// TryPop removes the oldest item. The second result is false if the queue is
// empty.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Items exposes the receive side of the queue so that the consumer can wait
// for the next item in a select statement.
func (q *Queue[T]) Items() <-chan T {
	return q.items
}

func (q *Queue[T]) Len() int {
	return len(q.items)
}

func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Pushed returns the number of successful pushes.
func (q *Queue[T]) Pushed() int64 {
	return q.pushed.Load()
}

// Rejected returns the number of pushes refused because the queue was full.
func (q *Queue[T]) Rejected() int64 {
	return q.rejected.Load()
}
