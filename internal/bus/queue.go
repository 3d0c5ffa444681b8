// Package bus carries inbound signals from their producer to the
// orchestrator through a bounded in-memory queue.
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("signal queue full")
	ErrQueueClosed = errors.New("signal queue closed")
)

// Queue is a bounded, non-blocking signal queue.
type Queue struct {
	ch     chan schema.Signal
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.Signal, capacity)}
}

// TryPublish enqueues a signal without blocking.
func (q *Queue) TryPublish(s schema.Signal) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- s:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new signals.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes signals until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(schema.Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-q.ch:
			if !ok {
				return
			}
			handler(s)
		}
	}
}
