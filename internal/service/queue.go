package service

import (
	"context"
	"errors"
	"sync"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// QueuedExecutor puts a bounded queue in front of a blocking Executor such as an
// ants pool. Submit never waits: it enqueues or fails with ErrQueueFull, and a
// dispatcher goroutine hands queued work to the pool as workers free up.
type QueuedExecutor struct {
	pool  Executor
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewQueuedExecutor starts the dispatcher. capacity below 1 is treated as 1.
func NewQueuedExecutor(pool Executor, capacity int) *QueuedExecutor {
	if capacity < 1 {
		capacity = 1
	}
	q := &QueuedExecutor{
		pool:  pool,
		tasks: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Submit enqueues task without blocking.
func (q *QueuedExecutor) Submit(task func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of tasks waiting for a worker.
func (q *QueuedExecutor) Len() int {
	return len(q.tasks)
}

func (q *QueuedExecutor) dispatch() {
	defer close(q.done)
	for task := range q.tasks {
		if err := q.pool.Submit(task); err != nil {
			// The pool is gone; queued work still has to reach a terminal state.
			logger.GetDefault().WithError(err).Warn("Pool rejected queued task, running it on the dispatcher")
			task()
		}
	}
}

// Close stops accepting work and waits until every queued task has been handed
// to the pool, or ctx ends.
func (q *QueuedExecutor) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
