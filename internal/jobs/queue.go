// Package jobs runs resolution and archive work off a bounded in-memory
// queue with a fixed worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TaskKind distinguishes the two job types.
type TaskKind string

// Task kinds.
const (
	TaskResolve TaskKind = "resolve"
	TaskArchive TaskKind = "archive"
)

// Task is one unit of queued work. Resolve tasks are keyed by project;
// archive tasks additionally carry their own job ID.
type Task struct {
	Kind        TaskKind
	JobID       string
	ProjectID   string
	ProjectName string
}

// Queue is a bounded task queue with context-aware operations.
type Queue struct {
	ch      chan Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Task, capacity)}
}

// Enqueue pushes a task or returns when the context ends.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case <-ctx.Done():
		return Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown. Safe to call twice.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
