// Package memory provides the in-process job queue shared by pool workers.
package memory

import (
	"errors"
	"sync"

	"github.com/JakeFAU/scqc/internal/pipeline"
)

// ErrClosed is returned when enqueueing onto a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of pipeline jobs. Each job is handed to exactly
// one caller of TryDequeue.
type Queue struct {
	mu     sync.Mutex
	items  []pipeline.Job
	closed bool
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a job. It never blocks.
func (q *Queue) Enqueue(job pipeline.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, job)
	return nil
}

// TryDequeue pops the oldest job. The boolean is false when the queue is empty.
func (q *Queue) TryDequeue() (pipeline.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues. Jobs already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
