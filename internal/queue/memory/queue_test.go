package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type stubJob string

func (j stubJob) ID() string                    { return string(j) }
func (j stubJob) Execute(context.Context) error { return nil }

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(stubJob(id)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued jobs, got %d", q.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		job, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("expected job %s, queue empty", want)
		}
		if job.ID() != want {
			t.Fatalf("expected %s, got %s", want, job.ID())
		}
	}
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueCloseRejectsEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	if err := q.Enqueue(stubJob("primed")); err != nil {
		t.Fatalf("failed to prime queue: %v", err)
	}
	q.Close()
	q.Close()

	if err := q.Enqueue(stubJob("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	job, ok := q.TryDequeue()
	if !ok || job.ID() != "primed" {
		t.Fatalf("expected primed job to survive close, got %v %v", job, ok)
	}
}

func TestQueueConcurrentDequeueHandsOutEachJobOnce(t *testing.T) {
	t.Parallel()

	const n = 500
	q := NewQueue()
	for i := 0; i < n; i++ {
		if err := q.Enqueue(stubJob(fmt.Sprintf("job-%d", i))); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int, n)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := q.TryDequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[job.ID()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct jobs, got %d", n, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("job %s dequeued %d times", id, count)
		}
	}
}
