// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scqc/internal/pipeline"
	"github.com/JakeFAU/scqc/internal/queue/memory"
	"github.com/JakeFAU/scqc/internal/worker"
)

// Dispatcher fans queued jobs out to a fixed number of workers and offers a
// join barrier that returns the IDs of successful jobs.
type Dispatcher struct {
	queue     *memory.Queue
	collector *worker.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	group   *errgroup.Group
	ctx     context.Context
	workers int
	rounds  int
}

// New creates a Dispatcher with an empty queue.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:     memory.NewQueue(),
		collector: &worker.Collector{},
		logger:    logger.Named("dispatcher"),
		workers:   1,
	}
}

// Submit queues a job. It never blocks on worker availability.
func (d *Dispatcher) Submit(ctx context.Context, job pipeline.Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit %s: %w", job.ID(), err)
	}
	if err := d.queue.Enqueue(job); err != nil {
		return fmt.Errorf("submit %s: %w", job.ID(), err)
	}
	return nil
}

// Run starts n workers against the queue and returns immediately. More
// workers than jobs is legal; idle workers exit as soon as the queue drains.
func (d *Dispatcher) Run(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
	d.workers = n
	d.startLocked()
}

func (d *Dispatcher) startLocked() {
	if d.ctx == nil {
		d.ctx = context.Background()
	}
	ctx := d.ctx
	group := &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		w := worker.New(fmt.Sprintf("w%d-%d", d.rounds, i), d.queue, d.collector, d.logger)
		group.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	d.group = group
	d.rounds++
	d.logger.Debug("workers started", zap.Int("workers", d.workers), zap.Int("queued", d.queue.Len()))
}

// Join blocks until every submitted job has been executed, then returns the
// IDs of jobs that finished without error in completion order. Jobs submitted
// after the workers drained the queue are picked up by a fresh set of workers.
func (d *Dispatcher) Join() []string {
	for {
		d.mu.Lock()
		group := d.group
		if group == nil {
			if d.queue.Len() == 0 {
				d.mu.Unlock()
				break
			}
			d.startLocked()
			group = d.group
		}
		d.mu.Unlock()

		_ = group.Wait()

		d.mu.Lock()
		d.group = nil
		pending := d.queue.Len()
		d.mu.Unlock()
		if pending == 0 {
			break
		}
	}
	ids := d.collector.IDs()
	d.logger.Debug("pool joined", zap.Int("succeeded", len(ids)))
	return ids
}

// Close rejects further submissions.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// RunAll submits jobs, runs them on n workers and waits for completion.
func RunAll(ctx context.Context, jobs []pipeline.Job, n int, logger *zap.Logger) ([]string, error) {
	d := New(logger)
	for _, job := range jobs {
		if err := d.Submit(ctx, job); err != nil {
			return nil, err
		}
	}
	d.Run(ctx, n)
	defer d.Close()
	return d.Join(), nil
}
