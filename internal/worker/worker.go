// Package worker implements the pool's job execution loop.
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/metrics"
	"github.com/JakeFAU/scqc/internal/pipeline"
)

// Source hands out queued jobs without blocking.
type Source interface {
	TryDequeue() (pipeline.Job, bool)
}

// Collector accumulates the IDs of jobs that completed without error.
type Collector struct {
	mu  sync.Mutex
	ids []string
}

// Add records a successful job ID.
func (c *Collector) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
}

// IDs returns a copy of the recorded IDs in completion order.
func (c *Collector) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len reports how many IDs have been recorded.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Worker drains a Source, executing one job at a time.
type Worker struct {
	name      string
	source    Source
	collector *Collector
	logger    *zap.Logger
}

// New constructs a Worker.
func New(name string, source Source, collector *Collector, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:      name,
		source:    source,
		collector: collector,
		logger:    logger.With(zap.String("worker", name)),
	}
}

// Run executes jobs until the source is empty. Job failures and panics are
// logged and never escape Run. Jobs receive ctx unchanged; once pulled, a job
// is not interrupted by the pool.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ok := w.source.TryDequeue()
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job pipeline.Job) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.logger.Debug("job started", zap.String("job_id", job.ID()))
	if err := execute(ctx, job); err != nil {
		metrics.ObserveJob("failed")
		w.logger.Error("job failed", zap.String("job_id", job.ID()), zap.Error(err))
		return
	}
	metrics.ObserveJob("succeeded")
	if w.collector != nil {
		w.collector.Add(job.ID())
	}
	w.logger.Debug("job finished", zap.String("job_id", job.ID()))
}

func execute(ctx context.Context, job pipeline.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(ctx)
}
