package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scqc/internal/progress"
)

// PrometheusSink exports stage-cycle metrics.
type PrometheusSink struct {
	cyclesStarted   *prometheus.CounterVec
	cyclesCompleted *prometheus.CounterVec
	cycleRuntime    *prometheus.HistogramVec
	outstanding     *prometheus.GaugeVec

	batchItems    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scqc_cycles_started_total",
			Help: "Stage cycles started.",
		}, []string{"stage"}),
		cyclesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scqc_cycles_completed_total",
			Help: "Stage cycles completed partitioned by result.",
		}, []string{"stage", "result"}),
		cycleRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scqc_cycle_runtime_seconds",
			Help:    "Wall time per completed cycle.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 21600},
		}, []string{"stage"}),
		outstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scqc_outstanding_items",
			Help: "Work set size at the start of the latest cycle.",
		}, []string{"stage"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scqc_batch_items_total",
			Help: "Identifiers processed by batches partitioned by result.",
		}, []string{"stage", "result"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scqc_batch_duration_seconds",
			Help:    "Executor wall time per batch.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
	}
	for _, collector := range []prometheus.Collector{
		s.cyclesStarted,
		s.cyclesCompleted,
		s.cycleRuntime,
		s.outstanding,
		s.batchItems,
		s.batchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindCycleStart:
			s.cyclesStarted.WithLabelValues(evt.Stage).Inc()
			s.outstanding.WithLabelValues(evt.Stage).Set(float64(evt.Items))
		case progress.KindBatchDone:
			s.batchItems.WithLabelValues(evt.Stage, "success").Add(float64(evt.Succeeded))
			s.batchItems.WithLabelValues(evt.Stage, "failure").Add(float64(evt.Items - evt.Succeeded))
			if evt.Dur > 0 {
				s.batchDuration.WithLabelValues(evt.Stage).Observe(evt.Dur.Seconds())
			}
		case progress.KindCycleDone:
			s.complete(evt, "success")
		case progress.KindCycleError:
			s.complete(evt, "error")
		}
	}
	return nil
}

func (s *PrometheusSink) complete(evt progress.Event, result string) {
	s.cyclesCompleted.WithLabelValues(evt.Stage, result).Inc()
	if evt.Dur > 0 {
		s.cycleRuntime.WithLabelValues(evt.Stage).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
