package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/progress"
)

// LogSink writes one structured line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Cycle errors log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("cycle_id", evt.CycleUUID().String()),
			zap.String("kind", string(evt.Kind)),
			zap.String("stage", evt.Stage),
			zap.Int("cycle", evt.Cycle),
			zap.Int64("items", evt.Items),
			zap.Int64("succeeded", evt.Succeeded),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Kind == progress.KindBatchDone {
			fields = append(fields, zap.Int("batch", evt.Batch))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Kind == progress.KindCycleError {
			s.logger.Warn("stage progress", fields...)
			continue
		}
		s.logger.Debug("stage progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
