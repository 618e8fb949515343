package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/progress"
	"github.com/JakeFAU/scqc/internal/store"
)

// StoreSink persists cycle progress through a store.ProgressRepository.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies events in order. The first repository error aborts the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) apply(ctx context.Context, evt progress.Event) error {
	id := evt.CycleUUID()
	switch evt.Kind {
	case progress.KindCycleStart:
		if err := s.repo.UpsertCycleStart(ctx, id, evt.Stage, evt.Cycle, evt.Items, evt.TS); err != nil {
			return fmt.Errorf("upsert cycle start: %w", err)
		}
	case progress.KindBatchDone:
		if err := s.repo.AddBatch(ctx, id, evt.Items, evt.Succeeded); err != nil {
			return fmt.Errorf("add batch: %w", err)
		}
	case progress.KindCycleDone:
		if err := s.repo.CompleteCycle(ctx, id, evt.TS, store.CycleSuccess, nil); err != nil {
			return fmt.Errorf("complete cycle: %w", err)
		}
	case progress.KindCycleError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteCycle(ctx, id, evt.TS, store.CycleError, note); err != nil {
			return fmt.Errorf("complete cycle: %w", err)
		}
	default:
		s.logger.Debug("ignoring progress event", zap.String("kind", string(evt.Kind)))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
