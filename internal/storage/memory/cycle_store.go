package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/scqc/internal/store"
)

// CycleStore keeps cycle progress in memory for development and tests.
type CycleStore struct {
	mu     sync.RWMutex
	cycles map[uuid.UUID]store.CycleRun
}

// NewCycleStore constructs an empty CycleStore.
func NewCycleStore() *CycleStore {
	return &CycleStore{cycles: make(map[uuid.UUID]store.CycleRun)}
}

// UpsertCycleStart records a running cycle unless it already exists.
func (s *CycleStore) UpsertCycleStart(
	_ context.Context,
	id uuid.UUID,
	stage string,
	cycle int,
	workSet int64,
	startedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cycles[id]; ok {
		return nil
	}
	s.cycles[id] = store.CycleRun{
		ID:        id,
		Stage:     stage,
		Cycle:     cycle,
		StartedAt: startedAt,
		Status:    store.CycleRunning,
		WorkSet:   workSet,
	}
	return nil
}

// AddBatch accumulates batch counters.
func (s *CycleStore) AddBatch(_ context.Context, id uuid.UUID, attempted, succeeded int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.cycles[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Batches++
	run.Attempted += attempted
	run.Succeeded += succeeded
	s.cycles[id] = run
	return nil
}

// CompleteCycle sets the terminal status.
func (s *CycleStore) CompleteCycle(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.CycleStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.cycles[id]
	if !ok {
		return store.ErrNotFound
	}
	ts := finishedAt
	run.FinishedAt = &ts
	run.Status = status
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.cycles[id] = run
	return nil
}

// GetCycle returns a copy of the stored cycle.
func (s *CycleStore) GetCycle(_ context.Context, id uuid.UUID) (store.CycleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.cycles[id]
	if !ok {
		return store.CycleRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListCycles filters and pages cycles, newest first.
func (s *CycleStore) ListCycles(
	_ context.Context,
	filter store.CycleFilter,
	limit,
	offset int,
) ([]store.CycleRun, error) {
	s.mu.RLock()
	out := make([]store.CycleRun, 0, len(s.cycles))
	for _, run := range s.cycles {
		if filter.Stage != "" && run.Stage != filter.Stage {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []store.CycleRun{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
