package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// CycleStatus mirrors the cycle_runs status column.
type CycleStatus string

// Cycle statuses persisted in cycle_runs.status.
const (
	CycleRunning CycleStatus = "running"
	CycleSuccess CycleStatus = "success"
	CycleError   CycleStatus = "error"
)

// CycleRun is one pass of a stage over its work set.
type CycleRun struct {
	ID    uuid.UUID
	Stage string
	// Cycle is the engine counter at the time the cycle started.
	Cycle     int
	StartedAt time.Time
	// FinishedAt is nil while the cycle is running.
	FinishedAt *time.Time
	Status     CycleStatus
	// WorkSet is the number of outstanding identifiers when the cycle began.
	WorkSet   int64
	Batches   int64
	Attempted int64
	Succeeded int64
	// ErrorMessage holds the engine-fatal error, if any.
	ErrorMessage *string
}

// CycleFilter narrows ListCycles. Zero values match everything.
type CycleFilter struct {
	Stage  string
	Status *CycleStatus
}

// ProgressRepository persists stage-cycle progress.
type ProgressRepository interface {
	// UpsertCycleStart inserts the cycle in running state; repeats are no-ops.
	UpsertCycleStart(ctx context.Context, id uuid.UUID, stage string, cycle int, workSet int64, startedAt time.Time) error
	// AddBatch applies one batch's attempted/succeeded deltas.
	AddBatch(ctx context.Context, id uuid.UUID, attempted, succeeded int64) error
	// CompleteCycle marks the cycle finished with the given status.
	CompleteCycle(ctx context.Context, id uuid.UUID, finishedAt time.Time, status CycleStatus, errMsg *string) error

	// GetCycle loads one cycle or returns ErrNotFound.
	GetCycle(ctx context.Context, id uuid.UUID) (CycleRun, error)
	// ListCycles returns cycles newest first.
	ListCycles(ctx context.Context, filter CycleFilter, limit, offset int) ([]CycleRun, error)
}
