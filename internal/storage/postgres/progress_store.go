package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/scqc/internal/store"
)

const cycleColumns = `id, stage, cycle, started_at, finished_at, status,
	work_set, batches, attempted, succeeded, error_message`

// ProgressStore implements store.ProgressRepository on the cycle_runs table.
type ProgressStore struct {
	db DB
}

// NewProgressStore wraps an existing pool.
func NewProgressStore(db DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Close closes the underlying connection pool.
func (s *ProgressStore) Close() {
	s.db.Close()
}

// UpsertCycleStart inserts a running cycle; a duplicate id is ignored.
func (s *ProgressStore) UpsertCycleStart(
	ctx context.Context,
	id uuid.UUID,
	stage string,
	cycle int,
	workSet int64,
	startedAt time.Time,
) error {
	query := `
		INSERT INTO cycle_runs (id, stage, cycle, started_at, status, work_set)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, id, stage, cycle, startedAt, string(store.CycleRunning), workSet); err != nil {
		return fmt.Errorf("upsert cycle start: %w", err)
	}
	return nil
}

// AddBatch increments the batch counters of a cycle.
func (s *ProgressStore) AddBatch(ctx context.Context, id uuid.UUID, attempted, succeeded int64) error {
	query := `
		UPDATE cycle_runs
		SET batches = batches + 1, attempted = attempted + $1, succeeded = succeeded + $2
		WHERE id = $3;
	`
	res, err := s.db.Exec(ctx, query, attempted, succeeded, id)
	if err != nil {
		return fmt.Errorf("add cycle batch: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteCycle marks a cycle finished.
func (s *ProgressStore) CompleteCycle(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.CycleStatus,
	errMsg *string,
) error {
	query := `
		UPDATE cycle_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	res, err := s.db.Exec(ctx, query, finishedAt, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetCycle retrieves a single cycle by its ID.
func (s *ProgressStore) GetCycle(ctx context.Context, id uuid.UUID) (store.CycleRun, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycle_runs WHERE id = $1;`
	run, err := scanCycle(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CycleRun{}, store.ErrNotFound
		}
		return store.CycleRun{}, fmt.Errorf("get cycle: %w", err)
	}
	return run, nil
}

// ListCycles returns cycles newest first with optional stage/status filters.
func (s *ProgressStore) ListCycles(
	ctx context.Context,
	filter store.CycleFilter,
	limit,
	offset int,
) ([]store.CycleRun, error) {
	query := `SELECT ` + cycleColumns + `
		FROM cycle_runs
		WHERE ($1::text = '' OR stage = $1)
		AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4;`
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	rows, err := s.db.Query(ctx, query, filter.Stage, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	runs := []store.CycleRun{}
	for rows.Next() {
		run, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle rows: %w", err)
	}
	return runs, nil
}

func scanCycle(row pgx.Row) (store.CycleRun, error) {
	var (
		run    store.CycleRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Stage,
		&run.Cycle,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.WorkSet,
		&run.Batches,
		&run.Attempted,
		&run.Succeeded,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.CycleRun{}, err
	}
	run.Status = store.CycleStatus(status)
	return run, nil
}
