package stage

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/idlist"
)

// Config holds the scheduling knobs shared by every stage.
type Config struct {
	TodoFile   string
	DoneFile   string
	Sleep      time.Duration
	BatchSize  int
	BatchSleep time.Duration
	// Cycles bounds the number of cycles; 0 runs until stopped.
	Cycles int
}

// ExecuteFunc processes one batch and returns the identifiers that finished.
// Failed identifiers are simply left out and retried on a later cycle.
type ExecuteFunc func(ctx context.Context, batch []string) []string

// SetupFunc prepares a stage's working directories.
type SetupFunc func(ctx context.Context) error

// Stage is a named configuration bound to an executor.
type Stage struct {
	Name    string
	Kind    Kind
	Config  Config
	Execute ExecuteFunc
	Setup   SetupFunc
}

// Validate checks that the stage can be scheduled.
func (s Stage) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	if s.Execute == nil {
		return fmt.Errorf("stage %s: executor is required", s.Name)
	}
	if s.Config.BatchSize < 1 {
		return fmt.Errorf("stage %s: batchsize must be >= 1", s.Name)
	}
	if s.Config.Cycles < 0 {
		return fmt.Errorf("stage %s: ncycles must be >= 0", s.Name)
	}
	if s.Config.Sleep < 0 || s.Config.BatchSleep < 0 {
		return fmt.Errorf("stage %s: sleeps must be >= 0", s.Name)
	}
	return nil
}

// RunSetup calls the setup hook when present.
func (s Stage) RunSetup(ctx context.Context) error {
	if s.Setup == nil {
		return nil
	}
	if err := s.Setup(ctx); err != nil {
		return fmt.Errorf("setup %s: %w", s.Name, err)
	}
	return nil
}

// Todo returns the todo list store.
func (s Stage) Todo() idlist.Store {
	return idlist.NewStore(s.Config.TodoFile)
}

// Done returns the done list store.
func (s Stage) Done() idlist.Store {
	return idlist.NewStore(s.Config.DoneFile)
}

// Batches cuts items into consecutive slices of at most size elements. The
// slices share the backing array of items.
func Batches(items []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	out := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// ForEach applies fn to each id and returns the ids for which fn returned nil,
// in input order. Errors and panics are logged and isolate only their element.
func ForEach(
	ctx context.Context,
	ids []string,
	logger *zap.Logger,
	fn func(ctx context.Context, id string) error,
) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := guard(ctx, id, fn); err != nil {
			logger.Warn("item failed", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, id)
	}
	return out
}

func guard(ctx context.Context, id string, fn func(ctx context.Context, id string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}

// compact drops empty placeholder results and repeats.
func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, id)
	}
	return idlist.Dedupe(out)
}

func stack() string {
	return string(debug.Stack())
}
