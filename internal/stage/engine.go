package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/clock/system"
	idgen "github.com/JakeFAU/scqc/internal/id/uuid"
	"github.com/JakeFAU/scqc/internal/idlist"
	"github.com/JakeFAU/scqc/internal/pipeline"
	"github.com/JakeFAU/scqc/internal/progress"
)

// State is the engine's position in its cycle.
type State string

// Engine states.
const (
	StateIdle          State = "idle"
	StateComputingDiff State = "computing_diff"
	StateBatching      State = "batching"
	StateExecuting     State = "executing"
	StatePersisting    State = "persisting"
	StateSleeping      State = "sleeping"
	StateTerminal      State = "terminal"
)

// BatchNotification is published after each batch is persisted.
type BatchNotification struct {
	Stage     string    `json:"stage"`
	CycleID   string    `json:"cycle_id"`
	Cycle     int       `json:"cycle"`
	Batch     int       `json:"batch"`
	Attempted int       `json:"attempted"`
	Finished  []string  `json:"finished"`
	At        time.Time `json:"at"`
}

// BatchStats summarizes the most recent batch.
type BatchStats struct {
	Index     int           `json:"index"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Duration  time.Duration `json:"duration"`
}

// Status is a point-in-time snapshot of an engine.
type Status struct {
	Stage       string     `json:"stage"`
	State       State      `json:"state"`
	Cycle       int        `json:"cycle"`
	CycleID     string     `json:"cycle_id,omitempty"`
	Outstanding int        `json:"outstanding"`
	Batches     int        `json:"batches"`
	LastBatch   BatchStats `json:"last_batch"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Deps are the collaborators of an Engine. Nil fields get working defaults,
// except Publisher which is skipped when nil.
type Deps struct {
	Clock     pipeline.Clock
	IDs       pipeline.IDGenerator
	Progress  progress.Emitter
	Publisher pipeline.Publisher
	Topic     string
	Logger    *zap.Logger
}

// Engine drives one Stage through its cycles. Run must not be called
// concurrently; Stop and Status are safe from any goroutine.
type Engine struct {
	stage  Stage
	deps   Deps
	logger *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	mu     sync.RWMutex
	status Status
}

// NewEngine validates st and binds it to deps.
func NewEngine(st Stage, deps Deps) (*Engine, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = idgen.New()
	}
	if deps.Progress == nil {
		deps.Progress = progress.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	e := &Engine{
		stage:  st,
		deps:   deps,
		logger: deps.Logger.Named("engine").With(zap.String("stage", st.Name)),
		stopCh: make(chan struct{}),
	}
	e.status = Status{Stage: st.Name, State: StateIdle, UpdatedAt: deps.Clock.Now()}
	return e, nil
}

// Stage returns the bound stage.
func (e *Engine) Stage() Stage {
	return e.stage
}

// Stop asks the engine to finish the in-flight batch and return.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("stop requested")
		close(e.stopCh)
	})
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Engine) update(fn func(*Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.status)
	e.status.UpdatedAt = e.deps.Clock.Now()
}

func (e *Engine) setState(s State) {
	e.update(func(st *Status) { st.State = s })
}

// Run loops until the cycle limit is reached, Stop is called or ctx is
// cancelled. Interruption returns nil; list I/O failures are fatal.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	limit := e.stage.Config.Cycles
	e.logger.Info("stage starting",
		zap.String("todo", e.stage.Config.TodoFile),
		zap.String("done", e.stage.Config.DoneFile),
		zap.Int("batchsize", e.stage.Config.BatchSize),
		zap.Int("ncycles", limit),
	)
	for cycle := 0; ; {
		if e.stopping(ctx) {
			return e.interrupted(cycle)
		}
		completed, err := e.runCycle(ctx, cycle)
		if err != nil {
			e.setState(StateTerminal)
			return err
		}
		if !completed {
			return e.interrupted(cycle)
		}
		cycle++
		e.update(func(st *Status) { st.Cycle = cycle })
		if limit > 0 && cycle >= limit {
			e.setState(StateTerminal)
			e.logger.Info("cycle limit reached", zap.Int("cycles", cycle))
			return nil
		}
		e.setState(StateSleeping)
		e.logger.Debug("cycle sleep", zap.Duration("sleep", e.stage.Config.Sleep))
		if err := e.deps.Clock.Sleep(ctx, e.stage.Config.Sleep); err != nil {
			return e.interrupted(cycle)
		}
	}
}

func (e *Engine) stopping(ctx context.Context) bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return ctx.Err() != nil
	}
}

func (e *Engine) interrupted(cycle int) error {
	e.setState(StateTerminal)
	e.logger.Info("stage interrupted", zap.Int("cycle", cycle))
	return nil
}

// runCycle performs one diff/execute/persist pass. It reports false when the
// cycle was cut short by shutdown.
func (e *Engine) runCycle(ctx context.Context, cycle int) (bool, error) {
	started := e.deps.Clock.Now()
	cycleID, err := e.deps.IDs.NewRawID()
	if err != nil {
		return false, fmt.Errorf("generate cycle id: %w", err)
	}
	rawID := progress.UUIDToBytes(cycleID)

	e.setState(StateComputingDiff)
	todoStore, doneStore := e.stage.Todo(), e.stage.Done()
	todo, err := todoStore.Load()
	if err != nil {
		return false, e.fatal(rawID, cycle, started, fmt.Errorf("read todo list: %w", err))
	}
	done, err := doneStore.Load()
	if err != nil {
		return false, e.fatal(rawID, cycle, started, fmt.Errorf("read done list: %w", err))
	}
	work := idlist.Diff(todo, done)

	e.setState(StateBatching)
	batches := Batches(work, e.stage.Config.BatchSize)
	e.update(func(st *Status) {
		st.CycleID = cycleID.String()
		st.Outstanding = len(work)
		st.Batches = len(batches)
	})
	e.emit(progress.Event{
		CycleID: rawID,
		Kind:    progress.KindCycleStart,
		Cycle:   cycle,
		Items:   int64(len(work)),
	})
	e.logger.Info("cycle starting",
		zap.Int("cycle", cycle),
		zap.Int("todo", len(todo)),
		zap.Int("done", len(done)),
		zap.Int("outstanding", len(work)),
		zap.Int("batches", len(batches)),
	)

	for i, batch := range batches {
		if e.stopping(ctx) {
			e.emitCycleEnd(rawID, cycle, started, "interrupted")
			return false, nil
		}
		batchStart := e.deps.Clock.Now()
		e.setState(StateExecuting)
		finished := e.execute(context.WithoutCancel(ctx), batch)

		e.setState(StatePersisting)
		if doneStore.Enabled() && len(finished) > 0 {
			merged := idlist.Merge(done, finished)
			if err := doneStore.Save(merged); err != nil {
				return false, e.fatal(rawID, cycle, started, fmt.Errorf("write done list: %w", err))
			}
			done = merged
		}
		elapsed := e.deps.Clock.Now().Sub(batchStart)
		e.recordBatch(rawID, cycle, i, batch, finished, elapsed)
		e.notify(ctx, cycleID, cycle, i, batch, finished)

		if e.stage.Config.BatchSleep > 0 {
			e.setState(StateSleeping)
			if err := e.deps.Clock.Sleep(ctx, e.stage.Config.BatchSleep); err != nil {
				e.emitCycleEnd(rawID, cycle, started, "interrupted")
				return false, nil
			}
		}
	}
	e.emitCycleEnd(rawID, cycle, started, "")
	return true, nil
}

// execute runs the stage executor on batch. A panic escaping the executor
// yields an empty result.
func (e *Engine) execute(ctx context.Context, batch []string) (finished []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor panicked",
				zap.Any("panic", r),
				zap.Int("batch_size", len(batch)),
				zap.String("stack", stack()),
			)
			finished = nil
		}
	}()
	return compact(e.stage.Execute(ctx, batch))
}

func (e *Engine) recordBatch(rawID [16]byte, cycle, index int, batch, finished []string, elapsed time.Duration) {
	stats := BatchStats{
		Index:     index,
		Attempted: len(batch),
		Succeeded: min(len(finished), len(batch)),
		Duration:  elapsed,
	}
	e.update(func(st *Status) {
		st.LastBatch = stats
		st.Outstanding -= stats.Succeeded
		if st.Outstanding < 0 {
			st.Outstanding = 0
		}
	})
	e.emit(progress.Event{
		CycleID:   rawID,
		Kind:      progress.KindBatchDone,
		Cycle:     cycle,
		Batch:     index,
		Items:     int64(stats.Attempted),
		Succeeded: int64(stats.Succeeded),
		Dur:       elapsed,
	})
	e.logger.Info("batch finished",
		zap.Int("cycle", cycle),
		zap.Int("batch", index),
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", len(finished)),
		zap.Duration("elapsed", elapsed),
	)
}

func (e *Engine) notify(ctx context.Context, cycleID uuid.UUID, cycle, index int, batch, finished []string) {
	if e.deps.Publisher == nil || e.deps.Topic == "" || len(finished) == 0 {
		return
	}
	msg := BatchNotification{
		Stage:     e.stage.Name,
		CycleID:   cycleID.String(),
		Cycle:     cycle,
		Batch:     index,
		Attempted: len(batch),
		Finished:  finished,
		At:        e.deps.Clock.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := e.deps.Publisher.Publish(pubCtx, e.deps.Topic, msg); err != nil {
		e.logger.Warn("batch notification failed", zap.Error(err))
	}
}

func (e *Engine) fatal(rawID [16]byte, cycle int, started time.Time, err error) error {
	e.logger.Error("stage failed", zap.Int("cycle", cycle), zap.Error(err), zap.Stack("stack"))
	e.emit(progress.Event{
		CycleID: rawID,
		Kind:    progress.KindCycleError,
		Cycle:   cycle,
		Dur:     e.deps.Clock.Now().Sub(started),
		Note:    err.Error(),
	})
	return fmt.Errorf("stage %s: %w", e.stage.Name, err)
}

func (e *Engine) emitCycleEnd(rawID [16]byte, cycle int, started time.Time, note string) {
	e.emit(progress.Event{
		CycleID: rawID,
		Kind:    progress.KindCycleDone,
		Cycle:   cycle,
		Dur:     e.deps.Clock.Now().Sub(started),
		Note:    note,
	})
}

func (e *Engine) emit(evt progress.Event) {
	evt.Stage = e.stage.Name
	if evt.TS.IsZero() {
		evt.TS = e.deps.Clock.Now().UTC()
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	e.deps.Progress.Emit(evt)
}
