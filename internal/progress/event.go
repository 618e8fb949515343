package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes the cycle milestone represented by an Event.
type Kind string

// Supported progress kinds.
const (
	KindCycleStart Kind = "CYCLE_START"
	KindBatchDone  Kind = "BATCH_DONE"
	KindCycleDone  Kind = "CYCLE_DONE"
	KindCycleError Kind = "CYCLE_ERROR"
)

// Event captures one milestone of a stage cycle.
type Event struct {
	// CycleID identifies a single pass of a stage over its work set.
	CycleID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind says which milestone occurred.
	Kind Kind
	// Stage is the configured stage name (query, impute, ...).
	Stage string
	// Cycle is the engine's zero-based cycle counter.
	Cycle int
	// Batch is the zero-based batch index; only meaningful for BATCH_DONE.
	Batch int
	// Items is the number of identifiers attempted. For CYCLE_START it is
	// the size of the work set.
	Items int64
	// Succeeded is the number of identifiers merged into the done list.
	Succeeded int64
	// Dur is the batch or cycle wall time.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CycleID == [16]byte{} {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Stage == "" {
		return errors.New("stage is required")
	}
	switch e.Kind {
	case KindCycleStart, KindCycleDone, KindCycleError:
	case KindBatchDone:
		if e.Succeeded > e.Items {
			return fmt.Errorf("succeeded %d exceeds items %d", e.Succeeded, e.Items)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Items < 0 || e.Succeeded < 0 {
		return errors.New("counters must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// CycleUUID converts the binary cycle ID to uuid.UUID for repositories.
func (e Event) CycleUUID() uuid.UUID {
	return uuid.UUID(e.CycleID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
