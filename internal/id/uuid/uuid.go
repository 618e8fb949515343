// Package uuid issues cycle identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements pipeline.IDGenerator with version 7 UUIDs, so cycle rows
// sort by start time in the history table.
type Generator struct{}

// New returns a cycle ID generator.
func New() Generator {
	return Generator{}
}

// NewRawID returns the next cycle ID.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("cycle id: %w", err)
	}
	return id, nil
}
