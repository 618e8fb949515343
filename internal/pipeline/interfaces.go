package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore caches raw catalog documents under content-addressed paths.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordStore persists classified metadata records beyond the TSV files.
type RecordStore interface {
	StoreRecords(ctx context.Context, records []MetadataRecord) error
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and performs context-aware sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces cycle IDs (UUIDs).
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
