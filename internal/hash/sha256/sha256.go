// Package sha256 digests catalog documents for the query cache.
package sha256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements pipeline.Hasher. Leading and trailing whitespace is ignored
// so a refetch of an unchanged package lands on the object already cached.
type Hasher struct{}

// New returns a document hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the lowercase hex SHA-256 of the trimmed document.
func (Hasher) Hash(doc []byte) (string, error) {
	sum := sha256.Sum256(bytes.TrimSpace(doc))
	return hex.EncodeToString(sum[:]), nil
}
