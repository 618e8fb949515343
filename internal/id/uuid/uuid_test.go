package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleIDsAreTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	prev, err := gen.NewRawID()
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), prev.Version())

	for range 50 {
		next, err := gen.NewRawID()
		require.NoError(t, err)
		assert.Less(t, prev.String(), next.String())
		prev = next
	}
}
