package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("<EXPERIMENT_PACKAGE_SET/>"))
	require.NoError(t, err)
	assert.Len(t, got, 64)

	empty, err := New().Hash(nil)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", empty)
}

func TestHashIgnoresSurroundingWhitespace(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("<doc>x</doc>"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("\n  <doc>x</doc>\n\n"))
	require.NoError(t, err)
	c, err := h.Hash([]byte("<doc>y</doc>"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
