package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/value"
)

func TestGetSetRoundtrip(t *testing.T) {
	tr := value.NewTree()
	require.NoError(t, tr.Set("detail", "world"))
	require.NoError(t, tr.Set("count", int64(3)))

	s, err := tr.GetString("detail")
	require.NoError(t, err)
	assert.Equal(t, "world", s)

	n, err := tr.GetInt64("count")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestScopedPrefix(t *testing.T) {
	tr := value.NewTree()
	require.NoError(t, tr.Set("extension.name", "foo"))
	s, err := tr.GetString("extension.name")
	require.NoError(t, err)
	assert.Equal(t, "foo", s)
}

func TestCloneIsIndependent(t *testing.T) {
	tr := value.NewTree()
	require.NoError(t, tr.Set("x", int64(1)))
	clone := tr.Clone()
	require.NoError(t, clone.Set("x", int64(2)))

	orig, _ := tr.GetInt64("x")
	cloned, _ := clone.GetInt64("x")
	assert.EqualValues(t, 1, orig)
	assert.EqualValues(t, 2, cloned)
}

func TestGetMissing(t *testing.T) {
	tr := value.NewTree()
	_, err := tr.Get("nope")
	assert.Error(t, err)
}
