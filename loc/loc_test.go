package loc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ten-framework/ten-runtime-go/loc"
)

func TestEqual(t *testing.T) {
	a := loc.New("app", "g1", "grp", "ext")
	b := loc.New("app", "g1", "grp", "ext")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestMatchesBroadcast(t *testing.T) {
	pattern := loc.New("app", "g1", "", "")
	concrete := loc.New("app", "g1", "grp", "ext")
	assert.True(t, concrete.Matches(pattern))

	other := loc.New("app", "g2", "grp", "ext")
	assert.False(t, other.Matches(pattern))
}

func TestUniqueName(t *testing.T) {
	l := loc.New("app", "g1", "grp", "ext")
	assert.Equal(t, "grp::ext", l.UniqueName())
}
