package msg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
)

func TestNewCommandHasCmdID(t *testing.T) {
	m := msg.NewCommand("hello")
	assert.NotEmpty(t, m.CmdID)
	assert.Empty(t, m.ParentCmdID)
}

func TestCloneIndependentDestAndProps(t *testing.T) {
	m := msg.NewCommand("hello")
	m.AddDest(loc.New("a", "g", "grp", "b"))
	require.NoError(t, m.SetProp("x", int64(1)))

	c := m.Clone()
	c.AddDest(loc.New("a", "g", "grp", "c"))
	require.NoError(t, c.SetProp("x", int64(2)))

	assert.Len(t, m.IterDest(), 1)
	assert.Len(t, c.IterDest(), 2)

	ov, _ := m.GetProp("x")
	cv, _ := c.GetProp("x")
	assert.Equal(t, "1", ov)
	assert.Equal(t, "2", cv)
}

func TestRegenerateCmdIDOnCollision(t *testing.T) {
	m := msg.NewCommand("hello")
	original := m.CmdID
	m.RegenerateCmdID()
	assert.Equal(t, original, m.ParentCmdID)
	assert.NotEqual(t, original, m.CmdID)
}

func TestRestoreParentCmdID(t *testing.T) {
	result := msg.NewCommandResult("hello", msg.StatusOk)
	result.CmdID = "child"
	result.RestoreParentCmdID("parent")
	assert.Equal(t, "parent", result.CmdID)

	result.RestoreParentCmdID("")
	assert.Equal(t, "parent", result.CmdID) // empty parent leaves cmd_id alone
}

func TestBufferLockLifecycle(t *testing.T) {
	m := msg.NewData("chunk")
	require.NoError(t, m.AllocBuf(16))

	buf, tok, err := m.LockBuf(0, 8)
	require.NoError(t, err)
	buf[0] = 42

	_, _, err = m.LockBuf(4, 8)
	assert.Error(t, err, "overlapping lock must fail")

	_, _, err = m.LockBuf(8, 8)
	require.NoError(t, err, "disjoint lock must succeed")

	require.NoError(t, m.UnlockBuf(tok))

	cp, err := m.GetBufCopy()
	require.NoError(t, err)
	assert.Equal(t, byte(42), cp[0])
}

func TestUnlockWrongTokenFails(t *testing.T) {
	m := msg.NewData("chunk")
	require.NoError(t, m.AllocBuf(4))
	other := msg.NewData("other")
	require.NoError(t, other.AllocBuf(4))

	_, tok, err := other.LockBuf(0, 4)
	require.NoError(t, err)

	err = m.UnlockBuf(tok)
	assert.Error(t, err)
}

func TestReleaseReclaimsAfterAllLocksDrop(t *testing.T) {
	m := msg.NewData("chunk")
	require.NoError(t, m.AllocBuf(4))
	_, tok, err := m.LockBuf(0, 4)
	require.NoError(t, err)

	m.Release() // drop the message's own ref; the lock's acquire() still holds one
	_, err = m.GetBufCopy()
	assert.NoError(t, err, "buffer must survive while the lock is outstanding")

	require.NoError(t, m.UnlockBuf(tok)) // drops the lock's ref too -> refcount 0, no locks left
	_, err = m.GetBufCopy()
	assert.Error(t, err, "buffer must be reclaimed once refcount hits zero with no live locks")
}
