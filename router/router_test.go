package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
	"github.com/ten-framework/ten-runtime-go/router"
)

type fakeResolver struct {
	edges []router.Edge
}

func (f *fakeResolver) Edges(loc.Loc, *msg.Msg) []router.Edge { return f.edges }

func TestDispatchSingleDestinationNoGroup(t *testing.T) {
	sender := loc.New("app", "g", "grp_a", "ext_a")
	dest := loc.New("app", "g", "grp_b", "ext_b")

	var delivered []*msg.Msg
	r := router.New(&fakeResolver{edges: []router.Edge{{Dest: dest}}}, func(d loc.Loc, m *msg.Msg) error {
		delivered = append(delivered, m)
		return nil
	})

	tbl := path.NewTable(sender)
	cmd := msg.NewCommand("hello")
	require.NoError(t, r.Dispatch(tbl, sender, cmd, path.EachOkAndError, nil, nil, 0))

	require.Len(t, delivered, 1)
	assert.Equal(t, []loc.Loc{dest}, delivered[0].IterDest())
	assert.Equal(t, sender, delivered[0].Src)
	// The original is untouched; delivered[0] is an independent clone.
	assert.Empty(t, cmd.IterDest())
}

func TestDispatchFanOutCreatesGroupAndRoundTripsResult(t *testing.T) {
	sender := loc.New("app", "g", "grp_a", "ext_a")
	b := loc.New("app", "g", "grp_b", "ext_b")
	c := loc.New("app", "g", "grp_c", "ext_c")

	var delivered []*msg.Msg
	r := router.New(&fakeResolver{edges: []router.Edge{{Dest: b}, {Dest: c}}}, func(d loc.Loc, m *msg.Msg) error {
		delivered = append(delivered, m)
		return nil
	})

	tbl := path.NewTable(sender)
	cmd := msg.NewCommand("fanout")
	require.NoError(t, r.Dispatch(tbl, sender, cmd, path.FirstErrorOrLastOk, nil, nil, 0))
	require.Len(t, delivered, 2)

	okFromB := msg.NewCommandResult("fanout", msg.StatusOk)
	okFromB.CmdID = delivered[0].CmdID
	okFromB.IsFinal = true
	actual, err := r.HandleResult(tbl, okFromB)
	require.NoError(t, err)
	assert.Nil(t, actual) // waiting on c

	okFromC := msg.NewCommandResult("fanout", msg.StatusOk)
	okFromC.CmdID = delivered[1].CmdID
	okFromC.IsFinal = true
	actual, err = r.HandleResult(tbl, okFromC)
	require.NoError(t, err)
	require.NotNil(t, actual)
	assert.True(t, actual.IsCompleted)
	assert.Equal(t, []loc.Loc{sender}, actual.IterDest())
}

func TestDispatchNoDestinationsErrors(t *testing.T) {
	sender := loc.New("app", "g", "grp_a", "ext_a")
	r := router.New(&fakeResolver{}, func(loc.Loc, *msg.Msg) error { return nil })
	tbl := path.NewTable(sender)
	err := r.Dispatch(tbl, sender, msg.NewCommand("nowhere"), path.EachOkAndError, nil, nil, 0)
	assert.Error(t, err)
}
