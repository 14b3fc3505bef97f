package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/lifecycle"
)

func TestHappyPathTransitions(t *testing.T) {
	f := lifecycle.New()
	assert.Equal(t, lifecycle.Init, f.State())

	require.NoError(t, f.OnInitDone())
	assert.Equal(t, lifecycle.Inited, f.State())

	drained, err := f.OnStartDone()
	require.NoError(t, err)
	assert.Empty(t, drained)
	assert.Equal(t, lifecycle.Started, f.State())

	require.NoError(t, f.OnStopDone())
	assert.Equal(t, lifecycle.Closing, f.State())

	require.NoError(t, f.BeginDeinit())
	assert.Equal(t, lifecycle.Deiniting, f.State())

	require.NoError(t, f.OnDeinitDone())
	assert.Equal(t, lifecycle.Deinited, f.State())
}

func TestOutOfOrderTransitionRejected(t *testing.T) {
	f := lifecycle.New()
	_, err := f.OnStartDone()
	assert.Error(t, err)
}

func TestDeinitBlockedByLiveProxy(t *testing.T) {
	f := lifecycle.New()
	require.NoError(t, f.OnInitDone())
	_, err := f.OnStartDone()
	require.NoError(t, err)
	require.NoError(t, f.OnStopDone())
	require.NoError(t, f.BeginDeinit())

	f.AcquireProxy()
	assert.Error(t, f.OnDeinitDone())

	f.ReleaseProxy()
	assert.NoError(t, f.OnDeinitDone())
}

func TestAdmissionBeforeInitedQueuesAndDrainsInOrder(t *testing.T) {
	f := lifecycle.New()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		verdict := f.Admit(false, true, func() { order = append(order, i) })
		assert.Equal(t, lifecycle.Enqueue, verdict)
	}

	require.NoError(t, f.OnInitDone())
	// Still before on_start_done: non-results keep queuing.
	verdict := f.Admit(false, true, func() { order = append(order, 99) })
	assert.Equal(t, lifecycle.Enqueue, verdict)

	drained, err := f.OnStartDone()
	require.NoError(t, err)
	require.Len(t, drained, 4)
	for _, fn := range drained {
		fn()
	}
	assert.Equal(t, []int{0, 1, 2, 99}, order)
}

func TestAdmissionResultsAlwaysProcess(t *testing.T) {
	f := lifecycle.New()
	assert.Equal(t, lifecycle.Process, f.Admit(true, false, nil))
}

func TestAdmissionWhileClosingRefusesCommandsDropsOthers(t *testing.T) {
	f := lifecycle.New()
	require.NoError(t, f.OnInitDone())
	_, err := f.OnStartDone()
	require.NoError(t, err)
	require.NoError(t, f.OnStopDone())

	assert.Equal(t, lifecycle.Refuse, f.Admit(false, true, nil))
	assert.Equal(t, lifecycle.Drop, f.Admit(false, false, nil))
	// Results still flow while Closing.
	assert.Equal(t, lifecycle.Process, f.Admit(true, false, nil))
}

func TestAdmissionAfterDeinitRefusesCommandsDropsOthers(t *testing.T) {
	f := lifecycle.New()
	require.NoError(t, f.OnInitDone())
	_, err := f.OnStartDone()
	require.NoError(t, err)
	require.NoError(t, f.OnStopDone())
	require.NoError(t, f.BeginDeinit())

	assert.Equal(t, lifecycle.Refuse, f.Admit(false, true, nil))
	assert.Equal(t, lifecycle.Drop, f.Admit(false, false, nil))
}

func TestAdmissionWhileStartedProcessesNormally(t *testing.T) {
	f := lifecycle.New()
	require.NoError(t, f.OnInitDone())
	_, err := f.OnStartDone()
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Process, f.Admit(false, true, nil))
}
