package tester_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/addon"
	"github.com/ten-framework/ten-runtime-go/app"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/tester"
)

// echoExtension echoes every "ping" command back with "+1" appended to its
// "n" prop, and otherwise behaves like app.BaseHandlers.
type echoExtension struct{ app.BaseHandlers }

func (echoExtension) OnCmd(ext *app.Extension, cmd *msg.Msg) {
	if cmd.Name != "ping" {
		return
	}
	n, _ := cmd.GetProp("n")
	result := msg.NewCommandResult(cmd.Name, msg.StatusOk)
	result.IsFinal = true
	_ = result.SetProp("n", n+"+1")
	_ = ext.Reply(cmd, result)
}

func TestExtensionTesterRoundTripsCommand(t *testing.T) {
	results := make(chan *msg.Msg, 1)

	et, err := tester.Run("echo_addon", func(any) (addon.Instance, error) {
		return echoExtension{}, nil
	}, nil, tester.Callbacks{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = et.StopTest() })

	cmd := msg.NewCommand("ping")
	require.NoError(t, cmd.SetProp("n", "1"))
	require.NoError(t, et.TenEnv().SendCmd(cmd, func(result *msg.Msg, _ any) { results <- result }, 0))

	select {
	case result := <-results:
		assert.Equal(t, msg.StatusOk, result.StatusCode)
		n, err := result.GetProp("n")
		require.NoError(t, err)
		assert.Equal(t, "1+1", n)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed result")
	}
}

func TestExtensionTesterObservesLifecycleCallbacks(t *testing.T) {
	started := make(chan struct{}, 1)
	stopped := make(chan struct{}, 1)

	et, err := tester.Run("echo_addon2", func(any) (addon.Instance, error) {
		return echoExtension{}, nil
	}, nil, tester.Callbacks{
		OnStart: func(*app.Extension) { started <- struct{}{} },
		OnStop:  func(*app.Extension) { stopped <- struct{}{} },
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tester on_start")
	}

	require.NoError(t, et.StopTest())

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tester on_stop")
	}
}

func TestExtensionTesterUnderTestExposed(t *testing.T) {
	et, err := tester.Run("echo_addon3", func(any) (addon.Instance, error) {
		return echoExtension{}, nil
	}, nil, tester.Callbacks{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = et.StopTest() })

	require.NotNil(t, et.UnderTest())
	assert.Equal(t, "echo_addon3", et.UnderTest().Loc.Extension)
}
