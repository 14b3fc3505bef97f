package envproxy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/envproxy"
	"github.com/ten-framework/ten-runtime-go/lifecycle"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/runloop"
	"github.com/ten-framework/ten-runtime-go/value"
)

func newTestEnv() (*envproxy.Env, *runloop.Loop, *lifecycle.FSM) {
	fsm := lifecycle.New()
	loop := runloop.NewLoop(8, func(*msg.Msg) {})
	env := envproxy.NewEnv(loop, fsm)
	go loop.Run()
	return env, loop, fsm
}

func TestNotifyRunsOnOwningLoop(t *testing.T) {
	env, loop, _ := newTestEnv()
	defer loop.Stop()

	p := env.CreateProxy(0, 1)
	done := make(chan int, 1)
	require.NoError(t, p.Notify(func(ctx any) { done <- ctx.(int) }, 7))

	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("notify never ran")
	}
}

func TestReleaseDetachesProxyAndUnblocksDeinit(t *testing.T) {
	env, loop, fsm := newTestEnv()
	defer loop.Stop()

	require.NoError(t, fsm.OnInitDone())
	_, err := fsm.OnStartDone()
	require.NoError(t, err)
	require.NoError(t, fsm.OnStopDone())
	require.NoError(t, fsm.BeginDeinit())

	p := env.CreateProxy(0, 1)
	assert.Equal(t, 1, env.ProxyCount())
	assert.Error(t, fsm.OnDeinitDone())

	p.Release()

	require.Eventually(t, func() bool { return env.ProxyCount() == 0 }, time.Second, time.Millisecond)
	assert.NoError(t, fsm.OnDeinitDone())
}

func TestNotifyAfterReleaseErrors(t *testing.T) {
	env, loop, _ := newTestEnv()
	defer loop.Stop()

	p := env.CreateProxy(0, 1)
	p.Release()
	require.Eventually(t, func() bool { return env.ProxyCount() == 0 }, time.Second, time.Millisecond)

	err := p.Notify(func(any) {}, nil)
	assert.Error(t, err)
}

func TestLockModeIsExclusive(t *testing.T) {
	env, loop, _ := newTestEnv()
	defer loop.Stop()

	a := env.CreateProxy(0, 1)
	b := env.CreateProxy(0, 1)

	assert.True(t, env.TryLock(a))
	assert.False(t, env.TryLock(b))
	assert.True(t, env.IsLockHolder(a))

	env.Unlock(a)
	assert.True(t, env.TryLock(b))
}

func TestSnapshotPropsRoundtrips(t *testing.T) {
	tree := value.NewTree()
	require.NoError(t, tree.SetString("extension.greeting", "hello"))
	require.NoError(t, tree.SetInt64("extension.count", 3))

	snap, err := envproxy.SnapshotProps(tree)
	require.NoError(t, err)

	restored, err := envproxy.RestoreProps(snap)
	require.NoError(t, err)

	greeting, err := restored.GetString("extension.greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", greeting)

	count, err := restored.GetInt64("extension.count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
