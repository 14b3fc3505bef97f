// Package app provides the minimal in-process App/Engine pair that wires
// the runloop, path table, lifecycle FSM, env-proxy, router, and addon
// registry packages together against one parsed graph.Doc, sufficient to
// host real extension callbacks and the test harness (component C10).
// Bootstrap/config-file parsing proper stays out of scope per spec.md §1.
//
// Grounded on core/linit.go's own process-init sequencing idiom (bring
// up subsystems in a fixed dependency order, one explicit constructor
// call per subsystem) adapted from aistore's storage-node bring-up to
// "one graph's worth of extension runloops".
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ten-framework/ten-runtime-go/cmn/cos"
	"github.com/ten-framework/ten-runtime-go/cmn/nlog"
	"github.com/ten-framework/ten-runtime-go/convert"
	"github.com/ten-framework/ten-runtime-go/envproxy"
	"github.com/ten-framework/ten-runtime-go/hk"
	"github.com/ten-framework/ten-runtime-go/lifecycle"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
	"github.com/ten-framework/ten-runtime-go/router"
	"github.com/ten-framework/ten-runtime-go/runloop"
	"github.com/ten-framework/ten-runtime-go/schema"
)

// Callbacks is the set of user handlers one extension instance provides,
// the Go-binding surface of spec.md §1's "extension... callbacks".
type Callbacks struct {
	OnInit   func(ext *Extension)
	OnStart  func(ext *Extension)
	OnStop   func(ext *Extension)
	OnDeinit func(ext *Extension)

	OnCmd        func(ext *Extension, cmd *msg.Msg)
	OnData       func(ext *Extension, data *msg.Msg)
	OnAudioFrame func(ext *Extension, frame *msg.Msg)
	OnVideoFrame func(ext *Extension, frame *msg.Msg)
}

// Extension is one live extension instance inside an Engine: its own
// runloop, path table, lifecycle FSM, env-proxy, schema store, and
// callbacks.
type Extension struct {
	Loc    loc.Loc
	Loop   *runloop.Loop
	Table  *path.Table
	FSM    *lifecycle.FSM
	Env    *envproxy.Env
	Schema *schema.Store

	engine    *Engine
	callbacks Callbacks
}

// Send sends m on behalf of this extension, exactly as the extension's
// own `ten_env.send_cmd`/`send_data`/... would (spec.md §4.8).
func (e *Extension) Send(m *msg.Msg, resultHandler msg.ResultHandler, handlerData any, timeoutUs int64) error {
	return e.engine.send(e, m, resultHandler, handlerData, timeoutUs)
}

// Reply implements `ten_env.return_result`: run result through this
// extension's own IN path exactly as an OUT-path result runs through
// DetermineActualCmdResult (spec.md §4.2), so any result_conversion
// attached to the path (§4.7 step 4, set when the command admitted here
// was itself produced by message conversion) and any path-group
// reduction (§4.3, when conversion fanned one inbound command out to
// several converted siblings) apply uniformly before the result reaches
// the original remote caller.
func (e *Extension) Reply(cmd, result *msg.Msg) error {
	p := e.Table.Find(path.In, cmd.CmdID)
	if p == nil {
		return cos.NewErr(cos.NotFound, "app.Reply", "no in-path for cmd_id %s on %s", cmd.CmdID, e.Loc)
	}
	result.CmdID = cmd.CmdID
	result.OriginalCmdName = cmd.Name
	e.Table.SetResult(path.In, result)

	actual, err := e.Table.DetermineActualCmdResult(p, path.In)
	if err != nil {
		return err
	}
	if actual == nil {
		return nil
	}
	return e.engine.deliverTo(actual.Dest[0], actual)
}

// Engine owns one graph's worth of extension runloops plus the shared
// router, housekeeper, and timer service that span them (spec.md §5
// "each engine (graph) owns one runloop thread" is simplified here to
// "the engine drives N extension runloops and has no loop of its own",
// since the core engine-level behavior the spec actually exercises --
// start_graph/stop_graph/close_app plumbing -- does not depend on the
// engine having independent concurrent state of its own).
type Engine struct {
	resolver router.Resolver
	policy   func(src loc.Loc, msgName string) path.Policy
	hk       *hk.HK
	timers   *hk.TimerService

	mu   sync.RWMutex
	exts map[uint64]*Extension

	stop chan struct{}
}

// NewEngine builds an engine against any router.Resolver (graph.Graph
// satisfies it directly; tester builds a fixed two-node resolver instead
// of parsing a graph document for its narrower needs) plus the matching
// per-(src, msg name) return-policy lookup.
func NewEngine(resolver router.Resolver, policy func(src loc.Loc, msgName string) path.Policy, h *hk.HK) *Engine {
	return &Engine{
		resolver: resolver,
		policy:   policy,
		hk:       h,
		timers:   hk.NewTimerService(h),
		exts:     make(map[uint64]*Extension),
		stop:     make(chan struct{}),
	}
}

// AddExtension creates and starts the runloop for one graph node, wiring
// its message-admission reducer (lifecycle.FSM.Admit) and per-kind
// dispatch to cb. It does not yet run on_init/on_start; call Start once
// every participating extension has been added.
func (e *Engine) AddExtension(l loc.Loc, cb Callbacks) *Extension {
	ext := &Extension{Loc: l, Table: path.NewTable(l), FSM: lifecycle.New(), Schema: schema.NewStore(), engine: e, callbacks: cb}
	ext.Loop = runloop.NewLoop(64, func(m *msg.Msg) { e.handle(ext, m) })
	ext.Env = envproxy.NewEnv(ext.Loop, ext.FSM)

	e.mu.Lock()
	e.exts[l.Hash()] = ext
	e.mu.Unlock()

	go ext.Loop.Run()
	return ext
}

func (e *Engine) lookup(l loc.Loc) (*Extension, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ext, ok := e.exts[l.Hash()]
	return ext, ok
}

// Extension looks up a live extension by its full address.
func (e *Engine) Extension(l loc.Loc) (*Extension, bool) { return e.lookup(l) }

// RunOnLoop posts fn onto ext's own runloop and blocks until it has run,
// so code always executes on the thread ext owns (spec.md §4.4's
// on_init/on_start/on_stop/on_deinit, and anything the test harness needs
// to do as if it were ext itself) even when called from outside that
// loop. Prefer envproxy.Proxy.Notify for ordinary cross-thread posts from
// another extension; RunOnLoop is for bring-up/teardown code that has no
// proxy yet.
func (ext *Extension) RunOnLoop(fn func()) {
	done := make(chan struct{})
	ext.Loop.PostTask(func() { fn(); close(done) })
	<-done
}

// Start drives ext through Init -> Inited -> Started, running on_init and
// on_start on ext's own loop and then delivering any messages that
// queued while it was not yet Started (spec.md §4.4).
func (e *Engine) Start(l loc.Loc) error {
	ext, ok := e.lookup(l)
	if !ok {
		return cos.NewErr(cos.NotFound, "app.Start", "no extension at %s", l)
	}
	if err := ext.FSM.OnInitDone(); err != nil {
		return err
	}
	if ext.callbacks.OnInit != nil {
		ext.RunOnLoop(func() { ext.callbacks.OnInit(ext) })
	}
	drained, err := ext.FSM.OnStartDone()
	if err != nil {
		return err
	}
	if ext.callbacks.OnStart != nil {
		ext.RunOnLoop(func() { ext.callbacks.OnStart(ext) })
	}
	for _, redeliver := range drained {
		redeliver()
	}
	return nil
}

// Stop drives ext through Started -> Closing -> Deiniting -> Deinited,
// running on_stop and on_deinit on ext's own loop at the matching
// transition. Real shutdown sequencing waits for in-flight results and a
// zero env-proxy refcount; this in-process engine performs both checks
// but does not itself wait, leaving that to the caller (tester.StopTest
// releases its proxy before calling Stop).
func (e *Engine) Stop(l loc.Loc) error {
	ext, ok := e.lookup(l)
	if !ok {
		return cos.NewErr(cos.NotFound, "app.Stop", "no extension at %s", l)
	}
	if ext.callbacks.OnStop != nil {
		ext.RunOnLoop(func() { ext.callbacks.OnStop(ext) })
	}
	if err := ext.FSM.OnStopDone(); err != nil {
		return err
	}
	if err := ext.FSM.BeginDeinit(); err != nil {
		return err
	}
	if ext.callbacks.OnDeinit != nil {
		ext.RunOnLoop(func() { ext.callbacks.OnDeinit(ext) })
	}
	return ext.FSM.OnDeinitDone()
}

// send implements Extension.Send: the builtin timer/timeout commands are
// intercepted before graph resolution (they have no graph destination of
// their own, spec.md §6), everything else goes through the router.
func (e *Engine) send(from *Extension, m *msg.Msg, resultHandler msg.ResultHandler, handlerData any, timeoutUs int64) error {
	m.Src = from.Loc

	switch m.Name {
	case msg.CmdTimer:
		return e.timers.HandleTimer(m, func(timeout *msg.Msg) {
			if err := e.deliverTo(timeout.Dest[0], timeout); err != nil {
				nlog.Warnf("app: could not deliver timer %q notification: %v", timeout.Name, err)
			}
		})
	case msg.CmdTimeout:
		return e.timers.HandleTimeout(m)
	}

	r := router.New(e.resolver, func(dest loc.Loc, out *msg.Msg) error { return e.deliverTo(dest, out) })
	policy := e.policy(from.Loc, m.Name)
	return r.Dispatch(from.Table, from.Loc, m, policy, resultHandler, handlerData, timeoutUs)
}

func (e *Engine) deliverTo(dest loc.Loc, m *msg.Msg) error {
	ext, ok := e.lookup(dest)
	if !ok {
		return cos.NewErr(cos.NotFound, "app.deliverTo", "no extension at %s", dest)
	}
	ext.Loop.PostMessage(m)
	return nil
}

// handle is every extension's runloop message handler: admission-gate,
// then dispatch a result through the router's reverse path or a non-
// result message to the matching user callback.
func (e *Engine) handle(ext *Extension, m *msg.Msg) {
	verdict := ext.FSM.Admit(m.IsResult(), m.IsCmd(), func() { ext.Loop.PostMessage(m) })
	switch verdict {
	case lifecycle.Enqueue:
		return
	case lifecycle.Drop:
		nlog.Warnf("app: dropping %s %q for %s (deinitializing)", m.Kind, m.Name, ext.Loc)
		return
	case lifecycle.Refuse:
		e.replyClosed(ext, m)
		return
	}

	if m.IsResult() {
		r := router.New(e.resolver, func(dest loc.Loc, out *msg.Msg) error { return e.deliverTo(dest, out) })
		actual, err := r.HandleResult(ext.Table, m)
		if err != nil {
			nlog.Errorf("app: determine_actual_cmd_result for %s: %v", ext.Loc, err)
			return
		}
		if actual == nil {
			return
		}
		if actual.ResultHandler != nil {
			actual.ResultHandler(actual, actual.HandlerData)
		}
		return
	}

	e.admit(ext, m)
}

// admit implements the receiver side of message conversion (spec.md §4.7,
// component C7): a message arriving with an edge-declared msg_conversion
// (router.ConversionMeta, attached by Dispatch) is expanded into its
// converted[] list right here, at the destination's admission boundary,
// rather than at the sender. A message with no declared conversion gets
// its ordinary single IN path and goes straight to dispatch.
//
// Every converted command's IN path is created, and the whole fan-out
// grouped under the edge's declared return policy (§4.3's "or when N>1
// message-conversion rules apply" branch), *before* any of them is
// dispatched to the destination's callback: a handler is free to call
// ten_env.return_result synchronously (most do), and that reply must see
// path.InGroup() already true or path_group_resolve never engages.
func (e *Engine) admit(ext *Extension, m *msg.Msg) {
	meta, _ := m.Conversion.(*router.ConversionMeta)
	if meta == nil || meta.Rules == nil {
		var p *path.Path
		if m.IsCmd() {
			p = ext.Table.AddInPath(m, path.DefaultPathTimeoutUs, nil)
		}
		_ = p
		e.dispatch(ext, m)
		return
	}

	converted, err := meta.Rules.Convert(m)
	if err != nil {
		e.rejectConverted(ext, m, err)
		return
	}

	// Every converted sibling shares m's original cmd_id at this point.
	// Give each but the first its own wire identity up front so the
	// group's members, and any admission-time rejection among them, each
	// own a distinct in-path instead of colliding.
	for _, out := range converted[1:] {
		out.RegenerateCmdID()
	}

	// Every sibling gets its IN path -- and, when there's more than one,
	// its group membership -- before schema validation or dispatch runs:
	// a handler (or a rejection below) replying synchronously must see
	// path.InGroup() already true, or path_group_resolve never engages
	// and a sibling's reply can stomp another's still-pending in-path.
	type admitted struct {
		msg         *msg.Msg
		path        *path.Path
		schemaError error
	}
	ready := make([]admitted, 0, len(converted))
	for i, out := range converted {
		var resultConv *convert.Rule
		if i < len(meta.Rules.Rules) {
			resultConv = meta.Rules.Rules[i]
		}
		var p *path.Path
		if out.IsCmd() {
			p = ext.Table.AddInPath(out, path.DefaultPathTimeoutUs, resultConv)
		}
		var schemaErr error
		if ext.Schema != nil {
			schemaErr = validateInbound(ext, out)
		}
		ready = append(ready, admitted{msg: out, path: p, schemaError: schemaErr})
	}

	var inPaths []*path.Path
	for _, a := range ready {
		if a.path != nil {
			inPaths = append(inPaths, a.path)
		}
	}
	if len(inPaths) > 1 {
		path.NewGroup(meta.Policy, inPaths)
	}

	for _, a := range ready {
		if a.schemaError != nil {
			e.rejectAdmitted(ext, a.msg, a.schemaError)
			continue
		}
		e.dispatch(ext, a.msg)
	}
}

// dispatch hands m to ext's matching per-kind callback.
func (e *Engine) dispatch(ext *Extension, m *msg.Msg) {
	switch m.Kind {
	case msg.KindCommand:
		if ext.callbacks.OnCmd != nil {
			ext.callbacks.OnCmd(ext, m)
		}
	case msg.KindData:
		if ext.callbacks.OnData != nil {
			ext.callbacks.OnData(ext, m)
		}
	case msg.KindAudioFrame:
		if ext.callbacks.OnAudioFrame != nil {
			ext.callbacks.OnAudioFrame(ext, m)
		}
	case msg.KindVideoFrame:
		if ext.callbacks.OnVideoFrame != nil {
			ext.callbacks.OnVideoFrame(ext, m)
		}
	}
}

// validateInbound decodes m's property tree and checks it against the
// schema ext has registered for (ext, m.Name, In), if any.
func validateInbound(ext *Extension, m *msg.Msg) error {
	var doc any
	if err := json.Unmarshal(m.Props.JSON(), &doc); err != nil {
		return fmt.Errorf("decode props: %w", err)
	}
	key := schema.Key{Extension: ext.Loc.Extension, MsgName: m.Name, Dir: schema.In}
	return ext.Schema.Validate(key, doc)
}

// rejectAdmitted answers a schema-invalid converted command with an Error
// result through the same Reply path a real OnCmd handler would use, so
// it resolves through whatever group its siblings joined above (the
// group was formed before this runs) instead of bypassing
// path_group_resolve and risking a collision with a sibling's own reply.
// Non-command kinds have no in-path or reply mechanism to use, so they
// are just dropped with a warning.
func (e *Engine) rejectAdmitted(ext *Extension, m *msg.Msg, cause error) {
	nlog.Warnf("app: %s rejected converted %s %q: %v", ext.Loc, m.Kind, m.Name, cause)
	if !m.IsCmd() {
		return
	}
	result := msg.NewCommandResult(m.Name, msg.StatusError)
	result.IsFinal = true
	_ = result.SetProp("detail", fmt.Sprintf("schema validation failed: %v", cause))
	if err := ext.Reply(m, result); err != nil {
		nlog.Warnf("app: could not reply to rejected %s: %v", m.Name, err)
	}
}

// rejectConverted answers a whole failed conversion (meta.Rules.Convert
// itself errored, before any converted command or in-path existed) with
// a single Error result back to the original sender.
func (e *Engine) rejectConverted(ext *Extension, m *msg.Msg, cause error) {
	nlog.Warnf("app: %s rejected converted %s %q: %v", ext.Loc, m.Kind, m.Name, cause)
	if m.Kind != msg.KindCommand {
		return
	}
	result := msg.NewCommandResult(m.Name, msg.StatusError)
	result.CmdID = m.CmdID
	result.IsFinal = true
	_ = result.SetProp("detail", fmt.Sprintf("rejected before admission: %v", cause))
	result.RestoreParentCmdID(m.ParentCmdID)
	if err := e.deliverTo(m.Src, result); err != nil {
		nlog.Warnf("app: could not deliver conversion-reject reply to %s: %v", m.Src, err)
	}
}

// replyClosed synthesizes the Error("destination is deinitializing")
// result spec.md §4.4's Closing row and §7's Closed error kind describe,
// delivered back to the command's sender through the normal pipeline.
func (e *Engine) replyClosed(ext *Extension, cmd *msg.Msg) {
	result := msg.NewCommandResult(cmd.Name, msg.StatusError)
	result.CmdID = cmd.CmdID
	result.IsFinal = true
	if err := result.SetProp("detail", fmt.Sprintf("destination %s is deinitializing", ext.Loc)); err != nil {
		nlog.Errorf("app: set detail on closed-reply: %v", err)
	}
	if err := e.deliverTo(cmd.Src, result); err != nil {
		nlog.Warnf("app: could not deliver closed-reply to %s: %v", cmd.Src, err)
	}
}

// RegisterExpiry wires an extension's path table into the housekeeper so
// outstanding IN and OUT paths expire symmetrically per spec.md §4.2;
// checkIntervalUs matches path_timeout_info.check_interval_us for this
// extension. An expired OUT path's synthesized result addresses ext
// itself (SrcLoc for an OUT path is the sender's own loc), but an expired
// IN path's addresses the original remote caller -- so the deliver
// callback routes by the result's own Dest rather than assuming ext's
// loop is always the right target.
func (e *Engine) RegisterExpiry(l loc.Loc, checkIntervalUs int64) error {
	ext, ok := e.lookup(l)
	if !ok {
		return cos.NewErr(cos.NotFound, "app.RegisterExpiry", "no extension at %s", l)
	}
	hk.RegisterPathExpiry(e.hk, ext.Table, checkIntervalUs, func(result *msg.Msg) {
		if len(result.Dest) == 0 {
			nlog.Warnf("app: expired path result for %q has no dest, dropped", result.Name)
			return
		}
		if err := e.deliverTo(result.Dest[0], result); err != nil {
			nlog.Warnf("app: could not deliver expired-path result to %s: %v", result.Dest[0], err)
		}
	}, e.stop)
	return nil
}

// Shutdown stops every extension's runloop. Pending housekeeper entries
// for this engine are left to expire naturally against a closed stop
// channel on their next tick (see RegisterExpiry).
func (e *Engine) Shutdown() {
	close(e.stop)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ext := range e.exts {
		ext.Loop.Stop()
	}
}
