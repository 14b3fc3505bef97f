// Package lifecycle implements the extension lifecycle FSM and message
// admission rules of spec.md §4.4 (component C4): Init → Inited → Started
// → Closing → Deiniting → Deinited, each transition driven by the
// extension's own on_X_done callback and gating which inbound messages are
// queued, admitted, or refused.
//
// Grounded on original_source `extension/extension.h` for the state names
// and transition table, and on xact/qui.go's refcounted-quiescence shape
// (a terminal transition only completes once a live count hits zero) for
// the Deiniting → Deinited precondition (env-proxy refcount == 0).
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package lifecycle

import (
	"fmt"
	"sync"

	cmnatomic "github.com/ten-framework/ten-runtime-go/cmn/atomic"
	"github.com/ten-framework/ten-runtime-go/cmn/debug"
)

type State int

const (
	Init State = iota
	Inited
	Started
	Closing
	Deiniting
	Deinited
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Inited:
		return "Inited"
	case Started:
		return "Started"
	case Closing:
		return "Closing"
	case Deiniting:
		return "Deiniting"
	case Deinited:
		return "Deinited"
	default:
		return "Unknown"
	}
}

// Admission is the admission reducer's verdict for one inbound message
// (spec.md §4.4 "Admission is checked on every inbound message").
type Admission int

const (
	// Process: convert, path-bookkeep, schema-check, and dispatch normally.
	Process Admission = iota
	// Enqueue: state < Inited, stash into the pending queue, drained on
	// on_start_done.
	Enqueue
	// Refuse: state >= Closing and the message is a command; synthesize
	// an Error reply instead of delivering it.
	Refuse
	// Drop: state >= Closing and the message is not a command; log and
	// discard, no reply is possible.
	Drop
)

// FSM drives one extension's lifecycle state. Transitions are serialized
// by mu; app.Engine's Start and Stop drive them from the goroutine that
// calls Start/Stop, not from the extension's runloop. proxyRefcount is
// atomic because env-proxies can be acquired/released from foreign
// threads (spec.md §4.6).
type FSM struct {
	mu    sync.Mutex
	state State

	proxyRefcount cmnatomic.Int32

	pending []func() // pending_msgs_received_before_on_init_done, drained in order
}

func New() *FSM {
	return &FSM{state: Init}
}

func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FSM) transition(from, to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != from {
		return fmt.Errorf("lifecycle: invalid transition %s->%s from actual state %s", from, to, f.state)
	}
	f.state = to
	return nil
}

// OnInitDone implements the Init -> Inited transition.
func (f *FSM) OnInitDone() error { return f.transition(Init, Inited) }

// OnStartDone implements Inited -> Started and returns the pending queue
// to drain in arrival order; the caller (the runloop) is responsible for
// actually redelivering each entry.
func (f *FSM) OnStartDone() ([]func(), error) {
	f.mu.Lock()
	if f.state != Inited {
		defer f.mu.Unlock()
		return nil, fmt.Errorf("lifecycle: on_start_done from state %s, want Inited", f.state)
	}
	f.state = Started
	drained := f.pending
	f.pending = nil
	f.mu.Unlock()
	return drained, nil
}

// OnStopDone implements Started -> Closing.
func (f *FSM) OnStopDone() error { return f.transition(Started, Closing) }

// BeginDeinit implements "on_deinit begin": Closing -> Deiniting.
func (f *FSM) BeginDeinit() error { return f.transition(Closing, Deiniting) }

// AcquireProxy increments the env-proxy refcount; called on proxy
// creation, from any thread (spec.md §4.6).
func (f *FSM) AcquireProxy() { f.proxyRefcount.Inc() }

// ReleaseProxy decrements the env-proxy refcount.
func (f *FSM) ReleaseProxy() { f.proxyRefcount.Dec() }

// OnDeinitDone implements Deiniting -> Deinited, gated on the env-proxy
// refcount precondition of spec.md §4.4's transition table.
func (f *FSM) OnDeinitDone() error {
	if n := f.proxyRefcount.Load(); n != 0 {
		return fmt.Errorf("lifecycle: on_deinit_done with %d live env-proxies", n)
	}
	return f.transition(Deiniting, Deinited)
}

// Admit implements the admission reducer of spec.md §4.4. isResult and
// isCmd classify the inbound message; redeliver, when Admission is
// Enqueue, is stashed for later replay by OnStartDone's drained slice.
func (f *FSM) Admit(isResult, isCmd bool, redeliver func()) Admission {
	if isResult {
		return Process
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.state < Inited:
		debug.Assert(redeliver != nil, "lifecycle: Admit(Enqueue) requires a non-nil redeliver")
		f.pending = append(f.pending, redeliver)
		return Enqueue
	case f.state >= Closing:
		if isCmd {
			return Refuse
		}
		return Drop
	default:
		return Process
	}
}
