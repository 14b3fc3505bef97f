// Package runloop implements the single-threaded cooperative event loop
// that backs each extension (component C5, spec.md §4.5; app.Engine
// creates one loop per extension, so extensions of one group do not share
// a loop, and the engine and app run none): one goroutine multiplexing an
// inbound message queue and a foreign-thread task queue (used by
// env-proxy, component C6), processing exactly one item to completion
// before picking the next. The loop has no timer channel; timer and
// path-expiry firings arrive as messages posted by the housekeeper.
//
// Grounded on transport/api.go's sendLoop/cmplLoop SQ/SCQ channel pair
// (`s.workCh`, `s.cmplCh`), generalized from "one outbound stream" to "one
// extension's full inbox": a buffered channel per concern, one goroutine
// draining them via select, nothing else ever touches extension-owned
// state directly.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package runloop

import (
	"sync/atomic"

	"github.com/ten-framework/ten-runtime-go/cmn/debug"
	"github.com/ten-framework/ten-runtime-go/msg"
)

// Task is posted work from a foreign thread, e.g. an env-proxy call or
// app.Extension.RunOnLoop. It runs on the loop's own goroutine, to completion,
// before the next task or message is considered (spec.md §4.5 "A posted
// task runs to completion before the next task/message on the same
// loop").
type Task func()

var threadSeq uint64

func nextThreadID() debug.ThreadID {
	return debug.ThreadID(atomic.AddUint64(&threadSeq, 1))
}

// Loop is one extension's event loop. Messages pushed by
// the router preserve submission order per (src,dst) pair because each
// sender's successive sends to msgCh happen in its own program order and
// the channel serializes them without reordering (spec.md §4.5 "Ordering
// guarantees").
type Loop struct {
	id      debug.ThreadID
	handler func(*msg.Msg)
	msgCh   chan *msg.Msg
	taskCh  chan Task
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a loop with the given inbound-queue depth. handler is
// invoked synchronously on the loop's goroutine for every message that
// reaches the front of the queue; it is the handler's own responsibility
// to run the message through the owning extension's lifecycle admission
// reducer (lifecycle.FSM.Admit) before acting on it, since admission
// depends on the *receiving* extension's state, which only becomes
// current once the handler actually runs (see app.Engine.handle).
func NewLoop(queueDepth int, handler func(*msg.Msg)) *Loop {
	return &Loop{
		id:      nextThreadID(),
		handler: handler,
		msgCh:   make(chan *msg.Msg, queueDepth),
		taskCh:  make(chan Task, queueDepth),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// ThreadID identifies this loop's goroutine for debug.AssertOnThread
// checks elsewhere (envproxy's CreateProxy and NotifyAsync).
func (l *Loop) ThreadID() debug.ThreadID { return l.id }

// PostMessage enqueues an inbound message for delivery; safe to call from
// any goroutine (the router calls it from whichever loop is dispatching).
func (l *Loop) PostMessage(m *msg.Msg) { l.msgCh <- m }

// PostTask enqueues fn to run on the loop's own goroutine; this is the
// mechanism env-proxy uses to call back into extension-owned state from a
// foreign thread (spec.md §4.6).
func (l *Loop) PostTask(fn Task) { l.taskCh <- fn }

// Run is the loop body. It blocks until Stop is called and both queues
// are drained, and must be launched with `go loop.Run()` exactly once.
func (l *Loop) Run() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			l.drain()
			return
		case t := <-l.taskCh:
			t()
		case m := <-l.msgCh:
			l.handler(m)
		}
	}
}

// drain runs any already-queued tasks/messages to completion after Stop
// is requested, so in-flight posts from other threads are not silently
// lost mid-shutdown.
func (l *Loop) drain() {
	for {
		select {
		case t := <-l.taskCh:
			t()
		case m := <-l.msgCh:
			l.handler(m)
		default:
			return
		}
	}
}

// Stop requests the loop to exit after draining its queues, and blocks
// until it has.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}
