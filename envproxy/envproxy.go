// Package envproxy implements the cross-thread env proxy of spec.md §4.6
// (component C6): a refcounted handle that lets a foreign thread (a
// binding's GC thread, a worker pool) safely post closures onto an
// extension/engine/app's owning runloop, with the invariant that a live
// proxy blocks that owner's on_deinit_done from completing.
//
// Grounded on transport/api.go's `Obj.prc *atomic.Int64` comment ("ref-
// count so that we call ObjSentCB only once") generalized from "free
// exactly once" to "detach from the owner's proxy list, and let
// on_deinit_done proceed, exactly once all holders have released".
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package envproxy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ten-framework/ten-runtime-go/cmn/debug"
	"github.com/ten-framework/ten-runtime-go/lifecycle"
	"github.com/ten-framework/ten-runtime-go/runloop"
	"github.com/ten-framework/ten-runtime-go/value"
)

// Fn is a closure posted across the env boundary; it runs on env's owning
// thread with full access to whatever state env's caller closed over.
type Fn func(ctx any)

// Env is the minimal surface envproxy needs from an extension, extension
// group, or app: its runloop (to post onto) and its lifecycle FSM (to
// gate on_deinit_done on the live-proxy count).
type Env struct {
	loop *runloop.Loop
	fsm  *lifecycle.FSM

	mu         sync.Mutex
	proxies    map[*Proxy]struct{}
	lockHolder *Proxy
}

func NewEnv(loop *runloop.Loop, fsm *lifecycle.FSM) *Env {
	return &Env{loop: loop, fsm: fsm, proxies: make(map[*Proxy]struct{})}
}

func (e *Env) Loop() *runloop.Loop { return e.loop }

// ProxyCount reports how many live proxies currently reference env.
func (e *Env) ProxyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.proxies)
}

// Proxy is one acquired handle onto an Env, spec.md §4.6.
type Proxy struct {
	env *Env

	mu       sync.Mutex
	refcount int
	released bool
}

// CreateProxy implements env_proxy_create: must be called on env's own
// owning thread. initialCount seeds the proxy's own acquire count (most
// callers pass 1).
func (e *Env) CreateProxy(callerThread debug.ThreadID, initialCount int) *Proxy {
	debug.AssertOnThread(e.loop.ThreadID(), callerThread)

	p := &Proxy{env: e, refcount: initialCount}
	e.mu.Lock()
	e.proxies[p] = struct{}{}
	e.mu.Unlock()
	e.fsm.AcquireProxy()
	return p
}

// Acquire increments the proxy's refcount. Safe from any thread.
func (p *Proxy) Acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return fmt.Errorf("envproxy: acquire on already-released proxy")
	}
	p.refcount++
	return nil
}

// Release decrements the proxy's refcount. When it reaches zero, a task
// is posted onto env's runloop that detaches the proxy from env's list
// and lets env's lifecycle FSM's proxy-refcount drop. Safe from any
// thread.
func (p *Proxy) Release() {
	p.mu.Lock()
	p.refcount--
	hitZero := p.refcount == 0 && !p.released
	if hitZero {
		p.released = true
	}
	p.mu.Unlock()

	if !hitZero {
		return
	}
	p.env.loop.PostTask(func() {
		p.env.mu.Lock()
		delete(p.env.proxies, p)
		if p.env.lockHolder == p {
			p.env.lockHolder = nil
		}
		p.env.mu.Unlock()
		p.env.fsm.ReleaseProxy()
	})
}

func (p *Proxy) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Notify posts fn(ctx) onto env's runloop; returns an error if the proxy
// has already been released. Safe from any thread.
func (p *Proxy) Notify(fn Fn, ctx any) error {
	if p.isReleased() {
		return fmt.Errorf("envproxy: notify on released proxy")
	}
	p.env.loop.PostTask(func() { fn(ctx) })
	return nil
}

// NotifyAsync is identical to Notify but the caller must already be on
// env's owning thread; it calls fn directly instead of paying for a
// channel round-trip, exactly the optimization spec.md §4.6 describes.
// Calling it from a foreign thread is a programming error caught by
// AssertOnThread in debug builds.
func (p *Proxy) NotifyAsync(callerThread debug.ThreadID, fn Fn, ctx any) error {
	debug.AssertOnThread(p.env.loop.ThreadID(), callerThread)
	if p.isReleased() {
		return fmt.Errorf("envproxy: notify_async on released proxy")
	}
	fn(ctx)
	return nil
}

// TryLock upgrades p to the env's exclusive lock-mode holder, letting
// p's holder call into env synchronously as if it were the owning
// thread (spec.md §4.6 "lock mode"). Returns false if another proxy
// already holds the lock.
func (e *Env) TryLock(p *Proxy) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lockHolder != nil && e.lockHolder != p {
		return false
	}
	e.lockHolder = p
	return true
}

// Unlock releases lock mode if p is the current holder.
func (e *Env) Unlock(p *Proxy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lockHolder == p {
		e.lockHolder = nil
	}
}

// IsLockHolder reports whether p currently holds env's exclusive lock.
func (e *Env) IsLockHolder(p *Proxy) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lockHolder == p
}

// SnapshotProps encodes a property tree as an owned byte copy suitable
// for carrying across the env boundary in a Notify ctx, rather than
// sharing the caller's *value.Tree (which is owned by, and mutated only
// on, its own owning thread per spec.md §5 "Shared resources").
func SnapshotProps(t *value.Tree) ([]byte, error) {
	var v any
	if err := json.Unmarshal(t.JSON(), &v); err != nil {
		return nil, fmt.Errorf("envproxy: decode props for snapshot: %w", err)
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("envproxy: encode props snapshot: %w", err)
	}
	return b, nil
}

// RestoreProps reconstructs an independent *value.Tree from a snapshot
// produced by SnapshotProps.
func RestoreProps(snapshot []byte) (*value.Tree, error) {
	var v any
	if err := msgpack.Unmarshal(snapshot, &v); err != nil {
		return nil, fmt.Errorf("envproxy: decode props snapshot: %w", err)
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("envproxy: re-encode props snapshot as json: %w", err)
	}
	return value.FromJSON(j), nil
}
