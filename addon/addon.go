// Package addon implements the process-wide addon registry of spec.md
// §4.9 (component C9): a (kind, name) -> factory map supporting
// registration at program start and asynchronous create_instance /
// destroy_instance, serialized through whichever engine thread owns the
// requesting graph.
//
// Grounded on xact/xreg/xreg.go's kind-keyed, mutex-guarded registry with
// a `Renewable` factory interface and an async `RenewRes`-style result;
// the addon registry plays the same "look up a pluggable implementation
// by name, construct it, hand back an async result" role for extensions,
// extension groups, protocols, and addon loaders instead of xactions.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package addon

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

type Kind int

const (
	Extension Kind = iota
	ExtensionGroup
	Protocol
	AddonLoader
)

func (k Kind) String() string {
	switch k {
	case Extension:
		return "extension"
	case ExtensionGroup:
		return "extension_group"
	case Protocol:
		return "protocol"
	case AddonLoader:
		return "addon_loader"
	default:
		return "unknown"
	}
}

// Factory constructs one addon instance given its creation context (the
// parsed graph-node property value, typically).
type Factory func(ctx any) (Instance, error)

// Instance is an opaque addon-created object (an extension, extension
// group, protocol, or addon-loader implementation). If it implements
// io.Closer-shaped Close() error, DestroyInstance calls it.
type Instance any

type key struct {
	kind Kind
	name string
}

// Registry is the process-wide (kind, name) -> Factory map.
type Registry struct {
	mu     sync.RWMutex
	addons map[key]Factory
}

func NewRegistry() *Registry {
	return &Registry{addons: make(map[key]Factory)}
}

// Default is the process-wide registry addons register into at program
// start, spec.md §4.9.
var Default = NewRegistry()

// Register adds a named addon factory under kind. Errors if (kind, name)
// is already registered.
func (r *Registry) Register(kind Kind, name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{kind, name}
	if _, exists := r.addons[k]; exists {
		return fmt.Errorf("addon: %s addon %q already registered", kind, name)
	}
	r.addons[k] = f
	return nil
}

// Unregister removes a (kind, name) entry, if present.
func (r *Registry) Unregister(kind Kind, name string) {
	r.mu.Lock()
	delete(r.addons, key{kind, name})
	r.mu.Unlock()
}

func (r *Registry) Has(kind Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.addons[key{kind, name}]
	return ok
}

// CreateResult is the async outcome of CreateInstance.
type CreateResult struct {
	Instance   Instance
	InstanceID string
	Err        error
}

// CreateInstance implements create_instance(name, ctx, done_cb): posted
// onto the caller-supplied serializer (the owning engine thread's task
// queue) so every registry lookup and factory call happens on that
// thread, never concurrently with a sibling create/destroy for the same
// graph.
func (r *Registry) CreateInstance(post func(func()), kind Kind, name string, ctx any, done func(CreateResult)) {
	post(func() {
		r.mu.RLock()
		f, ok := r.addons[key{kind, name}]
		r.mu.RUnlock()
		if !ok {
			done(CreateResult{Err: fmt.Errorf("addon: no %s addon named %q", kind, name)})
			return
		}
		inst, err := f(ctx)
		if err != nil {
			done(CreateResult{Err: fmt.Errorf("addon: create %s %q: %w", kind, name, err)})
			return
		}
		done(CreateResult{Instance: inst, InstanceID: uuid.NewString()})
	})
}

// DestroyInstance implements destroy_instance(instance, done_cb), posted
// onto the same serializer as CreateInstance.
func (r *Registry) DestroyInstance(post func(func()), inst Instance, done func(error)) {
	post(func() {
		if closer, ok := inst.(interface{ Close() error }); ok {
			done(closer.Close())
			return
		}
		done(nil)
	})
}

// Names returns the sorted names of every registered addon of kind whose
// name matches the doublestar glob pattern (e.g. "audio_*" or "**").
// Scope does not use it; Scope tracks the keys it registered itself.
func (r *Registry) Names(kind Kind, pattern string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for k := range r.addons {
		if k.kind != kind {
			continue
		}
		ok, err := doublestar.Match(pattern, k.name)
		if err != nil {
			return nil, fmt.Errorf("addon: bad glob %q: %w", pattern, err)
		}
		if ok {
			out = append(out, k.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Scope tracks addons registered through it so Close can unregister
// exactly those, leaving any pre-existing registrations untouched. The
// test harness (component C10) uses this to register a test extension
// addon for the duration of one test and guarantee its removal
// afterward regardless of how the test exits.
type Scope struct {
	r     *Registry
	added []key
}

func (r *Registry) BeginScope() *Scope {
	return &Scope{r: r}
}

func (s *Scope) Register(kind Kind, name string, f Factory) error {
	if err := s.r.Register(kind, name, f); err != nil {
		return err
	}
	s.added = append(s.added, key{kind, name})
	return nil
}

// Close unregisters every addon added through this scope.
func (s *Scope) Close() {
	for _, k := range s.added {
		s.r.Unregister(k.kind, k.name)
	}
	s.added = nil
}
