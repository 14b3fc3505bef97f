// Package schema is the extension manifest/message schema store referenced
// by spec.md §3 ("Extension ... Carries: ... schema store") and §4.7 step 3
// ("Schema-validates each converted message against the destination
// extension's input schema").
//
// Nothing in the teacher (aistore) validates free-form JSON documents
// against a declared schema; this concern is adopted wholesale from
// vsavkov-kilroy, whose artifact-manifest validation is built entirely on
// santhosh-tekuri/jsonschema/v5.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package schema

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ten-framework/ten-runtime-go/cmn/cos"
)

// Direction distinguishes an extension's declared cmd_in/cmd_out (and the
// data/audio_frame/video_frame equivalents) schemas.
type Direction int

const (
	In Direction = iota
	Out
)

// Key identifies one declared schema: which extension, which message
// kind-name, which direction.
type Key struct {
	Extension string
	MsgName   string
	Dir       Direction
}

// Store holds every schema declared across an extension's manifest. It is
// built once at extension load time and consulted for every message
// produced by message conversion at admission (§4.7); messages that
// arrive without conversion are not validated against it.
type Store struct {
	mu       sync.RWMutex
	compiled map[Key]*jsonschema.Schema
}

func NewStore() *Store {
	return &Store{compiled: make(map[Key]*jsonschema.Schema)}
}

// Register compiles and stores a schema document for the given key. The
// document is compiled as a standard JSON Schema (e.g.
// `{"type": "object", "properties": {...}}`).
func (s *Store) Register(key Key, schemaJSON []byte) error {
	c := jsonschema.NewCompiler()
	name := fmt.Sprintf("mem://%s-%s-%d-%s", key.Extension, key.MsgName, key.Dir, cos.GenUUID())
	if err := c.AddResource(name, bytesReader(schemaJSON)); err != nil {
		return fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile(name)
	if err != nil {
		return fmt.Errorf("schema: compile %s/%s: %w", key.Extension, key.MsgName, err)
	}
	s.mu.Lock()
	s.compiled[key] = compiled
	s.mu.Unlock()
	return nil
}

// Validate checks doc (a decoded JSON value, e.g. from encoding/json.Unmarshal
// into `any`) against the schema registered for key. A missing schema is not
// an error -- extensions are not required to declare a schema for every
// message they accept or emit.
func (s *Store) Validate(key Key, doc any) error {
	s.mu.RLock()
	compiled, ok := s.compiled[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema: %s/%s failed validation: %w", key.Extension, key.MsgName, err)
	}
	return nil
}

func (s *Store) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.compiled[key]
	return ok
}
