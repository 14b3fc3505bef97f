//go:build !debug

// Package debug implements the "signatures and thread-checks are debug
// assertions" guidance of the spec: in release builds (no -tags debug)
// every assertion here compiles to nothing.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func Func(_ func())                      {}

// AssertOnThread checks that the calling goroutine owns the given runloop.
// Real ownership tracking only happens under -tags debug; see runloop.Loop.
func AssertOnThread(_ ThreadID, _ ThreadID) {}
