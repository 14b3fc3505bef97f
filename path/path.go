// Package path implements the path table (component C2) and path group /
// return policy (component C3) of spec.md §4.2/§4.3. The two live in one
// Go package because they hold mutual references to each other by design
// (spec.md §3 invariant: "If path.group is present then path appears in
// group.members and vice versa") -- splitting them would force an import
// cycle or an awkward interface seam for no benefit.
//
// Grounded on original_source's include_internal/ten_runtime/path/*.h for
// the exact field list and invariants, and on
// transport/bundle/stream_bundle.go's per-destination session bookkeeping
// (one entry per live destination, owned by a single goroutine, removed on
// a terminal event) for the Go table shape.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package path

import (
	"github.com/ten-framework/ten-runtime-go/cmn/mono"
	"github.com/ten-framework/ten-runtime-go/convert"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
)

type Type int

const (
	In Type = iota
	Out
)

func (t Type) String() string {
	if t == In {
		return "in"
	}
	return "out"
}

// Path is one in-flight command's record at one hop (spec.md §3).
type Path struct {
	Table *Table
	Type  Type

	CmdName     string
	CmdID       string
	ParentCmdID string
	SrcLoc      loc.Loc

	Group       *Group
	LastInGroup bool

	CachedCmdResult        *msg.Msg
	HasReceivedFinalResult bool

	ResultConversion *convert.Rule

	// Out-path only.
	ResultHandler msg.ResultHandler
	HandlerData   any

	ExpiredTimeUs int64

	arrivedAtUs int64 // arrival order, used by FirstErrorOrFirstOk / FirstErrorOrLastOk
}

// InGroup reports whether this path currently belongs to a path group.
func (p *Path) InGroup() bool { return p.Group != nil }

// setCachedResult stores result as this path's pending result and records
// its arrival time for the group resolvers in §4.3.
func (p *Path) setCachedResult(result *msg.Msg) {
	p.CachedCmdResult = result
	p.arrivedAtUs = mono.MicroTime()
	if result.IsFinal {
		p.HasReceivedFinalResult = true
	}
}
