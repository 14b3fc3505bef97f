// Package router implements the router / dispatcher of spec.md §4.8
// (component C8): destination resolution against the live graph,
// per-destination clone + OUT-path creation + fan-out group creation on
// send, and OUT-path lookup + result-pipeline invocation on the way back.
// Per spec.md §4.8, the router's job stops at delivery: it resolves, it
// clones once per destination, it creates the sender's OUT path, it
// delivers. Message conversion (§4.7) is a receiver-side admission
// concern — it happens "on every non-result message entering an
// extension" — so Dispatch only carries the edge's declared conversion
// rules and return policy along on the delivered clone (Msg.Conversion)
// for the destination's own admission reducer to act on; it never runs
// Convert itself.
//
// Grounded on transport/bundle/stream_bundle.go (fans one logical send
// out to N per-destination streams) and transport/bundle/dmover.go
// (multi-destination move orchestration) — the same "one logical
// operation, N wire sends, one group to reduce against" shape as §4.8.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package router

import (
	"github.com/ten-framework/ten-runtime-go/cmn/cos"
	"github.com/ten-framework/ten-runtime-go/convert"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
)

// Edge is one resolved destination for an outbound message: a target loc
// plus the optional msg_conversion rules and result_return_policy
// declared on that graph edge (spec.md §4.7/§4.3).
type Edge struct {
	Dest       loc.Loc
	Conversion *convert.EdgeRules
	Policy     path.Policy
}

// ConversionMeta is the per-edge msg_conversion/return-policy declaration
// Dispatch attaches to a delivered clone's Msg.Conversion field (an
// untyped any on msg.Msg, since msg cannot import router without a cycle)
// so the destination's admission reducer can expand, schema-validate, and
// path-track it on arrival, exactly as spec.md §4.7 describes conversion
// happening at the receiver rather than the sender.
type ConversionMeta struct {
	Rules  *convert.EdgeRules
	Policy path.Policy
}

// Resolver consults the live graph to compute destinations for an
// outbound message, spec.md §4.8 "handles multicast to the same
// extension or cross-graph dispatch".
type Resolver interface {
	Edges(src loc.Loc, m *msg.Msg) []Edge
}

// Delivery hands a cloned, destination-addressed message to dest's
// runloop inbound queue (runloop.Loop.PostMessage wrapped per
// destination, or an error if dest no longer exists).
type Delivery func(dest loc.Loc, m *msg.Msg) error

// Router is stateless across calls: every path table it touches belongs
// to, and stays owned by, the sending extension's own runloop (spec.md
// §5 "Shared resources": "Path tables ... are owned by the extension
// runloop; no foreign thread may read or mutate them directly").
type Router struct {
	resolver Resolver
	deliver  Delivery
}

func New(resolver Resolver, deliver Delivery) *Router {
	return &Router{resolver: resolver, deliver: deliver}
}

// Dispatch implements the outbound half of §4.8: resolve destinations,
// clone once per destination, create an OUT path per command clone in
// senderTable, group the OUT paths under policy when the fan-out itself
// is > 1 (multiple destinations, §4.3's "a single outbound command has
// N>1 destinations" branch), and deliver each clone carrying its edge's
// msg_conversion/return-policy declaration for the destination to act on.
func (r *Router) Dispatch(senderTable *path.Table, sender loc.Loc, m *msg.Msg, policy path.Policy, handler msg.ResultHandler, handlerData any, timeoutUs int64) error {
	edges := r.resolver.Edges(sender, m)
	if len(edges) == 0 {
		return cos.NewErr(cos.Generic, "router.Dispatch", "no destination resolved for %q from %s", m.Name, sender)
	}

	var created []*path.Path
	for _, e := range edges {
		out := m.Clone()
		out.Src = sender
		out.ClearDest()
		out.AddDest(e.Dest)
		if e.Conversion != nil {
			out.Conversion = &ConversionMeta{Rules: e.Conversion, Policy: e.Policy}
		}

		if out.IsCmd() {
			p := senderTable.AddOutPath(out, handler, handlerData, timeoutUs)
			created = append(created, p)
		}
		if err := r.deliver(e.Dest, out); err != nil {
			return err
		}
	}

	if len(created) > 1 {
		path.NewGroup(policy, created)
	}
	return nil
}

// HandleResult implements the inbound half of §4.8: locate the OUT path
// by cmd_id in senderTable, cache the result, and run it through the
// determine_actual_cmd_result reducer. A nil, nil return means the group
// is not yet ready to emit (EachOkAndError still awaiting a sibling, or a
// non-terminal FirstErrorOrLastOk state); the caller should not invoke
// any result_handler in that case.
func (r *Router) HandleResult(senderTable *path.Table, result *msg.Msg) (*msg.Msg, error) {
	p := senderTable.SetResult(path.Out, result)
	if p == nil {
		return nil, nil
	}
	return senderTable.DetermineActualCmdResult(p, path.Out)
}
