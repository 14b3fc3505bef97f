// Package graph parses the graph JSON document of spec.md §6 ("External
// interfaces"): nodes (extension groups and extensions keyed by (app,
// extension_group, extension, addon)) and connections (edges keyed by
// source, with per-message-kind destination arrays carrying optional
// msg_conversion and result_return_policy declarations).
//
// Grounded on api/apc/actmsg.go's small JSON action-envelope shape
// (typed discriminator plus typed payload) for the general "declarative
// JSON document describing wiring" idiom; there is no direct graph-
// definition analogue in the teacher, which has no equivalent concept.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/ten-framework/ten-runtime-go/convert"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
	"github.com/ten-framework/ten-runtime-go/router"
)

// Node declares one extension placed in the graph.
type Node struct {
	App            string `json:"app"`
	ExtensionGroup string `json:"extension_group"`
	Extension      string `json:"extension"`
	Addon          string `json:"addon"`
}

func (n Node) Loc() loc.Loc { return loc.New(n.App, "", n.ExtensionGroup, n.Extension) }

// FieldMappingSpec is the JSON shape of one convert.FieldMapping.
type FieldMappingSpec struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Const any    `json:"const,omitempty"`
}

func (s FieldMappingSpec) toMapping() convert.FieldMapping {
	return convert.FieldMapping{From: s.From, To: s.To, Const: s.Const}
}

// ConversionSpec is the JSON shape of msg_conversion: one or more rules,
// each possibly renaming the command and remapping fields, producing a
// 1->N fan-out when more than one rule is present (spec.md §4.7).
type ConversionSpec struct {
	Rules []struct {
		TargetCmdName       string             `json:"target_cmd_name,omitempty"`
		FieldMappings       []FieldMappingSpec `json:"field_mappings,omitempty"`
		ResultFieldMappings []FieldMappingSpec `json:"result_field_mappings,omitempty"`
	} `json:"rules"`
}

func (s *ConversionSpec) toEdgeRules() *convert.EdgeRules {
	if s == nil || len(s.Rules) == 0 {
		return nil
	}
	rules := make([]*convert.Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		rule := &convert.Rule{TargetCmdName: r.TargetCmdName}
		for _, fm := range r.FieldMappings {
			rule.FieldMappings = append(rule.FieldMappings, fm.toMapping())
		}
		for _, fm := range r.ResultFieldMappings {
			rule.ResultFieldMappings = append(rule.ResultFieldMappings, fm.toMapping())
		}
		rules = append(rules, rule)
	}
	return &convert.EdgeRules{Rules: rules}
}

// DestSpec is one destination entry of a connection's per-kind array.
type DestSpec struct {
	App                string          `json:"app"`
	ExtensionGroup     string          `json:"extension_group"`
	Extension          string          `json:"extension"`
	MsgConversion      *ConversionSpec `json:"msg_conversion,omitempty"`
	ResultReturnPolicy string          `json:"result_return_policy,omitempty"`
}

func (d DestSpec) loc(app, graphID string) loc.Loc {
	a := d.App
	if a == "" {
		a = app
	}
	return loc.New(a, graphID, d.ExtensionGroup, d.Extension)
}

// policy returns d's declared result_return_policy, defaulting to
// EachOkAndError per spec.md §6 when the destination entry does not
// declare one.
func (d DestSpec) policy() path.Policy {
	if d.ResultReturnPolicy != "" {
		if p, ok := path.PolicyFromString(d.ResultReturnPolicy); ok {
			return p
		}
	}
	return path.EachOkAndError
}

// EdgeSpec is one named message's destination list within a connection.
type EdgeSpec struct {
	Name string     `json:"name"`
	Dest []DestSpec `json:"dest"`
}

// Connection is one source extension's outbound wiring, split by message
// kind (spec.md §6 "arrays per message kind: cmd, data, audio_frame,
// video_frame").
type Connection struct {
	App            string     `json:"app"`
	ExtensionGroup string     `json:"extension_group"`
	Extension      string     `json:"extension"`
	Cmd            []EdgeSpec `json:"cmd,omitempty"`
	Data           []EdgeSpec `json:"data,omitempty"`
	AudioFrame     []EdgeSpec `json:"audio_frame,omitempty"`
	VideoFrame     []EdgeSpec `json:"video_frame,omitempty"`
}

func (c Connection) loc() loc.Loc { return loc.New(c.App, "", c.ExtensionGroup, c.Extension) }

// sameNode compares two locs ignoring the graph_id field: graph documents
// describe wiring that is the same regardless of which graph_id a given
// instantiation is assigned at start_graph time (spec.md §6's node/
// connection entries carry no graph_id of their own).
func sameNode(a, b loc.Loc) bool {
	return a.App == b.App && a.ExtensionGroup == b.ExtensionGroup && a.Extension == b.Extension
}

func (c Connection) edgesFor(kind msg.Kind) []EdgeSpec {
	switch kind {
	case msg.KindCommand:
		return c.Cmd
	case msg.KindData:
		return c.Data
	case msg.KindAudioFrame:
		return c.AudioFrame
	case msg.KindVideoFrame:
		return c.VideoFrame
	default:
		return nil
	}
}

// Doc is the top-level parsed graph document.
type Doc struct {
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// Graph wraps a parsed Doc and implements router.Resolver against it.
type Graph struct {
	doc Doc
}

func Parse(data []byte) (*Graph, error) {
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: parse document: %w", err)
	}
	return &Graph{doc: doc}, nil
}

func (g *Graph) Nodes() []Node { return g.doc.Nodes }

// Edges implements router.Resolver: find src's connection entry, pick the
// per-kind edge array, and return every destination whose edge name
// matches m.Name.
func (g *Graph) Edges(src loc.Loc, m *msg.Msg) []router.Edge {
	var out []router.Edge
	for _, c := range g.doc.Connections {
		if !sameNode(c.loc(), src) {
			continue
		}
		for _, e := range c.edgesFor(m.Kind) {
			if e.Name != m.Name {
				continue
			}
			for _, d := range e.Dest {
				out = append(out, router.Edge{
					Dest:       d.loc(c.App, src.Graph),
					Conversion: d.MsgConversion.toEdgeRules(),
					Policy:     d.policy(),
				})
			}
		}
	}
	return out
}

// Policy returns the declared result_return_policy for (src, msgName),
// defaulting to EachOkAndError per spec.md §6 when a destination entry
// does not declare one (graphs may set it per-destination; the first
// non-empty declaration among a message's destinations wins, since all
// members of one fan-out share one group policy).
func (g *Graph) Policy(src loc.Loc, msgName string) path.Policy {
	for _, c := range g.doc.Connections {
		if !sameNode(c.loc(), src) {
			continue
		}
		for _, e := range c.Cmd {
			if e.Name != msgName {
				continue
			}
			for _, d := range e.Dest {
				if d.ResultReturnPolicy != "" {
					return d.policy()
				}
			}
		}
	}
	return path.EachOkAndError
}
