// Package loc implements the Loc four-tuple addressing scheme (spec.md §3):
// (app_uri, graph_id, extension_group_name, extension_name). Any suffix may
// be empty, meaning "broadcast within the enclosing scope".
//
// Grounded on core/lif.go's lightweight identity-tuple helpers and
// original_source's include_internal/ten_runtime/common/loc.h field list.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package loc

import (
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Loc is a value type: equality is field-wise, copies never alias.
type Loc struct {
	App             string
	Graph           string
	ExtensionGroup  string
	Extension       string
}

func New(app, graph, group, ext string) Loc {
	return Loc{App: app, Graph: graph, ExtensionGroup: group, Extension: ext}
}

// Equal is field-wise equality; two empty Locs are equal but an empty
// field against a non-empty field is not "equal", it's "matches" (see
// Matches) -- equality is for path-table bookkeeping, Matches is for
// routing/broadcast resolution.
func (l Loc) Equal(o Loc) bool {
	return l.App == o.App && l.Graph == o.Graph &&
		l.ExtensionGroup == o.ExtensionGroup && l.Extension == o.Extension
}

// Matches reports whether l (typically a concrete sender/receiver loc)
// satisfies a pattern loc whose empty suffix fields mean "any". Used when
// resolving broadcast destinations within an enclosing scope.
func (l Loc) Matches(pattern Loc) bool {
	if pattern.App != "" && pattern.App != l.App {
		return false
	}
	if pattern.Graph != "" && pattern.Graph != l.Graph {
		return false
	}
	if pattern.ExtensionGroup != "" && pattern.ExtensionGroup != l.ExtensionGroup {
		return false
	}
	if pattern.Extension != "" && pattern.Extension != l.Extension {
		return false
	}
	return true
}

func (l Loc) IsEmpty() bool {
	return l.App == "" && l.Graph == "" && l.ExtensionGroup == "" && l.Extension == ""
}

// UniqueName is "${group}::${name}", the unique-in-graph extension name
// from spec.md §3.
func (l Loc) UniqueName() string {
	if l.ExtensionGroup == "" && l.Extension == "" {
		return ""
	}
	return l.ExtensionGroup + "::" + l.Extension
}

func (l Loc) String() string {
	parts := []string{l.App, l.Graph, l.ExtensionGroup, l.Extension}
	return strings.Join(parts, "/")
}

// Hash returns a stable 64-bit digest of the tuple, used as the key of
// app.Engine's extension registry. blake3 is used rather than a
// non-cryptographic hash purely because it's the hashing dependency the
// pack actually carries (vsavkov-kilroy); a cluster-scale router cares
// about collision resistance across untrusted extension names more than
// raw speed at this call volume.
func (l Loc) Hash() uint64 {
	h := blake3.New()
	_, _ = io.WriteString(h, l.App)
	_, _ = io.WriteString(h, "\x00")
	_, _ = io.WriteString(h, l.Graph)
	_, _ = io.WriteString(h, "\x00")
	_, _ = io.WriteString(h, l.ExtensionGroup)
	_, _ = io.WriteString(h, "\x00")
	_, _ = io.WriteString(h, l.Extension)
	sum := h.Sum(nil)
	var v uint64
	for i := 0; i < 8 && i < len(sum); i++ {
		v |= uint64(sum[i]) << (8 * i)
	}
	return v
}
