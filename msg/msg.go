// Package msg implements the typed, reference-counted message model of
// spec.md §3/§4.1 (component C1): Command, CommandResult, Data,
// AudioFrame, VideoFrame, the three builtin commands (start_graph,
// stop_graph, close_app), and the internal timer/timeout commands.
//
// Grounded on transport/api.go's Obj/ObjHdr/ObjSentCB shape -- a header
// describing the send plus an optionally shared, refcounted payload -- and
// memsys/a_test.go's buffer-checkout/reclaim contract.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package msg

import (
	"github.com/google/uuid"

	"github.com/ten-framework/ten-runtime-go/cmn/cos"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/value"
)

type Kind int

const (
	KindCommand Kind = iota
	KindCommandResult
	KindData
	KindAudioFrame
	KindVideoFrame
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "cmd"
	case KindCommandResult:
		return "cmd_result"
	case KindData:
		return "data"
	case KindAudioFrame:
		return "audio_frame"
	case KindVideoFrame:
		return "video_frame"
	default:
		return "unknown"
	}
}

// StatusCode is the cmd_result wire status, spec.md §6.
type StatusCode int

const (
	StatusOk    StatusCode = 0
	StatusError StatusCode = 1
)

// Builtin command names, spec.md §6.
const (
	CmdStartGraph = "start_graph"
	CmdStopGraph  = "stop_graph"
	CmdCloseApp   = "close_app"
	CmdTimer      = "timer"
	CmdTimeout    = "timeout"
)

// AudioFmt is the audio_frame data_fmt enum, spec.md §6.
type AudioFmt int

const (
	AudioInterleave AudioFmt = iota
	AudioNonInterleave
)

// FrameMeta carries the audio/video/data-frame-only fields from the wire
// shape table in spec.md §6. Only the fields relevant to the message's
// Kind are meaningful.
type FrameMeta struct {
	SampleRate         int
	NumberOfChannel    int
	BytesPerSample     int
	SamplesPerChannel  int
	DataFmt            AudioFmt
	LineSize           int
	Width              int
	Height             int
	Timestamp          int64
	EOF                bool
}

// ResultHandler is invoked on the sender's runloop when a command's
// terminal (or, for EachOkAndError, intermediate) result arrives. It is
// carried on the OUT path (path.Path.ResultHandler), not on the Msg
// itself, except transiently while a result travels back through
// determine_actual_cmd_result (spec.md §4.2 step 6).
type ResultHandler func(result *Msg, userData any)

// Msg is the tagged message value of spec.md §3. The envelope fields
// (Name, Src, Dest, Props, cmd-id bookkeeping, result fields) are plain
// Go values copied on Clone so that per-destination router clones never
// alias each other's Dest slice or Props tree -- correctness under
// concurrent runloops (P5) takes priority over sharing the property tree
// literally, which the reference implementation's refcounted payload
// affords for free in a single-threaded interpreter but a Go port must
// earn explicitly. The large binary payload of Data/AudioFrame/VideoFrame
// messages *is* genuinely shared and refcounted (see buffer.go), which is
// the expensive part worth not copying.
type Msg struct {
	id   string // internal wire id, independent of CmdID's id-domain
	Kind Kind
	Name string

	Src  loc.Loc
	Dest []loc.Loc

	Props *value.Tree

	// Command / CommandResult fields.
	CmdID           string
	ParentCmdID     string
	StatusCode      StatusCode
	IsFinal         bool
	IsCompleted     bool
	OriginalCmdName string

	// Transient, set only while a result is in flight through a path
	// (spec.md §4.2 step 6): DetermineActualCmdResult copies it from the
	// OUT path onto the result. Nothing clears it after the handler runs.
	ResultHandler ResultHandler
	HandlerData   any

	Frame FrameMeta

	// Conversion carries the sending edge's declared msg_conversion rules
	// and result_return_policy (router.ConversionMeta) from Dispatch to
	// the destination's own admission reducer (spec.md §4.7). It is an
	// untyped any rather than *router.ConversionMeta because router
	// already imports msg, so msg cannot import router back; callers type-
	// assert. nil on messages no edge declared a conversion for.
	Conversion any

	buf *payload // nil unless Kind is Data/AudioFrame/VideoFrame and AllocBuf was called
}

func newBase(kind Kind, name string) *Msg {
	return &Msg{
		id:    uuid.NewString(),
		Kind:  kind,
		Name:  name,
		Props: value.NewTree(),
	}
}

func NewCommand(name string) *Msg {
	m := newBase(KindCommand, name)
	m.CmdID = GenCmdID()
	return m
}

func NewCommandResult(name string, status StatusCode) *Msg {
	m := newBase(KindCommandResult, name)
	m.StatusCode = status
	m.OriginalCmdName = name
	return m
}

func NewData(name string) *Msg        { return newBase(KindData, name) }
func NewAudioFrame(name string) *Msg  { return newBase(KindAudioFrame, name) }
func NewVideoFrame(name string) *Msg  { return newBase(KindVideoFrame, name) }

func NewStartGraph() *Msg { return NewCommand(CmdStartGraph) }
func NewStopGraph() *Msg  { return NewCommand(CmdStopGraph) }
func NewCloseApp() *Msg   { return NewCommand(CmdCloseApp) }

// GenCmdID mints a new command id, grounded in cmn/cos.GenUUID -- the
// teacher's own id-generation path, reused here for the cmd-id identity
// domain (distinct from the Go-binding msg_id minted by google/uuid).
func GenCmdID() string { return cos.GenUUID() }

func (m *Msg) ID() string { return m.id }

func (m *Msg) IsCmd() bool    { return m.Kind == KindCommand }
func (m *Msg) IsResult() bool { return m.Kind == KindCommandResult }

// Clone produces an independent copy: own Dest slice, own (deep-copied)
// Props tree, shared (refcounted) buffer payload if one exists.
func (m *Msg) Clone() *Msg {
	c := *m
	c.id = uuid.NewString()
	c.Dest = append([]loc.Loc(nil), m.Dest...)
	if m.Props != nil {
		c.Props = m.Props.Clone()
	}
	if m.buf != nil {
		m.buf.acquire()
	}
	return &c
}

// Release drops this Msg's reference to its buffer payload, if any. It is
// a no-op for header-only / non-frame messages since Go's GC reclaims the
// envelope itself; Release exists so buffer reclamation timing is
// explicit and testable per spec.md §9 ("refcount 0 ⇒ no live tokens").
func (m *Msg) Release() {
	if m.buf != nil {
		m.buf.release()
	}
}

func (m *Msg) ClearDest() { m.Dest = m.Dest[:0] }
func (m *Msg) AddDest(l loc.Loc) { m.Dest = append(m.Dest, l) }
func (m *Msg) IterDest() []loc.Loc { return m.Dest }

func (m *Msg) GetProp(path string) (string, error) { return m.Props.GetString(path) }
func (m *Msg) SetProp(path string, v any) error     { return m.Props.Set(path, v) }

func (m *Msg) SetOriginalCmdName(name string) { m.OriginalCmdName = name }

// RegenerateCmdID implements the cmd-id collision rewrite of spec.md
// §4.1/§4.2: the table detected a duplicate cmd_id, so the incoming
// command's current id is preserved as its parent and a fresh id is
// minted so the destination table stays unique.
func (m *Msg) RegenerateCmdID() {
	m.ParentCmdID = m.CmdID
	m.CmdID = GenCmdID()
}

// RestoreParentCmdID implements "when a result flows backward through a
// path, if that path's parent_cmd_id is non-empty, the result's cmd_id is
// rewritten to parent_cmd_id before continuing" (spec.md §4.1).
func (m *Msg) RestoreParentCmdID(parentCmdID string) {
	if parentCmdID != "" {
		m.CmdID = parentCmdID
	}
}
