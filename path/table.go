package path

import (
	"fmt"
	"sync"

	"github.com/ten-framework/ten-runtime-go/cmn/mono"
	"github.com/ten-framework/ten-runtime-go/cmn/nlog"
	"github.com/ten-framework/ten-runtime-go/convert"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
)

// Table owns every in-flight in-path and out-path for one extension (or
// engine/app) runloop, spec.md §4.2 (component C2). A Table is owned by a
// single runloop goroutine and is not itself safe for unsynchronized
// concurrent use; the mutex guards only the bookkeeping maps so that
// hk's expiry scan (running on the housekeeper goroutine) can read them
// without racing the owning runloop.
type Table struct {
	Owner loc.Loc

	mu      sync.Mutex
	inPaths  map[string]*Path // keyed by cmd_id, IN direction
	outPaths map[string]*Path // keyed by cmd_id, OUT direction
}

func NewTable(owner loc.Loc) *Table {
	return &Table{
		Owner:    owner,
		inPaths:  make(map[string]*Path),
		outPaths: make(map[string]*Path),
	}
}

// AddInPath records a command just admitted into this extension, creating
// its IN path entry. If cmdID collides with an already-live IN path (the
// "cyclic graph" case of spec.md §4.1/§4.2 "Insertion"), the incoming
// command's id is rewritten via RegenerateCmdID and the caller must use
// the returned (possibly different) cmd id downstream. resultConversion,
// when non-nil, is the rule this path's eventual result must pass back
// through (spec.md §4.2 "add_in_path(cmd, result_conversion?) -> Path"),
// set when the message admitted here was itself produced by message
// conversion (§4.7 step 4).
func (t *Table) AddInPath(cmd *msg.Msg, timeoutUs int64, resultConversion *convert.Rule) *Path {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, collide := t.inPaths[cmd.CmdID]; collide {
		cmd.RegenerateCmdID()
	}

	p := &Path{
		Table:            t,
		Type:             In,
		CmdName:          cmd.Name,
		CmdID:            cmd.CmdID,
		ParentCmdID:      cmd.ParentCmdID,
		SrcLoc:           cmd.Src,
		ResultConversion: resultConversion,
	}
	if timeoutUs > 0 {
		p.ExpiredTimeUs = mono.MicroTime() + timeoutUs
	}
	t.inPaths[p.CmdID] = p
	return p
}

// AddOutPath records a command this extension just sent onward, creating
// its OUT path entry and wiring the result handler that will later be
// invoked by DetermineActualCmdResult.
func (t *Table) AddOutPath(cmd *msg.Msg, handler msg.ResultHandler, handlerData any, timeoutUs int64) *Path {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, collide := t.outPaths[cmd.CmdID]; collide {
		cmd.RegenerateCmdID()
	}

	p := &Path{
		Table:         t,
		Type:          Out,
		CmdName:       cmd.Name,
		CmdID:         cmd.CmdID,
		ParentCmdID:   cmd.ParentCmdID,
		SrcLoc:        cmd.Src,
		ResultHandler: handler,
		HandlerData:   handlerData,
	}
	if timeoutUs > 0 {
		p.ExpiredTimeUs = mono.MicroTime() + timeoutUs
	}
	t.outPaths[p.CmdID] = p
	return p
}

func (t *Table) tableFor(typ Type) map[string]*Path {
	if typ == In {
		return t.inPaths
	}
	return t.outPaths
}

// Find looks up a path by (type, cmd_id).
func (t *Table) Find(typ Type, cmdID string) *Path {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tableFor(typ)[cmdID]
}

func (t *Table) remove(p *Path) {
	delete(t.tableFor(p.Type), p.CmdID)
}

// SetResult attaches an arriving cmd_result to the path it belongs to
// (spec.md §4.2) and returns that path, or nil if no matching path exists
// (result for an already-expired or unknown cmd_id, logged and dropped by
// the caller).
func (t *Table) SetResult(typ Type, result *msg.Msg) *Path {
	t.mu.Lock()
	p := t.tableFor(typ)[result.CmdID]
	t.mu.Unlock()
	if p == nil {
		nlog.Warnf("path: no %s path for cmd_id %s (result for %q dropped)", typ, result.CmdID, result.OriginalCmdName)
		return nil
	}
	p.setCachedResult(result)
	return p
}

// DetermineActualCmdResult implements the reducer of spec.md §4.2: given a
// path that just received a cached result, decide what (if anything)
// should actually be forwarded to path.src_loc, applying path-group
// resolution first when the path belongs to one. Returns nil when the
// group is not yet ready to emit (EachOkAndError with a still-pending
// result, or a non-terminal intermediate policy state).
func (t *Table) DetermineActualCmdResult(p *Path, typ Type) (*msg.Msg, error) {
	if p.InGroup() {
		resolved := p.Group.resolve(p)
		if resolved == nil {
			return nil, nil
		}
		p = resolved
	}

	if p.CachedCmdResult == nil {
		return nil, fmt.Errorf("path: determine_actual_cmd_result on %s cmd_id=%s with no cached result", p.CmdName, p.CmdID)
	}

	result := p.CachedCmdResult.Clone()
	if p.ResultConversion != nil {
		converted, err := p.ResultConversion.ApplyResult(result)
		if err != nil {
			return nil, fmt.Errorf("path: apply result_conversion for %s cmd_id=%s: %w", p.CmdName, p.CmdID, err)
		}
		result = converted
	}
	result.SetOriginalCmdName(p.CmdName)
	if p.ParentCmdID != "" {
		result.RestoreParentCmdID(p.ParentCmdID)
	}
	result.ClearDest()
	result.AddDest(p.SrcLoc)

	if typ == Out {
		result.ResultHandler = p.ResultHandler
		result.HandlerData = p.HandlerData
	}

	if p.InGroup() {
		switch p.Group.Policy {
		case EachOkAndError:
			wasLast := p.Group.removeMember(p)
			t.remove(p)
			// is_final is defined from the original caller's point of view
			// (end-of-stream for its one cmd_id), not this member's own:
			// with N siblings answering under one restored parent cmd_id,
			// only the last-arriving sibling actually ends that stream.
			result.IsFinal = wasLast
			result.IsCompleted = wasLast
			return result, nil
		case FirstErrorOrFirstOk, FirstErrorOrLastOk:
			for _, m := range p.Group.Members {
				t.remove(m)
			}
			result.IsFinal = true
			result.IsCompleted = true
			return result, nil
		}
	}

	if result.IsFinal {
		t.remove(p)
	}
	result.IsCompleted = result.IsFinal
	return result, nil
}
