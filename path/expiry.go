package path

import (
	"github.com/ten-framework/ten-runtime-go/cmn/mono"
	"github.com/ten-framework/ten-runtime-go/msg"
)

// DefaultPathTimeoutUs is the path-type timeout applied when a caller does
// not declare its own, mirroring original_source's
// TEN_DEFAULT_PATH_TIMEOUT (3 minutes, in microseconds) for both IN and
// OUT paths (ten_path_timeout_info carries in_path_timeout and
// out_path_timeout as independent fields of the same unit and default).
const DefaultPathTimeoutUs = 3 * 60 * 1_000_000

// ExpireOnce scans every outstanding path in t, IN and OUT alike, for
// ExpiredTimeUs <= nowUs and synthesizes a StatusError cmd_result for each,
// as if the callee (OUT) or this extension itself (IN) had replied with a
// timeout (spec.md §4.2 "Expiry"). original_source's path_timer.h declares
// a timer constructor for each direction (ten_extension_create_timer_for_
// in_path / ...for_out_path) off the same in_path_timeout/out_path_timeout
// fields, so both directions expire on equal footing: an unanswered IN
// path is this extension failing to reply in time, not solely the
// sender's problem. Called periodically from hk's timer wheel on the
// owning runloop, never concurrently with AddInPath/AddOutPath/SetResult
// on the same table.
func (t *Table) ExpireOnce(nowUs int64) []*msg.Msg {
	t.mu.Lock()
	var expired []*Path
	for _, p := range t.inPaths {
		if isExpired(p, nowUs) {
			expired = append(expired, p)
		}
	}
	for _, p := range t.outPaths {
		if isExpired(p, nowUs) {
			expired = append(expired, p)
		}
	}
	t.mu.Unlock()

	results := make([]*msg.Msg, 0, len(expired))
	for _, p := range expired {
		timeout := msg.NewCommandResult(p.CmdName, msg.StatusError)
		timeout.CmdID = p.CmdID
		timeout.IsFinal = true
		_ = timeout.SetProp("detail", "path expired before a result arrived")
		p.setCachedResult(timeout)

		result, err := t.DetermineActualCmdResult(p, p.Type)
		if err != nil || result == nil {
			continue
		}
		results = append(results, result)
	}
	return results
}

func isExpired(p *Path, nowUs int64) bool {
	return p.ExpiredTimeUs > 0 && p.ExpiredTimeUs <= nowUs && p.CachedCmdResult == nil
}

// Now returns the current monotonic microsecond clock, exposed so callers
// scheduling expiry scans don't need to import cmn/mono directly.
func Now() int64 { return mono.MicroTime() }
