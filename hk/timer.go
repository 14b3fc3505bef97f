package hk

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ten-framework/ten-runtime-go/cmn/nlog"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
)

// Sender delivers a message onto the requester's runloop, exactly like the
// router's inbound delivery path; TimerService never touches a Table or
// runloop directly, it only emits timeout commands through this hook.
type Sender func(m *msg.Msg)

// TimerService implements the builtin `timer`/`timeout` commands of
// spec.md §6 on top of one HK: each live user timer is an HK entry, keyed
// by the caller-chosen timer_id so a later `timeout` command can cancel
// it by id.
type TimerService struct {
	hk     *HK
	mu     sync.Mutex
	live   map[int64]ulid.ULID // timer_id -> hk entry id
}

func NewTimerService(h *HK) *TimerService {
	return &TimerService{hk: h, live: make(map[int64]ulid.ULID)}
}

// HandleTimer implements the `timer` builtin: schedule `times` timeouts
// (times=-1 meaning infinite) every timeout_us, each delivered to src as a
// fresh `timeout` command carrying the same timer_id.
func (s *TimerService) HandleTimer(cmd *msg.Msg, deliver Sender) error {
	timerID, err := cmd.Props.GetInt64("timer_id")
	if err != nil {
		return err
	}
	timeoutUs, err := cmd.Props.GetInt64("timeout_us")
	if err != nil {
		return err
	}
	times, err := cmd.Props.GetInt64("times")
	if err != nil {
		times = -1
	}

	requester := cmd.Src
	interval := time.Duration(timeoutUs) * time.Microsecond
	remaining := times

	id := s.hk.Register("timer", interval, func(now time.Time) bool {
		fireTimeout(requester, timerID, deliver)
		if remaining < 0 {
			return true
		}
		remaining--
		return remaining > 0
	})

	s.mu.Lock()
	s.live[timerID] = id
	s.mu.Unlock()
	return nil
}

// HandleTimeout implements the `timeout` builtin when used to cancel a
// live timer: it carries the same timer_id the `timer` command minted.
func (s *TimerService) HandleTimeout(cmd *msg.Msg) error {
	timerID, err := cmd.Props.GetInt64("timer_id")
	if err != nil {
		return err
	}
	s.mu.Lock()
	id, ok := s.live[timerID]
	delete(s.live, timerID)
	s.mu.Unlock()
	if ok {
		s.hk.Unregister(id)
	}
	return nil
}

func fireTimeout(dest loc.Loc, timerID int64, deliver Sender) {
	m := msg.NewCommand(msg.CmdTimeout)
	m.Dest = []loc.Loc{dest}
	if err := m.SetProp("timer_id", timerID); err != nil {
		nlog.Errorf("hk: set timer_id on timeout command: %v", err)
		return
	}
	deliver(m)
}

// RegisterPathExpiry wires tbl's periodic scan-and-expire into h, firing
// every checkIntervalUs microseconds for as long as stop has not been
// closed. Synthesized timeout results are handed to deliver exactly as
// spec.md §4.2 describes: "inject it into the core as if it had arrived
// normally".
func RegisterPathExpiry(h *HK, tbl *path.Table, checkIntervalUs int64, deliver Sender, stop <-chan struct{}) ulid.ULID {
	interval := time.Duration(checkIntervalUs) * time.Microsecond
	return h.Register("path-expiry:"+tbl.Owner.String(), interval, func(now time.Time) bool {
		select {
		case <-stop:
			return false
		default:
		}
		for _, result := range tbl.ExpireOnce(path.Now()) {
			deliver(result)
		}
		return true
	})
}
