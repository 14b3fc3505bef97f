package hk_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ten-framework/ten-runtime-go/hk"
	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
)

var _ = Describe("HK", func() {
	It("fires a registered entry repeatedly until unregistered", func() {
		h := hk.NewHK()
		go h.Run()
		h.WaitStarted()
		defer h.Stop()

		fires := make(chan struct{}, 16)
		id := h.Register("probe", time.Millisecond, func(time.Time) bool {
			fires <- struct{}{}
			return true
		})

		Eventually(fires, time.Second).Should(Receive())
		Eventually(fires, time.Second).Should(Receive())

		h.Unregister(id)
	})

	It("stops rescheduling a one-shot entry", func() {
		h := hk.NewHK()
		go h.Run()
		h.WaitStarted()
		defer h.Stop()

		count := 0
		done := make(chan struct{})
		h.Register("once", time.Millisecond, func(time.Time) bool {
			count++
			close(done)
			return false
		})

		Eventually(done, time.Second).Should(BeClosed())
		time.Sleep(20 * time.Millisecond)
		Expect(count).To(Equal(1))
	})
})

var _ = Describe("TimerService", func() {
	It("delivers N timeouts for a finite timer command", func() {
		h := hk.NewHK()
		go h.Run()
		h.WaitStarted()
		defer h.Stop()

		svc := hk.NewTimerService(h)
		requester := loc.New("app", "g", "grp", "ext")

		cmd := msg.NewCommand(msg.CmdTimer)
		cmd.Src = requester
		Expect(cmd.SetProp("timer_id", int64(7))).To(Succeed())
		Expect(cmd.SetProp("timeout_us", int64(1000))).To(Succeed())
		Expect(cmd.SetProp("times", int64(2))).To(Succeed())

		delivered := make(chan *msg.Msg, 8)
		Expect(svc.HandleTimer(cmd, func(m *msg.Msg) { delivered <- m })).To(Succeed())

		var got []*msg.Msg
		Eventually(func() int {
			select {
			case m := <-delivered:
				got = append(got, m)
			default:
			}
			return len(got)
		}, time.Second).Should(Equal(2))

		for _, m := range got {
			Expect(m.Name).To(Equal(msg.CmdTimeout))
			tid, err := m.Props.GetInt64("timer_id")
			Expect(err).NotTo(HaveOccurred())
			Expect(tid).To(Equal(int64(7)))
		}
	})

	It("cancels a live timer on a matching timeout command", func() {
		h := hk.NewHK()
		go h.Run()
		h.WaitStarted()
		defer h.Stop()

		svc := hk.NewTimerService(h)
		requester := loc.New("app", "g", "grp", "ext")

		cmd := msg.NewCommand(msg.CmdTimer)
		cmd.Src = requester
		Expect(cmd.SetProp("timer_id", int64(9))).To(Succeed())
		Expect(cmd.SetProp("timeout_us", int64(5000))).To(Succeed())
		Expect(cmd.SetProp("times", int64(-1))).To(Succeed())

		delivered := make(chan *msg.Msg, 8)
		Expect(svc.HandleTimer(cmd, func(m *msg.Msg) { delivered <- m })).To(Succeed())

		cancel := msg.NewCommand(msg.CmdTimeout)
		Expect(cancel.SetProp("timer_id", int64(9))).To(Succeed())
		Expect(svc.HandleTimeout(cancel)).To(Succeed())

		Consistently(delivered, 20*time.Millisecond).ShouldNot(Receive())
	})
})

var _ = Describe("RegisterPathExpiry", func() {
	It("turns an expired out path into a delivered timeout result", func() {
		h := hk.NewHK()
		go h.Run()
		h.WaitStarted()
		defer h.Stop()

		owner := loc.New("app", "g", "grp", "ext")
		tbl := path.NewTable(owner)
		cmd := msg.NewCommand("slow")
		tbl.AddOutPath(cmd, nil, nil, 1) // 1us timeout

		delivered := make(chan *msg.Msg, 8)
		stop := make(chan struct{})
		defer close(stop)
		hk.RegisterPathExpiry(h, tbl, 1000, func(m *msg.Msg) { delivered <- m }, stop)

		Eventually(delivered, time.Second).Should(Receive())
	})
})
