package path_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ten-framework/ten-runtime-go/loc"
	"github.com/ten-framework/ten-runtime-go/msg"
	"github.com/ten-framework/ten-runtime-go/path"
)

var caller = loc.New("app", "g", "grp_caller", "ext_caller")

var _ = Describe("Table", func() {
	It("round-trips a single out path through DetermineActualCmdResult", func() {
		tbl := path.NewTable(caller)
		cmd := msg.NewCommand("greet")
		cmd.Src = caller

		p := tbl.AddOutPath(cmd, nil, nil, 0)
		Expect(tbl.Find(path.Out, p.CmdID)).To(Equal(p))

		result := msg.NewCommandResult("greet", msg.StatusOk)
		result.CmdID = p.CmdID
		result.IsFinal = true

		got := tbl.SetResult(path.Out, result)
		Expect(got).To(Equal(p))

		actual, err := tbl.DetermineActualCmdResult(p, path.Out)
		Expect(err).NotTo(HaveOccurred())
		Expect(actual.IsCompleted).To(BeTrue())
		Expect(actual.OriginalCmdName).To(Equal("greet"))
		Expect(actual.IterDest()).To(Equal([]loc.Loc{caller}))

		Expect(tbl.Find(path.Out, p.CmdID)).To(BeNil())
	})

	It("rewrites a colliding cmd id instead of clobbering the live path", func() {
		tbl := path.NewTable(caller)
		cmd1 := msg.NewCommand("loopback")
		first := tbl.AddOutPath(cmd1, nil, nil, 0)

		cmd2 := msg.NewCommand("loopback")
		cmd2.CmdID = cmd1.CmdID // force a collision
		second := tbl.AddOutPath(cmd2, nil, nil, 0)

		Expect(second.CmdID).NotTo(Equal(first.CmdID))
		Expect(cmd2.ParentCmdID).To(Equal(first.CmdID))
		Expect(tbl.Find(path.Out, first.CmdID)).To(Equal(first))
		Expect(tbl.Find(path.Out, second.CmdID)).To(Equal(second))
	})

	It("restores parent_cmd_id on the way back out", func() {
		tbl := path.NewTable(caller)
		cmd := msg.NewCommand("loopback")
		p := tbl.AddOutPath(cmd, nil, nil, 0)
		p.ParentCmdID = "original-id"

		result := msg.NewCommandResult("loopback", msg.StatusOk)
		result.CmdID = p.CmdID
		result.IsFinal = true
		tbl.SetResult(path.Out, result)

		actual, err := tbl.DetermineActualCmdResult(p, path.Out)
		Expect(err).NotTo(HaveOccurred())
		Expect(actual.CmdID).To(Equal("original-id"))
	})

	It("expires an out path with no result and synthesizes a timeout", func() {
		tbl := path.NewTable(caller)
		cmd := msg.NewCommand("slow")
		p := tbl.AddOutPath(cmd, nil, nil, 1) // 1us timeout, expires almost immediately
		time.Sleep(2 * time.Millisecond)

		results := tbl.ExpireOnce(path.Now())
		Expect(results).To(HaveLen(1))
		Expect(results[0].StatusCode).To(Equal(msg.StatusError))
		Expect(tbl.Find(path.Out, p.CmdID)).To(BeNil())
	})
})

var _ = Describe("Group return policies", func() {
	newGroupOf3 := func(policy path.Policy) (*path.Table, []*path.Path) {
		tbl := path.NewTable(caller)
		members := make([]*path.Path, 3)
		for i := range members {
			cmd := msg.NewCommand("fanout")
			members[i] = tbl.AddOutPath(cmd, nil, nil, 0)
		}
		path.NewGroup(policy, members)
		return tbl, members
	}

	It("EachOkAndError emits once per member and completes on the last", func() {
		tbl, members := newGroupOf3(path.EachOkAndError)

		for i, p := range members {
			result := msg.NewCommandResult("fanout", msg.StatusOk)
			result.CmdID = p.CmdID
			result.IsFinal = true
			tbl.SetResult(path.Out, result)

			actual, err := tbl.DetermineActualCmdResult(p, path.Out)
			Expect(err).NotTo(HaveOccurred())
			Expect(actual).NotTo(BeNil())
			Expect(actual.IsCompleted).To(Equal(i == len(members)-1))
		}
	})

	It("FirstErrorOrFirstOk resolves to whichever member arrived first", func() {
		tbl, members := newGroupOf3(path.FirstErrorOrFirstOk)

		first := msg.NewCommandResult("fanout", msg.StatusOk)
		first.CmdID = members[1].CmdID
		first.IsFinal = true
		tbl.SetResult(path.Out, first)

		actual, err := tbl.DetermineActualCmdResult(members[1], path.Out)
		Expect(err).NotTo(HaveOccurred())
		Expect(actual).NotTo(BeNil())
		Expect(actual.IsCompleted).To(BeTrue())

		// The rest of the group was removed along with the winner.
		for _, p := range members {
			Expect(tbl.Find(path.Out, p.CmdID)).To(BeNil())
		}
	})

	It("FirstErrorOrLastOk waits for all members unless one errors", func() {
		tbl, members := newGroupOf3(path.FirstErrorOrLastOk)

		okResult := msg.NewCommandResult("fanout", msg.StatusOk)
		okResult.CmdID = members[0].CmdID
		okResult.IsFinal = true
		tbl.SetResult(path.Out, okResult)
		actual, err := tbl.DetermineActualCmdResult(members[0], path.Out)
		Expect(err).NotTo(HaveOccurred())
		Expect(actual).To(BeNil()) // not all members in yet

		errResult := msg.NewCommandResult("fanout", msg.StatusError)
		errResult.CmdID = members[1].CmdID
		errResult.IsFinal = true
		tbl.SetResult(path.Out, errResult)
		actual, err = tbl.DetermineActualCmdResult(members[1], path.Out)
		Expect(err).NotTo(HaveOccurred())
		Expect(actual).NotTo(BeNil())
		Expect(actual.StatusCode).To(Equal(msg.StatusError))
	})
})
