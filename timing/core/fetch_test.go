package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/core"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/latency"
	"github.com/sarchlab/oocore/timing/port"
)

var flushAll = flush.Criteria{}

var _ = Describe("Fetch", func() {
	var (
		clk  *clock.Clock
		out  *port.Port[insts.Group]
		f    *core.Fetch
		sent []insts.Group
	)

	BeforeEach(func() {
		clk = clock.New()
		out = port.New[insts.Group](clk, "FetchToDecode", 0)
		sent = nil
		out.OnReceive(func(g insts.Group) error {
			sent = append(sent, g)
			return nil
		})

		trace := parseTrace("t", "nop", "nop", "fence.i", "add x1, x2, x3", "nop", "nop")
		f = core.NewFetch(clk, trace, 2, 3, out)
	})

	It("should send at most the fetch width per cycle with fresh unique ids", func() {
		Expect(f.OnCreditsReceived(10)).To(Succeed())

		Expect(clk.Run()).To(Succeed())
		Expect(sent).To(HaveLen(3))
		Expect(sent[0][0].UniqueID).To(Equal(uint64(1)))
		Expect(sent[2][1].UniqueID).To(Equal(uint64(6)))
		Expect(sent[2][1].Last).To(BeTrue())
		Expect(f.Done()).To(BeTrue())
		Expect(f.Fetched()).To(Equal(uint64(6)))
	})

	It("should stop without credits", func() {
		Expect(f.OnCreditsReceived(3)).To(Succeed())

		Expect(clk.Run()).To(Succeed())
		Expect(f.Fetched()).To(Equal(uint64(3)))
		Expect(f.Done()).To(BeFalse())
	})

	It("should refetch after the flushing instruction once the penalty has passed", func() {
		Expect(f.OnCreditsReceived(10)).To(Succeed())

		clk.Schedule(10, clock.PhaseUpdate, func() {
			fence := &insts.Inst{ProgramID: 2, TargetVAddr: 0x1008}
			Expect(f.OnRetired(fence)).To(Succeed())
			Expect(f.OnRedirect(0x100c)).To(Succeed())
		})

		Expect(clk.Run()).To(Succeed())
		Expect(f.Redirects()).To(Equal(uint64(1)))
		Expect(sent).To(HaveLen(5))

		refetch := sent[3]
		Expect(refetch[0].ProgramID).To(Equal(uint64(3)))
		Expect(refetch[0].Op).To(Equal(insts.OpADD))
		Expect(refetch[0].UniqueID).To(Equal(uint64(7)))
		Expect(clk.CurrentCycle()).To(Equal(uint64(15)))
	})
})

var _ = Describe("Dispatch", func() {
	var (
		clk      *clock.Clock
		robOut   *port.Port[insts.Group]
		credits  *port.Port[uint32]
		d        *core.Dispatch
		toROB    []insts.Group
		returned []uint32
	)

	BeforeEach(func() {
		clk = clock.New()
		robOut = port.New[insts.Group](clk, "DispatchToROB", 0)
		credits = port.New[uint32](clk, "UopQueueCredits", 0)
		toROB, returned = nil, nil
		robOut.OnReceive(func(g insts.Group) error {
			toROB = append(toROB, g)
			return nil
		})
		credits.OnReceive(func(n uint32) error {
			returned = append(returned, n)
			return nil
		})

		d = core.NewDispatch(clk, latency.NewTable(), 2, 4, robOut, credits)
	})

	group := func(n int) insts.Group {
		g := make(insts.Group, n)
		for i := range g {
			g[i] = &insts.Inst{UniqueID: uint64(i + 1), Op: insts.OpLD, Unit: insts.UnitLSU}
		}
		return g
	}

	It("should dispatch under buffer credits and complete after the unit latency", func() {
		g := group(3)
		Expect(d.OnROBCredits(8)).To(Succeed())
		Expect(d.OnInstructionsArrived(g)).To(Succeed())

		clk.Schedule(3, clock.PhaseTick, func() {
			Expect(g[0].Status()).To(Equal(insts.StatusDispatched))
		})

		Expect(clk.Run()).To(Succeed())
		Expect(toROB).To(HaveLen(2))
		Expect(toROB[0]).To(HaveLen(2))
		Expect(returned).To(Equal([]uint32{2, 1}))
		for _, inst := range g {
			Expect(inst.Status()).To(Equal(insts.StatusCompleted))
		}
		Expect(d.Completed()).To(Equal(uint64(3)))
	})

	It("should fail on uop queue overflow", func() {
		Expect(d.OnInstructionsArrived(group(5))).To(MatchError(core.ErrUopQueueOverflow))
	})

	It("should drop queued and in-flight work on flush", func() {
		g := group(4)
		Expect(d.OnROBCredits(1)).To(Succeed())
		Expect(d.OnInstructionsArrived(g)).To(Succeed())

		clk.Schedule(1, clock.PhaseFlush, func() {
			Expect(d.OnFlush(flushAll)).To(Succeed())
		})

		Expect(clk.Run()).To(Succeed())
		Expect(toROB).To(HaveLen(1))
		Expect(returned).To(Equal([]uint32{1, 3}))
		Expect(g[0].Status()).To(Equal(insts.StatusDispatched))
		Expect(d.Completed()).To(BeZero())
		Expect(d.Flushed()).To(Equal(uint64(3)))
	})
})
