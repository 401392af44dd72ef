package flush_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/flush"
)

var _ = Describe("Manager", func() {
	var (
		clk *clock.Clock
		m   *flush.Manager
	)

	BeforeEach(func() {
		clk = clock.New()
		m = flush.NewManager(clk, 1)
	})

	It("should broadcast to every subscriber in the next cycle's flush phase", func() {
		var seen []string
		for _, name := range []string{"fetch", "decode", "rob"} {
			m.Subscribe(func(c flush.Criteria) error {
				Expect(c.InstID).To(Equal(uint64(42)))
				Expect(clk.CurrentCycle()).To(Equal(uint64(4)))
				Expect(clk.CurrentPhase()).To(Equal(clock.PhaseFlush))
				seen = append(seen, name)
				return nil
			})
		}

		clk.Schedule(3, clock.PhaseTick, func() {
			Expect(m.Request(42)).To(Succeed())
		})

		Expect(clk.Run()).To(Succeed())
		Expect(seen).To(Equal([]string{"fetch", "decode", "rob"}))
		Expect(m.Flushes()).To(Equal(uint64(1)))
	})

	It("should land before tick work of the same cycle", func() {
		var trace []string
		m.Subscribe(func(flush.Criteria) error {
			trace = append(trace, "flush")
			return nil
		})

		clk.Schedule(0, clock.PhaseTick, func() {
			Expect(m.Request(1)).To(Succeed())
		})
		clk.Schedule(1, clock.PhaseTick, func() { trace = append(trace, "tick") })

		Expect(clk.Run()).To(Succeed())
		Expect(trace).To(Equal([]string{"flush", "tick"}))
	})

	It("should fail the simulation when a subscriber fails", func() {
		boom := errors.New("boom")
		m.Subscribe(func(flush.Criteria) error { return boom })

		Expect(m.Request(7)).To(Succeed())

		Expect(clk.Run()).To(MatchError(boom))
	})

	It("should describe the criteria", func() {
		Expect(flush.Criteria{InstID: 9}.String()).To(Equal("flush after uid:9"))
	})
})
