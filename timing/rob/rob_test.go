package rob_test

import (
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/port"
	"github.com/sarchlab/oocore/timing/rob"
)

type retirement struct {
	cycle uint64
	uid   uint64
}

var _ = Describe("ROB", func() {
	var (
		clk   *clock.Clock
		cfg   rob.Config
		r     *rob.ROB
		ports rob.Ports

		credits    []uint32
		flushes    []uint64
		redirects  []uint64
		stores     []uint64
		renameFree []retirement

		decoder *insts.Decoder
		nextUID uint64
	)

	build := func() {
		var err error
		r, err = rob.New(clk, cfg, ports)
		Expect(err).NotTo(HaveOccurred())
	}

	inst := func(text string, status insts.Status) *insts.Inst {
		i, err := decoder.Decode(text)
		Expect(err).NotTo(HaveOccurred())
		nextUID++
		i.UniqueID = nextUID
		i.TargetVAddr = 0x1000 + 4*(nextUID-1)
		Expect(i.SetStatus(status)).To(Succeed())
		return i
	}

	completed := func(n int) insts.Group {
		g := make(insts.Group, n)
		for k := range g {
			g[k] = inst("add x1, x2, x3", insts.StatusCompleted)
		}
		return g
	}

	at := func(cycle uint64, phase clock.Phase, fn func()) {
		clk.Schedule(cycle, phase, fn)
	}

	BeforeEach(func() {
		clk = clock.New()
		cfg = rob.DefaultConfig()
		ports = rob.Ports{
			CreditsOut:     port.New[uint32](clk, "RobCredits", 0),
			FlushOut:       port.New[uint64](clk, "RobFlush", 0),
			RedirectOut:    port.New[uint64](clk, "FetchRedirect", 0),
			StoreCommitOut: port.New[*insts.Inst](clk, "StoreCommit", 0),
			RenameFreeOut:  port.New[*insts.Inst](clk, "RenameFree", 0),
		}

		credits, flushes, redirects, stores, renameFree = nil, nil, nil, nil, nil
		decoder = insts.NewDecoder()
		nextUID = 0

		ports.CreditsOut.OnReceive(func(n uint32) error {
			credits = append(credits, n)
			return nil
		})
		ports.FlushOut.OnReceive(func(uid uint64) error {
			flushes = append(flushes, uid)
			return nil
		})
		ports.RedirectOut.OnReceive(func(addr uint64) error {
			redirects = append(redirects, addr)
			return nil
		})
		ports.StoreCommitOut.OnReceive(func(i *insts.Inst) error {
			stores = append(stores, i.UniqueID)
			return nil
		})
		ports.RenameFreeOut.OnReceive(func(i *insts.Inst) error {
			Expect(i.Status()).To(Equal(insts.StatusRetired))
			renameFree = append(renameFree, retirement{cycle: clk.CurrentCycle(), uid: i.UniqueID})
			return nil
		})
	})

	Describe("Config", func() {
		It("should have the documented defaults", func() {
			Expect(cfg.NumToRetire).To(Equal(uint32(2)))
			Expect(cfg.NumInstsToRetire).To(BeZero())
			Expect(cfg.RetireHeartbeat).To(Equal(uint64(1000000)))
			Expect(cfg.RetireTimeoutInterval).To(Equal(uint64(1000)))
			Expect(cfg.RetireQueueDepth).To(Equal(uint32(30)))
		})

		It("should reject a missing port", func() {
			ports.FlushOut = nil
			_, err := rob.New(clk, cfg, ports)
			Expect(err).To(HaveOccurred())
		})
	})

	It("should hand out one credit per entry at startup", func() {
		build()
		r.Startup()

		Expect(clk.Run()).To(Succeed())
		Expect(credits).To(Equal([]uint32{30}))
	})

	It("should retire at most the per-cycle limit and keep going on a completed head", func() {
		build()
		Expect(r.OnInstructionsArrived(completed(3))).To(Succeed())

		at(1, clock.PhaseTick, func() {
			Expect(r.Size()).To(Equal(1))
			Expect(credits).To(Equal([]uint32{2}))
		})

		Expect(clk.Run()).To(Succeed())
		Expect(renameFree).To(Equal([]retirement{{1, 1}, {1, 2}, {2, 3}}))
		Expect(credits).To(Equal([]uint32{2, 1}))
		Expect(r.Size()).To(BeZero())
		Expect(r.LastRetirement()).To(Equal(uint64(2)))
		Expect(r.Stats().Retired).To(Equal(uint64(3)))
		Expect(r.Stats().Arith).To(Equal(uint64(3)))
	})

	It("should wait for an incomplete head and wake up when it completes", func() {
		build()
		head := inst("ld x1, 0(x2)", insts.StatusDispatched)
		next := inst("add x3, x1, x1", insts.StatusCompleted)
		Expect(r.OnInstructionsArrived(insts.Group{head, next})).To(Succeed())

		at(1, clock.PhaseTick, func() {
			Expect(renameFree).To(BeEmpty())
			Expect(head.IsMarkedOldest()).To(BeTrue())
		})
		at(5, clock.PhaseTick, func() {
			Expect(head.SetStatus(insts.StatusCompleted)).To(Succeed())
		})

		Expect(clk.Run()).To(Succeed())
		Expect(renameFree).To(Equal([]retirement{{6, 1}, {6, 2}}))
		Expect(credits).To(Equal([]uint32{2}))
		Expect(r.Stats().Load).To(Equal(uint64(1)))
	})

	It("should not skip past an incomplete head", func() {
		build()
		head := inst("add x1, x2, x3", insts.StatusDispatched)
		Expect(r.OnInstructionsArrived(insts.Group{head, inst("nop", insts.StatusCompleted)})).To(Succeed())

		Expect(clk.Run()).To(Succeed())
		Expect(renameFree).To(BeEmpty())
		Expect(credits).To(BeEmpty())
		Expect(r.Size()).To(Equal(2))
	})

	It("should abort when a speculative instruction reaches the head", func() {
		build()
		head := inst("add x1, x2, x3", insts.StatusCompleted)
		head.SetSpeculative(true)
		Expect(r.OnInstructionsArrived(insts.Group{head})).To(Succeed())

		Expect(clk.Run()).To(MatchError(rob.ErrSpeculativeRetire))
		Expect(renameFree).To(BeEmpty())
		Expect(head.Status()).To(Equal(insts.StatusCompleted))
	})

	It("should abort when a retired instruction is still buffered", func() {
		build()
		Expect(r.OnInstructionsArrived(insts.Group{inst("nop", insts.StatusRetired)})).To(Succeed())

		Expect(clk.Run()).To(MatchError(rob.ErrRetireInvariant))
	})

	It("should fail on overflow", func() {
		build()
		Expect(r.OnInstructionsArrived(completed(31))).To(MatchError(rob.ErrOverflow))
		Expect(r.Size()).To(BeZero())
	})

	It("should send retired stores to the store-commit port", func() {
		build()
		st := inst("sd x1, 8(sp)", insts.StatusCompleted)
		Expect(r.OnInstructionsArrived(insts.Group{inst("nop", insts.StatusCompleted), st})).To(Succeed())

		Expect(clk.Run()).To(Succeed())
		Expect(stores).To(Equal([]uint64{st.UniqueID}))
		Expect(renameFree).To(HaveLen(2))
		Expect(r.Stats().Store).To(Equal(uint64(1)))
	})

	Describe("Flush", func() {
		It("should discard everything and return the occupancy as credits", func() {
			build()
			g := insts.Group{
				inst("add x1, x2, x3", insts.StatusCompleted),
				inst("ld x4, 0(x1)", insts.StatusDispatched),
				inst("sd x4, 0(x5)", insts.StatusCompleted),
				inst("beq x1, x4, 8", insts.StatusRenamed),
			}
			g[2].SetSpeculative(true)
			Expect(r.OnInstructionsArrived(g)).To(Succeed())

			at(1, clock.PhaseFlush, func() {
				Expect(r.OnFlush(flush.Criteria{InstID: 0})).To(Succeed())
			})

			Expect(clk.Run()).To(Succeed())
			Expect(r.Size()).To(BeZero())
			Expect(credits).To(Equal([]uint32{4}))
			Expect(renameFree).To(BeEmpty())
			Expect(stores).To(BeEmpty())
			Expect(r.Stats().Retired).To(BeZero())
		})

		It("should start a flush at a redirecting instruction and stop retiring", func() {
			build()
			ports.FlushOut.OnReceive(func(uid uint64) error {
				return r.OnFlush(flush.Criteria{InstID: uid})
			})

			redirect := inst("jal x0, 64", insts.StatusCompleted)
			redirect.Unit = insts.UnitROB
			Expect(r.OnInstructionsArrived(insts.Group{
				redirect,
				inst("add x1, x2, x3", insts.StatusCompleted),
			})).To(Succeed())

			Expect(clk.Run()).To(Succeed())
			Expect(renameFree).To(Equal([]retirement{{1, redirect.UniqueID}}))
			Expect(flushes).To(Equal([]uint64{redirect.UniqueID}))
			Expect(redirects).To(Equal([]uint64{redirect.TargetVAddr + 4}))
			Expect(credits).To(Equal([]uint32{1, 1}))
			Expect(r.Stats().Flushes).To(Equal(uint64(1)))
			Expect(r.Size()).To(BeZero())
		})
	})

	Describe("End of simulation", func() {
		It("should count a fused macro-op as two and stop at the retire limit", func() {
			cfg.NumToRetire = 4
			cfg.NumInstsToRetire = 3
			build()

			drained := 0
			r.OnDrained(func() { drained++ })

			fused := inst("add x1, x1, x2", insts.StatusCompleted)
			fused.SetFusion(insts.FusionLoadEffectiveAddress)
			Expect(r.OnInstructionsArrived(append(insts.Group{fused}, completed(3)...))).To(Succeed())

			Expect(clk.Run()).To(Succeed())
			Expect(clk.Stopped()).To(BeTrue())
			Expect(r.Drained()).To(BeTrue())
			Expect(drained).To(Equal(1))

			stats := r.Stats()
			Expect(stats.Retired).To(Equal(uint64(3)))
			Expect(stats.RetiredSlots).To(Equal(uint64(2)))
			Expect(stats.Fusions[insts.FusionLoadEffectiveAddress]).To(Equal(uint64(1)))
			Expect(stats.Fusions[insts.FusionNone]).To(Equal(uint64(1)))
			Expect(r.Size()).To(Equal(2))
		})

		It("should not stop the clock on the last instruction", func() {
			build()

			drained := 0
			r.OnDrained(func() { drained++ })

			last := inst("nop", insts.StatusCompleted)
			last.Last = true
			Expect(r.OnInstructionsArrived(insts.Group{last, inst("nop", insts.StatusCompleted)})).To(Succeed())
			at(10, clock.PhaseTick, func() {})

			Expect(clk.Run()).To(Succeed())
			Expect(clk.Stopped()).To(BeFalse())
			Expect(clk.CurrentCycle()).To(Equal(uint64(10)))
			Expect(drained).To(Equal(1))
			Expect(renameFree).To(HaveLen(2))
			Expect(r.Teardown()).To(BeTrue())
		})

		It("should report an unclean teardown with the buffer contents", func() {
			build()
			stuck := inst("div x1, x2, x3", insts.StatusDispatched)
			Expect(r.OnInstructionsArrived(insts.Group{stuck})).To(Succeed())

			Expect(clk.Run()).To(Succeed())
			Expect(r.Teardown()).To(BeFalse())

			var sb strings.Builder
			r.DumpDebugContent(&sb)
			Expect(sb.String()).To(HavePrefix("ROB Contents\n"))
			Expect(sb.String()).To(ContainSubstring(stuck.String()))
		})
	})

	Describe("Heartbeat", func() {
		It("should snapshot every heartbeat multiple", func() {
			cfg.RetireHeartbeat = 2
			cfg.NumToRetire = 8
			build()

			var snaps []rob.Snapshot
			r.OnHeartbeat(func(s rob.Snapshot) { snaps = append(snaps, s) })

			Expect(r.OnInstructionsArrived(completed(5))).To(Succeed())

			Expect(clk.Run()).To(Succeed())
			Expect(snaps).To(HaveLen(2))
			Expect(snaps[0].Retired).To(Equal(uint64(2)))
			Expect(snaps[1].Retired).To(Equal(uint64(4)))
			Expect(snaps[0].Cycle).To(Equal(uint64(1)))
			Expect(snaps[0].OverallIPC).To(Equal(2.0))
			Expect(snaps[1].String()).To(ContainSubstring("Retired 4 instructions in 1 cycles"))
		})

		It("should not miss a multiple jumped over by a fused retirement", func() {
			cfg.RetireHeartbeat = 3
			cfg.NumToRetire = 8
			build()

			var snaps []rob.Snapshot
			r.OnHeartbeat(func(s rob.Snapshot) { snaps = append(snaps, s) })

			g := completed(3)
			for _, i := range g {
				i.SetFusion(insts.FusionIndexLoad)
			}
			Expect(r.OnInstructionsArrived(g)).To(Succeed())

			Expect(clk.Run()).To(Succeed())
			Expect(snaps).To(HaveLen(2))
			Expect(snaps[0].Retired).To(Equal(uint64(4)))
			Expect(snaps[1].Retired).To(Equal(uint64(6)))
		})
	})

	Describe("Watchdog", func() {
		It("should abort when nothing retires within the timeout", func() {
			cfg.RetireTimeoutInterval = 100
			build()
			r.Startup()

			stuck := inst("div x1, x2, x3", insts.StatusDispatched)
			Expect(r.OnInstructionsArrived(insts.Group{stuck})).To(Succeed())
			at(101, clock.PhaseTick, func() {
				Fail("the simulation should have stopped at cycle 100")
			})

			err := clk.Run()
			Expect(err).To(MatchError(rob.ErrStalledPipeline))
			Expect(err).To(MatchError(ContainSubstring("current cycle 100")))
		})

		It("should measure the stall from the last retirement", func() {
			cfg.RetireTimeoutInterval = 100
			build()
			r.Startup()

			head := inst("div x1, x2, x3", insts.StatusDispatched)
			Expect(r.OnInstructionsArrived(insts.Group{head, inst("div x4, x5, x6", insts.StatusDispatched)})).To(Succeed())
			at(49, clock.PhaseTick, func() {
				Expect(head.SetStatus(insts.StatusCompleted)).To(Succeed())
			})
			at(500, clock.PhaseTick, func() {})

			err := clk.Run()
			Expect(err).To(MatchError(rob.ErrStalledPipeline))
			Expect(err).To(MatchError(ContainSubstring("no retirement for 150 cycles, current cycle 200")))
			Expect(r.LastRetirement()).To(Equal(uint64(50)))
		})

		It("should not keep a finished simulation alive", func() {
			cfg.RetireTimeoutInterval = 10
			build()
			r.Startup()

			Expect(r.OnInstructionsArrived(completed(2))).To(Succeed())

			Expect(clk.Run()).To(Succeed())
			Expect(clk.CurrentCycle()).To(BeNumerically("<=", 10))
		})

		It("should be disabled by a zero timeout", func() {
			cfg.RetireTimeoutInterval = 0
			build()
			r.Startup()

			Expect(r.OnInstructionsArrived(insts.Group{inst("nop", insts.StatusDispatched)})).To(Succeed())
			at(5000, clock.PhaseTick, func() {})

			Expect(clk.Run()).To(Succeed())
		})
	})

	It("should retire in program order under random completion times", func() {
		cfg.NumToRetire = 3
		build()

		rng := rand.New(rand.NewSource(7))
		var g insts.Group
		completedAt := map[uint64]uint64{}
		for k := 0; k < 25; k++ {
			i := inst("add x1, x2, x3", insts.StatusDispatched)
			g = append(g, i)

			delay := uint64(rng.Intn(40) + 1)
			at(delay, clock.PhaseTick, func() {
				completedAt[i.UniqueID] = clk.CurrentCycle()
				Expect(i.SetStatus(insts.StatusCompleted)).To(Succeed())
			})
		}
		Expect(r.OnInstructionsArrived(g)).To(Succeed())

		Expect(clk.Run()).To(Succeed())
		Expect(renameFree).To(HaveLen(25))
		for k, ret := range renameFree {
			Expect(ret.uid).To(Equal(uint64(k + 1)))
			Expect(completedAt).To(HaveKey(ret.uid))
			Expect(completedAt[ret.uid]).To(BeNumerically("<=", ret.cycle))
		}

		perCycle := map[uint64]int{}
		for _, ret := range renameFree {
			perCycle[ret.cycle]++
		}
		for _, n := range perCycle {
			Expect(n).To(BeNumerically("<=", 3))
		}

		var total uint32
		for _, c := range credits {
			total += c
		}
		Expect(total).To(Equal(uint32(25)))
	})
})
