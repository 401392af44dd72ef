package core_test

import (
	"fmt"
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/loader"
	"github.com/sarchlab/oocore/timing/core"
	"github.com/sarchlab/oocore/timing/decode"
	"github.com/sarchlab/oocore/timing/rob"
)

func parseTrace(name string, lines ...string) *loader.Trace {
	trace, err := loader.Parse(strings.NewReader(strings.Join(lines, "\n")), name)
	Expect(err).NotTo(HaveOccurred())
	return trace
}

func repeat(n int, lines ...string) []string {
	out := make([]string, 0, n*len(lines))
	for i := 0; i < n; i++ {
		out = append(out, lines...)
	}
	return out
}

var _ = Describe("Core", func() {
	var config *core.Config

	BeforeEach(func() {
		config = core.DefaultConfig()
	})

	run := func(trace *loader.Trace, opts ...core.Option) (*core.Core, core.Stats) {
		c, err := core.NewCore(trace, config, opts...)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Run()).To(Succeed())
		return c, c.Stats()
	}

	It("should reject an invalid config", func() {
		config.FetchWidth = 0
		_, err := core.NewCore(parseTrace("t", "nop"), config)
		Expect(err).To(HaveOccurred())
	})

	It("should retire a straight-line trace completely", func() {
		trace := parseTrace("straight", repeat(10,
			"add x1, x2, x3",
			"ld x4, 0(x1)",
			"sd x4, 8(x1)",
		)...)

		c, stats := run(trace)

		Expect(stats.Retired()).To(Equal(uint64(30)))
		Expect(stats.ROB.RetiredSlots).To(Equal(uint64(30)))
		Expect(stats.Fetched).To(Equal(uint64(30)))
		Expect(stats.Dispatched).To(Equal(uint64(30)))
		Expect(stats.StoreCommits).To(Equal(uint64(10)))
		Expect(stats.RenameFrees).To(Equal(uint64(30)))
		Expect(stats.ROB.Arith).To(Equal(uint64(10)))
		Expect(stats.ROB.Load).To(Equal(uint64(10)))
		Expect(stats.ROB.Store).To(Equal(uint64(10)))
		Expect(stats.Drained).To(BeTrue())
		Expect(stats.Cycles).To(BeNumerically(">", 0))
		Expect(stats.IPC()).To(BeNumerically(">", 0))
		Expect(stats.IPC()).To(BeNumerically("<=", 2))
		Expect(c.Teardown()).To(BeTrue())
		Expect(c.ROB().Size()).To(BeZero())
	})

	It("should also run with zero-latency ports", func() {
		config.PortLatency = 0
		_, stats := run(parseTrace("t", repeat(12, "addi x1, x1, 1")...))

		Expect(stats.Retired()).To(Equal(uint64(12)))
		Expect(stats.Drained).To(BeTrue())
	})

	It("should fuse macro-ops and still retire every original instruction", func() {
		config.Decode.FuseInsts = true
		trace := parseTrace("lea", repeat(16,
			"slli x1, x2, 3",
			"add x1, x1, x3",
		)...)

		_, stats := run(trace)

		pairs := stats.Decode.FusedPairs()
		Expect(pairs).To(BeNumerically(">=", 2))
		Expect(stats.ROB.Fusions[insts.FusionLoadEffectiveAddress]).To(Equal(pairs))
		Expect(stats.Retired()).To(Equal(uint64(32)))
		Expect(stats.ROB.RetiredSlots).To(Equal(32 - pairs))
		Expect(stats.RenameFrees).To(Equal(32 - pairs))
		Expect(stats.Decode.Decoded).To(Equal(uint64(32)))
		Expect(stats.Decode.Sent).To(Equal(32 - pairs))
	})

	It("should refetch after a flushing instruction", func() {
		lines := repeat(6, "add x1, x2, x3")
		lines = append(lines, "fence.i")
		lines = append(lines, repeat(12, "add x4, x5, x6")...)
		trace := parseTrace("fence", lines...)

		c, stats := run(trace)

		Expect(stats.Flushes()).To(Equal(uint64(1)))
		Expect(stats.Retired()).To(Equal(uint64(19)))
		Expect(stats.Fetched).To(BeNumerically(">", 19))
		Expect(stats.Drained).To(BeTrue())
		Expect(c.Teardown()).To(BeTrue())
	})

	for _, mode := range []decode.FuseMode{decode.FuseAdjacent, decode.FuseWindow} {
		It(fmt.Sprintf("should not fuse across a flushing instruction in %s mode", mode), func() {
			config.Decode.FuseInsts = true
			config.Decode.FuseMode = mode
			trace := parseTrace("fence-fuse", "slli x1, x2, 3", "fence.i", "add x1, x1, x3")

			c, stats := run(trace)

			Expect(stats.Retired()).To(Equal(uint64(3)))
			Expect(stats.Flushes()).To(Equal(uint64(1)))
			Expect(stats.Decode.FusedPairs()).To(BeZero())
			Expect(stats.Drained).To(BeTrue())
			Expect(c.Teardown()).To(BeTrue())
		})
	}

	It("should stop at the retire limit", func() {
		config.ROB.NumInstsToRetire = 10
		c, stats := run(parseTrace("t", repeat(40, "nop")...))

		Expect(stats.Retired()).To(Equal(uint64(10)))
		Expect(stats.Drained).To(BeTrue())
		Expect(c.Clock().Stopped()).To(BeTrue())
		Expect(c.Teardown()).To(BeTrue())
	})

	It("should report heartbeats", func() {
		config.ROB.RetireHeartbeat = 5

		var snaps []rob.Snapshot
		_, stats := run(parseTrace("t", repeat(20, "nop")...),
			core.WithHeartbeat(func(s rob.Snapshot) { snaps = append(snaps, s) }))

		Expect(stats.Retired()).To(Equal(uint64(20)))
		Expect(snaps).To(HaveLen(4))
		Expect(snaps[3].Retired).To(Equal(uint64(20)))
	})

	It("should abort a stalled pipeline", func() {
		config.ROB.RetireTimeoutInterval = 100
		config.Timing.DivideLatency = 5000

		c, err := core.NewCore(parseTrace("t", "div x1, x2, x3", "nop"), config)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Run()).To(MatchError(rob.ErrStalledPipeline))
		Expect(c.Stats().Retired()).To(BeZero())
	})

	It("should hold its invariants on random traces", func() {
		rng := rand.New(rand.NewSource(2024))
		pool := []string{
			"slli x1, x2, 3", "add x1, x1, x3", "ld x4, 0(x1)",
			"lui x5, 0x10", "addi x5, x5, 4", "lw x6, 0(x2)",
			"lw x7, 4(x2)", "sw x6, 0(x8)", "sw x7, 4(x8)",
			"mul x9, x6, x7", "div x10, x9, x7", "bne x9, x10, 16",
			"sh2add x11, x9, x2", "lw x12, 0(x11)", "nop",
		}

		for round := 0; round < 40; round++ {
			lines := make([]string, 60+rng.Intn(60))
			for i := range lines {
				lines[i] = pool[rng.Intn(len(pool))]
			}
			for n := rng.Intn(5); n > 0; n-- {
				lines[rng.Intn(len(lines))] = "fence.i"
			}

			config = core.DefaultConfig()
			config.Decode.FuseInsts = rng.Intn(4) != 0
			if rng.Intn(2) == 0 {
				config.Decode.FuseMode = decode.FuseWindow
			}
			config.FetchWidth = uint32(rng.Intn(6) + 1)
			config.DispatchWidth = uint32(rng.Intn(6) + 1)
			config.Decode.NumToDecode = uint32(rng.Intn(6) + 1)
			config.Decode.FetchQueueSize = uint32(rng.Intn(12) + 6)
			config.UopQueueSize = uint32(rng.Intn(8) + 6)
			config.ROB.NumToRetire = uint32(rng.Intn(4) + 1)
			config.ROB.RetireQueueDepth = uint32(rng.Intn(30) + 6)
			config.PortLatency = uint64(rng.Intn(2))

			trace := parseTrace(fmt.Sprintf("random-%d", round), lines...)
			c, err := core.NewCore(trace, config)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Run()).To(Succeed(), "round %d", round)

			stats := c.Stats()
			Expect(stats.Retired()).To(Equal(uint64(trace.Len())), "round %d", round)
			Expect(stats.Drained).To(BeTrue())
			Expect(c.Teardown()).To(BeTrue())
		}
	})
})
