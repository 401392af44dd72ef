// Package core wires fetch, decode, dispatch and the reorder buffer into a
// runnable trace-driven core model.
package core

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/loader"
	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/decode"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/latency"
	"github.com/sarchlab/oocore/timing/port"
	"github.com/sarchlab/oocore/timing/rob"
)

// flushLatency is the delay between a flush request and its broadcast.
const flushLatency = 1

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the number of cycles simulated.
	Cycles uint64
	// Fetched counts instructions sent by fetch, refetches included.
	Fetched uint64
	// Dispatched counts instructions moved into the reorder buffer.
	Dispatched uint64
	// StoreCommits counts stores released to memory at retirement.
	StoreCommits uint64
	// RenameFrees counts retirement notifications to rename.
	RenameFrees uint64
	// Drained is true if the trace ran to its end or to the retire limit.
	Drained bool

	Decode decode.Statistics
	ROB    rob.Statistics
}

// Retired returns the number of logical instructions retired.
func (s Stats) Retired() uint64 {
	return s.ROB.Retired
}

// Flushes returns the number of pipeline flushes.
func (s Stats) Flushes() uint64 {
	return s.ROB.Flushes
}

// IPC returns the retired instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.ROB.Retired) / float64(s.Cycles)
}

// Core is a trace-driven out-of-order core model.
type Core struct {
	cfg   *Config
	trace *loader.Trace

	engine sim.Engine
	freq   sim.Freq
	clock  *clock.Clock

	fetch    *Fetch
	decode   *decode.Decode
	dispatch *Dispatch
	rob      *rob.ROB
	flushes  *flush.Manager

	heartbeat func(rob.Snapshot)

	storeCommits uint64
	renameFrees  uint64
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithEngine runs the core on an existing Akita engine.
func WithEngine(engine sim.Engine) Option {
	return func(c *Core) {
		c.engine = engine
	}
}

// WithFreq sets the core frequency.
func WithFreq(freq sim.Freq) Option {
	return func(c *Core) {
		c.freq = freq
	}
}

// WithHeartbeat registers an observer of the reorder buffer's periodic
// statistics snapshots.
func WithHeartbeat(fn func(rob.Snapshot)) Option {
	return func(c *Core) {
		c.heartbeat = fn
	}
}

// NewCore builds a core that replays trace.
func NewCore(trace *loader.Trace, cfg *Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid core config: %w", err)
	}

	c := &Core{
		cfg:   cfg,
		trace: trace,
		freq:  1 * sim.GHz,
	}
	for _, opt := range opts {
		opt(c)
	}

	clockOpts := []clock.Option{clock.WithFreq(c.freq)}
	if c.engine != nil {
		clockOpts = append(clockOpts, clock.WithEngine(c.engine))
	}
	c.clock = clock.New(clockOpts...)

	if err := c.build(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Core) build() error {
	clk := c.clock
	lat := c.cfg.PortLatency

	fetchToDecode := port.New[insts.Group](clk, "FetchToDecode", lat)
	fetchCredits := port.New[uint32](clk, "FetchQueueCredits", lat)
	decodeToDispatch := port.New[insts.Group](clk, "DecodeToDispatch", lat)
	uopCredits := port.New[uint32](clk, "UopQueueCredits", lat)
	dispatchToROB := port.New[insts.Group](clk, "DispatchToROB", lat)

	// Retirement ports deliver in the retiring cycle so the flush broadcast
	// lands before the next retire pass.
	robPorts := rob.Ports{
		CreditsOut:     port.New[uint32](clk, "ROBCredits", lat),
		FlushOut:       port.New[uint64](clk, "RetireFlush", 0),
		RedirectOut:    port.New[uint64](clk, "FetchRedirect", 0),
		StoreCommitOut: port.New[*insts.Inst](clk, "StoreCommit", 0),
		RenameFreeOut:  port.New[*insts.Inst](clk, "RenameFree", 0),
	}

	table := latency.NewTableWithConfig(c.cfg.Timing)

	var err error
	c.decode, err = decode.New(clk, c.cfg.Decode, decode.Ports{
		UopQueueOut:          decodeToDispatch,
		FetchQueueCreditsOut: fetchCredits,
	})
	if err != nil {
		return err
	}

	c.rob, err = rob.New(clk, c.cfg.ROB, robPorts)
	if err != nil {
		return err
	}

	c.fetch = NewFetch(clk, c.trace, c.cfg.FetchWidth, table.RedirectPenalty(), fetchToDecode)
	c.dispatch = NewDispatch(clk, table, c.cfg.DispatchWidth, c.cfg.UopQueueSize, dispatchToROB, uopCredits)
	c.flushes = flush.NewManager(clk, flushLatency)

	fetchToDecode.OnReceive(c.decode.OnInstructionsArrived)
	fetchCredits.OnReceive(c.fetch.OnCreditsReceived)
	decodeToDispatch.OnReceive(c.dispatch.OnInstructionsArrived)
	uopCredits.OnReceive(c.decode.OnCreditsReceived)
	dispatchToROB.OnReceive(c.rob.OnInstructionsArrived)

	robPorts.CreditsOut.OnReceive(c.dispatch.OnROBCredits)
	robPorts.FlushOut.OnReceive(c.flushes.Request)
	robPorts.RedirectOut.OnReceive(c.fetch.OnRedirect)
	robPorts.StoreCommitOut.OnReceive(func(*insts.Inst) error {
		c.storeCommits++
		return nil
	})
	robPorts.RenameFreeOut.OnReceive(func(*insts.Inst) error {
		c.renameFrees++
		return nil
	})
	robPorts.RenameFreeOut.OnReceive(c.fetch.OnRetired)

	c.flushes.Subscribe(c.fetch.OnFlush)
	c.flushes.Subscribe(c.decode.OnFlush)
	c.flushes.Subscribe(c.dispatch.OnFlush)
	c.flushes.Subscribe(c.rob.OnFlush)

	if c.heartbeat != nil {
		c.rob.OnHeartbeat(c.heartbeat)
	}
	c.rob.OnDrained(func() {
		log.Core.Info().
			Uint64("cycle", clk.CurrentCycle()).
			Uint64("retired", c.rob.Stats().Retired).
			Msg("reorder buffer drained")
	})

	return nil
}

// Clock returns the clock driving the core.
func (c *Core) Clock() *clock.Clock {
	return c.clock
}

// ROB returns the reorder buffer.
func (c *Core) ROB() *rob.ROB {
	return c.rob
}

// Decode returns the decode stage.
func (c *Core) Decode() *decode.Decode {
	return c.decode
}

// Run sends the initial credits and simulates until the trace drains, the
// retire limit is hit or a unit reports a fatal error.
func (c *Core) Run() error {
	log.Core.Info().
		Str("trace", c.trace.Name).
		Int("insts", c.trace.Len()).
		Bool("fuse", c.cfg.Decode.FuseInsts).
		Stringer("fuse_mode", c.cfg.Decode.FuseMode).
		Msg("simulation start")

	c.decode.Startup()
	c.dispatch.Startup()
	c.rob.Startup()

	if err := c.clock.Run(); err != nil {
		log.Core.Error().Err(err).Stringer("stats", c.Stats()).Msg("simulation aborted")
		return err
	}

	stats := c.Stats()
	log.Core.Info().
		Uint64("cycles", stats.Cycles).
		Uint64("retired", stats.Retired()).
		Float64("ipc", stats.IPC()).
		Msg("simulation end")

	return nil
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return Stats{
		Cycles:       c.clock.CurrentCycle(),
		Fetched:      c.fetch.Fetched(),
		Dispatched:   c.dispatch.Dispatched(),
		StoreCommits: c.storeCommits,
		RenameFrees:  c.renameFrees,
		Drained:      c.rob.Drained(),
		Decode:       c.decode.Stats(),
		ROB:          c.rob.Stats(),
	}
}

// Teardown reports whether the simulation ended cleanly. See rob.Teardown.
func (c *Core) Teardown() bool {
	return c.rob.Teardown()
}

func (s Stats) String() string {
	return fmt.Sprintf("cycles=%d retired=%d ipc=%.4f flushes=%d fused=%d",
		s.Cycles, s.Retired(), s.IPC(), s.Flushes(), s.Decode.FusedPairs())
}
