// Package rob models the reorder buffer: it retires completed instructions
// in program order, starts flushes on redirecting instructions and watches
// the pipeline for forward progress.
package rob

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/port"
	"github.com/sarchlab/oocore/timing/queue"
)

var (
	// ErrOverflow is returned when dispatch writes past the buffer
	// capacity. Dispatch is credit-gated, so this is a protocol bug.
	ErrOverflow = errors.New("reorder buffer overflow")
	// ErrSpeculativeRetire is raised when a speculative instruction
	// reaches the head of the buffer.
	ErrSpeculativeRetire = errors.New("speculative instruction at retirement")
	// ErrRetireInvariant is raised when the head of the buffer has
	// already been retired.
	ErrRetireInvariant = errors.New("retired instruction still in reorder buffer")
	// ErrStalledPipeline is raised by the forward-progress watchdog.
	ErrStalledPipeline = errors.New("pipeline stalled")
)

// Ports are the outgoing connections of the reorder buffer.
type Ports struct {
	// CreditsOut returns buffer credits to dispatch.
	CreditsOut *port.Port[uint32]
	// FlushOut carries the unique id of a flushing instruction.
	FlushOut *port.Port[uint64]
	// RedirectOut carries the address fetch restarts from after a flush.
	RedirectOut *port.Port[uint64]
	// StoreCommitOut receives every retired store.
	StoreCommitOut *port.Port[*insts.Inst]
	// RenameFreeOut receives every retired instruction.
	RenameFreeOut *port.Port[*insts.Inst]
}

func (p Ports) validate() error {
	if p.CreditsOut == nil || p.FlushOut == nil || p.RedirectOut == nil ||
		p.StoreCommitOut == nil || p.RenameFreeOut == nil {
		return errors.New("reorder buffer needs all output ports")
	}
	return nil
}

// ROB is the reorder buffer.
type ROB struct {
	clock *clock.Clock
	cfg   Config
	ports Ports

	buffer   *queue.InstQueue
	evRetire *clock.UniqueEvent

	stats          Statistics
	lastRetirement uint64
	drained        bool

	nextHeartbeat      uint64
	periodStartCycle   uint64
	periodStartRetired uint64

	heartbeatObservers []func(Snapshot)
	drainedObservers   []func()
}

// New creates a reorder buffer.
func New(clk *clock.Clock, cfg Config, ports Ports) (*ROB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rob config: %w", err)
	}
	if err := ports.validate(); err != nil {
		return nil, err
	}

	r := &ROB{
		clock:         clk,
		cfg:           cfg,
		ports:         ports,
		buffer:        queue.New("ReorderBuffer", int(cfg.RetireQueueDepth)),
		nextHeartbeat: cfg.RetireHeartbeat,
	}
	r.evRetire = clock.NewUniqueEvent(clk, "retire_insts", 1, r.retireInsts)

	return r, nil
}

// Config returns the retirement parameters.
func (r *ROB) Config() Config {
	return r.cfg
}

// Stats returns retirement statistics.
func (r *ROB) Stats() Statistics {
	return r.stats
}

// Size returns the buffer occupancy.
func (r *ROB) Size() int {
	return r.buffer.Size()
}

// Drained returns true once the last instruction of the trace or the
// retire limit has been reached.
func (r *ROB) Drained() bool {
	return r.drained
}

// LastRetirement returns the cycle of the most recent retirement.
func (r *ROB) LastRetirement() uint64 {
	return r.lastRetirement
}

// OnHeartbeat registers an observer of periodic snapshots.
func (r *ROB) OnHeartbeat(fn func(Snapshot)) {
	r.heartbeatObservers = append(r.heartbeatObservers, fn)
}

// OnDrained registers an observer of the drained notification.
func (r *ROB) OnDrained(fn func()) {
	r.drainedObservers = append(r.drainedObservers, fn)
}

// Startup gives dispatch one credit per buffer entry and arms the
// forward-progress watchdog.
func (r *ROB) Startup() {
	r.ports.CreditsOut.Send(uint32(r.buffer.Capacity()))

	if r.cfg.RetireTimeoutInterval > 0 {
		r.clock.ScheduleDaemon(r.cfg.RetireTimeoutInterval, clock.PhaseTick, r.checkForwardProgress)
	}
}

// OnInstructionsArrived appends a dispatched group to the buffer tail.
func (r *ROB) OnInstructionsArrived(g insts.Group) error {
	if err := r.buffer.PushGroup(g); err != nil {
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	}

	for _, inst := range g {
		log.ROB.Debug().
			Uint64("cycle", r.clock.CurrentCycle()).
			Stringer("inst", inst).
			Msg("appended")
	}

	r.evRetire.Schedule()

	return nil
}

// OnFlush discards every buffered instruction and returns their credits.
func (r *ROB) OnFlush(criteria flush.Criteria) error {
	n := r.buffer.Size()

	log.ROB.Debug().
		Uint64("cycle", r.clock.CurrentCycle()).
		Stringer("criteria", criteria).
		Int("discarded", n).
		Msg("flush")

	r.ports.CreditsOut.Send(uint32(n))
	r.buffer.Clear()

	return nil
}

func (r *ROB) retireInsts() {
	if err := r.retirePass(); err != nil {
		r.clock.Fail(err)
	}
}

// retirePass retires up to NumToRetire completed instructions from the
// head. The candidates are read from the buffer at execution time, so a
// pass scheduled before a flush sees the emptied buffer.
func (r *ROB) retirePass() error {
	numToRetire := min(uint32(r.buffer.Size()), r.cfg.NumToRetire)
	now := r.clock.CurrentCycle()

	var retired uint32
	for i := uint32(0); i < numToRetire; i++ {
		inst := r.buffer.Front()

		if inst.IsSpeculative() {
			return fmt.Errorf("%w: %s at cycle %d", ErrSpeculativeRetire, inst, now)
		}
		if inst.Status() == insts.StatusRetired {
			return fmt.Errorf("%w: %s at cycle %d", ErrRetireInvariant, inst, now)
		}
		if inst.Status() != insts.StatusCompleted {
			break
		}

		if err := inst.SetStatus(insts.StatusRetired); err != nil {
			return err
		}
		if inst.IsStoreInst() {
			r.ports.StoreCommitOut.Send(inst)
		}
		r.ports.RenameFreeOut.Send(inst)

		r.stats.count(inst)
		retired++
		r.buffer.Pop()

		log.ROB.Debug().
			Uint64("cycle", now).
			Stringer("inst", inst).
			Msg("retired")

		r.heartbeat()

		if r.cfg.NumInstsToRetire > 0 && r.stats.Retired >= r.cfg.NumInstsToRetire {
			log.ROB.Info().
				Uint64("cycle", now).
				Uint64("retired", r.stats.Retired).
				Msg("retire limit reached")
			r.drain()
			r.clock.Stop()
			break
		}

		if inst.Unit == insts.UnitROB {
			log.ROB.Debug().
				Uint64("cycle", now).
				Stringer("inst", inst).
				Msg("instigating flush")
			r.ports.FlushOut.Send(inst.UniqueID)
			r.ports.RedirectOut.Send(inst.TargetVAddr + 4)
			r.stats.Flushes++
			break
		}

		if inst.Last {
			r.drain()
		}
	}

	if !r.buffer.Empty() {
		oldest := r.buffer.Front()
		if oldest.Status() == insts.StatusCompleted {
			r.evRetire.Schedule()
		} else if !oldest.IsMarkedOldest() {
			log.ROB.Debug().
				Uint64("cycle", now).
				Stringer("inst", oldest).
				Msg("set oldest")
			oldest.WatchCompletion(r.evRetire.Schedule)
		}
	}

	if retired > 0 {
		r.ports.CreditsOut.Send(retired)
		r.lastRetirement = now
	}

	return nil
}

func (r *ROB) drain() {
	r.drained = true
	for _, fn := range r.drainedObservers {
		fn()
	}
}

// heartbeat reports once for every heartbeat multiple crossed since the
// last report. A fused retirement can cross one by jumping over it.
func (r *ROB) heartbeat() {
	if r.cfg.RetireHeartbeat == 0 {
		return
	}

	for r.stats.Retired >= r.nextHeartbeat {
		snap := r.Snapshot()

		log.ROB.Info().
			Uint64("retired", snap.Retired).
			Uint64("cycle", snap.Cycle).
			Float64("period_ipc", snap.PeriodIPC).
			Float64("overall_ipc", snap.OverallIPC).
			Msg("heartbeat")

		for _, fn := range r.heartbeatObservers {
			fn(snap)
		}

		r.periodStartCycle = snap.Cycle
		r.periodStartRetired = snap.Retired
		r.nextHeartbeat += r.cfg.RetireHeartbeat
	}
}

// Snapshot reports progress since the start and since the last heartbeat.
func (r *ROB) Snapshot() Snapshot {
	now := r.clock.CurrentCycle()

	return Snapshot{
		Retired:    r.stats.Retired,
		Cycle:      now,
		PeriodIPC:  ipc(r.stats.Retired-r.periodStartRetired, now-r.periodStartCycle),
		OverallIPC: ipc(r.stats.Retired, now),
		Stats:      r.stats,
	}
}

// checkForwardProgress is the watchdog. It re-arms itself as a daemon, so
// it never keeps an otherwise finished simulation alive.
func (r *ROB) checkForwardProgress() {
	now := r.clock.CurrentCycle()
	stalled := now - r.lastRetirement

	if stalled >= r.cfg.RetireTimeoutInterval {
		var sb strings.Builder
		r.DumpDebugContent(&sb)
		log.ROB.Error().
			Uint64("cycle", now).
			Uint64("stalled_cycles", stalled).
			Str("contents", sb.String()).
			Msg("no retirement within the timeout")

		r.clock.Fail(fmt.Errorf("%w: no retirement for %d cycles, current cycle %d",
			ErrStalledPipeline, stalled, now))
		return
	}

	r.clock.ScheduleDaemon(r.cfg.RetireTimeoutInterval, clock.PhaseTick, r.checkForwardProgress)
}

// DumpDebugContent writes the buffered instructions, head first.
func (r *ROB) DumpDebugContent(w io.Writer) {
	fmt.Fprintln(w, "ROB Contents")
	for _, inst := range r.buffer.Entries() {
		fmt.Fprintf(w, "\t%s\n", inst)
	}
}

// Teardown reports whether the simulation ended cleanly. It warns and dumps
// the buffer if instructions are left behind without the buffer having
// drained, which usually means the pipeline locked up.
func (r *ROB) Teardown() bool {
	if r.buffer.Empty() || r.drained {
		return true
	}

	var sb strings.Builder
	r.DumpDebugContent(&sb)
	log.ROB.Warn().
		Uint64("cycle", r.clock.CurrentCycle()).
		Int("occupancy", r.buffer.Size()).
		Str("contents", sb.String()).
		Msg("simulation is ending, but the reorder buffer did not stop it")

	return false
}
