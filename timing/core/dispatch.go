package core

import (
	"errors"
	"fmt"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/latency"
	"github.com/sarchlab/oocore/timing/port"
	"github.com/sarchlab/oocore/timing/queue"
)

// ErrUopQueueOverflow is returned when decode sends more than the uop queue
// holds.
var ErrUopQueueOverflow = errors.New("uop queue overflow")

// Dispatch stands in for rename, dispatch and execute. It moves decoded
// instructions into the reorder buffer under buffer credits and marks each
// one completed after its execution latency.
type Dispatch struct {
	clock *clock.Clock
	table *latency.Table
	width uint32

	uopQueue   *queue.InstQueue
	robCredits *port.Credits
	evDispatch *clock.UniqueEvent

	robOut     *port.Port[insts.Group]
	creditsOut *port.Port[uint32]

	// epoch changes on every flush. Completions scheduled in an older
	// epoch belong to discarded instructions.
	epoch uint64

	dispatched uint64
	completed  uint64
	flushed    uint64
}

// NewDispatch creates the dispatch stand-in.
func NewDispatch(
	clk *clock.Clock,
	table *latency.Table,
	width, queueSize uint32,
	robOut *port.Port[insts.Group],
	creditsOut *port.Port[uint32],
) *Dispatch {
	d := &Dispatch{
		clock:      clk,
		table:      table,
		width:      width,
		uopQueue:   queue.New("UopQueue", int(queueSize)),
		robCredits: port.NewCredits("reorder_buffer"),
		robOut:     robOut,
		creditsOut: creditsOut,
	}
	d.evDispatch = clock.NewUniqueEvent(clk, "dispatch_insts_event", 0, d.dispatchInsts)

	return d
}

// Startup gives decode one credit per uop queue entry.
func (d *Dispatch) Startup() {
	d.creditsOut.Send(uint32(d.uopQueue.Capacity()))
}

// Dispatched returns the number of instructions moved into the reorder
// buffer.
func (d *Dispatch) Dispatched() uint64 {
	return d.dispatched
}

// Completed returns the number of instructions that finished execution.
func (d *Dispatch) Completed() uint64 {
	return d.completed
}

// Flushed returns the number of uop queue entries discarded by flushes.
func (d *Dispatch) Flushed() uint64 {
	return d.flushed
}

// OnInstructionsArrived queues a decoded group.
func (d *Dispatch) OnInstructionsArrived(g insts.Group) error {
	if err := d.uopQueue.PushGroup(g); err != nil {
		return fmt.Errorf("%w: %w", ErrUopQueueOverflow, err)
	}

	if d.robCredits.Available() > 0 {
		d.evDispatch.Schedule()
	}

	return nil
}

// OnROBCredits takes back reorder buffer credits.
func (d *Dispatch) OnROBCredits(n uint32) error {
	d.robCredits.Add(n)
	if !d.uopQueue.Empty() {
		d.evDispatch.Schedule()
	}
	return nil
}

// OnFlush discards the uop queue and every pending completion.
func (d *Dispatch) OnFlush(criteria flush.Criteria) error {
	n := d.uopQueue.Size()

	log.Core.Debug().
		Uint64("cycle", d.clock.CurrentCycle()).
		Stringer("criteria", criteria).
		Int("discarded", n).
		Msg("dispatch flush")

	d.creditsOut.Send(uint32(n))
	d.uopQueue.Clear()
	d.flushed += uint64(n)
	d.epoch++

	return nil
}

func (d *Dispatch) dispatchInsts() {
	n := min(d.robCredits.Available(), uint32(d.uopQueue.Size()), d.width)

	if n > 0 {
		if err := d.dispatchBatch(n); err != nil {
			d.clock.Fail(err)
			return
		}
	}

	if d.robCredits.Available() > 0 && !d.uopQueue.Empty() {
		d.evDispatch.ScheduleAfter(1)
	}
}

func (d *Dispatch) dispatchBatch(n uint32) error {
	g := make(insts.Group, 0, n)
	for i := uint32(0); i < n; i++ {
		inst := d.uopQueue.Pop()
		if err := inst.SetStatus(insts.StatusRenamed); err != nil {
			return err
		}
		if err := inst.SetStatus(insts.StatusDispatched); err != nil {
			return err
		}
		d.scheduleCompletion(inst)
		g = append(g, inst)
	}

	if err := d.robCredits.Consume(n); err != nil {
		return err
	}

	d.robOut.Send(g)
	d.creditsOut.Send(n)
	d.dispatched += uint64(n)

	return nil
}

func (d *Dispatch) scheduleCompletion(inst *insts.Inst) {
	epoch := d.epoch
	d.clock.Schedule(d.table.GetLatency(inst), clock.PhaseTick, func() {
		if epoch != d.epoch {
			return
		}
		if err := inst.SetStatus(insts.StatusCompleted); err != nil {
			d.clock.Fail(err)
			return
		}
		d.completed++
	})
}
