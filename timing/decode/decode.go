// Package decode models the decode stage: it drains the fetch queue at the
// issue width, fuses recognised instruction pairs into macro-ops and sends
// the result on to the uop queue under credit control.
package decode

import (
	"errors"
	"fmt"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/port"
	"github.com/sarchlab/oocore/timing/queue"
)

// ErrQueueOverflow is returned when fetch sends more instructions than the
// fetch queue can hold. Fetch is credit-gated, so this is a protocol bug.
var ErrQueueOverflow = errors.New("fetch queue overflow")

// Statistics holds decode statistics.
type Statistics struct {
	// Passes is the number of decode passes that moved instructions.
	Passes uint64
	// Decoded is the number of instructions drained from the fetch queue.
	Decoded uint64
	// Sent is the number of slots sent downstream after fusion.
	Sent uint64
	// Flushed is the number of queued instructions discarded by flushes.
	Flushed uint64
	// Fused counts fused pairs by idiom.
	Fused [insts.NumFusionKinds]uint64
}

// FusedPairs returns the total number of fused pairs.
func (s Statistics) FusedPairs() uint64 {
	var n uint64
	for k := insts.FusionNone + 1; k < insts.NumFusionKinds; k++ {
		n += s.Fused[k]
	}
	return n
}

// Ports are the outgoing connections of the decode stage.
type Ports struct {
	// UopQueueOut carries decoded groups to the next stage.
	UopQueueOut *port.Port[insts.Group]
	// FetchQueueCreditsOut returns fetch queue credits to fetch.
	FetchQueueCreditsOut *port.Port[uint32]
}

// Decode is the decode-fusion stage.
type Decode struct {
	clock *clock.Clock
	cfg   Config
	ports Ports

	fetchQueue      *queue.InstQueue
	uopQueueCredits *port.Credits
	evDecode        *clock.UniqueEvent

	stats Statistics
}

// New creates a decode stage.
func New(clk *clock.Clock, cfg Config, ports Ports) (*Decode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decode config: %w", err)
	}
	if ports.UopQueueOut == nil || ports.FetchQueueCreditsOut == nil {
		return nil, errors.New("decode needs both output ports")
	}

	d := &Decode{
		clock:           clk,
		cfg:             cfg,
		ports:           ports,
		fetchQueue:      queue.New("Decode.FetchQueue", int(cfg.FetchQueueSize)),
		uopQueueCredits: port.NewCredits("uop_queue"),
	}
	d.evDecode = clock.NewUniqueEvent(clk, "decode_insts_event", 0, d.decodeInsts)

	return d, nil
}

// Config returns the decode parameters.
func (d *Decode) Config() Config {
	return d.cfg
}

// Stats returns decode statistics.
func (d *Decode) Stats() Statistics {
	return d.stats
}

// QueueSize returns the fetch queue occupancy.
func (d *Decode) QueueSize() int {
	return d.fetchQueue.Size()
}

// UopQueueCredits returns the credits held for the downstream uop queue.
func (d *Decode) UopQueueCredits() uint32 {
	return d.uopQueueCredits.Available()
}

// Startup gives fetch one credit per fetch queue entry.
func (d *Decode) Startup() {
	d.ports.FetchQueueCreditsOut.Send(uint32(d.fetchQueue.Capacity()))
}

// OnInstructionsArrived queues a fetched group and, if the uop queue has
// room, schedules a decode pass for this cycle.
func (d *Decode) OnInstructionsArrived(g insts.Group) error {
	if err := d.fetchQueue.PushGroup(g); err != nil {
		return fmt.Errorf("%w: %w", ErrQueueOverflow, err)
	}

	for _, inst := range g {
		log.Decode.Debug().
			Uint64("cycle", d.clock.CurrentCycle()).
			Stringer("inst", inst).
			Msg("received")
	}

	if d.uopQueueCredits.Available() > 0 {
		d.evDecode.Schedule()
	}

	return nil
}

// OnCreditsReceived takes back uop queue credits from the next stage.
func (d *Decode) OnCreditsReceived(n uint32) error {
	d.uopQueueCredits.Add(n)

	if !d.fetchQueue.Empty() {
		d.evDecode.Schedule()
	}

	log.Decode.Debug().
		Uint64("cycle", d.clock.CurrentCycle()).
		Uint32("credits", d.uopQueueCredits.Available()).
		Msg("received credits")

	return nil
}

// OnFlush returns all fetch queue credits and drops the queued
// instructions.
func (d *Decode) OnFlush(criteria flush.Criteria) error {
	n := d.fetchQueue.Size()

	log.Decode.Debug().
		Uint64("cycle", d.clock.CurrentCycle()).
		Stringer("criteria", criteria).
		Int("discarded", n).
		Msg("flush")

	d.ports.FetchQueueCreditsOut.Send(uint32(n))
	d.fetchQueue.Clear()
	d.stats.Flushed += uint64(n)

	return nil
}

// decodeInsts drains up to the issue width from the fetch queue. The batch
// is recomputed on every call so a pass scheduled before a flush sees the
// emptied queue.
func (d *Decode) decodeInsts() {
	numDecode := min(
		d.uopQueueCredits.Available(),
		uint32(d.fetchQueue.Size()),
		d.cfg.NumToDecode,
	)

	if numDecode > 0 {
		if err := d.decodeBatch(numDecode); err != nil {
			d.clock.Fail(err)
			return
		}
	}

	if d.uopQueueCredits.Available() > 0 && !d.fetchQueue.Empty() {
		d.evDecode.ScheduleAfter(1)
	}
}

func (d *Decode) decodeBatch(numDecode uint32) error {
	batch := make(insts.Group, 0, numDecode)
	for i := uint32(0); i < numDecode; i++ {
		inst := d.fetchQueue.Pop()
		if err := inst.SetStatus(insts.StatusDecoded); err != nil {
			return err
		}

		log.Decode.Debug().
			Uint64("cycle", d.clock.CurrentCycle()).
			Stringer("inst", inst).
			Msg("decoded")

		batch = append(batch, inst)
	}

	out := batch
	if d.cfg.FuseInsts {
		out = d.fuse(batch)
	}

	if err := d.uopQueueCredits.Consume(uint32(len(out))); err != nil {
		return err
	}

	d.ports.UopQueueOut.Send(out)
	d.ports.FetchQueueCreditsOut.Send(numDecode)

	d.stats.Passes++
	d.stats.Decoded += uint64(numDecode)
	d.stats.Sent += uint64(len(out))

	return nil
}

func (d *Decode) fuse(batch insts.Group) insts.Group {
	var out insts.Group
	switch d.cfg.FuseMode {
	case FuseWindow:
		out = fuseWindow(batch)
	default:
		out = fuseAdjacent(batch)
	}

	for _, inst := range out {
		if inst.IsFused() {
			d.stats.Fused[inst.Fusion()]++
		}
	}

	return out
}
