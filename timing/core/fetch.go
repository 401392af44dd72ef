package core

import (
	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/loader"
	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/flush"
	"github.com/sarchlab/oocore/timing/port"
)

// Fetch replays a trace into decode under fetch queue credits. After a
// redirect it refetches from the instruction following the one that
// flushed the pipeline.
type Fetch struct {
	clock   *clock.Clock
	trace   *loader.Trace
	width   uint32
	penalty uint64

	out     *port.Port[insts.Group]
	credits *port.Credits
	evFetch *clock.UniqueEvent

	next        int
	nextUID     uint64
	resumeAt    uint64
	lastRetired uint64

	fetched   uint64
	redirects uint64
}

// NewFetch creates the fetch stand-in. penalty is the number of idle
// cycles after a redirect.
func NewFetch(clk *clock.Clock, trace *loader.Trace, width uint32, penalty uint64, out *port.Port[insts.Group]) *Fetch {
	f := &Fetch{
		clock:   clk,
		trace:   trace,
		width:   width,
		penalty: penalty,
		out:     out,
		credits: port.NewCredits("fetch_queue"),
		nextUID: 1,
	}
	f.evFetch = clock.NewUniqueEvent(clk, "fetch_insts_event", 0, f.fetchInsts)

	return f
}

// Fetched returns the number of instructions sent, refetches included.
func (f *Fetch) Fetched() uint64 {
	return f.fetched
}

// Redirects returns the number of redirects taken.
func (f *Fetch) Redirects() uint64 {
	return f.redirects
}

// Done returns true once the whole trace has been sent.
func (f *Fetch) Done() bool {
	return f.next >= f.trace.Len()
}

// OnCreditsReceived takes back fetch queue credits from decode.
func (f *Fetch) OnCreditsReceived(n uint32) error {
	f.credits.Add(n)
	if !f.Done() {
		f.evFetch.Schedule()
	}
	return nil
}

// OnRetired tracks the trace position of the youngest retired instruction.
func (f *Fetch) OnRetired(inst *insts.Inst) error {
	f.lastRetired = inst.ProgramID
	return nil
}

// OnRedirect restarts fetch after the instruction that started the flush.
// The redirect is delivered after that instruction's retirement.
func (f *Fetch) OnRedirect(addr uint64) error {
	f.redirects++
	f.next = int(f.lastRetired) + 1

	if !f.Done() && f.trace.Insts[f.next].TargetVAddr != addr {
		log.Core.Warn().
			Uint64("cycle", f.clock.CurrentCycle()).
			Uint64("redirect", addr).
			Uint64("expected", f.trace.Insts[f.next].TargetVAddr).
			Msg("redirect target is not the next trace instruction")
	}

	// The flush broadcast lands in the next cycle. Fetching before it would
	// send new-path instructions into queues about to be cleared.
	f.resumeAt = f.clock.CurrentCycle() + 1 + f.penalty
	if !f.Done() {
		f.evFetch.ScheduleAfter(f.resumeAt - f.clock.CurrentCycle())
	}

	log.Core.Debug().
		Uint64("cycle", f.clock.CurrentCycle()).
		Uint64("addr", addr).
		Int("next", f.next).
		Msg("fetch redirected")

	return nil
}

// OnFlush is a no-op: fetch holds no instructions, everything it sent is
// owned by decode.
func (f *Fetch) OnFlush(flush.Criteria) error {
	return nil
}

func (f *Fetch) fetchInsts() {
	now := f.clock.CurrentCycle()
	if now < f.resumeAt {
		f.evFetch.ScheduleAfter(f.resumeAt - now)
		return
	}

	remaining := uint32(f.trace.Len() - f.next)
	n := min(f.credits.Available(), f.width, remaining)
	if n == 0 {
		return
	}

	g := make(insts.Group, 0, n)
	for i := uint32(0); i < n; i++ {
		inst := f.trace.Insts[f.next].Clone(f.nextUID)
		f.nextUID++
		f.next++
		g = append(g, inst)
	}

	if err := f.credits.Consume(n); err != nil {
		f.clock.Fail(err)
		return
	}
	f.out.Send(g)
	f.fetched += uint64(n)

	if f.credits.Available() > 0 && !f.Done() {
		f.evFetch.ScheduleAfter(1)
	}
}
