// Package clock drives the pipeline model cycle by cycle on top of the Akita
// serial event engine.
//
// Akita orders events by time only. The clock adds what a pipeline model
// needs on top: callbacks scheduled for the same cycle run by Phase and, within
// a phase, in the order they were scheduled.
package clock

import (
	"github.com/sarchlab/akita/v4/sim"
)

// Phase orders work inside one cycle.
type Phase uint8

// Phases in execution order. Port data lands in PhaseUpdate, flushes clear
// state in PhaseFlush, and units do their per-cycle work in PhaseTick.
const (
	PhaseUpdate Phase = iota
	PhaseFlush
	PhaseTick
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseUpdate:
		return "update"
	case PhaseFlush:
		return "flush"
	case PhaseTick:
		return "tick"
	default:
		return "unknown"
	}
}

type callback struct {
	fn     func()
	daemon bool
}

type cycleQueue struct {
	phases [numPhases][]callback
}

func (q *cycleQueue) pop() (callback, Phase, bool) {
	for p := PhaseUpdate; p < numPhases; p++ {
		if len(q.phases[p]) > 0 {
			cb := q.phases[p][0]
			q.phases[p] = q.phases[p][1:]
			return cb, p, true
		}
	}
	return callback{}, 0, false
}

// tickEvent wakes the clock at the start of a cycle.
type tickEvent struct {
	*sim.EventBase
	cycle uint64
}

// Clock schedules callbacks in whole cycles.
type Clock struct {
	engine sim.Engine
	freq   sim.Freq

	now     uint64
	phase   Phase
	pending map[uint64]*cycleQueue

	// live counts pending callbacks that keep the simulation running.
	live int

	stopped bool
	err     error
}

// Option is a functional option for configuring the Clock.
type Option func(*Clock)

// WithEngine runs the clock on an existing Akita engine.
func WithEngine(engine sim.Engine) Option {
	return func(c *Clock) {
		c.engine = engine
	}
}

// WithFreq sets the clock frequency. It only affects Akita timestamps.
func WithFreq(freq sim.Freq) Option {
	return func(c *Clock) {
		c.freq = freq
	}
}

// New creates a 1 GHz clock on a fresh serial engine.
func New(opts ...Option) *Clock {
	c := &Clock{
		freq:    1 * sim.GHz,
		pending: make(map[uint64]*cycleQueue),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.engine == nil {
		c.engine = sim.NewSerialEngine()
	}

	return c
}

// CurrentCycle returns the cycle being executed.
func (c *Clock) CurrentCycle() uint64 {
	return c.now
}

// CurrentPhase returns the phase of the callback being executed.
func (c *Clock) CurrentPhase() Phase {
	return c.phase
}

// Schedule runs fn delay cycles from now in the given phase.
func (c *Clock) Schedule(delay uint64, phase Phase, fn func()) {
	c.scheduleAt(c.now+delay, phase, callback{fn: fn})
}

// ScheduleDaemon is like Schedule, but the callback does not keep the
// simulation alive. It is dropped if nothing else is left to run.
func (c *Clock) ScheduleDaemon(delay uint64, phase Phase, fn func()) {
	c.scheduleAt(c.now+delay, phase, callback{fn: fn, daemon: true})
}

func (c *Clock) scheduleAt(cycle uint64, phase Phase, cb callback) {
	if c.stopped {
		return
	}

	q, ok := c.pending[cycle]
	if !ok {
		q = &cycleQueue{}
		c.pending[cycle] = q
		evt := &tickEvent{
			EventBase: sim.NewEventBase(c.timeOf(cycle), c),
			cycle:     cycle,
		}
		c.engine.Schedule(evt)
	}

	q.phases[phase] = append(q.phases[phase], cb)
	if !cb.daemon {
		c.live++
	}
}

func (c *Clock) timeOf(cycle uint64) sim.VTimeInSec {
	return sim.VTimeInSec(float64(cycle) / float64(c.freq))
}

// Handle runs every callback queued for the event's cycle.
func (c *Clock) Handle(e sim.Event) error {
	evt := e.(*tickEvent)
	q := c.pending[evt.cycle]

	// Nothing but daemons left: the simulation is over and the cycle
	// count must not move.
	if c.stopped || c.live == 0 {
		delete(c.pending, evt.cycle)
		return nil
	}

	c.now = evt.cycle

	for !c.stopped {
		cb, phase, ok := q.pop()
		if !ok {
			break
		}

		c.phase = phase
		if cb.daemon {
			if c.live == 0 {
				continue
			}
		} else {
			c.live--
		}

		cb.fn()
	}

	delete(c.pending, evt.cycle)

	return nil
}

// Stop ends the simulation. Callbacks that have not run yet are dropped.
func (c *Clock) Stop() {
	c.stopped = true
}

// Stopped returns true once Stop or Fail has been called.
func (c *Clock) Stopped() bool {
	return c.stopped
}

// Fail records a fatal error and stops the simulation. Only the first
// error is kept.
func (c *Clock) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
	c.Stop()
}

// Err returns the fatal error, if any.
func (c *Clock) Err() error {
	return c.err
}

// Run drives the engine until no work is left or the clock is stopped.
func (c *Clock) Run() error {
	if err := c.engine.Run(); err != nil {
		return err
	}
	return c.err
}
