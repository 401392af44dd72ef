package clock

// UniqueEvent is a named callback that fires at most once per cycle, no
// matter how many times it is scheduled for that cycle.
type UniqueEvent struct {
	clock   *Clock
	name    string
	delay   uint64
	phase   Phase
	handler func()

	scheduled map[uint64]bool
}

// NewUniqueEvent creates an event that runs handler in PhaseTick. delay is
// the default distance used by Schedule.
func NewUniqueEvent(clock *Clock, name string, delay uint64, handler func()) *UniqueEvent {
	return &UniqueEvent{
		clock:     clock,
		name:      name,
		delay:     delay,
		phase:     PhaseTick,
		handler:   handler,
		scheduled: make(map[uint64]bool),
	}
}

// Name returns the event name.
func (e *UniqueEvent) Name() string {
	return e.name
}

// Schedule fires the event after its default delay.
func (e *UniqueEvent) Schedule() {
	e.ScheduleAfter(e.delay)
}

// ScheduleAfter fires the event delay cycles from now.
func (e *UniqueEvent) ScheduleAfter(delay uint64) {
	cycle := e.clock.CurrentCycle() + delay
	if e.scheduled[cycle] {
		return
	}

	e.scheduled[cycle] = true
	e.clock.Schedule(delay, e.phase, func() {
		delete(e.scheduled, cycle)
		e.handler()
	})
}

// IsScheduled returns true if the event is pending delay cycles from now.
func (e *UniqueEvent) IsScheduled(delay uint64) bool {
	return e.scheduled[e.clock.CurrentCycle()+delay]
}
