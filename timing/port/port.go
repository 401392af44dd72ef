// Package port provides the typed, fixed-latency channels that connect
// pipeline units, and the credit counters that gate them.
package port

import (
	"fmt"

	"github.com/sarchlab/oocore/timing/clock"
)

// Port delivers messages of type T to its registered handlers a fixed
// number of cycles after they are sent. Messages keep their send order.
type Port[T any] struct {
	name     string
	clock    *clock.Clock
	latency  uint64
	phase    clock.Phase
	handlers []func(T) error

	sent uint64
}

// New creates a port delivering in PhaseUpdate.
func New[T any](clk *clock.Clock, name string, latency uint64) *Port[T] {
	return NewInPhase[T](clk, name, latency, clock.PhaseUpdate)
}

// NewInPhase creates a port delivering in the given phase.
func NewInPhase[T any](clk *clock.Clock, name string, latency uint64, phase clock.Phase) *Port[T] {
	return &Port[T]{
		name:    name,
		clock:   clk,
		latency: latency,
		phase:   phase,
	}
}

// Name returns the port name.
func (p *Port[T]) Name() string {
	return p.name
}

// Latency returns the delivery delay in cycles.
func (p *Port[T]) Latency() uint64 {
	return p.latency
}

// Sent returns the number of messages sent so far.
func (p *Port[T]) Sent() uint64 {
	return p.sent
}

// OnReceive registers a consumer. A handler error is fatal to the
// simulation.
func (p *Port[T]) OnReceive(handler func(T) error) {
	p.handlers = append(p.handlers, handler)
}

// Send schedules msg for delivery.
func (p *Port[T]) Send(msg T) {
	p.sent++
	p.clock.Schedule(p.latency, p.phase, func() {
		for _, h := range p.handlers {
			if err := h(msg); err != nil {
				p.clock.Fail(fmt.Errorf("%s: %w", p.name, err))
				return
			}
		}
	})
}
