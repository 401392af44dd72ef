// Package flush carries pipeline flushes from the unit that detects them to
// every unit holding younger instructions.
package flush

import (
	"fmt"

	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/clock"
	"github.com/sarchlab/oocore/timing/port"
)

// Criteria describes a flush. Everything younger than InstID is discarded.
type Criteria struct {
	// InstID is the unique id of the instruction that caused the flush.
	InstID uint64
}

func (c Criteria) String() string {
	return fmt.Sprintf("flush after uid:%d", c.InstID)
}

// Manager turns flush requests into a broadcast delivered to all
// subscribers in the same cycle's flush phase.
type Manager struct {
	clock *clock.Clock
	out   *port.Port[Criteria]

	flushes uint64
}

// NewManager creates a manager whose broadcast arrives latency cycles after
// the request.
func NewManager(clk *clock.Clock, latency uint64) *Manager {
	return &Manager{
		clock: clk,
		out:   port.NewInPhase[Criteria](clk, "out_flush", latency, clock.PhaseFlush),
	}
}

// Subscribe registers a unit's flush handler.
func (m *Manager) Subscribe(handler func(Criteria) error) {
	m.out.OnReceive(handler)
}

// Request starts a flush of everything younger than the instruction uid.
func (m *Manager) Request(uid uint64) error {
	m.flushes++
	criteria := Criteria{InstID: uid}

	log.Core.Debug().
		Uint64("cycle", m.clock.CurrentCycle()).
		Stringer("criteria", criteria).
		Msg("flush requested")

	m.out.Send(criteria)
	return nil
}

// Flushes returns how many flushes were requested.
func (m *Manager) Flushes() uint64 {
	return m.flushes
}
