// Package latency provides the execution latencies the dispatch stand-in
// uses to decide when an instruction completes.
package latency

import (
	"github.com/sarchlab/oocore/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a latency table with custom timing values.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// UnitLatency returns the execution latency of a unit class.
func (t *Table) UnitLatency(u insts.Unit) uint64 {
	switch u {
	case insts.UnitALU:
		return t.config.ALULatency
	case insts.UnitMUL:
		return t.config.MultiplyLatency
	case insts.UnitDIV:
		return t.config.DivideLatency
	case insts.UnitBranch:
		return t.config.BranchLatency
	case insts.UnitROB:
		return t.config.RedirectLatency
	default:
		return 1
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction. A fused macro-op takes the latency of its surviving half.
func (t *Table) GetLatency(inst *insts.Inst) uint64 {
	if inst == nil {
		return 1
	}

	if inst.Unit == insts.UnitLSU {
		if inst.IsStoreInst() {
			return t.config.StoreLatency
		}
		return t.config.LoadLatency
	}

	return t.UnitLatency(inst.Unit)
}

// RedirectPenalty returns the fetch bubble after a redirect.
func (t *Table) RedirectPenalty() uint64 {
	return t.config.RedirectPenalty
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
