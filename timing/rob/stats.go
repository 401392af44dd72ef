package rob

import (
	"fmt"
	"strings"

	"github.com/sarchlab/oocore/insts"
)

// Statistics holds retirement statistics.
type Statistics struct {
	// Retired counts logical instructions. A fused macro-op counts as two.
	Retired uint64
	// RetiredSlots counts reorder buffer entries retired.
	RetiredSlots uint64
	// Flushes is the number of flushes started at retirement.
	Flushes uint64

	// Arith counts retired integer computation entries.
	Arith uint64
	// Branch counts retired control transfer entries.
	Branch uint64
	// Load counts retired load entries.
	Load uint64
	// Store counts retired store entries.
	Store uint64

	// Fusions counts retired entries by fusion kind, FusionNone included.
	Fusions [insts.NumFusionKinds]uint64
}

func (s *Statistics) count(inst *insts.Inst) {
	if inst.IsFused() {
		s.Retired += 2
	} else {
		s.Retired++
	}
	s.RetiredSlots++

	if inst.IsArith() {
		s.Arith++
	}
	if inst.IsBranch() {
		s.Branch++
	}
	if inst.IsLoad() {
		s.Load++
	}
	if inst.IsStoreInst() {
		s.Store++
	}

	s.Fusions[inst.Fusion()]++
}

// Snapshot is the periodic progress report of the reorder buffer.
type Snapshot struct {
	Retired    uint64
	Cycle      uint64
	PeriodIPC  float64
	OverallIPC float64
	Stats      Statistics
}

func ipc(retired, cycles uint64) float64 {
	if cycles == 0 {
		return 0
	}
	return float64(retired) / float64(cycles)
}

func (s Snapshot) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Retired %d instructions in %d cycles. Period IPC: %.4f overall IPC: %.4f\n",
		s.Retired, s.Cycle, s.PeriodIPC, s.OverallIPC)
	fmt.Fprintf(&sb, "  %-24s %d\n", "Arith:", s.Stats.Arith)
	fmt.Fprintf(&sb, "  %-24s %d\n", "Branch:", s.Stats.Branch)
	fmt.Fprintf(&sb, "  %-24s %d\n", "Load:", s.Stats.Load)
	fmt.Fprintf(&sb, "  %-24s %d\n", "Store:", s.Stats.Store)
	for k := insts.FusionNone; k < insts.NumFusionKinds; k++ {
		fmt.Fprintf(&sb, "  %-24s %d\n", k.String()+":", s.Stats.Fusions[k])
	}

	return sb.String()
}
