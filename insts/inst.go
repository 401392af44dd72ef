package insts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStatusRegression is returned when an instruction is moved back to an
// earlier pipeline status.
var ErrStatusRegression = errors.New("instruction status regression")

// Status is the pipeline status of an instruction. Statuses are ordered and
// an instruction only ever moves forward.
type Status uint8

// Pipeline statuses in program-flow order.
const (
	StatusFetched Status = iota
	StatusDecoded
	StatusRenamed
	StatusDispatched
	StatusCompleted
	StatusRetired
)

func (s Status) String() string {
	switch s {
	case StatusFetched:
		return "FETCHED"
	case StatusDecoded:
		return "DECODED"
	case StatusRenamed:
		return "RENAMED"
	case StatusDispatched:
		return "DISPATCHED"
	case StatusCompleted:
		return "COMPLETED"
	case StatusRetired:
		return "RETIRED"
	default:
		return "UNKNOWN"
	}
}

// FusionKind names the macro-op idiom a fused instruction was built from.
type FusionKind uint8

// Fusion kinds. FusionNone marks an ordinary, unfused instruction.
const (
	FusionNone FusionKind = iota
	FusionLoadEffectiveAddress
	FusionIndexLoad
	FusionClearUpperWord
	FusionLoadImmediateIdiom
	FusionLoadGlobal
	FusionLoadPair
	FusionStorePair
	FusionShiftAddLoad
	FusionCompareImmediate
	NumFusionKinds
)

var fusionNames = [NumFusionKinds]string{
	FusionNone:                 "None",
	FusionLoadEffectiveAddress: "Load_Effective_Address",
	FusionIndexLoad:            "Index_Load",
	FusionClearUpperWord:       "Clear_Upper_Word",
	FusionLoadImmediateIdiom:   "Load_Immediate_Idiom",
	FusionLoadGlobal:           "Load_Global",
	FusionLoadPair:             "Load_Pair",
	FusionStorePair:            "Store_Pair",
	FusionShiftAddLoad:         "Shift_Add_Load",
	FusionCompareImmediate:     "Compare_Immediate",
}

func (k FusionKind) String() string {
	if k >= NumFusionKinds {
		return "Unknown"
	}
	return fusionNames[k]
}

// Inst is an instruction in flight. It is owned by whichever queue or
// message currently holds it.
type Inst struct {
	// UniqueID increases monotonically in fetch order.
	UniqueID uint64
	// ProgramID is the position of the instruction in the program trace.
	// Refetched instructions keep their ProgramID but get a new UniqueID.
	ProgramID uint64
	// Last marks the final instruction of the trace.
	Last bool

	Op  Op
	Imm int64
	// SrcMask and DestMask hold one bit per integer register. x0 is never set.
	SrcMask  uint64
	DestMask uint64
	// TargetVAddr is the virtual address of the instruction.
	TargetVAddr uint64
	Unit        Unit

	status      Status
	speculative bool
	oldest      bool
	fusion      FusionKind
	onComplete  func()
}

// Clone returns a copy with pipeline state reset, as if freshly fetched.
func (i *Inst) Clone(uniqueID uint64) *Inst {
	return &Inst{
		UniqueID:    uniqueID,
		ProgramID:   i.ProgramID,
		Last:        i.Last,
		Op:          i.Op,
		Imm:         i.Imm,
		SrcMask:     i.SrcMask,
		DestMask:    i.DestMask,
		TargetVAddr: i.TargetVAddr,
		Unit:        i.Unit,
	}
}

// Status returns the current pipeline status.
func (i *Inst) Status() Status {
	return i.status
}

// SetStatus advances the instruction to s. Moving to Completed fires the
// completion watcher, if one is attached.
func (i *Inst) SetStatus(s Status) error {
	if s < i.status {
		return fmt.Errorf("%w: %s -> %s for %s", ErrStatusRegression, i.status, s, i)
	}

	i.status = s

	if s == StatusCompleted && i.onComplete != nil {
		fn := i.onComplete
		i.onComplete = nil
		fn()
	}

	return nil
}

// IsSpeculative returns true while the instruction is on an unresolved path.
func (i *Inst) IsSpeculative() bool {
	return i.speculative
}

// SetSpeculative sets the speculative flag.
func (i *Inst) SetSpeculative(spec bool) {
	i.speculative = spec
}

// IsMarkedOldest returns true once a completion watcher has been attached.
func (i *Inst) IsMarkedOldest() bool {
	return i.oldest
}

// WatchCompletion marks the instruction as the oldest in the reorder buffer
// and registers fn to run when it completes. Only the first watcher sticks.
func (i *Inst) WatchCompletion(fn func()) {
	if i.oldest {
		return
	}
	i.oldest = true
	i.onComplete = fn
}

// Fusion returns the fusion tag.
func (i *Inst) Fusion() FusionKind {
	return i.fusion
}

// SetFusion tags the instruction as the survivor of a fused pair.
func (i *Inst) SetFusion(k FusionKind) {
	i.fusion = k
}

// IsFused returns true if the instruction stands for two original ones.
func (i *Inst) IsFused() bool {
	return i.fusion != FusionNone
}

// IsArith returns true for integer computation.
func (i *Inst) IsArith() bool { return IsArithOp(i.Op) }

// IsBranch returns true for branches and jumps.
func (i *Inst) IsBranch() bool { return IsBranchOp(i.Op) }

// IsLoad returns true for memory loads.
func (i *Inst) IsLoad() bool { return IsLoadOp(i.Op) }

// IsStoreInst returns true for memory stores.
func (i *Inst) IsStoreInst() bool { return IsStoreOp(i.Op) }

func (i *Inst) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "uid:%d %#x %s %s", i.UniqueID, i.TargetVAddr, i.Op, i.status)
	if i.fusion != FusionNone {
		fmt.Fprintf(&sb, " fused:%s", i.fusion)
	}
	if i.speculative {
		sb.WriteString(" spec")
	}
	return sb.String()
}

// Group is a set of instructions moving together between stages, in
// program order.
type Group []*Inst
