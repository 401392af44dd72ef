package decode

import (
	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/log"
)

// fusionRule matches one macro-op idiom: an opcode pair plus an operand
// condition on the two instructions.
type fusionRule struct {
	kind  insts.FusionKind
	name  string
	match func(first, second *insts.Inst) bool
}

// fusionRules are tried in order; the first match wins.
var fusionRules = []fusionRule{
	{insts.FusionLoadEffectiveAddress, "lea", isLoadEffectiveAddress},
	{insts.FusionIndexLoad, "index-load", isIndexLoad},
	{insts.FusionClearUpperWord, "clear-upper-word", isClearUpperWord},
	{insts.FusionLoadImmediateIdiom, "load-immediate", isLoadImmediateIdiom},
	{insts.FusionLoadGlobal, "load-global", isLoadGlobal},
	{insts.FusionLoadPair, "load-pair-32", isLoadPair32},
	{insts.FusionLoadPair, "load-pair-64", isLoadPair64},
	{insts.FusionStorePair, "store-pair-32", isStorePair32},
	{insts.FusionStorePair, "store-pair-64", isStorePair64},
	{insts.FusionShiftAddLoad, "sh1add-load", isSh1addLoad},
	{insts.FusionShiftAddLoad, "sh2add-load", isSh2addLoad},
	{insts.FusionShiftAddLoad, "sh3add-load", isSh3addLoad},
	{insts.FusionCompareImmediate, "compare-immediate", isCompareImmediate},
}

// hasRegisterDependency is true when first writes a register second reads.
func hasRegisterDependency(first, second *insts.Inst) bool {
	return first.DestMask&second.SrcMask != 0
}

// hasSameSource is true when both instructions read a common register.
func hasSameSource(first, second *insts.Inst) bool {
	return first.SrcMask&second.SrcMask != 0
}

// hasSameDest is true when both instructions write a common register.
func hasSameDest(first, second *insts.Inst) bool {
	return first.DestMask&second.DestMask != 0
}

func isLoadEffectiveAddress(first, second *insts.Inst) bool {
	return first.Op == insts.OpSLLI && second.Op == insts.OpADD &&
		hasRegisterDependency(first, second)
}

func isIndexLoad(first, second *insts.Inst) bool {
	return first.Op == insts.OpADD && second.Op == insts.OpLD &&
		hasRegisterDependency(first, second)
}

func isClearUpperWord(first, second *insts.Inst) bool {
	return first.Op == insts.OpSLLI && second.Op == insts.OpSRLI &&
		first.Imm == 32 && second.Imm == 32 &&
		hasRegisterDependency(first, second)
}

func isLoadImmediateIdiom(first, second *insts.Inst) bool {
	return first.Op == insts.OpLUI && second.Op == insts.OpADDI &&
		hasRegisterDependency(first, second)
}

func isLoadGlobal(first, second *insts.Inst) bool {
	if first.Op != insts.OpAUIPC {
		return false
	}
	switch second.Op {
	case insts.OpLD, insts.OpLW, insts.OpADDI:
		return hasRegisterDependency(first, second)
	}
	return false
}

// isMemPair matches two same-width accesses through a common register at
// consecutive offsets.
func isMemPair(first, second *insts.Inst, op insts.Op) bool {
	if first.Op != op || second.Op != op {
		return false
	}
	width := int64(insts.MemWidth(op))
	return hasSameSource(first, second) && second.Imm-first.Imm == width/8
}

func isLoadPair32(first, second *insts.Inst) bool {
	return isMemPair(first, second, insts.OpLW)
}

func isLoadPair64(first, second *insts.Inst) bool {
	return isMemPair(first, second, insts.OpLD)
}

func isStorePair32(first, second *insts.Inst) bool {
	return isMemPair(first, second, insts.OpSW)
}

func isStorePair64(first, second *insts.Inst) bool {
	return isMemPair(first, second, insts.OpSD)
}

func isShiftAddLoad(first, second *insts.Inst, shift, load insts.Op) bool {
	return first.Op == shift && second.Op == load &&
		hasRegisterDependency(first, second)
}

func isSh1addLoad(first, second *insts.Inst) bool {
	return isShiftAddLoad(first, second, insts.OpSH1ADD, insts.OpLH)
}

func isSh2addLoad(first, second *insts.Inst) bool {
	return isShiftAddLoad(first, second, insts.OpSH2ADD, insts.OpLW)
}

func isSh3addLoad(first, second *insts.Inst) bool {
	return isShiftAddLoad(first, second, insts.OpSH3ADD, insts.OpLD)
}

func isCompareImmediate(first, second *insts.Inst) bool {
	if first.Op != insts.OpADDI && first.Op != insts.OpLI {
		return false
	}
	return insts.IsConditionalBranchOp(second.Op) &&
		hasRegisterDependency(first, second)
}

// tryFuse returns the first rule matching the pair.
func tryFuse(first, second *insts.Inst) (fusionRule, bool) {
	for _, r := range fusionRules {
		if r.match(first, second) {
			return r, true
		}
	}
	return fusionRule{}, false
}

func markFused(r fusionRule, first, second *insts.Inst) {
	second.SetFusion(r.kind)
	log.Decode.Debug().
		Str("idiom", r.name).
		Uint64("first", first.UniqueID).
		Uint64("second", second.UniqueID).
		Msg("fused")
}

// fuseAdjacent pairs back-to-back instructions. The second instruction of a
// pair survives carrying the fusion tag; the first is dropped.
func fuseAdjacent(batch insts.Group) insts.Group {
	out := make(insts.Group, 0, len(batch))

	for i := 0; i < len(batch); i++ {
		a := batch[i]
		if a.IsFused() || i == len(batch)-1 {
			out = append(out, a)
			continue
		}

		b := batch[i+1]
		r, ok := tryFuse(a, b)
		if !ok {
			out = append(out, a)
			continue
		}

		markFused(r, a, b)
		out = append(out, b)
		i++
	}

	return out
}

// fuseWindow pairs each untagged instruction with the first later partner
// in the batch. The scan for a partner stops at an already-tagged or
// flush-initiating instruction, or at the first one writing a register the
// candidate writes. A pair never straddles a flush.
func fuseWindow(batch insts.Group) insts.Group {
	dropped := make([]bool, len(batch))

	for i := 0; i < len(batch); i++ {
		a := batch[i]
		if dropped[i] || a.IsFused() || a.Unit == insts.UnitROB {
			continue
		}

		for j := i + 1; j < len(batch); j++ {
			b := batch[j]
			if b.IsFused() || b.Unit == insts.UnitROB {
				break
			}

			if r, ok := tryFuse(a, b); ok {
				markFused(r, a, b)
				dropped[i] = true
				break
			}

			if hasSameDest(a, b) {
				break
			}
		}
	}

	out := make(insts.Group, 0, len(batch))
	for i, inst := range batch {
		if !dropped[i] {
			out = append(out, inst)
		}
	}

	return out
}
