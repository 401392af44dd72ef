// Package insts provides the RISC-V instruction model used by the pipeline core.
//
// Instructions are not executed; the model carries only what the decode and
// retire stages need: the opcode, the immediate, source and destination
// register masks, the virtual address and the execution unit.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst, err := decoder.Decode("slli x1, x2, 3")
//	fmt.Printf("Op: %v, Dest: %#x, Src: %#x, Imm: %d\n", inst.Op, inst.DestMask, inst.SrcMask, inst.Imm)
package insts

// Op represents a RISC-V opcode.
type Op uint16

// RISC-V opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpADDI
	OpADDIW
	OpSUB
	OpAND
	OpANDI
	OpOR
	OpORI
	OpXOR
	OpXORI
	OpSLLI
	OpSRLI
	OpSRAI
	OpLUI
	OpAUIPC
	OpLI
	OpMV
	OpSH1ADD
	OpSH2ADD
	OpSH3ADD
	OpMUL
	OpDIV
	OpLB
	OpLH
	OpLW
	OpLD
	OpSB
	OpSH
	OpSW
	OpSD
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpJAL
	OpJALR
	OpFENCEI
	OpNOP
	numOps
)

var opNames = [numOps]string{
	OpUnknown: "unknown",
	OpADD:     "add",
	OpADDI:    "addi",
	OpADDIW:   "addiw",
	OpSUB:     "sub",
	OpAND:     "and",
	OpANDI:    "andi",
	OpOR:      "or",
	OpORI:     "ori",
	OpXOR:     "xor",
	OpXORI:    "xori",
	OpSLLI:    "slli",
	OpSRLI:    "srli",
	OpSRAI:    "srai",
	OpLUI:     "lui",
	OpAUIPC:   "auipc",
	OpLI:      "li",
	OpMV:      "mv",
	OpSH1ADD:  "sh1add",
	OpSH2ADD:  "sh2add",
	OpSH3ADD:  "sh3add",
	OpMUL:     "mul",
	OpDIV:     "div",
	OpLB:      "lb",
	OpLH:      "lh",
	OpLW:      "lw",
	OpLD:      "ld",
	OpSB:      "sb",
	OpSH:      "sh",
	OpSW:      "sw",
	OpSD:      "sd",
	OpBEQ:     "beq",
	OpBNE:     "bne",
	OpBLT:     "blt",
	OpBGE:     "bge",
	OpBLTU:    "bltu",
	OpBGEU:    "bgeu",
	OpJAL:     "jal",
	OpJALR:    "jalr",
	OpFENCEI:  "fence.i",
	OpNOP:     "nop",
}

var opsByName = func() map[string]Op {
	m := make(map[string]Op, numOps)
	for op := OpADD; op < numOps; op++ {
		m[opNames[op]] = op
	}
	return m
}()

// String returns the assembler mnemonic.
func (op Op) String() string {
	if op >= numOps {
		return opNames[OpUnknown]
	}
	return opNames[op]
}

// ParseOp looks up an opcode by its mnemonic.
func ParseOp(mnemonic string) (Op, bool) {
	op, ok := opsByName[mnemonic]
	return op, ok
}

// Unit is the execution-unit category an instruction is steered to.
type Unit uint8

// Execution units. UnitROB marks instructions that are handled at retire and
// redirect fetch when they leave the reorder buffer.
const (
	UnitALU Unit = iota
	UnitMUL
	UnitDIV
	UnitBranch
	UnitLSU
	UnitROB
)

func (u Unit) String() string {
	switch u {
	case UnitALU:
		return "alu"
	case UnitMUL:
		return "mul"
	case UnitDIV:
		return "div"
	case UnitBranch:
		return "br"
	case UnitLSU:
		return "lsu"
	case UnitROB:
		return "rob"
	default:
		return "unknown"
	}
}

// UnitOf returns the execution unit an opcode is steered to.
func UnitOf(op Op) Unit {
	switch {
	case op == OpMUL:
		return UnitMUL
	case op == OpDIV:
		return UnitDIV
	case IsBranchOp(op):
		return UnitBranch
	case IsLoadOp(op), IsStoreOp(op):
		return UnitLSU
	case op == OpFENCEI:
		return UnitROB
	default:
		return UnitALU
	}
}

// IsLoadOp returns true for memory loads.
func IsLoadOp(op Op) bool {
	switch op {
	case OpLB, OpLH, OpLW, OpLD:
		return true
	}
	return false
}

// IsStoreOp returns true for memory stores.
func IsStoreOp(op Op) bool {
	switch op {
	case OpSB, OpSH, OpSW, OpSD:
		return true
	}
	return false
}

// IsConditionalBranchOp returns true for the compare-and-branch opcodes.
func IsConditionalBranchOp(op Op) bool {
	switch op {
	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		return true
	}
	return false
}

// IsBranchOp returns true for conditional branches and jumps.
func IsBranchOp(op Op) bool {
	return IsConditionalBranchOp(op) || op == OpJAL || op == OpJALR
}

// IsArithOp returns true for integer computation opcodes.
func IsArithOp(op Op) bool {
	switch op {
	case OpUnknown, OpFENCEI, OpNOP:
		return false
	}
	return !IsLoadOp(op) && !IsStoreOp(op) && !IsBranchOp(op)
}

// MemWidth returns the access width in bits of a load or store, or 0.
func MemWidth(op Op) uint32 {
	switch op {
	case OpLB, OpSB:
		return 8
	case OpLH, OpSH:
		return 16
	case OpLW, OpSW:
		return 32
	case OpLD, OpSD:
		return 64
	}
	return 0
}
