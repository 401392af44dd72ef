package insts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownOp is returned for mnemonics the decoder does not model.
var ErrUnknownOp = errors.New("unknown mnemonic")

// ErrBadOperand is returned when an operand cannot be parsed.
var ErrBadOperand = errors.New("bad operand")

// Format represents the operand layout of an opcode.
type Format uint8

// Operand formats.
const (
	FormatNone   Format = iota // no operands (nop, fence.i)
	FormatR                    // rd, rs1, rs2
	FormatI                    // rd, rs1, imm
	FormatU                    // rd, imm
	FormatMove                 // rd, rs1
	FormatLoad                 // rd, imm(rs1)
	FormatStore                // rs2, imm(rs1)
	FormatBranch               // rs1, rs2, imm
	FormatJump                 // rd, imm
)

// FormatOf returns the operand layout of op.
func FormatOf(op Op) Format {
	switch op {
	case OpADD, OpSUB, OpAND, OpOR, OpXOR, OpSH1ADD, OpSH2ADD, OpSH3ADD, OpMUL, OpDIV:
		return FormatR
	case OpADDI, OpADDIW, OpANDI, OpORI, OpXORI, OpSLLI, OpSRLI, OpSRAI, OpJALR:
		return FormatI
	case OpLUI, OpAUIPC, OpLI:
		return FormatU
	case OpMV:
		return FormatMove
	case OpJAL:
		return FormatJump
	}
	switch {
	case IsLoadOp(op):
		return FormatLoad
	case IsStoreOp(op):
		return FormatStore
	case IsConditionalBranchOp(op):
		return FormatBranch
	}
	return FormatNone
}

var abiRegs = map[string]uint8{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4,
	"t0": 5, "t1": 6, "t2": 7, "s0": 8, "fp": 8, "s1": 9,
	"a0": 10, "a1": 11, "a2": 12, "a3": 13, "a4": 14, "a5": 15, "a6": 16, "a7": 17,
	"s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"s8": 24, "s9": 25, "s10": 26, "s11": 27,
	"t3": 28, "t4": 29, "t5": 30, "t6": 31,
}

// RegMask returns the register-mask bit for x<reg>. x0 is hardwired to zero
// and never creates a dependency.
func RegMask(reg uint8) uint64 {
	if reg == 0 {
		return 0
	}
	return 1 << reg
}

// Decoder turns assembler text into instructions.
type Decoder struct{}

// NewDecoder creates a new RISC-V assembler-text decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses one instruction such as "ld x5, 16(x2)".
func (d *Decoder) Decode(text string) (*Inst, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", ErrUnknownOp)
	}

	mnemonic := strings.ToLower(fields[0])
	op, ok := ParseOp(mnemonic)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, fields[0])
	}

	operands := splitOperands(strings.Join(fields[1:], " "))
	inst := &Inst{Op: op, Unit: UnitOf(op)}

	if err := d.decodeOperands(inst, operands); err != nil {
		return nil, fmt.Errorf("%s: %w", mnemonic, err)
	}

	return inst, nil
}

func splitOperands(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (d *Decoder) decodeOperands(inst *Inst, ops []string) error {
	format := FormatOf(inst.Op)

	want := map[Format]int{
		FormatNone: 0, FormatR: 3, FormatI: 3, FormatU: 2, FormatMove: 2,
		FormatLoad: 2, FormatStore: 2, FormatBranch: 3, FormatJump: 2,
	}[format]

	// jal with an implicit ra and jalr written as "rd, imm(rs1)"
	if inst.Op == OpJAL && len(ops) == 1 {
		ops = []string{"ra", ops[0]}
	}
	if inst.Op == OpJALR && len(ops) == 2 {
		format = FormatLoad
		want = 2
	}

	if len(ops) != want {
		return fmt.Errorf("%w: want %d operands, got %d", ErrBadOperand, want, len(ops))
	}

	switch format {
	case FormatR:
		return d.decodeR(inst, ops)
	case FormatI:
		return d.decodeI(inst, ops)
	case FormatU, FormatJump:
		return d.decodeU(inst, ops)
	case FormatMove:
		return d.decodeMove(inst, ops)
	case FormatLoad:
		return d.decodeLoad(inst, ops)
	case FormatStore:
		return d.decodeStore(inst, ops)
	case FormatBranch:
		return d.decodeBranch(inst, ops)
	}

	return nil
}

func (d *Decoder) decodeR(inst *Inst, ops []string) error {
	regs, err := parseRegs(ops...)
	if err != nil {
		return err
	}
	inst.DestMask = RegMask(regs[0])
	inst.SrcMask = RegMask(regs[1]) | RegMask(regs[2])
	return nil
}

func (d *Decoder) decodeI(inst *Inst, ops []string) error {
	regs, err := parseRegs(ops[0], ops[1])
	if err != nil {
		return err
	}
	imm, err := parseImm(ops[2])
	if err != nil {
		return err
	}
	inst.DestMask = RegMask(regs[0])
	inst.SrcMask = RegMask(regs[1])
	inst.Imm = imm
	return nil
}

func (d *Decoder) decodeU(inst *Inst, ops []string) error {
	rd, err := parseReg(ops[0])
	if err != nil {
		return err
	}
	imm, err := parseImm(ops[1])
	if err != nil {
		return err
	}
	inst.DestMask = RegMask(rd)
	inst.Imm = imm
	return nil
}

func (d *Decoder) decodeMove(inst *Inst, ops []string) error {
	regs, err := parseRegs(ops...)
	if err != nil {
		return err
	}
	inst.DestMask = RegMask(regs[0])
	inst.SrcMask = RegMask(regs[1])
	return nil
}

func (d *Decoder) decodeLoad(inst *Inst, ops []string) error {
	rd, err := parseReg(ops[0])
	if err != nil {
		return err
	}
	imm, base, err := parseMemOperand(ops[1])
	if err != nil {
		return err
	}
	inst.DestMask = RegMask(rd)
	inst.SrcMask = RegMask(base)
	inst.Imm = imm
	return nil
}

func (d *Decoder) decodeStore(inst *Inst, ops []string) error {
	rs2, err := parseReg(ops[0])
	if err != nil {
		return err
	}
	imm, base, err := parseMemOperand(ops[1])
	if err != nil {
		return err
	}
	inst.SrcMask = RegMask(base) | RegMask(rs2)
	inst.Imm = imm
	return nil
}

func (d *Decoder) decodeBranch(inst *Inst, ops []string) error {
	regs, err := parseRegs(ops[0], ops[1])
	if err != nil {
		return err
	}
	imm, err := parseImm(ops[2])
	if err != nil {
		return err
	}
	inst.SrcMask = RegMask(regs[0]) | RegMask(regs[1])
	inst.Imm = imm
	return nil
}

// parseMemOperand parses "imm(reg)"; the immediate may be omitted.
func parseMemOperand(s string) (int64, uint8, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("%w: memory operand %q", ErrBadOperand, s)
	}

	var imm int64
	if open > 0 {
		var err error
		imm, err = parseImm(s[:open])
		if err != nil {
			return 0, 0, err
		}
	}

	base, err := parseReg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}

	return imm, base, nil
}

func parseRegs(names ...string) ([]uint8, error) {
	regs := make([]uint8, len(names))
	for i, name := range names {
		r, err := parseReg(name)
		if err != nil {
			return nil, err
		}
		regs[i] = r
	}
	return regs, nil
}

func parseReg(name string) (uint8, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if r, ok := abiRegs[name]; ok {
		return r, nil
	}
	if strings.HasPrefix(name, "x") {
		n, err := strconv.ParseUint(name[1:], 10, 8)
		if err == nil && n < 32 {
			return uint8(n), nil
		}
	}
	return 0, fmt.Errorf("%w: register %q", ErrBadOperand, name)
}

func parseImm(s string) (int64, error) {
	imm, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: immediate %q", ErrBadOperand, s)
	}
	return imm, nil
}
