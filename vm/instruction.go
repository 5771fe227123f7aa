package vm

import "fmt"

// ---------------------------------------------------------------------------
// Instruction encoding
// ---------------------------------------------------------------------------

// Instruction is a fixed-width 32-bit register instruction.
//
// Layout, low bits first: op:6 A:8 C:9 B:9. Bx spans C and B, Ax spans
// A, C and B. sBx is Bx with an excess-MaxArgSBx bias.
type Instruction uint32

const (
	sizeC  = 9
	sizeB  = 9
	sizeBx = sizeC + sizeB
	sizeA  = 8
	sizeAx = sizeC + sizeB + sizeA
	sizeOp = 6

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC
	posAx = posA
)

// Operand limits.
const (
	MaxArgA   = 1<<sizeA - 1
	MaxArgB   = 1<<sizeB - 1
	MaxArgC   = 1<<sizeC - 1
	MaxArgBx  = 1<<sizeBx - 1
	MaxArgSBx = MaxArgBx >> 1
	MaxArgAx  = 1<<sizeAx - 1
)

// RK operands: a B or C operand with BitRK set names a constant index
// instead of a register.
const (
	BitRK      = 1 << (sizeB - 1)
	MaxIndexRK = BitRK - 1
)

// MultRet marks "all results" in CALL/RETURN/VARARG counts.
const MultRet = -1

// FieldsPerFlush is the number of list items a table constructor
// accumulates before emitting SETLIST.
const FieldsPerFlush = 50

// IsConstant reports whether an RK operand names a constant.
func IsConstant(rk int) bool { return rk&BitRK != 0 }

// ConstantIndex returns the constant index named by an RK operand.
func ConstantIndex(rk int) int { return rk &^ BitRK }

// AsConstant encodes constant index k as an RK operand.
func AsConstant(k int) int { return k | BitRK }

// IntToFB encodes a non-negative size as a "floating point byte"
// (eeeeexxx), the form NEWTABLE uses for its size hints. The value is
// rounded up.
func IntToFB(x int) int {
	e := 0
	if x < 8 {
		return x
	}
	for x >= 0x10 {
		x = (x + 1) >> 1
		e++
	}
	return ((e + 1) << 3) | (x - 8)
}

// FBToInt decodes a floating point byte.
func FBToInt(x int) int {
	e := (x >> 3) & 0x1f
	if e == 0 {
		return x
	}
	return ((x & 7) + 8) << (e - 1)
}

func mask1(n, p uint) Instruction { return ^(^Instruction(0) << n) << p }

// CreateABC encodes an iABC instruction.
func CreateABC(op Opcode, a, b, c int) Instruction {
	return Instruction(op)<<posOp | Instruction(a)<<posA | Instruction(b)<<posB | Instruction(c)<<posC
}

// CreateABx encodes an iABx instruction.
func CreateABx(op Opcode, a, bx int) Instruction {
	return Instruction(op)<<posOp | Instruction(a)<<posA | Instruction(bx)<<posBx
}

// CreateAsBx encodes an iAsBx instruction.
func CreateAsBx(op Opcode, a, sbx int) Instruction {
	return CreateABx(op, a, sbx+MaxArgSBx)
}

// CreateAx encodes an iAx instruction.
func CreateAx(op Opcode, ax int) Instruction {
	return Instruction(op)<<posOp | Instruction(ax)<<posAx
}

func (i Instruction) arg(pos, size uint) int {
	return int(i >> pos & mask1(size, 0))
}

func (i *Instruction) setArg(pos, size uint, v int) {
	*i = *i&^mask1(size, pos) | Instruction(v)<<pos&mask1(size, pos)
}

// Opcode returns the instruction's opcode.
func (i Instruction) Opcode() Opcode { return Opcode(i.arg(posOp, sizeOp)) }

// A returns operand A.
func (i Instruction) A() int { return i.arg(posA, sizeA) }

// B returns operand B.
func (i Instruction) B() int { return i.arg(posB, sizeB) }

// C returns operand C.
func (i Instruction) C() int { return i.arg(posC, sizeC) }

// Bx returns operand Bx.
func (i Instruction) Bx() int { return i.arg(posBx, sizeBx) }

// SBx returns the signed operand sBx.
func (i Instruction) SBx() int { return i.Bx() - MaxArgSBx }

// Ax returns operand Ax.
func (i Instruction) Ax() int { return i.arg(posAx, sizeAx) }

// SetOpcode replaces the opcode, keeping the operands.
func (i *Instruction) SetOpcode(op Opcode) { i.setArg(posOp, sizeOp, int(op)) }

// SetA replaces operand A.
func (i *Instruction) SetA(a int) { i.setArg(posA, sizeA, a) }

// SetB replaces operand B.
func (i *Instruction) SetB(b int) { i.setArg(posB, sizeB, b) }

// SetC replaces operand C.
func (i *Instruction) SetC(c int) { i.setArg(posC, sizeC, c) }

// SetBx replaces operand Bx.
func (i *Instruction) SetBx(bx int) { i.setArg(posBx, sizeBx, bx) }

// SetSBx replaces the signed operand sBx.
func (i *Instruction) SetSBx(sbx int) { i.SetBx(sbx + MaxArgSBx) }

// String renders the instruction as opcode and raw operands, with
// constant RK operands shown as negative numbers.
func (i Instruction) String() string {
	op := i.Opcode()
	info := op.Info()
	rk := func(x int) int {
		if IsConstant(x) {
			return -1 - ConstantIndex(x)
		}
		return x
	}
	switch info.Mode {
	case ModeABx:
		if info.B == ArgK {
			return fmt.Sprintf("%-9s %d %d", info.Name, i.A(), -1-i.Bx())
		}
		return fmt.Sprintf("%-9s %d %d", info.Name, i.A(), i.Bx())
	case ModeAsBx:
		return fmt.Sprintf("%-9s %d %d", info.Name, i.A(), i.SBx())
	case ModeAx:
		return fmt.Sprintf("%-9s %d", info.Name, i.Ax())
	}
	s := fmt.Sprintf("%-9s %d", info.Name, i.A())
	if info.B != ArgN {
		b := i.B()
		if info.B == ArgK {
			b = rk(b)
		}
		s += fmt.Sprintf(" %d", b)
	}
	if info.C != ArgN {
		c := i.C()
		if info.C == ArgK {
			c = rk(c)
		}
		s += fmt.Sprintf(" %d", c)
	}
	return s
}
