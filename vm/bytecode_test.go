package vm

import (
	"math"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op   Opcode
		name string
		mode OpMode
		test bool
	}{
		{OpMove, "MOVE", ModeABC, false},
		{OpLoadK, "LOADK", ModeABx, false},
		{OpLoadKX, "LOADKX", ModeABx, false},
		{OpGetTabUp, "GETTABUP", ModeABC, false},
		{OpSelf, "SELF", ModeABC, false},
		{OpAdd, "ADD", ModeABC, false},
		{OpConcat, "CONCAT", ModeABC, false},
		{OpJmp, "JMP", ModeAsBx, false},
		{OpEq, "EQ", ModeABC, true},
		{OpLe, "LE", ModeABC, true},
		{OpTest, "TEST", ModeABC, true},
		{OpTestSet, "TESTSET", ModeABC, true},
		{OpForPrep, "FORPREP", ModeAsBx, false},
		{OpClosure, "CLOSURE", ModeABx, false},
		{OpExtraArg, "EXTRAARG", ModeAx, false},
	}

	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%d: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if info.Mode != tt.mode {
			t.Errorf("%s: Mode = %d, want %d", tt.op, info.Mode, tt.mode)
		}
		if tt.op.IsTest() != tt.test {
			t.Errorf("%s: IsTest = %v, want %v", tt.op, tt.op.IsTest(), tt.test)
		}
	}
}

func TestOpcodeTableComplete(t *testing.T) {
	for op := Opcode(0); int(op) < NumOpcodes; op++ {
		if op.Name() == "" || strings.HasPrefix(op.Name(), "UNKNOWN_") {
			t.Errorf("opcode %d has no metadata", op)
		}
	}
	if NumOpcodes != 40 {
		t.Errorf("NumOpcodes = %d, want 40", NumOpcodes)
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0x3F)
	if !strings.HasPrefix(op.Name(), "UNKNOWN_") {
		t.Errorf("unknown opcode should have UNKNOWN_ prefix, got %q", op.Name())
	}
}

// ---------------------------------------------------------------------------
// Instruction encoding tests
// ---------------------------------------------------------------------------

func TestCreateABC(t *testing.T) {
	i := CreateABC(OpAdd, 7, AsConstant(3), 200)
	if i.Opcode() != OpAdd {
		t.Errorf("Opcode = %s, want ADD", i.Opcode())
	}
	if i.A() != 7 {
		t.Errorf("A = %d, want 7", i.A())
	}
	if !IsConstant(i.B()) || ConstantIndex(i.B()) != 3 {
		t.Errorf("B = %d, want constant 3", i.B())
	}
	if i.C() != 200 {
		t.Errorf("C = %d, want 200", i.C())
	}
}

func TestOperandLimits(t *testing.T) {
	i := CreateABC(OpExtraArg, MaxArgA, MaxArgB, MaxArgC)
	if i.A() != MaxArgA || i.B() != MaxArgB || i.C() != MaxArgC {
		t.Errorf("ABC = %d %d %d, want max values", i.A(), i.B(), i.C())
	}
	if i.Opcode() != OpExtraArg {
		t.Errorf("operands leaked into opcode: %s", i.Opcode())
	}

	bx := CreateABx(OpLoadK, 1, MaxArgBx)
	if bx.Bx() != MaxArgBx || bx.A() != 1 {
		t.Errorf("Bx = %d A = %d", bx.Bx(), bx.A())
	}

	ax := CreateAx(OpExtraArg, MaxArgAx)
	if ax.Ax() != MaxArgAx || ax.Opcode() != OpExtraArg {
		t.Errorf("Ax = %d op = %s", ax.Ax(), ax.Opcode())
	}
}

func TestSignedBx(t *testing.T) {
	for _, sbx := range []int{-MaxArgSBx, -1, 0, 1, 42, MaxArgSBx} {
		i := CreateAsBx(OpJmp, 0, sbx)
		if i.SBx() != sbx {
			t.Errorf("SBx = %d, want %d", i.SBx(), sbx)
		}
	}
}

func TestInstructionSetters(t *testing.T) {
	i := CreateABC(OpTestSet, 1, 2, 1)
	i.SetA(9)
	i.SetB(300)
	i.SetC(0)
	if i.A() != 9 || i.B() != 300 || i.C() != 0 {
		t.Errorf("after set: A=%d B=%d C=%d", i.A(), i.B(), i.C())
	}
	i.SetOpcode(OpTest)
	if i.Opcode() != OpTest || i.A() != 9 {
		t.Errorf("SetOpcode changed operands: %s", i)
	}

	j := CreateAsBx(OpJmp, 0, -1)
	j.SetSBx(17)
	if j.SBx() != 17 {
		t.Errorf("SBx = %d, want 17", j.SBx())
	}
	j.SetA(3)
	if j.SBx() != 17 || j.A() != 3 {
		t.Errorf("SetA disturbed sBx: %s", j)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		i    Instruction
		want string
	}{
		{CreateABC(OpMove, 1, 0, 0), "MOVE      1 0"},
		{CreateABx(OpLoadK, 0, 2), "LOADK     0 -3"},
		{CreateABC(OpAdd, 2, 0, AsConstant(1)), "ADD       2 0 -2"},
		{CreateAsBx(OpJmp, 0, 5), "JMP       0 5"},
		{CreateABC(OpReturn, 0, 1, 0), "RETURN    0 1"},
	}
	for _, tt := range tests {
		if got := tt.i.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Arithmetic tests
// ---------------------------------------------------------------------------

func TestArith(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b float64
		want float64
	}{
		{OpAdd, 1, 2, 3},
		{OpSub, 1, 2, -1},
		{OpMul, 3, 4, 12},
		{OpDiv, 1, 4, 0.25},
		{OpMod, 5.5, 2, 1.5},
		{OpMod, -5, 3, 1},
		{OpMod, 5, -3, -1},
		{OpPow, 2, 10, 1024},
		{OpUnm, 3, 0, -3},
	}
	for _, tt := range tests {
		if got := Arith(tt.op, tt.a, tt.b); got != tt.want {
			t.Errorf("Arith(%s, %v, %v) = %v, want %v", tt.op, tt.a, tt.b, got, tt.want)
		}
	}
	if got := Arith(OpUnm, 0, 0); !math.Signbit(got) {
		t.Errorf("Arith(UNM, 0) = %v, want -0", got)
	}
}

func TestIsArith(t *testing.T) {
	for _, op := range []Opcode{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpUnm} {
		if !IsArith(op) {
			t.Errorf("IsArith(%s) = false", op)
		}
	}
	for _, op := range []Opcode{OpNot, OpLen, OpConcat, OpSelf} {
		if IsArith(op) {
			t.Errorf("IsArith(%s) = true", op)
		}
	}
}
