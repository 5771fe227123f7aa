package compiler

import (
	"math"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// UnaryOp is a prefix operator.
type UnaryOp uint8

const (
	UnaryMinus UnaryOp = iota // -
	UnaryNot                  // not
	UnaryLen                  // #
	numUnaryOps
)

// BinaryOp is an infix operator.
type BinaryOp uint8

const (
	BinaryAdd    BinaryOp = iota // +
	BinarySub                    // -
	BinaryMul                    // *
	BinaryDiv                    // /
	BinaryMod                    // %
	BinaryPow                    // ^
	BinaryConcat                 // ..
	BinaryEq                     // ==
	BinaryLt                     // <
	BinaryLe                     // <=
	BinaryNe                     // ~=
	BinaryGt                     // >
	BinaryGe                     // >=
	BinaryAnd                    // and
	BinaryOr                     // or
	numBinaryOps
)

type opFamily uint8

const (
	familyArith opFamily = iota
	familyConcat
	familyCompare
	familyLogical
)

// binaryOpInfo drives the encoding and parsing of a binary operator.
type binaryOpInfo struct {
	name        string
	family      opFamily
	op          vm.Opcode // arithmetic or comparison opcode
	cond        int       // comparisons: condition flag; 0 means negated or swapped
	left, right int       // parsing priorities
}

var binaryOps = [...]binaryOpInfo{
	BinaryAdd:    {"+", familyArith, vm.OpAdd, 0, 6, 6},
	BinarySub:    {"-", familyArith, vm.OpSub, 0, 6, 6},
	BinaryMul:    {"*", familyArith, vm.OpMul, 0, 7, 7},
	BinaryDiv:    {"/", familyArith, vm.OpDiv, 0, 7, 7},
	BinaryMod:    {"%", familyArith, vm.OpMod, 0, 7, 7},
	BinaryPow:    {"^", familyArith, vm.OpPow, 0, 10, 9},
	BinaryConcat: {"..", familyConcat, vm.OpConcat, 0, 5, 4},
	BinaryEq:     {"==", familyCompare, vm.OpEq, 1, 3, 3},
	BinaryLt:     {"<", familyCompare, vm.OpLt, 1, 3, 3},
	BinaryLe:     {"<=", familyCompare, vm.OpLe, 1, 3, 3},
	BinaryNe:     {"~=", familyCompare, vm.OpEq, 0, 3, 3},
	BinaryGt:     {">", familyCompare, vm.OpLt, 0, 3, 3},
	BinaryGe:     {">=", familyCompare, vm.OpLe, 0, 3, 3},
	BinaryAnd:    {"and", familyLogical, 0, 0, 2, 2},
	BinaryOr:     {"or", familyLogical, 0, 0, 1, 1},
}

// The operator table must cover every operator.
var _ [len(binaryOps) - int(numBinaryOps)]struct{}
var _ [int(numBinaryOps) - len(binaryOps)]struct{}

var unaryOpNames = [...]string{
	UnaryMinus: "-",
	UnaryNot:   "not",
	UnaryLen:   "#",
}

var _ [len(unaryOpNames) - int(numUnaryOps)]struct{}
var _ [int(numUnaryOps) - len(unaryOpNames)]struct{}

// unaryPriority binds prefix operators tighter than everything but ^.
const unaryPriority = 8

func (op UnaryOp) String() string { return unaryOpNames[op] }

func (op BinaryOp) String() string { return binaryOps[op].name }

// ---------------------------------------------------------------------------
// Operator encoding
// ---------------------------------------------------------------------------

// Prefix applies a unary operator to e.
func (fs *FuncState) Prefix(op UnaryOp, e ExprDesc, line int) ExprDesc {
	zero := NumberExpr(0)
	switch op {
	case UnaryMinus:
		if e.IsNumeral() {
			e.Value = vm.Arith(vm.OpUnm, e.Value, 0)
			return e
		}
		e = fs.Exp2AnyReg(e)
		return fs.encodeArith(vm.OpUnm, e, zero, line)
	case UnaryNot:
		return fs.encodeNot(e)
	case UnaryLen:
		e = fs.Exp2AnyReg(e)
		return fs.encodeArith(vm.OpLen, e, zero, line)
	}
	assert(false, "unknown unary operator")
	return e
}

// Infix prepares the left operand of a binary operator before the right
// operand is compiled.
func (fs *FuncState) Infix(op BinaryOp, v ExprDesc) ExprDesc {
	switch op {
	case BinaryAnd:
		return fs.GoIfTrue(v)
	case BinaryOr:
		return fs.GoIfFalse(v)
	case BinaryConcat:
		return fs.Exp2NextReg(v)
	}
	if binaryOps[op].family == familyArith && v.IsNumeral() {
		return v
	}
	v, _ = fs.Exp2RK(v)
	return v
}

// Postfix combines the operands of a binary operator after the right
// operand is compiled.
func (fs *FuncState) Postfix(op BinaryOp, e1, e2 ExprDesc, line int) ExprDesc {
	info := binaryOps[op]
	switch info.family {
	case familyLogical:
		e2 = fs.DischargeVars(e2)
		if op == BinaryAnd {
			assert(e1.T.Empty(), "and: left operand has true jumps")
			e2.F = fs.Concat(e2.F, e1.F)
		} else {
			assert(e1.F.Empty(), "or: left operand has false jumps")
			e2.T = fs.Concat(e2.T, e1.T)
		}
		return e2
	case familyConcat:
		e2 = fs.Exp2Val(e2)
		if e2.Kind == ExprRelocatable && fs.instr(e2).Opcode() == vm.OpConcat {
			assert(e1.Info == fs.instr(e2).B()-1, "concat operands not adjacent")
			fs.freeExpr(e1)
			fs.instr(e2).SetB(e1.Info)
			e1.Kind = ExprRelocatable
			e1.Info = e2.Info
			return e1
		}
		e2 = fs.Exp2NextReg(e2)
		return fs.encodeArith(vm.OpConcat, e1, e2, line)
	case familyArith:
		return fs.encodeArith(info.op, e1, e2, line)
	case familyCompare:
		return fs.encodeComparison(info.op, info.cond, e1, e2)
	}
	assert(false, "unknown binary operator")
	return e1
}

// foldConstants evaluates op at compile time when both operands are
// numerals. Division or modulo by zero and NaN results are left to run
// time.
func foldConstants(op vm.Opcode, e1, e2 ExprDesc) (ExprDesc, bool) {
	if !vm.IsArith(op) || !e1.IsNumeral() || !e2.IsNumeral() {
		return e1, false
	}
	if (op == vm.OpDiv || op == vm.OpMod) && e2.Value == 0 {
		return e1, false
	}
	r := vm.Arith(op, e1.Value, e2.Value)
	if math.IsNaN(r) {
		return e1, false
	}
	e1.Value = r
	return e1, true
}

// encodeArith emits a binary arithmetic instruction (or a unary one, when
// e2 is the dummy numeral 0) unless both operands fold to a constant.
// Operand registers are released highest first.
func (fs *FuncState) encodeArith(op vm.Opcode, e1, e2 ExprDesc, line int) ExprDesc {
	if folded, ok := foldConstants(op, e1, e2); ok {
		return folded
	}
	o2 := 0
	if op != vm.OpUnm && op != vm.OpLen {
		e2, o2 = fs.Exp2RK(e2)
	}
	e1, o1 := fs.Exp2RK(e1)
	if o1 > o2 {
		fs.freeExpr(e1)
		fs.freeExpr(e2)
	} else {
		fs.freeExpr(e2)
		fs.freeExpr(e1)
	}
	e1.Info = fs.codeABC(op, 0, o1, o2)
	e1.Kind = ExprRelocatable
	fs.FixLine(line)
	return e1
}

// encodeComparison emits a comparison and its jump. A zero cond on LT or
// LE swaps the operands, turning a > b into b < a.
func (fs *FuncState) encodeComparison(op vm.Opcode, cond int, e1, e2 ExprDesc) ExprDesc {
	e1, o1 := fs.Exp2RK(e1)
	e2, o2 := fs.Exp2RK(e2)
	fs.freeExpr(e2)
	fs.freeExpr(e1)
	if cond == 0 && op != vm.OpEq {
		o1, o2 = o2, o1
		cond = 1
	}
	j := fs.condJump(op, cond, o1, o2)
	return NewExpr(ExprJump, j.Head())
}

// encodeNot negates e. Constants fold, comparisons flip their condition
// in place, anything else gets a NOT; the true and false jump lists are
// exchanged.
func (fs *FuncState) encodeNot(e ExprDesc) ExprDesc {
	e = fs.DischargeVars(e)
	switch e.Kind {
	case ExprNil, ExprFalse:
		e.Kind = ExprTrue
	case ExprConstant, ExprNumber, ExprTrue:
		e.Kind = ExprFalse
	case ExprJump:
		fs.invertJump(e)
	case ExprRelocatable, ExprNonRelocatable:
		e = fs.discharge2AnyReg(e)
		fs.freeExpr(e)
		e.Info = fs.codeABC(vm.OpNot, 0, e.Info, 0)
		e.Kind = ExprRelocatable
	default:
		assert(false, "not of "+e.Kind.String())
	}
	e.T, e.F = e.F, e.T
	fs.removeValues(e.F)
	fs.removeValues(e.T)
	return e
}
