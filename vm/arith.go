package vm

import "math"

// Arith applies an arithmetic opcode to two numbers. UNM ignores b.
// It is the single definition of numeric semantics: the compiler folds
// constants with it and an engine evaluates ADD..UNM with it, so folded
// and computed results agree bit for bit.
func Arith(op Opcode, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpMod:
		return a - math.Floor(a/b)*b
	case OpPow:
		return math.Pow(a, b)
	case OpUnm:
		return -a
	}
	panic("vm: Arith on non-arithmetic opcode " + op.Name())
}

// IsArith reports whether op is handled by Arith.
func IsArith(op Opcode) bool {
	return op >= OpAdd && op <= OpUnm
}
