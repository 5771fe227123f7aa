package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Expression descriptors
// ---------------------------------------------------------------------------

// ExprKind classifies where the value of a partially compiled expression
// currently lives.
type ExprKind uint8

const (
	ExprVoid           ExprKind = iota // no value (empty expression list)
	ExprNil                            // constant nil
	ExprTrue                           // constant true
	ExprFalse                          // constant false
	ExprConstant                       // Info = constant table index
	ExprNumber                         // Value = numeric literal
	ExprNonRelocatable                 // Info = register holding the result
	ExprLocal                          // Info = register of a local variable
	ExprUpvalue                        // Info = upvalue index
	ExprIndexed                        // Table[Key], Table a register or upvalue per TableKind
	ExprJump                           // Info = pc of the jump of a comparison
	ExprRelocatable                    // Info = pc of an instruction whose A is not yet set
	ExprCall                           // Info = pc of a CALL
	ExprVararg                         // Info = pc of a VARARG
)

var exprKindNames = [...]string{
	ExprVoid:           "void",
	ExprNil:            "nil",
	ExprTrue:           "true",
	ExprFalse:          "false",
	ExprConstant:       "constant",
	ExprNumber:         "number",
	ExprNonRelocatable: "nonrelocatable",
	ExprLocal:          "local",
	ExprUpvalue:        "upvalue",
	ExprIndexed:        "indexed",
	ExprJump:           "jump",
	ExprRelocatable:    "relocatable",
	ExprCall:           "call",
	ExprVararg:         "vararg",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return fmt.Sprintf("ExprKind(%d)", k)
}

// TableKind says where the table of an indexed expression lives.
type TableKind uint8

const (
	TableLocal   TableKind = iota // Table is a register
	TableUpvalue                  // Table is an upvalue index
)

// JumpList is a chain of pending jumps threaded through the offset
// fields of the jump instructions themselves. The zero value is the
// empty list.
type JumpList struct {
	pc  int
	set bool
}

// NoJump is the empty jump list.
var NoJump JumpList

func listAt(pc int) JumpList {
	return JumpList{pc: pc, set: true}
}

// Empty reports whether the list has no jumps.
func (l JumpList) Empty() bool {
	return !l.set
}

// Head returns the pc of the most recently added jump. It must not be
// called on an empty list.
func (l JumpList) Head() int {
	assert(l.set, "Head of empty jump list")
	return l.pc
}

func (l JumpList) String() string {
	if !l.set {
		return "none"
	}
	return fmt.Sprintf("@%d", l.pc)
}

// ExprDesc describes a partially compiled expression: where its value
// lives and which pending jumps exit it when it is true (T) or false (F).
type ExprDesc struct {
	Kind      ExprKind
	Info      int       // register, constant index, upvalue index or pc, per Kind
	Table     int       // ExprIndexed: table register or upvalue
	TableKind TableKind // ExprIndexed
	Key       int       // ExprIndexed: key as an RK operand
	Value     float64   // ExprNumber
	T, F      JumpList
}

// NewExpr returns a descriptor of the given kind with empty jump lists.
func NewExpr(kind ExprKind, info int) ExprDesc {
	return ExprDesc{Kind: kind, Info: info}
}

// NumberExpr returns a numeric literal descriptor.
func NumberExpr(v float64) ExprDesc {
	return ExprDesc{Kind: ExprNumber, Value: v}
}

// IsNumeral reports whether e is a numeric literal with no pending jumps,
// and so a candidate for constant folding.
func (e ExprDesc) IsNumeral() bool {
	return e.Kind == ExprNumber && e.T.Empty() && e.F.Empty()
}

// HasJumps reports whether e has pending true or false jumps.
func (e ExprDesc) HasJumps() bool {
	return e.T != e.F
}

// HasMultRet reports whether e can produce a variable number of values.
func (e ExprDesc) HasMultRet() bool {
	return e.Kind == ExprCall || e.Kind == ExprVararg
}

// IsVariable reports whether e can be assigned to.
func (e ExprDesc) IsVariable() bool {
	return e.Kind == ExprLocal || e.Kind == ExprUpvalue || e.Kind == ExprIndexed
}

func (e ExprDesc) String() string {
	switch e.Kind {
	case ExprNumber:
		return fmt.Sprintf("number(%g) t=%s f=%s", e.Value, e.T, e.F)
	case ExprIndexed:
		return fmt.Sprintf("indexed(%d[%d]) t=%s f=%s", e.Table, e.Key, e.T, e.F)
	}
	return fmt.Sprintf("%s(%d) t=%s f=%s", e.Kind, e.Info, e.T, e.F)
}
