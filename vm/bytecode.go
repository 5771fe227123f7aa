package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a register instruction. It occupies the low 6 bits of
// an Instruction.
type Opcode uint8

// Loads and moves
const (
	OpMove     Opcode = iota // A B     R(A) := R(B)
	OpLoadK                  // A Bx    R(A) := K(Bx)
	OpLoadKX                 // A       R(A) := K(extra arg)
	OpLoadBool               // A B C   R(A) := (bool)B; if C then pc++
	OpLoadNil                // A B     R(A), ..., R(A+B) := nil
)

// Upvalues and tables
const (
	OpGetUpval Opcode = iota + OpLoadNil + 1 // A B     R(A) := U(B)
	OpGetTabUp                               // A B C   R(A) := U(B)[RK(C)]
	OpGetTable                               // A B C   R(A) := R(B)[RK(C)]
	OpSetTabUp                               // A B C   U(A)[RK(B)] := RK(C)
	OpSetUpval                               // A B     U(B) := R(A)
	OpSetTable                               // A B C   R(A)[RK(B)] := RK(C)
	OpNewTable                               // A B C   R(A) := {} (array size B, hash size C)
	OpSelf                                   // A B C   R(A+1) := R(B); R(A) := R(B)[RK(C)]
)

// Arithmetic
const (
	OpAdd    Opcode = iota + OpSelf + 1 // A B C   R(A) := RK(B) + RK(C)
	OpSub                               // A B C   R(A) := RK(B) - RK(C)
	OpMul                               // A B C   R(A) := RK(B) * RK(C)
	OpDiv                               // A B C   R(A) := RK(B) / RK(C)
	OpMod                               // A B C   R(A) := RK(B) % RK(C)
	OpPow                               // A B C   R(A) := RK(B) ^ RK(C)
	OpUnm                               // A B     R(A) := -R(B)
	OpNot                               // A B     R(A) := not R(B)
	OpLen                               // A B     R(A) := #R(B)
	OpConcat                            // A B C   R(A) := R(B) .. ... .. R(C)
)

// Control flow
const (
	OpJmp     Opcode = iota + OpConcat + 1 // A sBx   pc += sBx; if A then close upvalues >= R(A-1)
	OpEq                                   // A B C   if (RK(B) == RK(C)) ~= A then pc++
	OpLt                                   // A B C   if (RK(B) <  RK(C)) ~= A then pc++
	OpLe                                   // A B C   if (RK(B) <= RK(C)) ~= A then pc++
	OpTest                                 // A C     if not (R(A) <=> C) then pc++
	OpTestSet                              // A B C   if R(B) <=> C then R(A) := R(B) else pc++
)

// Calls and loops
const (
	OpCall     Opcode = iota + OpTestSet + 1 // A B C   R(A), ..., R(A+C-2) := R(A)(R(A+1), ..., R(A+B-1))
	OpTailCall                               // A B C   return R(A)(R(A+1), ..., R(A+B-1))
	OpReturn                                 // A B     return R(A), ..., R(A+B-2)
	OpForLoop                                // A sBx   R(A) += R(A+2); if R(A) <= R(A+1) then { pc += sBx; R(A+3) := R(A) }
	OpForPrep                                // A sBx   R(A) -= R(A+2); pc += sBx
	OpTForCall                               // A C     R(A+3), ..., R(A+2+C) := R(A)(R(A+1), R(A+2))
	OpTForLoop                               // A sBx   if R(A+1) ~= nil then { R(A) := R(A+1); pc += sBx }
	OpSetList                                // A B C   R(A)[(C-1)*FPF+i] := R(A+i), 1 <= i <= B
	OpClosure                                // A Bx    R(A) := closure(P(Bx))
	OpVararg                                 // A B     R(A), ..., R(A+B-2) := vararg
	OpExtraArg                               // Ax      extra (larger) argument for the previous opcode
)

// NumOpcodes is the number of defined opcodes.
const NumOpcodes = int(OpExtraArg) + 1

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpMode is the operand layout of an instruction.
type OpMode uint8

const (
	ModeABC  OpMode = iota // A:8 B:9 C:9
	ModeABx                // A:8 Bx:18
	ModeAsBx               // A:8 sBx:18 (signed, excess-K)
	ModeAx                 // Ax:26
)

// ArgMode describes how the B or C operand of an instruction is used.
type ArgMode uint8

const (
	ArgN ArgMode = iota // not used
	ArgU                // used as a plain number
	ArgR                // register or jump offset
	ArgK                // constant or register (RK)
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name  string  // human-readable name
	Mode  OpMode  // operand layout
	B, C  ArgMode // use of the B and C operands
	SetsA bool    // instruction writes register A
	Test  bool    // instruction is a test; the next one must be a jump
}

// opcodeTable maps opcodes to their metadata, indexed by opcode.
var opcodeTable = [...]OpcodeInfo{
	// Loads and moves
	OpMove:     {"MOVE", ModeABC, ArgR, ArgN, true, false},
	OpLoadK:    {"LOADK", ModeABx, ArgK, ArgN, true, false},
	OpLoadKX:   {"LOADKX", ModeABx, ArgN, ArgN, true, false},
	OpLoadBool: {"LOADBOOL", ModeABC, ArgU, ArgU, true, false},
	OpLoadNil:  {"LOADNIL", ModeABC, ArgU, ArgN, true, false},

	// Upvalues and tables
	OpGetUpval: {"GETUPVAL", ModeABC, ArgU, ArgN, true, false},
	OpGetTabUp: {"GETTABUP", ModeABC, ArgU, ArgK, true, false},
	OpGetTable: {"GETTABLE", ModeABC, ArgR, ArgK, true, false},
	OpSetTabUp: {"SETTABUP", ModeABC, ArgK, ArgK, false, false},
	OpSetUpval: {"SETUPVAL", ModeABC, ArgU, ArgN, false, false},
	OpSetTable: {"SETTABLE", ModeABC, ArgK, ArgK, false, false},
	OpNewTable: {"NEWTABLE", ModeABC, ArgU, ArgU, true, false},
	OpSelf:     {"SELF", ModeABC, ArgR, ArgK, true, false},

	// Arithmetic
	OpAdd:    {"ADD", ModeABC, ArgK, ArgK, true, false},
	OpSub:    {"SUB", ModeABC, ArgK, ArgK, true, false},
	OpMul:    {"MUL", ModeABC, ArgK, ArgK, true, false},
	OpDiv:    {"DIV", ModeABC, ArgK, ArgK, true, false},
	OpMod:    {"MOD", ModeABC, ArgK, ArgK, true, false},
	OpPow:    {"POW", ModeABC, ArgK, ArgK, true, false},
	OpUnm:    {"UNM", ModeABC, ArgR, ArgN, true, false},
	OpNot:    {"NOT", ModeABC, ArgR, ArgN, true, false},
	OpLen:    {"LEN", ModeABC, ArgR, ArgN, true, false},
	OpConcat: {"CONCAT", ModeABC, ArgR, ArgR, true, false},

	// Control flow
	OpJmp:     {"JMP", ModeAsBx, ArgR, ArgN, false, false},
	OpEq:      {"EQ", ModeABC, ArgK, ArgK, false, true},
	OpLt:      {"LT", ModeABC, ArgK, ArgK, false, true},
	OpLe:      {"LE", ModeABC, ArgK, ArgK, false, true},
	OpTest:    {"TEST", ModeABC, ArgN, ArgU, false, true},
	OpTestSet: {"TESTSET", ModeABC, ArgR, ArgU, true, true},

	// Calls and loops
	OpCall:     {"CALL", ModeABC, ArgU, ArgU, true, false},
	OpTailCall: {"TAILCALL", ModeABC, ArgU, ArgU, true, false},
	OpReturn:   {"RETURN", ModeABC, ArgU, ArgN, false, false},
	OpForLoop:  {"FORLOOP", ModeAsBx, ArgR, ArgN, true, false},
	OpForPrep:  {"FORPREP", ModeAsBx, ArgR, ArgN, true, false},
	OpTForCall: {"TFORCALL", ModeABC, ArgN, ArgU, false, false},
	OpTForLoop: {"TFORLOOP", ModeAsBx, ArgR, ArgN, true, false},
	OpSetList:  {"SETLIST", ModeABC, ArgU, ArgU, false, false},
	OpClosure:  {"CLOSURE", ModeABx, ArgU, ArgN, true, false},
	OpVararg:   {"VARARG", ModeABC, ArgU, ArgN, true, false},
	OpExtraArg: {"EXTRAARG", ModeAx, ArgU, ArgU, false, false},
}

// The table must describe every opcode.
var _ [len(opcodeTable) - NumOpcodes]struct{}
var _ [NumOpcodes - len(opcodeTable)]struct{}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if int(op) < len(opcodeTable) {
		return opcodeTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// IsTest reports whether op is a test instruction that must be followed
// by a jump.
func (op Opcode) IsTest() bool {
	return op.Info().Test
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}
