package compiler

import (
	"fmt"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Limits
// ---------------------------------------------------------------------------

const (
	maxRegisters = 250 // registers per function
	maxLocals    = 200 // active local variables per function
	maxUpvalues  = 255 // upvalues per function
	maxConstants = vm.MaxArgAx

	// noReg marks "no register" in TESTSET patching.
	noReg = vm.MaxArgA

	// noJumpOffset terminates a jump chain inside the sBx field.
	noJumpOffset = -1

	// envName is the upvalue through which global names resolve.
	envName = "_ENV"
)

// ---------------------------------------------------------------------------
// FuncState: per-function code generation state
// ---------------------------------------------------------------------------

// unit is the shared state of one compilation: the stack of functions
// being compiled, outermost first, and the current source line.
type unit struct {
	source string
	funcs  []*FuncState
	line   int
}

// FuncState is the code generation state of one function under
// construction. It owns the prototype until Close seals it.
type FuncState struct {
	Proto *vm.Prototype

	unit  *unit
	level int // index in unit.funcs; the enclosing function is level-1

	consts  map[vm.ConstKey]int
	blocks  []blockScope
	actives []int // LocVars index of each declared local, by register
	labels  []labelDesc
	gotos   []labelDesc

	jumpPC     JumpList // chain being patched by PatchToHere
	lastTarget int      // pc of the last jump target
	freeReg    int      // first free register
	nactvar    int      // number of active locals
	closed     bool
}

// NewFuncState returns the state of the outermost function of a new
// compilation unit named source. No block is open yet.
func NewFuncState(source string) *FuncState {
	u := &unit{source: source}
	return u.open(0)
}

func (u *unit) open(line int) *FuncState {
	fs := &FuncState{
		Proto: &vm.Prototype{
			Source:       u.source,
			LineDefined:  line,
			MaxStackSize: 2, // registers 0 and 1 are always valid
		},
		unit:   u,
		level:  len(u.funcs),
		consts: make(map[vm.ConstKey]int),
	}
	u.funcs = append(u.funcs, fs)
	return fs
}

// Open starts a nested function defined at line inside fs and enters its
// outermost block.
func (fs *FuncState) Open(line int) *FuncState {
	assert(fs.unit.funcs[len(fs.unit.funcs)-1] == fs, "Open on a function that is not innermost")
	child := fs.unit.open(line)
	child.EnterBlock(false)
	return child
}

// Close finishes the function: it emits the final return, leaves the
// outermost block, seals the prototype and, for a nested function,
// attaches it to the enclosing function. It returns the index of the
// prototype in the parent's Protos (0 for the outermost function).
func (fs *FuncState) Close() int {
	assert(!fs.closed, "Close called twice")
	assert(fs.unit.funcs[len(fs.unit.funcs)-1] == fs, "Close on a function that is not innermost")
	fs.Ret(0, 0)
	fs.LeaveBlock()
	assert(len(fs.blocks) == 0, "blocks left open at Close")
	fs.finish()
	fs.closed = true
	fs.unit.funcs = fs.unit.funcs[:fs.level]

	parent := fs.enclosing()
	if parent == nil {
		return 0
	}
	if len(parent.Proto.Protos) >= vm.MaxArgBx {
		parent.errorf("too many functions (limit is %d) in %s", vm.MaxArgBx, parent.describe())
	}
	parent.Proto.Protos = append(parent.Proto.Protos, fs.Proto)
	return len(parent.Proto.Protos) - 1
}

// enclosing returns the function that lexically encloses fs, or nil.
func (fs *FuncState) enclosing() *FuncState {
	if fs.level == 0 {
		return nil
	}
	return fs.unit.funcs[fs.level-1]
}

// describe names the function for limit messages.
func (fs *FuncState) describe() string {
	if fs.level == 0 {
		return "main function"
	}
	return fmt.Sprintf("function at line %d", fs.Proto.LineDefined)
}

// errorf aborts compilation with an Error at the current line.
func (fs *FuncState) errorf(format string, args ...interface{}) {
	panic(&Error{Source: fs.unit.source, Line: fs.unit.line, Msg: fmt.Sprintf(format, args...)})
}

func (fs *FuncState) checkLimit(v, limit int, what string) {
	if v > limit {
		fs.errorf("too many %s (limit is %d) in %s", what, limit, fs.describe())
	}
}

// SetLine sets the source line attributed to instructions emitted from
// now on.
func (fs *FuncState) SetLine(line int) {
	fs.unit.line = line
}

// FreeReg returns the first free register.
func (fs *FuncState) FreeReg() int { return fs.freeReg }

// ActiveVars returns the number of active local variables.
func (fs *FuncState) ActiveVars() int { return fs.nactvar }

// ---------------------------------------------------------------------------
// Instruction emission
// ---------------------------------------------------------------------------

// PC returns the index of the next instruction to be emitted.
func (fs *FuncState) PC() int {
	return len(fs.Proto.Code)
}

func (fs *FuncState) code(i vm.Instruction) int {
	assert(!fs.closed, "emit into a closed function")
	fs.Proto.Code = append(fs.Proto.Code, i)
	fs.Proto.LineInfo = append(fs.Proto.LineInfo, fs.unit.line)
	return len(fs.Proto.Code) - 1
}

func (fs *FuncState) codeABC(op vm.Opcode, a, b, c int) int {
	info := op.Info()
	assert(info.Mode == vm.ModeABC, "codeABC with non-ABC opcode "+info.Name)
	assert(info.B != vm.ArgN || b == 0, "operand B given to "+info.Name)
	assert(info.C != vm.ArgN || c == 0, "operand C given to "+info.Name)
	assert(a <= vm.MaxArgA && b <= vm.MaxArgB && c <= vm.MaxArgC, "operand out of range for "+info.Name)
	return fs.code(vm.CreateABC(op, a, b, c))
}

func (fs *FuncState) codeABx(op vm.Opcode, a, bx int) int {
	info := op.Info()
	assert(info.Mode == vm.ModeABx || info.Mode == vm.ModeAsBx, "codeABx with opcode "+info.Name)
	assert(bx >= 0 && bx <= vm.MaxArgBx, "Bx out of range for "+info.Name)
	return fs.code(vm.CreateABx(op, a, bx))
}

func (fs *FuncState) codeAsBx(op vm.Opcode, a, sbx int) int {
	return fs.codeABx(op, a, sbx+vm.MaxArgSBx)
}

func (fs *FuncState) codeExtraArg(a int) int {
	assert(a <= vm.MaxArgAx, "EXTRAARG out of range")
	return fs.code(vm.CreateAx(vm.OpExtraArg, a))
}

// codeK loads constant k into reg.
func (fs *FuncState) codeK(reg, k int) int {
	if k <= vm.MaxArgBx {
		return fs.codeABx(vm.OpLoadK, reg, k)
	}
	pc := fs.codeABx(vm.OpLoadKX, reg, 0)
	fs.codeExtraArg(k)
	return pc
}

func (fs *FuncState) instr(e ExprDesc) *vm.Instruction {
	return &fs.Proto.Code[e.Info]
}

// FixLine changes the line of the last emitted instruction.
func (fs *FuncState) FixLine(line int) {
	fs.Proto.LineInfo[len(fs.Proto.LineInfo)-1] = line
}

// removeLast drops the last emitted instruction.
func (fs *FuncState) removeLast() {
	n := len(fs.Proto.Code) - 1
	fs.Proto.Code = fs.Proto.Code[:n]
	fs.Proto.LineInfo = fs.Proto.LineInfo[:n]
}

// LoadNil sets n registers starting at from to nil, merging with an
// immediately preceding LOADNIL when no jump targets the current pc.
func (fs *FuncState) LoadNil(from, n int) {
	last := from + n - 1
	if pc := fs.PC(); pc > fs.lastTarget && pc > 0 {
		prev := &fs.Proto.Code[pc-1]
		if prev.Opcode() == vm.OpLoadNil {
			pfrom := prev.A()
			plast := pfrom + prev.B()
			if (pfrom <= from && from <= plast+1) || (from <= pfrom && pfrom <= last+1) {
				if pfrom < from {
					from = pfrom
				}
				if plast > last {
					last = plast
				}
				prev.SetA(from)
				prev.SetB(last - from)
				return
			}
		}
	}
	fs.codeABC(vm.OpLoadNil, from, n-1, 0)
}

// Ret emits a return of nret values starting at first; nret may be
// vm.MultRet.
func (fs *FuncState) Ret(first, nret int) {
	fs.codeABC(vm.OpReturn, first, nret+1, 0)
}

// SetList emits the flush of tostore list items of a table constructor
// whose table is in base; nelems is the number of items so far.
func (fs *FuncState) SetList(base, nelems, tostore int) {
	assert(tostore != 0, "SetList with nothing to store")
	c := (nelems-1)/vm.FieldsPerFlush + 1
	b := tostore
	if tostore == vm.MultRet {
		b = 0
	}
	switch {
	case c <= vm.MaxArgC:
		fs.codeABC(vm.OpSetList, base, b, c)
	case c <= vm.MaxArgAx:
		fs.codeABC(vm.OpSetList, base, b, 0)
		fs.codeExtraArg(c)
	default:
		fs.errorf("constructor too long")
	}
	fs.freeReg = base + 1
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// CheckStack ensures n more registers above the free register fit in the
// function and records the high-water mark.
func (fs *FuncState) CheckStack(n int) {
	if top := fs.freeReg + n; top > fs.Proto.MaxStackSize {
		if top >= maxRegisters {
			fs.errorf("function or expression too complex")
		}
		fs.Proto.MaxStackSize = top
	}
}

// ReserveRegs allocates n registers.
func (fs *FuncState) ReserveRegs(n int) {
	fs.CheckStack(n)
	fs.freeReg += n
}

func (fs *FuncState) freeRegister(reg int) {
	if !vm.IsConstant(reg) && reg >= fs.nactvar {
		fs.freeReg--
		assert(reg == fs.freeReg, "freed register is not the top register")
	}
}

func (fs *FuncState) freeExpr(e ExprDesc) {
	if e.Kind == ExprNonRelocatable {
		fs.freeRegister(e.Info)
	}
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// AddConstant returns the index of v in the constant table, appending it
// if no equal constant exists.
func (fs *FuncState) AddConstant(v vm.Value) int {
	key := v.Key()
	if k, ok := fs.consts[key]; ok {
		return k
	}
	k := len(fs.Proto.Constants)
	fs.checkLimit(k+1, maxConstants, "constants")
	fs.consts[key] = k
	fs.Proto.Constants = append(fs.Proto.Constants, v)
	return k
}

// StringConstant returns the constant index of s.
func (fs *FuncState) StringConstant(s string) int {
	return fs.AddConstant(vm.String(s))
}

// NumberConstant returns the constant index of n.
func (fs *FuncState) NumberConstant(n float64) int {
	return fs.AddConstant(vm.Number(n))
}

func (fs *FuncState) boolConstant(b bool) int {
	return fs.AddConstant(vm.Bool(b))
}

func (fs *FuncState) nilConstant() int {
	return fs.AddConstant(vm.Nil())
}

// StringExpr returns a constant expression for s.
func (fs *FuncState) StringExpr(s string) ExprDesc {
	return NewExpr(ExprConstant, fs.StringConstant(s))
}

// ---------------------------------------------------------------------------
// Local variables
// ---------------------------------------------------------------------------

// NewLocalVar declares a local variable. It becomes visible after
// AdjustLocalVars.
func (fs *FuncState) NewLocalVar(name string) {
	fs.checkLimit(len(fs.actives)+1, maxLocals, "local variables")
	fs.Proto.LocVars = append(fs.Proto.LocVars, vm.LocalVar{Name: name})
	fs.actives = append(fs.actives, len(fs.Proto.LocVars)-1)
}

// AdjustLocalVars activates the last n declared locals.
func (fs *FuncState) AdjustLocalVars(n int) {
	fs.nactvar += n
	for i := n; i > 0; i-- {
		fs.localVar(fs.nactvar - i).StartPC = fs.PC()
	}
}

// localVar returns the debug record of the local in register reg.
func (fs *FuncState) localVar(reg int) *vm.LocalVar {
	return &fs.Proto.LocVars[fs.actives[reg]]
}

// removeVars deactivates locals down to level.
func (fs *FuncState) removeVars(level int) {
	for fs.nactvar > level {
		fs.nactvar--
		fs.localVar(fs.nactvar).EndPC = fs.PC()
	}
	fs.actives = fs.actives[:level]
}

// searchVar returns the register of the innermost active local called
// name, or -1.
func (fs *FuncState) searchVar(name string) int {
	for reg := fs.nactvar - 1; reg >= 0; reg-- {
		if fs.localVar(reg).Name == name {
			return reg
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Finishing
// ---------------------------------------------------------------------------

// finish threads jumps whose target is a plain jump straight to the final
// destination. Jumps that close upvalues are never skipped over.
func (fs *FuncState) finish() {
	code := fs.Proto.Code
	for pc := range code {
		if code[pc].Opcode() != vm.OpJmp {
			continue
		}
		target := pc + 1 + code[pc].SBx()
		for hops := 0; hops < 100; hops++ {
			if target < 0 || target >= len(code) || target == pc {
				break
			}
			next := code[target]
			if next.Opcode() != vm.OpJmp || next.A() != 0 {
				break
			}
			target = target + 1 + next.SBx()
		}
		if offset := target - (pc + 1); offset != code[pc].SBx() && -vm.MaxArgSBx <= offset && offset <= vm.MaxArgSBx {
			code[pc].SetSBx(offset)
		}
	}
}
