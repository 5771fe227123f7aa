package compiler

import "github.com/chazu/luma/vm"

// ---------------------------------------------------------------------------
// Materializing expressions
// ---------------------------------------------------------------------------

// SetReturns fixes the number of results of a call or vararg expression.
func (fs *FuncState) SetReturns(e ExprDesc, nresults int) {
	switch e.Kind {
	case ExprCall:
		fs.instr(e).SetC(nresults + 1)
	case ExprVararg:
		i := fs.instr(e)
		i.SetB(nresults + 1)
		i.SetA(fs.freeReg)
		fs.ReserveRegs(1)
	}
}

// SetMultRet lets a call or vararg expression produce all its results.
func (fs *FuncState) SetMultRet(e ExprDesc) {
	fs.SetReturns(e, vm.MultRet)
}

// SetOneRet restricts a call or vararg expression to a single result.
func (fs *FuncState) SetOneRet(e ExprDesc) ExprDesc {
	switch e.Kind {
	case ExprCall:
		e.Kind = ExprNonRelocatable
		e.Info = fs.instr(e).A()
	case ExprVararg:
		fs.instr(e).SetB(2)
		e.Kind = ExprRelocatable
	}
	return e
}

// DischargeVars turns a variable reference into a value: locals become
// non-relocatable, upvalues and indexed accesses emit their load.
func (fs *FuncState) DischargeVars(e ExprDesc) ExprDesc {
	switch e.Kind {
	case ExprLocal:
		e.Kind = ExprNonRelocatable
	case ExprUpvalue:
		e.Info = fs.codeABC(vm.OpGetUpval, 0, e.Info, 0)
		e.Kind = ExprRelocatable
	case ExprIndexed:
		op := vm.OpGetTabUp
		fs.freeRegister(e.Key)
		if e.TableKind == TableLocal {
			fs.freeRegister(e.Table)
			op = vm.OpGetTable
		}
		e.Info = fs.codeABC(op, 0, e.Table, e.Key)
		e.Kind = ExprRelocatable
	case ExprVararg, ExprCall:
		e = fs.SetOneRet(e)
	}
	return e
}

// discharge2Reg places the value of e, ignoring its jumps, in reg.
func (fs *FuncState) discharge2Reg(e ExprDesc, reg int) ExprDesc {
	e = fs.DischargeVars(e)
	switch e.Kind {
	case ExprNil:
		fs.LoadNil(reg, 1)
	case ExprFalse, ExprTrue:
		b := 0
		if e.Kind == ExprTrue {
			b = 1
		}
		fs.codeABC(vm.OpLoadBool, reg, b, 0)
	case ExprConstant:
		fs.codeK(reg, e.Info)
	case ExprNumber:
		fs.codeK(reg, fs.NumberConstant(e.Value))
	case ExprRelocatable:
		fs.instr(e).SetA(reg)
	case ExprNonRelocatable:
		if reg != e.Info {
			fs.codeABC(vm.OpMove, reg, e.Info, 0)
		}
	default:
		assert(e.Kind == ExprVoid || e.Kind == ExprJump, "discharge2Reg of "+e.Kind.String())
		return e
	}
	e.Info = reg
	e.Kind = ExprNonRelocatable
	return e
}

func (fs *FuncState) discharge2AnyReg(e ExprDesc) ExprDesc {
	if e.Kind != ExprNonRelocatable {
		fs.ReserveRegs(1)
		e = fs.discharge2Reg(e, fs.freeReg-1)
	}
	return e
}

// codeLabel emits a LOADBOOL and returns its pc. It is a jump target.
func (fs *FuncState) codeLabel(reg, b, jump int) int {
	fs.Label()
	return fs.codeABC(vm.OpLoadBool, reg, b, jump)
}

// exp2Reg places the full value of e, including the outcome of its
// jumps, in reg.
func (fs *FuncState) exp2Reg(e ExprDesc, reg int) ExprDesc {
	e = fs.discharge2Reg(e, reg)
	if e.Kind == ExprJump {
		e.T = fs.Concat(e.T, listAt(e.Info))
	}
	if e.HasJumps() {
		// Positions of the LOADBOOLs, if jumps need them; -1 otherwise.
		loadFalse, loadTrue := -1, -1
		if fs.needValue(e.T) || fs.needValue(e.F) {
			fj := NoJump
			if e.Kind != ExprJump {
				fj = fs.Jump()
			}
			loadFalse = fs.codeLabel(reg, 0, 1)
			loadTrue = fs.codeLabel(reg, 1, 0)
			fs.PatchToHere(fj)
		}
		end := fs.Label()
		fs.patchListAux(e.F, end, reg, loadFalse)
		fs.patchListAux(e.T, end, reg, loadTrue)
	}
	e.T, e.F = NoJump, NoJump
	e.Info = reg
	e.Kind = ExprNonRelocatable
	return e
}

// Exp2NextReg places the value of e in a newly reserved register.
func (fs *FuncState) Exp2NextReg(e ExprDesc) ExprDesc {
	e = fs.DischargeVars(e)
	fs.freeExpr(e)
	fs.ReserveRegs(1)
	return fs.exp2Reg(e, fs.freeReg-1)
}

// Exp2AnyReg places the value of e in some register: locals and values
// already in a register stay where they are, everything else goes to a
// fresh register. The result is non-relocatable.
func (fs *FuncState) Exp2AnyReg(e ExprDesc) ExprDesc {
	e = fs.DischargeVars(e)
	if e.Kind == ExprNonRelocatable {
		if !e.HasJumps() {
			return e
		}
		if e.Info >= fs.nactvar {
			return fs.exp2Reg(e, e.Info)
		}
	}
	return fs.Exp2NextReg(e)
}

// Exp2AnyRegUp is Exp2AnyReg except that a plain upvalue is left alone,
// since GETTABUP can index it directly.
func (fs *FuncState) Exp2AnyRegUp(e ExprDesc) ExprDesc {
	if e.Kind != ExprUpvalue || e.HasJumps() {
		e = fs.Exp2AnyReg(e)
	}
	return e
}

// Exp2Val makes e a value: a register if it has jumps, otherwise its
// variable reference is discharged.
func (fs *FuncState) Exp2Val(e ExprDesc) ExprDesc {
	if e.HasJumps() {
		return fs.Exp2AnyReg(e)
	}
	return fs.DischargeVars(e)
}

// Exp2RK returns e as an RK operand: a constant index if e is a constant
// that fits, otherwise a register.
func (fs *FuncState) Exp2RK(e ExprDesc) (ExprDesc, int) {
	e = fs.Exp2Val(e)
	switch e.Kind {
	case ExprTrue, ExprFalse, ExprNil:
		if len(fs.Proto.Constants) <= vm.MaxIndexRK {
			if e.Kind == ExprNil {
				e.Info = fs.nilConstant()
			} else {
				e.Info = fs.boolConstant(e.Kind == ExprTrue)
			}
			e.Kind = ExprConstant
			return e, vm.AsConstant(e.Info)
		}
	case ExprNumber:
		e.Info = fs.NumberConstant(e.Value)
		e.Kind = ExprConstant
		if e.Info <= vm.MaxIndexRK {
			return e, vm.AsConstant(e.Info)
		}
	case ExprConstant:
		if e.Info <= vm.MaxIndexRK {
			return e, vm.AsConstant(e.Info)
		}
	}
	e = fs.Exp2AnyReg(e)
	return e, e.Info
}

// StoreVar assigns the value of ex to variable v.
func (fs *FuncState) StoreVar(v, ex ExprDesc) {
	switch v.Kind {
	case ExprLocal:
		fs.freeExpr(ex)
		fs.exp2Reg(ex, v.Info)
		return
	case ExprUpvalue:
		ex = fs.Exp2AnyReg(ex)
		fs.codeABC(vm.OpSetUpval, ex.Info, v.Info, 0)
	case ExprIndexed:
		op := vm.OpSetTable
		if v.TableKind == TableUpvalue {
			op = vm.OpSetTabUp
		}
		var rk int
		ex, rk = fs.Exp2RK(ex)
		fs.codeABC(op, v.Table, v.Key, rk)
	default:
		assert(false, "StoreVar to non-variable "+v.Kind.String())
	}
	fs.freeExpr(ex)
}

// Self emits e:key, leaving the method and receiver in two consecutive
// registers. The result is the method register.
func (fs *FuncState) Self(e, key ExprDesc) ExprDesc {
	e = fs.Exp2AnyReg(e)
	ereg := e.Info
	fs.freeExpr(e)
	e.Info = fs.freeReg
	e.Kind = ExprNonRelocatable
	fs.ReserveRegs(2)
	key, rk := fs.Exp2RK(key)
	fs.codeABC(vm.OpSelf, e.Info, ereg, rk)
	fs.freeExpr(key)
	return e
}

// Indexed turns t into the indexed expression t[k].
func (fs *FuncState) Indexed(t, k ExprDesc) ExprDesc {
	assert(!t.HasJumps(), "indexing an expression with jumps")
	_, key := fs.Exp2RK(k)
	switch t.Kind {
	case ExprUpvalue:
		t.TableKind = TableUpvalue
	case ExprLocal, ExprNonRelocatable:
		t.TableKind = TableLocal
	default:
		assert(false, "indexing "+t.Kind.String())
	}
	t.Table = t.Info
	t.Key = key
	t.Kind = ExprIndexed
	return t
}

// ---------------------------------------------------------------------------
// Conditional jumps
// ---------------------------------------------------------------------------

// jumpOnCond emits a jump taken when e tests equal to cond.
func (fs *FuncState) jumpOnCond(e ExprDesc, cond int) (ExprDesc, JumpList) {
	if e.Kind == ExprRelocatable {
		if ie := *fs.instr(e); ie.Opcode() == vm.OpNot {
			fs.removeLast()
			return e, fs.condJump(vm.OpTest, ie.B(), 0, 1-cond)
		}
	}
	e = fs.discharge2AnyReg(e)
	fs.freeExpr(e)
	return e, fs.condJump(vm.OpTestSet, noReg, e.Info, cond)
}

// GoIfTrue emits code that falls through when e is true and jumps (via
// e.F) when it is false.
func (fs *FuncState) GoIfTrue(e ExprDesc) ExprDesc {
	e = fs.DischargeVars(e)
	var pc JumpList
	switch e.Kind {
	case ExprJump:
		fs.invertJump(e)
		pc = listAt(e.Info)
	case ExprConstant, ExprNumber, ExprTrue:
		pc = NoJump
	default:
		e, pc = fs.jumpOnCond(e, 0)
	}
	e.F = fs.Concat(e.F, pc)
	fs.PatchToHere(e.T)
	e.T = NoJump
	return e
}

// GoIfFalse emits code that falls through when e is false and jumps (via
// e.T) when it is true.
func (fs *FuncState) GoIfFalse(e ExprDesc) ExprDesc {
	e = fs.DischargeVars(e)
	var pc JumpList
	switch e.Kind {
	case ExprJump:
		pc = listAt(e.Info)
	case ExprNil, ExprFalse:
		pc = NoJump
	default:
		e, pc = fs.jumpOnCond(e, 1)
	}
	e.T = fs.Concat(e.T, pc)
	fs.PatchToHere(e.F)
	e.F = NoJump
	return e
}

// invertJump flips the condition of the comparison controlling e.
func (fs *FuncState) invertJump(e ExprDesc) {
	i := fs.jumpControl(e.Info)
	op := i.Opcode()
	assert(op.IsTest() && op != vm.OpTestSet && op != vm.OpTest, "invertJump on "+op.Name())
	i.SetA(1 - i.A())
}
