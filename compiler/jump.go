package compiler

import "github.com/chazu/luma/vm"

// ---------------------------------------------------------------------------
// Jump lists
// ---------------------------------------------------------------------------

// next returns the rest of a jump chain after the jump at pc.
func (fs *FuncState) next(pc int) JumpList {
	offset := fs.Proto.Code[pc].SBx()
	if offset == noJumpOffset {
		return NoJump
	}
	return listAt(pc + 1 + offset)
}

// fixJump points the jump at pc to dest.
func (fs *FuncState) fixJump(pc, dest int) {
	assert(dest >= 0, "jump to a negative pc")
	offset := dest - (pc + 1)
	if offset > vm.MaxArgSBx || offset < -vm.MaxArgSBx {
		fs.errorf("control structure too long")
	}
	fs.Proto.Code[pc].SetSBx(offset)
}

// Concat appends l2 to l1 and returns the combined list.
func (fs *FuncState) Concat(l1, l2 JumpList) JumpList {
	if l2.Empty() {
		return l1
	}
	if l1.Empty() {
		return l2
	}
	last := l1.pc
	for n := fs.next(last); !n.Empty(); n = fs.next(last) {
		last = n.pc
	}
	fs.fixJump(last, l2.pc)
	return l1
}

// Jump emits an unconditional jump with an open target and returns it as
// a list.
func (fs *FuncState) Jump() JumpList {
	return listAt(fs.codeAsBx(vm.OpJmp, 0, noJumpOffset))
}

// JumpTo emits a jump to target, which must already be emitted.
func (fs *FuncState) JumpTo(target int) {
	fs.PatchList(fs.Jump(), target)
}

// condJump emits a test instruction followed by the jump it controls.
func (fs *FuncState) condJump(op vm.Opcode, a, b, c int) JumpList {
	fs.codeABC(op, a, b, c)
	return fs.Jump()
}

// Label marks the current pc as a jump target and returns it.
func (fs *FuncState) Label() int {
	fs.lastTarget = fs.PC()
	return fs.lastTarget
}

// jumpControl returns the instruction controlling the jump at pc: the
// preceding test, if any, else the jump itself.
func (fs *FuncState) jumpControl(pc int) *vm.Instruction {
	if pc >= 1 && fs.Proto.Code[pc-1].Opcode().IsTest() {
		return &fs.Proto.Code[pc-1]
	}
	return &fs.Proto.Code[pc]
}

// needValue reports whether some jump in list is not controlled by a
// TESTSET, and so cannot produce its value by itself.
func (fs *FuncState) needValue(list JumpList) bool {
	for ; !list.Empty(); list = fs.next(list.pc) {
		if fs.jumpControl(list.pc).Opcode() != vm.OpTestSet {
			return true
		}
	}
	return false
}

// patchTestReg retargets the TESTSET controlling the jump at node to
// store into reg, or turns it into a TEST when reg is noReg or the value
// is already in place. It reports false if the jump has no TESTSET.
func (fs *FuncState) patchTestReg(node, reg int) bool {
	i := fs.jumpControl(node)
	if i.Opcode() != vm.OpTestSet {
		return false
	}
	if reg != noReg && reg != i.B() {
		i.SetA(reg)
	} else {
		*i = vm.CreateABC(vm.OpTest, i.B(), 0, i.C())
	}
	return true
}

// removeValues turns every TESTSET in list into a TEST.
func (fs *FuncState) removeValues(list JumpList) {
	for ; !list.Empty(); list = fs.next(list.pc) {
		fs.patchTestReg(list.pc, noReg)
	}
}

// patchListAux patches jumps controlled by a TESTSET to vtarget (storing
// into reg) and all others to dtarget.
func (fs *FuncState) patchListAux(list JumpList, vtarget, reg, dtarget int) {
	for !list.Empty() {
		n := fs.next(list.pc)
		if fs.patchTestReg(list.pc, reg) {
			fs.fixJump(list.pc, vtarget)
		} else {
			fs.fixJump(list.pc, dtarget)
		}
		list = n
	}
}

func (fs *FuncState) dischargeJumpPC() {
	if fs.jumpPC.Empty() {
		return
	}
	pc := fs.PC()
	list := fs.jumpPC
	fs.jumpPC = NoJump
	fs.patchListAux(list, pc, noReg, pc)
}

// PatchList points every jump in list to target. A target equal to the
// current pc behaves as PatchToHere.
func (fs *FuncState) PatchList(list JumpList, target int) {
	if target == fs.PC() {
		fs.PatchToHere(list)
		return
	}
	assert(target < fs.PC(), "PatchList to a future pc")
	fs.patchListAux(list, target, noReg, target)
}

// PatchToHere points every jump in list at the current pc. jumpPC only
// holds the chain for the duration of the call and is empty afterwards.
func (fs *FuncState) PatchToHere(list JumpList) {
	fs.Label()
	fs.jumpPC = fs.Concat(fs.jumpPC, list)
	fs.dischargeJumpPC()
}

// PatchClose marks every jump in list to close upvalues of registers at
// or above level when taken.
func (fs *FuncState) PatchClose(list JumpList, level int) {
	level++
	for !list.Empty() {
		n := fs.next(list.pc)
		i := &fs.Proto.Code[list.pc]
		assert(i.Opcode() == vm.OpJmp && (i.A() == 0 || i.A() >= level), "PatchClose on a non-jump")
		i.SetA(level)
		list = n
	}
}
