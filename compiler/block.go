package compiler

// ---------------------------------------------------------------------------
// Scope blocks
// ---------------------------------------------------------------------------

// blockScope is one lexical block of the function being compiled.
type blockScope struct {
	firstLabel int  // index of the first label of this block
	firstGoto  int  // index of the first pending goto of this block
	nactvar    int  // active locals outside the block
	hasUpval   bool // some local of the block is captured as an upvalue
	isLoop     bool // block is a loop body; break exits it
}

// labelDesc is a label or a pending goto.
type labelDesc struct {
	name    string
	pc      int      // label position
	jumps   JumpList // goto jump
	line    int
	nactvar int // active locals at that point
}

const breakName = "break"

// EnterBlock opens a new block. No temporaries may be live.
func (fs *FuncState) EnterBlock(isLoop bool) {
	assert(fs.freeReg == fs.nactvar, "EnterBlock with live temporaries")
	fs.blocks = append(fs.blocks, blockScope{
		firstLabel: len(fs.labels),
		firstGoto:  len(fs.gotos),
		nactvar:    fs.nactvar,
		isLoop:     isLoop,
	})
}

func (fs *FuncState) block() *blockScope {
	assert(len(fs.blocks) > 0, "no open block")
	return &fs.blocks[len(fs.blocks)-1]
}

// LeaveBlock closes the innermost block: it closes captured locals,
// resolves breaks of a loop, ends the scope of the block's locals, frees
// their registers and hands unresolved gotos to the enclosing block.
func (fs *FuncState) LeaveBlock() {
	bl := *fs.block()
	outermost := len(fs.blocks) == 1
	if !outermost && bl.hasUpval {
		j := fs.Jump()
		fs.PatchClose(j, bl.nactvar)
		fs.PatchToHere(j)
	}
	if bl.isLoop {
		fs.breakLabel()
	}
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	fs.removeVars(bl.nactvar)
	assert(bl.nactvar == fs.nactvar, "local variable levels out of step")
	fs.freeReg = fs.nactvar
	fs.labels = fs.labels[:bl.firstLabel]
	if !outermost {
		fs.moveGotosOut(bl)
	} else if bl.firstGoto < len(fs.gotos) {
		fs.undefinedGoto(fs.gotos[bl.firstGoto])
	}
}

// markUpval flags the block owning register level as having a captured
// local.
func (fs *FuncState) markUpval(level int) {
	i := len(fs.blocks) - 1
	for i > 0 && fs.blocks[i].nactvar > level {
		i--
	}
	fs.blocks[i].hasUpval = true
}

// ---------------------------------------------------------------------------
// Labels and gotos
// ---------------------------------------------------------------------------

// MakeGoto records a goto (or break, when name is "break") whose jump
// list is pc, resolving it at once if the label is already visible.
func (fs *FuncState) MakeGoto(name string, line int, pc JumpList) {
	fs.gotos = append(fs.gotos, labelDesc{name: name, jumps: pc, line: line, nactvar: fs.nactvar})
	fs.findLabel(len(fs.gotos) - 1)
}

// MakeLabel defines a label at the current pc and resolves pending gotos
// to it. lastStatement says the label ends its block, so the block's
// locals are treated as out of scope for gotos that reach it.
func (fs *FuncState) MakeLabel(name string, line int, lastStatement bool) {
	bl := fs.block()
	for _, lb := range fs.labels[bl.firstLabel:] {
		if lb.name == name {
			fs.errorf("label '%s' already defined on line %d", name, lb.line)
		}
	}
	lb := labelDesc{name: name, pc: fs.Label(), line: line, nactvar: fs.nactvar}
	if lastStatement {
		lb.nactvar = bl.nactvar
	}
	fs.labels = append(fs.labels, lb)
	fs.findGotos(lb)
}

// breakLabel resolves the pending breaks of the loop block being left.
func (fs *FuncState) breakLabel() {
	lb := labelDesc{name: breakName, pc: fs.Label(), nactvar: fs.nactvar}
	fs.labels = append(fs.labels, lb)
	fs.findGotos(lb)
}

// closeGoto patches pending goto g to label lb and removes it.
func (fs *FuncState) closeGoto(g int, lb labelDesc) {
	gt := fs.gotos[g]
	assert(gt.name == lb.name, "closeGoto with mismatched label")
	if gt.nactvar < lb.nactvar {
		vname := fs.localVar(gt.nactvar).Name
		fs.errorf("<goto %s> at line %d jumps into the scope of local '%s'", gt.name, gt.line, vname)
	}
	fs.PatchList(gt.jumps, lb.pc)
	fs.gotos = append(fs.gotos[:g], fs.gotos[g+1:]...)
}

// findLabel resolves pending goto g against the labels visible in the
// current block. It reports whether the goto was resolved.
func (fs *FuncState) findLabel(g int) bool {
	bl := fs.block()
	gt := fs.gotos[g]
	for _, lb := range fs.labels[bl.firstLabel:] {
		if lb.name != gt.name {
			continue
		}
		if gt.nactvar > lb.nactvar && (bl.hasUpval || len(fs.labels) > bl.firstLabel) {
			fs.PatchClose(gt.jumps, lb.nactvar)
		}
		fs.closeGoto(g, lb)
		return true
	}
	return false
}

// findGotos resolves the current block's pending gotos that target lb.
func (fs *FuncState) findGotos(lb labelDesc) {
	for i := fs.block().firstGoto; i < len(fs.gotos); {
		if fs.gotos[i].name == lb.name {
			fs.closeGoto(i, lb)
		} else {
			i++
		}
	}
}

// moveGotosOut hands the pending gotos of the block just left to the
// enclosing block, closing upvalues of the left block on the way out.
func (fs *FuncState) moveGotosOut(bl blockScope) {
	for i := bl.firstGoto; i < len(fs.gotos); {
		gt := &fs.gotos[i]
		if gt.nactvar > bl.nactvar {
			if bl.hasUpval {
				fs.PatchClose(gt.jumps, bl.nactvar)
			}
			gt.nactvar = bl.nactvar
		}
		if !fs.findLabel(i) {
			i++
		}
	}
}

func (fs *FuncState) undefinedGoto(gt labelDesc) {
	if gt.name == breakName {
		fs.errorf("<%s> at line %d not inside a loop", gt.name, gt.line)
	}
	fs.errorf("no visible label '%s' for <goto> at line %d", gt.name, gt.line)
}
