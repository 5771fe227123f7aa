package compiler

import "github.com/chazu/luma/vm"

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

func (fs *FuncState) searchUpvalue(name string) int {
	for i, uv := range fs.Proto.Upvalues {
		if uv.Name == name {
			return i
		}
	}
	return -1
}

// NewUpvalue appends an upvalue descriptor and returns its index.
func (fs *FuncState) NewUpvalue(name string, isLocal bool, index int) int {
	fs.checkLimit(len(fs.Proto.Upvalues)+1, maxUpvalues, "upvalues")
	fs.Proto.Upvalues = append(fs.Proto.Upvalues, vm.UpvalueDesc{Name: name, IsLocal: isLocal, Index: index})
	return len(fs.Proto.Upvalues) - 1
}

// MakeUpval resolves name, which is not a local of fs, as an upvalue of
// fs. An existing upvalue with that name is reused. Otherwise the
// enclosing functions are searched: a local of the immediately enclosing
// function is captured directly (and its block marked as needing to close
// it), anything further out is reached through the enclosing function's
// own upvalue. It reports false if no enclosing function knows the name.
func (fs *FuncState) MakeUpval(name string) (int, bool) {
	if idx := fs.searchUpvalue(name); idx >= 0 {
		return idx, true
	}
	parent := fs.enclosing()
	if parent == nil {
		return 0, false
	}
	if reg := parent.searchVar(name); reg >= 0 {
		parent.markUpval(reg)
		return fs.NewUpvalue(name, true, reg), true
	}
	idx, ok := parent.MakeUpval(name)
	if !ok {
		return 0, false
	}
	return fs.NewUpvalue(name, false, idx), true
}

// SingleVar resolves a name to a local, an upvalue or, failing both, the
// global _ENV[name].
func (fs *FuncState) SingleVar(name string) ExprDesc {
	if reg := fs.searchVar(name); reg >= 0 {
		return NewExpr(ExprLocal, reg)
	}
	if idx, ok := fs.MakeUpval(name); ok {
		return NewExpr(ExprUpvalue, idx)
	}
	assert(name != envName, "no _ENV in scope")
	env := fs.SingleVar(envName)
	return fs.Indexed(env, fs.StringExpr(name))
}
