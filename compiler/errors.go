package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Compile errors
// ---------------------------------------------------------------------------

// Error is a compile error in user source: a syntax error, a violated
// scoping rule or an exceeded limit. Compile returns it as an error.
type Error struct {
	Source string // chunk name
	Line   int    // 1-based line number
	Msg    string
	Near   string // offending token as quoted in messages, if any
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:%d: %s", vm.ChunkID(e.Source), e.Line, e.Msg)
	if e.Near != "" {
		fmt.Fprintf(&sb, " near %s", e.Near)
	}
	return sb.String()
}

// InternalError reports a broken code generator invariant, i.e. a bug in
// the compiler or in a caller driving FuncState directly. It is raised
// with panic and never returned by Compile.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "compiler: internal error: " + e.Msg
}

// assert panics with an InternalError if cond is false.
func assert(cond bool, msg string) {
	if !cond {
		panic(&InternalError{Msg: msg})
	}
}

// catch recovers a compile Error raised during fn and returns it. Other
// panics propagate.
func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*Error); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}
