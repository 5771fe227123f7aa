package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

const maxChunkID = 60

// ChunkID converts a chunk name into the form used in messages:
// "@file" names a file, "=name" is used verbatim, anything else is
// source text shown as [string "..."].
func ChunkID(source string) string {
	switch {
	case strings.HasPrefix(source, "="):
		return truncate(source[1:], maxChunkID)
	case strings.HasPrefix(source, "@"):
		name := source[1:]
		if len(name) > maxChunkID {
			return "..." + name[len(name)-maxChunkID+3:]
		}
		return name
	}
	line, _, multi := strings.Cut(source, "\n")
	if multi || len(line) > maxChunkID-15 {
		return `[string "` + truncate(line, maxChunkID-15) + `..."]`
	}
	return `[string "` + line + `"]`
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// DisassembleInstruction renders the instruction at pc with its line
// number and a comment resolving constants, upvalues and jump targets.
func DisassembleInstruction(p *Prototype, pc int) string {
	i := p.Code[pc]
	line := "-"
	if l := p.Line(pc); l > 0 {
		line = fmt.Sprint(l)
	}
	s := fmt.Sprintf("%04d  [%s]  %s", pc+1, line, i)
	if c := comment(p, pc, i); c != "" {
		s += "  ; " + c
	}
	return s
}

func comment(p *Prototype, pc int, i Instruction) string {
	constant := func(k int) string {
		if k < 0 || k >= len(p.Constants) {
			return "?"
		}
		return p.Constants[k].String()
	}
	rk := func(x int) string {
		if IsConstant(x) {
			return constant(ConstantIndex(x))
		}
		return ""
	}
	upval := func(n int) string {
		if n < len(p.Upvalues) && p.Upvalues[n].Name != "" {
			return p.Upvalues[n].Name
		}
		return "-"
	}
	join := func(parts ...string) string {
		var out []string
		for _, part := range parts {
			if part != "" {
				out = append(out, part)
			}
		}
		return strings.Join(out, " ")
	}

	switch op := i.Opcode(); op {
	case OpLoadK:
		return constant(i.Bx())
	case OpGetUpval, OpSetUpval:
		return upval(i.B())
	case OpGetTabUp:
		return join(upval(i.B()), rk(i.C()))
	case OpSetTabUp:
		return join(upval(i.A()), rk(i.B()), rk(i.C()))
	case OpGetTable, OpSelf:
		return rk(i.C())
	case OpSetTable, OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpEq, OpLt, OpLe:
		return join(rk(i.B()), rk(i.C()))
	case OpJmp, OpForLoop, OpForPrep, OpTForLoop:
		return fmt.Sprintf("to %d", pc+2+i.SBx())
	case OpClosure:
		return fmt.Sprintf("function #%d", i.Bx())
	case OpSetList:
		if i.C() == 0 && pc+1 < len(p.Code) {
			return fmt.Sprintf("batch %d", p.Code[pc+1].Ax())
		}
	}
	return ""
}

// Disassemble returns a full listing of p and its nested prototypes.
func Disassemble(p *Prototype) string {
	var b strings.Builder
	disassemble(&b, p, true)
	return b.String()
}

func disassemble(b *strings.Builder, p *Prototype, main bool) {
	kind := "function"
	if main {
		kind = "main"
	}
	fmt.Fprintf(b, "%s <%s:%d,%d> (%d instructions)\n",
		kind, ChunkID(p.Source), p.LineDefined, p.LastLineDefined, len(p.Code))
	vararg := ""
	if p.IsVararg {
		vararg = "+"
	}
	fmt.Fprintf(b, "%d%s params, %d slots, %d upvalues, %d locals, %d constants, %d functions\n",
		p.NumParams, vararg, p.MaxStackSize, len(p.Upvalues), len(p.LocVars), len(p.Constants), len(p.Protos))
	for pc := range p.Code {
		b.WriteString(DisassembleInstruction(p, pc))
		b.WriteByte('\n')
	}

	fmt.Fprintf(b, "constants (%d):\n", len(p.Constants))
	for k, v := range p.Constants {
		fmt.Fprintf(b, "  %d  %s\n", k+1, v)
	}
	fmt.Fprintf(b, "locals (%d):\n", len(p.LocVars))
	for n, lv := range p.LocVars {
		fmt.Fprintf(b, "  %d  %s  %d  %d\n", n, lv.Name, lv.StartPC+1, lv.EndPC+1)
	}
	fmt.Fprintf(b, "upvalues (%d):\n", len(p.Upvalues))
	for n, uv := range p.Upvalues {
		local := 0
		if uv.IsLocal {
			local = 1
		}
		fmt.Fprintf(b, "  %d  %s  %d  %d\n", n, uv.Name, local, uv.Index)
	}
	for _, child := range p.Protos {
		b.WriteByte('\n')
		disassemble(b, child, false)
	}
}
