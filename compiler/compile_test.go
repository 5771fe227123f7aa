package compiler

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/luma/vm"
)

func compileChunk(t *testing.T, src string) *vm.Prototype {
	t.Helper()
	p, err := Compile(src, "=test", Options{})
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return p
}

func abc(op vm.Opcode, a, b, c int) vm.Instruction { return vm.CreateABC(op, a, b, c) }
func abx(op vm.Opcode, a, bx int) vm.Instruction   { return vm.CreateABx(op, a, bx) }
func asbx(op vm.Opcode, a, sbx int) vm.Instruction { return vm.CreateAsBx(op, a, sbx) }
func k(i int) int                                  { return vm.AsConstant(i) }

func checkCode(t *testing.T, src string, p *vm.Prototype, want []vm.Instruction) {
	t.Helper()
	if len(p.Code) != len(want) {
		t.Errorf("%s: %d instructions, want %d\n%s", src, len(p.Code), len(want), vm.Disassemble(p))
		return
	}
	for pc := range want {
		if p.Code[pc] != want[pc] {
			t.Errorf("%s: pc %d = %v, want %v\n%s", src, pc, p.Code[pc], want[pc], vm.Disassemble(p))
		}
	}
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

func TestCompileListings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []vm.Instruction
	}{
		{
			name: "empty chunk",
			src:  ``,
			want: []vm.Instruction{abc(vm.OpReturn, 0, 1, 0)},
		},
		{
			name: "negative literal",
			src:  `local x = -3`,
			want: []vm.Instruction{
				abx(vm.OpLoadK, 0, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "folded arithmetic",
			src:  `local x = 1 + 2 * 3`,
			want: []vm.Instruction{
				abx(vm.OpLoadK, 0, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "unary minus on local",
			src:  `local a; return -a`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 0, 0),
				abc(vm.OpUnm, 1, 0, 0),
				abc(vm.OpReturn, 1, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "comparison value",
			src:  `local a, b; return a == b`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 1, 0),
				abc(vm.OpEq, 1, 0, 1),
				asbx(vm.OpJmp, 0, 1),
				abc(vm.OpLoadBool, 2, 0, 1),
				abc(vm.OpLoadBool, 2, 1, 0),
				abc(vm.OpReturn, 2, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "negated comparison",
			src:  `local a, b; return not (a == b)`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 1, 0),
				abc(vm.OpEq, 0, 0, 1),
				asbx(vm.OpJmp, 0, 1),
				abc(vm.OpLoadBool, 2, 0, 1),
				abc(vm.OpLoadBool, 2, 1, 0),
				abc(vm.OpReturn, 2, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "double negation",
			src:  `local x; return not not x`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 0, 0),
				abc(vm.OpNot, 1, 0, 0),
				abc(vm.OpNot, 1, 1, 0),
				abc(vm.OpReturn, 1, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "and value",
			src:  `local a, b; local c = a and b`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 1, 0),
				abc(vm.OpTestSet, 2, 0, 0),
				asbx(vm.OpJmp, 0, 1),
				abc(vm.OpMove, 2, 1, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "concat chain",
			src:  `local a, b, c; return a .. b .. c`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 2, 0),
				abc(vm.OpMove, 3, 0, 0),
				abc(vm.OpMove, 4, 1, 0),
				abc(vm.OpMove, 5, 2, 0),
				abc(vm.OpConcat, 3, 3, 5),
				abc(vm.OpReturn, 3, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "greater than swaps",
			src:  `local a, b; return a > b`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 1, 0),
				abc(vm.OpLt, 1, 1, 0),
				asbx(vm.OpJmp, 0, 1),
				abc(vm.OpLoadBool, 2, 0, 1),
				abc(vm.OpLoadBool, 2, 1, 0),
				abc(vm.OpReturn, 2, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "while loop",
			src:  `while x do end`,
			want: []vm.Instruction{
				abc(vm.OpGetTabUp, 0, 0, k(0)),
				abc(vm.OpTest, 0, 0, 0),
				asbx(vm.OpJmp, 0, 1),
				asbx(vm.OpJmp, 0, -4),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "numeric for",
			src:  `for i = 1, 3 do end`,
			want: []vm.Instruction{
				abx(vm.OpLoadK, 0, 0),
				abx(vm.OpLoadK, 1, 1),
				abx(vm.OpLoadK, 2, 0),
				asbx(vm.OpForPrep, 0, 0),
				asbx(vm.OpForLoop, 0, -1),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "table constructor",
			src:  `local t = {1, 2, x = 3}`,
			want: []vm.Instruction{
				abc(vm.OpNewTable, 0, 2, 1),
				abx(vm.OpLoadK, 1, 0),
				abx(vm.OpLoadK, 2, 1),
				abc(vm.OpSetTable, 0, k(2), k(3)),
				abc(vm.OpSetList, 0, 2, 1),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "method call statement",
			src:  `obj:m(1)`,
			want: []vm.Instruction{
				abc(vm.OpGetTabUp, 0, 0, k(0)),
				abc(vm.OpSelf, 0, 0, k(1)),
				abx(vm.OpLoadK, 2, 2),
				abc(vm.OpCall, 0, 3, 1),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "tail call",
			src:  `return f(x)`,
			want: []vm.Instruction{
				abc(vm.OpGetTabUp, 0, 0, k(0)),
				abc(vm.OpGetTabUp, 1, 0, k(1)),
				abc(vm.OpTailCall, 0, 2, 0),
				abc(vm.OpReturn, 0, 0, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "vararg adjust",
			src:  `local a, b = ...`,
			want: []vm.Instruction{
				abc(vm.OpVararg, 0, 3, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "closure captured in block",
			src:  `do local x; f = function() return x end end`,
			want: []vm.Instruction{
				abc(vm.OpLoadNil, 0, 0, 0),
				abx(vm.OpClosure, 1, 0),
				abc(vm.OpSetTabUp, 0, k(0), 1),
				asbx(vm.OpJmp, 1, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
		{
			name: "division by zero not folded",
			src:  `return 1 / 0`,
			want: []vm.Instruction{
				abc(vm.OpDiv, 0, k(1), k(0)),
				abc(vm.OpReturn, 0, 2, 0),
				abc(vm.OpReturn, 0, 1, 0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compileChunk(t, tt.src)
			checkCode(t, tt.src, p, tt.want)
		})
	}
}

func TestCompileConstants(t *testing.T) {
	p := compileChunk(t, `local a, b = 0, -0`)
	if len(p.Constants) != 2 {
		t.Fatalf("constants = %v, want 0 and -0", p.Constants)
	}
	if math.Signbit(p.Constants[0].N) || !math.Signbit(p.Constants[1].N) {
		t.Errorf("constants = %v, want [0, -0]", p.Constants)
	}

	p = compileChunk(t, `local x = 1 + 2 * 3`)
	if len(p.Constants) != 1 || p.Constants[0] != vm.Number(7) {
		t.Errorf("constants = %v, want [7]", p.Constants)
	}

	p = compileChunk(t, `local s = "a" .. "a"`)
	if len(p.Constants) != 1 || p.Constants[0] != vm.String("a") {
		t.Errorf("constants = %v, want [\"a\"]", p.Constants)
	}
}

func TestCompileMainFunction(t *testing.T) {
	p := compileChunk(t, `return`)
	if !p.IsVararg {
		t.Error("main function is not vararg")
	}
	if len(p.Upvalues) != 1 {
		t.Fatalf("upvalues = %v, want [_ENV]", p.Upvalues)
	}
	if uv := p.Upvalues[0]; uv.Name != "_ENV" || !uv.IsLocal || uv.Index != 0 {
		t.Errorf("upvalue = %+v", uv)
	}
	if p.Source != "=test" {
		t.Errorf("Source = %q", p.Source)
	}
}

func TestCompileNestedFunctions(t *testing.T) {
	src := `local x
local function f(a, b, ...)
  return function() return x, a end
end`
	p := compileChunk(t, src)
	if len(p.Protos) != 1 {
		t.Fatalf("main has %d functions, want 1", len(p.Protos))
	}
	f := p.Protos[0]
	if f.NumParams != 2 || !f.IsVararg {
		t.Errorf("f: NumParams = %d, IsVararg = %v", f.NumParams, f.IsVararg)
	}
	if f.LineDefined != 2 || f.LastLineDefined != 4 {
		t.Errorf("f: lines %d-%d, want 2-4", f.LineDefined, f.LastLineDefined)
	}
	if len(f.Protos) != 1 {
		t.Fatalf("f has %d functions, want 1", len(f.Protos))
	}
	g := f.Protos[0]
	want := []vm.UpvalueDesc{
		{Name: "x", IsLocal: false, Index: 0},
		{Name: "a", IsLocal: true, Index: 0},
	}
	if len(g.Upvalues) != len(want) {
		t.Fatalf("g upvalues = %+v, want %+v", g.Upvalues, want)
	}
	for i := range want {
		if g.Upvalues[i] != want[i] {
			t.Errorf("g upvalue %d = %+v, want %+v", i, g.Upvalues[i], want[i])
		}
	}
	if uv := f.Upvalues[0]; uv.Name != "x" || !uv.IsLocal || uv.Index != 0 {
		t.Errorf("f upvalue = %+v, want local x in register 0", uv)
	}
}

func TestCompileLineInfo(t *testing.T) {
	p := compileChunk(t, "local a = 1\nlocal b = 2")
	want := []int{1, 2, 2}
	if len(p.LineInfo) != len(want) {
		t.Fatalf("LineInfo = %v, want %v", p.LineInfo, want)
	}
	for i := range want {
		if p.LineInfo[i] != want[i] {
			t.Errorf("LineInfo = %v, want %v", p.LineInfo, want)
			break
		}
	}
}

func TestCompileLocals(t *testing.T) {
	p := compileChunk(t, "local a = 1\ndo local b = 2 end\nlocal c = 3")
	names := make([]string, len(p.LocVars))
	for i, lv := range p.LocVars {
		names[i] = lv.Name
	}
	if strings.Join(names, ",") != "a,b,c" {
		t.Fatalf("locals = %v", names)
	}
	b := p.LocVars[1]
	if b.StartPC != 2 || b.EndPC != 2 {
		t.Errorf("b live [%d, %d), want [2, 2)", b.StartPC, b.EndPC)
	}
	if got := p.LocalName(1, 1); got != "a" {
		t.Errorf("LocalName(1, 1) = %q, want a", got)
	}
}

func TestCompileStripDebug(t *testing.T) {
	p, err := Compile("local x = 1\nreturn function() return x end", "=test", Options{StripDebug: true})
	if err != nil {
		t.Fatal(err)
	}
	p.Walk(func(q *vm.Prototype) {
		if q.LineInfo != nil || q.LocVars != nil {
			t.Errorf("debug info left: %v %v", q.LineInfo, q.LocVars)
		}
		for _, uv := range q.Upvalues {
			if uv.Name != "" {
				t.Errorf("upvalue name %q left", uv.Name)
			}
		}
	})
}

func TestCompileBreakInNestedIf(t *testing.T) {
	p := compileChunk(t, `for i = 1, 10 do if i == 5 then break end end`)
	forLoop := -1
	for pc, i := range p.Code {
		if i.Opcode() == vm.OpForLoop {
			forLoop = pc
		}
	}
	if forLoop < 0 {
		t.Fatalf("no FORLOOP\n%s", vm.Disassemble(p))
	}
	for pc, i := range p.Code {
		if i.Opcode() == vm.OpJmp && pc+1+i.SBx() == forLoop+1 {
			return
		}
	}
	t.Errorf("no jump leaves the loop\n%s", vm.Disassemble(p))
}

func TestCompileGotoContinue(t *testing.T) {
	src := `for i = 1, 3 do
  if i == 2 then goto continue end
  local x = i
  ::continue::
end`
	compileChunk(t, src)
}

func TestCompileAllJumpsInRange(t *testing.T) {
	src := `
local t = {}
for i = 1, 10 do
  if i % 2 == 0 and i > 4 or i == 1 then
    t[#t + 1] = i
  elseif not (i < 3) then
    t.x = (t.x or 0) + i
  else
    repeat local y = i; i = i - 1 until y < 0 or i <= 0
  end
end
for k, v in pairs(t) do print(k, v) end
while true do
  local f = function() return t end
  if f() then break end
end
return t, ...
`
	p := compileChunk(t, src)
	p.Walk(func(q *vm.Prototype) {
		for pc, i := range q.Code {
			switch i.Opcode() {
			case vm.OpJmp, vm.OpForLoop, vm.OpForPrep, vm.OpTForLoop:
				target := pc + 1 + i.SBx()
				if target < 0 || target >= len(q.Code) {
					t.Errorf("pc %d: %v targets %d outside [0, %d)", pc, i, target, len(q.Code))
				}
			}
			if i.Opcode().IsTest() {
				if pc+1 >= len(q.Code) || q.Code[pc+1].Opcode() != vm.OpJmp {
					t.Errorf("pc %d: %v not followed by a jump", pc, i)
				}
			}
		}
		if q.MaxStackSize > maxRegisters {
			t.Errorf("MaxStackSize = %d", q.MaxStackSize)
		}
	})
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.luma")
	if err := os.WriteFile(path, []byte("print('hello')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := CompileFile(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != "@"+path {
		t.Errorf("Source = %q, want %q", p.Source, "@"+path)
	}

	if _, err := CompileFile(filepath.Join(dir, "missing.luma"), Options{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestMustCompilePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCompile did not panic")
		}
	}()
	MustCompile("local = 1")
}

// ---------------------------------------------------------------------------
// Register discipline
// ---------------------------------------------------------------------------

// lastStatementRegisters compiles src statement by statement and returns
// the registers still in use, above the active locals, right after the
// statement on the last line.
func lastStatementRegisters(t *testing.T, src string) int {
	t.Helper()
	last := strings.Count(src, "\n") + 1
	p := NewParser(src, "=test")
	live := 0
	err := catch(func() {
		p.nextToken()
		p.nextToken()
		p.fs = newMain()
		for p.curToken.Pos.Line < last {
			p.statement()
		}
		p.simpleStatement()
		live = p.fs.FreeReg() - p.fs.ActiveVars()
	})
	if err != nil {
		t.Fatalf("%q: %v", src, err)
	}
	return live
}

func TestStatementsReleaseTemporaries(t *testing.T) {
	const locals = "local a, b, c, t = 1, 2, 3, {}\n"
	tests := []struct {
		stmt string
		live int
	}{
		{"local x = a + b", 0},
		{"local x, y = 1", 0},
		{"local x, y, z = a, b", 0},
		{"local x = a and b or c", 0},
		{"a, b = b, a", 0},
		{"a, b, c = 1", 0},
		{"a = b * c + 1", 0},
		{"g = -a", 0},
		{"t.x = a", 0},
		{"t[a] = b + 1", 0},
		{"if a == b then c = 1 elseif a then c = 2 else c = 3 end", 0},
		{"while a do a = false end", 0},
		{"repeat a = a - 1 until a == 0", 0},
		{"for i = 1, 3 do a = i end", 0},
		{"for k, v in pairs(t) do a = v end", 0},
		{"do local z = a + 1 end", 0},
		{"local function f() return a end", 0},
		{"function t.m(self) end", 0},

		// Calls and returns keep their base register.
		{"t:m()", 1},
		{"print(a, b)", 1},
		{"return -a", 1},
	}
	for _, tt := range tests {
		if got := lastStatementRegisters(t, locals+tt.stmt); got != tt.live {
			t.Errorf("%q leaves %d registers in use, want %d", tt.stmt, got, tt.live)
		}
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`x = = 1`, "test:1: unexpected symbol near '='"},
		{`local function`, "test:1: <name> expected near <eof>"},
		{`if x then`, "test:1: 'end' expected near <eof>"},
		{"if x then\n\n", "'end' expected (to close 'if' at line 1) near <eof>"},
		{`x = "abc`, `test:1: unfinished string near '"abc'`},
		{`function g() return ... end`, "cannot use '...' outside a vararg function near '...'"},
		{`x`, "test:1: syntax error near <eof>"},
		{`f() = 1`, "syntax error near '='"},
		{`for i do end`, "'=' or 'in' expected near 'do'"},
		{`f(`, "unexpected symbol near <eof>"},
		{`return 1 2`, "<eof> expected near '2'"},
		{`return return`, "unexpected symbol near 'return'"},
		{`goto nowhere`, "no visible label 'nowhere' for <goto> at line 1"},
		{`break`, "<break> at line 1 not inside a loop"},
		{`::a:: ::a::`, "label 'a' already defined on line 1"},
		{`goto f; local x; ::f:: print(x)`, "<goto f> at line 1 jumps into the scope of local 'x'"},
		{`x = 3x`, "malformed number near '3x'"},
	}

	for _, tt := range tests {
		_, err := Compile(tt.src, "=test", Options{})
		if err == nil {
			t.Errorf("Compile(%q) succeeded, want %q", tt.src, tt.want)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Compile(%q) = %q, want %q", tt.src, err.Error(), tt.want)
		}
		var ce *Error
		if !errors.As(err, &ce) {
			t.Errorf("Compile(%q): error is %T, want *Error", tt.src, err)
		}
	}
}

func TestCompileValidGotos(t *testing.T) {
	for _, src := range []string{
		`do goto f; local x; ::f:: end`,
		`::top:: goto top`,
		`while true do goto out end ::out::`,
		`if false then goto x end ::x::`,
	} {
		if _, err := Compile(src, "=test", Options{}); err != nil {
			t.Errorf("Compile(%q): %v", src, err)
		}
	}
}

func TestCompileLimits(t *testing.T) {
	names := make([]string, maxLocals+1)
	for i := range names {
		names[i] = "v" + strings.Repeat("x", i%7) + string(rune('a'+i%26))
	}
	_, err := Compile("local "+strings.Join(names, ", "), "=test", Options{})
	if err == nil || !strings.Contains(err.Error(), "too many local variables (limit is 200) in main function") {
		t.Errorf("locals: err = %v", err)
	}

	deep := strings.Repeat("(", maxSyntaxLevels+10) + "1" + strings.Repeat(")", maxSyntaxLevels+10)
	_, err = Compile("return "+deep, "=test", Options{})
	if err == nil || !strings.Contains(err.Error(), "chunk has too many syntax levels") {
		t.Errorf("nesting: err = %v", err)
	}
}

func TestErrorLine(t *testing.T) {
	_, err := Compile("local a = 1\nlocal b = = 2", "@prog.luma", Options{})
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Line != 2 {
		t.Errorf("Line = %d, want 2", ce.Line)
	}
	if !strings.HasPrefix(err.Error(), "prog.luma:2:") {
		t.Errorf("err = %q, want prog.luma:2: prefix", err.Error())
	}
}
