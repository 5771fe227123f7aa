package vm

// ---------------------------------------------------------------------------
// Prototype: compiled function
// ---------------------------------------------------------------------------

// Prototype is the compiled, immutable description of one function: its
// code, constants, nested functions and debug information. A prototype
// is sealed by the compiler before it is attached to its parent and is
// not modified afterwards.
type Prototype struct {
	// Identity
	Source          string `cbor:"1,keyasint"` // chunk name
	LineDefined     int    `cbor:"2,keyasint"` // 0 for the main chunk
	LastLineDefined int    `cbor:"3,keyasint"`

	// Signature
	NumParams    int  `cbor:"4,keyasint"`
	IsVararg     bool `cbor:"5,keyasint"`
	MaxStackSize int  `cbor:"6,keyasint"` // registers needed by the function

	// Compiled code
	Code      []Instruction `cbor:"7,keyasint"`
	Constants []Value       `cbor:"8,keyasint"`
	Protos    []*Prototype  `cbor:"9,keyasint"`
	Upvalues  []UpvalueDesc `cbor:"10,keyasint"`

	// Debugging support
	LineInfo []int      `cbor:"11,keyasint,omitempty"` // source line per instruction
	LocVars  []LocalVar `cbor:"12,keyasint,omitempty"`
}

// LocalVar is the debug record of a local variable: it is live for
// instructions in [StartPC, EndPC).
type LocalVar struct {
	Name    string `cbor:"1,keyasint"`
	StartPC int    `cbor:"2,keyasint"`
	EndPC   int    `cbor:"3,keyasint"`
}

// UpvalueDesc tells the closure builder where to find an upvalue: in a
// register of the enclosing function (IsLocal) or among the enclosing
// function's own upvalues.
type UpvalueDesc struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	IsLocal bool   `cbor:"2,keyasint"`
	Index   int    `cbor:"3,keyasint"`
}

// Strip returns a deep copy of p without line information, local
// variable records or upvalue names.
func (p *Prototype) Strip() *Prototype {
	q := *p
	q.LineInfo = nil
	q.LocVars = nil
	q.Code = append([]Instruction(nil), p.Code...)
	q.Constants = append([]Value(nil), p.Constants...)
	q.Upvalues = make([]UpvalueDesc, len(p.Upvalues))
	for i, uv := range p.Upvalues {
		q.Upvalues[i] = UpvalueDesc{IsLocal: uv.IsLocal, Index: uv.Index}
	}
	q.Protos = make([]*Prototype, len(p.Protos))
	for i, child := range p.Protos {
		q.Protos[i] = child.Strip()
	}
	return &q
}

// Walk calls fn for p and every nested prototype, parents first.
func (p *Prototype) Walk(fn func(*Prototype)) {
	fn(p)
	for _, child := range p.Protos {
		child.Walk(fn)
	}
}

// Line returns the source line of the instruction at pc, or 0 if the
// prototype carries no line information.
func (p *Prototype) Line(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return p.LineInfo[pc]
}

// LocalName returns the name of the n-th (1-based) local variable active
// at pc, or "" if there is none.
func (p *Prototype) LocalName(n, pc int) string {
	for _, lv := range p.LocVars {
		if lv.StartPC > pc {
			break
		}
		if pc < lv.EndPC {
			n--
			if n == 0 {
				return lv.Name
			}
		}
	}
	return ""
}
