package compiler

import (
	"fmt"

	"github.com/chazu/luma/vm"
)

// maxSyntaxLevels bounds the nesting of statements and expressions.
const maxSyntaxLevels = 200

// ---------------------------------------------------------------------------
// Parser: single-pass recursive descent driving the code generator
// ---------------------------------------------------------------------------

// Parser reads a chunk and emits code for it as it goes; there is no
// intermediate syntax tree.
type Parser struct {
	lexer     *Lexer
	source    string // chunk name
	curToken  Token
	peekToken Token
	lastLine  int // line of the last consumed token
	fs        *FuncState
	depth     int
}

// NewParser creates a parser for input. chunkName names the chunk in
// errors and debug information ("@file", "=name" or the source itself).
func NewParser(input, chunkName string) *Parser {
	return &Parser{
		lexer:    NewLexer(input),
		source:   chunkName,
		lastLine: 1,
	}
}

// Parse compiles the chunk into the prototype of its main function.
func (p *Parser) Parse() (*vm.Prototype, error) {
	var proto *vm.Prototype
	err := catch(func() {
		p.nextToken()
		p.nextToken()
		proto = p.mainFunc()
	})
	if err != nil {
		return nil, err
	}
	return proto, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.lastLine = p.curToken.Pos.Line
	if p.lastLine == 0 {
		p.lastLine = 1
	}
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.fs != nil {
		p.fs.SetLine(p.lastLine)
	}
	if p.curToken.Type == TokenError {
		panic(&Error{Source: p.source, Line: p.curToken.Pos.Line, Msg: p.curToken.Literal, Near: "'" + p.curToken.Raw + "'"})
	}
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// testNext advances if the current token is t.
func (p *Parser) testNext(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) check(t TokenType) {
	if !p.curTokenIs(t) {
		p.errorf("%s expected", quoteToken(t))
	}
}

func (p *Parser) checkNext(t TokenType) {
	p.check(t)
	p.nextToken()
}

// checkMatch consumes the token closing a construct opened by who at
// line.
func (p *Parser) checkMatch(what, who TokenType, line int) {
	if p.testNext(what) {
		return
	}
	if line == p.curToken.Pos.Line {
		p.errorf("%s expected", quoteToken(what))
	}
	p.errorf("%s expected (to close %s at line %d)", quoteToken(what), quoteToken(who), line)
}

func (p *Parser) checkName() string {
	p.check(TokenName)
	name := p.curToken.Literal
	p.nextToken()
	return name
}

// errorf aborts with a syntax error near the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	panic(&Error{
		Source: p.source,
		Line:   p.curToken.Pos.Line,
		Msg:    fmt.Sprintf(format, args...),
		Near:   nearText(p.curToken),
	})
}

// quoteToken renders a token type the way messages show it: symbols and
// reserved words quoted, token classes bare.
func quoteToken(t TokenType) string {
	switch t {
	case TokenEOF, TokenNumber, TokenString, TokenName, TokenError:
		return t.String()
	}
	return "'" + t.String() + "'"
}

func nearText(tok Token) string {
	switch tok.Type {
	case TokenName, TokenString, TokenNumber:
		return "'" + tok.Raw + "'"
	}
	return quoteToken(tok.Type)
}

func (p *Parser) enterLevel() {
	p.depth++
	if p.depth > maxSyntaxLevels {
		p.errorf("chunk has too many syntax levels")
	}
}

func (p *Parser) leaveLevel() {
	p.depth--
}

// blockFollow reports whether the current token ends a block.
func (p *Parser) blockFollow(withUntil bool) bool {
	switch p.curToken.Type {
	case TokenElse, TokenElseif, TokenEnd, TokenEOF:
		return true
	case TokenUntil:
		return withUntil
	}
	return false
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// mainFunc compiles the chunk as a vararg function with _ENV as its only
// upvalue.
func (p *Parser) mainFunc() *vm.Prototype {
	fs := NewFuncState(p.source)
	p.fs = fs
	fs.SetLine(p.lastLine)
	fs.EnterBlock(false)
	fs.Proto.IsVararg = true
	fs.NewUpvalue(envName, true, 0)
	p.statList()
	p.check(TokenEOF)
	fs.Close()
	p.fs = nil
	return fs.Proto
}

// body compiles a function body (parameters through 'end') and leaves the
// closure in the next register of the enclosing function.
func (p *Parser) body(isMethod bool, line int) ExprDesc {
	parent := p.fs
	fs := parent.Open(line)
	p.fs = fs
	p.checkNext(TokenLParen)
	if isMethod {
		fs.NewLocalVar("self")
		fs.AdjustLocalVars(1)
	}
	p.parList()
	p.checkNext(TokenRParen)
	p.statList()
	fs.Proto.LastLineDefined = p.curToken.Pos.Line
	p.checkMatch(TokenEnd, TokenFunction, line)
	idx := fs.Close()
	p.fs = parent
	e := NewExpr(ExprRelocatable, parent.codeABx(vm.OpClosure, 0, idx))
	return parent.Exp2NextReg(e)
}

func (p *Parser) parList() {
	fs := p.fs
	nparams := 0
	isVararg := false
	if !p.curTokenIs(TokenRParen) {
		for {
			switch p.curToken.Type {
			case TokenName:
				fs.NewLocalVar(p.checkName())
				nparams++
			case TokenDots:
				p.nextToken()
				isVararg = true
			default:
				p.errorf("<name> or '...' expected")
			}
			if isVararg || !p.testNext(TokenComma) {
				break
			}
		}
	}
	fs.AdjustLocalVars(nparams)
	fs.Proto.IsVararg = isVararg
	fs.Proto.NumParams = fs.nactvar
	fs.ReserveRegs(fs.nactvar)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) statList() {
	for !p.blockFollow(true) {
		if p.curTokenIs(TokenReturn) {
			p.statement()
			return
		}
		p.statement()
	}
}

func (p *Parser) block() {
	p.fs.EnterBlock(false)
	p.statList()
	p.fs.LeaveBlock()
}

func (p *Parser) statement() {
	p.enterLevel()
	p.simpleStatement()
	fs := p.fs
	assert(fs.Proto.MaxStackSize >= fs.freeReg && fs.freeReg >= fs.nactvar, "register level out of range after statement")
	fs.freeReg = fs.nactvar
	p.leaveLevel()
}

// simpleStatement compiles one statement without releasing the registers
// it leaves in use. Calls, returns and stores through nested fields may
// leave some; everything else leaves none.
func (p *Parser) simpleStatement() {
	line := p.curToken.Pos.Line
	switch p.curToken.Type {
	case TokenSemicolon:
		p.nextToken()
	case TokenIf:
		p.ifStat(line)
	case TokenWhile:
		p.whileStat(line)
	case TokenDo:
		p.nextToken()
		p.block()
		p.checkMatch(TokenEnd, TokenDo, line)
	case TokenFor:
		p.forStat(line)
	case TokenRepeat:
		p.repeatStat(line)
	case TokenFunction:
		p.funcStat(line)
	case TokenLocal:
		p.nextToken()
		if p.testNext(TokenFunction) {
			p.localFunc()
		} else {
			p.localStat()
		}
	case TokenDbColon:
		p.nextToken()
		p.labelStat(p.checkName(), line)
	case TokenReturn:
		p.nextToken()
		p.retStat()
	case TokenBreak, TokenGoto:
		p.gotoStat(p.fs.Jump())
	default:
		p.exprStat()
	}
}

// cond compiles a loop or branch condition and returns its false exits.
func (p *Parser) cond() JumpList {
	e := p.expr()
	if e.Kind == ExprNil {
		e.Kind = ExprFalse
	}
	e = p.fs.GoIfTrue(e)
	return e.F
}

// testThenBlock compiles "[if|elseif] cond then block" and adds its exit
// jump to escapes.
func (p *Parser) testThenBlock(escapes JumpList) JumpList {
	fs := p.fs
	var jf JumpList
	p.nextToken()
	e := p.expr()
	p.checkNext(TokenThen)
	if p.curTokenIs(TokenGoto) || p.curTokenIs(TokenBreak) {
		e = fs.GoIfFalse(e)
		fs.EnterBlock(false)
		p.gotoStat(e.T)
		for p.testNext(TokenSemicolon) {
		}
		if p.blockFollow(false) {
			fs.LeaveBlock()
			return escapes
		}
		jf = fs.Jump()
	} else {
		e = fs.GoIfTrue(e)
		fs.EnterBlock(false)
		jf = e.F
	}
	p.statList()
	fs.LeaveBlock()
	if p.curTokenIs(TokenElse) || p.curTokenIs(TokenElseif) {
		escapes = fs.Concat(escapes, fs.Jump())
	}
	fs.PatchToHere(jf)
	return escapes
}

func (p *Parser) ifStat(line int) {
	escapes := p.testThenBlock(NoJump)
	for p.curTokenIs(TokenElseif) {
		escapes = p.testThenBlock(escapes)
	}
	if p.testNext(TokenElse) {
		p.block()
	}
	p.checkMatch(TokenEnd, TokenIf, line)
	p.fs.PatchToHere(escapes)
}

func (p *Parser) whileStat(line int) {
	fs := p.fs
	p.nextToken()
	whileInit := fs.Label()
	condExit := p.cond()
	fs.EnterBlock(true)
	p.checkNext(TokenDo)
	p.block()
	fs.JumpTo(whileInit)
	p.checkMatch(TokenEnd, TokenWhile, line)
	fs.LeaveBlock()
	fs.PatchToHere(condExit)
}

func (p *Parser) repeatStat(line int) {
	fs := p.fs
	repeatInit := fs.Label()
	fs.EnterBlock(true)
	fs.EnterBlock(false)
	p.nextToken()
	p.statList()
	p.checkMatch(TokenUntil, TokenRepeat, line)
	condExit := p.cond()
	if scope := *fs.block(); scope.hasUpval {
		fs.PatchClose(condExit, scope.nactvar)
	}
	fs.LeaveBlock()
	fs.PatchList(condExit, repeatInit)
	fs.LeaveBlock()
}

func (p *Parser) forStat(line int) {
	fs := p.fs
	fs.EnterBlock(true)
	p.nextToken()
	name := p.checkName()
	switch p.curToken.Type {
	case TokenAssign:
		p.forNum(name, line)
	case TokenComma, TokenIn:
		p.forList(name)
	default:
		p.errorf("'=' or 'in' expected")
	}
	p.checkMatch(TokenEnd, TokenFor, line)
	fs.LeaveBlock()
}

func (p *Parser) exp1() {
	p.fs.Exp2NextReg(p.expr())
}

func (p *Parser) forNum(name string, line int) {
	fs := p.fs
	base := fs.freeReg
	fs.NewLocalVar("(for index)")
	fs.NewLocalVar("(for limit)")
	fs.NewLocalVar("(for step)")
	fs.NewLocalVar(name)
	p.checkNext(TokenAssign)
	p.exp1()
	p.checkNext(TokenComma)
	p.exp1()
	if p.testNext(TokenComma) {
		p.exp1()
	} else {
		fs.codeK(fs.freeReg, fs.NumberConstant(1))
		fs.ReserveRegs(1)
	}
	p.forBody(base, line, 1, true)
}

func (p *Parser) forList(name string) {
	fs := p.fs
	base := fs.freeReg
	fs.NewLocalVar("(for generator)")
	fs.NewLocalVar("(for state)")
	fs.NewLocalVar("(for control)")
	fs.NewLocalVar(name)
	nvars := 4
	for p.testNext(TokenComma) {
		fs.NewLocalVar(p.checkName())
		nvars++
	}
	p.checkNext(TokenIn)
	line := p.curToken.Pos.Line
	e, n := p.exprList()
	p.adjustAssign(3, n, e)
	fs.CheckStack(3)
	p.forBody(base, line, nvars-3, false)
}

// forBody compiles the body of a for loop whose control registers start
// at base.
func (p *Parser) forBody(base, line, nvars int, isNum bool) {
	fs := p.fs
	fs.AdjustLocalVars(3)
	p.checkNext(TokenDo)
	var prep JumpList
	if isNum {
		prep = listAt(fs.codeAsBx(vm.OpForPrep, base, noJumpOffset))
	} else {
		prep = fs.Jump()
	}
	fs.EnterBlock(false)
	fs.AdjustLocalVars(nvars)
	fs.ReserveRegs(nvars)
	p.block()
	fs.LeaveBlock()
	fs.PatchToHere(prep)
	var endFor int
	if isNum {
		endFor = fs.codeAsBx(vm.OpForLoop, base, noJumpOffset)
	} else {
		fs.codeABC(vm.OpTForCall, base, 0, nvars)
		fs.FixLine(line)
		endFor = fs.codeAsBx(vm.OpTForLoop, base+2, noJumpOffset)
	}
	fs.PatchList(listAt(endFor), prep.Head()+1)
	fs.FixLine(line)
}

func (p *Parser) funcName() (ExprDesc, bool) {
	v := p.singleVar()
	for p.curTokenIs(TokenDot) {
		v = p.fieldSel(v)
	}
	if p.curTokenIs(TokenColon) {
		return p.fieldSel(v), true
	}
	return v, false
}

func (p *Parser) funcStat(line int) {
	p.nextToken()
	v, isMethod := p.funcName()
	b := p.body(isMethod, line)
	p.fs.StoreVar(v, b)
	p.fs.FixLine(line)
}

func (p *Parser) localFunc() {
	fs := p.fs
	fs.NewLocalVar(p.checkName())
	fs.AdjustLocalVars(1)
	b := p.body(false, p.curToken.Pos.Line)
	fs.localVar(b.Info).StartPC = fs.PC()
}

func (p *Parser) localStat() {
	fs := p.fs
	nvars := 0
	for {
		fs.NewLocalVar(p.checkName())
		nvars++
		if !p.testNext(TokenComma) {
			break
		}
	}
	var e ExprDesc
	nexps := 0
	if p.testNext(TokenAssign) {
		e, nexps = p.exprList()
	}
	p.adjustAssign(nvars, nexps, e)
	fs.AdjustLocalVars(nvars)
}

// adjustAssign makes nexps values, the last of which is e, fill exactly
// nvars registers.
func (p *Parser) adjustAssign(nvars, nexps int, e ExprDesc) {
	fs := p.fs
	extra := nvars - nexps
	if e.HasMultRet() {
		extra++
		if extra < 0 {
			extra = 0
		}
		fs.SetReturns(e, extra)
		if extra > 1 {
			fs.ReserveRegs(extra - 1)
		}
		return
	}
	if e.Kind != ExprVoid {
		fs.Exp2NextReg(e)
	}
	if extra > 0 {
		reg := fs.freeReg
		fs.ReserveRegs(extra)
		fs.LoadNil(reg, extra)
	}
}

func (p *Parser) labelStat(name string, line int) {
	p.checkNext(TokenDbColon)
	for p.testNext(TokenSemicolon) {
	}
	p.fs.MakeLabel(name, line, p.blockFollow(false))
}

// gotoStat records a goto or break whose jump list is pc.
func (p *Parser) gotoStat(pc JumpList) {
	line := p.curToken.Pos.Line
	name := breakName
	if p.testNext(TokenGoto) {
		name = p.checkName()
	} else {
		p.nextToken()
	}
	p.fs.MakeGoto(name, line, pc)
}

func (p *Parser) retStat() {
	fs := p.fs
	first, nret := 0, 0
	if !p.blockFollow(true) && !p.curTokenIs(TokenSemicolon) {
		var e ExprDesc
		e, nret = p.exprList()
		switch {
		case e.HasMultRet():
			fs.SetMultRet(e)
			if e.Kind == ExprCall && nret == 1 {
				i := fs.instr(e)
				i.SetOpcode(vm.OpTailCall)
				assert(i.A() == fs.nactvar, "tail call base is not the first free local")
			}
			first, nret = fs.nactvar, vm.MultRet
		case nret == 1:
			first = fs.Exp2AnyReg(e).Info
		default:
			fs.Exp2NextReg(e)
			first = fs.nactvar
			assert(nret == fs.freeReg-first, "return values not in consecutive registers")
		}
	}
	fs.Ret(first, nret)
	p.testNext(TokenSemicolon)
}

// exprStat compiles a call statement or an assignment.
func (p *Parser) exprStat() {
	v := p.suffixedExp()
	if p.curTokenIs(TokenAssign) || p.curTokenIs(TokenComma) {
		p.assignment([]*ExprDesc{&v})
		return
	}
	if v.Kind != ExprCall {
		p.errorf("syntax error")
	}
	p.fs.instr(v).SetC(1)
}

// checkConflict protects earlier targets of a multiple assignment that
// index through the local or upvalue v, which is assigned before them, by
// copying v to a fresh register first.
func (p *Parser) checkConflict(lhs []*ExprDesc, v ExprDesc) {
	fs := p.fs
	extra := fs.freeReg
	conflict := false
	for _, lh := range lhs {
		if lh.Kind != ExprIndexed {
			continue
		}
		sameKind := (lh.TableKind == TableLocal && v.Kind == ExprLocal) ||
			(lh.TableKind == TableUpvalue && v.Kind == ExprUpvalue)
		if sameKind && lh.Table == v.Info {
			conflict = true
			lh.TableKind = TableLocal
			lh.Table = extra
		}
		if v.Kind == ExprLocal && lh.Key == v.Info {
			conflict = true
			lh.Key = extra
		}
	}
	if conflict {
		op := vm.OpMove
		if v.Kind == ExprUpvalue {
			op = vm.OpGetUpval
		}
		fs.codeABC(op, extra, v.Info, 0)
		fs.ReserveRegs(1)
	}
}

// assignment compiles the rest of "lhs {, var} = exprlist". The values
// are stored right to left as the recursion unwinds.
func (p *Parser) assignment(lhs []*ExprDesc) {
	fs := p.fs
	target := lhs[len(lhs)-1]
	if !target.IsVariable() {
		p.errorf("syntax error")
	}
	if p.testNext(TokenComma) {
		v := p.suffixedExp()
		if v.Kind != ExprIndexed {
			p.checkConflict(lhs, v)
		}
		p.enterLevel()
		p.assignment(append(lhs, &v))
		p.leaveLevel()
	} else {
		p.checkNext(TokenAssign)
		e, nexps := p.exprList()
		nvars := len(lhs)
		if nexps == nvars {
			e = fs.SetOneRet(e)
			fs.StoreVar(*target, e)
			return
		}
		p.adjustAssign(nvars, nexps, e)
		if nexps > nvars {
			fs.freeReg -= nexps - nvars
		}
	}
	fs.StoreVar(*target, NewExpr(ExprNonRelocatable, fs.freeReg-1))
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) singleVar() ExprDesc {
	return p.fs.SingleVar(p.checkName())
}

func (p *Parser) fieldSel(v ExprDesc) ExprDesc {
	fs := p.fs
	v = fs.Exp2AnyRegUp(v)
	p.nextToken()
	key := fs.StringExpr(p.checkName())
	return fs.Indexed(v, key)
}

func (p *Parser) yIndex() ExprDesc {
	p.nextToken()
	e := p.fs.Exp2Val(p.expr())
	p.checkNext(TokenRBracket)
	return e
}

func (p *Parser) primaryExp() ExprDesc {
	switch p.curToken.Type {
	case TokenName:
		return p.singleVar()
	case TokenLParen:
		line := p.curToken.Pos.Line
		p.nextToken()
		e := p.expr()
		p.checkMatch(TokenRParen, TokenLParen, line)
		return p.fs.DischargeVars(e)
	}
	p.errorf("unexpected symbol")
	return ExprDesc{}
}

func (p *Parser) suffixedExp() ExprDesc {
	fs := p.fs
	line := p.curToken.Pos.Line
	v := p.primaryExp()
	for {
		switch p.curToken.Type {
		case TokenDot:
			v = p.fieldSel(v)
		case TokenLBracket:
			v = fs.Exp2AnyRegUp(v)
			v = fs.Indexed(v, p.yIndex())
		case TokenColon:
			p.nextToken()
			key := fs.StringExpr(p.checkName())
			v = p.funcArgs(fs.Self(v, key), line)
		case TokenLParen, TokenString, TokenLBrace:
			v = p.funcArgs(fs.Exp2NextReg(v), line)
		default:
			return v
		}
	}
}

// funcArgs compiles the arguments of a call of f, which is already in
// its register, and emits the CALL.
func (p *Parser) funcArgs(f ExprDesc, line int) ExprDesc {
	fs := p.fs
	var args ExprDesc
	switch p.curToken.Type {
	case TokenLParen:
		p.nextToken()
		if !p.curTokenIs(TokenRParen) {
			args, _ = p.exprList()
			fs.SetMultRet(args)
		}
		p.checkMatch(TokenRParen, TokenLParen, line)
	case TokenLBrace:
		args = p.constructor()
	case TokenString:
		args = fs.StringExpr(p.curToken.Literal)
		p.nextToken()
	default:
		p.errorf("function arguments expected")
	}
	assert(f.Kind == ExprNonRelocatable, "call of a value not in a register")
	base := f.Info
	var nparams int
	if args.HasMultRet() {
		nparams = vm.MultRet
	} else {
		if args.Kind != ExprVoid {
			fs.Exp2NextReg(args)
		}
		nparams = fs.freeReg - (base + 1)
	}
	e := NewExpr(ExprCall, fs.codeABC(vm.OpCall, base, nparams+1, 2))
	fs.FixLine(line)
	fs.freeReg = base + 1
	return e
}

func (p *Parser) simpleExp() ExprDesc {
	fs := p.fs
	var e ExprDesc
	switch p.curToken.Type {
	case TokenNumber:
		e = NumberExpr(p.curToken.Num)
	case TokenString:
		e = fs.StringExpr(p.curToken.Literal)
	case TokenNil:
		e = NewExpr(ExprNil, 0)
	case TokenTrue:
		e = NewExpr(ExprTrue, 0)
	case TokenFalse:
		e = NewExpr(ExprFalse, 0)
	case TokenDots:
		if !fs.Proto.IsVararg {
			p.errorf("cannot use '...' outside a vararg function")
		}
		e = NewExpr(ExprVararg, fs.codeABC(vm.OpVararg, 0, 1, 0))
	case TokenLBrace:
		return p.constructor()
	case TokenFunction:
		p.nextToken()
		return p.body(false, p.curToken.Pos.Line)
	default:
		return p.suffixedExp()
	}
	p.nextToken()
	return e
}

func unaryOpOf(t TokenType) (UnaryOp, bool) {
	switch t {
	case TokenMinus:
		return UnaryMinus, true
	case TokenNot:
		return UnaryNot, true
	case TokenHash:
		return UnaryLen, true
	}
	return 0, false
}

var binaryTokens = map[TokenType]BinaryOp{
	TokenPlus:    BinaryAdd,
	TokenMinus:   BinarySub,
	TokenStar:    BinaryMul,
	TokenSlash:   BinaryDiv,
	TokenPercent: BinaryMod,
	TokenCaret:   BinaryPow,
	TokenConcat:  BinaryConcat,
	TokenEq:      BinaryEq,
	TokenLt:      BinaryLt,
	TokenLe:      BinaryLe,
	TokenNe:      BinaryNe,
	TokenGt:      BinaryGt,
	TokenGe:      BinaryGe,
	TokenAnd:     BinaryAnd,
	TokenOr:      BinaryOr,
}

// subExpr compiles an expression whose binary operators all bind tighter
// than limit.
func (p *Parser) subExpr(limit int) ExprDesc {
	fs := p.fs
	p.enterLevel()
	var e ExprDesc
	if uop, ok := unaryOpOf(p.curToken.Type); ok {
		line := p.curToken.Pos.Line
		p.nextToken()
		e = fs.Prefix(uop, p.subExpr(unaryPriority), line)
	} else {
		e = p.simpleExp()
	}
	for {
		op, ok := binaryTokens[p.curToken.Type]
		if !ok || binaryOps[op].left <= limit {
			break
		}
		line := p.curToken.Pos.Line
		p.nextToken()
		e = fs.Infix(op, e)
		e2 := p.subExpr(binaryOps[op].right)
		e = fs.Postfix(op, e, e2, line)
	}
	p.leaveLevel()
	return e
}

func (p *Parser) expr() ExprDesc {
	return p.subExpr(0)
}

// exprList compiles a comma separated list, leaving all but the last
// expression in consecutive registers. It returns the last expression and
// the count.
func (p *Parser) exprList() (ExprDesc, int) {
	e := p.expr()
	n := 1
	for p.testNext(TokenComma) {
		p.fs.Exp2NextReg(e)
		e = p.expr()
		n++
	}
	return e, n
}

// ---------------------------------------------------------------------------
// Table constructors
// ---------------------------------------------------------------------------

type constructorState struct {
	table   ExprDesc // table register
	pending ExprDesc // last list item, not yet stored
	nhash   int
	narray  int
	toStore int // list items waiting for SETLIST
}

func (p *Parser) constructor() ExprDesc {
	fs := p.fs
	line := p.curToken.Pos.Line
	pc := fs.codeABC(vm.OpNewTable, 0, 0, 0)
	cc := &constructorState{table: fs.Exp2NextReg(NewExpr(ExprRelocatable, pc))}
	p.checkNext(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		p.closeListField(cc)
		p.field(cc)
		if !p.testNext(TokenComma) && !p.testNext(TokenSemicolon) {
			break
		}
	}
	p.checkMatch(TokenRBrace, TokenLBrace, line)
	p.lastListField(cc)
	fs.Proto.Code[pc].SetB(vm.IntToFB(cc.narray))
	fs.Proto.Code[pc].SetC(vm.IntToFB(cc.nhash))
	return cc.table
}

func (p *Parser) field(cc *constructorState) {
	switch {
	case p.curTokenIs(TokenName) && p.peekToken.Type == TokenAssign:
		p.recField(cc)
	case p.curTokenIs(TokenLBracket):
		p.recField(cc)
	default:
		cc.pending = p.expr()
		cc.narray++
		cc.toStore++
	}
}

func (p *Parser) recField(cc *constructorState) {
	fs := p.fs
	reg := fs.freeReg
	var key ExprDesc
	if p.curTokenIs(TokenName) {
		key = fs.StringExpr(p.checkName())
	} else {
		key = p.yIndex()
	}
	cc.nhash++
	p.checkNext(TokenAssign)
	_, rkKey := fs.Exp2RK(key)
	_, rkVal := fs.Exp2RK(p.expr())
	fs.codeABC(vm.OpSetTable, cc.table.Info, rkKey, rkVal)
	fs.freeReg = reg
}

func (p *Parser) closeListField(cc *constructorState) {
	if cc.pending.Kind == ExprVoid {
		return
	}
	p.fs.Exp2NextReg(cc.pending)
	cc.pending = ExprDesc{}
	if cc.toStore == vm.FieldsPerFlush {
		p.fs.SetList(cc.table.Info, cc.narray, cc.toStore)
		cc.toStore = 0
	}
}

func (p *Parser) lastListField(cc *constructorState) {
	fs := p.fs
	if cc.toStore == 0 {
		return
	}
	if cc.pending.HasMultRet() {
		fs.SetMultRet(cc.pending)
		fs.SetList(cc.table.Info, cc.narray, vm.MultRet)
		cc.narray--
		return
	}
	if cc.pending.Kind != ExprVoid {
		fs.Exp2NextReg(cc.pending)
	}
	fs.SetList(cc.table.Info, cc.narray, cc.toStore)
}
