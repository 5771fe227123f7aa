package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `+ - * / % ^ # == ~= <= >= < > = ( ) { } [ ] ; : :: , . .. ...`
	expected := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenCaret, TokenHash,
		TokenEq, TokenNe, TokenLe, TokenGe, TokenLt, TokenGt, TokenAssign,
		TokenLParen, TokenRParen, TokenLBrace, TokenRBrace, TokenLBracket, TokenRBracket,
		TokenSemicolon, TokenColon, TokenDbColon, TokenComma, TokenDot, TokenConcat, TokenDots,
		TokenEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerReservedWords(t *testing.T) {
	for word, typ := range reservedWords {
		tok := NewLexer(word).NextToken()
		if tok.Type != typ {
			t.Errorf("Lexer(%q): type = %v, want %v", word, tok.Type, typ)
		}
		if !IsReserved(word) {
			t.Errorf("IsReserved(%q) = false", word)
		}
	}
	if IsReserved("self") {
		t.Error("IsReserved(\"self\") = true")
	}
}

func TestLexerNames(t *testing.T) {
	l := NewLexer("foo _bar baz42 andy")
	for _, want := range []string{"foo", "_bar", "baz42", "andy"} {
		tok := l.NextToken()
		if tok.Type != TokenName || tok.Literal != want {
			t.Errorf("got %v %q, want name %q", tok.Type, tok.Literal, want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"3", 3},
		{"3.0", 3},
		{"3.1416", 3.1416},
		{"314.16e-2", 3.1416},
		{"0.31416E1", 3.1416},
		{".5", 0.5},
		{"5.", 5},
		{"0xff", 255},
		{"0XA", 10},
		{"0x0.1E", 0.1171875},
		{"0xA23p-4", 162.1875},
		{"0X1P+2", 4},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want <number>", tc.input, tok.Type)
			continue
		}
		if tok.Num != tc.want {
			t.Errorf("Lexer(%q): value = %v, want %v", tc.input, tok.Num, tc.want)
		}
		if tok.Raw != tc.input {
			t.Errorf("Lexer(%q): raw = %q", tc.input, tok.Raw)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'it"s'`, `it"s`},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"\65\066"`, "AB"},
		{`"\x41\x62"`, "Ab"},
		{`"a\z
		   b"`, "ab"},
		{`"quote\"d"`, `quote"d`},
		{"[[line]]", "line"},
		{"[[\nfirst]]", "first"},
		{"[==[a]]b]==]", "a]]b"},
		{"[=[x]=]", "x"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v (%s), want <string>", tc.input, tok.Type, tok.Literal)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerComments(t *testing.T) {
	l := NewLexer("-- line comment\nx --[[ long\ncomment ]] y --[==[ ]] ]==] z")
	for _, want := range []struct {
		name string
		line int
	}{{"x", 2}, {"y", 3}, {"z", 3}} {
		tok := l.NextToken()
		if tok.Type != TokenName || tok.Literal != want.name {
			t.Fatalf("got %v, want name %q", tok, want.name)
		}
		if tok.Pos.Line != want.line {
			t.Errorf("%s: line = %d, want %d", want.name, tok.Pos.Line, want.line)
		}
	}
	if tok := l.NextToken(); tok.Type != TokenEOF {
		t.Errorf("got %v, want <eof>", tok)
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("a\n  b\r\nc\n\rd")
	want := []Position{
		{Offset: 0, Line: 1, Column: 1},
		{Offset: 4, Line: 2, Column: 3},
		{Offset: 7, Line: 3, Column: 1},
		{Offset: 10, Line: 4, Column: 1},
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Pos != w {
			t.Errorf("token[%d] pos = %+v, want %+v", i, tok.Pos, w)
		}
	}
}

func TestLexerShebang(t *testing.T) {
	tok := NewLexer("#!/usr/bin/env luma\nreturn").NextToken()
	if tok.Type != TokenReturn {
		t.Fatalf("got %v, want return", tok)
	}
	if tok.Pos.Line != 2 {
		t.Errorf("line = %d, want 2", tok.Pos.Line)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{`"abc`, "unfinished string"},
		{"\"abc\nd\"", "unfinished string"},
		{"3x", "malformed number"},
		{"0x", "malformed number"},
		{"1e", "malformed number"},
		{"3..2", "malformed number"},
		{"~", "unexpected symbol"},
		{"@", "unexpected symbol"},
		{"[==x", "invalid long string delimiter"},
		{"[[abc", "unfinished long string"},
		{"--[[ abc", "unfinished long comment"},
		{`"\q"`, "invalid escape sequence"},
		{`"\300"`, "decimal escape too large"},
		{`"\xZZ"`, "hexadecimal digit expected"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%q): type = %v, want error", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.msg {
			t.Errorf("Lexer(%q): message = %q, want %q", tc.input, tok.Literal, tc.msg)
		}
	}
}
