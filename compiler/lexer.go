package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes source code. Source is treated as bytes; names are
// ASCII letters, digits and underscores.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        byte // current character, 0 at end of input
	line      int  // current line (1-based)
	col       int  // current column (1-based)
	lineStart int  // offset of current line start
}

// NewLexer creates a new lexer for the given input. A leading "#" line
// (shebang) is skipped.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	if l.ch == '#' {
		for l.ch != '\n' && !l.atEOF() {
			l.readChar()
		}
	}
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
	l.col = l.pos - l.lineStart + 1
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// newline consumes a line break ("\n", "\r", "\n\r" or "\r\n").
func (l *Lexer) newline() {
	old := l.ch
	l.readChar()
	if (l.ch == '\n' || l.ch == '\r') && l.ch != old {
		l.readChar()
	}
	l.line++
	l.lineStart = l.pos
	l.col = 1
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// Line returns the current line number.
func (l *Lexer) Line() int {
	return l.line
}

func (l *Lexer) token(typ TokenType, start Position) Token {
	return Token{Type: typ, Literal: typ.String(), Raw: l.input[start.Offset:l.pos], Pos: start}
}

func (l *Lexer) errorToken(start Position, format string, args ...interface{}) Token {
	end := l.pos
	if end > len(l.input) {
		end = len(l.input)
	}
	return Token{Type: TokenError, Literal: fmt.Sprintf(format, args...), Raw: l.input[start.Offset:end], Pos: start}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Literal: "<eof>", Pos: pos}
	}

	single := func(typ TokenType) Token {
		l.readChar()
		return l.token(typ, pos)
	}
	double := func(next byte, one, two TokenType) Token {
		l.readChar()
		if l.ch == next {
			l.readChar()
			return l.token(two, pos)
		}
		return l.token(one, pos)
	}

	switch c := l.ch; {
	case c == '+':
		return single(TokenPlus)
	case c == '-':
		return single(TokenMinus)
	case c == '*':
		return single(TokenStar)
	case c == '/':
		return single(TokenSlash)
	case c == '%':
		return single(TokenPercent)
	case c == '^':
		return single(TokenCaret)
	case c == '#':
		return single(TokenHash)
	case c == '(':
		return single(TokenLParen)
	case c == ')':
		return single(TokenRParen)
	case c == '{':
		return single(TokenLBrace)
	case c == '}':
		return single(TokenRBrace)
	case c == ']':
		return single(TokenRBracket)
	case c == ';':
		return single(TokenSemicolon)
	case c == ',':
		return single(TokenComma)
	case c == '=':
		return double('=', TokenAssign, TokenEq)
	case c == '<':
		return double('=', TokenLt, TokenLe)
	case c == '>':
		return double('=', TokenGt, TokenGe)
	case c == ':':
		return double(':', TokenColon, TokenDbColon)
	case c == '~':
		l.readChar()
		if l.ch != '=' {
			return l.errorToken(pos, "unexpected symbol")
		}
		l.readChar()
		return l.token(TokenNe, pos)
	case c == '[':
		if sep := l.longBracket(); sep >= 0 {
			s, ok := l.readLongString(sep)
			if !ok {
				return l.errorToken(pos, "unfinished long string")
			}
			tok := l.token(TokenString, pos)
			tok.Literal = s
			return tok
		} else if sep != -1 {
			return l.errorToken(pos, "invalid long string delimiter")
		}
		return l.token(TokenLBracket, pos)
	case c == '"' || c == '\'':
		return l.readString(pos)
	case c == '.':
		l.readChar()
		if l.ch == '.' {
			l.readChar()
			if l.ch == '.' {
				l.readChar()
				return l.token(TokenDots, pos)
			}
			return l.token(TokenConcat, pos)
		}
		if isDigit(l.ch) {
			return l.readNumber(pos)
		}
		return l.token(TokenDot, pos)
	case isDigit(c):
		return l.readNumber(pos)
	case isLetter(c) || c == '_':
		return l.readName(pos)
	default:
		l.readChar()
		return l.errorToken(pos, "unexpected symbol")
	}
}

// skipWhitespaceAndComments skips whitespace and comments. It returns
// false with an error token for an unfinished long comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		switch l.ch {
		case '\n', '\r':
			l.newline()
			continue
		case ' ', '\t', '\f', '\v':
			l.readChar()
			continue
		case '-':
			if l.peekChar() != '-' {
				return Token{}, true
			}
			start := l.position()
			l.readChar()
			l.readChar()
			if l.ch == '[' {
				if sep := l.longBracket(); sep >= 0 {
					if _, ok := l.readLongString(sep); !ok {
						return l.errorToken(start, "unfinished long comment"), false
					}
					continue
				}
			}
			for l.ch != '\n' && l.ch != '\r' && !l.atEOF() {
				l.readChar()
			}
			continue
		}
		return Token{}, true
	}
}

// longBracket is positioned on '[' and consumes "[" "="* "[". It returns
// the number of '=' signs, -1 for a lone "[" (nothing more consumed) or
// -2 for "[=" without a second bracket.
func (l *Lexer) longBracket() int {
	if l.peekChar() != '[' && l.peekChar() != '=' {
		l.readChar()
		return -1
	}
	l.readChar()
	count := 0
	for l.ch == '=' {
		count++
		l.readChar()
	}
	if l.ch != '[' {
		if count == 0 {
			return -1
		}
		return -2
	}
	l.readChar()
	return count
}

// readLongString reads the body of a long bracket with sep '=' signs,
// positioned after the opening bracket.
func (l *Lexer) readLongString(sep int) (string, bool) {
	var sb strings.Builder
	if l.ch == '\n' || l.ch == '\r' {
		l.newline()
	}
	for {
		switch {
		case l.atEOF():
			return "", false
		case l.ch == ']':
			l.readChar()
			count := 0
			for l.ch == '=' {
				count++
				l.readChar()
			}
			if count == sep && l.ch == ']' {
				l.readChar()
				return sb.String(), true
			}
			sb.WriteByte(']')
			sb.WriteString(strings.Repeat("=", count))
		case l.ch == '\n' || l.ch == '\r':
			sb.WriteByte('\n')
			l.newline()
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readString reads a quoted string with escape sequences.
func (l *Lexer) readString(pos Position) Token {
	delim := l.ch
	l.readChar()
	var sb strings.Builder
	for l.ch != delim {
		switch {
		case l.atEOF():
			return l.errorToken(pos, "unfinished string")
		case l.ch == '\n' || l.ch == '\r':
			return l.errorToken(pos, "unfinished string")
		case l.ch == '\\':
			l.readChar()
			if msg := l.readEscape(&sb); msg != "" {
				return l.errorToken(pos, "%s", msg)
			}
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	l.readChar()
	tok := l.token(TokenString, pos)
	tok.Literal = sb.String()
	return tok
}

var simpleEscapes = map[byte]byte{
	'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r',
	't': '\t', 'v': '\v', '\\': '\\', '"': '"', '\'': '\'',
}

// readEscape decodes one escape sequence after the backslash. It returns
// a non-empty message for an invalid escape.
func (l *Lexer) readEscape(sb *strings.Builder) string {
	if c, ok := simpleEscapes[l.ch]; ok {
		sb.WriteByte(c)
		l.readChar()
		return ""
	}
	switch {
	case l.ch == '\n' || l.ch == '\r':
		sb.WriteByte('\n')
		l.newline()
	case l.ch == 'x':
		l.readChar()
		v := 0
		for n := 0; n < 2; n++ {
			d, ok := hexValue(l.ch)
			if !ok {
				return "hexadecimal digit expected"
			}
			v = v*16 + d
			l.readChar()
		}
		sb.WriteByte(byte(v))
	case l.ch == 'z':
		l.readChar()
		for isSpace(l.ch) && !l.atEOF() {
			if l.ch == '\n' || l.ch == '\r' {
				l.newline()
			} else {
				l.readChar()
			}
		}
	case isDigit(l.ch):
		v := 0
		for n := 0; n < 3 && isDigit(l.ch); n++ {
			v = v*10 + int(l.ch-'0')
			l.readChar()
		}
		if v > 255 {
			return "decimal escape too large"
		}
		sb.WriteByte(byte(v))
	case l.atEOF():
		return "unfinished string"
	default:
		return "invalid escape sequence"
	}
	return ""
}

// readNumber reads a numeric literal. The current character is the first
// digit or, for ".5", the digit after the dot.
func (l *Lexer) readNumber(pos Position) Token {
	exp1, exp2 := byte('e'), byte('E')
	if l.input[pos.Offset] == '0' && l.pos == pos.Offset && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		exp1, exp2 = 'p', 'P'
	}
	for {
		switch {
		case l.ch == exp1 || l.ch == exp2:
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
		case isHexDigit(l.ch) || l.ch == '.':
			l.readChar()
		default:
			raw := l.input[pos.Offset:l.pos]
			if isLetter(l.ch) || l.ch == '_' {
				for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
					l.readChar()
				}
				return l.errorToken(pos, "malformed number")
			}
			n, ok := parseNumber(raw)
			if !ok {
				return l.errorToken(pos, "malformed number")
			}
			tok := l.token(TokenNumber, pos)
			tok.Num = n
			return tok
		}
	}
}

// parseNumber converts the text of a numeric literal.
func parseNumber(s string) (float64, bool) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return parseHex(s[2:])
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isDigit(c) && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return 0, false
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return n, true
		}
		return 0, false
	}
	return n, true
}

// parseHex converts a hexadecimal mantissa with optional fraction and
// binary exponent ("1F", "1.8p3").
func parseHex(s string) (float64, bool) {
	var mantissa float64
	exp := 0
	digits := 0
	seenDot := false
	i := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if seenDot {
				return 0, false
			}
			seenDot = true
			continue
		}
		d, ok := hexValue(c)
		if !ok {
			break
		}
		mantissa = mantissa*16 + float64(d)
		if seenDot {
			exp -= 4
		}
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if i < len(s) {
		if s[i] != 'p' && s[i] != 'P' {
			return 0, false
		}
		e, err := strconv.Atoi(strings.TrimPrefix(s[i+1:], "+"))
		if err != nil {
			return 0, false
		}
		exp += e
	}
	return math.Ldexp(mantissa, exp), true
}

// readName reads a name or reserved word.
func (l *Lexer) readName(pos Position) Token {
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	word := l.input[pos.Offset:l.pos]
	if typ, ok := reservedWords[word]; ok {
		return l.token(typ, pos)
	}
	tok := l.token(TokenName, pos)
	tok.Literal = word
	return tok
}

func isLetter(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isHexDigit(c byte) bool {
	_, ok := hexValue(c)
	return ok
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func hexValue(c byte) (int, bool) {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0'), true
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10, true
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}
