package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber // 3, 0x1F, 1.5e10, 0x1p4
	TokenString // "x", 'x', [[x]]
	TokenName   // foo

	// Reserved words
	TokenAnd
	TokenBreak
	TokenDo
	TokenElse
	TokenElseif
	TokenEnd
	TokenFalse
	TokenFor
	TokenFunction
	TokenGoto
	TokenIf
	TokenIn
	TokenLocal
	TokenNil
	TokenNot
	TokenOr
	TokenRepeat
	TokenReturn
	TokenThen
	TokenTrue
	TokenUntil
	TokenWhile

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenPercent   // %
	TokenCaret     // ^
	TokenHash      // #
	TokenEq        // ==
	TokenNe        // ~=
	TokenLe        // <=
	TokenGe        // >=
	TokenLt        // <
	TokenGt        // >
	TokenAssign    // =
	TokenConcat    // ..
	TokenDots      // ...
	TokenDbColon   // ::

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenSemicolon // ;
	TokenColon     // :
	TokenComma     // ,
	TokenDot       // .
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "<eof>",
	TokenError:     "<error>",
	TokenNumber:    "<number>",
	TokenString:    "<string>",
	TokenName:      "<name>",
	TokenAnd:       "and",
	TokenBreak:     "break",
	TokenDo:        "do",
	TokenElse:      "else",
	TokenElseif:    "elseif",
	TokenEnd:       "end",
	TokenFalse:     "false",
	TokenFor:       "for",
	TokenFunction:  "function",
	TokenGoto:      "goto",
	TokenIf:        "if",
	TokenIn:        "in",
	TokenLocal:     "local",
	TokenNil:       "nil",
	TokenNot:       "not",
	TokenOr:        "or",
	TokenRepeat:    "repeat",
	TokenReturn:    "return",
	TokenThen:      "then",
	TokenTrue:      "true",
	TokenUntil:     "until",
	TokenWhile:     "while",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenPercent:   "%",
	TokenCaret:     "^",
	TokenHash:      "#",
	TokenEq:        "==",
	TokenNe:        "~=",
	TokenLe:        "<=",
	TokenGe:        ">=",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenAssign:    "=",
	TokenConcat:    "..",
	TokenDots:      "...",
	TokenDbColon:   "::",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenComma:     ",",
	TokenDot:       ".",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // name, decoded string contents, or error message
	Raw     string   // source text of the token
	Num     float64  // value of a number token
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "<eof>"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	case TokenName, TokenString, TokenNumber:
		if len(t.Raw) > 20 {
			return fmt.Sprintf("%s(%q...)", t.Type, t.Raw[:20])
		}
		return fmt.Sprintf("%s(%q)", t.Type, t.Raw)
	}
	return t.Type.String()
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"and":      TokenAnd,
	"break":    TokenBreak,
	"do":       TokenDo,
	"else":     TokenElse,
	"elseif":   TokenElseif,
	"end":      TokenEnd,
	"false":    TokenFalse,
	"for":      TokenFor,
	"function": TokenFunction,
	"goto":     TokenGoto,
	"if":       TokenIf,
	"in":       TokenIn,
	"local":    TokenLocal,
	"nil":      TokenNil,
	"not":      TokenNot,
	"or":       TokenOr,
	"repeat":   TokenRepeat,
	"return":   TokenReturn,
	"then":     TokenThen,
	"true":     TokenTrue,
	"until":    TokenUntil,
	"while":    TokenWhile,
}

// IsReserved reports whether name is a reserved word.
func IsReserved(name string) bool {
	_, ok := reservedWords[name]
	return ok
}

// ReservedWords returns the reserved words in alphabetical order.
func ReservedWords() []string {
	words := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
