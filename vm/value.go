package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Constant values
// ---------------------------------------------------------------------------

// ValueKind is the type tag of a constant.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBoolean
	KindNumber
	KindString
)

var kindNames = [...]string{
	KindNil:     "nil",
	KindBoolean: "boolean",
	KindNumber:  "number",
	KindString:  "string",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is an entry of a prototype's constant table.
type Value struct {
	Kind ValueKind `cbor:"1,keyasint"`
	B    bool      `cbor:"2,keyasint,omitempty"`
	N    float64   `cbor:"3,keyasint"`
	S    string    `cbor:"4,keyasint,omitempty"`
}

// Nil returns the nil constant.
func Nil() Value { return Value{Kind: KindNil} }

// Bool returns a boolean constant.
func Bool(b bool) Value { return Value{Kind: KindBoolean, B: b} }

// Number returns a numeric constant.
func Number(n float64) Value { return Value{Kind: KindNumber, N: n} }

// String returns a string constant.
func String(s string) Value { return Value{Kind: KindString, S: s} }

// ConstKey is the deduplication key of a constant. Numbers are keyed by
// their bit pattern, so 0 and -0 are distinct constants.
type ConstKey struct {
	kind ValueKind
	bits uint64
	s    string
}

// Key returns the deduplication key for v.
func (v Value) Key() ConstKey {
	switch v.Kind {
	case KindBoolean:
		if v.B {
			return ConstKey{kind: KindBoolean, bits: 1}
		}
		return ConstKey{kind: KindBoolean}
	case KindNumber:
		return ConstKey{kind: KindNumber, bits: math.Float64bits(v.N)}
	case KindString:
		return ConstKey{kind: KindString, s: v.S}
	}
	return ConstKey{kind: KindNil}
}

// Equal reports whether v and w are the same constant.
func (v Value) Equal(w Value) bool {
	return v.Key() == w.Key()
}

// String renders the constant as it appears in listings.
func (v Value) String() string {
	switch v.Kind {
	case KindBoolean:
		return strconv.FormatBool(v.B)
	case KindNumber:
		return FormatNumber(v.N)
	case KindString:
		return strconv.Quote(v.S)
	}
	return "nil"
}

// FormatNumber formats n the way the language prints numbers.
func FormatNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case math.IsNaN(n):
		return "nan"
	}
	return strconv.FormatFloat(n, 'g', 14, 64)
}
