package fieldz

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/bytedance/sonic"
)

// jsonAPI sorts map keys and leaves <, > and & unescaped.
var jsonAPI = sonic.Config{
	SortMapKeys:      true,
	CompactMarshaler: true,
	ValidateString:   true,
}.Froze()

// Kind tags the variant held by a Value.
type Kind uint8

// Value kinds.
const (
	KindFloat64 Kind = iota
	KindInt64
	KindUint64
	KindInt128
	KindUint128
	KindBool
	KindString
	KindDebug
	KindError
)

var kindNames = [...]string{"float64", "int64", "uint64", "int128", "uint128", "bool", "string", "debug", "error"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a captured field value. The zero Value is Float64(0).
// Values are immutable and comparable with ==.
type Value struct {
	str  string
	num  uint64 // float bits, int64/uint64 bits, bool, or the low half of a 128-bit value
	hi   uint64 // high half of a 128-bit value
	kind Kind
}

// Float64Value returns a float Value.
func Float64Value(v float64) Value {
	return Value{kind: KindFloat64, num: math.Float64bits(v)}
}

// Int64Value returns a signed integer Value.
func Int64Value(v int64) Value {
	return Value{kind: KindInt64, num: uint64(v)}
}

// Uint64Value returns an unsigned integer Value.
func Uint64Value(v uint64) Value {
	return Value{kind: KindUint64, num: v}
}

// Int128Value returns a signed 128-bit integer Value.
func Int128Value(v Int128) Value {
	return Value{kind: KindInt128, num: v.Lo, hi: uint64(v.Hi)}
}

// Uint128Value returns an unsigned 128-bit integer Value.
func Uint128Value(v Uint128) Value {
	return Value{kind: KindUint128, num: v.Lo, hi: v.Hi}
}

// BoolValue returns a boolean Value.
func BoolValue(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// StringValue returns a string Value.
func StringValue(v string) Value {
	return Value{kind: KindString, str: v}
}

// ErrorValue captures the error's Error() text. A nil error becomes "<nil>".
func ErrorValue(err error) Value {
	if err == nil {
		return Value{kind: KindError, str: "<nil>"}
	}
	return Value{kind: KindError, str: err.Error()}
}

// DebugValue captures v through its Go-syntax representation (%#v).
// It accepts anything and never fails.
func DebugValue(v any) Value {
	return Value{kind: KindDebug, str: fmt.Sprintf("%#v", v)}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// Float64 returns the float held by a KindFloat64 value.
func (v Value) Float64() float64 { return math.Float64frombits(v.num) }

// Int64 returns the integer held by a KindInt64 value.
func (v Value) Int64() int64 { return int64(v.num) }

// Uint64 returns the integer held by a KindUint64 value.
func (v Value) Uint64() uint64 { return v.num }

// Int128 returns the integer held by a KindInt128 value.
func (v Value) Int128() Int128 { return Int128{Hi: int64(v.hi), Lo: v.num} }

// Uint128 returns the integer held by a KindUint128 value.
func (v Value) Uint128() Uint128 { return Uint128{Hi: v.hi, Lo: v.num} }

// Bool returns the boolean held by a KindBool value.
func (v Value) Bool() bool { return v.num != 0 }

// Str returns the text of a KindString, KindDebug or KindError value.
func (v Value) Str() string { return v.str }

// Any returns the value as a plain Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindFloat64:
		return v.Float64()
	case KindInt64:
		return v.Int64()
	case KindUint64:
		return v.Uint64()
	case KindInt128:
		return v.Int128()
	case KindUint128:
		return v.Uint128()
	case KindBool:
		return v.Bool()
	default:
		return v.str
	}
}

// String renders the value for humans: numbers in decimal, text unquoted.
func (v Value) String() string {
	switch v.kind {
	case KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case KindInt128:
		return v.Int128().String()
	case KindUint128:
		return v.Uint128().String()
	case KindBool:
		return strconv.FormatBool(v.Bool())
	default:
		return v.str
	}
}

// MarshalJSON encodes numbers as JSON numbers (128-bit values as exact
// decimal literals), booleans as booleans and the text kinds as strings.
// Floats always carry a fraction or exponent. Non-finite floats have no
// JSON form and encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat64:
		return appendFloat(nil, v.Float64()), nil
	case KindInt64, KindUint64, KindInt128, KindUint128, KindBool:
		return []byte(v.String()), nil
	case KindString, KindDebug, KindError:
		return jsonAPI.Marshal(v.str)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

func appendFloat(b []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, "null"...)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	start := len(b)
	b = strconv.AppendFloat(b, f, format, -1, 64)
	// Whole numbers keep a fraction so they decode as floats, not integers.
	if format == 'f' && bytes.IndexByte(b[start:], '.') < 0 {
		b = append(b, ".0"...)
	}
	return b
}

// Int128 is a signed 128-bit integer, Hi*2^64 + Lo.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Uint128 is an unsigned 128-bit integer, Hi*2^64 + Lo.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

var (
	errOutOfRange = errors.New("value out of range")

	two64      = new(big.Int).Lsh(big.NewInt(1), 64)
	mask64     = new(big.Int).Sub(two64, big.NewInt(1))
	minInt128  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxInt128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	bigZero    = big.NewInt(0)
)

// Int128From widens an int64.
func Int128From(v int64) Int128 {
	if v < 0 {
		return Int128{Hi: -1, Lo: uint64(v)}
	}
	return Int128{Lo: uint64(v)}
}

// Uint128From widens a uint64.
func Uint128From(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// Big returns the value as a big.Int.
func (v Int128) Big() *big.Int {
	b := new(big.Int).Lsh(big.NewInt(v.Hi), 64)
	return b.Add(b, new(big.Int).SetUint64(v.Lo))
}

func (v Int128) String() string { return v.Big().String() }

// Big returns the value as a big.Int.
func (v Uint128) Big() *big.Int {
	b := new(big.Int).Lsh(new(big.Int).SetUint64(v.Hi), 64)
	return b.Add(b, new(big.Int).SetUint64(v.Lo))
}

func (v Uint128) String() string { return v.Big().String() }

// ParseInt128 parses a base-10 signed 128-bit integer.
func ParseInt128(s string) (Int128, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Int128{}, fmt.Errorf("parse int128 %q: invalid syntax", s)
	}
	if b.Cmp(minInt128) < 0 || b.Cmp(maxInt128) > 0 {
		return Int128{}, fmt.Errorf("parse int128 %q: %w", s, errOutOfRange)
	}
	hi := new(big.Int).Rsh(b, 64)
	lo := new(big.Int).And(b, mask64)
	return Int128{Hi: hi.Int64(), Lo: lo.Uint64()}, nil
}

// ParseUint128 parses a base-10 unsigned 128-bit integer.
func ParseUint128(s string) (Uint128, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Uint128{}, fmt.Errorf("parse uint128 %q: invalid syntax", s)
	}
	if b.Cmp(bigZero) < 0 || b.Cmp(maxUint128) > 0 {
		return Uint128{}, fmt.Errorf("parse uint128 %q: %w", s, errOutOfRange)
	}
	hi := new(big.Int).Rsh(b, 64)
	lo := new(big.Int).And(b, mask64)
	return Uint128{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}
