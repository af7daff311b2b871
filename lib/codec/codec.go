package codec

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// --------------------------------------------------------------------------
// Value Kinds
// --------------------------------------------------------------------------

// Kind is the wire representation of a Value.
type Kind uint8

const (
	KindNull   Kind = iota // no value stored
	KindString             // UTF-8 text
	KindBytes              // opaque byte blob
	KindInt                // 64-bit signed integer
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindInt:
		return "Int"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// Value is a single tagged field value. The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	raw  []byte
	num  int64
}

// Fields maps column (or document field) names to values.
type Fields map[string]Value

// String creates a textual value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes creates a byte blob value. The slice is copied.
func Bytes(b []byte) Value {
	c := make([]byte, len(b))
	copy(c, b)
	return Value{kind: KindBytes, raw: c}
}

// Int creates a 64-bit integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Null creates a value that represents "nothing stored".
func Null() Value { return Value{} }

// Infer tags an untyped byte slice. Exactly eight bytes are read as a
// big-endian int64, everything else is kept as a blob.
//
// This is a heuristic: an 8 byte blob that is not meant to be a number is
// silently turned into one. Callers that know the type should use String,
// Bytes or Int instead.
func Infer(b []byte) Value {
	if len(b) == 8 {
		return Int(BytesToLong(b))
	}
	return Bytes(b)
}

// Kind returns the wire representation of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Wire returns the backend wire form: string, []byte, int64 or nil.
func (v Value) Wire() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindBytes:
		return v.raw
	case KindInt:
		return v.num
	default:
		return nil
	}
}

// Text returns a human-readable rendering of v. Blobs are rendered as text.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBytes:
		return string(v.raw)
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	default:
		return ""
	}
}

// Raw returns the byte form of v: UTF-8 for strings, big-endian for integers.
func (v Value) Raw() []byte {
	switch v.kind {
	case KindString:
		return []byte(v.str)
	case KindBytes:
		c := make([]byte, len(v.raw))
		copy(c, v.raw)
		return c
	case KindInt:
		return LongToBytes(v.num)
	default:
		return nil
	}
}

// Int64 decodes v as an integer. It accepts Int values, 8 byte blobs
// (big-endian) and decimal strings.
func (v Value) Int64() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.num, nil
	case KindBytes:
		if len(v.raw) != 8 {
			return 0, fmt.Errorf("cannot decode %d byte blob as int64", len(v.raw))
		}
		return BytesToLong(v.raw), nil
	case KindString:
		i, err := strconv.ParseInt(v.str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot decode %q as int64: %w", v.str, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot decode null as int64")
	}
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBytes:
		return string(v.raw) == string(o.raw)
	case KindInt:
		return v.num == o.num
	default:
		return true
	}
}

// Compare orders two values. Values of different kinds are ordered by kind,
// Null sorts first.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindInt:
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		}
		return 0
	case KindString:
		return compareStrings(v.str, o.str)
	case KindBytes:
		return compareStrings(string(v.raw), string(o.raw))
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	default:
		return "null"
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// --------------------------------------------------------------------------
// Decoding by declared column type
// --------------------------------------------------------------------------

// Decode rebuilds a value from a backend cell using the column type the
// backend declares for it. A nil cell decodes to Null. Column types other
// than bytes and int64 are rendered as strings.
func Decode(declared Kind, raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	switch declared {
	case KindBytes:
		switch b := raw.(type) {
		case []byte:
			return Bytes(b), nil
		case string:
			return Bytes([]byte(b)), nil
		default:
			return Null(), fmt.Errorf("expected []byte for bytes column, got %T", raw)
		}
	case KindInt:
		switch n := raw.(type) {
		case int64:
			return Int(n), nil
		case int:
			return Int(int64(n)), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return Null(), fmt.Errorf("invalid int64 cell %q: %w", n, err)
			}
			return Int(i), nil
		default:
			return Null(), fmt.Errorf("expected int64 for int64 column, got %T", raw)
		}
	default:
		switch s := raw.(type) {
		case string:
			return String(s), nil
		case []byte:
			return String(string(s)), nil
		default:
			return String(fmt.Sprint(s)), nil
		}
	}
}

// FromNative converts a dynamically typed document value (as returned by a
// schemaless store) into a Value.
func FromNative(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	default:
		return String(fmt.Sprint(t))
	}
}

// --------------------------------------------------------------------------
// long <-> bytes
// --------------------------------------------------------------------------

// LongToBytes encodes i as eight big-endian bytes.
func LongToBytes(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

// BytesToLong decodes eight big-endian bytes. Shorter input is left-padded
// with zeros, longer input uses the last eight bytes.
func BytesToLong(b []byte) int64 {
	var buf [8]byte
	if len(b) >= 8 {
		copy(buf[:], b[len(b)-8:])
	} else {
		copy(buf[8-len(b):], b)
	}
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// --------------------------------------------------------------------------
// Fields helpers
// --------------------------------------------------------------------------

// Clone returns a shallow copy of f. Values are immutable, so this is safe.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// Equal reports whether both maps hold the same names and values.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Strings builds a Fields map of textual values.
func Strings(m map[string]string) Fields {
	f := make(Fields, len(m))
	for k, v := range m {
		f[k] = String(v)
	}
	return f
}
