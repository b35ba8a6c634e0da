package message

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindNull is the absent/unknown value
	KindNull Kind = iota
	// KindBool holds a boolean
	KindBool
	// KindInt holds a signed 64-bit integer
	KindInt
	// KindUint holds an unsigned 64-bit integer
	KindUint
	// KindFloat holds a 64-bit float
	KindFloat
	// KindString holds a UTF-8 string
	KindString
	// KindBytes holds a raw byte slice
	KindBytes
	// KindArray holds an ordered list of Values
	KindArray
	// KindObject holds a name->Value mapping
	KindObject
)

// String returns a string representation of the value kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int64"
	case KindUint:
		return "uint64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the tagged union carried by every message field. A Value is
// immutable once constructed; operators build new Values rather than
// mutating the variants in place.
//
// Equality and ordering are structural and total across all variants
// (kind rank first, then value). Numeric variants are coerced to float64
// only inside arithmetic operators, never during comparison.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	s     string
	bytes []byte
	arr   []Value
	obj   map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a signed integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint returns an unsigned integer Value.
func Uint(u uint64) Value { return Value{kind: KindUint, u: u} }

// Float returns a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a byte-slice Value. The slice is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }

// Array returns an array Value holding the given elements.
func Array(elems ...Value) Value { return Value{kind: KindArray, arr: elems} }

// Object returns an object Value holding the given mapping.
func Object(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{kind: KindObject, obj: m}
}

// Kind returns the variant tag of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload, or false if the value is not a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the int64 payload, or false if the value is not an int64.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsUint returns the uint64 payload, or false if the value is not a uint64.
func (v Value) AsUint() (uint64, bool) {
	if v.kind != KindUint {
		return 0, false
	}
	return v.u, true
}

// AsFloat returns the float64 payload, or false if the value is not a float64.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// AsString returns the string payload, or false if the value is not a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBytes returns the byte payload, or false if the value is not bytes.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// AsArray returns the element slice, or false if the value is not an array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the mapping, or false if the value is not an object.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Number coerces Int/Uint/Float variants to float64 for arithmetic
// operators. Any other variant reports false. This is the ONLY place
// numeric kinds are silently widened.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindUint:
		return float64(v.u), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether the value holds an Int, Uint or Float.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindUint || v.kind == KindFloat
}

// Equal reports structural equality of two values. Kinds must match
// exactly: Int(1) is not equal to Float(1).
func (v Value) Equal(other Value) bool {
	return v.Compare(other) == 0
}

// Compare imposes a total structural ordering over all variants. Values
// of different kinds order by kind rank; values of the same kind compare
// by payload (arrays lexicographically, objects by sorted key/value pairs).
func (v Value) Compare(other Value) int {
	if v.kind != other.kind {
		if v.kind < other.kind {
			return -1
		}
		return 1
	}

	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		return compareBool(v.b, other.b)
	case KindInt:
		return compareOrdered(v.i, other.i)
	case KindUint:
		return compareOrdered(v.u, other.u)
	case KindFloat:
		return compareOrdered(v.f, other.f)
	case KindString:
		return compareOrdered(v.s, other.s)
	case KindBytes:
		return bytes.Compare(v.bytes, other.bytes)
	case KindArray:
		return compareArrays(v.arr, other.arr)
	case KindObject:
		return compareObjects(v.obj, other.obj)
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareOrdered[T int64 | uint64 | float64 | string](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareArrays(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return compareOrdered(int64(len(a)), int64(len(b)))
}

func compareObjects(a, b map[string]Value) int {
	if c := compareOrdered(int64(len(a)), int64(len(b))); c != 0 {
		return c
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		bv, ok := b[k]
		if !ok {
			return 1
		}
		if c := a[k].Compare(bv); c != 0 {
			return c
		}
	}
	return 0
}

// Clone returns a deep copy of the value. Scalar variants share no
// mutable state, so only bytes, arrays and objects are copied.
func (v Value) Clone() Value {
	switch v.kind {
	case KindBytes:
		b := make([]byte, len(v.bytes))
		copy(b, v.bytes)
		return Bytes(b)
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindObject:
		obj := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			obj[k] = e.Clone()
		}
		return Value{kind: KindObject, obj: obj}
	default:
		return v
	}
}

// String renders the value for logs and error messages.
func (v Value) GoString() string {
	return fmt.Sprintf("%s(%v)", v.kind, v.any())
}

// any converts the value to its native Go representation. Bytes become
// base64 strings so the result is always JSON-representable.
func (v Value) any() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.bytes)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler. Bytes are encoded as base64
// strings; Uint values that fit in int64 are indistinguishable from Int
// on the wire, which FromAny normalizes on decode.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.any())
}

// FromAny converts a decoded Go value (as produced by encoding/json with
// UseNumber, yaml.v3 or go-toml) into a Value. Integral numbers become
// Int unless they only fit in uint64; everything else follows the obvious
// mapping. Unsupported types become Null.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint64:
		if t > math.MaxInt64 {
			return Uint(t)
		}
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case json.Number:
		return fromJSONNumber(t)
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = FromAny(e)
		}
		return Value{kind: KindArray, arr: arr}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			obj[k] = FromAny(e)
		}
		return Value{kind: KindObject, obj: obj}
	default:
		return Null()
	}
}

func fromJSONNumber(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return Uint(u)
	}
	if f, err := n.Float64(); err == nil {
		return Float(f)
	}
	return Null()
}
