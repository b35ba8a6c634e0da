package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		value Value
		kind  Kind
	}{
		{Null(), KindNull},
		{Bool(true), KindBool},
		{Int(-3), KindInt},
		{Uint(3), KindUint},
		{Float(2.5), KindFloat},
		{String("x"), KindString},
		{Bytes([]byte{1, 2}), KindBytes},
		{Array(Int(1)), KindArray},
		{Object(map[string]Value{"a": Int(1)}), KindObject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, tt.value.Kind())
	}
}

func TestValueEqualIsStructural(t *testing.T) {
	assert.True(t, Int(5).Equal(Int(5)))
	assert.False(t, Int(5).Equal(Float(5)), "numeric kinds never compare equal across variants")
	assert.False(t, Int(1).Equal(Uint(1)))
	assert.True(t, Null().Equal(Null()))
	assert.True(t,
		Array(Int(1), String("a")).Equal(Array(Int(1), String("a"))))
	assert.False(t,
		Array(Int(1), String("a")).Equal(Array(String("a"), Int(1))))
	assert.True(t,
		Object(map[string]Value{"a": Int(1), "b": Bool(true)}).
			Equal(Object(map[string]Value{"b": Bool(true), "a": Int(1)})))
}

func TestValueCompareIsTotal(t *testing.T) {
	// Kind rank dominates.
	assert.Negative(t, Null().Compare(Bool(false)))
	assert.Negative(t, Bool(true).Compare(Int(-100)))
	assert.Negative(t, Int(100).Compare(Float(-5)))

	// Same-kind ordering.
	assert.Negative(t, Int(1).Compare(Int(2)))
	assert.Positive(t, String("b").Compare(String("a")))
	assert.Zero(t, Bytes([]byte("ab")).Compare(Bytes([]byte("ab"))))
	assert.Negative(t, Array(Int(1)).Compare(Array(Int(1), Int(2))))
}

func TestNumberCoercion(t *testing.T) {
	for _, v := range []Value{Int(2), Uint(2), Float(2)} {
		f, ok := v.Number()
		require.True(t, ok)
		assert.Equal(t, 2.0, f)
	}
	_, ok := String("2").Number()
	assert.False(t, ok, "strings never coerce to numbers")
	_, ok = Bool(true).Number()
	assert.False(t, ok)
}

func TestValueClone(t *testing.T) {
	orig := Object(map[string]Value{
		"arr": Array(Int(1), Int(2)),
		"b":   Bytes([]byte{9}),
	})
	clone := orig.Clone()
	require.True(t, orig.Equal(clone))

	obj, _ := clone.AsObject()
	obj["arr"] = Null()
	assert.False(t, orig.Equal(clone), "clone must not share nested state")
}

func TestFromAnyNormalizesNumbers(t *testing.T) {
	assert.Equal(t, KindInt, FromAny(json.Number("42")).Kind())
	assert.Equal(t, KindFloat, FromAny(json.Number("42.5")).Kind())
	assert.Equal(t, KindUint, FromAny(json.Number("18446744073709551615")).Kind())
	assert.Equal(t, KindInt, FromAny(uint64(7)).Kind(), "small uints normalize to int")
	assert.Equal(t, KindNull, FromAny(struct{}{}).Kind(), "unsupported types decay to null")
}

func TestValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Object(map[string]Value{"n": Int(1)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data))

	data, err = json.Marshal(Bytes([]byte("hi")))
	require.NoError(t, err)
	assert.Equal(t, `"aGk="`, string(data))
}
