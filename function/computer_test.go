package function

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/message"
)

func TestAbsPreservesIntegerKind(t *testing.T) {
	c, err := NewComputer(Config{Category: CategoryComputer, Type: "abs", Field: "v"})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{"v": message.Int(-5)})
	c.Compute(m)
	got, _ := m.Get("v")
	assert.Equal(t, message.Int(5), got)

	m = msgWith(map[string]message.Value{"v": message.Float(-2.5)})
	c.Compute(m)
	got, _ = m.Get("v")
	assert.Equal(t, message.Float(2.5), got)
}

func TestComputerMissingFieldYieldsNull(t *testing.T) {
	c, err := NewComputer(Config{Category: CategoryComputer, Type: "abs", Field: "v"})
	require.NoError(t, err)

	m := message.New()
	c.Compute(m)
	got, ok := m.Get("v")
	require.True(t, ok)
	assert.True(t, got.IsNull())
}

func TestComputerTargetFieldAddsInsteadOfReplacing(t *testing.T) {
	c, err := NewComputer(Config{Category: CategoryComputer, Type: "abs", Field: "v", TargetField: "v_abs"})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{"v": message.Int(-3)})
	c.Compute(m)

	src, _ := m.Get("v")
	assert.Equal(t, message.Int(-3), src, "source stays untouched with a target field")
	out, _ := m.Get("v_abs")
	assert.Equal(t, message.Int(3), out)
}

func TestNumericComputerKinds(t *testing.T) {
	tests := []struct {
		fn   string
		in   message.Value
		want message.Value
	}{
		{"ceil", message.Float(1.2), message.Float(2)},
		{"ceil", message.Int(7), message.Int(7)},
		{"floor", message.Float(1.8), message.Float(1)},
		{"round", message.Float(2.5), message.Float(3)},
		{"sign", message.Int(-9), message.Int(-1)},
		{"sign", message.Float(0.5), message.Int(1)},
		{"bitnot", message.Int(0), message.Int(-1)},
		{"bitnot", message.Float(1.5), message.Null()},
		{"abs", message.String("x"), message.Null()},
	}
	for _, tt := range tests {
		c, err := NewComputer(Config{Category: CategoryComputer, Type: tt.fn, Field: "v"})
		require.NoError(t, err)
		m := msgWith(map[string]message.Value{"v": tt.in})
		c.Compute(m)
		got, _ := m.Get("v")
		assert.True(t, tt.want.Equal(got), "%s(%#v) = %#v, want %#v", tt.fn, tt.in, got, tt.want)
	}
}

func TestStringComputers(t *testing.T) {
	tests := []struct {
		fn   string
		in   message.Value
		want message.Value
	}{
		{"upper", message.String("abc"), message.String("ABC")},
		{"lower", message.String("ABC"), message.String("abc")},
		{"trim", message.String("  x  "), message.String("x")},
		{"trim_start", message.String("  x"), message.String("x")},
		{"trim_end", message.String("x  "), message.String("x")},
		{"reverse", message.String("héllo"), message.String("olléh")},
		{"length", message.String("héllo"), message.Int(5)},
		{"base64_encode", message.String("hi"), message.String("aGk=")},
		{"hex_encode", message.String("hi"), message.String("6869")},
		{"upper", message.Bytes([]byte("ok")), message.String("OK")},
		{"upper", message.Int(1), message.Null()},
	}
	for _, tt := range tests {
		c, err := NewComputer(Config{Category: CategoryComputer, Type: tt.fn, Field: "v"})
		require.NoError(t, err)
		m := msgWith(map[string]message.Value{"v": tt.in})
		c.Compute(m)
		got, _ := m.Get("v")
		assert.True(t, tt.want.Equal(got), "%s(%#v) = %#v, want %#v", tt.fn, tt.in, got, tt.want)
	}
}

func TestHashComputerResetsBetweenMessages(t *testing.T) {
	c, err := NewComputer(Config{Category: CategoryComputer, Type: "sha256", Field: "v", TargetField: "digest"})
	require.NoError(t, err)

	digestOf := func(s string) message.Value {
		m := msgWith(map[string]message.Value{"v": message.String(s)})
		c.Compute(m)
		got, _ := m.Get("digest")
		return got
	}

	first := digestOf("hello")
	second := digestOf("world")
	again := digestOf("hello")
	assert.True(t, first.Equal(again), "same input hashes identically on reuse")
	assert.False(t, first.Equal(second))
}

func TestArrayComputers(t *testing.T) {
	nums := message.Array(message.Int(1), message.Int(2), message.Int(1), message.Int(3), message.Int(2))
	tests := []struct {
		fn   string
		want message.Value
	}{
		{"array_length", message.Int(5)},
		{"cardinality", message.Int(3)},
		{"distinct", message.Array(message.Int(1), message.Int(2), message.Int(3))},
		{"pop", message.Array(message.Int(1), message.Int(2), message.Int(1), message.Int(3))},
		{"array_reverse", message.Array(message.Int(2), message.Int(3), message.Int(1), message.Int(2), message.Int(1))},
	}
	for _, tt := range tests {
		c, err := NewComputer(Config{Category: CategoryComputer, Type: tt.fn, Field: "v"})
		require.NoError(t, err)
		m := msgWith(map[string]message.Value{"v": nums.Clone()})
		c.Compute(m)
		got, _ := m.Get("v")
		assert.True(t, tt.want.Equal(got), "%s = %#v, want %#v", tt.fn, got, tt.want)
	}
}

func TestAbsMostNegativeIntegerWidensToFloat(t *testing.T) {
	c, err := NewComputer(Config{Category: CategoryComputer, Type: "abs", Field: "v"})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{"v": message.Int(math.MinInt64)})
	c.Compute(m)
	got, _ := m.Get("v")
	f, isFloat := got.AsFloat()
	require.True(t, isFloat, "abs(MinInt64) has no Int64 representation")
	assert.Equal(t, -float64(math.MinInt64), f)
	assert.True(t, f > 0)
}

func TestToIntConversions(t *testing.T) {
	tests := []struct {
		in   message.Value
		want message.Value
	}{
		{message.Float(3.9), message.Int(3)},
		{message.Float(-3.9), message.Int(-3)},
		{message.Bool(true), message.Int(1)},
		{message.Bool(false), message.Int(0)},
		{message.Int(42), message.Int(42)},
		{message.Uint(7), message.Int(7)},
		{message.String("-15"), message.Int(-15)},
		{message.String("15.2"), message.Null()},
		{message.String("not a number"), message.Null()},
		{message.Float(math.NaN()), message.Null()},
		{message.Float(2e19), message.Null()},
		{message.Array(message.Int(1)), message.Null()},
	}
	for _, tt := range tests {
		c, err := NewComputer(Config{Category: CategoryComputer, Type: "to_int", Field: "v"})
		require.NoError(t, err)
		m := msgWith(map[string]message.Value{"v": tt.in})
		c.Compute(m)
		got, _ := m.Get("v")
		assert.True(t, tt.want.Equal(got), "to_int(%#v) = %#v, want %#v", tt.in, got, tt.want)
	}
}

func TestToStringConversions(t *testing.T) {
	tests := []struct {
		in   message.Value
		want message.Value
	}{
		{message.Null(), message.String("null")},
		{message.Bool(true), message.String("true")},
		{message.Int(-42), message.String("-42")},
		{message.Uint(42), message.String("42")},
		{message.Float(2.5), message.String("2.5")},
		{message.String("as-is"), message.String("as-is")},
		{message.Bytes([]byte{1}), message.Null()},
	}
	for _, tt := range tests {
		c, err := NewComputer(Config{Category: CategoryComputer, Type: "to_str", Field: "v"})
		require.NoError(t, err)
		m := msgWith(map[string]message.Value{"v": tt.in})
		c.Compute(m)
		got, _ := m.Get("v")
		assert.True(t, tt.want.Equal(got), "to_str(%#v) = %#v, want %#v", tt.in, got, tt.want)
	}
}

func TestToStringHonorsPrecision(t *testing.T) {
	c, err := NewComputer(Config{
		Category: CategoryComputer, Type: "to_str", Field: "v",
		Args: map[string]any{"precision": 2},
	})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{"v": message.Float(3.14159)})
	c.Compute(m)
	got, _ := m.Get("v")
	assert.Equal(t, message.String("3.14"), got)
}

func TestStrictStringConversions(t *testing.T) {
	floatConv, err := NewComputer(Config{
		Category: CategoryComputer, Type: "float_to_str", Field: "v",
		Args: map[string]any{"precision": 1},
	})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{"v": message.Float(2.25)})
	floatConv.Compute(m)
	got, _ := m.Get("v")
	assert.Equal(t, message.String("2.2"), got)

	// float_to_str leaves nothing but floats rendered.
	m = msgWith(map[string]message.Value{"v": message.Int(2)})
	floatConv.Compute(m)
	got, _ = m.Get("v")
	assert.True(t, got.IsNull())

	intConv, err := NewComputer(Config{Category: CategoryComputer, Type: "int_to_str", Field: "v"})
	require.NoError(t, err)

	m = msgWith(map[string]message.Value{"v": message.Int(-7)})
	intConv.Compute(m)
	got, _ = m.Get("v")
	assert.Equal(t, message.String("-7"), got)

	m = msgWith(map[string]message.Value{"v": message.Float(7)})
	intConv.Compute(m)
	got, _ = m.Get("v")
	assert.True(t, got.IsNull())
}

func TestToStringRejectsBadPrecision(t *testing.T) {
	_, err := NewComputer(Config{
		Category: CategoryComputer, Type: "to_str", Field: "v",
		Args: map[string]any{"precision": "two"},
	})
	require.Error(t, err)

	_, err = NewComputer(Config{
		Category: CategoryComputer, Type: "float_to_str", Field: "v",
		Args: map[string]any{"precision": -1},
	})
	require.Error(t, err)
}

func TestTemplateComputer(t *testing.T) {
	c, err := NewComputer(Config{
		Category: CategoryComputer, Type: "template",
		Args: map[string]any{"template": "device {{name}} reads {{temp}} ({{missing}})"},
	})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{
		"name": message.String("s7-1200"),
		"temp": message.Float(21.5),
	})
	c.Compute(m)
	got, _ := m.Get("tpl")
	assert.Equal(t, message.String("device s7-1200 reads 21.5 (null)"), got)

	// A target field redirects the rendering away from the default.
	named, err := NewComputer(Config{
		Category: CategoryComputer, Type: "template", TargetField: "line",
		Args: map[string]any{"template": "{{name}}"},
	})
	require.NoError(t, err)
	named.Compute(m)
	got, _ = m.Get("line")
	assert.Equal(t, message.String("s7-1200"), got)
}

func TestTemplateRequiresTemplateArg(t *testing.T) {
	_, err := NewComputer(Config{Category: CategoryComputer, Type: "template"})
	require.Error(t, err)
}

func TestCompressComputersRoundTrip(t *testing.T) {
	payload := strings.Repeat("sensor payload ", 32)

	for _, codec := range []string{"zlib", "deflate"} {
		enc, err := NewComputer(Config{Category: CategoryComputer, Type: codec + "_encode", Field: "v", TargetField: "packed"})
		require.NoError(t, err)
		dec, err := NewComputer(Config{Category: CategoryComputer, Type: codec + "_decode", Field: "packed", TargetField: "unpacked"})
		require.NoError(t, err)

		m := msgWith(map[string]message.Value{"v": message.String(payload)})
		enc.Compute(m)

		packed, _ := m.Get("packed")
		raw, isBytes := packed.AsBytes()
		require.True(t, isBytes, "%s_encode emits Bytes", codec)
		assert.Less(t, len(raw), len(payload), "%s compresses the repetitive payload", codec)

		dec.Compute(m)
		unpacked, _ := m.Get("unpacked")
		assert.True(t, message.Bytes([]byte(payload)).Equal(unpacked), "%s round-trips", codec)
	}
}

func TestCompressDecodeCorruptInputYieldsNull(t *testing.T) {
	dec, err := NewComputer(Config{Category: CategoryComputer, Type: "zlib_decode", Field: "v"})
	require.NoError(t, err)

	m := msgWith(map[string]message.Value{"v": message.Bytes([]byte("not zlib data"))})
	dec.Compute(m)
	got, _ := m.Get("v")
	assert.True(t, got.IsNull())
}
