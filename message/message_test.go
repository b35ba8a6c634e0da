package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageInsertionOrder(t *testing.T) {
	m := New()
	m.Set("c", Int(3))
	m.Set("a", Int(1))
	m.Set("b", Int(2))

	assert.Equal(t, []string{"c", "a", "b"}, m.FieldNames())

	// Overwrite keeps position.
	m.Set("a", Int(10))
	assert.Equal(t, []string{"c", "a", "b"}, m.FieldNames())
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.True(t, Int(10).Equal(v))
}

func TestMessageNestedGet(t *testing.T) {
	m := New()
	m.Set("pos", Object(map[string]Value{
		"lat": Float(51.5),
		"lon": Float(-0.1),
	}))

	v, ok := m.Get("pos.lat")
	require.True(t, ok)
	assert.True(t, Float(51.5).Equal(v))

	_, ok = m.Get("pos.alt")
	assert.False(t, ok)
	_, ok = m.Get("missing.x")
	assert.False(t, ok)
}

func TestMessageRename(t *testing.T) {
	m := New()
	m.Set("a", Int(1))
	m.Set("b", Int(2))

	require.True(t, m.Rename("a", "x"))
	assert.Equal(t, []string{"x", "b"}, m.FieldNames())
	assert.False(t, m.Has("a"))

	// Renaming onto an existing field overwrites it.
	require.True(t, m.Rename("x", "b"))
	assert.Equal(t, []string{"b"}, m.FieldNames())
	v, _ := m.Get("b")
	assert.True(t, Int(1).Equal(v))

	assert.False(t, m.Rename("gone", "y"))
}

func TestMessageRemove(t *testing.T) {
	m := New()
	m.Set("a", Int(1))
	m.Set("b", Int(2))
	m.Set("c", Int(3))

	require.True(t, m.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, m.FieldNames())

	// Index stays consistent after the shift.
	v, ok := m.Get("c")
	require.True(t, ok)
	assert.True(t, Int(3).Equal(v))

	assert.False(t, m.Remove("b"))
}

func TestMessageClone(t *testing.T) {
	m := New()
	m.SetName("reading")
	m.Set("a", Array(Int(1)))

	c := m.Clone()
	c.Set("a", Null())
	c.Set("extra", Int(9))

	v, _ := m.Get("a")
	assert.Equal(t, KindArray, v.Kind(), "clone mutation must not leak back")
	assert.False(t, m.Has("extra"))
	assert.Equal(t, "reading", c.Name())
}

func TestBatchCloneIsIndependent(t *testing.T) {
	m := New()
	m.Set("v", Int(1))
	b := FromMessage(m)
	b.MetaSet("source", String("s1"))

	c := b.Clone()
	c.Messages()[0].Set("v", Int(99))
	c.MetaSet("source", String("s2"))

	v, _ := b.Messages()[0].Get("v")
	assert.True(t, Int(1).Equal(v))
	src, _ := b.MetaGet("source")
	assert.True(t, String("s1").Equal(src))
}

func TestBatchExtendPreservesOrder(t *testing.T) {
	a := NewBatch()
	for i := int64(0); i < 3; i++ {
		m := New()
		m.Set("i", Int(i))
		a.Append(m)
	}
	b := NewBatch()
	m := New()
	m.Set("i", Int(3))
	b.Append(m)

	a.Extend(b)
	require.Equal(t, 4, a.Len())
	for i, msg := range a.Messages() {
		v, _ := msg.Get("i")
		assert.True(t, Int(int64(i)).Equal(v))
	}
}
