// Package message defines the data model that moves through the gateway
// pipeline: the Value tagged union, the Message record of named fields,
// the MessageBatch unit of work, and the Codec boundary used by sources
// and sinks to cross between raw bytes and the typed model.
package message

import "strings"

// Message is one structured record of named fields flowing through the
// pipeline. Field order is insertion order and field names are unique.
// A Message is owned by the batch that holds it and is mutated in place
// by computers and field operators; filters and aggregators read only.
type Message struct {
	name   string
	fields []field
	index  map[string]int
}

type field struct {
	name  string
	value Value
}

// New creates an empty message.
func New() *Message {
	return &Message{index: make(map[string]int)}
}

// Name returns the optional name tag of the message.
func (m *Message) Name() string { return m.name }

// SetName sets the optional name tag of the message.
func (m *Message) SetName(name string) { m.name = name }

// Len returns the number of fields.
func (m *Message) Len() int { return len(m.fields) }

// FieldNames returns the field names in insertion order.
func (m *Message) FieldNames() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.name
	}
	return names
}

// Get returns the value of the named field. Dotted names ("a.b.c")
// traverse nested object values; the first segment is always a field
// name on the message itself.
func (m *Message) Get(name string) (Value, bool) {
	head, rest, nested := strings.Cut(name, ".")
	i, ok := m.index[head]
	if !ok {
		// A literal field containing dots wins over traversal.
		if j, exact := m.index[name]; exact {
			return m.fields[j].value, true
		}
		return Null(), false
	}
	v := m.fields[i].value
	if !nested {
		return v, true
	}
	return pointer(v, rest)
}

// Has reports whether the named field is present.
func (m *Message) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Set writes the value under the given field name, replacing an existing
// field in place (order preserved) or appending a new one.
func (m *Message) Set(name string, v Value) {
	if i, ok := m.index[name]; ok {
		m.fields[i].value = v
		return
	}
	m.index[name] = len(m.fields)
	m.fields = append(m.fields, field{name: name, value: v})
}

// Rename moves the value under oldName to newName, keeping the field's
// position. Returns false if oldName is absent. If newName already
// exists it is overwritten and its old slot removed.
func (m *Message) Rename(oldName, newName string) bool {
	i, ok := m.index[oldName]
	if !ok {
		return false
	}
	if oldName == newName {
		return true
	}
	if j, exists := m.index[newName]; exists {
		m.removeAt(j)
		// Index may have shifted.
		i = m.index[oldName]
	}
	delete(m.index, oldName)
	m.fields[i].name = newName
	m.index[newName] = i
	return true
}

// Remove deletes the named field. Returns false if absent.
func (m *Message) Remove(name string) bool {
	i, ok := m.index[name]
	if !ok {
		return false
	}
	m.removeAt(i)
	return true
}

func (m *Message) removeAt(i int) {
	delete(m.index, m.fields[i].name)
	m.fields = append(m.fields[:i], m.fields[i+1:]...)
	for j := i; j < len(m.fields); j++ {
		m.index[m.fields[j].name] = j
	}
}

// Range calls fn for every field in insertion order until fn returns false.
func (m *Message) Range(fn func(name string, v Value) bool) {
	for _, f := range m.fields {
		if !fn(f.name, f.value) {
			return
		}
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := &Message{
		name:   m.name,
		fields: make([]field, len(m.fields)),
		index:  make(map[string]int, len(m.index)),
	}
	for i, f := range m.fields {
		c.fields[i] = field{name: f.name, value: f.value.Clone()}
		c.index[f.name] = i
	}
	return c
}

// ToMap converts the message to a native Go map for encoders.
func (m *Message) ToMap() map[string]any {
	out := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		out[f.name] = f.value.any()
	}
	return out
}

// FromMap builds a message from a decoded map. Field insertion order is
// not defined by Go maps, so callers needing deterministic order should
// build messages field by field.
func FromMap(data map[string]any) *Message {
	m := New()
	for k, v := range data {
		m.Set(k, FromAny(v))
	}
	return m
}

// pointer walks a dotted path through nested object values.
func pointer(v Value, path string) (Value, bool) {
	for path != "" {
		obj, ok := v.AsObject()
		if !ok {
			return Null(), false
		}
		var head string
		head, path, _ = strings.Cut(path, ".")
		v, ok = obj[head]
		if !ok {
			return Null(), false
		}
	}
	return v, true
}
