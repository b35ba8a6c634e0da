package message

// Batch is an ordered sequence of Messages moving through the pipeline
// as one unit of work, plus batch-level metadata (source id, timestamps).
// Batch order is preserved end to end unless an operator explicitly
// reorders. Each routing-fabric subscriber receives an independent clone,
// so a Batch is only ever mutated by the single rule task that owns it.
type Batch struct {
	name     string
	messages []*Message
	meta     map[string]Value
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{meta: make(map[string]Value)}
}

// FromMessage wraps a single message in a batch, the common shape for
// single-reading sources.
func FromMessage(m *Message) *Batch {
	b := NewBatch()
	b.Append(m)
	return b
}

// FromMessages wraps a message slice in a batch, preserving order.
func FromMessages(msgs []*Message) *Batch {
	b := NewBatch()
	for _, m := range msgs {
		b.Append(m)
	}
	return b
}

// Name returns the batch name tag.
func (b *Batch) Name() string { return b.name }

// SetName sets the batch name tag.
func (b *Batch) SetName(name string) { b.name = name }

// Len returns the number of messages in the batch.
func (b *Batch) Len() int { return len(b.messages) }

// IsEmpty reports whether the batch holds no messages.
func (b *Batch) IsEmpty() bool { return len(b.messages) == 0 }

// Append adds a message to the end of the batch.
func (b *Batch) Append(m *Message) {
	b.messages = append(b.messages, m)
}

// Extend appends all of other's messages, preserving their order.
func (b *Batch) Extend(other *Batch) {
	b.messages = append(b.messages, other.messages...)
}

// Messages returns the underlying message slice. Mutations through the
// returned messages are visible to the batch owner; this is how
// computers and field operators edit in place.
func (b *Batch) Messages() []*Message { return b.messages }

// SetMessages replaces the message slice. Used by operators that are
// documented to reorder or drop messages.
func (b *Batch) SetMessages(msgs []*Message) { b.messages = msgs }

// MetaGet returns a batch-level metadata value.
func (b *Batch) MetaGet(key string) (Value, bool) {
	v, ok := b.meta[key]
	if !ok {
		return Null(), false
	}
	return v, true
}

// MetaSet sets a batch-level metadata value.
func (b *Batch) MetaSet(key string, v Value) {
	b.meta[key] = v
}

// MetaRange calls fn for every metadata entry until fn returns false.
func (b *Batch) MetaRange(fn func(key string, v Value) bool) {
	for k, v := range b.meta {
		if !fn(k, v) {
			return
		}
	}
}

// Clone returns a deep copy of the batch. The routing fabric hands every
// subscriber its own clone so rule tasks never share message state.
func (b *Batch) Clone() *Batch {
	c := &Batch{
		name:     b.name,
		messages: make([]*Message, len(b.messages)),
		meta:     make(map[string]Value, len(b.meta)),
	}
	for i, m := range b.messages {
		c.messages[i] = m.Clone()
	}
	for k, v := range b.meta {
		c.meta[k] = v.Clone()
	}
	return c
}
