package message

import (
	"bytes"
	"encoding/json"

	"github.com/datagate-io/datagate/errors"
)

// JSONCodec round-trips batches through JSON. A top-level object decodes
// to a single-message batch; a top-level array of objects decodes to one
// message per element. Encoding inverts that: single-message batches
// produce an object, everything else an array.
type JSONCodec struct{}

// Name returns the codec tag.
func (JSONCodec) Name() string { return "json" }

// Decode parses JSON bytes into a batch.
func (JSONCodec) Decode(data []byte) (*Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.WrapInvalid(errors.ErrDecode, "JSONCodec", "Decode", "parse json: "+err.Error())
	}

	switch t := raw.(type) {
	case map[string]any:
		return FromMessage(FromMap(t)), nil
	case []any:
		b := NewBatch()
		for _, elem := range t {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, errors.WrapInvalid(errors.ErrDecode, "JSONCodec", "Decode", "array element is not an object")
			}
			b.Append(FromMap(obj))
		}
		return b, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrDecode, "JSONCodec", "Decode", "top-level value must be object or array")
	}
}

// Encode serializes a batch to JSON bytes.
func (JSONCodec) Encode(b *Batch) ([]byte, error) {
	var payload any
	if b.Len() == 1 {
		payload = b.Messages()[0].ToMap()
	} else {
		maps := make([]map[string]any, b.Len())
		for i, m := range b.Messages() {
			maps[i] = m.ToMap()
		}
		payload = maps
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrEncode, "JSONCodec", "Encode", "marshal json: "+err.Error())
	}
	return data, nil
}
