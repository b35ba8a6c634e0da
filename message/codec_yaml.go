package message

import (
	"gopkg.in/yaml.v3"

	"github.com/datagate-io/datagate/errors"
)

// YAMLCodec round-trips batches through YAML. The wire shape mirrors
// JSONCodec: a mapping is one message, a sequence of mappings is one
// message per element.
type YAMLCodec struct{}

// Name returns the codec tag.
func (YAMLCodec) Name() string { return "yaml" }

// Decode parses YAML bytes into a batch.
func (YAMLCodec) Decode(data []byte) (*Batch, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(errors.ErrDecode, "YAMLCodec", "Decode", "parse yaml: "+err.Error())
	}

	switch t := raw.(type) {
	case map[string]any:
		return FromMessage(FromMap(t)), nil
	case []any:
		b := NewBatch()
		for _, elem := range t {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, errors.WrapInvalid(errors.ErrDecode, "YAMLCodec", "Decode", "sequence element is not a mapping")
			}
			b.Append(FromMap(obj))
		}
		return b, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrDecode, "YAMLCodec", "Decode", "document must be mapping or sequence")
	}
}

// Encode serializes a batch to YAML bytes.
func (YAMLCodec) Encode(b *Batch) ([]byte, error) {
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

	data, err := yaml.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrEncode, "YAMLCodec", "Encode", "marshal yaml: "+err.Error())
	}
	return data, nil
}
