package message

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/datagate-io/datagate/errors"
)

// TOMLCodec round-trips single-message batches through TOML. TOML
// documents are always a table, so a batch with more than one message
// cannot be encoded, and Null fields are not representable.
type TOMLCodec struct{}

// Name returns the codec tag.
func (TOMLCodec) Name() string { return "toml" }

// Decode parses TOML bytes into a single-message batch.
func (TOMLCodec) Decode(data []byte) (*Batch, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(errors.ErrDecode, "TOMLCodec", "Decode", "parse toml: "+err.Error())
	}
	return FromMessage(FromMap(raw)), nil
}

// Encode serializes a single-message batch to TOML bytes.
func (TOMLCodec) Encode(b *Batch) ([]byte, error) {
	if b.Len() != 1 {
		return nil, errors.WrapInvalid(errors.ErrEncode, "TOMLCodec", "Encode", "toml documents hold exactly one message")
	}

	data, err := toml.Marshal(b.Messages()[0].ToMap())
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrEncode, "TOMLCodec", "Encode", "marshal toml: "+err.Error())
	}
	return data, nil
}
