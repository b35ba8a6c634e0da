package message

import (
	"github.com/datagate-io/datagate/errors"
)

// Codec is the schema encode/decode boundary. Sources decode raw bytes
// into batches, sinks encode batches back into bytes. A failed Decode
// never partially populates a batch.
type Codec interface {
	// Name returns the codec tag used in configuration ("json", "yaml", "toml").
	Name() string

	// Decode parses raw bytes into a batch. Malformed input fails with
	// an error wrapping errors.ErrDecode.
	Decode(data []byte) (*Batch, error)

	// Encode serializes a batch. Fails with an error wrapping
	// errors.ErrEncode when the batch cannot be represented.
	Encode(b *Batch) ([]byte, error)
}

// NewCodec returns the codec registered under the given tag.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "json", "":
		return JSONCodec{}, nil
	case "yaml":
		return YAMLCodec{}, nil
	case "toml":
		return TOMLCodec{}, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Codec", "NewCodec", "unknown codec "+name)
	}
}
