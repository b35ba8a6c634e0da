package function

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterComputer("zlib_encode", newCompressComputer)
	mustRegisterComputer("zlib_decode", newCompressComputer)
	mustRegisterComputer("deflate_encode", newCompressComputer)
	mustRegisterComputer("deflate_decode", newCompressComputer)
}

// compressComputer compresses or decompresses String/Bytes inputs to a
// Bytes output. String inputs are taken as their UTF-8 bytes. A codec
// failure (corrupt input on decode) yields Null at the output field.
type compressComputer struct {
	field  string
	target string
	fn     string
}

func newCompressComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	return &compressComputer{field: cfg.Field, target: cfg.outputField(), fn: cfg.Type}, nil
}

func (c *compressComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}

	var data []byte
	if s, isStr := in.AsString(); isStr {
		data = []byte(s)
	} else if b, isBytes := in.AsBytes(); isBytes {
		data = b
	} else {
		m.Set(c.target, message.Null())
		return
	}

	out, err := c.apply(data)
	if err != nil {
		m.Set(c.target, message.Null())
		return
	}
	m.Set(c.target, message.Bytes(out))
}

func (c *compressComputer) apply(data []byte) ([]byte, error) {
	switch c.fn {
	case "zlib_encode":
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "zlib_decode":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate_encode":
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "deflate_decode":
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", c.fn, "unknown codec")
	}
}
