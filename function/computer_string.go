package function

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterComputer("upper", newStringComputer)
	mustRegisterComputer("lower", newStringComputer)
	mustRegisterComputer("trim", newStringComputer)
	mustRegisterComputer("trim_start", newStringComputer)
	mustRegisterComputer("trim_end", newStringComputer)
	mustRegisterComputer("reverse", newStringComputer)
	mustRegisterComputer("length", newStringComputer)
	mustRegisterComputer("base64_encode", newStringComputer)
	mustRegisterComputer("base64_decode", newStringComputer)
	mustRegisterComputer("hex_encode", newStringComputer)
	mustRegisterComputer("hex_decode", newStringComputer)
	mustRegisterComputer("md5", newHashComputer)
	mustRegisterComputer("sha256", newHashComputer)
	mustRegisterComputer("sha384", newHashComputer)
}

// stringComputer applies a unary string function to String/Bytes inputs.
// Bytes inputs are treated as their UTF-8 interpretation. Any other
// input kind yields Null at the output field.
type stringComputer struct {
	field  string
	target string
	fn     string
}

func newStringComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	return &stringComputer{field: cfg.Field, target: cfg.outputField(), fn: cfg.Type}, nil
}

func (c *stringComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}

	var s string
	if str, isStr := in.AsString(); isStr {
		s = str
	} else if b, isBytes := in.AsBytes(); isBytes {
		s = string(b)
	} else {
		m.Set(c.target, message.Null())
		return
	}

	m.Set(c.target, c.apply(s))
}

func (c *stringComputer) apply(s string) message.Value {
	switch c.fn {
	case "upper":
		return message.String(strings.ToUpper(s))
	case "lower":
		return message.String(strings.ToLower(s))
	case "trim":
		return message.String(strings.TrimSpace(s))
	case "trim_start":
		return message.String(strings.TrimLeft(s, " \t\n\r"))
	case "trim_end":
		return message.String(strings.TrimRight(s, " \t\n\r"))
	case "reverse":
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return message.String(string(runes))
	case "length":
		return message.Int(int64(len([]rune(s))))
	case "base64_encode":
		return message.String(base64.StdEncoding.EncodeToString([]byte(s)))
	case "base64_decode":
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return message.Null()
		}
		return message.Bytes(decoded)
	case "hex_encode":
		return message.String(hex.EncodeToString([]byte(s)))
	case "hex_decode":
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return message.Null()
		}
		return message.Bytes(decoded)
	default:
		return message.Null()
	}
}

// hashComputer digests String/Bytes inputs to a hex string. The hasher
// instance is retained across calls for reuse; the digest state is reset
// after every compute so no message contaminates the next. That reset is
// a documented post-condition of Compute.
type hashComputer struct {
	field  string
	target string
	hasher hash.Hash
}

func newHashComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}

	var hasher hash.Hash
	switch cfg.Type {
	case "md5":
		hasher = md5.New()
	case "sha256":
		hasher = sha256.New()
	case "sha384":
		hasher = sha512.New384()
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "unknown hash function")
	}

	return &hashComputer{field: cfg.Field, target: cfg.outputField(), hasher: hasher}, nil
}

func (c *hashComputer) Compute(m *message.Message) {
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

	c.hasher.Write(data)
	sum := c.hasher.Sum(nil)
	c.hasher.Reset()

	m.Set(c.target, message.String(hex.EncodeToString(sum)))
}
