package function

import (
	"fmt"
	"math"
	"strconv"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterComputer("to_int", newToIntComputer)
	mustRegisterComputer("to_str", newToStringComputer)
	mustRegisterComputer("float_to_str", newFloatToStringComputer)
	mustRegisterComputer("int_to_str", newIntToStringComputer)
}

// toIntComputer coerces scalar inputs to Int64: floats truncate toward
// zero, booleans map to 1/0, strings are parsed as base-10 integers.
// Anything without an integer reading (NaN, out-of-range float, an
// unparsable string, a non-scalar kind, a missing field) yields Null at
// the output field.
type toIntComputer struct {
	field  string
	target string
}

func newToIntComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	return &toIntComputer{field: cfg.Field, target: cfg.outputField()}, nil
}

func (c *toIntComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}

	switch in.Kind() {
	case message.KindInt:
		m.Set(c.target, in)
	case message.KindUint:
		u, _ := in.AsUint()
		if u > math.MaxInt64 {
			m.Set(c.target, message.Null())
			return
		}
		m.Set(c.target, message.Int(int64(u)))
	case message.KindFloat:
		f, _ := in.AsFloat()
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			m.Set(c.target, message.Null())
			return
		}
		m.Set(c.target, message.Int(int64(f)))
	case message.KindBool:
		b, _ := in.AsBool()
		if b {
			m.Set(c.target, message.Int(1))
			return
		}
		m.Set(c.target, message.Int(0))
	case message.KindString:
		s, _ := in.AsString()
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			m.Set(c.target, message.Null())
			return
		}
		m.Set(c.target, message.Int(i))
	default:
		m.Set(c.target, message.Null())
	}
}

// toStringComputer renders scalar inputs as their canonical text form:
// Null becomes "null", booleans "true"/"false", integers their decimal
// digits and floats their fixed-point form at the configured precision
// (shortest round-trip form when no precision is given). Strings pass
// through unchanged; Bytes, Array and Object have no text form and
// yield Null.
type toStringComputer struct {
	field     string
	target    string
	precision int
}

func newToStringComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	precision, err := precisionArg(cfg.Args)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, err.Error())
	}
	return &toStringComputer{field: cfg.Field, target: cfg.outputField(), precision: precision}, nil
}

func (c *toStringComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}
	m.Set(c.target, scalarText(in, c.precision))
}

// floatToStringComputer is the strict variant of to_str: only Float64
// inputs are rendered, at the configured precision. Everything else
// yields Null.
type floatToStringComputer struct {
	field     string
	target    string
	precision int
}

func newFloatToStringComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	precision, err := precisionArg(cfg.Args)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, err.Error())
	}
	return &floatToStringComputer{field: cfg.Field, target: cfg.outputField(), precision: precision}, nil
}

func (c *floatToStringComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}
	f, isFloat := in.AsFloat()
	if !isFloat {
		m.Set(c.target, message.Null())
		return
	}
	m.Set(c.target, message.String(strconv.FormatFloat(f, 'f', c.precision, 64)))
}

// intToStringComputer is the strict variant of to_str: only Int64
// inputs are rendered as decimal digits. Everything else yields Null.
type intToStringComputer struct {
	field  string
	target string
}

func newIntToStringComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	return &intToStringComputer{field: cfg.Field, target: cfg.outputField()}, nil
}

func (c *intToStringComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}
	i, isInt := in.AsInt()
	if !isInt {
		m.Set(c.target, message.Null())
		return
	}
	m.Set(c.target, message.String(strconv.FormatInt(i, 10)))
}

// scalarText renders a scalar value as a string. precision controls the
// number of decimals for Float64 inputs; -1 means the shortest form
// that round-trips. Non-scalar kinds yield Null.
func scalarText(v message.Value, precision int) message.Value {
	switch v.Kind() {
	case message.KindNull:
		return message.String("null")
	case message.KindBool:
		b, _ := v.AsBool()
		return message.String(strconv.FormatBool(b))
	case message.KindInt:
		i, _ := v.AsInt()
		return message.String(strconv.FormatInt(i, 10))
	case message.KindUint:
		u, _ := v.AsUint()
		return message.String(strconv.FormatUint(u, 10))
	case message.KindFloat:
		f, _ := v.AsFloat()
		return message.String(strconv.FormatFloat(f, 'f', precision, 64))
	case message.KindString:
		return v
	default:
		return message.Null()
	}
}

// precisionArg reads the optional "precision" argument. Absent means -1,
// the shortest representation.
func precisionArg(args map[string]any) (int, error) {
	raw, ok := args["precision"]
	if !ok {
		return -1, nil
	}
	switch v := raw.(type) {
	case int:
		if v < 0 {
			return 0, fmt.Errorf("precision is negative")
		}
		return v, nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("precision is negative")
		}
		return int(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, fmt.Errorf("precision %v is not a non-negative integer", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("precision is %T, want integer", raw)
	}
}
