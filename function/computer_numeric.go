package function

import (
	"math"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterComputer("abs", newNumericComputer)
	mustRegisterComputer("ceil", newNumericComputer)
	mustRegisterComputer("floor", newNumericComputer)
	mustRegisterComputer("round", newNumericComputer)
	mustRegisterComputer("sign", newNumericComputer)
	mustRegisterComputer("sin", newNumericComputer)
	mustRegisterComputer("cos", newNumericComputer)
	mustRegisterComputer("tan", newNumericComputer)
	mustRegisterComputer("asin", newNumericComputer)
	mustRegisterComputer("acos", newNumericComputer)
	mustRegisterComputer("atan", newNumericComputer)
	mustRegisterComputer("exp", newNumericComputer)
	mustRegisterComputer("ln", newNumericComputer)
	mustRegisterComputer("log10", newNumericComputer)
	mustRegisterComputer("bitnot", newNumericComputer)
}

// numericComputer applies a unary numeric function to Int64/Float64
// inputs. Kind-preserving functions (abs, ceil, floor, round, bitnot)
// keep Int64 inputs Int64; transcendental functions always produce
// Float64. Any other input kind yields Null at the output field.
type numericComputer struct {
	field  string
	target string
	fn     string
}

func newNumericComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	return &numericComputer{field: cfg.Field, target: cfg.outputField(), fn: cfg.Type}, nil
}

func (c *numericComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}

	if i, isInt := in.AsInt(); isInt {
		if out, handled := c.applyInt(i); handled {
			m.Set(c.target, out)
			return
		}
		m.Set(c.target, c.applyFloat(float64(i)))
		return
	}

	if f, isFloat := in.AsFloat(); isFloat {
		m.Set(c.target, c.applyFloat(f))
		return
	}

	// Numeric computers apply only to Int64/Float64.
	m.Set(c.target, message.Null())
}

// applyInt handles the kind-preserving functions for integer input.
func (c *numericComputer) applyInt(i int64) (message.Value, bool) {
	switch c.fn {
	case "abs":
		if i == math.MinInt64 {
			// -MinInt64 is not representable as Int64; widen the one
			// pathological value to Float64 instead of overflowing.
			return message.Float(-float64(i)), true
		}
		if i < 0 {
			return message.Int(-i), true
		}
		return message.Int(i), true
	case "ceil", "floor", "round":
		return message.Int(i), true
	case "sign":
		switch {
		case i > 0:
			return message.Int(1), true
		case i < 0:
			return message.Int(-1), true
		default:
			return message.Int(0), true
		}
	case "bitnot":
		return message.Int(^i), true
	default:
		return message.Null(), false
	}
}

func (c *numericComputer) applyFloat(f float64) message.Value {
	switch c.fn {
	case "abs":
		return message.Float(math.Abs(f))
	case "ceil":
		return message.Float(math.Ceil(f))
	case "floor":
		return message.Float(math.Floor(f))
	case "round":
		return message.Float(math.Round(f))
	case "sign":
		switch {
		case f > 0:
			return message.Int(1)
		case f < 0:
			return message.Int(-1)
		default:
			return message.Int(0)
		}
	case "sin":
		return message.Float(math.Sin(f))
	case "cos":
		return message.Float(math.Cos(f))
	case "tan":
		return message.Float(math.Tan(f))
	case "asin":
		return message.Float(math.Asin(f))
	case "acos":
		return message.Float(math.Acos(f))
	case "atan":
		return message.Float(math.Atan(f))
	case "exp":
		return message.Float(math.Exp(f))
	case "ln":
		return message.Float(math.Log(f))
	case "log10":
		return message.Float(math.Log10(f))
	case "bitnot":
		// Bitwise complement is integer-only.
		return message.Null()
	default:
		return message.Null()
	}
}
