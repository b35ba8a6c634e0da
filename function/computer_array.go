package function

import (
	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	// length and reverse exist for strings too; the array variants carry
	// a prefix so the computer tag namespace stays unambiguous.
	mustRegisterComputer("array_length", newArrayComputer)
	mustRegisterComputer("array_reverse", newArrayComputer)
	mustRegisterComputer("cardinality", newArrayComputer)
	mustRegisterComputer("distinct", newArrayComputer)
	mustRegisterComputer("pop", newArrayComputer)
}

// arrayComputer applies a unary function to Array inputs. Any other
// input kind yields Null at the output field.
type arrayComputer struct {
	field  string
	target string
	fn     string
}

func newArrayComputer(cfg Config) (Computer, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "field is required")
	}
	return &arrayComputer{field: cfg.Field, target: cfg.outputField(), fn: cfg.Type}, nil
}

func (c *arrayComputer) Compute(m *message.Message) {
	in, ok := m.Get(c.field)
	if !ok {
		m.Set(c.target, message.Null())
		return
	}
	arr, ok := in.AsArray()
	if !ok {
		m.Set(c.target, message.Null())
		return
	}

	switch c.fn {
	case "array_length":
		m.Set(c.target, message.Int(int64(len(arr))))
	case "cardinality":
		m.Set(c.target, message.Int(int64(len(dedupValues(arr)))))
	case "distinct":
		m.Set(c.target, message.Array(dedupValues(arr)...))
	case "array_reverse":
		out := make([]message.Value, len(arr))
		for i, v := range arr {
			out[len(arr)-1-i] = v
		}
		m.Set(c.target, message.Array(out...))
	case "pop":
		if len(arr) == 0 {
			m.Set(c.target, message.Array())
			return
		}
		out := make([]message.Value, len(arr)-1)
		copy(out, arr[:len(arr)-1])
		m.Set(c.target, message.Array(out...))
	default:
		m.Set(c.target, message.Null())
	}
}

// dedupValues returns the unique values of arr in first-occurrence
// order, using structural equality.
func dedupValues(arr []message.Value) []message.Value {
	var out []message.Value
	for _, v := range arr {
		seen := false
		for _, u := range out {
			if u.Equal(v) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, v)
		}
	}
	return out
}
