package function

import (
	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterAggregator("sum", newNumericAggregator)
	mustRegisterAggregator("avg", newNumericAggregator)
	mustRegisterAggregator("max", newNumericAggregator)
	mustRegisterAggregator("min", newNumericAggregator)
	mustRegisterAggregator("count", newCountAggregator)
	mustRegisterAggregator("collect", newCollectAggregator)
	// merge emits the same array of present values as collect; it stays
	// a registered alias until the two grow apart.
	mustRegisterAggregator("merge", newCollectAggregator)
	mustRegisterAggregator("dedup", newDedupAggregator)
}

// numericAggregator reduces the numeric values of one field across a
// closed window. Non-numeric and missing fields are ignored. Integer
// inputs keep the result Int64 until the first float widens it.
//
// Empty-input conventions: sum of nothing is Int64(0); avg, max and min
// of nothing are Null.
type numericAggregator struct {
	field  string
	target string
	fn     string
}

func newNumericAggregator(cfg Config) (Aggregator, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", cfg.Type, "field is required")
	}
	return &numericAggregator{field: cfg.Field, target: cfg.outputField(), fn: cfg.Type}, nil
}

func (a *numericAggregator) Aggregate(b *message.Batch) (string, message.Value) {
	var (
		sumI    int64
		sumF    float64
		isFloat bool
		best    message.Value
		count   int64
	)

	for _, m := range b.Messages() {
		v, ok := m.Get(a.field)
		if !ok || !v.IsNumeric() {
			continue
		}
		count++

		switch a.fn {
		case "sum", "avg":
			if i, isInt := v.AsInt(); isInt && !isFloat {
				sumI += i
			} else {
				f, _ := v.Number()
				if !isFloat {
					isFloat = true
					sumF = float64(sumI)
				}
				sumF += f
			}
		case "max":
			if best.IsNull() || numericLess(best, v) {
				best = v
			}
		case "min":
			if best.IsNull() || numericLess(v, best) {
				best = v
			}
		}
	}

	switch a.fn {
	case "sum":
		if isFloat {
			return a.target, message.Float(sumF)
		}
		return a.target, message.Int(sumI)
	case "avg":
		if count == 0 {
			return a.target, message.Null()
		}
		total := sumF
		if !isFloat {
			total = float64(sumI)
		}
		return a.target, message.Float(total / float64(count))
	default: // max, min
		if count == 0 {
			return a.target, message.Null()
		}
		return a.target, best
	}
}

// numericLess compares two numeric values with float64 coercion, the
// one comparison arithmetic operators are allowed to widen for.
func numericLess(a, b message.Value) bool {
	af, _ := a.Number()
	bf, _ := b.Number()
	return af < bf
}

// countAggregator counts the messages where the field is present at
// all, independent of the field's value or type.
type countAggregator struct {
	field  string
	target string
}

func newCountAggregator(cfg Config) (Aggregator, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", cfg.Type, "field is required")
	}
	return &countAggregator{field: cfg.Field, target: cfg.outputField()}, nil
}

func (a *countAggregator) Aggregate(b *message.Batch) (string, message.Value) {
	var n int64
	for _, m := range b.Messages() {
		if m.Has(a.field) {
			n++
		}
	}
	return a.target, message.Int(n)
}

// collectAggregator gathers every present value of the field into an
// ordered array, duplicates kept.
type collectAggregator struct {
	field  string
	target string
}

func newCollectAggregator(cfg Config) (Aggregator, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", cfg.Type, "field is required")
	}
	return &collectAggregator{field: cfg.Field, target: cfg.outputField()}, nil
}

func (a *collectAggregator) Aggregate(b *message.Batch) (string, message.Value) {
	var out []message.Value
	for _, m := range b.Messages() {
		if v, ok := m.Get(a.field); ok {
			out = append(out, v)
		}
	}
	return a.target, message.Array(out...)
}

// dedupAggregator gathers the unique present values of the field in
// first-occurrence order, using structural equality.
type dedupAggregator struct {
	field  string
	target string
}

func newDedupAggregator(cfg Config) (Aggregator, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", cfg.Type, "field is required")
	}
	return &dedupAggregator{field: cfg.Field, target: cfg.outputField()}, nil
}

func (a *dedupAggregator) Aggregate(b *message.Batch) (string, message.Value) {
	var all []message.Value
	for _, m := range b.Messages() {
		if v, ok := m.Get(a.field); ok {
			all = append(all, v)
		}
	}
	return a.target, message.Array(dedupValues(all)...)
}
