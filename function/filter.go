package function

import (
	"regexp"
	"strings"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterFilter("eq", newCompareFilter)
	mustRegisterFilter("neq", newCompareFilter)
	mustRegisterFilter("gt", newCompareFilter)
	mustRegisterFilter("gte", newCompareFilter)
	mustRegisterFilter("lt", newCompareFilter)
	mustRegisterFilter("lte", newCompareFilter)
	mustRegisterFilter("contains", newContainsFilter)
	mustRegisterFilter("regex", newRegexFilter)
	mustRegisterFilter("is_null", newKindFilter)
	mustRegisterFilter("is_float", newKindFilter)
	mustRegisterFilter("is_string", newKindFilter)
	mustRegisterFilter("is_array", newKindFilter)
	mustRegisterFilter("is_struct", newKindFilter)
	mustRegisterFilter("exists", newExistsGate)
	mustRegisterFilter("not_exists", newExistsGate)
}

// compareFilter implements eq/neq and the ordering predicates. Equality
// is structural (Int(1) never equals Float(1)); the ordering predicates
// compare numerically when both sides are numeric, otherwise
// structurally within the same kind. A missing field never passes.
type compareFilter struct {
	field string
	op    string
	want  message.Value
}

func newCompareFilter(cfg Config) (Filter, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "field is required")
	}
	raw, ok := cfg.Args["value"]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "value argument is required")
	}
	return &compareFilter{field: cfg.Field, op: cfg.Type, want: message.FromAny(raw)}, nil
}

func (f *compareFilter) Match(m *message.Message) bool {
	got, ok := m.Get(f.field)
	if !ok {
		return false
	}

	switch f.op {
	case "eq":
		return got.Equal(f.want)
	case "neq":
		return !got.Equal(f.want)
	}

	// Ordering predicates.
	if gn, ok := got.Number(); ok {
		wn, ok := f.want.Number()
		if !ok {
			return false
		}
		switch f.op {
		case "gt":
			return gn > wn
		case "gte":
			return gn >= wn
		case "lt":
			return gn < wn
		case "lte":
			return gn <= wn
		}
		return false
	}

	if got.Kind() != f.want.Kind() {
		return false
	}
	c := got.Compare(f.want)
	switch f.op {
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	case "lte":
		return c <= 0
	default:
		return false
	}
}

// containsFilter passes string fields containing the configured
// substring and array fields containing a structurally equal element.
type containsFilter struct {
	field string
	want  message.Value
}

func newContainsFilter(cfg Config) (Filter, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "field is required")
	}
	raw, ok := cfg.Args["value"]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "value argument is required")
	}
	return &containsFilter{field: cfg.Field, want: message.FromAny(raw)}, nil
}

func (f *containsFilter) Match(m *message.Message) bool {
	got, ok := m.Get(f.field)
	if !ok {
		return false
	}

	if s, ok := got.AsString(); ok {
		sub, ok := f.want.AsString()
		return ok && strings.Contains(s, sub)
	}
	if arr, ok := got.AsArray(); ok {
		for _, e := range arr {
			if e.Equal(f.want) {
				return true
			}
		}
	}
	return false
}

// regexFilter matches string fields against a pattern compiled once at
// construction. An invalid pattern is a configuration error, never a
// run-time panic.
type regexFilter struct {
	field   string
	pattern *regexp.Regexp
}

func newRegexFilter(cfg Config) (Filter, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "field is required")
	}
	raw, ok := cfg.Args["pattern"].(string)
	if !ok || raw == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "pattern argument is required")
	}
	pattern, err := regexp.Compile(raw)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "compile pattern: "+err.Error())
	}
	return &regexFilter{field: cfg.Field, pattern: pattern}, nil
}

func (f *regexFilter) Match(m *message.Message) bool {
	got, ok := m.Get(f.field)
	if !ok {
		return false
	}
	s, ok := got.AsString()
	if !ok {
		return false
	}
	return f.pattern.MatchString(s)
}

// kindFilter passes messages whose field holds a value of the judged
// kind. is_struct judges Object values; is_null passes only an explicit
// Null value, a missing field never passes.
type kindFilter struct {
	field string
	want  message.Kind
}

func newKindFilter(cfg Config) (Filter, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "field is required")
	}
	var want message.Kind
	switch cfg.Type {
	case "is_null":
		want = message.KindNull
	case "is_float":
		want = message.KindFloat
	case "is_string":
		want = message.KindString
	case "is_array":
		want = message.KindArray
	case "is_struct":
		want = message.KindObject
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "unknown kind judgment")
	}
	return &kindFilter{field: cfg.Field, want: want}, nil
}

func (f *kindFilter) Match(m *message.Message) bool {
	got, ok := m.Get(f.field)
	return ok && got.Kind() == f.want
}

// existsGate is a whole-batch gate on a batch metadata key: the batch
// passes or drops as a unit, without per-message filtering.
type existsGate struct {
	key    string
	negate bool
}

func newExistsGate(cfg Config) (Filter, error) {
	if cfg.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Filter", cfg.Type, "field is required")
	}
	return &existsGate{key: cfg.Field, negate: cfg.Type == "not_exists"}, nil
}

// Match satisfies Filter for interface completeness; gates are applied
// through MatchBatch by the chain.
func (f *existsGate) Match(*message.Message) bool { return true }

func (f *existsGate) MatchBatch(b *message.Batch) bool {
	_, present := b.MetaGet(f.key)
	if f.negate {
		return !present
	}
	return present
}
