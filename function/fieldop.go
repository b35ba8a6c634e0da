package function

import (
	"fmt"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterFieldOperator("rename", newRenameOperator)
	// move is rename under a different tag; both copy nothing and keep
	// field order.
	mustRegisterFieldOperator("move", newRenameOperator)
	mustRegisterFieldOperator("except", newExceptOperator)
}

// renameOperator renames fields on every message of a batch according
// to an old-to-new name map. A rename onto an existing field name
// overwrites it; missing source fields are skipped.
type renameOperator struct {
	mapping map[string]string
}

func newRenameOperator(cfg Config) (FieldOperator, error) {
	raw, ok := cfg.Args["fields"]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FieldOperator", cfg.Type, "fields map is required")
	}
	mapping, err := stringMapArg(raw)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FieldOperator", cfg.Type, err.Error())
	}
	if len(mapping) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FieldOperator", cfg.Type, "fields map is empty")
	}
	for oldName, newName := range mapping {
		if oldName == "" || newName == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FieldOperator", cfg.Type, "empty field name in mapping")
		}
	}
	return &renameOperator{mapping: mapping}, nil
}

func (op *renameOperator) Apply(b *message.Batch) {
	for _, m := range b.Messages() {
		for oldName, newName := range op.mapping {
			m.Rename(oldName, newName)
		}
	}
}

// exceptOperator removes the listed fields from every message of a
// batch. Names that are absent on a message are ignored.
type exceptOperator struct {
	fields []string
}

func newExceptOperator(cfg Config) (FieldOperator, error) {
	raw, ok := cfg.Args["fields"]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FieldOperator", cfg.Type, "fields list is required")
	}
	fields, err := stringSliceArg(raw)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FieldOperator", cfg.Type, err.Error())
	}
	if len(fields) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FieldOperator", cfg.Type, "fields list is empty")
	}
	return &exceptOperator{fields: fields}, nil
}

func (op *exceptOperator) Apply(b *message.Batch) {
	for _, m := range b.Messages() {
		for _, name := range op.fields {
			m.Remove(name)
		}
	}
}

// stringMapArg coerces a decoded Args entry into map[string]string. JSON
// and YAML decoding hand the map over as map[string]any.
func stringMapArg(raw any) (map[string]string, error) {
	switch v := raw.(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("fields[%s] is %T, want string", k, e)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("fields is %T, want map of strings", raw)
	}
}

// stringSliceArg coerces a decoded Args entry into []string.
func stringSliceArg(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("fields[%d] is %T, want string", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("fields is %T, want list of strings", raw)
	}
}
