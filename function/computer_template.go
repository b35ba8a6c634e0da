package function

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterComputer("template", newTemplateComputer)
}

var templateFieldPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// templateComputer renders a {{field}} substitution template against
// each message and writes the result to the target field ("tpl" when
// none is configured). Scalar fields render as their canonical text
// form, composite fields as JSON, missing fields as "null".
type templateComputer struct {
	template string
	fields   []string
	target   string
}

func newTemplateComputer(cfg Config) (Computer, error) {
	raw, ok := cfg.Args["template"].(string)
	if !ok || raw == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Computer", cfg.Type, "template argument is required")
	}

	seen := make(map[string]struct{})
	var fields []string
	for _, match := range templateFieldPattern.FindAllStringSubmatch(raw, -1) {
		if _, dup := seen[match[1]]; dup {
			continue
		}
		seen[match[1]] = struct{}{}
		fields = append(fields, match[1])
	}

	target := cfg.TargetField
	if target == "" {
		target = "tpl"
	}
	return &templateComputer{template: raw, fields: fields, target: target}, nil
}

func (c *templateComputer) Compute(m *message.Message) {
	rendered := c.template
	for _, field := range c.fields {
		v, ok := m.Get(field)
		if !ok {
			v = message.Null()
		}
		rendered = strings.ReplaceAll(rendered, "{{"+field+"}}", renderText(v))
	}
	m.Set(c.target, message.String(rendered))
}

// renderText is the template rendering of one value: scalars by their
// canonical text form, composites by their JSON encoding.
func renderText(v message.Value) string {
	if s := scalarText(v, -1); !s.IsNull() {
		out, _ := s.AsString()
		return out
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
