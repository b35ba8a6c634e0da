// Package function implements the polymorphic stream operators applied
// by rules: filters, computers, aggregators and field operators, plus
// the ordered Chain that runs them against each message batch.
//
// Operators form closed tagged-variant sets per category. An operator is
// selected by its type tag through a construction-time registry lookup;
// invalid configuration (unknown tag, bad regex, missing argument) is
// rejected when the chain is compiled, never at run time. Per-message
// faults inside a running operator substitute a typed Null or false
// result and never abort the batch.
package function

import (
	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

// Category identifies an operator family.
type Category string

const (
	// CategoryFilter drops messages and batches
	CategoryFilter Category = "filter"
	// CategoryComputer mutates single message fields in place
	CategoryComputer Category = "computer"
	// CategoryAggregator reduces a closed window to one value
	CategoryAggregator Category = "aggregator"
	// CategoryFieldOp makes whole-batch structural edits
	CategoryFieldOp Category = "fieldop"
)

// Config is one operator configuration inside a rule definition: the
// category and type tag select the implementation, Field names the
// input, TargetField optionally redirects the output, and Args carries
// operator-specific parameters.
type Config struct {
	Category    Category       `json:"category"`
	Type        string         `json:"type"`
	Field       string         `json:"field,omitempty"`
	TargetField string         `json:"target_field,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
}

// outputField returns the field an operator writes to: the target field
// when configured ("add" semantics, source preserved), otherwise the
// source field itself ("set" semantics).
func (c Config) outputField() string {
	if c.TargetField != "" {
		return c.TargetField
	}
	return c.Field
}

// Filter decides whether one message passes. Filters read messages,
// never mutate them. A missing field never passes.
type Filter interface {
	Match(m *message.Message) bool
}

// BatchFilter is implemented by whole-batch gates (exists/not_exists on
// batch metadata) that decide for the batch without per-message
// filtering.
type BatchFilter interface {
	MatchBatch(b *message.Batch) bool
}

// Computer mutates one message in place: it reads the configured input
// field and writes the result to the output field. Missing or
// type-mismatched input yields Null at the output field.
type Computer interface {
	Compute(m *message.Message)
}

// Aggregator reduces a closed window (as a synthetic batch) to a single
// named value. Aggregators are pure: they read the batch only.
type Aggregator interface {
	Aggregate(b *message.Batch) (string, message.Value)
}

// FieldOperator applies a structural edit to every message in a batch.
type FieldOperator interface {
	Apply(b *message.Batch)
}

// Stage is one compiled chain step operating on a whole batch. Apply
// reports whether the batch survives to the next stage.
type Stage interface {
	Apply(b *message.Batch) bool
}

// Chain is the ordered operator list of one rule. A keep=false from any
// filter stage drops the batch and skips the remaining stages.
type Chain struct {
	stages []Stage
}

// NewChain compiles operator configurations into a chain. Aggregator
// configs are rejected here; they belong to the rule's window, not the
// per-batch chain.
func NewChain(configs []Config) (*Chain, error) {
	stages := make([]Stage, 0, len(configs))
	for _, cfg := range configs {
		stage, err := NewStage(cfg)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return &Chain{stages: stages}, nil
}

// Len returns the number of compiled stages.
func (c *Chain) Len() int { return len(c.stages) }

// Apply runs the batch through every stage in configured order. Returns
// false when a filter dropped the batch; remaining stages are skipped,
// not run-then-discarded.
func (c *Chain) Apply(b *message.Batch) bool {
	for _, stage := range c.stages {
		if !stage.Apply(b) {
			return false
		}
	}
	return !b.IsEmpty()
}

// NewStage compiles a single operator configuration into a chain stage.
func NewStage(cfg Config) (Stage, error) {
	switch cfg.Category {
	case CategoryFilter:
		f, err := NewFilter(cfg)
		if err != nil {
			return nil, err
		}
		if bf, ok := f.(BatchFilter); ok {
			return batchFilterStage{bf}, nil
		}
		return filterStage{f}, nil
	case CategoryComputer:
		comp, err := NewComputer(cfg)
		if err != nil {
			return nil, err
		}
		return computerStage{comp}, nil
	case CategoryFieldOp:
		op, err := NewFieldOperator(cfg)
		if err != nil {
			return nil, err
		}
		return fieldOpStage{op}, nil
	case CategoryAggregator:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Chain", "NewStage",
			"aggregator "+cfg.Type+" requires a window, not a chain stage")
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Chain", "NewStage",
			"unknown operator category "+string(cfg.Category))
	}
}

// filterStage retains only passing messages; the batch survives if at
// least one message passes.
type filterStage struct {
	f Filter
}

func (s filterStage) Apply(b *message.Batch) bool {
	kept := b.Messages()[:0]
	for _, m := range b.Messages() {
		if s.f.Match(m) {
			kept = append(kept, m)
		}
	}
	b.SetMessages(kept)
	return len(kept) > 0
}

// batchFilterStage short-circuits the whole batch without per-message
// filtering.
type batchFilterStage struct {
	f BatchFilter
}

func (s batchFilterStage) Apply(b *message.Batch) bool {
	return s.f.MatchBatch(b)
}

type computerStage struct {
	c Computer
}

func (s computerStage) Apply(b *message.Batch) bool {
	for _, m := range b.Messages() {
		s.c.Compute(m)
	}
	return true
}

type fieldOpStage struct {
	op FieldOperator
}

func (s fieldOpStage) Apply(b *message.Batch) bool {
	s.op.Apply(b)
	return true
}
