// Package rule implements the user-configured processing units binding
// sources, an ordered operator chain and sinks. A running rule is one
// task: it waits on its merged source input, applies the compiled
// chain, drives its window engine and forwards results to every bound
// sink.
package rule

import (
	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/function"
	"github.com/datagate-io/datagate/window"
)

// Definition is one rule's configuration: source bindings, the ordered
// operator list, an optional window and sink bindings. A running rule
// never mutates its definition in place; updates compile a fresh
// program and swap it through a stop/start cycle.
type Definition struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Sources   []string          `json:"sources" yaml:"sources"`
	Operators []function.Config `json:"operators,omitempty" yaml:"operators,omitempty"`
	Window    *window.Config    `json:"window,omitempty" yaml:"window,omitempty"`
	Sinks     []string          `json:"sinks" yaml:"sinks"`
}

// Validate checks the definition by fully compiling it: every operator
// constructor runs, so unknown tags, bad regexes and missing arguments
// all surface here rather than at runtime.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "Validate", "id is required")
	}
	if len(d.Sources) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "Validate", "at least one source binding is required")
	}
	if len(d.Sinks) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "Validate", "at least one sink binding is required")
	}
	_, err := d.compile()
	return err
}

// program is a compiled definition: the per-batch chain, the window
// engine and the aggregators run on every closed window.
type program struct {
	chain *function.Chain
	aggs  []function.Aggregator
	win   *window.Engine
}

// compile splits the operator list into the per-batch chain and the
// window-scoped aggregators. Aggregators demand a window; a window
// without aggregators has nothing to emit and is rejected too.
func (d *Definition) compile() (*program, error) {
	var (
		chainCfgs []function.Config
		aggs      []function.Aggregator
	)
	for _, cfg := range d.Operators {
		if cfg.Category == function.CategoryAggregator {
			agg, err := function.NewAggregator(cfg)
			if err != nil {
				return nil, err
			}
			aggs = append(aggs, agg)
			continue
		}
		chainCfgs = append(chainCfgs, cfg)
	}

	chain, err := function.NewChain(chainCfgs)
	if err != nil {
		return nil, err
	}

	p := &program{chain: chain, aggs: aggs}
	if d.Window != nil {
		if len(aggs) == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "compile", "window requires at least one aggregator")
		}
		win, err := window.New(*d.Window)
		if err != nil {
			return nil, err
		}
		p.win = win
	} else if len(aggs) > 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Rule", "compile", "aggregators require a window")
	}
	return p, nil
}
