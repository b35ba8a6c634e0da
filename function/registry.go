package function

import (
	"sort"
	"sync"

	"github.com/datagate-io/datagate/errors"
)

// FilterFactory builds a filter from its configuration.
type FilterFactory func(cfg Config) (Filter, error)

// ComputerFactory builds a computer from its configuration.
type ComputerFactory func(cfg Config) (Computer, error)

// AggregatorFactory builds an aggregator from its configuration.
type AggregatorFactory func(cfg Config) (Aggregator, error)

// FieldOperatorFactory builds a field operator from its configuration.
type FieldOperatorFactory func(cfg Config) (FieldOperator, error)

// registry holds the factory tables for all operator categories. The
// built-in operators register through init(); the tables are mutable so
// embedding applications can add their own variants before compiling
// rules.
type registry struct {
	mu          sync.RWMutex
	filters     map[string]FilterFactory
	computers   map[string]ComputerFactory
	aggregators map[string]AggregatorFactory
	fieldOps    map[string]FieldOperatorFactory
}

var defaultRegistry = &registry{
	filters:     make(map[string]FilterFactory),
	computers:   make(map[string]ComputerFactory),
	aggregators: make(map[string]AggregatorFactory),
	fieldOps:    make(map[string]FieldOperatorFactory),
}

// RegisterFilter registers a filter factory under the given type tag.
func RegisterFilter(tag string, f FilterFactory) error {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, exists := defaultRegistry.filters[tag]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFilter", "duplicate tag "+tag)
	}
	defaultRegistry.filters[tag] = f
	return nil
}

// RegisterComputer registers a computer factory under the given type tag.
func RegisterComputer(tag string, f ComputerFactory) error {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, exists := defaultRegistry.computers[tag]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterComputer", "duplicate tag "+tag)
	}
	defaultRegistry.computers[tag] = f
	return nil
}

// RegisterAggregator registers an aggregator factory under the given type tag.
func RegisterAggregator(tag string, f AggregatorFactory) error {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, exists := defaultRegistry.aggregators[tag]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterAggregator", "duplicate tag "+tag)
	}
	defaultRegistry.aggregators[tag] = f
	return nil
}

// RegisterFieldOperator registers a field-operator factory under the given tag.
func RegisterFieldOperator(tag string, f FieldOperatorFactory) error {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, exists := defaultRegistry.fieldOps[tag]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFieldOperator", "duplicate tag "+tag)
	}
	defaultRegistry.fieldOps[tag] = f
	return nil
}

// NewFilter builds the filter named by cfg.Type.
func NewFilter(cfg Config) (Filter, error) {
	defaultRegistry.mu.RLock()
	factory, ok := defaultRegistry.filters[cfg.Type]
	defaultRegistry.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewFilter", "unknown filter "+cfg.Type)
	}
	return factory(cfg)
}

// NewComputer builds the computer named by cfg.Type.
func NewComputer(cfg Config) (Computer, error) {
	defaultRegistry.mu.RLock()
	factory, ok := defaultRegistry.computers[cfg.Type]
	defaultRegistry.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewComputer", "unknown computer "+cfg.Type)
	}
	return factory(cfg)
}

// NewAggregator builds the aggregator named by cfg.Type.
func NewAggregator(cfg Config) (Aggregator, error) {
	defaultRegistry.mu.RLock()
	factory, ok := defaultRegistry.aggregators[cfg.Type]
	defaultRegistry.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewAggregator", "unknown aggregator "+cfg.Type)
	}
	return factory(cfg)
}

// NewFieldOperator builds the field operator named by cfg.Type.
func NewFieldOperator(cfg Config) (FieldOperator, error) {
	defaultRegistry.mu.RLock()
	factory, ok := defaultRegistry.fieldOps[cfg.Type]
	defaultRegistry.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewFieldOperator", "unknown field operator "+cfg.Type)
	}
	return factory(cfg)
}

// Tags returns the registered type tags for a category, sorted, for
// discovery and configuration validation messages.
func Tags(cat Category) []string {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()

	var tags []string
	switch cat {
	case CategoryFilter:
		for t := range defaultRegistry.filters {
			tags = append(tags, t)
		}
	case CategoryComputer:
		for t := range defaultRegistry.computers {
			tags = append(tags, t)
		}
	case CategoryAggregator:
		for t := range defaultRegistry.aggregators {
			tags = append(tags, t)
		}
	case CategoryFieldOp:
		for t := range defaultRegistry.fieldOps {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

func mustRegisterFilter(tag string, f FilterFactory) {
	if err := RegisterFilter(tag, f); err != nil {
		panic(err)
	}
}

func mustRegisterComputer(tag string, f ComputerFactory) {
	if err := RegisterComputer(tag, f); err != nil {
		panic(err)
	}
}

func mustRegisterAggregator(tag string, f AggregatorFactory) {
	if err := RegisterAggregator(tag, f); err != nil {
		panic(err)
	}
}

func mustRegisterFieldOperator(tag string, f FieldOperatorFactory) {
	if err := RegisterFieldOperator(tag, f); err != nil {
		panic(err)
	}
}
