package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/datagate-io/datagate/errors"
)

// Adapter is a protocol driver producing raw payloads into a source.
// Start must not block: it connects and subscribes, then delivers
// payloads through emit until the context is cancelled or Stop is
// called. Adapters never decode; the owning source does.
type Adapter interface {
	Start(ctx context.Context, emit func(payload []byte)) error
	Stop(timeout time.Duration) error
}

// AdapterFactory builds an adapter from a source configuration.
type AdapterFactory func(cfg Config, logger *slog.Logger) (Adapter, error)

var (
	adapterMu sync.RWMutex
	adapters  = make(map[string]AdapterFactory)
)

// RegisterAdapter registers a source adapter factory under a type tag.
func RegisterAdapter(tag string, f AdapterFactory) error {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	if _, exists := adapters[tag]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "RegisterAdapter", "duplicate adapter "+tag)
	}
	adapters[tag] = f
	return nil
}

// NewAdapter builds the adapter named by cfg.Adapter.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	adapterMu.RLock()
	factory, ok := adapters[cfg.Adapter]
	adapterMu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "NewAdapter", "unknown adapter "+cfg.Adapter)
	}
	return factory(cfg, logger)
}

// AdapterTags returns the registered adapter tags, sorted.
func AdapterTags() []string {
	adapterMu.RLock()
	defer adapterMu.RUnlock()
	tags := make([]string, 0, len(adapters))
	for t := range adapters {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func mustRegisterAdapter(tag string, f AdapterFactory) {
	if err := RegisterAdapter(tag, f); err != nil {
		panic(err)
	}
}

// stringArg reads a required string from an adapter Args map.
func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

// optStringArg reads an optional string, falling back to a default.
func optStringArg(args map[string]any, key, fallback string) string {
	if raw, ok := args[key]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// optIntArg reads an optional integer, tolerating the numeric types
// JSON and YAML decoding produce.
func optIntArg(args map[string]any, key string, fallback int) int {
	raw, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
