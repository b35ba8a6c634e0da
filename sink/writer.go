package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

// Writer is a protocol driver delivering encoded payloads. Connect is
// called on sink start, Write once per batch with the resolved target
// and the encoded payload (the batch itself rides along for writers
// that address fields directly, like the influx line writer).
type Writer interface {
	Connect(ctx context.Context) error
	Write(ctx context.Context, target string, payload []byte, b *message.Batch) error
	Close(timeout time.Duration) error
}

// WriterFactory builds a writer from a sink configuration.
type WriterFactory func(cfg Config, logger *slog.Logger) (Writer, error)

var (
	writerMu sync.RWMutex
	writers  = make(map[string]WriterFactory)
)

// RegisterWriter registers a sink writer factory under a type tag.
func RegisterWriter(tag string, f WriterFactory) error {
	writerMu.Lock()
	defer writerMu.Unlock()
	if _, exists := writers[tag]; exists {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "RegisterWriter", "duplicate writer "+tag)
	}
	writers[tag] = f
	return nil
}

// NewWriter builds the writer named by cfg.Adapter.
func NewWriter(cfg Config, logger *slog.Logger) (Writer, error) {
	writerMu.RLock()
	factory, ok := writers[cfg.Adapter]
	writerMu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "NewWriter", "unknown writer "+cfg.Adapter)
	}
	return factory(cfg, logger)
}

// WriterTags returns the registered writer tags, sorted.
func WriterTags() []string {
	writerMu.RLock()
	defer writerMu.RUnlock()
	tags := make([]string, 0, len(writers))
	for t := range writers {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func mustRegisterWriter(tag string, f WriterFactory) {
	if err := RegisterWriter(tag, f); err != nil {
		panic(err)
	}
}

// stringArg reads a required string from a writer Args map.
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
