// Package config loads and validates the gateway configuration from
// YAML. Defaults are applied on load; a SafeConfig wrapper gives
// concurrent readers a consistent snapshot across live updates.
package config

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datagate-io/datagate/errors"
)

// Duration parses YAML duration strings ("5s", "500ms"). Bare numbers
// are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "UnmarshalYAML", "invalid duration")
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the complete gateway configuration.
type Config struct {
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	StorePath   string   `yaml:"store_path"`
	MetricsAddr string   `yaml:"metrics_addr"`
	QueueCap    int      `yaml:"queue_cap"`
	StopTimeout Duration `yaml:"stop_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		StorePath:   "datagate.db",
		MetricsAddr: ":9090",
		QueueCap:    16,
		StopTimeout: Duration(5 * time.Second),
	}
}

// Load reads, parses and validates a YAML configuration file. Fields
// left out of the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "read "+path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrDecode, "Config", "Load", "parse "+path+": "+err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "log_level must be debug, info, warn or error")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "log_format must be text or json")
	}
	if c.StorePath == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "store_path is required")
	}
	if c.QueueCap <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "queue_cap must be positive")
	}
	if c.StopTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "stop_timeout must be positive")
	}
	return nil
}

// SlogLevel maps the configured level to slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the gateway logger per the configured level and
// format.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// SafeConfig provides thread-safe access to the live configuration.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps a validated configuration.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (sc *SafeConfig) Get() Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return *sc.cfg
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update", "config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cfg = cfg
	return nil
}
