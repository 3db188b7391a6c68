package otxray

import (
	"fmt"

	"github.com/arloliu/fuda"
	"go.opentelemetry.io/otel"
)

// LoadConfig loads Config from a YAML or JSON file.
// Environment variables override file values; defaults and validation
// come from struct tags.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := fuda.LoadFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("otxray: load config %q: %w", path, err)
	}

	return &cfg, nil
}

// ParseConfig parses Config from YAML or JSON bytes (auto-detected).
// Environment variables override parsed values.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := fuda.LoadBytes(data, &cfg); err != nil {
		return nil, fmt.Errorf("otxray: parse config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a Config populated from struct tag defaults and the
// environment. Malformed values are reported through otel.Handle and leave
// the affected fields at their defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := fuda.SetDefaults(cfg); err != nil {
		otel.Handle(fmt.Errorf("otxray: apply config defaults: %w", err))
	}
	if err := fuda.LoadEnv(cfg); err != nil {
		otel.Handle(fmt.Errorf("otxray: load config from environment: %w", err))
	}

	return cfg
}
