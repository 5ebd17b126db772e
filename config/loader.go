package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Loader reads and validates engine configuration files.
type Loader struct{}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFromFile reads, parses, and validates an engine configuration from
// a JSON file. File errors are wrapped with the path (use os.IsNotExist
// to check for a missing file).
func (l *Loader) LoadFromFile(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromBytes parses and validates engine configuration from raw JSON.
// Zero-length data returns ErrConfigEmpty; parse failures wrap the
// json error.
func (l *Loader) LoadFromBytes(data []byte) (*EngineConfig, error) {
	if len(data) == 0 {
		return nil, ErrConfigEmpty
	}

	var cfg EngineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	if err := NewValidator().Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
