package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Loader loads and parses core configuration files.
type Loader struct{}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFromFile loads and parses a core configuration from a JSON file.
// Returns the validated CoreConfig or an error.
// File errors are wrapped with context (use os.IsNotExist to check for missing file).
func (l *Loader) LoadFromFile(path string) (*CoreConfig, error) {
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

// LoadFromBytes parses core configuration from raw JSON bytes.
// Fields absent from the JSON keep their defaults; the merged result
// is validated before being returned.
// Empty data (len==0) returns ErrConfigEmpty.
func (l *Loader) LoadFromBytes(data []byte) (*CoreConfig, error) {
	if len(data) == 0 {
		return nil, ErrConfigEmpty
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	validator := NewValidator()
	if err := validator.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
