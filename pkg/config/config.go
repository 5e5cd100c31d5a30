// Package config provides layered TOML configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load fills target from the given files, listed in priority order: values
// from earlier files win, later files only fill what earlier ones left
// unset. Missing files are skipped; a file that fails to parse is an error.
func Load[T any](target *T, paths ...string) error {
	// Apply lowest-priority files first so higher-priority files override.
	for i := len(paths) - 1; i >= 0; i-- {
		data, err := os.ReadFile(paths[i])
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: read %s: %w", paths[i], err)
		}
		if err := toml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("config: parse %s: %w", paths[i], err)
		}
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config: validation failed: %w", err)
		}
	}
	return nil
}

// FirstExisting returns the first path that exists on disk, or "" when
// none do.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
