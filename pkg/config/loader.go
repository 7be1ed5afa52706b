package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither the argument nor PORTAL_CONFIG
// names a configuration file.
const DefaultPath = "config/portal.yaml"

// Load reads, merges, and validates configuration. This is the primary
// entry point for configuration loading.
//
// Steps performed:
//  1. Resolve the file path (argument, then PORTAL_CONFIG, then default)
//  2. Read the YAML file; a missing file yields pure defaults
//  3. Expand environment variables ({{.VAR}} template syntax)
//  4. Parse YAML and merge over built-in defaults
//  5. Validate the result
func Load(path string) (*Config, error) {
	path = resolvePath(path)
	log := slog.With("config_file", path)
	log.Info("Loading configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration loaded",
		"environment", cfg.Environment,
		"models", stats.Models,
		"backends", stats.Backends,
		"preference_tiers", stats.PreferenceTiers)

	return cfg, nil
}

func resolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("PORTAL_CONFIG"); env != "" {
		return env
	}
	return DefaultPath
}

// load is the internal loader (not exported)
func load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Running on pure defaults is supported for local setups
			// where both backends listen on their standard ports.
			slog.Info("Configuration file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// Merge user-provided config into defaults (non-zero values override)
	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("merging configuration: %w", err))
	}

	cfg.path = path
	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
