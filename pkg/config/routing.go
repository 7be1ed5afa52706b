package config

import "time"

// RoutingConfig controls model selection.
//
// ModelPreferences maps a complexity tier (trivial, simple, moderate,
// complex, expert) or the dedicated "code" tier to an ordered list of
// model IDs tried first under the AUTO strategy. Models absent from
// the registry or currently unavailable are skipped.
type RoutingConfig struct {
	Strategy         Strategy            `yaml:"strategy"`
	ModelPreferences map[string][]string `yaml:"model_preferences"`
	TimeoutSeconds   int                 `yaml:"timeout_seconds"`
	MaxCost          float64             `yaml:"max_cost"`
}

// DefaultRoutingConfig returns routing defaults: AUTO strategy with a
// generous per-generation timeout for local models.
func DefaultRoutingConfig() *RoutingConfig {
	return &RoutingConfig{
		Strategy:       StrategyAuto,
		TimeoutSeconds: 120,
		MaxCost:        1.0,
	}
}

// Timeout returns the per-model generation deadline.
func (c *RoutingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BreakerConfig controls the per-backend circuit breaker.
// Enabled is a pointer so an explicit `enabled: false` survives the
// merge with defaults; nil means enabled.
type BreakerConfig struct {
	Enabled                *bool `yaml:"enabled"`
	Threshold              int   `yaml:"threshold"`
	RecoveryTimeoutSeconds int   `yaml:"recovery_timeout_seconds"`
	HalfOpenMaxCalls       int   `yaml:"half_open_max_calls"`
}

// DefaultBreakerConfig returns breaker defaults: trip after 3
// consecutive failures, probe again after 60s with a single trial call.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Threshold:              3,
		RecoveryTimeoutSeconds: 60,
		HalfOpenMaxCalls:       1,
	}
}

// IsEnabled reports whether the breaker is active (default true).
func (c *BreakerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RecoveryTimeout returns how long an open circuit stays closed to traffic.
func (c *BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSeconds) * time.Second
}
