package config

import "time"

// SecurityConfig controls the rate limiter and input sanitizer.
// The *bool fields survive an explicit `false` through the merge with
// defaults; nil means enabled.
type SecurityConfig struct {
	RateLimitRequests   int    `yaml:"rate_limit_requests"`
	WindowSeconds       int    `yaml:"window_seconds"`
	StatePath           string `yaml:"state_path"`
	SaveIntervalSeconds int    `yaml:"save_interval_seconds"`
	SanitizeEnabled     *bool  `yaml:"sanitize_enabled"`
	RateLimitEnabled    *bool  `yaml:"rate_limit_enabled"`
	MaxMessageLength    int    `yaml:"max_message_length"`
	SandboxEnabled      bool   `yaml:"sandbox_enabled"`
}

// DefaultSecurityConfig returns security defaults: 20 requests per
// minute per user, sanitization on, 10k character message cap.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		RateLimitRequests:   20,
		WindowSeconds:       60,
		StatePath:           "data/rate_limits.json",
		SaveIntervalSeconds: 300,
		MaxMessageLength:    10000,
	}
}

// SanitizeOn reports whether input sanitization is active (default true).
func (c *SecurityConfig) SanitizeOn() bool {
	return c.SanitizeEnabled == nil || *c.SanitizeEnabled
}

// RateLimitOn reports whether rate limiting is active (default true).
func (c *SecurityConfig) RateLimitOn() bool {
	return c.RateLimitEnabled == nil || *c.RateLimitEnabled
}

// Window returns the sliding-window size for rate limiting.
func (c *SecurityConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// SaveInterval returns the minimum spacing between state flushes.
func (c *SecurityConfig) SaveInterval() time.Duration {
	return time.Duration(c.SaveIntervalSeconds) * time.Second
}
