package config

import "time"

// PromptsConfig controls the prompt template manager.
type PromptsConfig struct {
	Dir             string `yaml:"dir"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// DefaultPromptsConfig returns prompt manager defaults.
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Dir:             "prompts",
		CacheTTLSeconds: 300,
	}
}

// CacheTTL returns how long a loaded template stays fresh without a
// filesystem check.
func (c *PromptsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
