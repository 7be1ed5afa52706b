package config

import "time"

// ContextConfig controls conversation persistence and retention.
type ContextConfig struct {
	DBPath                 string `yaml:"db_path"`
	MaxContextMessages     int    `yaml:"max_context_messages"`
	RetentionDays          int    `yaml:"retention_days"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
}

// DefaultContextConfig returns conversation store defaults. Retention
// of zero days disables the cleanup sweep.
func DefaultContextConfig() *ContextConfig {
	return &ContextConfig{
		DBPath:                 "data/portal.db",
		MaxContextMessages:     50,
		RetentionDays:          30,
		CleanupIntervalSeconds: 21600,
	}
}

// CleanupInterval returns how often expired conversations are purged.
func (c *ContextConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// Retention returns the age past which messages are purged.
func (c *ContextConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
