package config

import "time"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// DefaultServerConfig returns server settings suitable for local development.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}
}

// LifecycleConfig controls startup and shutdown behavior.
// WatchdogEnabled is a pointer so an explicit `false` survives the
// merge with defaults; nil means enabled.
type LifecycleConfig struct {
	ShutdownTimeoutSeconds  int   `yaml:"shutdown_timeout_seconds"`
	WatchdogEnabled         *bool `yaml:"watchdog_enabled"`
	WatchdogIntervalSeconds int   `yaml:"watchdog_interval_seconds"`
}

// DefaultLifecycleConfig returns lifecycle settings with sensible timeouts.
func DefaultLifecycleConfig() *LifecycleConfig {
	return &LifecycleConfig{
		ShutdownTimeoutSeconds:  30,
		WatchdogIntervalSeconds: 30,
	}
}

// WatchdogOn reports whether the watchdog is active (default true).
func (c *LifecycleConfig) WatchdogOn() bool {
	return c.WatchdogEnabled == nil || *c.WatchdogEnabled
}

// ShutdownTimeout returns the total budget for graceful shutdown.
func (c *LifecycleConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// WatchdogInterval returns how often the watchdog samples process health.
func (c *LifecycleConfig) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}
