package config

import "time"

// AgentConfig controls the agent core.
type AgentConfig struct {
	// HistoryLimit is how many recent messages are loaded as context
	// for each request.
	HistoryLimit               int `yaml:"history_limit"`
	ConfirmationTimeoutSeconds int `yaml:"confirmation_timeout_seconds"`
}

// DefaultAgentConfig returns agent defaults.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		HistoryLimit:               10,
		ConfirmationTimeoutSeconds: 30,
	}
}

// ConfirmationTimeout returns how long a pending tool confirmation
// waits before being denied.
func (c *AgentConfig) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}
