package config

// Config is the umbrella configuration object returned by Load and
// used throughout the application.
type Config struct {
	path string // Source file path (for reference)

	Environment Environment      `yaml:"environment"`
	Server      *ServerConfig    `yaml:"server"`
	Routing     *RoutingConfig   `yaml:"routing"`
	Breaker     *BreakerConfig   `yaml:"breaker"`
	Backends    *BackendsConfig  `yaml:"backends"`
	Models      []ModelConfig    `yaml:"models"`
	Context     *ContextConfig   `yaml:"context"`
	Security    *SecurityConfig  `yaml:"security"`
	Events      *EventsConfig    `yaml:"events"`
	Prompts     *PromptsConfig   `yaml:"prompts"`
	Agent       *AgentConfig     `yaml:"agent"`
	Lifecycle   *LifecycleConfig `yaml:"lifecycle"`
}

// Default returns a fully-populated configuration with built-in
// defaults for every section and an empty model catalog.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server:      DefaultServerConfig(),
		Routing:     DefaultRoutingConfig(),
		Breaker:     DefaultBreakerConfig(),
		Backends:    DefaultBackendsConfig(),
		Context:     DefaultContextConfig(),
		Security:    DefaultSecurityConfig(),
		Events:      DefaultEventsConfig(),
		Prompts:     DefaultPromptsConfig(),
		Agent:       DefaultAgentConfig(),
		Lifecycle:   DefaultLifecycleConfig(),
	}
}

// Path returns the configuration file path this config was loaded
// from, or empty when running on pure defaults.
func (c *Config) Path() string {
	return c.path
}

// IsProduction reports whether the production environment is active.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Models          int
	Backends        int
	PreferenceTiers int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{Models: len(c.Models)}
	if c.Backends != nil {
		if c.Backends.Ollama != nil && c.Backends.Ollama.BaseURL != "" {
			s.Backends++
		}
		if c.Backends.LMStudio != nil && c.Backends.LMStudio.BaseURL != "" {
			s.Backends++
		}
	}
	if c.Routing != nil {
		s.PreferenceTiers = len(c.Routing.ModelPreferences)
	}
	return s
}
