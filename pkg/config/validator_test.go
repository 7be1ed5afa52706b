package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	cfg := Default()
	cfg.Models = []ModelConfig{
		{
			ID:           "llama3.2",
			Backend:      "ollama",
			Capabilities: []string{"general", "code"},
			SpeedClass:   "fast",
			Quality:      QualityConfig{General: 0.7, Code: 0.6},
			Cost:         0.1,
		},
	}
	return cfg
}

func TestValidateAllValid(t *testing.T) {
	require.NoError(t, NewValidator(validTestConfig()).ValidateAll())
}

func TestValidateAllRejects(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{
			name:     "bad environment",
			mutate:   func(c *Config) { c.Environment = "staging" },
			contains: "invalid field value",
		},
		{
			name:     "port out of range",
			mutate:   func(c *Config) { c.Server.Port = 70000 },
			contains: "port",
		},
		{
			name:     "unknown strategy",
			mutate:   func(c *Config) { c.Routing.Strategy = "TURBO" },
			contains: "strategy",
		},
		{
			name:     "max_cost out of range",
			mutate:   func(c *Config) { c.Routing.MaxCost = 1.5 },
			contains: "max_cost",
		},
		{
			name:     "unknown preference tier",
			mutate:   func(c *Config) { c.Routing.ModelPreferences = map[string][]string{"gigantic": {"llama3.2"}} },
			contains: "complexity tier",
		},
		{
			name:     "breaker threshold zero",
			mutate:   func(c *Config) { c.Breaker.Threshold = 0 },
			contains: "threshold",
		},
		{
			name: "no backends",
			mutate: func(c *Config) {
				c.Backends.Ollama.BaseURL = ""
				c.Backends.LMStudio.BaseURL = ""
				c.Models = nil
			},
			contains: "at least one backend",
		},
		{
			name:     "bad backend URL",
			mutate:   func(c *Config) { c.Backends.Ollama.BaseURL = "localhost:11434" },
			contains: "not a valid URL",
		},
		{
			name: "duplicate model ID",
			mutate: func(c *Config) {
				c.Models = append(c.Models, c.Models[0])
			},
			contains: "duplicate model ID",
		},
		{
			name:     "model on unknown backend",
			mutate:   func(c *Config) { c.Models[0].Backend = "vllm" },
			contains: "unknown or disabled backend",
		},
		{
			name:     "bad capability",
			mutate:   func(c *Config) { c.Models[0].Capabilities = []string{"telepathy"} },
			contains: "telepathy",
		},
		{
			name:     "bad speed class",
			mutate:   func(c *Config) { c.Models[0].SpeedClass = "warp" },
			contains: "speed_class",
		},
		{
			name:     "quality out of range",
			mutate:   func(c *Config) { c.Models[0].Quality.General = 1.2 },
			contains: "quality.general",
		},
		{
			name: "preference names unknown model",
			mutate: func(c *Config) {
				c.Routing.ModelPreferences = map[string][]string{"simple": {"ghost-model"}}
			},
			contains: "not in catalog",
		},
		{
			name:     "context messages zero",
			mutate:   func(c *Config) { c.Context.MaxContextMessages = 0 },
			contains: "max_context_messages",
		},
		{
			name:     "rate limit requests zero",
			mutate:   func(c *Config) { c.Security.RateLimitRequests = 0 },
			contains: "rate_limit_requests",
		},
		{
			name: "postgres broker without URL",
			mutate: func(c *Config) {
				c.Events.Broker = &BrokerConfig{Type: BrokerPostgres}
			},
			contains: "database_url",
		},
		{
			name:     "shutdown timeout zero",
			mutate:   func(c *Config) { c.Lifecycle.ShutdownTimeoutSeconds = 0 },
			contains: "shutdown_timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := NewValidator(cfg).ValidateAll()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidateDisabledSectionsSkipChecks(t *testing.T) {
	off := false

	cfg := validTestConfig()
	cfg.Breaker.Enabled = &off
	cfg.Breaker.Threshold = 0
	cfg.Security.RateLimitEnabled = &off
	cfg.Security.RateLimitRequests = 0

	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateProductionPlaceholders(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		dbURL  string
		valid  bool
	}{
		{name: "real secrets", apiKey: "sk-9f82ha", dbURL: "postgres://portal:s3cret@db/portal", valid: true},
		{name: "changeme key", apiKey: "changeme", valid: false},
		{name: "changeme suffix", apiKey: "portal-changeme", valid: false},
		{name: "your_ prefix", apiKey: "your_api_key_here", valid: false},
		{name: "placeholder prefix", apiKey: "placeholder-key", valid: false},
		{name: "changeme db url", apiKey: "sk-9f82ha", dbURL: "postgres://user:changeme@db/portal", valid: false},
		{name: "empty values pass", valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			cfg.Environment = EnvProduction
			cfg.Server.APIKey = tt.apiKey
			if tt.dbURL != "" {
				cfg.Events.Broker = &BrokerConfig{Type: BrokerPostgres, DatabaseURL: tt.dbURL}
			}

			err := NewValidator(cfg).ValidateAll()

			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrPlaceholderSecret)
			}
		})
	}
}

func TestPlaceholdersAllowedInDevelopment(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.APIKey = "changeme"

	require.NoError(t, NewValidator(cfg).ValidateAll())
}
