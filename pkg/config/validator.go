package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ckindle-42/portal/pkg/models"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateEnvironment(); err != nil {
		return err
	}

	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateRouting(); err != nil {
		return fmt.Errorf("routing validation failed: %w", err)
	}

	if err := v.validateBreaker(); err != nil {
		return fmt.Errorf("breaker validation failed: %w", err)
	}

	if err := v.validateBackends(); err != nil {
		return fmt.Errorf("backend validation failed: %w", err)
	}

	if err := v.validateModels(); err != nil {
		return fmt.Errorf("model catalog validation failed: %w", err)
	}

	if err := v.validateContext(); err != nil {
		return fmt.Errorf("context validation failed: %w", err)
	}

	if err := v.validateSecurity(); err != nil {
		return fmt.Errorf("security validation failed: %w", err)
	}

	if err := v.validateEvents(); err != nil {
		return fmt.Errorf("events validation failed: %w", err)
	}

	if err := v.validateLifecycle(); err != nil {
		return fmt.Errorf("lifecycle validation failed: %w", err)
	}

	if v.cfg.IsProduction() {
		if err := v.validateProductionSecrets(); err != nil {
			return err
		}
	}

	return nil
}

func (v *ConfigValidator) validateEnvironment() error {
	if !v.cfg.Environment.IsValid() {
		return NewValidationError("environment", "", "", fmt.Errorf("%w: %s", ErrInvalidValue, v.cfg.Environment))
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "", "port", fmt.Errorf("must be in 1..65535, got %d", s.Port))
	}
	return nil
}

func (v *ConfigValidator) validateRouting() error {
	r := v.cfg.Routing
	if !r.Strategy.IsValid() {
		return NewValidationError("routing", "", "strategy", fmt.Errorf("%w: %s", ErrInvalidValue, r.Strategy))
	}
	if r.TimeoutSeconds < 1 {
		return NewValidationError("routing", "", "timeout_seconds", fmt.Errorf("must be at least 1"))
	}
	if r.MaxCost < 0 || r.MaxCost > 1 {
		return NewValidationError("routing", "", "max_cost", fmt.Errorf("must be in [0, 1], got %g", r.MaxCost))
	}
	for tier := range r.ModelPreferences {
		if !models.Complexity(tier).IsValid() {
			return NewValidationError("routing", "", "model_preferences", fmt.Errorf("unknown complexity tier '%s'", tier))
		}
	}
	return nil
}

func (v *ConfigValidator) validateBreaker() error {
	b := v.cfg.Breaker
	if !b.IsEnabled() {
		return nil
	}
	if b.Threshold < 1 {
		return NewValidationError("breaker", "", "threshold", fmt.Errorf("must be at least 1"))
	}
	if b.RecoveryTimeoutSeconds < 1 {
		return NewValidationError("breaker", "", "recovery_timeout_seconds", fmt.Errorf("must be at least 1"))
	}
	if b.HalfOpenMaxCalls < 1 {
		return NewValidationError("breaker", "", "half_open_max_calls", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateBackends() error {
	known := v.backendURLs()
	if len(known) == 0 {
		return NewValidationError("backends", "", "", fmt.Errorf("at least one backend base_url required"))
	}
	for name, base := range known {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return NewValidationError("backends", name, "base_url", fmt.Errorf("not a valid URL: %q", base))
		}
	}
	return nil
}

// backendURLs returns the configured backend name → base URL pairs,
// skipping backends with an empty base URL.
func (v *ConfigValidator) backendURLs() map[string]string {
	out := make(map[string]string)
	b := v.cfg.Backends
	if b == nil {
		return out
	}
	if b.Ollama != nil && b.Ollama.BaseURL != "" {
		out["ollama"] = b.Ollama.BaseURL
	}
	if b.LMStudio != nil && b.LMStudio.BaseURL != "" {
		out["lmstudio"] = b.LMStudio.BaseURL
	}
	return out
}

func (v *ConfigValidator) validateModels() error {
	backends := v.backendURLs()
	seen := make(map[string]bool, len(v.cfg.Models))

	for _, m := range v.cfg.Models {
		if m.ID == "" {
			return NewValidationError("model", "", "id", ErrMissingRequiredField)
		}
		if seen[m.ID] {
			return NewValidationError("model", m.ID, "id", fmt.Errorf("duplicate model ID"))
		}
		seen[m.ID] = true

		if _, ok := backends[m.Backend]; !ok {
			return NewValidationError("model", m.ID, "backend", fmt.Errorf("unknown or disabled backend '%s'", m.Backend))
		}
		for _, c := range m.Capabilities {
			if !models.Capability(c).IsValid() {
				return NewValidationError("model", m.ID, "capabilities", fmt.Errorf("%w: %s", ErrInvalidValue, c))
			}
		}
		if m.SpeedClass != "" && !models.SpeedClass(m.SpeedClass).IsValid() {
			return NewValidationError("model", m.ID, "speed_class", fmt.Errorf("%w: %s", ErrInvalidValue, m.SpeedClass))
		}
		for field, q := range map[string]float64{
			"quality.general":   m.Quality.General,
			"quality.code":      m.Quality.Code,
			"quality.reasoning": m.Quality.Reasoning,
		} {
			if q < 0 || q > 1 {
				return NewValidationError("model", m.ID, field, fmt.Errorf("must be in [0, 1], got %g", q))
			}
		}
		if m.Cost < 0 || m.Cost > 1 {
			return NewValidationError("model", m.ID, "cost", fmt.Errorf("must be in [0, 1], got %g", m.Cost))
		}
	}

	// Preference lists may only name cataloged models. Discovery can
	// add models later, but preferences pointing at unknown IDs are a
	// config mistake worth failing fast on when a catalog is present.
	if len(v.cfg.Models) > 0 {
		for tier, ids := range v.cfg.Routing.ModelPreferences {
			for _, id := range ids {
				if !seen[id] {
					return NewValidationError("routing", tier, "model_preferences", fmt.Errorf("model '%s' not in catalog", id))
				}
			}
		}
	}
	return nil
}

func (v *ConfigValidator) validateContext() error {
	c := v.cfg.Context
	if c.DBPath == "" {
		return NewValidationError("context", "", "db_path", ErrMissingRequiredField)
	}
	if c.MaxContextMessages < 1 {
		return NewValidationError("context", "", "max_context_messages", fmt.Errorf("must be at least 1"))
	}
	if c.RetentionDays < 0 {
		return NewValidationError("context", "", "retention_days", fmt.Errorf("must not be negative"))
	}
	return nil
}

func (v *ConfigValidator) validateSecurity() error {
	s := v.cfg.Security
	if s.RateLimitOn() {
		if s.RateLimitRequests < 1 {
			return NewValidationError("security", "", "rate_limit_requests", fmt.Errorf("must be at least 1"))
		}
		if s.WindowSeconds < 1 {
			return NewValidationError("security", "", "window_seconds", fmt.Errorf("must be at least 1"))
		}
		if s.StatePath == "" {
			return NewValidationError("security", "", "state_path", ErrMissingRequiredField)
		}
	}
	if s.MaxMessageLength < 1 {
		return NewValidationError("security", "", "max_message_length", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateEvents() error {
	e := v.cfg.Events
	if e.EnableHistory && e.MaxHistory < 1 {
		return NewValidationError("events", "", "max_history", fmt.Errorf("must be at least 1 when history is enabled"))
	}
	if e.Broker == nil {
		return nil
	}
	if !e.Broker.Type.IsValid() {
		return NewValidationError("events", "", "broker.type", fmt.Errorf("%w: %s", ErrInvalidValue, e.Broker.Type))
	}
	if e.Broker.Type == BrokerPostgres && e.Broker.DatabaseURL == "" {
		return NewValidationError("events", "", "broker.database_url", fmt.Errorf("%w: required for postgres broker", ErrMissingRequiredField))
	}
	return nil
}

func (v *ConfigValidator) validateLifecycle() error {
	l := v.cfg.Lifecycle
	if l.ShutdownTimeoutSeconds < 1 {
		return NewValidationError("lifecycle", "", "shutdown_timeout_seconds", fmt.Errorf("must be at least 1"))
	}
	if l.WatchdogOn() && l.WatchdogIntervalSeconds < 1 {
		return NewValidationError("lifecycle", "", "watchdog_interval_seconds", fmt.Errorf("must be at least 1"))
	}
	return nil
}

// validateProductionSecrets refuses to boot production with obvious
// placeholder values left in secret-bearing fields.
func (v *ConfigValidator) validateProductionSecrets() error {
	checks := map[string]string{
		"server.api_key":             v.cfg.Server.APIKey,
		"events.broker.database_url": brokerDatabaseURL(v.cfg.Events),
	}
	for field, value := range checks {
		if isPlaceholderSecret(value) {
			return NewValidationError("production", "", field, ErrPlaceholderSecret)
		}
	}
	return nil
}

func brokerDatabaseURL(e *EventsConfig) string {
	if e == nil || e.Broker == nil {
		return ""
	}
	return e.Broker.DatabaseURL
}

// isPlaceholderSecret detects values that were clearly never replaced:
// anything containing "changeme" or starting with "your_"/"placeholder".
func isPlaceholderSecret(value string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	return strings.Contains(lower, "changeme") ||
		strings.HasPrefix(lower, "your_") ||
		strings.HasPrefix(lower, "placeholder")
}
