package config

// BackendsConfig holds connection settings for each supported backend.
// A backend with an empty base URL is considered disabled.
type BackendsConfig struct {
	Ollama   *BackendConfig `yaml:"ollama"`
	LMStudio *BackendConfig `yaml:"lmstudio"`
}

// BackendConfig holds settings for a single LLM backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// DefaultBackendsConfig returns the standard local endpoints for
// Ollama and LM Studio.
func DefaultBackendsConfig() *BackendsConfig {
	return &BackendsConfig{
		Ollama:   &BackendConfig{BaseURL: "http://localhost:11434"},
		LMStudio: &BackendConfig{BaseURL: "http://localhost:1234"},
	}
}

// QualityConfig holds per-dimension quality scores for a model, each
// in [0, 1].
type QualityConfig struct {
	General   float64 `yaml:"general"`
	Code      float64 `yaml:"code"`
	Reasoning float64 `yaml:"reasoning"`
}

// ModelConfig is a static catalog entry describing one model. Entries
// are seeded into the registry at startup; discovery can add more.
type ModelConfig struct {
	ID           string        `yaml:"id"`
	Backend      string        `yaml:"backend"`
	DisplayName  string        `yaml:"display_name"`
	Capabilities []string      `yaml:"capabilities"`
	SpeedClass   string        `yaml:"speed_class"`
	Quality      QualityConfig `yaml:"quality"`
	Cost         float64       `yaml:"cost"`
	Handle       string        `yaml:"handle"`
	TokensPerSec float64       `yaml:"tokens_per_sec"`
}
