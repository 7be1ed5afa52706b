package config

// EventsConfig controls the event bus.
type EventsConfig struct {
	// EnableHistory keeps a bounded in-memory ring of published events
	// for inspection. Off by default to avoid unbounded growth on
	// long-lived processes.
	EnableHistory bool          `yaml:"enable_history"`
	MaxHistory    int           `yaml:"max_history"`
	Broker        *BrokerConfig `yaml:"broker"`
}

// BrokerConfig selects and configures the cross-process event relay.
type BrokerConfig struct {
	Type        BrokerType `yaml:"type"`
	DatabaseURL string     `yaml:"database_url"`
}

// DefaultEventsConfig returns event bus defaults: no history, in-memory
// broker only.
func DefaultEventsConfig() *EventsConfig {
	return &EventsConfig{
		MaxHistory: 1000,
		Broker:     &BrokerConfig{Type: BrokerMemory},
	}
}
