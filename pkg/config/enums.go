package config

// Strategy determines how the router picks a model for a request.
type Strategy string

const (
	// StrategyAuto classifies the request and picks from tier preferences.
	StrategyAuto Strategy = "AUTO"
	// StrategySpeed picks the fastest available model.
	StrategySpeed Strategy = "SPEED"
	// StrategyQuality picks the highest-quality available model.
	StrategyQuality Strategy = "QUALITY"
	// StrategyBalanced weighs quality against speed.
	StrategyBalanced Strategy = "BALANCED"
	// StrategyCostOptimized picks the cheapest capable model.
	StrategyCostOptimized Strategy = "COST_OPTIMIZED"
)

// IsValid checks if the strategy is a known value
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyAuto, StrategySpeed, StrategyQuality, StrategyBalanced, StrategyCostOptimized:
		return true
	}
	return false
}

// Environment distinguishes deployment modes for startup checks.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// IsValid checks if the environment is a known value
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction:
		return true
	}
	return false
}

// BrokerType selects the event broker implementation.
type BrokerType string

const (
	// BrokerMemory keeps events in-process only.
	BrokerMemory BrokerType = "memory"
	// BrokerPostgres relays events across instances via LISTEN/NOTIFY.
	BrokerPostgres BrokerType = "postgres"
)

// IsValid checks if the broker type is a known value
func (b BrokerType) IsValid() bool {
	switch b {
	case BrokerMemory, BrokerPostgres:
		return true
	}
	return false
}
