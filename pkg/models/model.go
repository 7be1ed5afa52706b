package models

// ModelMetadata describes one model in the registry catalog.
// Registered once; Available is mutated by discovery and health probes.
type ModelMetadata struct {
	ID           string       `json:"id"`
	Backend      string       `json:"backend"`
	DisplayName  string       `json:"display_name"`
	Capabilities []Capability `json:"capabilities"`
	SpeedClass   SpeedClass   `json:"speed_class"`

	// Quality scores in [0,1], one per scored capability
	QualityGeneral   float64 `json:"quality_general"`
	QualityCode      float64 `json:"quality_code"`
	QualityReasoning float64 `json:"quality_reasoning"`

	// Cost in [0,1], relative to the catalog
	Cost float64 `json:"cost"`

	Available bool `json:"available"`

	// Handle is the backend-native model name passed on the wire
	Handle string `json:"handle"`

	// TokensPerSec is a rough throughput estimate used to break
	// speed-class ties
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
}

// HasCapability reports whether the capability set contains c
func (m *ModelMetadata) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// QualityFor returns the quality score for a capability. Code and
// reasoning have dedicated scores; everything else falls back to the
// general score.
func (m *ModelMetadata) QualityFor(c Capability) float64 {
	switch c {
	case CapabilityCode:
		return m.QualityCode
	case CapabilityReasoning:
		return m.QualityReasoning
	}
	return m.QualityGeneral
}

// Clone returns a deep copy so registry callers never share
// registry-owned state
func (m *ModelMetadata) Clone() *ModelMetadata {
	if m == nil {
		return nil
	}
	out := *m
	out.Capabilities = make([]Capability, len(m.Capabilities))
	copy(out.Capabilities, m.Capabilities)
	return &out
}
