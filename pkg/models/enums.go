package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid checks if the role is a known value
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Capability names a skill a model advertises. Routing filters
// candidates by capability before comparing quality.
type Capability string

const (
	CapabilityGeneral         Capability = "general"
	CapabilityCode            Capability = "code"
	CapabilityMath            Capability = "math"
	CapabilityReasoning       Capability = "reasoning"
	CapabilityVision          Capability = "vision"
	CapabilityFunctionCalling Capability = "function_calling"
)

// IsValid checks if the capability is a known value
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityGeneral, CapabilityCode, CapabilityMath,
		CapabilityReasoning, CapabilityVision, CapabilityFunctionCalling:
		return true
	}
	return false
}

// SpeedClass is a coarse latency bucket for a model.
type SpeedClass string

const (
	SpeedUltraFast SpeedClass = "ultra_fast"
	SpeedFast      SpeedClass = "fast"
	SpeedMedium    SpeedClass = "medium"
	SpeedSlow      SpeedClass = "slow"
	SpeedVerySlow  SpeedClass = "very_slow"
)

// IsValid checks if the speed class is a known value
func (s SpeedClass) IsValid() bool {
	switch s {
	case SpeedUltraFast, SpeedFast, SpeedMedium, SpeedSlow, SpeedVerySlow:
		return true
	}
	return false
}

// Rank orders speed classes fastest-first for comparisons. Unknown
// classes sort last.
func (s SpeedClass) Rank() int {
	switch s {
	case SpeedUltraFast:
		return 0
	case SpeedFast:
		return 1
	case SpeedMedium:
		return 2
	case SpeedSlow:
		return 3
	case SpeedVerySlow:
		return 4
	}
	return 5
}

// Complexity is the difficulty tier assigned to a request.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// IsValid checks if the complexity is a known value
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexityTrivial, ComplexitySimple, ComplexityModerate,
		ComplexityComplex, ComplexityExpert:
		return true
	}
	return false
}

// Category is the kind of work a request asks for.
type Category string

const (
	CategoryGreeting      Category = "greeting"
	CategoryQuestion      Category = "question"
	CategoryCode          Category = "code"
	CategoryMath          Category = "math"
	CategoryCreative      Category = "creative"
	CategoryAnalysis      Category = "analysis"
	CategoryToolUse       Category = "tool_use"
	CategoryTranslation   Category = "translation"
	CategorySummarization Category = "summarization"
	CategoryGeneral       Category = "general"
)

// IsValid checks if the category is a known value
func (c Category) IsValid() bool {
	switch c {
	case CategoryGreeting, CategoryQuestion, CategoryCode, CategoryMath,
		CategoryCreative, CategoryAnalysis, CategoryToolUse,
		CategoryTranslation, CategorySummarization, CategoryGeneral:
		return true
	}
	return false
}
