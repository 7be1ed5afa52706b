package models

// TaskClassification is the classifier's verdict for one query.
// Ephemeral, computed per request.
type TaskClassification struct {
	Complexity        Complexity `json:"complexity"`
	Category          Category   `json:"category"`
	EstimatedTokens   int        `json:"estimated_tokens"`
	RequiresCode      bool       `json:"requires_code"`
	RequiresMath      bool       `json:"requires_math"`
	RequiresReasoning bool       `json:"requires_reasoning"`
	Confidence        float64    `json:"confidence"`
}

// RoutingDecision is the router's output: a primary model plus an
// ordered fallback list (at most three, never containing the primary).
type RoutingDecision struct {
	ModelID        string             `json:"model_id"`
	Model          *ModelMetadata     `json:"model"`
	Classification TaskClassification `json:"classification"`
	Strategy       string             `json:"strategy"`
	Fallbacks      []string           `json:"fallbacks"`
	Reasoning      string             `json:"reasoning"`
}
