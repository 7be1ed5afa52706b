package models

import "time"

// ToolCall is the normalized shape of a model-requested tool
// invocation. Adapters accept both the nested function shape and this
// flat shape on the wire and always emit the flat one downstream.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Server    string         `json:"server,omitempty"`
}

// GenerationResult is one backend attempt's outcome
type GenerationResult struct {
	Text            string        `json:"text"`
	TokensGenerated int           `json:"tokens_generated"`
	Elapsed         time.Duration `json:"elapsed"`
	Model           string        `json:"model"`
	Success         bool          `json:"success"`
	Error           string        `json:"error,omitempty"`
	ToolCalls       []ToolCall    `json:"tool_calls,omitempty"`
}

// ExecutionResult is the engine's outcome for a full chain walk.
// Becomes the payload of a completion event and the assistant's saved
// message.
type ExecutionResult struct {
	Success         bool          `json:"success"`
	Response        string        `json:"response"`
	ModelUsed       string        `json:"model_used"`
	Elapsed         time.Duration `json:"elapsed"`
	TokensGenerated int           `json:"tokens_generated"`
	FallbacksUsed   int           `json:"fallbacks_used"`
	ToolCalls       []ToolCall    `json:"tool_calls,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// ProcessingResult is what front-ends receive for an accepted message
type ProcessingResult struct {
	Response        string        `json:"response"`
	ModelUsed       string        `json:"model_used"`
	Elapsed         time.Duration `json:"elapsed"`
	TokensGenerated int           `json:"tokens_generated"`
	FallbacksUsed   int           `json:"fallbacks_used"`
	ToolCalls       []ToolCall    `json:"tool_calls,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
	TraceID         string        `json:"trace_id"`
}
