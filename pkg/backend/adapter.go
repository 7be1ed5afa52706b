// Package backend provides a uniform adapter surface over the local
// LLM backends Portal routes to. Adapters speak each backend's native
// HTTP API directly; there are no SDK dependencies to drift out of
// date against a local server.
package backend

import (
	"context"

	"github.com/ckindle-42/portal/pkg/models"
)

// GenerateRequest carries everything one generation call needs.
type GenerateRequest struct {
	// Prompt is the raw user input. Ignored when Messages is supplied.
	Prompt string

	// ModelHandle is the backend-native model name.
	ModelHandle string

	// SystemPrompt is prepended to the conversation when the history
	// does not already start with a system message.
	SystemPrompt string

	MaxTokens   int
	Temperature float64

	// Messages is an optional explicit conversation history, used
	// verbatim when present.
	Messages []models.Message
}

// StreamChunk is one unit of streamed model output. A terminal failure
// is delivered as a chunk with Err set; the producer closes the
// channel afterwards.
type StreamChunk struct {
	Text string
	Err  error
}

// Adapter is the uniform interface over one LLM backend.
//
// Generate returns a GenerationResult in both outcomes: on failure the
// result carries Success=false and the error text alongside the
// returned error, so callers can report the attempt without
// reconstructing it.
type Adapter interface {
	// Name is the stable backend identifier (registry Backend field,
	// breaker circuit key).
	Name() string

	Generate(ctx context.Context, req GenerateRequest) (*models.GenerationResult, error)

	// GenerateStream returns a finite, non-restartable chunk sequence.
	// The producer closes the channel on completion or after emitting
	// a terminal error chunk. An immediate connection failure is
	// returned as an error with no channel.
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error)

	// Available is a cheap liveness probe.
	Available(ctx context.Context) bool

	// ListModels returns backend-native model names.
	ListModels(ctx context.Context) ([]string, error)

	// Close releases the adapter's long-lived HTTP connections.
	Close() error
}
