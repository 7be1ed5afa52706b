package models

import "time"

// EventType is one of the closed set of event names Portal publishes.
// The taxonomy is part of the public surface: downstream observers
// (metrics, audit, UI progress indicators) subscribe by type.
type EventType string

const (
	EventProcessingStarted   EventType = "processing_started"
	EventProcessingCompleted EventType = "processing_completed"
	EventProcessingFailed    EventType = "processing_failed"

	EventModelSelected   EventType = "model_selected"
	EventModelGenerating EventType = "model_generating"
	EventModelCompleted  EventType = "model_completed"

	EventToolStarted              EventType = "tool_started"
	EventToolProgress             EventType = "tool_progress"
	EventToolCompleted            EventType = "tool_completed"
	EventToolFailed               EventType = "tool_failed"
	EventToolConfirmationRequired EventType = "tool_confirmation_required"
	EventToolConfirmationApproved EventType = "tool_confirmation_approved"
	EventToolConfirmationDenied   EventType = "tool_confirmation_denied"

	EventRoutingDecision   EventType = "routing_decision"
	EventFallbackTriggered EventType = "fallback_triggered"

	EventContextLoaded EventType = "context_loaded"
	EventContextSaved  EventType = "context_saved"

	EventSecurityWarning  EventType = "security_warning"
	EventRateLimitWarning EventType = "rate_limit_warning"
)

// AllEventTypes returns the full taxonomy. The slice is freshly
// allocated on each call so callers may reorder it.
func AllEventTypes() []EventType {
	return []EventType{
		EventProcessingStarted,
		EventProcessingCompleted,
		EventProcessingFailed,
		EventModelSelected,
		EventModelGenerating,
		EventModelCompleted,
		EventToolStarted,
		EventToolProgress,
		EventToolCompleted,
		EventToolFailed,
		EventToolConfirmationRequired,
		EventToolConfirmationApproved,
		EventToolConfirmationDenied,
		EventRoutingDecision,
		EventFallbackTriggered,
		EventContextLoaded,
		EventContextSaved,
		EventSecurityWarning,
		EventRateLimitWarning,
	}
}

// IsValid checks if the event type belongs to the taxonomy
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Event is a single telemetry record published through the bus.
// Never mutated after construction.
type Event struct {
	Type      EventType      `json:"event_type"`
	ChatID    string         `json:"chat_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}
