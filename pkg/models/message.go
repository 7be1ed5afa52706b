package models

import "time"

// Message is a single conversation entry. Immutable after append;
// ordering within a chat follows insertion (timestamp, then arrival).
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Interface string         `json:"interface,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConversationSummary describes a chat's stored history
type ConversationSummary struct {
	ChatID        string    `json:"chat_id"`
	TotalMessages int       `json:"total_messages"`
	FirstTS       time.Time `json:"first_timestamp"`
	LastTS        time.Time `json:"last_timestamp"`
	Interfaces    []string  `json:"interfaces"`
}
