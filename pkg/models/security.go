package models

// UserContext carries the caller identity a front-end attaches to a
// request
type UserContext struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// SecurityContext is the middleware's per-request working state.
// Ephemeral.
type SecurityContext struct {
	UserID         string   `json:"user_id"`
	ChatID         string   `json:"chat_id"`
	Interface      string   `json:"interface"`
	IP             string   `json:"ip,omitempty"`
	SanitizedInput string   `json:"-"`
	Warnings       []string `json:"warnings,omitempty"`
}
