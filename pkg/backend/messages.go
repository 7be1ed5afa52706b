package backend

import "github.com/ckindle-42/portal/pkg/models"

// chatMessage is the {role, content} shape both backends accept.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildChat assembles the outbound message list. The rule is shared by
// every adapter: an explicit history is used verbatim, with the system
// prompt prepended only when none is already at the head; without a
// history, a two-message (optional system + user) conversation is
// synthesized from the raw prompt.
func buildChat(req GenerateRequest) []chatMessage {
	if len(req.Messages) > 0 {
		out := make([]chatMessage, 0, len(req.Messages)+1)
		if req.SystemPrompt != "" && req.Messages[0].Role != models.RoleSystem {
			out = append(out, chatMessage{Role: string(models.RoleSystem), Content: req.SystemPrompt})
		}
		for _, m := range req.Messages {
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
		}
		return out
	}

	out := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		out = append(out, chatMessage{Role: string(models.RoleSystem), Content: req.SystemPrompt})
	}
	out = append(out, chatMessage{Role: string(models.RoleUser), Content: req.Prompt})
	return out
}
