package backend

import (
	"encoding/json"

	"github.com/ckindle-42/portal/pkg/models"
)

// wireToolCall accepts both tool-call shapes seen on the wire: the
// nested function-calling shape ({function: {name, arguments}}) and
// the flat shape ({tool|name, arguments}) some local models emit.
type wireToolCall struct {
	Function  *wireFunction   `json:"function,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Server    string          `json:"server,omitempty"`
}

type wireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// normalizeToolCalls converts wire tool calls to the flat downstream
// shape. Entries with no resolvable tool name are dropped.
func normalizeToolCalls(calls []wireToolCall) []models.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		name := c.Tool
		if name == "" {
			name = c.Name
		}
		args := c.Arguments
		if c.Function != nil {
			if c.Function.Name != "" {
				name = c.Function.Name
			}
			if len(c.Function.Arguments) > 0 {
				args = c.Function.Arguments
			}
		}
		if name == "" {
			continue
		}
		out = append(out, models.ToolCall{
			Tool:      name,
			Arguments: decodeArguments(args),
			Server:    c.Server,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// decodeArguments handles both argument encodings: a JSON object, or a
// JSON string containing a serialized object (the OpenAI convention).
func decodeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var direct map[string]any
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		var nested map[string]any
		if err := json.Unmarshal([]byte(encoded), &nested); err == nil {
			return nested
		}
	}

	return nil
}
