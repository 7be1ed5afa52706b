package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/tools"
)

// ExecuteTool runs one named tool. Tools flagged as requiring
// confirmation block on the confirmation gate first; denial and
// timeout both fail the call. Panics inside a tool are contained.
func (a *Agent) ExecuteTool(ctx context.Context, name string, params map[string]any, chatID, userID string) (result any, err error) {
	if a.tools == nil {
		return nil, errs.ToolExecution("no tool registry configured")
	}
	tool, ok := a.tools.Get(name)
	if !ok {
		return nil, errs.ToolExecution("unknown tool " + name).WithDetail("tool", name)
	}

	if tool.RequiresConfirmation() && a.gate != nil {
		switch decision := a.gate.Request(ctx, chatID, userID, name, params); decision {
		case tools.DecisionApproved:
			// proceed
		case tools.DecisionDenied:
			return nil, errs.ToolExecution("tool execution denied").WithDetail("tool", name)
		default:
			return nil, errs.ToolExecution("tool confirmation timed out").WithDetail("tool", name)
		}
	}

	start := time.Now()
	a.publish(ctx, models.EventToolStarted, chatID, "", map[string]any{
		"tool":    name,
		"user_id": userID,
	})

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", name, "panic", r)
			err = errs.ToolExecution(fmt.Sprintf("tool %s panicked: %v", name, r)).
				WithDetail("tool", name)
			a.publish(ctx, models.EventToolFailed, chatID, "", map[string]any{
				"tool":  name,
				"error": err.Error(),
			})
		}
	}()

	result, runErr := tool.Execute(ctx, params)
	if runErr != nil {
		wrapped := errs.ToolExecution("tool "+name+" failed").
			WithDetail("tool", name).
			WithCause(runErr)
		a.publish(ctx, models.EventToolFailed, chatID, "", map[string]any{
			"tool":  name,
			"error": runErr.Error(),
		})
		return nil, wrapped
	}

	a.stats.recordTool()
	a.publish(ctx, models.EventToolCompleted, chatID, "", map[string]any{
		"tool":       name,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}
