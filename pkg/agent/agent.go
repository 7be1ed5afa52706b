// Package agent is Portal's request core: it loads conversation
// context, builds the system prompt, drives the execution engine, and
// records everything that happened as durable messages and bus events.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/engine"
	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/tools"
)

// Request is one front-end message entering the core.
type Request struct {
	ChatID    string
	Message   string
	Interface string
	User      *models.UserContext

	// Style picks the preferences/<style> prompt template.
	Style string

	// Files are attachment references forwarded by the front-end.
	Files []string

	// Warnings collected upstream (sanitizer) to surface in the result.
	Warnings []string
}

// ContextStore is the slice of the conversation manager the core needs.
type ContextStore interface {
	Add(ctx context.Context, chatID string, role models.Role, content, iface string, metadata map[string]any) error
	History(ctx context.Context, chatID string, limit int, includeSystem bool) ([]models.Message, error)
}

// Executor is the slice of the execution engine the core needs.
type Executor interface {
	Execute(ctx context.Context, req *engine.Request) (*models.ExecutionResult, error)
}

// PromptBuilder assembles the system prompt for one interface/style.
type PromptBuilder interface {
	BuildSystemPrompt(iface, style string) string
}

// Agent orchestrates one request end to end. All collaborators are
// injected; the agent creates none of them.
type Agent struct {
	cfg     *config.AgentConfig
	store   ContextStore
	engine  Executor
	bus     *bus.Bus
	prompts PromptBuilder
	tools   *tools.Registry
	gate    *tools.ConfirmationGate

	stats stats
}

// New builds the agent core. prompts, tools, and gate may be nil; the
// corresponding steps are skipped.
func New(cfg *config.AgentConfig, store ContextStore, eng Executor, b *bus.Bus, prompts PromptBuilder, reg *tools.Registry, gate *tools.ConfirmationGate) *Agent {
	return &Agent{
		cfg:     cfg,
		store:   store,
		engine:  eng,
		bus:     b,
		prompts: prompts,
		tools:   reg,
		gate:    gate,
		stats:   newStats(),
	}
}

// Process runs the ten-step pipeline for one message. The user message
// is persisted before any model work so a crash mid-generation cannot
// lose it.
func (a *Agent) Process(ctx context.Context, req *Request) (*models.ProcessingResult, error) {
	traceID := uuid.NewString()[:8]
	log := slog.With("trace_id", traceID, "chat_id", req.ChatID, "interface", req.Interface)
	start := time.Now()

	log.Info("Processing message", "length", len(req.Message))
	a.publish(ctx, models.EventProcessingStarted, req.ChatID, traceID, map[string]any{
		"interface": req.Interface,
	})

	history, err := a.store.History(ctx, req.ChatID, a.cfg.HistoryLimit, false)
	if err != nil {
		return nil, a.fail(ctx, req, traceID, err)
	}
	a.publish(ctx, models.EventContextLoaded, req.ChatID, traceID, map[string]any{
		"messages": len(history),
	})

	if err := a.store.Add(ctx, req.ChatID, models.RoleUser, req.Message, req.Interface, a.userMetadata(req)); err != nil {
		return nil, a.fail(ctx, req, traceID, err)
	}

	systemPrompt := a.buildSystemPrompt(req)

	execReq := &engine.Request{
		Query:        req.Message,
		SystemPrompt: systemPrompt,
		Messages:     append(history, models.Message{
			Role:      models.RoleUser,
			Content:   req.Message,
			Timestamp: time.Now().UTC(),
			Interface: req.Interface,
		}),
		ChatID:  req.ChatID,
		TraceID: traceID,
	}

	// The engine publishes routing_decision and model_generating at the
	// moments they actually happen.
	result, err := a.engine.Execute(ctx, execReq)
	if err != nil {
		return nil, a.fail(ctx, req, traceID, err)
	}

	if !result.Success {
		return nil, a.fail(ctx, req, traceID,
			errs.Processing(result.Error).WithDetail("model_used", result.ModelUsed))
	}

	assistantMeta := map[string]any{
		"model":     result.ModelUsed,
		"tokens":    result.TokensGenerated,
		"fallbacks": result.FallbacksUsed,
	}
	if err := a.store.Add(ctx, req.ChatID, models.RoleAssistant, result.Response, req.Interface, assistantMeta); err != nil {
		return nil, a.fail(ctx, req, traceID, err)
	}
	a.publish(ctx, models.EventContextSaved, req.ChatID, traceID, nil)

	elapsed := time.Since(start)
	a.stats.record(req.Interface, elapsed, false)

	a.publish(ctx, models.EventProcessingCompleted, req.ChatID, traceID, map[string]any{
		"model_id":   result.ModelUsed,
		"elapsed_ms": elapsed.Milliseconds(),
		"tools_used": len(result.ToolCalls),
	})
	log.Info("Message processed",
		"model_id", result.ModelUsed,
		"elapsed_ms", elapsed.Milliseconds(),
		"fallbacks", result.FallbacksUsed)

	return &models.ProcessingResult{
		Response:        result.Response,
		ModelUsed:       result.ModelUsed,
		Elapsed:         elapsed,
		TokensGenerated: result.TokensGenerated,
		FallbacksUsed:   result.FallbacksUsed,
		ToolCalls:       result.ToolCalls,
		Warnings:        req.Warnings,
		TraceID:         traceID,
	}, nil
}

// buildSystemPrompt assembles the template-driven system prompt and
// appends the available tool names when any are registered.
func (a *Agent) buildSystemPrompt(req *Request) string {
	var parts []string
	if a.prompts != nil {
		if p := a.prompts.BuildSystemPrompt(req.Interface, req.Style); p != "" {
			parts = append(parts, p)
		}
	}
	if a.tools != nil {
		if names := a.tools.Names(); len(names) > 0 {
			parts = append(parts, "Available tools: "+strings.Join(names, ", "))
		}
	}
	return strings.Join(parts, "\n\n")
}

func (a *Agent) userMetadata(req *Request) map[string]any {
	if req.User == nil && len(req.Files) == 0 {
		return nil
	}
	meta := make(map[string]any)
	if req.User != nil && req.User.UserID != "" {
		meta["user_id"] = req.User.UserID
	}
	if len(req.Files) > 0 {
		meta["files"] = req.Files
	}
	return meta
}

// fail normalizes an error into the taxonomy, records it, and
// publishes processing_failed. Typed errors pass through; anything
// else wraps into processing-failed with the original text attached.
func (a *Agent) fail(ctx context.Context, req *Request, traceID string, err error) error {
	typed := errs.AsError(err)
	if typed == nil {
		typed = errs.Processing("request processing failed").
			WithDetail("cause", err.Error()).
			WithCause(err)
	}

	a.stats.record(req.Interface, 0, true)
	a.publish(ctx, models.EventProcessingFailed, req.ChatID, traceID, map[string]any{
		"error_code": int(typed.Code),
		"error":      typed.Message,
	})
	slog.Error("Message processing failed",
		"trace_id", traceID,
		"chat_id", req.ChatID,
		"error_code", int(typed.Code),
		"error", err)
	return typed
}

func (a *Agent) publish(ctx context.Context, eventType models.EventType, chatID, traceID string, data map[string]any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(ctx, eventType, chatID, data, traceID)
}
