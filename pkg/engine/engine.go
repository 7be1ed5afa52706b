// Package engine orchestrates the router, circuit breaker, and backend
// adapters: it walks the routed model chain with a per-attempt timeout
// and falls back until a model produces a result or the chain is
// exhausted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/breaker"
	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/registry"
	"github.com/ckindle-42/portal/pkg/routing"
)

// ErrAllModelsFailed is returned by ExecuteStream when every model in
// the chain failed before producing output.
var ErrAllModelsFailed = errors.New("all models failed")

// Request carries one generation request through the engine. ChatID
// and TraceID ride along for event publication only.
type Request struct {
	Query        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	MaxCost      float64
	Messages     []models.Message

	ChatID  string
	TraceID string
}

// BackendHealth is one backend's entry in a health report.
type BackendHealth struct {
	Available    bool   `json:"available"`
	BreakerState string `json:"breaker_state"`
	Failures     int    `json:"consecutive_failures"`
}

// Engine executes requests against the model fleet. Safe for
// concurrent use.
type Engine struct {
	cfg      *config.RoutingConfig
	router   *routing.Router
	registry *registry.Registry
	breaker  *breaker.Breaker
	adapters map[string]backend.Adapter
	bus      *bus.Bus
}

// New builds an engine over the given adapters, keyed by backend name.
// The bus is optional; a nil bus disables event publication.
func New(cfg *config.RoutingConfig, router *routing.Router, reg *registry.Registry, brk *breaker.Breaker, adapters []backend.Adapter, b *bus.Bus) *Engine {
	byName := make(map[string]backend.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Engine{
		cfg:      cfg,
		router:   router,
		registry: reg,
		breaker:  brk,
		adapters: byName,
		bus:      b,
	}
}

// Execute routes the request and walks the model chain until one
// attempt succeeds. Exhaustion is reported as an unsuccessful result,
// not a Go error; the error return is reserved for routing failure.
func (e *Engine) Execute(ctx context.Context, req *Request) (*models.ExecutionResult, error) {
	start := time.Now()

	decision, err := e.router.Route(req.Query, req.MaxCost)
	if err != nil {
		return nil, fmt.Errorf("routing request: %w", err)
	}
	e.publish(ctx, req, models.EventRoutingDecision, map[string]any{
		"model_id":   decision.ModelID,
		"strategy":   decision.Strategy,
		"complexity": string(decision.Classification.Complexity),
		"reasoning":  decision.Reasoning,
	})

	chain := append([]string{decision.ModelID}, decision.Fallbacks...)
	fallbacks := 0
	lastErr := "no models attempted"

	for _, id := range chain {
		meta, adapter, reason := e.resolve(id)
		if adapter == nil {
			slog.Debug("Skipping chain entry", "model_id", id, "reason", reason)
			continue
		}

		if allowed, denyReason := e.breaker.Admit(meta.Backend); !allowed {
			e.publishFallback(ctx, req, id, denyReason)
			fallbacks++
			lastErr = denyReason
			continue
		}

		if !adapter.Available(ctx) {
			e.breaker.RecordFailure(meta.Backend)
			e.publishFallback(ctx, req, id, "backend unavailable")
			fallbacks++
			lastErr = fmt.Sprintf("backend %s unavailable", meta.Backend)
			continue
		}

		e.publish(ctx, req, models.EventModelGenerating, map[string]any{
			"model_id": id,
			"backend":  meta.Backend,
		})
		result := e.attempt(ctx, adapter, meta, req)
		if result.Success {
			e.breaker.RecordSuccess(meta.Backend)
			result.Elapsed = time.Since(start)
			result.FallbacksUsed = fallbacks
			if result.ToolCalls == nil {
				result.ToolCalls = []models.ToolCall{}
			}
			e.publish(ctx, req, models.EventModelCompleted, map[string]any{
				"model_id":   id,
				"elapsed_ms": result.Elapsed.Milliseconds(),
				"tokens":     result.TokensGenerated,
			})
			return result, nil
		}

		e.breaker.RecordFailure(meta.Backend)
		e.publishFallback(ctx, req, id, result.Error)
		fallbacks++
		lastErr = result.Error
	}

	return &models.ExecutionResult{
		Success:       false,
		ModelUsed:     "none",
		Elapsed:       time.Since(start),
		FallbacksUsed: fallbacks,
		ToolCalls:     []models.ToolCall{},
		Error:         "All models failed. Last error: " + lastErr,
	}, nil
}

// attempt runs one blocking generation under the per-attempt timeout.
func (e *Engine) attempt(ctx context.Context, adapter backend.Adapter, meta *models.ModelMetadata, req *Request) *models.ExecutionResult {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout())
	defer cancel()

	gen, err := adapter.Generate(attemptCtx, backend.GenerateRequest{
		Prompt:       req.Query,
		ModelHandle:  meta.Handle,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Messages:     req.Messages,
	})

	result := &models.ExecutionResult{ModelUsed: meta.ID}
	switch {
	case attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		result.Error = fmt.Sprintf("timeout after %ds", int(e.cfg.Timeout().Seconds()))
	case err != nil:
		result.Error = err.Error()
	case gen == nil || !gen.Success:
		result.Error = "generation failed"
		if gen != nil && gen.Error != "" {
			result.Error = gen.Error
		}
	default:
		result.Success = true
		result.Response = gen.Text
		result.TokensGenerated = gen.TokensGenerated
		result.ToolCalls = gen.ToolCalls
	}
	return result
}

// ExecuteStream routes the request and streams from the first model
// that produces output. A backend counts as successful once its first
// text chunk arrives; from then on the stream runs to natural
// termination with no mid-stream fallback.
func (e *Engine) ExecuteStream(ctx context.Context, req *Request) (<-chan backend.StreamChunk, *models.RoutingDecision, error) {
	decision, err := e.router.Route(req.Query, req.MaxCost)
	if err != nil {
		return nil, nil, fmt.Errorf("routing request: %w", err)
	}

	chain := append([]string{decision.ModelID}, decision.Fallbacks...)
	lastErr := "no models attempted"

	for _, id := range chain {
		meta, adapter, reason := e.resolve(id)
		if adapter == nil {
			slog.Debug("Skipping chain entry", "model_id", id, "reason", reason)
			continue
		}

		if allowed, denyReason := e.breaker.Admit(meta.Backend); !allowed {
			e.publishFallback(ctx, req, id, denyReason)
			lastErr = denyReason
			continue
		}

		upstream, err := adapter.GenerateStream(ctx, backend.GenerateRequest{
			Prompt:       req.Query,
			ModelHandle:  meta.Handle,
			SystemPrompt: req.SystemPrompt,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
			Messages:     req.Messages,
		})
		if err != nil {
			e.breaker.RecordFailure(meta.Backend)
			e.publishFallback(ctx, req, id, err.Error())
			lastErr = err.Error()
			continue
		}

		// Hold back the first chunk: an error before any output means
		// this backend never started and the next model gets a turn.
		first, ok := <-upstream
		if !ok || first.Err != nil {
			e.breaker.RecordFailure(meta.Backend)
			msg := "stream ended before any output"
			if ok && first.Err != nil {
				msg = first.Err.Error()
			}
			e.publishFallback(ctx, req, id, msg)
			lastErr = msg
			continue
		}

		e.breaker.RecordSuccess(meta.Backend)
		out := make(chan backend.StreamChunk)
		go func() {
			defer close(out)
			out <- first
			for chunk := range upstream {
				out <- chunk
			}
		}()
		return out, decision, nil
	}

	return nil, nil, fmt.Errorf("%w: last error: %s", ErrAllModelsFailed, lastErr)
}

// resolve maps a model id to its metadata and adapter. A nil adapter
// means skip, with the reason for the debug log.
func (e *Engine) resolve(id string) (*models.ModelMetadata, backend.Adapter, string) {
	meta, err := e.registry.Get(id)
	if err != nil {
		return nil, nil, "not in registry"
	}
	adapter, ok := e.adapters[meta.Backend]
	if !ok {
		return nil, nil, "unknown backend " + meta.Backend
	}
	return meta, adapter, ""
}

// HealthCheck probes every adapter concurrently and pairs the probe
// with the backend's breaker status.
func (e *Engine) HealthCheck(ctx context.Context) map[string]BackendHealth {
	type probe struct {
		name      string
		available bool
	}

	results := make(chan probe, len(e.adapters))
	g, probeCtx := errgroup.WithContext(ctx)
	for name, adapter := range e.adapters {
		g.Go(func() error {
			results <- probe{name: name, available: adapter.Available(probeCtx)}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // probes never return errors
	close(results)

	statuses := e.breaker.Snapshot()
	out := make(map[string]BackendHealth, len(e.adapters))
	for p := range results {
		health := BackendHealth{Available: p.available, BreakerState: string(breaker.StateClosed)}
		if st, ok := statuses[p.name]; ok {
			health.BreakerState = string(st.State)
			health.Failures = st.ConsecutiveFailures
		}
		out[p.name] = health
	}
	return out
}

// Backends returns the adapter names the engine can dispatch to,
// sorted for stable output.
func (e *Engine) Backends() []string {
	names := make([]string, 0, len(e.adapters))
	for name := range e.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Adapter returns the adapter for one backend, or nil.
func (e *Engine) Adapter(name string) backend.Adapter {
	return e.adapters[name]
}

// ResetBreaker force-closes one backend's circuit. Admin surface.
func (e *Engine) ResetBreaker(backendName string) {
	e.breaker.Reset(backendName)
	slog.Info("Circuit breaker reset", "backend", backendName)
}

// Close releases every adapter's connections.
func (e *Engine) Close() {
	for name, adapter := range e.adapters {
		if err := adapter.Close(); err != nil {
			slog.Warn("Adapter close failed", "backend", name, "error", err)
		}
	}
}

func (e *Engine) publishFallback(ctx context.Context, req *Request, modelID, reason string) {
	e.publish(ctx, req, models.EventFallbackTriggered, map[string]any{
		"model_id": modelID,
		"reason":   reason,
	})
}

func (e *Engine) publish(ctx context.Context, req *Request, eventType models.EventType, data map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, eventType, req.ChatID, data, req.TraceID)
}
