package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/breaker"
	"github.com/ckindle-42/portal/pkg/classify"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/registry"
	"github.com/ckindle-42/portal/pkg/routing"
)

// fakeAdapter scripts one backend's behavior per model handle.
type fakeAdapter struct {
	name      string
	available bool

	// responses maps a model handle to its generation outcome.
	responses map[string]*models.GenerationResult

	// streams maps a model handle to scripted chunks; a nil slice means
	// the stream fails before any output.
	streams map[string][]string

	generateCalls []string
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{
		name:      name,
		available: true,
		responses: make(map[string]*models.GenerationResult),
		streams:   make(map[string][]string),
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Generate(_ context.Context, req backend.GenerateRequest) (*models.GenerationResult, error) {
	f.generateCalls = append(f.generateCalls, req.ModelHandle)
	r, ok := f.responses[req.ModelHandle]
	if !ok {
		return &models.GenerationResult{Model: req.ModelHandle, Error: "no script"}, errors.New("no script")
	}
	if !r.Success {
		return r, errors.New(r.Error)
	}
	return r, nil
}

func (f *fakeAdapter) GenerateStream(_ context.Context, req backend.GenerateRequest) (<-chan backend.StreamChunk, error) {
	chunks, ok := f.streams[req.ModelHandle]
	out := make(chan backend.StreamChunk)
	go func() {
		defer close(out)
		if !ok {
			out <- backend.StreamChunk{Err: errors.New("backend exploded")}
			return
		}
		for _, text := range chunks {
			out <- backend.StreamChunk{Text: text}
		}
	}()
	return out, nil
}

func (f *fakeAdapter) Available(context.Context) bool { return f.available }

func (f *fakeAdapter) ListModels(context.Context) ([]string, error) { return nil, nil }

func (f *fakeAdapter) Close() error { return nil }

// newTestEngine wires an engine over two models on separate fake
// backends: m_primary on backend "alpha" and m_secondary on "beta".
func newTestEngine(t *testing.T) (*Engine, *fakeAdapter, *fakeAdapter, *breaker.Breaker) {
	t.Helper()

	reg := registry.New()
	reg.Register(&models.ModelMetadata{
		ID: "m_primary", Backend: "alpha", DisplayName: "Primary",
		Capabilities: []models.Capability{models.CapabilityGeneral},
		SpeedClass:   models.SpeedFast, QualityGeneral: 0.9,
		Available: true, Handle: "primary-handle",
	})
	reg.Register(&models.ModelMetadata{
		ID: "m_secondary", Backend: "beta", DisplayName: "Secondary",
		Capabilities: []models.Capability{models.CapabilityGeneral},
		SpeedClass:   models.SpeedMedium, QualityGeneral: 0.8,
		Available: true, Handle: "secondary-handle",
	})

	routingCfg := &config.RoutingConfig{
		Strategy:       config.StrategyAuto,
		TimeoutSeconds: 5,
		MaxCost:        1.0,
	}
	router := routing.New(routingCfg, reg, classify.New())
	brk := breaker.New(config.DefaultBreakerConfig())

	alpha := newFakeAdapter("alpha")
	beta := newFakeAdapter("beta")
	eng := New(routingCfg, router, reg, brk, []backend.Adapter{alpha, beta}, nil)
	return eng, alpha, beta, brk
}

func TestExecuteSuccessOnPrimary(t *testing.T) {
	eng, alpha, _, _ := newTestEngine(t)
	alpha.responses["primary-handle"] = &models.GenerationResult{
		Text: "hello!", TokensGenerated: 3, Success: true,
	}

	result, err := eng.Execute(context.Background(), &Request{Query: "hi there"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello!", result.Response)
	assert.Equal(t, "m_primary", result.ModelUsed)
	assert.Equal(t, 0, result.FallbacksUsed)
	assert.NotNil(t, result.ToolCalls)
}

func TestExecuteFallsBackWhenPrimaryFails(t *testing.T) {
	eng, alpha, beta, brk := newTestEngine(t)
	alpha.responses["primary-handle"] = &models.GenerationResult{
		Success: false, Error: "model crashed",
	}
	beta.responses["secondary-handle"] = &models.GenerationResult{
		Text: "ok", Success: true,
	}

	result, err := eng.Execute(context.Background(), &Request{Query: "do something"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Response)
	assert.Equal(t, "m_secondary", result.ModelUsed)
	assert.GreaterOrEqual(t, result.FallbacksUsed, 1)

	// The breaker saw the primary backend fail and the fallback succeed.
	statuses := brk.Snapshot()
	assert.Equal(t, 1, statuses["alpha"].ConsecutiveFailures)
	assert.Equal(t, 0, statuses["beta"].ConsecutiveFailures)
}

func TestExecuteChainExhausted(t *testing.T) {
	eng, alpha, beta, _ := newTestEngine(t)
	alpha.responses["primary-handle"] = &models.GenerationResult{Success: false, Error: "boom one"}
	beta.responses["secondary-handle"] = &models.GenerationResult{Success: false, Error: "boom two"}

	result, err := eng.Execute(context.Background(), &Request{Query: "do something"})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "none", result.ModelUsed)
	assert.Contains(t, result.Error, "All models failed")
	assert.Contains(t, result.Error, "boom two")
}

func TestExecuteSkipsUnavailableBackend(t *testing.T) {
	eng, alpha, beta, brk := newTestEngine(t)
	alpha.available = false
	beta.responses["secondary-handle"] = &models.GenerationResult{Text: "ok", Success: true}

	result, err := eng.Execute(context.Background(), &Request{Query: "do something"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "m_secondary", result.ModelUsed)
	assert.Empty(t, alpha.generateCalls, "unavailable backend must not receive a generate call")
	assert.Equal(t, 1, brk.Snapshot()["alpha"].ConsecutiveFailures)
}

func TestExecuteRespectsBreakerDenial(t *testing.T) {
	eng, alpha, beta, brk := newTestEngine(t)
	beta.responses["secondary-handle"] = &models.GenerationResult{Text: "ok", Success: true}

	// Trip the primary backend's circuit.
	for i := 0; i < 3; i++ {
		brk.RecordFailure("alpha")
	}

	result, err := eng.Execute(context.Background(), &Request{Query: "do something"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "m_secondary", result.ModelUsed)
	assert.Empty(t, alpha.generateCalls, "open circuit must short-circuit the adapter call")
}

func TestExecuteStreamFallsBackBeforeFirstChunk(t *testing.T) {
	eng, _, beta, brk := newTestEngine(t)
	// alpha has no stream script: it errors before any output.
	beta.streams["secondary-handle"] = []string{"a", "b"}

	stream, decision, err := eng.ExecuteStream(context.Background(), &Request{Query: "stream it"})

	require.NoError(t, err)
	require.NotNil(t, decision)

	var got []string
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		got = append(got, chunk.Text)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	statuses := brk.Snapshot()
	assert.Equal(t, 1, statuses["alpha"].ConsecutiveFailures)
	assert.Equal(t, breaker.StateClosed, statuses["beta"].State)
	assert.Equal(t, 0, statuses["beta"].ConsecutiveFailures)
}

func TestExecuteStreamExhaustion(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	// Neither backend has a stream script.

	_, _, err := eng.ExecuteStream(context.Background(), &Request{Query: "stream it"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
}

func TestExecuteTimeoutMovesToFallback(t *testing.T) {
	reg := registry.New()
	reg.Register(&models.ModelMetadata{
		ID: "m_slow", Backend: "slow", QualityGeneral: 0.9,
		Capabilities: []models.Capability{models.CapabilityGeneral},
		SpeedClass:   models.SpeedSlow, Available: true, Handle: "slow-handle",
	})

	routingCfg := &config.RoutingConfig{Strategy: config.StrategyAuto, TimeoutSeconds: 1, MaxCost: 1.0}
	router := routing.New(routingCfg, reg, classify.New())
	brk := breaker.New(config.DefaultBreakerConfig())

	slow := &hangingAdapter{name: "slow"}
	eng := New(routingCfg, router, reg, brk, []backend.Adapter{slow}, nil)

	start := time.Now()
	result, err := eng.Execute(context.Background(), &Request{Query: "do something"})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout after 1s")
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, 1, brk.Snapshot()["slow"].ConsecutiveFailures)
}

func TestHealthCheckReportsBreakerState(t *testing.T) {
	eng, alpha, beta, brk := newTestEngine(t)
	alpha.available = true
	beta.available = false
	for i := 0; i < 3; i++ {
		brk.RecordFailure("beta")
	}

	health := eng.HealthCheck(context.Background())

	require.Len(t, health, 2)
	assert.True(t, health["alpha"].Available)
	assert.Equal(t, string(breaker.StateClosed), health["alpha"].BreakerState)
	assert.False(t, health["beta"].Available)
	assert.Equal(t, string(breaker.StateOpen), health["beta"].BreakerState)
	assert.Equal(t, 3, health["beta"].Failures)
}

func TestResetBreakerReopensBackend(t *testing.T) {
	eng, alpha, _, brk := newTestEngine(t)
	alpha.responses["primary-handle"] = &models.GenerationResult{Text: "hello!", Success: true}

	for i := 0; i < 3; i++ {
		brk.RecordFailure("alpha")
	}
	require.Equal(t, breaker.StateOpen, brk.State("alpha"))

	eng.ResetBreaker("alpha")

	result, err := eng.Execute(context.Background(), &Request{Query: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, "m_primary", result.ModelUsed)
}

// hangingAdapter blocks until its context is canceled.
type hangingAdapter struct {
	name string
}

func (h *hangingAdapter) Name() string { return h.name }

func (h *hangingAdapter) Generate(ctx context.Context, req backend.GenerateRequest) (*models.GenerationResult, error) {
	<-ctx.Done()
	return &models.GenerationResult{Model: req.ModelHandle, Error: ctx.Err().Error()}, ctx.Err()
}

func (h *hangingAdapter) GenerateStream(ctx context.Context, _ backend.GenerateRequest) (<-chan backend.StreamChunk, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hangingAdapter) Available(context.Context) bool { return true }

func (h *hangingAdapter) ListModels(context.Context) ([]string, error) { return nil, nil }

func (h *hangingAdapter) Close() error { return nil }
