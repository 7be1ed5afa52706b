// Package e2e boots a complete in-process Portal instance against
// scripted backend adapters and exercises it end to end.
package e2e

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ckindle-42/portal/pkg/agent"
	"github.com/ckindle-42/portal/pkg/api"
	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/breaker"
	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/classify"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/conversation"
	"github.com/ckindle-42/portal/pkg/engine"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/prompt"
	"github.com/ckindle-42/portal/pkg/ratelimit"
	"github.com/ckindle-42/portal/pkg/registry"
	"github.com/ckindle-42/portal/pkg/routing"
	"github.com/ckindle-42/portal/pkg/security"
	"github.com/ckindle-42/portal/pkg/tools"
)

// ScriptedAdapter fakes one backend. Handles listed in failing always
// error; everything else answers with a canned completion naming the
// handle.
type ScriptedAdapter struct {
	name string

	mu      sync.Mutex
	failing map[string]bool
	down    bool

	generateCalls atomic.Int64
}

// NewScriptedAdapter builds a healthy adapter for the named backend.
func NewScriptedAdapter(name string) *ScriptedAdapter {
	return &ScriptedAdapter{name: name, failing: make(map[string]bool)}
}

// FailHandle scripts every generation on the handle to error.
func (a *ScriptedAdapter) FailHandle(handle string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing[handle] = true
}

// SetDown makes the availability probe fail.
func (a *ScriptedAdapter) SetDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

// GenerateCalls reports how many generations were attempted.
func (a *ScriptedAdapter) GenerateCalls() int64 { return a.generateCalls.Load() }

func (a *ScriptedAdapter) Name() string { return a.name }

func (a *ScriptedAdapter) Available(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.down
}

func (a *ScriptedAdapter) Generate(_ context.Context, req backend.GenerateRequest) (*models.GenerationResult, error) {
	a.generateCalls.Add(1)
	a.mu.Lock()
	fails := a.failing[req.ModelHandle]
	a.mu.Unlock()

	if fails {
		return &models.GenerationResult{Success: false, Error: "backend exploded"},
			fmt.Errorf("backend exploded")
	}
	return &models.GenerationResult{
		Text:            "answer from " + req.ModelHandle,
		TokensGenerated: 5,
		Model:           req.ModelHandle,
		Success:         true,
	}, nil
}

func (a *ScriptedAdapter) GenerateStream(ctx context.Context, req backend.GenerateRequest) (<-chan backend.StreamChunk, error) {
	result, err := a.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan backend.StreamChunk, 1)
	out <- backend.StreamChunk{Text: result.Text}
	close(out)
	return out, nil
}

func (a *ScriptedAdapter) ListModels(context.Context) ([]string, error) { return nil, nil }
func (a *ScriptedAdapter) Close() error                                { return nil }

// TestApp is a full Portal stack over two scripted backends: "alpha"
// (m_small, m_coder) and "beta" (m_flaky).
type TestApp struct {
	Config   *config.Config
	Registry *registry.Registry
	Breaker  *breaker.Breaker
	Engine   *engine.Engine
	Bus      *bus.Bus
	Store    *conversation.Manager
	Agent    *agent.Agent
	Security *security.Middleware
	Router   *gin.Engine

	Alpha *ScriptedAdapter
	Beta  *ScriptedAdapter

	t *testing.T
}

// AppOption tweaks the config before the stack is built.
type AppOption func(*config.Config)

// WithRateLimit caps requests per user inside the window.
func WithRateLimit(maxRequests, windowSeconds int) AppOption {
	return func(cfg *config.Config) {
		cfg.Security.RateLimitRequests = maxRequests
		cfg.Security.WindowSeconds = windowSeconds
	}
}

// WithPreferences replaces the routing preference tiers.
func WithPreferences(prefs map[string][]string) AppOption {
	return func(cfg *config.Config) {
		cfg.Routing.ModelPreferences = prefs
	}
}

// NewTestApp assembles the stack. Every component is real except the
// two backend adapters.
func NewTestApp(t *testing.T, opts ...AppOption) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Context.DBPath = t.TempDir() + "/portal.db"
	cfg.Security.StatePath = ""
	cfg.Routing.TimeoutSeconds = 5
	cfg.Routing.ModelPreferences = map[string][]string{
		"trivial": {"m_small"},
		"simple":  {"m_small"},
		"code":    {"m_coder"},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := registry.NewFromCatalog([]config.ModelConfig{
		{ID: "m_small", Backend: "alpha", Capabilities: []string{"general"},
			SpeedClass: "fast", Handle: "small-3b", Quality: config.QualityConfig{General: 0.6}, Cost: 0.1},
		{ID: "m_coder", Backend: "alpha", Capabilities: []string{"code", "general"},
			SpeedClass: "medium", Handle: "coder-7b", Quality: config.QualityConfig{General: 0.7, Code: 0.9}, Cost: 0.3},
		{ID: "m_flaky", Backend: "beta", Capabilities: []string{"general"},
			SpeedClass: "fast", Handle: "flaky-1b", Quality: config.QualityConfig{General: 0.2}, Cost: 0.1},
	})

	alpha := NewScriptedAdapter("alpha")
	beta := NewScriptedAdapter("beta")

	brk := breaker.New(cfg.Breaker)
	b := bus.New(cfg.Events)
	eng := engine.New(cfg.Routing,
		routing.New(cfg.Routing, reg, classify.New()),
		reg, brk, []backend.Adapter{alpha, beta}, b)

	store, err := conversation.New(cfg.Context)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	limiter, err := ratelimit.New(cfg.Security)
	require.NoError(t, err)

	prompts := prompt.New(cfg.Prompts)
	t.Cleanup(func() { prompts.Close() })

	gate := tools.NewConfirmationGate(b, cfg.Agent.ConfirmationTimeout())
	core := agent.New(cfg.Agent, store, eng, b, prompts, tools.NewRegistry(), gate)
	mw := security.New(cfg.Security, limiter, core, b)

	server := api.NewServer(cfg.Server, mw, eng, core, store, reg, gate, b)

	return &TestApp{
		Config:   cfg,
		Registry: reg,
		Breaker:  brk,
		Engine:   eng,
		Bus:      b,
		Store:    store,
		Agent:    core,
		Security: mw,
		Router:   server.Router(),
		Alpha:    alpha,
		Beta:     beta,
		t:        t,
	}
}

// Process sends one message through the security middleware and the
// full core pipeline.
func (app *TestApp) Process(userID, message string) (*models.ProcessingResult, error) {
	return app.Security.ProcessMessage(context.Background(), &agent.Request{
		ChatID:    conversation.ChatID("web", userID),
		Message:   message,
		Interface: "web",
		User:      &models.UserContext{UserID: userID},
	})
}

// CollectEvents subscribes a recorder to the given event type.
func (app *TestApp) CollectEvents(eventType models.EventType) *EventRecorder {
	rec := &EventRecorder{}
	app.Bus.Subscribe(eventType, rec.record)
	return rec
}

// EventRecorder accumulates events for assertions.
type EventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *EventRecorder) record(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of everything recorded so far.
func (r *EventRecorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len reports how many events were recorded.
func (r *EventRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WaitLen blocks until at least n events arrive or the deadline hits.
func (r *EventRecorder) WaitLen(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Len() >= n },
		2*time.Second, 10*time.Millisecond)
}
