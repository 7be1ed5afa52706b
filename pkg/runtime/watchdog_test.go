package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/registry"
)

// probeAdapter is an adapter whose availability can be toggled.
type probeAdapter struct {
	name      string
	available atomic.Bool
	probes    atomic.Int64
}

func (p *probeAdapter) Name() string { return p.name }
func (p *probeAdapter) Available(context.Context) bool {
	p.probes.Add(1)
	return p.available.Load()
}
func (p *probeAdapter) Generate(context.Context, backend.GenerateRequest) (*models.GenerationResult, error) {
	return nil, nil
}
func (p *probeAdapter) GenerateStream(context.Context, backend.GenerateRequest) (<-chan backend.StreamChunk, error) {
	return nil, nil
}
func (p *probeAdapter) ListModels(context.Context) ([]string, error) { return nil, nil }
func (p *probeAdapter) Close() error                                 { return nil }

func watchdogFixture(t *testing.T) (*Watchdog, *probeAdapter, *registry.Registry) {
	t.Helper()
	reg := registry.NewFromCatalog([]config.ModelConfig{
		{ID: "m_small", Backend: "ollama", Capabilities: []string{"general"}, SpeedClass: "fast", Handle: "llama3.2:3b"},
		{ID: "m_coder", Backend: "ollama", Capabilities: []string{"code"}, SpeedClass: "medium", Handle: "qwen2.5-coder:7b"},
		{ID: "m_other", Backend: "lmstudio", Capabilities: []string{"general"}, SpeedClass: "fast", Handle: "phi-3"},
	})

	adapter := &probeAdapter{name: "ollama"}
	adapter.available.Store(true)

	cfg := config.DefaultLifecycleConfig()
	cfg.WatchdogIntervalSeconds = 1
	return NewWatchdog(cfg, reg, []backend.Adapter{adapter}), adapter, reg
}

func available(t *testing.T, reg *registry.Registry, id string) bool {
	t.Helper()
	meta, err := reg.Get(id)
	require.NoError(t, err)
	return meta.Available
}

func TestWatchdogFlipsModelsWhenBackendGoesDown(t *testing.T) {
	w, adapter, reg := watchdogFixture(t)

	ctx := context.Background()
	w.probe(ctx)
	assert.True(t, available(t, reg, "m_small"))
	assert.True(t, available(t, reg, "m_coder"))

	adapter.available.Store(false)
	w.probe(ctx)

	assert.False(t, available(t, reg, "m_small"))
	assert.False(t, available(t, reg, "m_coder"))
	assert.True(t, available(t, reg, "m_other"), "other backend untouched")
}

func TestWatchdogFlipsModelsBackOnRecovery(t *testing.T) {
	w, adapter, reg := watchdogFixture(t)
	ctx := context.Background()

	adapter.available.Store(false)
	w.probe(ctx)
	require.False(t, available(t, reg, "m_small"))

	adapter.available.Store(true)
	w.probe(ctx)
	assert.True(t, available(t, reg, "m_small"))
}

func TestWatchdogSteadyStateDoesNotRewrite(t *testing.T) {
	w, adapter, reg := watchdogFixture(t)
	ctx := context.Background()

	w.probe(ctx)
	w.probe(ctx)
	w.probe(ctx)

	assert.Equal(t, int64(3), adapter.probes.Load())
	assert.True(t, available(t, reg, "m_small"))
}

func TestWatchdogLoopProbesOnInterval(t *testing.T) {
	w, adapter, _ := watchdogFixture(t)

	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool {
		return adapter.probes.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchdogStopWaits(t *testing.T) {
	w, _, _ := watchdogFixture(t)
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
