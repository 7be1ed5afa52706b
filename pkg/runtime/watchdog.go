package runtime

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/registry"
)

// Watchdog probes backend availability on an interval and flips the
// registry availability of a backend's models when its state changes.
type Watchdog struct {
	cfg      *config.LifecycleConfig
	registry *registry.Registry
	adapters []backend.Adapter

	// last known availability per backend; nil entry means not yet
	// probed.
	known map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatchdog builds a watchdog over the given adapters.
func NewWatchdog(cfg *config.LifecycleConfig, reg *registry.Registry, adapters []backend.Adapter) *Watchdog {
	return &Watchdog{
		cfg:      cfg,
		registry: reg,
		adapters: adapters,
		known:    make(map[string]bool),
	}
}

// Start launches the probe loop. Calling Start twice is a no-op.
func (w *Watchdog) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx)

	slog.Info("Watchdog started", "interval", w.cfg.WatchdogInterval())
}

// Stop ends the probe loop and waits for it to finish.
func (w *Watchdog) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	slog.Info("Watchdog stopped")
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.WatchdogInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

// probe checks every adapter once. Only the run loop calls it, so the
// known map needs no lock.
func (w *Watchdog) probe(ctx context.Context) {
	for _, adapter := range w.adapters {
		name := adapter.Name()
		available := adapter.Available(ctx)

		previous, seen := w.known[name]
		w.known[name] = available
		if seen && previous == available {
			continue
		}
		if seen {
			slog.Warn("Backend availability changed",
				"backend", name, "available", available)
		}
		w.flip(name, available)
	}
}

// flip marks every model on the backend with the probed availability.
func (w *Watchdog) flip(backendName string, available bool) {
	metas := w.registry.ByBackend(backendName)
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		if err := w.registry.SetAvailable(m.ID, available); err != nil {
			slog.Warn("Failed to update model availability",
				"model_id", m.ID, "error", err)
			continue
		}
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	slog.Debug("Model availability updated",
		"backend", backendName, "available", available, "models", ids)
}
