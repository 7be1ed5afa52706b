// Portal gateway server — routes messages across local LLM backends
// and serves the HTTP API, SSE streaming, and WebSocket event feed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ckindle-42/portal/pkg/agent"
	"github.com/ckindle-42/portal/pkg/api"
	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/breaker"
	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/classify"
	"github.com/ckindle-42/portal/pkg/cleanup"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/conversation"
	"github.com/ckindle-42/portal/pkg/engine"
	"github.com/ckindle-42/portal/pkg/prompt"
	"github.com/ckindle-42/portal/pkg/ratelimit"
	"github.com/ckindle-42/portal/pkg/registry"
	"github.com/ckindle-42/portal/pkg/routing"
	"github.com/ckindle-42/portal/pkg/runtime"
	"github.com/ckindle-42/portal/pkg/security"
	"github.com/ckindle-42/portal/pkg/tools"
	"github.com/ckindle-42/portal/pkg/version"
)

const discoveryTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: PORTAL_CONFIG or config/portal.yaml)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting Portal", "version", version.Full())

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Model fleet: catalog, routing, breaker, adapters.
	reg := registry.NewFromCatalog(cfg.Models)
	router := routing.New(cfg.Routing, reg, classify.New())
	brk := breaker.New(cfg.Breaker)

	var adapters []backend.Adapter
	if cfg.Backends.Ollama != nil && cfg.Backends.Ollama.BaseURL != "" {
		adapters = append(adapters, backend.NewOllama(cfg.Backends.Ollama.BaseURL, cfg.Routing.Timeout()))
	}
	if cfg.Backends.LMStudio != nil && cfg.Backends.LMStudio.BaseURL != "" {
		adapters = append(adapters, backend.NewLMStudio(cfg.Backends.LMStudio.BaseURL, cfg.Routing.Timeout()))
	}
	if len(adapters) == 0 {
		slog.Error("No backends configured")
		os.Exit(1)
	}

	// Event bus, with the Postgres broker when configured.
	b := bus.New(cfg.Events)
	if cfg.Events.Broker != nil && cfg.Events.Broker.Type == config.BrokerPostgres {
		broker, err := bus.NewPGBroker(cfg.Events.Broker.DatabaseURL)
		if err != nil {
			slog.Error("Failed to create event broker", "error", err)
			os.Exit(1)
		}
		if err := b.AttachBroker(ctx, broker); err != nil {
			slog.Error("Failed to start event broker", "error", err)
			os.Exit(1)
		}
	}

	eng := engine.New(cfg.Routing, router, reg, brk, adapters, b)

	conversations, err := conversation.New(cfg.Context)
	if err != nil {
		slog.Error("Failed to open conversation store", "error", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(cfg.Security)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}

	prompts := prompt.New(cfg.Prompts)
	toolRegistry := tools.NewRegistry()
	gate := tools.NewConfirmationGate(b, cfg.Agent.ConfirmationTimeout())

	core := agent.New(cfg.Agent, conversations, eng, b, prompts, toolRegistry, gate)
	middleware := security.New(cfg.Security, limiter, core, b)

	// One best-effort discovery pass per backend before serving.
	discoveryCtx, cancelDiscovery := context.WithTimeout(ctx, discoveryTimeout)
	for _, adapter := range adapters {
		registered, err := reg.Discover(discoveryCtx, adapter.Name(), adapter, false)
		if err != nil {
			slog.Warn("Model discovery failed", "backend", adapter.Name(), "error", err)
			continue
		}
		slog.Info("Model discovery complete",
			"backend", adapter.Name(), "new_models", len(registered))
	}
	cancelDiscovery()

	// Lifecycle: retention sweep, watchdog, shutdown ordering.
	rt := runtime.New(cfg.Lifecycle)

	retention := cleanup.NewService(cfg.Context, conversations)
	retention.Start(ctx)

	var watchdog *runtime.Watchdog
	if cfg.Lifecycle.WatchdogOn() {
		watchdog = runtime.NewWatchdog(cfg.Lifecycle, reg, adapters)
		watchdog.Start(ctx)
	}

	server := api.NewServer(cfg.Server, middleware, eng, core, conversations, reg, gate, b)
	serverErrs, err := server.Start()
	if err != nil {
		slog.Error("Failed to start API server", "error", err)
		os.Exit(1)
	}

	rt.RegisterShutdownHook("api-server", runtime.PriorityCritical, 10*time.Second, server.Stop)
	rt.RegisterShutdownHook("watchdog", runtime.PriorityHigh, 5*time.Second, func(context.Context) error {
		if watchdog != nil {
			watchdog.Stop()
		}
		return nil
	})
	rt.RegisterShutdownHook("retention", runtime.PriorityHigh, 5*time.Second, func(context.Context) error {
		retention.Stop()
		return nil
	})
	rt.RegisterShutdownHook("rate-limiter", runtime.PriorityNormal, 5*time.Second, func(context.Context) error {
		return limiter.Close()
	})
	rt.RegisterShutdownHook("agent-core", runtime.PriorityLow, 5*time.Second, func(context.Context) error {
		prompts.Close()
		eng.Close()
		return nil
	})
	rt.RegisterShutdownHook("event-bus", runtime.PriorityLow, 5*time.Second, func(context.Context) error {
		b.Close()
		return nil
	})
	rt.RegisterShutdownHook("conversation-store", runtime.PriorityLowest, 5*time.Second, func(context.Context) error {
		return conversations.Close()
	})

	slog.Info("Portal started",
		"addr", cfg.Server.Host,
		"port", cfg.Server.Port,
		"models", reg.Len(),
		"backends", len(adapters),
		"environment", cfg.Environment)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-serverErrs:
		if err != nil {
			slog.Error("API server error triggered shutdown", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Lifecycle.ShutdownTimeout())
	defer cancel()
	rt.Shutdown(shutdownCtx)
}
