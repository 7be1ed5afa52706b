// Package api is Portal's ops surface: the gin HTTP API, the SSE
// streaming endpoint, and the WebSocket event feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ckindle-42/portal/pkg/agent"
	"github.com/ckindle-42/portal/pkg/backend"
	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/conversation"
	"github.com/ckindle-42/portal/pkg/engine"
	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/registry"
	"github.com/ckindle-42/portal/pkg/tools"
)

// Processor is the guarded message pipeline the API fronts.
type Processor interface {
	ProcessMessage(ctx context.Context, req *agent.Request) (*models.ProcessingResult, error)
}

// StatsSource exposes the agent core's counters.
type StatsSource interface {
	Stats() agent.Stats
}

// Server is the HTTP/WS surface. Construct with NewServer, then Start.
type Server struct {
	cfg           *config.ServerConfig
	processor     Processor
	engine        *engine.Engine
	stats         StatsSource
	conversations *conversation.Manager
	registry      *registry.Registry
	gate          *tools.ConfirmationGate
	hub           *Hub

	http *http.Server
}

// NewServer wires the API over its collaborators. The bus feeds the
// WebSocket hub; a nil bus disables /ws.
func NewServer(
	cfg *config.ServerConfig,
	processor Processor,
	eng *engine.Engine,
	stats StatsSource,
	conversations *conversation.Manager,
	reg *registry.Registry,
	gate *tools.ConfirmationGate,
	b *bus.Bus,
) *Server {
	s := &Server{
		cfg:           cfg,
		processor:     processor,
		engine:        eng,
		stats:         stats,
		conversations: conversations,
		registry:      reg,
		gate:          gate,
	}
	if b != nil {
		s.hub = NewHub(b)
	}
	return s
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	v1 := r.Group("/api/v1")
	v1.POST("/message", s.handleMessage)
	v1.POST("/generate/stream", s.handleGenerateStream)
	v1.GET("/health", s.handleHealth)
	v1.GET("/stats", s.handleStats)
	v1.GET("/models", s.handleModels)
	v1.POST("/models/discover", s.handleDiscover)
	v1.GET("/context/:chat_id", s.handleContextHistory)
	v1.GET("/context/:chat_id/summary", s.handleContextSummary)
	v1.DELETE("/context/:chat_id", s.handleContextClear)
	v1.POST("/confirmations/:id", s.handleConfirmation)
	if s.hub != nil {
		v1.GET("/ws", s.handleWS)
	}

	admin := v1.Group("/admin", apiKeyAuth(s.cfg.APIKey))
	admin.POST("/breakers/:backend/reset", s.handleBreakerReset)

	return r
}

// Start begins serving in a background goroutine. Returns once the
// listener is bound; serve errors other than graceful close are
// reported on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Stop drains in-flight requests and closes the listener and the WS
// hub.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.Error("HTTP request", attrs...)
		} else {
			slog.Info("HTTP request", attrs...)
		}
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// apiKeyAuth guards admin routes with the configured key via the
// X-API-Key header. An empty configured key closes the routes
// entirely.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			respondError(c, errs.Forbidden("admin API disabled"))
			return
		}
		if c.GetHeader("X-API-Key") != key {
			respondError(c, errs.Unauthorized("invalid API key"))
			return
		}
		c.Next()
	}
}

// adapterByName lets handlers reach a specific adapter for discovery.
func (s *Server) adapterByName(name string) backend.Adapter {
	if s.engine == nil {
		return nil
	}
	return s.engine.Adapter(name)
}
