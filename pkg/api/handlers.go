package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ckindle-42/portal/pkg/agent"
	"github.com/ckindle-42/portal/pkg/conversation"
	"github.com/ckindle-42/portal/pkg/engine"
	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/sanitize"
	"github.com/ckindle-42/portal/pkg/tools"
)

const healthProbeTimeout = 5 * time.Second

// messageRequest is the POST /message body.
type messageRequest struct {
	Message   string `json:"message" binding:"required"`
	ChatID    string `json:"chat_id"`
	Interface string `json:"interface"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Style     string `json:"style"`
}

func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("invalid request body").WithCause(err))
		return
	}

	iface := req.Interface
	if iface == "" {
		iface = "web"
	}
	chatID := req.ChatID
	if chatID == "" {
		native := req.UserID
		if native == "" {
			native = uuid.NewString()[:8]
		}
		chatID = conversation.ChatID(iface, native)
	}

	result, err := s.processor.ProcessMessage(c.Request.Context(), &agent.Request{
		ChatID:    chatID,
		Message:   req.Message,
		Interface: iface,
		Style:     req.Style,
		User: &models.UserContext{
			UserID:   req.UserID,
			Username: req.Username,
			IP:       c.ClientIP(),
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chat_id": chatID,
		"result":  result,
	})
}

// streamRequest is the POST /generate/stream body.
type streamRequest struct {
	Query        string  `json:"query" binding:"required"`
	SystemPrompt string  `json:"system_prompt"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	MaxCost      float64 `json:"max_cost"`
}

// handleGenerateStream streams model output as SSE. The routing
// decision goes out first, then one chunk event per unit of text, then
// a done event. A mid-stream failure surfaces as an error event; by
// then the HTTP status is already committed.
func (s *Server) handleGenerateStream(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("invalid request body").WithCause(err))
		return
	}

	query, warnings := sanitize.SanitizeInput(req.Query)
	for _, w := range warnings {
		if containsDanger(w) {
			respondError(c, errs.PolicyViolation("input contains a dangerous pattern").
				WithDetail("warning", w))
			return
		}
	}
	if query == "" {
		respondError(c, errs.Validation("query is empty"))
		return
	}

	ctx := c.Request.Context()
	chunks, decision, err := s.engine.ExecuteStream(ctx, &engine.Request{
		Query:        query,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		MaxCost:      req.MaxCost,
	})
	if err != nil {
		if errors.Is(err, engine.ErrAllModelsFailed) {
			respondError(c, errs.BackendUnavailable("all").WithCause(err))
			return
		}
		respondError(c, errs.Processing("stream setup failed").WithCause(err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("routing", gin.H{
		"model_id": decision.ModelID,
		"strategy": decision.Strategy,
	})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				c.SSEvent("done", gin.H{})
				return false
			}
			if chunk.Err != nil {
				c.SSEvent("error", gin.H{"message": chunk.Err.Error()})
				return false
			}
			c.SSEvent("chunk", gin.H{"text": chunk.Text})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func containsDanger(warning string) bool {
	return strings.HasPrefix(warning, "Dangerous pattern detected")
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	backends := s.engine.HealthCheck(ctx)
	anyUp := false
	for _, b := range backends {
		if b.Available {
			anyUp = true
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	switch {
	case len(backends) == 0 || !anyUp:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	default:
		for _, b := range backends {
			if !b.Available {
				status = "degraded"
				break
			}
		}
	}

	c.JSON(code, gin.H{
		"status":   status,
		"backends": backends,
		"models":   s.registry.Len(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Stats())
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.registry.All()})
}

// discoverRequest optionally narrows discovery to one backend.
type discoverRequest struct {
	Backend string `json:"backend"`
}

func (s *Server) handleDiscover(c *gin.Context) {
	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, errs.Validation("invalid request body").WithCause(err))
		return
	}

	names := s.engine.Backends()
	if req.Backend != "" {
		if s.adapterByName(req.Backend) == nil {
			respondError(c, errs.InvalidParams("unknown backend").
				WithDetail("backend", req.Backend))
			return
		}
		names = []string{req.Backend}
	}

	discovered := make(map[string]any, len(names))
	for _, name := range names {
		registered, err := s.registry.Discover(c.Request.Context(), name, s.adapterByName(name), true)
		if err != nil {
			discovered[name] = gin.H{"error": err.Error()}
			continue
		}
		if registered == nil {
			registered = []string{}
		}
		discovered[name] = gin.H{"registered": registered}
	}
	c.JSON(http.StatusOK, gin.H{"backends": discovered})
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	name := c.Param("backend")
	if s.adapterByName(name) == nil {
		respondError(c, errs.InvalidParams("unknown backend").WithDetail("backend", name))
		return
	}
	s.engine.ResetBreaker(name)
	c.JSON(http.StatusOK, gin.H{"backend": name, "state": "closed"})
}

func (s *Server) handleContextHistory(c *gin.Context) {
	chatID := c.Param("chat_id")
	limit := conversation.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, errs.InvalidParams("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	includeSystem := c.Query("include_system") == "true"

	history, err := s.conversations.History(c.Request.Context(), chatID, limit, includeSystem)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "messages": history})
}

func (s *Server) handleContextSummary(c *gin.Context) {
	summary, err := s.conversations.Summary(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleContextClear(c *gin.Context) {
	chatID := c.Param("chat_id")
	if err := s.conversations.Clear(c.Request.Context(), chatID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "cleared": true})
}

// confirmationRequest is the POST /confirmations/:id body.
type confirmationRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

func (s *Server) handleConfirmation(c *gin.Context) {
	var req confirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("body requires an approved field").WithCause(err))
		return
	}

	id := c.Param("id")
	if err := s.gate.Resolve(id, *req.Approved); err != nil {
		if errors.Is(err, tools.ErrUnknownConfirmation) {
			respondError(c, errs.InvalidParams("unknown or expired confirmation").
				WithDetail("confirmation_id", id))
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmation_id": id, "approved": *req.Approved})
}

func (s *Server) handleWS(c *gin.Context) {
	s.hub.Handle(c.Writer, c.Request)
}
