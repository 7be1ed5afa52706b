// Package security is the gate in front of the agent core: every
// message passes rate limiting, sanitization, and size validation
// before any model work happens.
package security

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ckindle-42/portal/pkg/agent"
	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/errs"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/ratelimit"
	"github.com/ckindle-42/portal/pkg/sanitize"
)

// dangerPrefix marks sanitizer warnings that block the request instead
// of merely annotating it.
const dangerPrefix = "Dangerous pattern detected"

// Processor is the downstream core the middleware guards.
type Processor interface {
	Process(ctx context.Context, req *agent.Request) (*models.ProcessingResult, error)
}

// Middleware screens requests before they reach the processor. Safe
// for concurrent use.
type Middleware struct {
	cfg     *config.SecurityConfig
	limiter *ratelimit.Limiter
	next    Processor
	bus     *bus.Bus
}

// New builds the middleware. limiter may be nil when rate limiting is
// disabled; bus may be nil to suppress events.
func New(cfg *config.SecurityConfig, limiter *ratelimit.Limiter, next Processor, b *bus.Bus) *Middleware {
	return &Middleware{cfg: cfg, limiter: limiter, next: next, bus: b}
}

// ProcessMessage runs the security pipeline and forwards the sanitized
// request to the processor. A blocked request never reaches the core.
func (m *Middleware) ProcessMessage(ctx context.Context, req *agent.Request) (*models.ProcessingResult, error) {
	sec := models.SecurityContext{
		ChatID:    req.ChatID,
		Interface: req.Interface,
	}
	if req.User != nil {
		sec.UserID = req.User.UserID
		sec.IP = req.User.IP
	}

	if m.cfg.RateLimitOn() && m.limiter != nil && sec.UserID != "" {
		if allowed, retryAfter := m.limiter.Check(sec.UserID); !allowed {
			m.publish(ctx, models.EventRateLimitWarning, req.ChatID, map[string]any{
				"user_id":     sec.UserID,
				"retry_after": int(retryAfter.Seconds()) + 1,
				"violations":  m.limiter.Violations(sec.UserID),
			})
			slog.Warn("Rate limit exceeded",
				"user_id", sec.UserID,
				"chat_id", req.ChatID,
				"retry_after", retryAfter)
			return nil, errs.RateLimited(retryAfter)
		}
	}

	input := req.Message
	if m.cfg.SanitizeOn() {
		sanitized, warnings := sanitize.SanitizeInput(input)
		input = sanitized
		for _, w := range warnings {
			if strings.Contains(w, dangerPrefix) {
				m.publish(ctx, models.EventSecurityWarning, req.ChatID, map[string]any{
					"user_id": sec.UserID,
					"warning": w,
				})
				slog.Warn("Blocked dangerous input",
					"user_id", sec.UserID,
					"chat_id", req.ChatID,
					"warning", w)
				return nil, errs.PolicyViolation("input contains a dangerous pattern").
					WithDetail("warning", w)
			}
			sec.Warnings = append(sec.Warnings, w)
		}
	} else {
		input = strings.TrimSpace(input)
	}
	sec.SanitizedInput = input

	if input == "" {
		return nil, errs.Validation("message is empty")
	}
	if max := m.cfg.MaxMessageLength; max > 0 && len(input) > max {
		return nil, errs.Validation("message exceeds maximum length").
			WithDetail("length", len(input)).
			WithDetail("max_length", max)
	}

	forwarded := *req
	forwarded.Message = input
	forwarded.Warnings = append(forwarded.Warnings, sec.Warnings...)

	return m.next.Process(ctx, &forwarded)
}

func (m *Middleware) publish(ctx context.Context, eventType models.EventType, chatID string, data map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, eventType, chatID, data, "")
}
