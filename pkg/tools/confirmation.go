package tools

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/models"
)

// Decision is the outcome of one confirmation round-trip.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionTimeout  Decision = "timeout"
)

// ErrUnknownConfirmation is returned by Resolve for ids that are not
// pending (never existed, already resolved, or expired).
var ErrUnknownConfirmation = errors.New("unknown confirmation id")

// ConfirmationGate brokers tool approvals over the event bus. Pending
// confirmations live in memory only; a restart abandons them and the
// waiting callers time out.
type ConfirmationGate struct {
	bus *bus.Bus
	ttl time.Duration

	mu      sync.Mutex
	pending map[string]chan bool
}

// NewConfirmationGate creates a gate publishing on b with the given
// per-confirmation TTL.
func NewConfirmationGate(b *bus.Bus, ttl time.Duration) *ConfirmationGate {
	return &ConfirmationGate{
		bus:     b,
		ttl:     ttl,
		pending: make(map[string]chan bool),
	}
}

// Request publishes tool_confirmation_required and blocks until the
// confirmation is resolved, its TTL expires, or ctx is canceled.
// Timeout and cancellation both come back as DecisionTimeout.
func (g *ConfirmationGate) Request(ctx context.Context, chatID, userID, toolName string, params map[string]any) Decision {
	id := uuid.NewString()
	answer := make(chan bool, 1)

	g.mu.Lock()
	g.pending[id] = answer
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
	}()

	g.bus.Publish(ctx, models.EventToolConfirmationRequired, chatID, map[string]any{
		"confirmation_id": id,
		"tool":            toolName,
		"user_id":         userID,
		"parameters":      params,
		"expires_in_sec":  int(g.ttl.Seconds()),
	}, "")

	timer := time.NewTimer(g.ttl)
	defer timer.Stop()

	select {
	case approved := <-answer:
		if approved {
			g.bus.Publish(ctx, models.EventToolConfirmationApproved, chatID, map[string]any{
				"confirmation_id": id,
				"tool":            toolName,
			}, "")
			return DecisionApproved
		}
		g.bus.Publish(ctx, models.EventToolConfirmationDenied, chatID, map[string]any{
			"confirmation_id": id,
			"tool":            toolName,
		}, "")
		return DecisionDenied

	case <-timer.C:
		slog.Info("Tool confirmation timed out", "tool", toolName, "chat_id", chatID)
		g.bus.Publish(ctx, models.EventToolConfirmationDenied, chatID, map[string]any{
			"confirmation_id": id,
			"tool":            toolName,
			"reason":          "timeout",
		}, "")
		return DecisionTimeout

	case <-ctx.Done():
		return DecisionTimeout
	}
}

// Resolve answers one pending confirmation. The HTTP surface calls
// this when an operator approves or denies.
func (g *ConfirmationGate) Resolve(id string, approved bool) error {
	g.mu.Lock()
	answer, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if !ok {
		return ErrUnknownConfirmation
	}
	answer <- approved
	return nil
}

// Pending reports how many confirmations are waiting.
func (g *ConfirmationGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
