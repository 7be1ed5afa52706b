// Package cleanup enforces conversation retention: a background loop
// that periodically purges messages older than the configured
// retention window.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ckindle-42/portal/pkg/config"
)

// Purger is the slice of the conversation manager the sweep needs.
type Purger interface {
	GC(ctx context.Context, daysToKeep int) (int64, error)
}

// Service runs the retention sweep on a fixed interval. Idempotent:
// sweeping an already-clean store removes nothing.
type Service struct {
	cfg    *config.ContextConfig
	purger Purger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the retention service.
func NewService(cfg *config.ContextConfig, purger Purger) *Service {
	return &Service{cfg: cfg, purger: purger}
}

// Start launches the background sweep loop. A retention of zero days
// disables it entirely. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	if s.cfg.RetentionDays <= 0 {
		slog.Info("Conversation retention disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention sweep started",
		"retention_days", s.cfg.RetentionDays,
		"interval", s.cfg.CleanupInterval())
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("Retention sweep stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	removed, err := s.purger.GC(ctx, s.cfg.RetentionDays)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Retention sweep purged messages", "count", removed)
	}
}
