// Package ratelimit admits at most a configured number of requests per
// user inside a sliding window, with violation counting and atomic
// on-disk persistence so limits survive a restart.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ckindle-42/portal/pkg/config"
)

// state is the on-disk shape: per-user request timestamps (unix
// milliseconds) and cumulative violation counts. The file is replaced
// atomically on every flush.
type state struct {
	Requests   map[string][]int64 `json:"requests"`
	Violations map[string]int     `json:"violations"`
	Timestamp  int64              `json:"timestamp"`
}

// Limiter is a sliding-window per-user rate limiter. Safe for
// concurrent use; the check path is a mutex-guarded slice prune.
type Limiter struct {
	maxRequests  int
	window       time.Duration
	statePath    string
	saveInterval time.Duration

	mu       sync.Mutex
	requests map[string][]int64
	// violations survives window pruning: it is a lifetime counter.
	violations map[string]int
	dirty      bool
	lastSave   time.Time

	// now is swapped out by tests to step through windows.
	now func() time.Time
}

// New builds a limiter from the security config and loads any
// persisted state. A corrupt state file is renamed aside and replaced
// with fresh state; it never fails the boot.
func New(cfg *config.SecurityConfig) (*Limiter, error) {
	l := &Limiter{
		maxRequests:  cfg.RateLimitRequests,
		window:       cfg.Window(),
		statePath:    cfg.StatePath,
		saveInterval: cfg.SaveInterval(),
		requests:     make(map[string][]int64),
		violations:   make(map[string]int),
		now:          time.Now,
	}
	// Start the flush throttle from boot so the first write waits out a
	// full save interval.
	l.lastSave = l.now()
	if l.statePath != "" {
		if dir := filepath.Dir(l.statePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating rate-limit state directory: %w", err)
			}
		}
		l.load()
	}
	return l, nil
}

// load restores persisted state. Quarantines an unreadable file with a
// timestamped suffix so it can be inspected later.
func (l *Limiter) load() {
	raw, err := os.ReadFile(l.statePath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Warn("Failed to read rate-limit state", "state_path", l.statePath, "error", err)
		return
	}

	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", l.statePath, l.now().Unix())
		if renameErr := os.Rename(l.statePath, quarantine); renameErr != nil {
			slog.Error("Failed to quarantine corrupt rate-limit state",
				"state_path", l.statePath, "error", renameErr)
		} else {
			slog.Warn("Quarantined corrupt rate-limit state",
				"state_path", l.statePath, "quarantine", quarantine, "error", err)
		}
		return
	}

	if s.Requests != nil {
		l.requests = s.Requests
	}
	if s.Violations != nil {
		l.violations = s.Violations
	}
	slog.Info("Rate-limit state restored",
		"state_path", l.statePath, "users", len(l.requests))
}

// Check admits or denies one request for the user. On denial the
// returned duration is how long the user must wait before the oldest
// in-window request ages out.
func (l *Limiter) Check(userID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window).UnixMilli()

	kept := l.requests[userID][:0]
	for _, ts := range l.requests[userID] {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxRequests {
		l.requests[userID] = kept
		l.violations[userID]++
		l.dirty = true
		retryAfter := time.UnixMilli(kept[0]).Add(l.window).Sub(now)
		l.maybeFlushLocked()
		return false, retryAfter
	}

	kept = append(kept, now.UnixMilli())
	if len(kept) > l.maxRequests {
		kept = kept[len(kept)-l.maxRequests:]
	}
	if len(kept) == 0 {
		delete(l.requests, userID)
	} else {
		l.requests[userID] = kept
	}
	l.dirty = true
	l.maybeFlushLocked()
	return true, 0
}

// Violations reports the user's lifetime violation count.
func (l *Limiter) Violations(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violations[userID]
}

// maybeFlushLocked persists the state when dirty and the save interval
// has elapsed. Callers must hold l.mu.
func (l *Limiter) maybeFlushLocked() {
	if !l.dirty || l.statePath == "" {
		return
	}
	if l.now().Sub(l.lastSave) < l.saveInterval {
		return
	}
	if err := l.flushLocked(); err != nil {
		slog.Warn("Rate-limit state flush failed", "state_path", l.statePath, "error", err)
	}
}

// flushLocked writes the state atomically: temp file in the same
// directory, fsync, rename over the target. Callers must hold l.mu.
func (l *Limiter) flushLocked() error {
	// Drop users with no in-window requests to bound file and memory
	// growth; violation counts stay.
	cutoff := l.now().Add(-l.window).UnixMilli()
	for user, timestamps := range l.requests {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.requests, user)
		} else {
			l.requests[user] = kept
		}
	}

	raw, err := json.Marshal(state{
		Requests:   l.requests,
		Violations: l.violations,
		Timestamp:  l.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling rate-limit state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.statePath), filepath.Base(l.statePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, l.statePath); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	l.dirty = false
	l.lastSave = l.now()
	return nil
}

// Flush forces an immediate persistence pass regardless of the save
// interval.
func (l *Limiter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.statePath == "" || !l.dirty {
		return nil
	}
	return l.flushLocked()
}

// Close flushes pending state. Registered as a shutdown hook so the
// restart-bypass window stays bounded by the save interval.
func (l *Limiter) Close() error {
	return l.Flush()
}
