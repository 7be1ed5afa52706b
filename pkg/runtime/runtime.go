// Package runtime owns process lifecycle: in-flight task tracking,
// prioritized shutdown hooks, and the graceful-shutdown sequence that
// drains work before tearing subsystems down.
package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ckindle-42/portal/pkg/config"
)

// Priority orders shutdown hooks. Higher runs earlier.
type Priority int

const (
	PriorityLowest   Priority = 0
	PriorityLow      Priority = 25
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 75
	PriorityCritical Priority = 100
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityLowest:
		return "lowest"
	}
	return "unknown"
}

type shutdownHook struct {
	name     string
	priority Priority
	timeout  time.Duration
	fn       func(ctx context.Context) error
	seq      int
}

// Runtime tracks in-flight work and runs the shutdown sequence. Safe
// for concurrent use.
type Runtime struct {
	cfg *config.LifecycleConfig

	mu        sync.Mutex
	accepting bool
	nextTask  uint64
	tasks     map[uint64]string
	idle      chan struct{} // closed and replaced as tasks come and go
	hooks     []shutdownHook
	shutdown  bool
}

// New builds the runtime. Work is accepted until Shutdown begins.
func New(cfg *config.LifecycleConfig) *Runtime {
	return &Runtime{
		cfg:       cfg,
		accepting: true,
		tasks:     make(map[uint64]string),
		idle:      closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// AcceptingWork reports whether new requests should be admitted. Flips
// false the moment Shutdown starts.
func (r *Runtime) AcceptingWork() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepting
}

// Track registers one in-flight task and returns the function that
// releases it. The release function is idempotent.
func (r *Runtime) Track(name string) func() {
	r.mu.Lock()
	r.nextTask++
	id := r.nextTask
	r.tasks[id] = name
	if len(r.tasks) == 1 {
		r.idle = make(chan struct{})
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.tasks, id)
			if len(r.tasks) == 0 {
				close(r.idle)
			}
			r.mu.Unlock()
		})
	}
}

// ActiveTasks returns the names of tasks currently in flight.
func (r *Runtime) ActiveTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tasks))
	for _, name := range r.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RegisterShutdownHook queues fn to run during shutdown. Hooks run in
// descending priority; within one priority, registration order.
func (r *Runtime) RegisterShutdownHook(name string, priority Priority, timeout time.Duration, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, shutdownHook{
		name:     name,
		priority: priority,
		timeout:  timeout,
		fn:       fn,
		seq:      len(r.hooks),
	})
}

// Shutdown runs the graceful sequence: stop accepting work, drain
// tracked tasks for up to half the budget, then run every hook in
// priority order with its own timeout. Hook failures are logged, never
// fatal. Calling Shutdown twice runs the sequence once.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	r.accepting = false
	idle := r.idle
	active := len(r.tasks)
	hooks := make([]shutdownHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	budget := r.cfg.ShutdownTimeout()
	start := time.Now()
	slog.Info("Shutdown started", "budget", budget, "active_tasks", active)

	drainCtx, cancel := context.WithTimeout(ctx, budget/2)
	select {
	case <-idle:
	case <-drainCtx.Done():
		slog.Warn("Shutdown proceeding with tasks still in flight",
			"stragglers", r.ActiveTasks())
	}
	cancel()

	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].priority != hooks[j].priority {
			return hooks[i].priority > hooks[j].priority
		}
		return hooks[i].seq < hooks[j].seq
	})

	for _, h := range hooks {
		r.runHook(ctx, h)
	}

	elapsed := time.Since(start)
	slog.Info("Shutdown complete", "elapsed", elapsed, "budget", budget)
}

// runHook executes one hook with its timeout in a goroutine so a hook
// that ignores its context cannot stall the sequence.
func (r *Runtime) runHook(ctx context.Context, h shutdownHook) {
	timeout := h.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Shutdown hook panicked", "hook", h.name, "panic", rec)
				done <- nil
			}
		}()
		done <- h.fn(hookCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("Shutdown hook failed",
				"hook", h.name, "priority", h.priority.String(), "error", err)
		} else {
			slog.Debug("Shutdown hook finished",
				"hook", h.name, "priority", h.priority.String())
		}
	case <-hookCtx.Done():
		slog.Error("Shutdown hook timed out",
			"hook", h.name, "priority", h.priority.String(), "timeout", timeout)
	}
}
