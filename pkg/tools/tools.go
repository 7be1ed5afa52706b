// Package tools holds the tool contract and registry the agent core
// consumes, plus the confirmation gate guarding tools that need a
// human sign-off. Tool implementations themselves live outside Portal.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Tool is a named callable the agent can dispatch to.
type Tool interface {
	Name() string

	// Category groups tools for operator display (git, documents, ...).
	Category() string

	// RequiresConfirmation marks tools that must not run without an
	// explicit approval.
	RequiresConfirmation() bool

	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Registry is a thread-safe name → tool catalog.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register upserts a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
