// Package registry keeps the in-memory model catalog: every model
// Portal can route to, with its capabilities, quality scores, and
// current availability.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/models"
)

// ErrModelNotFound indicates the requested model is not registered
var ErrModelNotFound = errors.New("model not found")

// Defaults assigned to models found by discovery that the static
// catalog does not describe. Conservative: assume a mid-speed
// general-purpose model until someone scores it properly.
var discoveredDefaults = models.ModelMetadata{
	Capabilities:     []models.Capability{models.CapabilityGeneral, models.CapabilityFunctionCalling},
	SpeedClass:       models.SpeedMedium,
	QualityGeneral:   0.65,
	QualityCode:      0.6,
	QualityReasoning: 0.6,
	Cost:             0.3,
}

// ModelLister is the slice of a backend adapter that discovery needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Registry stores model metadata in memory with thread-safe access.
// All accessors return defensive copies; registry-owned state is never
// shared with callers.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*models.ModelMetadata
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		models: make(map[string]*models.ModelMetadata),
	}
}

// NewFromCatalog creates a registry seeded from the static config
// catalog. Catalog models start out available; health checks and
// discovery adjust availability afterwards.
func NewFromCatalog(entries []config.ModelConfig) *Registry {
	r := New()
	for _, e := range entries {
		caps := make([]models.Capability, 0, len(e.Capabilities))
		for _, c := range e.Capabilities {
			caps = append(caps, models.Capability(c))
		}
		handle := e.Handle
		if handle == "" {
			handle = e.ID
		}
		r.Register(&models.ModelMetadata{
			ID:               e.ID,
			Backend:          e.Backend,
			DisplayName:      e.DisplayName,
			Capabilities:     caps,
			SpeedClass:       models.SpeedClass(e.SpeedClass),
			QualityGeneral:   e.Quality.General,
			QualityCode:      e.Quality.Code,
			QualityReasoning: e.Quality.Reasoning,
			Cost:             e.Cost,
			Available:        true,
			Handle:           handle,
			TokensPerSec:     e.TokensPerSec,
		})
	}
	return r
}

// Register upserts a model by ID (thread-safe). The registry stores
// its own copy.
func (r *Registry) Register(m *models.ModelMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = m.Clone()
}

// Get retrieves a model by ID (thread-safe, returns copy)
func (r *Registry) Get(id string) (*models.ModelMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.models[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return m.Clone(), nil
}

// Has checks if a model exists in the registry (thread-safe)
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.models[id]
	return exists
}

// Len returns the number of registered models (thread-safe)
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// All returns every registered model sorted by ID (thread-safe,
// returns copies)
func (r *Registry) All() []*models.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(*models.ModelMetadata) bool { return true })
}

// ByBackend returns every model of one backend sorted by ID
// (thread-safe, returns copies)
func (r *Registry) ByBackend(backend string) []*models.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(m *models.ModelMetadata) bool { return m.Backend == backend })
}

// collect gathers clones of models passing the filter, sorted by ID.
// Callers must hold at least a read lock.
func (r *Registry) collect(keep func(*models.ModelMetadata) bool) []*models.ModelMetadata {
	out := make([]*models.ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fastest returns the available model with the lowest speed class,
// breaking ties by higher estimated tokens per second. An empty
// capability means no capability filter. Returns nil when no model
// qualifies.
func (r *Registry) Fastest(capability models.Capability) *models.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.ModelMetadata
	for _, m := range r.models {
		if !m.Available {
			continue
		}
		if capability != "" && !m.HasCapability(capability) {
			continue
		}
		if best == nil || faster(m, best) {
			best = m
		}
	}
	return best.Clone()
}

// faster reports whether a should be preferred over b on speed.
func faster(a, b *models.ModelMetadata) bool {
	if a.SpeedClass.Rank() != b.SpeedClass.Rank() {
		return a.SpeedClass.Rank() < b.SpeedClass.Rank()
	}
	if a.TokensPerSec != b.TokensPerSec {
		return a.TokensPerSec > b.TokensPerSec
	}
	// Deterministic final tie-break.
	return a.ID < b.ID
}

// BestQuality returns the available model with the highest quality
// score for the capability, among models that advertise the capability
// and cost at most maxCost. Returns nil when no model qualifies.
func (r *Registry) BestQuality(capability models.Capability, maxCost float64) *models.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.ModelMetadata
	for _, m := range r.models {
		if !m.Available || m.Cost > maxCost || !m.HasCapability(capability) {
			continue
		}
		if best == nil || betterQuality(m, best, capability) {
			best = m
		}
	}
	return best.Clone()
}

func betterQuality(a, b *models.ModelMetadata, capability models.Capability) bool {
	qa, qb := a.QualityFor(capability), b.QualityFor(capability)
	if qa != qb {
		return qa > qb
	}
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	return a.ID < b.ID
}

// SetAvailable flips a model's availability (thread-safe)
func (r *Registry) SetAvailable(id string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.models[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	m.Available = available
	return nil
}

// Discover queries a backend's model listing and reconciles it with
// the registry: unknown models are registered with conservative
// defaults, listed models are marked available, and (optionally)
// models of this backend missing from the listing are marked
// unavailable. Returns the IDs of newly registered models.
//
// A listing failure leaves the registry untouched; callers treat it as
// non-fatal since a backend may simply be down.
func (r *Registry) Discover(ctx context.Context, backend string, lister ModelLister, markOthersUnavailable bool) ([]string, error) {
	names, err := lister.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models for backend %s: %w", backend, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Index this backend's models by handle; listings speak in
	// backend-native names.
	byHandle := make(map[string]*models.ModelMetadata)
	for _, m := range r.models {
		if m.Backend == backend {
			byHandle[m.Handle] = m
		}
	}

	listed := make(map[string]bool, len(names))
	var registered []string
	for _, name := range names {
		listed[name] = true
		if existing, ok := byHandle[name]; ok {
			existing.Available = true
			continue
		}
		if _, ok := r.models[name]; ok {
			// ID collision across backends; leave the existing entry alone.
			continue
		}
		m := discoveredDefaults.Clone()
		m.ID = name
		m.Backend = backend
		m.DisplayName = name
		m.Handle = name
		m.Available = true
		r.models[name] = m
		registered = append(registered, name)
	}

	if markOthersUnavailable {
		for handle, m := range byHandle {
			if !listed[handle] {
				m.Available = false
			}
		}
	}

	return registered, nil
}
