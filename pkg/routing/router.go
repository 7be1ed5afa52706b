package routing

import (
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/ckindle-42/portal/pkg/classify"
	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/models"
	"github.com/ckindle-42/portal/pkg/registry"
)

// ErrNoModels is returned when the registry holds no models at all.
var ErrNoModels = errors.New("no models available")

// maxFallbacks caps the fallback chain length.
const maxFallbacks = 3

// Router maps a classified query to a primary model and an ordered
// fallback chain, honoring the configured strategy and cost ceiling.
// Safe for concurrent use.
type Router struct {
	cfg        *config.RoutingConfig
	registry   *registry.Registry
	classifier *classify.Classifier
}

// New builds a router. Preferred model ids missing from the registry
// are logged here so a config typo surfaces at startup instead of
// silently skewing routing.
func New(cfg *config.RoutingConfig, reg *registry.Registry, cls *classify.Classifier) *Router {
	for tier, ids := range cfg.ModelPreferences {
		for _, id := range ids {
			if !reg.Has(id) {
				slog.Warn("Preferred model not in registry", "tier", tier, "model_id", id)
			}
		}
	}
	return &Router{cfg: cfg, registry: reg, classifier: cls}
}

// Route classifies the query and selects a primary model plus up to
// three fallbacks. maxCost bounds the selection in [0,1]; values <= 0
// fall back to the configured ceiling.
func (r *Router) Route(query string, maxCost float64) (*models.RoutingDecision, error) {
	if maxCost <= 0 {
		maxCost = r.cfg.MaxCost
	}
	if maxCost <= 0 {
		maxCost = 1.0
	}

	tc := r.classifier.Classify(query)

	primary := r.selectModel(tc, r.cfg.Strategy, maxCost)
	if primary == nil {
		primary = r.anyAvailable()
	}
	if primary == nil {
		// Nothing is marked available. A registered model is still a
		// better answer than a hard failure; the engine's availability
		// probe has the final say.
		primary = r.firstRegistered()
	}
	if primary == nil {
		return nil, ErrNoModels
	}

	decision := &models.RoutingDecision{
		ModelID:        primary.ID,
		Model:          primary,
		Classification: tc,
		Strategy:       string(r.cfg.Strategy),
		Fallbacks:      r.fallbacks(primary.ID),
		Reasoning:      reasoning(tc, primary),
	}

	slog.Debug("Routing decision",
		"model_id", decision.ModelID,
		"strategy", decision.Strategy,
		"complexity", tc.Complexity,
		"category", tc.Category,
		"fallbacks", len(decision.Fallbacks))
	return decision, nil
}

func (r *Router) selectModel(tc models.TaskClassification, strategy config.Strategy, maxCost float64) *models.ModelMetadata {
	switch strategy {
	case config.StrategySpeed:
		return r.registry.Fastest(speedCapability(tc))
	case config.StrategyQuality:
		return r.registry.BestQuality(qualityCapability(tc.Category), maxCost)
	case config.StrategyCostOptimized:
		return r.cheapest(tc)
	case config.StrategyBalanced:
		switch tc.Complexity {
		case models.ComplexityTrivial, models.ComplexitySimple:
			return r.selectModel(tc, config.StrategySpeed, maxCost)
		case models.ComplexityComplex, models.ComplexityExpert:
			return r.selectModel(tc, config.StrategyQuality, maxCost)
		default:
			return r.selectModel(tc, config.StrategyAuto, 0.7*maxCost)
		}
	default:
		return r.preferred(tc, maxCost)
	}
}

// preferred implements the AUTO strategy: walk the preference tier for
// the classified complexity (or the dedicated code tier) and take the
// first registered, available model within budget.
func (r *Router) preferred(tc models.TaskClassification, maxCost float64) *models.ModelMetadata {
	tier := string(tc.Complexity)
	if tc.RequiresCode {
		tier = "code"
	}
	for _, id := range r.cfg.ModelPreferences[tier] {
		m, err := r.registry.Get(id)
		if err != nil || !m.Available || m.Cost > maxCost {
			continue
		}
		return m
	}
	if tc.RequiresCode {
		if m := r.registry.Fastest(models.CapabilityCode); m != nil {
			return m
		}
	}
	return nil
}

// cheapest implements COST_OPTIMIZED: ascending cost over available
// models, preferring the cheapest code-capable one for code tasks.
func (r *Router) cheapest(tc models.TaskClassification) *models.ModelMetadata {
	available := r.available()
	if len(available) == 0 {
		return nil
	}
	sort.Slice(available, func(i, j int) bool {
		if available[i].Cost != available[j].Cost {
			return available[i].Cost < available[j].Cost
		}
		return available[i].ID < available[j].ID
	})
	if tc.RequiresCode {
		for _, m := range available {
			if m.HasCapability(models.CapabilityCode) {
				return m
			}
		}
	}
	return available[0]
}

// fallbacks returns up to three available model ids ordered by
// descending general quality, excluding the primary.
func (r *Router) fallbacks(primaryID string) []string {
	candidates := r.available()
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].QualityGeneral != candidates[j].QualityGeneral {
			return candidates[i].QualityGeneral > candidates[j].QualityGeneral
		}
		return candidates[i].ID < candidates[j].ID
	})

	ids := make([]string, 0, maxFallbacks)
	for _, m := range candidates {
		if m.ID == primaryID {
			continue
		}
		ids = append(ids, m.ID)
		if len(ids) == maxFallbacks {
			break
		}
	}
	return ids
}

func (r *Router) available() []*models.ModelMetadata {
	var out []*models.ModelMetadata
	for _, m := range r.registry.All() {
		if m.Available {
			out = append(out, m)
		}
	}
	return out
}

func (r *Router) anyAvailable() *models.ModelMetadata {
	for _, m := range r.registry.All() {
		if m.Available {
			return m
		}
	}
	return nil
}

func (r *Router) firstRegistered() *models.ModelMetadata {
	all := r.registry.All()
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// speedCapability infers the capability SPEED optimizes for from the
// classification flags, code over math over general.
func speedCapability(tc models.TaskClassification) models.Capability {
	switch {
	case tc.RequiresCode:
		return models.CapabilityCode
	case tc.RequiresMath:
		return models.CapabilityMath
	}
	return models.CapabilityGeneral
}

// qualityCapability maps the classified category to the capability
// QUALITY scores against.
func qualityCapability(cat models.Category) models.Capability {
	switch cat {
	case models.CategoryCode:
		return models.CapabilityCode
	case models.CategoryMath:
		return models.CapabilityMath
	case models.CategoryAnalysis:
		return models.CapabilityReasoning
	}
	return models.CapabilityGeneral
}

// reasoning renders the operator-facing summary of why a model was
// picked. Informational only, never parsed.
func reasoning(tc models.TaskClassification, m *models.ModelMetadata) string {
	return strings.Join([]string{
		"complexity=" + string(tc.Complexity),
		"category=" + string(tc.Category),
		"model=" + m.DisplayName,
		"speed=" + string(m.SpeedClass),
	}, " | ")
}
