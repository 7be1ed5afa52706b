// Package classify derives a task classification from a raw query.
// Classification is pure pattern matching: no I/O, no failure modes,
// and identical input always yields identical output.
package classify

import (
	"strings"

	"github.com/ckindle-42/portal/pkg/models"
)

const (
	greetingTokens     = 20
	greetingConfidence = 0.95

	matchedConfidence = 0.8
	defaultConfidence = 0.5
)

// tokenBase maps complexity to a base output-token estimate.
var tokenBase = map[models.Complexity]float64{
	models.ComplexityTrivial:  20,
	models.ComplexitySimple:   100,
	models.ComplexityModerate: 400,
	models.ComplexityComplex:  800,
	models.ComplexityExpert:   1500,
}

// categoryMultiplier scales the base estimate by output verbosity.
var categoryMultiplier = map[models.Category]float64{
	models.CategoryGreeting: 0.5,
	models.CategoryCode:     1.5,
	models.CategoryCreative: 1.5,
	models.CategoryAnalysis: 1.3,
	models.CategoryMath:     0.8,
}

// Classifier assigns a category, complexity tier, token estimate, and
// confidence to each query.
type Classifier struct{}

// New creates a classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify inspects the query and returns its classification.
//
// Greetings short-circuit everything else: a query of at most five
// words matching a greeting pattern is trivially answerable and skips
// the scoring pass entirely.
func (c *Classifier) Classify(query string) models.TaskClassification {
	lower := strings.ToLower(strings.TrimSpace(query))
	wordCount := len(strings.Fields(lower))

	if wordCount <= 5 && matchesAny(greetingPatterns, lower) {
		return models.TaskClassification{
			Complexity:      models.ComplexityTrivial,
			Category:        models.CategoryGreeting,
			EstimatedTokens: greetingTokens,
			Confidence:      greetingConfidence,
		}
	}

	codeHits := matchCount(codePatterns, lower)
	mathHits := matchCount(mathPatterns, lower)
	analysisHits := matchCount(analysisPatterns, lower)
	creativeHits := matchCount(creativePatterns, lower)
	toolHits := matchCount(toolPatterns, lower)

	category := resolveCategory(lower, codeHits, mathHits, toolHits, creativeHits, analysisHits)
	complexity := resolveComplexity(wordCount, codeHits, mathHits, analysisHits, creativeHits)

	confidence := defaultConfidence
	if codeHits+mathHits+analysisHits+creativeHits+toolHits > 0 || category == models.CategoryQuestion {
		confidence = matchedConfidence
	}

	return models.TaskClassification{
		Complexity:      complexity,
		Category:        category,
		EstimatedTokens: estimateTokens(complexity, category),
		RequiresCode:    codeHits > 0,
		RequiresMath:    mathHits > 0,
		RequiresReasoning: analysisHits > 0 ||
			complexity == models.ComplexityComplex ||
			complexity == models.ComplexityExpert,
		Confidence: confidence,
	}
}

// resolveCategory applies the category thresholds in priority order;
// the first rule to fire wins.
func resolveCategory(lower string, codeHits, mathHits, toolHits, creativeHits, analysisHits int) models.Category {
	switch {
	case codeHits >= 2:
		return models.CategoryCode
	case mathHits >= 2:
		return models.CategoryMath
	case toolHits >= 1:
		return models.CategoryToolUse
	case creativeHits >= 2:
		return models.CategoryCreative
	case analysisHits >= 2:
		return models.CategoryAnalysis
	case isQuestion(lower):
		return models.CategoryQuestion
	}
	return models.CategoryGeneral
}

func isQuestion(lower string) bool {
	return strings.HasSuffix(lower, "?") || questionPattern.MatchString(lower)
}

// resolveComplexity walks the difficulty ladder; rules are ordered
// most-specific first so a long creative brief lands on expert before
// the generic length rule can claim it.
func resolveComplexity(wordCount, codeHits, mathHits, analysisHits, creativeHits int) models.Complexity {
	switch {
	case wordCount <= 3:
		return models.ComplexityTrivial
	case wordCount <= 10 && codeHits == 0 && mathHits == 0:
		return models.ComplexitySimple
	case codeHits >= 3:
		return models.ComplexityComplex
	case analysisHits >= 2 && wordCount > 20:
		return models.ComplexityComplex
	case creativeHits >= 1 && wordCount > 30:
		return models.ComplexityExpert
	case wordCount > 20:
		return models.ComplexityModerate
	case codeHits > 0 || mathHits > 0:
		return models.ComplexityModerate
	}
	return models.ComplexitySimple
}

func estimateTokens(complexity models.Complexity, category models.Category) int {
	base := tokenBase[complexity]
	if mult, ok := categoryMultiplier[category]; ok {
		base *= mult
	}
	return int(base)
}
