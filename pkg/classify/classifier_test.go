package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ckindle-42/portal/pkg/models"
)

func TestClassifyGreeting(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "bare hi", query: "hi"},
		{name: "hello with punctuation", query: "Hello there!"},
		{name: "good morning", query: "good morning"},
		{name: "thanks", query: "thanks a lot"},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)

			assert.Equal(t, models.CategoryGreeting, got.Category)
			assert.Equal(t, models.ComplexityTrivial, got.Complexity)
			assert.Equal(t, 20, got.EstimatedTokens)
			assert.Equal(t, 0.95, got.Confidence)
		})
	}
}

func TestClassifyGreetingWordInLongQueryIsNotGreeting(t *testing.T) {
	got := New().Classify("hello everyone I need a detailed comparison of these two databases")

	assert.NotEqual(t, models.CategoryGreeting, got.Category)
}

func TestClassifyCategories(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		category models.Category
	}{
		{
			name:     "code",
			query:    "Write a python function to debug this stack trace",
			category: models.CategoryCode,
		},
		{
			name:     "math",
			query:    "calculate the integral of x squared",
			category: models.CategoryMath,
		},
		{
			name:     "tool use wins on a single hit",
			query:    "search the web for recent news",
			category: models.CategoryToolUse,
		},
		{
			name:     "creative",
			query:    "imagine a distant future and write me a poem about it",
			category: models.CategoryCreative,
		},
		{
			name:     "analysis",
			query:    "analyze the trade-offs between these caching strategies and their implications for latency",
			category: models.CategoryAnalysis,
		},
		{
			name:     "question",
			query:    "What is the capital of France?",
			category: models.CategoryQuestion,
		},
		{
			name:     "trailing question mark alone",
			query:    "the roundest knight at the table?",
			category: models.CategoryQuestion,
		},
		{
			name:     "general fallback",
			query:    "tell me something interesting about deep sea creatures",
			category: models.CategoryGeneral,
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)
			assert.Equal(t, tt.category, got.Category)
		})
	}
}

func TestClassifyComplexityLadder(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		complexity models.Complexity
	}{
		{
			name:       "three words is trivial",
			query:      "explain recursion please",
			complexity: models.ComplexityTrivial,
		},
		{
			name:       "short prose is simple",
			query:      "tell me something interesting about owls",
			complexity: models.ComplexitySimple,
		},
		{
			name:       "three code signals is complex",
			query:      "Write a python function to debug this stack trace",
			complexity: models.ComplexityComplex,
		},
		{
			name:       "short math query is moderate",
			query:      "calculate the integral of x squared",
			complexity: models.ComplexityModerate,
		},
		{
			name: "long creative brief is expert",
			query: "write me a story about an old lighthouse keeper who discovers a mysterious " +
				"glowing map inside a bottle washed ashore and sets off across the northern sea to find its origin",
			complexity: models.ComplexityExpert,
		},
		{
			name: "long plain prose is moderate",
			query: "I would like you to tell me everything there is to know about the history " +
				"of tea cultivation in the mountains of southern China",
			complexity: models.ComplexityModerate,
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)
			assert.Equal(t, tt.complexity, got.Complexity, "query: %s", tt.query)
		})
	}
}

func TestClassifyTokenEstimates(t *testing.T) {
	c := New()

	// Moderate math: 400 * 0.8.
	math := c.Classify("calculate the integral of x squared")
	assert.Equal(t, 320, math.EstimatedTokens)

	// Complex code: 800 * 1.5.
	code := c.Classify("Write a python function to debug this stack trace")
	assert.Equal(t, 1200, code.EstimatedTokens)

	// Simple question: 100 * 1.0.
	question := c.Classify("What is the capital of France?")
	assert.Equal(t, 100, question.EstimatedTokens)
}

func TestClassifyConfidence(t *testing.T) {
	c := New()

	matched := c.Classify("calculate the integral of x squared")
	assert.Equal(t, 0.8, matched.Confidence)

	unmatched := c.Classify("tell me something interesting about deep sea creatures")
	assert.Equal(t, 0.5, unmatched.Confidence)
}

func TestClassifyRequirementFlags(t *testing.T) {
	c := New()

	code := c.Classify("Write a python function to debug this stack trace")
	assert.True(t, code.RequiresCode)
	assert.False(t, code.RequiresMath)
	assert.True(t, code.RequiresReasoning) // complex tier implies reasoning

	math := c.Classify("calculate the integral of x squared")
	assert.True(t, math.RequiresMath)
	assert.False(t, math.RequiresCode)
}

func TestClassifyRepeatedKeywordCountsOnce(t *testing.T) {
	// One pattern hit no matter how often the keyword repeats: a single
	// signal must not cross the two-hit category threshold.
	got := New().Classify("python python python python python python")

	assert.NotEqual(t, models.CategoryCode, got.Category)
}

func TestClassifyDeterministic(t *testing.T) {
	c := New()
	query := "analyze the trade-offs between these caching strategies and their implications for latency"

	first := c.Classify(query)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(query))
	}
}

func TestClassifyEmptyQuery(t *testing.T) {
	got := New().Classify("")

	assert.Equal(t, models.CategoryGeneral, got.Category)
	assert.Equal(t, models.ComplexityTrivial, got.Complexity)
	assert.Equal(t, 0.5, got.Confidence)
}
