package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "plain error",
			err:      Validation("message is empty"),
			contains: []string{"validation-error", "1001", "message is empty"},
		},
		{
			name:     "wrapped cause",
			err:      Database("insert failed").WithCause(errors.New("disk full")),
			contains: []string{"database-error", "5002", "insert failed", "disk full"},
		},
		{
			name:     "policy violation",
			err:      PolicyViolation("dangerous input"),
			contains: []string{"policy-violation", "2002", "dangerous input"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, substr := range tt.contains {
				assert.Contains(t, tt.err.Error(), substr)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := BackendUnavailable("ollama").WithCause(cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeRateLimited, CodeOf(RateLimited(5*time.Second)))
	assert.Equal(t, Code(0), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(0), CodeOf(nil))

	// Typed errors survive fmt.Errorf wrapping.
	wrapped := fmt.Errorf("handler: %w", Timeout("timeout after 30s"))
	assert.Equal(t, CodeTimeout, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeTimeout))
	assert.False(t, HasCode(wrapped, CodeInternal))
}

func TestRateLimitedRetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		wantSecs   int
	}{
		{"whole seconds", 30 * time.Second, 30},
		{"rounds up", 1500 * time.Millisecond, 2},
		{"floors at one", 10 * time.Millisecond, 1},
		{"zero floors at one", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RateLimited(tt.retryAfter)
			require.NotNil(t, err.Details)
			assert.Equal(t, tt.wantSecs, err.Details["retry_after"])
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := ModelNotAvailable("no models available").
		WithDetail("strategy", "AUTO").
		WithDetail("max_cost", 0.5)

	assert.Equal(t, "AUTO", err.Details["strategy"])
	assert.Equal(t, 0.5, err.Details["max_cost"])
}

func TestCodeNames(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeInvalidParams, CodeContextNotFound,
		CodeUnauthorized, CodePolicyViolation, CodeRateLimited, CodeForbidden,
		CodeModelNotAvailable, CodeModelQuotaExceeded, CodeModelBusy, CodeBackendUnavailable,
		CodeToolExecution, CodeProcessing, CodeTimeout,
		CodeInternal, CodeDatabase, CodeConfiguration,
	}
	for _, c := range codes {
		assert.NotEqual(t, "unknown", c.Name(), "code %d", c)
		assert.NotEqual(t, "Unknown error.", UserMessage(c), "code %d", c)
	}
	assert.Equal(t, "unknown", Code(9999).Name())
}

func TestUserMessageDerivedFromCodeAlone(t *testing.T) {
	// Two rate-limit errors with different internal messages render the
	// same user text.
	a := RateLimited(2 * time.Second)
	b := RateLimited(59 * time.Second)
	assert.Equal(t, UserMessage(a.Code), UserMessage(b.Code))
	assert.Equal(t, "Rate limit exceeded. Please try again later.", UserMessage(a.Code))
}
