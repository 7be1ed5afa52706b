// Package errs defines Portal's error taxonomy. Every error that
// crosses a component boundary carries a numeric code, a message, and
// a details map so front-ends can render it without string parsing.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Code is a machine-readable error identifier. Ranges:
// 1xxx client, 2xxx security, 3xxx resource, 4xxx execution,
// 5xxx system.
type Code int

const (
	CodeValidation      Code = 1001
	CodeInvalidParams   Code = 1002
	CodeContextNotFound Code = 1003

	CodeUnauthorized    Code = 2001
	CodePolicyViolation Code = 2002
	CodeRateLimited     Code = 2003
	CodeForbidden       Code = 2004

	CodeModelNotAvailable  Code = 3001
	CodeModelQuotaExceeded Code = 3002
	CodeModelBusy          Code = 3003
	CodeBackendUnavailable Code = 3004

	CodeToolExecution Code = 4001
	CodeProcessing    Code = 4002
	CodeTimeout       Code = 4003

	CodeInternal      Code = 5001
	CodeDatabase      Code = 5002
	CodeConfiguration Code = 5003
)

// Name returns the stable slug for a code
func (c Code) Name() string {
	switch c {
	case CodeValidation:
		return "validation-error"
	case CodeInvalidParams:
		return "invalid-parameters"
	case CodeContextNotFound:
		return "context-not-found"
	case CodeUnauthorized:
		return "unauthorized"
	case CodePolicyViolation:
		return "policy-violation"
	case CodeRateLimited:
		return "rate-limit-exceeded"
	case CodeForbidden:
		return "forbidden"
	case CodeModelNotAvailable:
		return "model-not-available"
	case CodeModelQuotaExceeded:
		return "model-quota-exceeded"
	case CodeModelBusy:
		return "model-busy"
	case CodeBackendUnavailable:
		return "backend-unavailable"
	case CodeToolExecution:
		return "tool-execution-failed"
	case CodeProcessing:
		return "processing-failed"
	case CodeTimeout:
		return "timeout"
	case CodeInternal:
		return "internal-error"
	case CodeDatabase:
		return "database-error"
	case CodeConfiguration:
		return "configuration-error"
	}
	return "unknown"
}

// Error is Portal's typed error. The zero Details map is nil until a
// detail is attached.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code.Name(), e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code.Name(), e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value to the details map and returns the
// error for chaining
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// New constructs a typed error with the given code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a typed error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a 1001 validation-error
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// InvalidParams builds a 1002 invalid-parameters error
func InvalidParams(message string) *Error {
	return New(CodeInvalidParams, message)
}

// ContextNotFound builds a 1003 context-not-found error for a chat id
func ContextNotFound(chatID string) *Error {
	return Newf(CodeContextNotFound, "no context for chat %q", chatID).
		WithDetail("chat_id", chatID)
}

// Unauthorized builds a 2001 unauthorized error
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

// PolicyViolation builds a 2002 policy-violation error
func PolicyViolation(message string) *Error {
	return New(CodePolicyViolation, message)
}

// RateLimited builds a 2003 rate-limit-exceeded error carrying the
// retry-after hint in whole seconds (rounded up, minimum 1)
func RateLimited(retryAfter time.Duration) *Error {
	secs := int(retryAfter.Seconds())
	if retryAfter > 0 && time.Duration(secs)*time.Second < retryAfter {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return Newf(CodeRateLimited, "rate limit exceeded, wait %d seconds", secs).
		WithDetail("retry_after", secs)
}

// Forbidden builds a 2004 forbidden error
func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// ModelNotAvailable builds a 3001 model-not-available error
func ModelNotAvailable(message string) *Error {
	return New(CodeModelNotAvailable, message)
}

// BackendUnavailable builds a 3004 backend-unavailable error
func BackendUnavailable(backend string) *Error {
	return Newf(CodeBackendUnavailable, "backend %q unavailable", backend).
		WithDetail("backend", backend)
}

// ToolExecution builds a 4001 tool-execution-failed error
func ToolExecution(message string) *Error {
	return New(CodeToolExecution, message)
}

// Processing builds a 4002 processing-failed error
func Processing(message string) *Error {
	return New(CodeProcessing, message)
}

// Timeout builds a 4003 timeout error
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// Internal builds a 5001 internal-error
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Database builds a 5002 database-error
func Database(message string) *Error {
	return New(CodeDatabase, message)
}

// Configuration builds a 5003 configuration-error
func Configuration(message string) *Error {
	return New(CodeConfiguration, message)
}

// CodeOf extracts the taxonomy code from an error chain. Returns 0
// when the chain contains no typed error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// HasCode reports whether the error chain carries the given code
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// AsError extracts the typed error from a chain, or nil
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// UserMessage returns the localizable user-facing text for a code.
// Front-ends render from the code alone, never from Error.Message.
func UserMessage(code Code) string {
	switch code {
	case CodeValidation:
		return "Invalid request."
	case CodeInvalidParams:
		return "Invalid parameters."
	case CodeContextNotFound:
		return "Conversation not found."
	case CodeUnauthorized:
		return "Authentication required."
	case CodePolicyViolation:
		return "Request blocked by security policy."
	case CodeRateLimited:
		return "Rate limit exceeded. Please try again later."
	case CodeForbidden:
		return "Access denied."
	case CodeModelNotAvailable:
		return "Model not available."
	case CodeModelQuotaExceeded:
		return "Model quota exceeded."
	case CodeModelBusy:
		return "Model busy. Please retry."
	case CodeBackendUnavailable:
		return "Backend unavailable."
	case CodeToolExecution:
		return "Tool execution failed."
	case CodeProcessing:
		return "Processing failed."
	case CodeTimeout:
		return "Request timed out."
	case CodeInternal:
		return "Internal error."
	case CodeDatabase:
		return "Storage error."
	case CodeConfiguration:
		return "Configuration error."
	}
	return "Unknown error."
}
