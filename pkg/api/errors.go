package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ckindle-42/portal/pkg/errs"
)

// httpStatus maps a taxonomy code to its HTTP status.
func httpStatus(code errs.Code) int {
	switch code {
	case errs.CodeContextNotFound:
		return http.StatusNotFound
	case errs.CodeValidation, errs.CodeInvalidParams:
		return http.StatusBadRequest
	case errs.CodeUnauthorized:
		return http.StatusUnauthorized
	case errs.CodePolicyViolation, errs.CodeForbidden:
		return http.StatusForbidden
	case errs.CodeRateLimited:
		return http.StatusTooManyRequests
	case errs.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	switch {
	case code >= 3000 && code < 4000:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// respondError renders any error as a typed error response. Untyped
// errors become 500 internal-error with the detail withheld from the
// client.
func respondError(c *gin.Context, err error) {
	typed := errs.AsError(err)
	if typed == nil {
		typed = errs.Internal("internal error")
	}

	status := httpStatus(typed.Code)
	if status == http.StatusTooManyRequests {
		if retryAfter, ok := typed.Details["retry_after"].(int); ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{
		Code:    int(typed.Code),
		Message: errs.UserMessage(typed.Code),
		Details: typed.Details,
	}})
}
