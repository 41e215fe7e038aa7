package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/security"
)

const (
	msgAccessDenied = "Access denied"
	msgInternal     = "Internal error"
)

var statusByCode = map[string]int{
	core.CodeNoToken:         http.StatusUnauthorized,
	core.CodeTokenExpired:    http.StatusUnauthorized,
	core.CodeTokenInvalid:    http.StatusUnauthorized,
	core.CodeKeyNotFound:     http.StatusUnauthorized,
	core.CodeIssuerInvalid:   http.StatusUnauthorized,
	core.CodeAudienceInvalid: http.StatusUnauthorized,
	core.CodeClaimsMissing:   http.StatusUnauthorized,

	core.CodeInsufficientRole:  http.StatusForbidden,
	core.CodeInsufficientScope: http.StatusForbidden,
	core.CodeIPBlocked:         http.StatusForbidden,
	core.CodeRateLimitExceeded: http.StatusForbidden,

	core.CodeInputTooLong:  http.StatusBadRequest,
	core.CodeInvalidFormat: http.StatusBadRequest,
	core.CodeInvalidEmail:  http.StatusBadRequest,
	core.CodeInvalidUUID:   http.StatusBadRequest,

	core.CodePerRequestExceeded: http.StatusForbidden,
	core.CodeDailyExceeded:      http.StatusForbidden,
	core.CodeMonthlyExceeded:    http.StatusForbidden,
	core.CodeUserBlocked:        http.StatusForbidden,

	core.CodeNotFound:        http.StatusNotFound,
	core.CodeStorageConflict: http.StatusConflict,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError is the single place typed errors become status codes.
// Outside development the body collapses to a generic message so
// internals never leak through error details.
func respondError(c *gin.Context, development bool, err error) {
	code := core.CodeOf(err)
	status := statusFor(code)
	body := gin.H{"error": genericMessage(status), "code": code}
	if development {
		body["error"] = err.Error()
		var typed *core.Error
		if errors.As(err, &typed) && len(typed.Details) > 0 {
			body["details"] = typed.Details
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// userView runs an outgoing body through the user redactor: only the
// allowed top-level fields leave the process, with sensitive keys,
// emails, and money cleaned inside them.
func userView(v any, allowed ...string) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return map[string]any{}
	}
	return security.RedactForUser(body, allowed)
}

func genericMessage(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return msgAccessDenied
	case status >= http.StatusInternalServerError:
		return msgInternal
	case status == http.StatusNotFound:
		return "Not found"
	case status == http.StatusConflict:
		return "Conflict"
	default:
		return "Invalid request"
	}
}
