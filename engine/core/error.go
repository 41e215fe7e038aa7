package core

import (
	"errors"
	"fmt"
)

// Error is the typed error carried between engine layers. Only the HTTP
// router translates codes into status codes; everything below returns
// *Error values upward unchanged.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed error with a stable code and optional details.
func NewError(err error, code string, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details, Err: err}
}

// CodeOf extracts the stable code from err, or empty when err is not typed.
func CodeOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return ""
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// Authentication error codes, mapped to 401 at the edge.
const (
	CodeNoToken         = "NO_TOKEN"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeKeyNotFound     = "KEY_NOT_FOUND"
	CodeIssuerInvalid   = "ISSUER_INVALID"
	CodeAudienceInvalid = "AUDIENCE_INVALID"
	CodeClaimsMissing   = "CLAIMS_MISSING"
)

// Authorization and rate errors, mapped to 403.
const (
	CodeInsufficientRole  = "INSUFFICIENT_ROLE"
	CodeInsufficientScope = "INSUFFICIENT_SCOPE"
	CodeIPBlocked         = "IP_BLOCKED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// Input sanitization errors, mapped to 400.
const (
	CodeInputTooLong  = "INPUT_TOO_LONG"
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeInvalidEmail  = "INVALID_EMAIL"
	CodeInvalidUUID   = "INVALID_UUID"
)

// Budget errors, mapped to 403 with a personality-flavored refusal.
const (
	CodePerRequestExceeded = "BUDGET_PER_REQUEST_EXCEEDED"
	CodeDailyExceeded      = "BUDGET_DAILY_EXCEEDED"
	CodeMonthlyExceeded    = "BUDGET_MONTHLY_EXCEEDED"
	CodeUserBlocked        = "USER_BLOCKED"
)

// Provider errors, recovered internally by the dispatcher.
const (
	CodeProviderTimeout   = "PROVIDER_TIMEOUT"
	CodeProviderEmpty     = "PROVIDER_EMPTY"
	CodeProviderTransport = "PROVIDER_TRANSPORT"
)

// Storage and config errors.
const (
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeStorageConflict    = "STORAGE_CONFLICT"
	CodeNotFound           = "NOT_FOUND"
	CodeConfigMissing      = "CONFIG_MISSING"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInternal           = "INTERNAL_ERROR"
)
