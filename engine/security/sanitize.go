package security

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

const (
	// MaxQueryLength bounds the free-text question body; MaxStringLength
	// is the ceiling for any other string field.
	MaxQueryLength  = 1000
	MaxStringLength = 10000
	MaxEmailLength  = 254
)

var (
	emailPattern        = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	uuidPattern         = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	alphanumericPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
)

// FieldRule describes how one request parameter is sanitized.
type FieldRule struct {
	MaxLength int
	Kind      FieldKind
	Required  bool
}

type FieldKind string

const (
	FieldText         FieldKind = "text"
	FieldEmail        FieldKind = "email"
	FieldUUID         FieldKind = "uuid"
	FieldAlphanumeric FieldKind = "alphanumeric"
)

// SanitizeText strips control characters, trims, enforces the length
// limit, and HTML-escapes the result. Oversized input is rejected, not
// truncated, so the caller sees the violation.
func SanitizeText(raw string, maxLength int) (string, error) {
	cleaned := stripControl(raw)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxLength {
		return "", core.NewError(nil, core.CodeInputTooLong,
			fmt.Sprintf("input exceeds %d characters", maxLength),
			map[string]any{"length": len(cleaned), "max": maxLength})
	}
	return html.EscapeString(cleaned), nil
}

// SanitizeEmail validates shape and normalizes to lower case.
func SanitizeEmail(raw string) (string, error) {
	cleaned := strings.TrimSpace(stripControl(raw))
	if len(cleaned) > MaxEmailLength {
		return "", core.NewError(nil, core.CodeInputTooLong, "email address too long", nil)
	}
	if !emailPattern.MatchString(cleaned) {
		return "", core.NewError(nil, core.CodeInvalidEmail, "email address is malformed", nil)
	}
	return core.NormalizeEmail(cleaned), nil
}

// SanitizeUUID validates canonical UUID shape and lowers the result.
func SanitizeUUID(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if !uuidPattern.MatchString(cleaned) {
		return "", core.NewError(nil, core.CodeInvalidUUID, "identifier is not a valid UUID", nil)
	}
	return strings.ToLower(cleaned), nil
}

// SanitizeParams applies a rule map to a parameter map. Unknown keys are
// dropped rather than passed through.
func SanitizeParams(params map[string]string, rules map[string]FieldRule) (map[string]string, error) {
	out := make(map[string]string, len(rules))
	for name, rule := range rules {
		raw, ok := params[name]
		if !ok || strings.TrimSpace(raw) == "" {
			if rule.Required {
				return nil, core.NewError(nil, core.CodeInvalidFormat,
					fmt.Sprintf("missing required field %q", name), nil)
			}
			continue
		}
		var cleaned string
		var err error
		switch rule.Kind {
		case FieldEmail:
			cleaned, err = SanitizeEmail(raw)
		case FieldUUID:
			cleaned, err = SanitizeUUID(raw)
		case FieldAlphanumeric:
			cleaned = strings.TrimSpace(raw)
			if !alphanumericPattern.MatchString(cleaned) {
				err = core.NewError(nil, core.CodeInvalidFormat,
					fmt.Sprintf("field %q accepts only alphanumeric characters", name), nil)
			}
		default:
			maxLen := rule.MaxLength
			if maxLen == 0 {
				maxLen = MaxStringLength
			}
			cleaned, err = SanitizeText(raw, maxLen)
		}
		if err != nil {
			return nil, err
		}
		out[name] = cleaned
	}
	return out, nil
}

const (
	maxListItems      = 10
	maxListItemLength = 100
)

// SanitizeValues cleans a structured body: numbers and booleans pass
// through, strings are sanitized, lists are truncated to 10 items of at
// most 100 characters each, and anything else is string-coerced first.
func SanitizeValues(body map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(body))
	for key, value := range body {
		cleaned, err := sanitizeValue(value)
		if err != nil {
			return nil, err
		}
		out[key] = cleaned
	}
	return out, nil
}

func sanitizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, int, int64, float64:
		return v, nil
	case string:
		return SanitizeText(v, MaxStringLength)
	case []any:
		if len(v) > maxListItems {
			v = v[:maxListItems]
		}
		out := make([]any, 0, len(v))
		for _, item := range v {
			s := fmt.Sprintf("%v", item)
			if len(s) > maxListItemLength {
				s = s[:maxListItemLength]
			}
			cleaned, err := SanitizeText(s, maxListItemLength)
			if err != nil {
				return nil, err
			}
			out = append(out, cleaned)
		}
		return out, nil
	case map[string]any:
		return SanitizeValues(v)
	default:
		return SanitizeText(fmt.Sprintf("%v", v), MaxStringLength)
	}
}

// stripControl removes control characters but keeps newlines and tabs,
// which are legitimate in question text.
func stripControl(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
}
