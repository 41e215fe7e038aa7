package security

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const redactedPlaceholder = "[REDACTED]"

// sensitiveKeyPattern matches map keys whose values must never reach logs
// or responses, regardless of nesting depth.
var sensitiveKeyPattern = regexp.MustCompile(
	`(?i)(password|secret|key|token|api[_-]?key|connection[_-]?string|private[_-]?key|jwt|bearer|` +
		`authorization|credentials|private|internal|debug|trace|stack|error_detail)`)

// Redact walks a value and replaces anything under a sensitive key with a
// placeholder. The input is not mutated.
func Redact(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if sensitiveKeyPattern.MatchString(key) {
				out[key] = redactedPlaceholder
				continue
			}
			out[key] = Redact(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = Redact(inner)
		}
		return out
	default:
		return value
	}
}

// MaskEmail keeps the first and last two characters of the local part so
// operators can correlate events without seeing the address.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return redactedPlaceholder
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 4 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-4) + local[len(local)-2:] + domain
}

// RoundMoney rounds a USD amount to cents for user-facing output. Internal
// accounting keeps full precision.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// RedactForUser prepares a payload for an end-user response: only the
// allowed fields survive, sensitive keys nested inside them are
// redacted, emails are masked, monetary fields are rounded.
func RedactForUser(payload map[string]any, allowed []string) map[string]any {
	keep := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		keep[name] = struct{}{}
	}
	out := make(map[string]any, len(allowed))
	for key, value := range payload {
		if _, ok := keep[key]; !ok {
			continue
		}
		value = Redact(value)
		switch {
		case strings.Contains(strings.ToLower(key), "email"):
			if s, ok := value.(string); ok {
				out[key] = MaskEmail(s)
				continue
			}
		case isMoneyKey(key):
			if f, ok := value.(float64); ok {
				out[key] = RoundMoney(f)
				continue
			}
		}
		out[key] = value
	}
	return out
}

func isMoneyKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "cost") || strings.Contains(lower, "budget") ||
		strings.Contains(lower, "spend") || strings.HasSuffix(lower, "_usd")
}

// LogSecurityEvent emits a structured security log line with the details
// passed through the redactor first.
func LogSecurityEvent(ctx context.Context, event string, details map[string]any) {
	safe, _ := Redact(details).(map[string]any)
	args := make([]any, 0, len(safe)*2+2)
	args = append(args, "event", event)
	for key, value := range safe {
		args = append(args, key, value)
	}
	logger.FromContext(ctx).Warn("security event", args...)
}
