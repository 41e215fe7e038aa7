package security

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
)

func testRateConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		GeneralPerMinute: 5,
		AdminPerMinute:   3,
		AuthPerMinute:    2,
		BlockDuration:    15 * time.Minute,
	}
}

func TestRateLimiter(t *testing.T) {
	t.Run("Should allow requests under the ceiling", func(t *testing.T) {
		rl := NewRateLimiter(testRateConfig())
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Allow(context.Background(), CategoryGeneral, "1.2.3.4"))
		}
	})
	t.Run("Should block the client once the window is exhausted", func(t *testing.T) {
		rl := NewRateLimiter(testRateConfig())
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Allow(context.Background(), CategoryGeneral, "5.6.7.8"))
		}
		err := rl.Allow(context.Background(), CategoryGeneral, "5.6.7.8")
		require.Error(t, err)
		assert.Equal(t, core.CodeRateLimitExceeded, core.CodeOf(err))
		assert.True(t, rl.Blocked("5.6.7.8"))

		err = rl.Allow(context.Background(), CategoryGeneral, "5.6.7.8")
		require.Error(t, err)
		assert.Equal(t, core.CodeIPBlocked, core.CodeOf(err))
	})
	t.Run("Should expire a block after the configured duration", func(t *testing.T) {
		rl := NewRateLimiter(testRateConfig())
		current := time.Now()
		rl.now = func() time.Time { return current }
		for i := 0; i < 3; i++ {
			require.NoError(t, rl.Allow(context.Background(), CategoryAuth, "9.9.9.9"))
		}
		require.Error(t, rl.Allow(context.Background(), CategoryAuth, "9.9.9.9"))
		require.True(t, rl.Blocked("9.9.9.9"))
		current = current.Add(16 * time.Minute)
		assert.False(t, rl.Blocked("9.9.9.9"))
	})
	t.Run("Should keep category windows independent per key", func(t *testing.T) {
		rl := NewRateLimiter(testRateConfig())
		for i := 0; i < 2; i++ {
			require.NoError(t, rl.Allow(context.Background(), CategoryAuth, "a"))
		}
		require.NoError(t, rl.Allow(context.Background(), CategoryAdmin, "a"))
	})
	t.Run("Should clear a block on demand", func(t *testing.T) {
		rl := NewRateLimiter(testRateConfig())
		for i := 0; i < 3; i++ {
			require.NoError(t, rl.Allow(context.Background(), CategoryAuth, "b"))
		}
		require.Error(t, rl.Allow(context.Background(), CategoryAuth, "b"))
		rl.Unblock("b")
		assert.False(t, rl.Blocked("b"))
	})
}

func TestSanitize(t *testing.T) {
	t.Run("Should escape HTML and strip control characters", func(t *testing.T) {
		out, err := SanitizeText("hello <script>\x00world\x07", MaxStringLength)
		require.NoError(t, err)
		assert.Equal(t, "hello &lt;script&gt;world", out)
	})
	t.Run("Should preserve newlines and tabs in question text", func(t *testing.T) {
		out, err := SanitizeText("line one\n\tline two", MaxQueryLength)
		require.NoError(t, err)
		assert.Equal(t, "line one\n\tline two", out)
	})
	t.Run("Should reject oversized input instead of truncating", func(t *testing.T) {
		_, err := SanitizeText(strings.Repeat("a", MaxQueryLength+1), MaxQueryLength)
		require.Error(t, err)
		assert.Equal(t, core.CodeInputTooLong, core.CodeOf(err))
	})
	t.Run("Should accept a query at exactly the length limit", func(t *testing.T) {
		out, err := SanitizeText(strings.Repeat("a", MaxQueryLength), MaxQueryLength)
		require.NoError(t, err)
		assert.Len(t, out, MaxQueryLength)

		_, err = SanitizeText(strings.Repeat("a", MaxQueryLength+1), MaxQueryLength)
		assert.Equal(t, core.CodeInputTooLong, core.CodeOf(err))
	})
	t.Run("Should validate and normalize emails", func(t *testing.T) {
		out, err := SanitizeEmail("  Seeker@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, "seeker@example.com", out)

		_, err = SanitizeEmail("not-an-email")
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidEmail, core.CodeOf(err))
	})
	t.Run("Should accept an email at exactly the length limit", func(t *testing.T) {
		domain := "@example.com"
		local := strings.Repeat("a", MaxEmailLength-len(domain))
		out, err := SanitizeEmail(local + domain)
		require.NoError(t, err)
		assert.Len(t, out, MaxEmailLength)

		_, err = SanitizeEmail(local + "a" + domain)
		require.Error(t, err)
		assert.Equal(t, core.CodeInputTooLong, core.CodeOf(err))
	})
	t.Run("Should validate UUID shape", func(t *testing.T) {
		out, err := SanitizeUUID("123E4567-E89B-42D3-A456-426614174000")
		require.NoError(t, err)
		assert.Equal(t, "123e4567-e89b-42d3-a456-426614174000", out)

		_, err = SanitizeUUID("nope")
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidUUID, core.CodeOf(err))
	})
	t.Run("Should apply rules per field and drop unknown keys", func(t *testing.T) {
		params := map[string]string{
			"question":    "what is dharma?",
			"personality": "krishna",
			"extra":       "ignored",
		}
		rules := map[string]FieldRule{
			"question":    {Kind: FieldText, MaxLength: MaxQueryLength, Required: true},
			"personality": {Kind: FieldAlphanumeric},
		}
		out, err := SanitizeParams(params, rules)
		require.NoError(t, err)
		assert.Equal(t, "what is dharma?", out["question"])
		assert.Equal(t, "krishna", out["personality"])
		assert.NotContains(t, out, "extra")
	})
	t.Run("Should reject a missing required field", func(t *testing.T) {
		_, err := SanitizeParams(map[string]string{}, map[string]FieldRule{
			"question": {Kind: FieldText, Required: true},
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidFormat, core.CodeOf(err))
	})
}

func TestRedact(t *testing.T) {
	t.Run("Should redact sensitive keys at any depth", func(t *testing.T) {
		in := map[string]any{
			"api_key": "sk-123",
			"nested": map[string]any{
				"Authorization": "Bearer abc",
				"safe":          "value",
			},
			"list": []any{map[string]any{"cosmos_db_key": "xyz"}},
		}
		out, ok := Redact(in).(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "[REDACTED]", out["api_key"])
		nested := out["nested"].(map[string]any)
		assert.Equal(t, "[REDACTED]", nested["Authorization"])
		assert.Equal(t, "value", nested["safe"])
		item := out["list"].([]any)[0].(map[string]any)
		assert.Equal(t, "[REDACTED]", item["cosmos_db_key"])
		assert.Equal(t, "sk-123", in["api_key"])
	})
	t.Run("Should mask emails keeping two edge characters", func(t *testing.T) {
		assert.Equal(t, "se**er@example.com", MaskEmail("seeker@example.com"))
		assert.Equal(t, "***@example.com", MaskEmail("abc@example.com"))
		assert.Equal(t, "[REDACTED]", MaskEmail("no-at-sign"))
	})
	t.Run("Should round money and mask emails in user payloads", func(t *testing.T) {
		out := RedactForUser(map[string]any{
			"email":      "seeker@example.com",
			"total_cost": 0.123456,
			"message":    "ok",
		}, []string{"email", "total_cost", "message"})
		assert.Equal(t, "se**er@example.com", out["email"])
		assert.Equal(t, 0.12, out["total_cost"])
		assert.Equal(t, "ok", out["message"])
	})
	t.Run("Should drop fields outside the allowed set", func(t *testing.T) {
		out := RedactForUser(map[string]any{
			"user_id":      "user-001",
			"role":         "user",
			"internal_ref": "conv_42",
			"tenant_id":    "t-1",
		}, []string{"user_id", "role"})
		assert.Equal(t, map[string]any{"user_id": "user-001", "role": "user"}, out)
	})
	t.Run("Should redact sensitive keys nested inside an allowed field", func(t *testing.T) {
		out := RedactForUser(map[string]any{
			"metadata": map[string]any{"model": "gemini-2.5-flash", "api_key": "sk-1"},
		}, []string{"metadata"})
		meta := out["metadata"].(map[string]any)
		assert.Equal(t, "gemini-2.5-flash", meta["model"])
		assert.Equal(t, "[REDACTED]", meta["api_key"])
	})
}
