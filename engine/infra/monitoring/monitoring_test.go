package monitoring

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	t.Run("Should expose recorded metrics on the scrape endpoint", func(t *testing.T) {
		svc, err := NewService(context.Background(), DefaultConfig())
		require.NoError(t, err)
		defer svc.Shutdown(context.Background())
		metrics, err := NewGuidanceMetrics(svc.Meter())
		require.NoError(t, err)
		metrics.ObserveServed(context.Background(), "krishna", "high", 120, 80, 0.0012, 350*time.Millisecond)
		metrics.ObserveDenied(context.Background(), "krishna", "BUDGET_DAILY_EXCEEDED")

		rec := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		body, err := io.ReadAll(rec.Result().Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "vimarsh_guidance_requests_total")
		assert.Contains(t, string(body), "vimarsh_guidance_denied_total")
		assert.Contains(t, string(body), "vimarsh_llm_input_tokens_total")
	})
	t.Run("Should hand out a no-op meter when disabled", func(t *testing.T) {
		svc, err := NewService(context.Background(), &Config{Enabled: false})
		require.NoError(t, err)
		assert.False(t, svc.Enabled())
		metrics, err := NewGuidanceMetrics(svc.Meter())
		require.NoError(t, err)
		metrics.ObserveServed(context.Background(), "buddha", "medium", 1, 1, 0, time.Millisecond)
	})
	t.Run("Should tolerate a nil metrics receiver", func(t *testing.T) {
		var metrics *GuidanceMetrics
		metrics.ObserveServed(context.Background(), "jesus", "high", 1, 1, 0, time.Millisecond)
		metrics.ObserveDenied(context.Background(), "jesus", "USER_BLOCKED")
	})
}
