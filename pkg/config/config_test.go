package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults without environment", func(t *testing.T) {
		cfg, err := NewLoader().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "vimarsh-db", cfg.Storage.LocalDir)
		assert.Equal(t, 50.0, cfg.Budget.DefaultMonthlyUSD)
		assert.Equal(t, 100, cfg.RateLimit.GeneralPerMinute)
	})
	t.Run("Should override from environment variables", func(t *testing.T) {
		t.Setenv("LLM_MODEL", "gemini-2.5-pro")
		t.Setenv("DEFAULT_MONTHLY_BUDGET", "75.5")
		t.Setenv("ADMIN_EMAILS", "ops@vimarsh.app, lead@vimarsh.app")
		cfg, err := NewLoader().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
		assert.Equal(t, 75.5, cfg.Budget.DefaultMonthlyUSD)
		assert.Equal(t, []string{"ops@vimarsh.app", "lead@vimarsh.app"}, cfg.Admin.AdminList())
	})
	t.Run("Should force auth on in production environment", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("AZURE_TENANT_ID", "tenant-1")
		t.Setenv("ENTRA_CLIENT_ID", "client-1")
		cfg, err := NewLoader().Load(context.Background())
		require.NoError(t, err)
		assert.True(t, cfg.Auth.Enabled)
		assert.Equal(t, "production", cfg.Auth.Mode)
	})
	t.Run("Should detect production from hosting site variable", func(t *testing.T) {
		t.Setenv("WEBSITE_SITE_NAME", "vimarsh-prod")
		cfg, err := NewLoader().Load(context.Background())
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
		assert.True(t, cfg.Auth.Enabled)
	})
	t.Run("Should reject invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		_, err := NewLoader().Load(context.Background())
		require.Error(t, err)
	})
}

func TestInspect(t *testing.T) {
	t.Run("Should degrade llm section without credentials", func(t *testing.T) {
		cfg := Default()
		reports := Inspect(cfg)
		var llm SectionReport
		for _, r := range reports {
			if r.Name == "llm" {
				llm = r
			}
		}
		assert.False(t, llm.Valid)
		assert.False(t, llm.Critical)
		assert.NotEmpty(t, llm.Fallback)
	})
	t.Run("Should fail critical auth section in production without tenant", func(t *testing.T) {
		cfg := Default()
		cfg.Runtime.Environment = "production"
		cfg.ApplyMode()
		failed := CriticalFailures(Inspect(cfg))
		require.Len(t, failed, 1)
		assert.Equal(t, "auth", failed[0].Name)
	})
	t.Run("Should pass storage section with default dir", func(t *testing.T) {
		failed := CriticalFailures(Inspect(Default()))
		assert.Empty(t, failed)
	})
}

func TestSensitiveString(t *testing.T) {
	t.Run("Should mask in string and JSON output", func(t *testing.T) {
		s := SensitiveString("super-secret")
		assert.Equal(t, "[REDACTED]", s.String())
		data, err := s.MarshalJSON()
		require.NoError(t, err)
		assert.NotContains(t, string(data), "super-secret")
		assert.Equal(t, "super-secret", s.Reveal())
	})
	t.Run("Should keep empty values empty", func(t *testing.T) {
		assert.Equal(t, "", SensitiveString("").String())
	})
}
