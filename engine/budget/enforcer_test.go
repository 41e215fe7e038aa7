package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/cost"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/engine/txn"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
)

func defaults() config.BudgetConfig {
	return config.BudgetConfig{
		DefaultMonthlyUSD: 50.0,
		DefaultDailyUSD:   5.0,
		DefaultRequestUSD: 0.50,
	}
}

func newEnforcer(t *testing.T) (*Enforcer, *cost.Accountant) {
	t.Helper()
	local, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close(context.Background()) })
	acct := cost.NewAccountant(local, txn.NewManager(local, nil))
	return NewEnforcer(defaults(), acct), acct
}

func spend(t *testing.T, acct *cost.Accountant, userID string, amount float64) {
	t.Helper()
	rec := cost.UsageRecord{
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		Model:       "gemini-2.5-flash",
		InputTokens: 10, OutputTokens: 10,
		CostUSD: amount,
		Quality: core.QualityHigh,
	}
	_, err := acct.Record(context.Background(), &rec)
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("Should allow a request within all caps", func(t *testing.T) {
		e, _ := newEnforcer(t)
		require.NoError(t, e.Validate(context.Background(), "u1", 0.01))
	})
	t.Run("Should materialize the default limit on first use", func(t *testing.T) {
		e, _ := newEnforcer(t)
		limit := e.Limit("newcomer")
		assert.Equal(t, 50.0, limit.MonthlyUSD)
		assert.Equal(t, 5.0, limit.DailyUSD)
		assert.Equal(t, 0.50, limit.RequestUSD)
		assert.True(t, limit.Enabled)
	})
	t.Run("Should reject a blocked user before any other check", func(t *testing.T) {
		e, _ := newEnforcer(t)
		e.Block(context.Background(), "admin", "u1", "abuse")
		err := e.Validate(context.Background(), "u1", 1000.0)
		require.Error(t, err)
		assert.Equal(t, core.CodeUserBlocked, core.CodeOf(err))
	})
	t.Run("Should allow everything when limits are disabled", func(t *testing.T) {
		e, _ := newEnforcer(t)
		e.SetLimit(context.Background(), "admin", Limit{UserID: "u1", Enabled: false})
		require.NoError(t, e.Validate(context.Background(), "u1", 1000.0))
	})
	t.Run("Should reject an estimate above the per-request cap", func(t *testing.T) {
		e, _ := newEnforcer(t)
		err := e.Validate(context.Background(), "u1", 0.51)
		require.Error(t, err)
		assert.Equal(t, core.CodePerRequestExceeded, core.CodeOf(err))
	})
	t.Run("Should reject when the daily budget is exhausted", func(t *testing.T) {
		e, acct := newEnforcer(t)
		spend(t, acct, "u1", 4.99)
		err := e.Validate(context.Background(), "u1", 0.02)
		require.Error(t, err)
		assert.Equal(t, core.CodeDailyExceeded, core.CodeOf(err))
	})
	t.Run("Should reject when the monthly budget is exhausted", func(t *testing.T) {
		e, acct := newEnforcer(t)
		e.SetLimit(context.Background(), "admin", Limit{
			UserID: "u1", MonthlyUSD: 0.10, DailyUSD: 5.0, RequestUSD: 0.50, Enabled: true,
		})
		spend(t, acct, "u1", 0.09)
		err := e.Validate(context.Background(), "u1", 0.02)
		require.Error(t, err)
		assert.Equal(t, core.CodeMonthlyExceeded, core.CodeOf(err))
	})
	t.Run("Should let emergency override bypass window caps but not the per-request cap", func(t *testing.T) {
		e, acct := newEnforcer(t)
		e.SetLimit(context.Background(), "admin", Limit{
			UserID: "u1", MonthlyUSD: 0.10, DailyUSD: 0.10, RequestUSD: 0.50,
			Enabled: true, EmergencyOverride: true,
		})
		spend(t, acct, "u1", 0.20)
		require.NoError(t, e.Validate(context.Background(), "u1", 0.05))
		err := e.Validate(context.Background(), "u1", 0.51)
		require.Error(t, err)
		assert.Equal(t, core.CodePerRequestExceeded, core.CodeOf(err))
	})
}

func TestCheckAlerts(t *testing.T) {
	t.Run("Should emit every crossed tier exactly once per window", func(t *testing.T) {
		e, acct := newEnforcer(t)
		spend(t, acct, "u1", 4.0) // 80% of daily
		alerts, err := e.CheckAlerts(context.Background(), "u1")
		require.NoError(t, err)
		levels := make([]AlertLevel, 0, len(alerts))
		for _, a := range alerts {
			assert.Equal(t, PeriodDay, a.Period)
			levels = append(levels, a.Level)
		}
		assert.Equal(t, []AlertLevel{LevelInfo, LevelWarning}, levels)

		again, err := e.CheckAlerts(context.Background(), "u1")
		require.NoError(t, err)
		assert.Empty(t, again)
	})
	t.Run("Should block the user at one hundred percent", func(t *testing.T) {
		e, acct := newEnforcer(t)
		spend(t, acct, "u1", 5.0)
		alerts, err := e.CheckAlerts(context.Background(), "u1")
		require.NoError(t, err)
		require.NotEmpty(t, alerts)
		last := alerts[len(alerts)-1]
		assert.Equal(t, LevelEmergency, last.Level)
		assert.Equal(t, ActionBlock, last.Action)
		assert.True(t, e.Blocked("u1"))
	})
	t.Run("Should set the fallback hint at the critical tier", func(t *testing.T) {
		e, acct := newEnforcer(t)
		spend(t, acct, "u1", 4.6) // 92% of daily
		_, err := e.CheckAlerts(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, e.FallbackPreferred("u1"))
		assert.False(t, e.Blocked("u1"))
	})
	t.Run("Should clear block and fallback on override", func(t *testing.T) {
		e, acct := newEnforcer(t)
		spend(t, acct, "u1", 5.0)
		_, err := e.CheckAlerts(context.Background(), "u1")
		require.NoError(t, err)
		require.True(t, e.Blocked("u1"))
		e.Override(context.Background(), "admin", "u1")
		assert.False(t, e.Blocked("u1"))
		assert.False(t, e.FallbackPreferred("u1"))
	})
}
