package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/cost"
	"github.com/vimarsh-ai/vimarsh/engine/security"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// Limit is the per-user spending cap set. Defaults materialize lazily on
// a user's first request; admins overwrite them afterwards.
type Limit struct {
	UserID            string    `json:"user_id"`
	MonthlyUSD        float64   `json:"monthly_usd"`
	DailyUSD          float64   `json:"daily_usd"`
	RequestUSD        float64   `json:"request_usd"`
	Enabled           bool      `json:"enabled"`
	EmergencyOverride bool      `json:"emergency_override"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AlertLevel orders the budget alert tiers.
type AlertLevel string

const (
	LevelInfo      AlertLevel = "info"
	LevelWarning   AlertLevel = "warning"
	LevelCritical  AlertLevel = "critical"
	LevelEmergency AlertLevel = "emergency"
)

// Period is the budget window an alert refers to.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Action is what the enforcer did in response to an alert.
type Action string

const (
	ActionNone     Action = "none"
	ActionNotify   Action = "notify"
	ActionFallback Action = "fallback"
	ActionBlock    Action = "block"
)

// Alert is one threshold crossing. Append-only; at most one alert per
// (user, period, threshold, window).
type Alert struct {
	UserID    string     `json:"user_id"`
	Level     AlertLevel `json:"level"`
	Period    Period     `json:"period"`
	Usage     float64    `json:"usage"`
	Limit     float64    `json:"limit"`
	Percent   float64    `json:"percent"`
	Action    Action     `json:"action"`
	Timestamp time.Time  `json:"timestamp"`
}

type threshold struct {
	percent float64
	level   AlertLevel
	action  Action
}

// Ascending so one sweep emits every newly crossed tier.
var thresholds = []threshold{
	{50, LevelInfo, ActionNone},
	{75, LevelWarning, ActionNotify},
	{90, LevelCritical, ActionFallback},
	{100, LevelEmergency, ActionBlock},
}

// Enforcer validates spending before each LLM call and raises tiered
// alerts afterwards. State is in memory; the usage numbers behind every
// decision come from the accountant's persisted record set.
type Enforcer struct {
	defaults config.BudgetConfig
	acct     *cost.Accountant
	now      func() time.Time

	mu       sync.Mutex
	limits   map[string]*Limit
	blocked  map[string]string
	fallback map[string]bool
	alerted  map[string]struct{}
	alerts   []Alert
}

func NewEnforcer(defaults config.BudgetConfig, acct *cost.Accountant) *Enforcer {
	return &Enforcer{
		defaults: defaults,
		acct:     acct,
		now:      time.Now,
		limits:   make(map[string]*Limit),
		blocked:  make(map[string]string),
		fallback: make(map[string]bool),
		alerted:  make(map[string]struct{}),
	}
}

// Validate decides whether a request with the given estimated cost may
// proceed. Checks run in a fixed order; the first violation wins.
func (e *Enforcer) Validate(ctx context.Context, userID string, estimated float64) error {
	if reason, ok := e.blockReason(userID); ok {
		return core.NewError(nil, core.CodeUserBlocked,
			"user is blocked from making requests", map[string]any{"reason": reason})
	}
	limit := e.Limit(userID)
	if !limit.Enabled {
		return nil
	}
	if estimated > limit.RequestUSD {
		return core.NewError(nil, core.CodePerRequestExceeded,
			"estimated cost exceeds the per-request cap",
			map[string]any{"estimated": estimated, "cap": limit.RequestUSD})
	}
	monthly, err := e.acct.MonthlyUsed(ctx, userID)
	if err != nil {
		return err
	}
	if monthly+estimated > limit.MonthlyUSD && !limit.EmergencyOverride {
		return core.NewError(nil, core.CodeMonthlyExceeded,
			"monthly budget exhausted",
			map[string]any{"used": monthly, "cap": limit.MonthlyUSD})
	}
	daily, err := e.acct.DailyUsed(ctx, userID)
	if err != nil {
		return err
	}
	if daily+estimated > limit.DailyUSD && !limit.EmergencyOverride {
		return core.NewError(nil, core.CodeDailyExceeded,
			"daily budget exhausted",
			map[string]any{"used": daily, "cap": limit.DailyUSD})
	}
	return nil
}

// CheckAlerts sweeps both budget windows and emits one alert per newly
// crossed (period, threshold) pair. Emergency blocks the user; critical
// turns on the fallback hint; warning is notify-only.
func (e *Enforcer) CheckAlerts(ctx context.Context, userID string) ([]Alert, error) {
	limit := e.Limit(userID)
	if !limit.Enabled {
		return nil, nil
	}
	now := e.now().UTC()
	monthly, err := e.acct.MonthlyUsed(ctx, userID)
	if err != nil {
		return nil, err
	}
	daily, err := e.acct.DailyUsed(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []Alert
	out = append(out, e.sweep(ctx, userID, PeriodMonth, monthly, limit.MonthlyUSD, core.MonthKey(now), now)...)
	out = append(out, e.sweep(ctx, userID, PeriodDay, daily, limit.DailyUSD, core.DayKey(now), now)...)
	return out, nil
}

func (e *Enforcer) sweep(
	ctx context.Context,
	userID string,
	period Period,
	used, cap float64,
	window string,
	now time.Time,
) []Alert {
	if cap <= 0 {
		return nil
	}
	percent := used / cap * 100
	var out []Alert
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tier := range thresholds {
		if percent < tier.percent {
			break
		}
		key := fmt.Sprintf("%s|%s|%.0f|%s", userID, period, tier.percent, window)
		if _, seen := e.alerted[key]; seen {
			continue
		}
		e.alerted[key] = struct{}{}
		alert := Alert{
			UserID:    userID,
			Level:     tier.level,
			Period:    period,
			Usage:     used,
			Limit:     cap,
			Percent:   percent,
			Action:    tier.action,
			Timestamp: now,
		}
		switch tier.action {
		case ActionBlock:
			e.blocked[userID] = fmt.Sprintf("%s budget exhausted", period)
		case ActionFallback:
			e.fallback[userID] = true
		}
		e.alerts = append(e.alerts, alert)
		out = append(out, alert)
		security.LogSecurityEvent(ctx, "budget_alert", map[string]any{
			"user_id": userID,
			"level":   string(alert.Level),
			"period":  string(period),
			"percent": alert.Percent,
			"action":  string(alert.Action),
		})
	}
	return out
}

// Limit returns the user's cap set, materializing the defaults on first use.
func (e *Enforcer) Limit(userID string) Limit {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit, ok := e.limits[userID]; ok {
		return *limit
	}
	now := e.now().UTC()
	limit := &Limit{
		UserID:     userID,
		MonthlyUSD: e.defaults.DefaultMonthlyUSD,
		DailyUSD:   e.defaults.DefaultDailyUSD,
		RequestUSD: e.defaults.DefaultRequestUSD,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e.limits[userID] = limit
	return *limit
}

// SetLimit overwrites a user's caps. Admin surface; audited.
func (e *Enforcer) SetLimit(ctx context.Context, actor string, limit Limit) {
	e.mu.Lock()
	existing, ok := e.limits[limit.UserID]
	now := e.now().UTC()
	if ok {
		limit.CreatedAt = existing.CreatedAt
	} else {
		limit.CreatedAt = now
	}
	limit.UpdatedAt = now
	e.limits[limit.UserID] = &limit
	e.mu.Unlock()
	security.LogSecurityEvent(ctx, "budget_limit_set", map[string]any{
		"actor":   actor,
		"user_id": limit.UserID,
		"monthly": limit.MonthlyUSD,
		"daily":   limit.DailyUSD,
		"request": limit.RequestUSD,
		"enabled": limit.Enabled,
	})
}

// Override clears the emergency-override flag and unblocks the user.
// Admin surface; audited.
func (e *Enforcer) Override(ctx context.Context, actor, userID string) {
	e.mu.Lock()
	if limit, ok := e.limits[userID]; ok {
		limit.EmergencyOverride = false
		limit.UpdatedAt = e.now().UTC()
	}
	delete(e.blocked, userID)
	delete(e.fallback, userID)
	e.mu.Unlock()
	security.LogSecurityEvent(ctx, "budget_override", map[string]any{
		"actor":   actor,
		"user_id": userID,
	})
	logger.FromContext(ctx).Info("budget block cleared", "user_id", userID)
}

// Block adds a user to the block list directly. Admin surface; audited.
func (e *Enforcer) Block(ctx context.Context, actor, userID, reason string) {
	e.mu.Lock()
	e.blocked[userID] = reason
	e.mu.Unlock()
	security.LogSecurityEvent(ctx, "user_blocked", map[string]any{
		"actor":   actor,
		"user_id": userID,
		"reason":  reason,
	})
}

// Blocked reports whether the user is on the block list.
func (e *Enforcer) Blocked(userID string) bool {
	_, ok := e.blockReason(userID)
	return ok
}

// FallbackPreferred reports whether the critical tier asked the pipeline
// to prefer canned replies for this user.
func (e *Enforcer) FallbackPreferred(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback[userID]
}

// Alerts returns the append-only alert history.
func (e *Enforcer) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

func (e *Enforcer) blockReason(userID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reason, ok := e.blocked[userID]
	return reason, ok
}
