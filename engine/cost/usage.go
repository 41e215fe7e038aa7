package cost

import (
	"fmt"
	"time"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/store"
)

// UsageRecord is one append-only billing record for one LLM call.
type UsageRecord struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	SessionID    string       `json:"session_id"`
	Timestamp    time.Time    `json:"timestamp"`
	Model        string       `json:"model"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	TotalTokens  int          `json:"total_tokens"`
	CostUSD      float64      `json:"cost_usd"`
	RequestType  string       `json:"request_type"`
	Quality      core.Quality `json:"quality"`
	Personality  string       `json:"personality"`
}

// UsageID derives the record id from user and timestamp so retries of
// the same logical write collide instead of double-billing.
func UsageID(userID string, at time.Time) string {
	return fmt.Sprintf("usage_%s_%d", userID, at.UTC().UnixNano())
}

// Document converts the record into its store envelope, partitioned by user.
func (r *UsageRecord) Document() *store.Document {
	return &store.Document{
		ID:           r.ID,
		Type:         store.TypeUsageTracking,
		PartitionKey: r.UserID,
		Data: map[string]any{
			"user_id":       r.UserID,
			"email":         r.Email,
			"session_id":    r.SessionID,
			"timestamp":     r.Timestamp.UTC().Format(time.RFC3339Nano),
			"model":         r.Model,
			"input_tokens":  r.InputTokens,
			"output_tokens": r.OutputTokens,
			"total_tokens":  r.TotalTokens,
			"cost_usd":      r.CostUSD,
			"request_type":  r.RequestType,
			"quality":       string(r.Quality),
			"personality":   r.Personality,
		},
	}
}

func usageFromDocument(doc *store.Document) UsageRecord {
	rec := UsageRecord{
		ID:           doc.ID,
		UserID:       stringField(doc.Data, "user_id"),
		Email:        stringField(doc.Data, "email"),
		SessionID:    stringField(doc.Data, "session_id"),
		Model:        stringField(doc.Data, "model"),
		InputTokens:  intField(doc.Data, "input_tokens"),
		OutputTokens: intField(doc.Data, "output_tokens"),
		TotalTokens:  intField(doc.Data, "total_tokens"),
		CostUSD:      floatField(doc.Data, "cost_usd"),
		RequestType:  stringField(doc.Data, "request_type"),
		Quality:      core.Quality(stringField(doc.Data, "quality")),
		Personality:  stringField(doc.Data, "personality"),
	}
	if raw := stringField(doc.Data, "timestamp"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.Timestamp = ts
		}
	}
	return rec
}

// UserStats is the per-user aggregate. It is recomputed from the usage
// record set on every write; the persisted copy is a cache of that
// computation, never hand-mutated.
type UserStats struct {
	UserID              string         `json:"user_id"`
	TotalRequests       int            `json:"total_requests"`
	TotalTokens         int            `json:"total_tokens"`
	TotalCostUSD        float64        `json:"total_cost_usd"`
	CurrentMonthTokens  int            `json:"current_month_tokens"`
	CurrentMonthCostUSD float64        `json:"current_month_cost_usd"`
	LastRequest         time.Time      `json:"last_request"`
	AverageTokens       float64        `json:"average_tokens_per_request"`
	MostUsedModel       string         `json:"most_used_model"`
	PersonalityUse      map[string]int `json:"personality_use"`
	QualityUse          map[string]int `json:"quality_use"`
	RiskScore           float64        `json:"risk_score"`
	Blocked             bool           `json:"blocked"`
	BlockedReason       string         `json:"blocked_reason"`
}

// StatsID is the fixed stats document id for a user.
func StatsID(userID string) string {
	return "stats_" + userID
}

func (s *UserStats) Document() *store.Document {
	return &store.Document{
		ID:           StatsID(s.UserID),
		Type:         store.TypeUserStats,
		PartitionKey: s.UserID,
		Data: map[string]any{
			"user_id":                    s.UserID,
			"total_requests":             s.TotalRequests,
			"total_tokens":               s.TotalTokens,
			"total_cost_usd":             s.TotalCostUSD,
			"current_month_tokens":       s.CurrentMonthTokens,
			"current_month_cost_usd":     s.CurrentMonthCostUSD,
			"last_request":               s.LastRequest.UTC().Format(time.RFC3339Nano),
			"average_tokens_per_request": s.AverageTokens,
			"most_used_model":            s.MostUsedModel,
			"personality_use":            core.CloneMap(toAnyMap(s.PersonalityUse)),
			"quality_use":                core.CloneMap(toAnyMap(s.QualityUse)),
			"risk_score":                 s.RiskScore,
			"blocked":                    s.Blocked,
			"blocked_reason":             s.BlockedReason,
		},
	}
}

func statsFromDocument(doc *store.Document) *UserStats {
	s := &UserStats{
		UserID:              stringField(doc.Data, "user_id"),
		TotalRequests:       intField(doc.Data, "total_requests"),
		TotalTokens:         intField(doc.Data, "total_tokens"),
		TotalCostUSD:        floatField(doc.Data, "total_cost_usd"),
		CurrentMonthTokens:  intField(doc.Data, "current_month_tokens"),
		CurrentMonthCostUSD: floatField(doc.Data, "current_month_cost_usd"),
		AverageTokens:       floatField(doc.Data, "average_tokens_per_request"),
		MostUsedModel:       stringField(doc.Data, "most_used_model"),
		RiskScore:           floatField(doc.Data, "risk_score"),
		Blocked:             boolField(doc.Data, "blocked"),
		BlockedReason:       stringField(doc.Data, "blocked_reason"),
	}
	if raw := stringField(doc.Data, "last_request"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			s.LastRequest = ts
		}
	}
	return s
}

// Recompute builds UserStats from the complete usage record set. The
// month window is the wall-clock UTC calendar month containing now.
func Recompute(userID string, records []UsageRecord, now time.Time) *UserStats {
	stats := &UserStats{
		UserID:         userID,
		PersonalityUse: make(map[string]int),
		QualityUse:     make(map[string]int),
	}
	month := core.MonthKey(now)
	modelUse := make(map[string]int)
	fallbacks := 0
	for _, rec := range records {
		stats.TotalRequests++
		stats.TotalTokens += rec.TotalTokens
		stats.TotalCostUSD += rec.CostUSD
		if core.MonthKey(rec.Timestamp) == month {
			stats.CurrentMonthTokens += rec.TotalTokens
			stats.CurrentMonthCostUSD += rec.CostUSD
		}
		if rec.Timestamp.After(stats.LastRequest) {
			stats.LastRequest = rec.Timestamp
		}
		modelUse[rec.Model]++
		if rec.Personality != "" {
			stats.PersonalityUse[rec.Personality]++
		}
		if rec.Quality != "" {
			stats.QualityUse[string(rec.Quality)]++
		}
		if rec.Quality == core.QualityFallback {
			fallbacks++
		}
	}
	if stats.TotalRequests > 0 {
		stats.AverageTokens = float64(stats.TotalTokens) / float64(stats.TotalRequests)
		stats.RiskScore = float64(fallbacks) / float64(stats.TotalRequests)
	}
	best := 0
	for model, n := range modelUse {
		if n > best || (n == best && model < stats.MostUsedModel) {
			best = n
			stats.MostUsedModel = model
		}
	}
	return stats
}

func toAnyMap(in map[string]int) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func boolField(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
