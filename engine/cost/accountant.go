package cost

import (
	"context"
	"sync"
	"time"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/engine/txn"
)

// SessionTotals is the in-memory aggregate for one conversation session.
type SessionTotals struct {
	Requests int
	Tokens   int
	CostUSD  float64
}

// Accountant owns token pricing and usage persistence. Every write goes
// through the transaction manager so the usage record and the recomputed
// stats land together. In-memory aggregates are caches; the persisted
// record set is the source of truth.
type Accountant struct {
	store   store.Store
	txn     *txn.Manager
	counter *TokenCounter
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*SessionTotals
}

func NewAccountant(st store.Store, manager *txn.Manager) *Accountant {
	return &Accountant{
		store:    st,
		txn:      manager,
		counter:  NewTokenCounter(),
		now:      time.Now,
		sessions: make(map[string]*SessionTotals),
	}
}

// CountTokens counts tokens in a text.
func (a *Accountant) CountTokens(text string) int {
	return a.counter.Count(text)
}

// Cost prices one call in USD at six decimals.
func (a *Accountant) Cost(model string, inputTokens, outputTokens int) float64 {
	return PriceUSD(model, inputTokens, outputTokens)
}

// EstimateCost prices a conservative upper bound before the call is made.
func (a *Accountant) EstimateCost(model, prompt string, maxOutputTokens int) float64 {
	return PriceUSD(model, a.counter.Count(prompt), maxOutputTokens)
}

// Record persists one usage record plus the recomputed user stats in a
// single transaction scope. Extra documents (the conversation audit
// record) join the same scope. Returns the stats as persisted.
func (a *Accountant) Record(
	ctx context.Context,
	rec *UsageRecord,
	extras ...*store.Document,
) (*UserStats, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.now().UTC()
	}
	if rec.ID == "" {
		rec.ID = UsageID(rec.UserID, rec.Timestamp)
	}
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	if rec.CostUSD == 0 {
		rec.CostUSD = a.Cost(rec.Model, rec.InputTokens, rec.OutputTokens)
	}

	records, err := a.userRecords(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	records = append(records, *rec)
	stats := Recompute(rec.UserID, records, a.now().UTC())
	a.preserveBlockState(ctx, stats)

	if err := a.txn.AtomicTokenOperation(ctx, rec.Document(), stats.Document(), extras...); err != nil {
		return nil, err
	}
	a.addSession(rec)
	return stats, nil
}

// Stats recomputes the aggregate from the persisted record set.
func (a *Accountant) Stats(ctx context.Context, userID string) (*UserStats, error) {
	records, err := a.userRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := Recompute(userID, records, a.now().UTC())
	a.preserveBlockState(ctx, stats)
	return stats, nil
}

// MonthlyUsed sums the user's cost inside the current UTC calendar month.
func (a *Accountant) MonthlyUsed(ctx context.Context, userID string) (float64, error) {
	return a.sumWindow(ctx, userID, core.MonthKey, core.MonthKey(a.now().UTC()))
}

// DailyUsed sums the user's cost for the current UTC day.
func (a *Accountant) DailyUsed(ctx context.Context, userID string) (float64, error) {
	return a.sumWindow(ctx, userID, core.DayKey, core.DayKey(a.now().UTC()))
}

// Session returns the in-memory totals for a session id.
func (a *Accountant) Session(sessionID string) SessionTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	if totals, ok := a.sessions[sessionID]; ok {
		return *totals
	}
	return SessionTotals{}
}

func (a *Accountant) sumWindow(
	ctx context.Context,
	userID string,
	keyFn func(time.Time) string,
	window string,
) (float64, error) {
	records, err := a.userRecords(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, rec := range records {
		if keyFn(rec.Timestamp) == window {
			total += rec.CostUSD
		}
	}
	return total, nil
}

func (a *Accountant) userRecords(ctx context.Context, userID string) ([]UsageRecord, error) {
	docs, err := a.store.List(ctx, store.CollectionConversations, store.Query{
		Type:         store.TypeUsageTracking,
		PartitionKey: userID,
	})
	if err != nil {
		return nil, err
	}
	records := make([]UsageRecord, 0, len(docs))
	for i := range docs {
		records = append(records, usageFromDocument(&docs[i]))
	}
	return records, nil
}

// preserveBlockState carries the blocked flag forward from the persisted
// stats document; recomputation must not silently unblock a user.
func (a *Accountant) preserveBlockState(ctx context.Context, stats *UserStats) {
	doc, err := a.store.Get(ctx, store.CollectionConversations, StatsID(stats.UserID))
	if err != nil {
		return
	}
	existing := statsFromDocument(doc)
	stats.Blocked = existing.Blocked
	stats.BlockedReason = existing.BlockedReason
}

func (a *Accountant) addSession(rec *UsageRecord) {
	if rec.SessionID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	totals, ok := a.sessions[rec.SessionID]
	if !ok {
		totals = &SessionTotals{}
		a.sessions[rec.SessionID] = totals
	}
	totals.Requests++
	totals.Tokens += rec.TotalTokens
	totals.CostUSD += rec.CostUSD
}
