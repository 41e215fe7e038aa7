package security

import (
	"context"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// Category selects which per-minute ceiling applies to a request.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryAdmin   Category = "admin"
	CategoryAuth    Category = "auth"
)

// RateLimiter enforces sliding-window ceilings per client key and blocks
// offenders for a fixed duration once a window is exhausted. Expired
// blocks are swept lazily on access, so no background goroutine runs.
type RateLimiter struct {
	limiters map[Category]*limiter.Limiter
	blockFor time.Duration
	now      func() time.Time

	mu      sync.Mutex
	blocked map[string]time.Time
}

func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	store := memory.NewStore()
	newLimiter := func(perMinute int) *limiter.Limiter {
		return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: int64(perMinute)})
	}
	return &RateLimiter{
		limiters: map[Category]*limiter.Limiter{
			CategoryGeneral: newLimiter(cfg.GeneralPerMinute),
			CategoryAdmin:   newLimiter(cfg.AdminPerMinute),
			CategoryAuth:    newLimiter(cfg.AuthPerMinute),
		},
		blockFor: cfg.BlockDuration,
		now:      time.Now,
		blocked:  make(map[string]time.Time),
	}
}

// Allow records one request for key under the category's ceiling. A
// blocked key fails immediately; exhausting the window blocks the key.
func (r *RateLimiter) Allow(ctx context.Context, category Category, key string) error {
	if until, ok := r.blockedUntil(key); ok {
		return core.NewError(nil, core.CodeIPBlocked, "client is temporarily blocked",
			map[string]any{"retry_after": until.Sub(r.now()).Round(time.Second).String()})
	}
	lim, ok := r.limiters[category]
	if !ok {
		lim = r.limiters[CategoryGeneral]
	}
	res, err := lim.Get(ctx, string(category)+":"+key)
	if err != nil {
		return core.NewError(err, core.CodeInternal, "rate limiter store failed", nil)
	}
	if res.Reached {
		r.block(key)
		logger.FromContext(ctx).Warn("rate limit exceeded, blocking client",
			"category", category, "block_duration", r.blockFor)
		return core.NewError(nil, core.CodeRateLimitExceeded, "rate limit exceeded",
			map[string]any{"limit": res.Limit, "category": string(category)})
	}
	return nil
}

// Blocked reports whether the key is currently serving a block.
func (r *RateLimiter) Blocked(key string) bool {
	_, ok := r.blockedUntil(key)
	return ok
}

// Unblock clears a block early. Admin surface only.
func (r *RateLimiter) Unblock(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocked, key)
}

func (r *RateLimiter) block(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[key] = r.now().Add(r.blockFor)
}

func (r *RateLimiter) blockedUntil(key string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, until := range r.blocked {
		if !now.Before(until) {
			delete(r.blocked, k)
		}
	}
	until, ok := r.blocked[key]
	return until, ok
}
