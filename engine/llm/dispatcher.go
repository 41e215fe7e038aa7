package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/cost"
	"github.com/vimarsh-ai/vimarsh/engine/personality"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const defaultBackoffBase = time.Second

// fallbackLines complete the canned response after the personality
// greeting when every attempt fails.
const fallbackLine = "I am unable to offer a full answer at this moment. " +
	"Please sit with your question a little longer and ask me again shortly."

// Response is the dispatcher's complete answer envelope.
type Response struct {
	Text              string
	Model             string
	Quality           core.Quality
	Attempts          int
	ResponseTime      time.Duration
	CitationsExpected bool
	InputTokens       int
	OutputTokens      int
	Fallback          bool
}

// Dispatcher is the only component that talks to the LLM provider. It
// owns the per-attempt deadline, the retry schedule, and the character
// budget; callers treat it as an opaque function.
type Dispatcher struct {
	client  Client
	counter *cost.TokenCounter

	// backoffBase is 1s in production; tests shrink it.
	backoffBase time.Duration
}

func NewDispatcher(client Client) *Dispatcher {
	return &Dispatcher{
		client:      client,
		counter:     cost.NewTokenCounter(),
		backoffBase: defaultBackoffBase,
	}
}

// Generate runs up to maxRetries+1 attempts with progressive backoff
// (base times the attempt number). Empty completions retry; a terminal
// failure yields the canned fallback starting with the greeting.
func (d *Dispatcher) Generate(
	ctx context.Context,
	p *personality.Personality,
	prompt string,
) *Response {
	start := time.Now()
	if d.client == nil {
		return d.fallback(p, prompt, 0, start)
	}
	attempts := 0
	var text string
	backoff := retry.WithMaxRetries(uint64(p.MaxRetries), d.linearBackoff())
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		out, err := d.client.Generate(attemptCtx, prompt)
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				err = core.NewError(err, core.CodeProviderTimeout,
					"LLM attempt exceeded the personality deadline", nil)
			}
			return retry.RetryableError(err)
		}
		if strings.TrimSpace(out) == "" {
			return retry.RetryableError(core.NewError(nil, core.CodeProviderEmpty,
				"LLM returned an empty completion", nil))
		}
		text = out
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Warn("LLM attempts exhausted, serving fallback",
			"personality", p.ID, "attempts", attempts, "error", err)
		return d.fallback(p, prompt, attempts, start)
	}
	quality := core.QualityHigh
	if attempts > 1 {
		quality = core.QualityMedium
	}
	text = enforceBudget(text, p.MaxChars)
	return &Response{
		Text:              text,
		Model:             d.client.Model(),
		Quality:           quality,
		Attempts:          attempts,
		ResponseTime:      time.Since(start),
		CitationsExpected: p.CitationsRequired,
		InputTokens:       d.counter.Count(prompt),
		OutputTokens:      d.counter.Count(text),
		Fallback:          false,
	}
}

// Fallback returns the canned greeting-led answer without contacting
// the provider. Budget pressure uses it to serve cheap responses.
func (d *Dispatcher) Fallback(p *personality.Personality) *Response {
	return d.fallback(p, "", 0, time.Now())
}

func (d *Dispatcher) fallback(
	p *personality.Personality,
	prompt string,
	attempts int,
	start time.Time,
) *Response {
	text := enforceBudget(p.Greeting+" "+fallbackLine, p.MaxChars)
	model := ""
	if d.client != nil {
		model = d.client.Model()
	}
	return &Response{
		Text:              text,
		Model:             model,
		Quality:           core.QualityFallback,
		Attempts:          attempts,
		ResponseTime:      time.Since(start),
		CitationsExpected: p.CitationsRequired,
		InputTokens:       d.counter.Count(prompt),
		OutputTokens:      d.counter.Count(text),
		Fallback:          true,
	}
}

// linearBackoff waits base*1, base*2, base*3 between attempts.
func (d *Dispatcher) linearBackoff() retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * d.backoffBase, false
	})
}

// enforceBudget truncates to maxChars-3 and appends an ellipsis marker
// when the text exceeds the personality's character budget.
func enforceBudget(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars-3]) + "..."
}
