package guidance

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
	"github.com/vimarsh-ai/vimarsh/engine/budget"
	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/cost"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/retriever"
	"github.com/vimarsh-ai/vimarsh/engine/llm"
	"github.com/vimarsh-ai/vimarsh/engine/personality"
	"github.com/vimarsh-ai/vimarsh/engine/prompt"
	"github.com/vimarsh-ai/vimarsh/engine/safety"
	"github.com/vimarsh-ai/vimarsh/engine/security"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// promptOverheadTokens is the upper bound for template text plus
// retrieved contexts, used only for the pre-call cost estimate.
const promptOverheadTokens = 1500

// Request is one sanitized guidance question.
type Request struct {
	Question    string `json:"question"`
	Personality string `json:"personality"`
	SessionID   string `json:"session_id"`
}

// Response is the user-facing answer envelope. Monetary fields are
// already rounded for display; internal precision lives in the usage
// records.
type Response struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Citations      []string `json:"citations,omitempty"`
	Personality    string   `json:"personality"`
	Quality        string   `json:"quality"`
	Model          string   `json:"model,omitempty"`
	Attempts       int      `json:"attempts"`
	ResponseTimeMS int64    `json:"response_time_ms"`
	CostUSD        float64  `json:"cost_usd"`
	Denied         bool     `json:"denied,omitempty"`
	DeniedReason   string   `json:"denied_reason,omitempty"`

	// Token counts feed metrics at the edge; they are not part of the
	// user-facing body.
	InputTokens  int `json:"-"`
	OutputTokens int `json:"-"`
}

// Pipeline orchestrates one guidance request end to end. Every
// dependency sits behind its package service; the pipeline owns only
// the step order and the failure policy between steps.
type Pipeline struct {
	registry   *personality.Registry
	renderer   *prompt.Renderer
	retriever  *retriever.Service
	dispatcher *llm.Dispatcher
	enforcer   *budget.Enforcer
	acct       *cost.Accountant
	docs       store.Store
	model      string
	now        func() time.Time
}

func NewPipeline(
	registry *personality.Registry,
	renderer *prompt.Renderer,
	retr *retriever.Service,
	dispatcher *llm.Dispatcher,
	enforcer *budget.Enforcer,
	acct *cost.Accountant,
	docs store.Store,
	model string,
) *Pipeline {
	return &Pipeline{
		registry:   registry,
		renderer:   renderer,
		retriever:  retr,
		dispatcher: dispatcher,
		enforcer:   enforcer,
		acct:       acct,
		docs:       docs,
		model:      model,
		now:        time.Now,
	}
}

// Ask serves one guidance request for an authenticated user. Budget
// denials come back as a refusal response, not an error; errors are
// reserved for request defects and infrastructure failures.
func (p *Pipeline) Ask(ctx context.Context, usr *user.User, req *Request) (*Response, error) {
	log := logger.FromContext(ctx).With("user_id", usr.Subject)

	question, err := security.SanitizeText(req.Question, security.MaxQueryLength)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, core.NewError(nil, core.CodeInvalidFormat, "question is required", nil)
	}
	persona := p.registry.Get(ctx, req.Personality)

	estimated := p.acct.Cost(p.model,
		p.acct.CountTokens(question)+promptOverheadTokens,
		persona.MaxChars/4)
	if err := p.enforcer.Validate(ctx, usr.Subject, estimated); err != nil {
		log.Info("guidance denied by budget", "code", core.CodeOf(err))
		return p.refusal(persona, err), nil
	}

	var contexts []retriever.Context
	var resp *llm.Response
	if p.enforcer.FallbackPreferred(usr.Subject) {
		// Critical budget tier: serve the canned answer without touching
		// the index or the provider.
		log.Info("budget critical, serving canned fallback")
		resp = p.dispatcher.Fallback(persona)
	} else {
		contexts = p.retrieve(ctx, question, persona)
		rendered := p.render(ctx, persona, question, contexts,
			history(ctx, p.docs, usr.Subject, req.SessionID))

		resp = p.dispatcher.Generate(ctx, persona, rendered)
		if category, violated := safety.Check(resp.Text); violated {
			log.Warn("safety filter replaced response", "category", category)
			resp.Text = p.enforceBudgetText(persona, persona.Greeting+" "+safety.SafeLine())
			resp.Quality = core.QualityFallback
			resp.Fallback = true
		}
	}

	citations := collectCitations(contexts, persona, resp)
	out := &Response{
		ID:             newConversationID(),
		Text:           resp.Text,
		Citations:      citations,
		Personality:    persona.ID,
		Quality:        string(resp.Quality),
		Model:          resp.Model,
		Attempts:       resp.Attempts,
		ResponseTimeMS: resp.ResponseTime.Milliseconds(),
		CostUSD:        security.RoundMoney(p.acct.Cost(resp.Model, resp.InputTokens, resp.OutputTokens)),
		InputTokens:    resp.InputTokens,
		OutputTokens:   resp.OutputTokens,
	}

	p.persist(ctx, usr, req.SessionID, question, persona, resp, out)

	if _, err := p.enforcer.CheckAlerts(ctx, usr.Subject); err != nil {
		log.Warn("budget alert sweep failed", "error", err)
	}
	return out, nil
}

// refusal builds the no-LLM denial response. Nothing is persisted.
func (p *Pipeline) refusal(persona *personality.Personality, cause error) *Response {
	text := persona.Greeting + " I cannot continue our conversation right now. " +
		"Please return a little later and we will take up your question again."
	if tmpl, err := p.renderer.Resolve(prompt.TypeRefusal, persona.Domain, persona.ID); err == nil {
		text = strings.TrimSpace(p.renderer.Render(tmpl, map[string]string{
			"greeting":         persona.Greeting,
			"personality_name": persona.Name,
		}))
	}
	return &Response{
		ID:           newConversationID(),
		Text:         p.enforceBudgetText(persona, text),
		Personality:  persona.ID,
		Quality:      string(core.QualityFallback),
		Denied:       true,
		DeniedReason: core.CodeOf(cause),
	}
}

// retrieve degrades to an ungrounded prompt when the index fails; a
// retrieval outage must not take guidance down with it.
func (p *Pipeline) retrieve(
	ctx context.Context,
	question string,
	persona *personality.Personality,
) []retriever.Context {
	contexts, err := p.retriever.Retrieve(ctx, question, persona.Partition, retriever.Options{})
	if err != nil {
		logger.FromContext(ctx).Warn("knowledge retrieval failed, continuing without contexts",
			"partition", persona.Partition, "error", err)
		return nil
	}
	return contexts
}

func (p *Pipeline) render(
	ctx context.Context,
	persona *personality.Personality,
	question string,
	contexts []retriever.Context,
	hist string,
) string {
	tmpl, err := p.renderer.Resolve(prompt.TypeGuidance, persona.Domain, persona.ID)
	if err != nil {
		// Seeds guarantee a domain default; reaching this means a broken
		// deployment, so fall back to the bare question.
		logger.FromContext(ctx).Error("no guidance template resolved", "personality", persona.ID)
		return question
	}
	var passages strings.Builder
	for i, c := range contexts {
		if i > 0 {
			passages.WriteString("\n\n")
		}
		if c.Source != "" {
			passages.WriteString("[" + c.Source)
			if c.Section != "" {
				passages.WriteString(" " + c.Section)
			}
			passages.WriteString("] ")
		}
		passages.WriteString(c.Text)
	}
	return p.renderer.Render(tmpl, map[string]string{
		"personality_name": persona.Name,
		"greeting":         persona.Greeting,
		"context":          passages.String(),
		"history":          hist,
		"question":         question,
		"max_chars":        strconv.Itoa(persona.MaxChars),
	})
}

// persist writes the usage record, the recomputed stats, and the
// conversation audit record in one transaction scope. A failure here is
// logged and escalated but the already-served response stands.
func (p *Pipeline) persist(
	ctx context.Context,
	usr *user.User,
	sessionID, question string,
	persona *personality.Personality,
	resp *llm.Response,
	out *Response,
) {
	conv := &Conversation{
		ID:          out.ID,
		UserID:      usr.Subject,
		SessionID:   sessionID,
		Timestamp:   p.now().UTC(),
		Question:    question,
		Response:    out.Text,
		Citations:   out.Citations,
		Personality: persona.ID,
	}
	rec := &cost.UsageRecord{
		UserID:       usr.Subject,
		Email:        usr.Email,
		SessionID:    sessionID,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		RequestType:  "guidance",
		Quality:      resp.Quality,
		Personality:  persona.ID,
	}
	if _, err := p.acct.Record(ctx, rec, conv.Document()); err != nil {
		logger.FromContext(ctx).Error("usage persistence failed after serving response",
			"user_id", usr.Subject, "conversation_id", out.ID, "error", err)
		security.LogSecurityEvent(ctx, "usage_write_failed", map[string]any{
			"user_id":         usr.Subject,
			"conversation_id": out.ID,
		})
	}
}

func (p *Pipeline) enforceBudgetText(persona *personality.Personality, text string) string {
	runes := []rune(text)
	if len(runes) <= persona.MaxChars {
		return text
	}
	return string(runes[:persona.MaxChars-3]) + "..."
}

// collectCitations deduplicates chunk citations and source names. A
// fallback answer cites nothing; it quotes no retrieved text.
func collectCitations(
	contexts []retriever.Context,
	persona *personality.Personality,
	resp *llm.Response,
) []string {
	if resp.Fallback || !persona.CitationsRequired {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(cite string) {
		if cite == "" {
			return
		}
		if _, dup := seen[cite]; dup {
			return
		}
		seen[cite] = struct{}{}
		out = append(out, cite)
	}
	for _, c := range contexts {
		for _, cite := range c.Citations {
			add(cite)
		}
		add(c.Source)
	}
	sort.Strings(out)
	return out
}
