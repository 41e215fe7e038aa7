package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
)

// Client abstracts the LLM provider so the dispatcher can be exercised
// without network access.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

type googleClient struct {
	llm         llms.Model
	model       string
	maxTokens   int
	temperature float64
}

// NewGoogleClient builds the Gemini text-generation client.
func NewGoogleClient(ctx context.Context, cfg *config.LLMConfig) (Client, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey.Reveal()),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "LLM client init failed", nil)
	}
	return &googleClient{
		llm:         llm,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *googleClient) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", core.NewError(err, core.CodeProviderTransport, "LLM call failed", nil)
	}
	return out, nil
}

func (c *googleClient) Model() string {
	return c.model
}
