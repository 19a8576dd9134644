package ai

import (
	"context"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/errors"
)

// DefaultAnthropicModel is used when ai.model is empty.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

type anthropicGenerator struct {
	client     *anthropic.Client
	model      string
	maxTokens  int
	resilience *Resilience
}

func newAnthropic(cfg config.AIConfig, opts Options) (Generator, error) {
	key := apiKey(cfg, opts.Getenv, "ANTHROPIC_API_KEY")
	if key == "" {
		return nil, errors.Auth("ai.newAnthropic", "no Anthropic API key: set ANTHROPIC_API_KEY or ai.api_key")
	}

	var clientOptions []anthropic.ClientOption
	if cfg.BaseURL != "" {
		clientOptions = append(clientOptions, anthropic.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &anthropicGenerator{
		client:     anthropic.NewClient(key, clientOptions...),
		model:      model,
		maxTokens:  maxTokens(cfg),
		resilience: NewResilience(opts.Resilience),
	}, nil
}

func (g *anthropicGenerator) Name() string { return ProviderAnthropic }

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.resilience.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := g.client.CreateMessages(
			ctx,
			anthropic.MessagesRequest{
				Model:     anthropic.Model(g.model),
				MaxTokens: g.maxTokens,
				Messages: []anthropic.Message{
					anthropic.NewUserTextMessage(prompt),
				},
			},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Content) == 0 {
			return "", errors.AI("ai.anthropic", "no response from model")
		}
		return strings.TrimSpace(resp.GetFirstContentText()), nil
	})
	if err != nil {
		return "", errors.AIWrapSafe(err, "ai.anthropic", "failed to generate entry")
	}
	return result, nil
}
