package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/errors"
)

// DefaultOpenAIModel is used when ai.model is empty.
const DefaultOpenAIModel = "gpt-4o-mini"

type openAIGenerator struct {
	client     *openai.Client
	model      string
	maxTokens  int
	resilience *Resilience
}

func newOpenAI(cfg config.AIConfig, opts Options) (Generator, error) {
	key := apiKey(cfg, opts.Getenv, "OPENAI_API_KEY")
	if key == "" {
		return nil, errors.Auth("ai.newOpenAI", "no OpenAI API key: set OPENAI_API_KEY or ai.api_key")
	}

	clientConfig := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout(cfg)}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &openAIGenerator{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		maxTokens:  maxTokens(cfg),
		resilience: NewResilience(opts.Resilience),
	}, nil
}

func (g *openAIGenerator) Name() string { return ProviderOpenAI }

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.resilience.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := g.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model: g.model,
				Messages: []openai.ChatCompletionMessage{
					{
						Role:    openai.ChatMessageRoleUser,
						Content: prompt,
					},
				},
				MaxTokens: g.maxTokens,
			},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.AI("ai.openai", "no response from model")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", errors.AIWrapSafe(err, "ai.openai", "failed to generate entry")
	}
	return result, nil
}
