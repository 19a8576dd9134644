package ai

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/errors"
)

// DefaultGeminiModel is used when ai.model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

type geminiGenerator struct {
	client     *genai.Client
	model      string
	maxTokens  int
	resilience *Resilience
}

func newGemini(ctx context.Context, cfg config.AIConfig, opts Options) (Generator, error) {
	const op = "ai.newGemini"

	key := apiKey(cfg, opts.Getenv, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	if key == "" {
		return nil, errors.Auth(op, "no Gemini API key: set GEMINI_API_KEY, GOOGLE_API_KEY or ai.api_key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.AIWrapSafe(err, op, "failed to create Gemini client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &geminiGenerator{
		client:     client,
		model:      model,
		maxTokens:  maxTokens(cfg),
		resilience: NewResilience(opts.Resilience),
	}, nil
}

func (g *geminiGenerator) Name() string { return ProviderGemini }

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.resilience.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(
			ctx,
			g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			&genai.GenerateContentConfig{
				MaxOutputTokens: int32(g.maxTokens), // #nosec G115 -- bounded config value
			},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 {
			return "", errors.AI("ai.gemini", "no response from model")
		}

		candidate := resp.Candidates[0]
		if candidate.Content == nil {
			return "", errors.AI("ai.gemini", "empty response from model")
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() == 0 {
			return "", errors.AI("ai.gemini", "no text in response")
		}
		return strings.TrimSpace(sb.String()), nil
	})
	if err != nil {
		return "", errors.AIWrapSafe(err, "ai.gemini", "failed to generate entry")
	}
	return result, nil
}
