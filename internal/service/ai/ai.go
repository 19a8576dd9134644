// Package ai drafts changelog entries from a diff with a language model or
// an external command.
package ai

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

// Provider names accepted by ai.provider and --ai.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderCommand   = "command"
)

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Options are the collaborators shared by all providers.
type Options struct {
	Runner ecosystem.Runner
	Logger *log.Logger
	// Getenv looks up provider API keys; defaults to os.Getenv.
	Getenv func(string) string
	// Dir is the working directory for command providers.
	Dir        string
	Resilience ResilienceConfig
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Runner == nil {
		o.Runner = ecosystem.NewExecRunner(o.Logger)
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Resilience == (ResilienceConfig{}) {
		o.Resilience = DefaultResilienceConfig()
	}
	return o
}

// IsProvider reports whether name is a built-in provider rather than a
// shell command.
func IsProvider(name string) bool {
	switch strings.ToLower(name) {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// New returns the generator for selector. A built-in provider name selects
// its SDK client configured from cfg; "command" runs cfg.Command; anything
// else is run as a command line. An empty selector falls back to
// cfg.Provider.
func New(ctx context.Context, selector string, cfg config.AIConfig, opts Options) (Generator, error) {
	const op = "ai.New"

	opts = opts.withDefaults()
	if selector == "" {
		selector = cfg.Provider
	}
	if selector == "" {
		return nil, errors.Config(op, "no AI provider configured; pass --ai or set ai.provider")
	}

	switch strings.ToLower(selector) {
	case ProviderOpenAI:
		return newOpenAI(cfg, opts)
	case ProviderAnthropic:
		return newAnthropic(cfg, opts)
	case ProviderGemini:
		return newGemini(ctx, cfg, opts)
	case ProviderCommand:
		if cfg.Command == "" {
			return nil, errors.Config(op, "ai.command is required when provider is 'command'")
		}
		return newCommand(cfg.Command, opts)
	default:
		return newCommand(selector, opts)
	}
}

func apiKey(cfg config.AIConfig, getenv func(string) string, envs ...string) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	for _, k := range envs {
		if v := getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func maxTokens(cfg config.AIConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return config.DefaultConfig().AI.MaxTokens
}

func timeout(cfg config.AIConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return config.DefaultConfig().AI.Timeout
}

// Drafter turns a diff into a changelog entry.
type Drafter struct {
	gen          Generator
	instructions string
	timeout      time.Duration
	logger       *log.Logger
}

// NewDrafter creates a Drafter. instructions replaces DefaultInstructions
// when non-empty.
func NewDrafter(gen Generator, instructions string, timeout time.Duration, logger *log.Logger) *Drafter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Drafter{gen: gen, instructions: instructions, timeout: timeout, logger: logger}
}

// Draft asks the generator for an entry covering diff. The response must
// parse as an entry and may only name packages from packages. The returned
// entry has no ID.
func (d *Drafter) Draft(ctx context.Context, packages []string, diff string) (entry.Entry, error) {
	const op = "ai.Draft"

	if strings.TrimSpace(diff) == "" {
		return entry.Entry{}, errors.Validation(op, "diff is empty")
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(d.instructions, packages, diff)
	d.logger.Debug("generating entry", "provider", d.gen.Name(), "prompt_bytes", len(prompt))

	resp, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		return entry.Entry{}, err
	}

	e, err := entry.Parse("ai-generated", CleanResponse(resp))
	if err != nil {
		return entry.Entry{}, err
	}
	e.ID = ""

	known := make(map[string]bool, len(packages))
	for _, p := range packages {
		known[p] = true
	}
	var unknown []string
	for _, r := range e.Releases {
		if !known[r.Package] {
			unknown = append(unknown, r.Package)
		}
	}
	if len(unknown) > 0 {
		return entry.Entry{}, errors.Validation(op,
			fmt.Sprintf("generated entry references unknown packages: %s", strings.Join(unknown, ", ")))
	}
	return e, nil
}
