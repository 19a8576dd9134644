package ai

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

var apiKeyFailureMarkers = []string{
	"invalid api key",
	"invalid_api_key",
	"api key",
	"unauthorized",
	"authentication",
	"401",
}

// commandGenerator pipes the prompt to a command line and reads the entry
// from its stdout.
type commandGenerator struct {
	name   string
	args   []string
	dir    string
	runner ecosystem.Runner
	logger *log.Logger
}

func newCommand(line string, opts Options) (Generator, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.Config("ai.newCommand", "AI command is empty")
	}
	return &commandGenerator{
		name:   fields[0],
		args:   fields[1:],
		dir:    opts.Dir,
		runner: opts.Runner,
		logger: opts.Logger,
	}, nil
}

func (g *commandGenerator) Name() string {
	return strings.TrimSpace(g.name + " " + strings.Join(g.args, " "))
}

// isOpenAIChat reports whether the command is "openai api
// chat.completions.create", which takes the prompt as an argument and
// prints a JSON completion.
func (g *commandGenerator) isOpenAIChat() bool {
	if strings.ToLower(filepath.Base(g.name)) != "openai" {
		return false
	}
	for i := 0; i+1 < len(g.args); i++ {
		if g.args[i] == "api" && g.args[i+1] == "chat.completions.create" {
			return true
		}
	}
	return false
}

func (g *commandGenerator) hasMessageArg() bool {
	for _, a := range g.args {
		if a == "-g" || a == "--message" || strings.HasPrefix(a, "--message=") {
			return true
		}
	}
	return false
}

func (g *commandGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	const op = "ai.command"

	cmd := ecosystem.Command{Name: g.name, Args: append([]string(nil), g.args...), Dir: g.dir}
	openAIChat := g.isOpenAIChat()
	if openAIChat {
		if !g.hasMessageArg() {
			cmd.Args = append(cmd.Args, "-g", "user", prompt)
		}
	} else {
		cmd.Stdin = prompt
	}

	g.logger.Debug("running AI command", "cmd", g.Name())
	out, err := g.runner.Run(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.AIWrapSafe(ctxErr, op, "AI command timed out")
		}
		combined := strings.ToLower(out.Combined())
		for _, m := range apiKeyFailureMarkers {
			if strings.Contains(combined, m) {
				return "", errors.ProcessWrap(err, op,
					"AI command failed: API key is missing or invalid. "+apiKeyHint(g.Name()), out.Combined())
			}
		}
		return "", errors.ProcessWrap(err, op,
			fmt.Sprintf("AI command failed (exit code %d)", out.ExitCode), out.Combined())
	}

	if openAIChat {
		if content := gjson.Get(out.Stdout, "choices.0.message.content"); content.Exists() {
			return content.String(), nil
		}
	}
	return out.Stdout, nil
}

// apiKeyHint names the environment variable the command most likely needs.
func apiKeyHint(command string) string {
	lower := strings.ToLower(command)
	switch {
	case strings.Contains(lower, "amp"):
		return "The 'amp' command requires AMP_API_KEY to be set."
	case strings.Contains(lower, "claude"):
		return "The 'claude' command requires ANTHROPIC_API_KEY to be set."
	case strings.Contains(lower, "openai"):
		return "The 'openai' command requires OPENAI_API_KEY to be set."
	case strings.Contains(lower, "gemini"):
		return "The 'gemini' command requires GOOGLE_API_KEY to be set."
	default:
		return "Make sure the required API key environment variable is set."
	}
}
