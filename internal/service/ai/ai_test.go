package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

type stubGenerator struct {
	response string
	err      error
	prompt   string
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

type fakeRunner struct {
	cmds []ecosystem.Command
	out  ecosystem.Output
	err  error
}

func (f *fakeRunner) Run(_ context.Context, c ecosystem.Command) (ecosystem.Output, error) {
	f.cmds = append(f.cmds, c)
	return f.out, f.err
}

func noRetry() ResilienceConfig {
	return ResilienceConfig{RetryAttempts: 1}
}

func TestTruncateDiff(t *testing.T) {
	short := "diff --git a/x b/x\n"
	assert.Equal(t, short, TruncateDiff(short))

	long := strings.Repeat("a", MaxDiffBytes-1) + "é" + strings.Repeat("b", 5000)
	got := TruncateDiff(long)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", MaxDiffBytes-1)+"\n\n"), "cut before the split rune")
	assert.Contains(t, got, "[diff truncated, showing first 32KB of 37KB]")
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("", []string{"core", "cli"}, "+added line")
	assert.Contains(t, got, "Available packages: core, cli")
	assert.True(t, strings.HasSuffix(got, "Git diff:\n+added line"))

	custom := BuildPrompt("pkgs={packages}\n{diff}", []string{"a"}, "d {packages}")
	assert.Equal(t, "pkgs=a\nd {packages}", custom)
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "---\na: patch\n---\n\nFixed.", want: "---\na: patch\n---\n\nFixed."},
		{in: "```markdown\n---\na: patch\n---\nFixed.\n```", want: "---\na: patch\n---\nFixed."},
		{in: "  ```\n---\na: minor\n---\nX\n```  \n", want: "---\na: minor\n---\nX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanResponse(tt.in))
	}
}

func TestDrafter_Draft(t *testing.T) {
	gen := &stubGenerator{response: "```md\n---\ncore: minor\ncli: patch\n---\n\nAdded streaming.\n```"}
	d := NewDrafter(gen, "", time.Second, nil)

	e, err := d.Draft(context.Background(), []string{"cli", "core"}, "diff")
	require.NoError(t, err)
	assert.Empty(t, e.ID)
	assert.Equal(t, "Added streaming.", e.Summary)
	bump, ok := e.BumpFor("core")
	require.True(t, ok)
	assert.Equal(t, version.BumpMinor, bump)
	assert.Contains(t, gen.prompt, "Available packages: cli, core")
}

func TestDrafter_RejectsUnknownPackages(t *testing.T) {
	gen := &stubGenerator{response: "---\ncore: patch\nghost: major\n---\n\nX"}

	_, err := NewDrafter(gen, "", 0, nil).Draft(context.Background(), []string{"core"}, "diff")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	assert.Contains(t, err.Error(), "ghost")
}

func TestDrafter_Errors(t *testing.T) {
	_, err := NewDrafter(&stubGenerator{}, "", 0, nil).Draft(context.Background(), nil, "  ")
	assert.Error(t, err, "empty diff")

	_, err = NewDrafter(&stubGenerator{response: "Sure! Here is your entry."}, "", 0, nil).
		Draft(context.Background(), []string{"a"}, "diff")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindParse))

	_, err = NewDrafter(&stubGenerator{err: fmt.Errorf("boom")}, "", 0, nil).
		Draft(context.Background(), []string{"a"}, "diff")
	assert.EqualError(t, err, "boom")
}

func TestNew_Selection(t *testing.T) {
	opts := Options{Getenv: func(string) string { return "" }, Runner: &fakeRunner{}}

	_, err := New(context.Background(), "", config.AIConfig{}, opts)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = New(context.Background(), "openai", config.AIConfig{}, opts)
	assert.True(t, errors.IsKind(err, errors.KindAuth))

	_, err = New(context.Background(), "command", config.AIConfig{}, opts)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	gen, err := New(context.Background(), "", config.AIConfig{Provider: "command", Command: "llm -m gpt-4o"}, opts)
	require.NoError(t, err)
	assert.Equal(t, "llm -m gpt-4o", gen.Name())

	gen, err = New(context.Background(), "claude -p", config.AIConfig{}, opts)
	require.NoError(t, err)
	assert.Equal(t, "claude -p", gen.Name())

	assert.True(t, IsProvider("Anthropic"))
	assert.False(t, IsProvider("claude -p"))
}

func TestCommand_PipesPromptOnStdin(t *testing.T) {
	runner := &fakeRunner{out: ecosystem.Output{Stdout: "---\na: patch\n---\nFixed."}}
	gen, err := New(context.Background(), "claude -p", config.AIConfig{}, Options{Runner: runner, Dir: "/repo"})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "---\na: patch\n---\nFixed.", out)

	require.Len(t, runner.cmds, 1)
	assert.Equal(t, "claude", runner.cmds[0].Name)
	assert.Equal(t, []string{"-p"}, runner.cmds[0].Args)
	assert.Equal(t, "the prompt", runner.cmds[0].Stdin)
	assert.Equal(t, "/repo", runner.cmds[0].Dir)
}

func TestCommand_OpenAIChatCompletions(t *testing.T) {
	runner := &fakeRunner{out: ecosystem.Output{
		Stdout: `{"choices":[{"message":{"role":"assistant","content":"---\na: minor\n---\nAdded."}}]}`,
	}}
	gen, err := New(context.Background(), "openai api chat.completions.create -m gpt-4o", config.AIConfig{}, Options{Runner: runner})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "---\na: minor\n---\nAdded.", out)
	assert.Equal(t, []string{"api", "chat.completions.create", "-m", "gpt-4o", "-g", "user", "the prompt"}, runner.cmds[0].Args)
	assert.Empty(t, runner.cmds[0].Stdin)
}

func TestCommand_Failures(t *testing.T) {
	runner := &fakeRunner{
		out: ecosystem.Output{Stderr: "Error: 401 Unauthorized", ExitCode: 1},
		err: fmt.Errorf("exit status 1"),
	}
	gen, err := New(context.Background(), "claude -p", config.AIConfig{}, Options{Runner: runner})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProcess))
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	runner.out = ecosystem.Output{Stderr: "segfault", ExitCode: 139}
	_, err = gen.Generate(context.Background(), "p")
	assert.Contains(t, err.Error(), "exit code 139")
}

func TestOpenAI_Generate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  hello  "}},
			},
		})
	}))
	defer server.Close()

	gen, err := New(context.Background(), "openai", config.AIConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
		Model:   "gpt-test",
	}, Options{Resilience: noRetry()})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "gpt-test", body["model"])
}

func TestAnthropic_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "hello"},
			},
		})
	}))
	defer server.Close()

	gen, err := New(context.Background(), "anthropic", config.AIConfig{}, Options{
		Getenv: func(k string) string {
			if k == "ANTHROPIC_API_KEY" {
				return "sk-ant-test"
			}
			return ""
		},
		Resilience: noRetry(),
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, gen.Name(), "key read from ANTHROPIC_API_KEY")

	gen, err = New(context.Background(), "anthropic", config.AIConfig{APIKey: "sk-ant-test", BaseURL: server.URL}, Options{Resilience: noRetry()})
	require.NoError(t, err)
	out, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("429 Too Many Requests"), true},
		{fmt.Errorf("503 service unavailable"), true},
		{fmt.Errorf("connection reset by peer"), true},
		{fmt.Errorf("401 unauthorized"), false},
		{fmt.Errorf("invalid request"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}
