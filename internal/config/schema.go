// Package config loads and validates .changelog/config.toml.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/relicta-tech/changelogs/internal/domain/version"
)

// FileName is the config file name inside the changelog directory.
const FileName = "config.toml"

// EnvPrefix prefixes environment overrides, e.g. CHANGELOGS_DEPENDENT_BUMP.
const EnvPrefix = "CHANGELOGS"

// Config is the workspace configuration.
type Config struct {
	// Ecosystem forces an ecosystem: auto, cargo, python or npm.
	Ecosystem string `mapstructure:"ecosystem" json:"ecosystem"`
	// DependentBump is applied to packages whose dependencies are released.
	DependentBump DependentBump `mapstructure:"dependent_bump" json:"dependent_bump"`
	// Changelog configures CHANGELOG.md rendering.
	Changelog ChangelogConfig `mapstructure:"changelog" json:"changelog"`
	// Fixed groups always release together at one shared bump.
	Fixed [][]string `mapstructure:"-" json:"fixed,omitempty"`
	// Linked groups share the highest bump among members released together.
	Linked [][]string `mapstructure:"-" json:"linked,omitempty"`
	// Ignore lists packages that are never released.
	Ignore []string `mapstructure:"ignore" json:"ignore,omitempty"`
	// Python configures Python-specific behaviour.
	Python PythonConfig `mapstructure:"python" json:"python"`
	// Git configures release tagging.
	Git GitConfig `mapstructure:"git" json:"git"`
	// AI configures entry generation.
	AI AIConfig `mapstructure:"ai" json:"ai"`
}

// DependentBump is the bump given to dependents of released packages.
type DependentBump string

const (
	DependentBumpPatch DependentBump = "patch"
	DependentBumpMinor DependentBump = "minor"
	DependentBumpNone  DependentBump = "none"
)

// Bump returns the bump type, or BumpNone when propagation is disabled.
func (d DependentBump) Bump() version.BumpType {
	switch d {
	case DependentBumpMinor:
		return version.BumpMinor
	case DependentBumpNone:
		return version.BumpNone
	default:
		return version.BumpPatch
	}
}

// ChangelogConfig configures CHANGELOG.md rendering.
type ChangelogConfig struct {
	// Format is per-package or root.
	Format string `mapstructure:"format" json:"format"`
	// Attribution adds authors and PR links to released entries.
	Attribution bool `mapstructure:"attribution" json:"attribution"`
	// RepositoryURL overrides the link base derived from the git remote.
	RepositoryURL string `mapstructure:"repository_url" json:"repository_url,omitempty"`
}

// PythonConfig configures Python projects.
type PythonConfig struct {
	// VersionFile is a module, relative to each project, whose __version__
	// mirrors the manifest version.
	VersionFile string `mapstructure:"version_file" json:"version_file,omitempty"`
}

// GitConfig configures release tags.
type GitConfig struct {
	// Tag creates name@version tags after publishing.
	Tag bool `mapstructure:"tag" json:"tag"`
	// Push pushes created tags to Remote.
	Push bool `mapstructure:"push" json:"push"`
	// Remote is the remote used for links and pushes.
	Remote string `mapstructure:"remote" json:"remote"`
}

// AIConfig configures AI-assisted entry generation.
type AIConfig struct {
	// Provider is openai, anthropic, gemini or command.
	Provider string `mapstructure:"provider" json:"provider,omitempty"`
	// Model overrides the provider's default model.
	Model string `mapstructure:"model" json:"model,omitempty"`
	// APIKey supports ${VAR} expansion; provider env vars are used when empty.
	APIKey string `mapstructure:"api_key" json:"-"`
	// BaseURL points OpenAI-compatible providers at another endpoint.
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	// Command is a shell command that reads the prompt on stdin.
	Command string `mapstructure:"command" json:"command,omitempty"`
	// Instructions replaces the default prompt template.
	Instructions string `mapstructure:"instructions" json:"instructions,omitempty"`
	// MaxTokens caps the response length.
	MaxTokens int `mapstructure:"max_tokens" json:"max_tokens"`
	// Timeout bounds a single generation.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Ecosystem:     "auto",
		DependentBump: DependentBumpPatch,
		Changelog: ChangelogConfig{
			Format:      "per-package",
			Attribution: true,
		},
		Git: GitConfig{
			Tag:    true,
			Remote: "origin",
		},
		AI: AIConfig{
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
	}
}

// IsIgnored reports whether pkg is listed under ignore.
func (c *Config) IsIgnored(pkg string) bool {
	for _, name := range c.Ignore {
		if name == pkg {
			return true
		}
	}
	return false
}

// DefaultTOML is written by "changelogs init".
const DefaultTOML = `# Ecosystem detection: "auto" | "cargo" | "python" | "npm"
ecosystem = "auto"

# How to bump packages that depend on released packages: "patch" | "minor" | "none"
dependent_bump = "patch"

# Packages that are never released
ignore = []

[changelog]
# "per-package" writes CHANGELOG.md in every package, "root" one file at the root
format = "per-package"
# Add authors and pull request links from git history
attribution = true
# repository_url = "https://github.com/owner/repo"

[git]
# Tag name@version after publishing
tag = true
push = false
remote = "origin"

# Fixed groups always share one version bump
# [[fixed]]
# members = ["pkg-a", "pkg-b"]

# Linked groups align bumps when released together
# [[linked]]
# members = ["sdk-core", "sdk-macros"]

# [python]
# version_file = "src/mypackage/__init__.py"

# [ai]
# provider = "anthropic"   # openai | anthropic | gemini | command
# command = "llm -m gpt-4o"
`

// parseGroups accepts both [["a", "b"]] and [[group]] members = [...] forms.
func parseGroups(key string, raw any) ([][]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		if maps, ok := raw.([]map[string]any); ok {
			for _, m := range maps {
				list = append(list, m)
			}
		} else {
			return nil, fmt.Errorf("%s: expected a list of groups, got %T", key, raw)
		}
	}

	groups := make([][]string, 0, len(list))
	for i, item := range list {
		var members any = item
		if m, ok := item.(map[string]any); ok {
			members, ok = m["members"]
			if !ok {
				return nil, fmt.Errorf("%s[%d]: missing members", key, i)
			}
		}
		names, err := stringList(members)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		groups = append(groups, names)
	}
	return groups, nil
}

func stringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected package names, got %T", item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of package names, got %T", raw)
	}
}
