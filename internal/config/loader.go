package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	rperrors "github.com/relicta-tech/changelogs/internal/errors"
)

var (
	// envVarPattern matches ${VAR} or ${VAR:-default} syntax
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR syntax
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// Loader reads the config file, applies defaults, environment overrides and
// bound flags.
type Loader struct {
	v          *viper.Viper
	configPath string
	dir        string
}

// NewLoader creates a loader that looks for config.toml in dir.
func NewLoader(dir string) *Loader {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, dir: dir}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// BindFlag lets a command-line flag override key when it was set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return nil
	}
	if err := l.v.BindPFlag(key, flag); err != nil {
		return rperrors.ConfigWrap(err, "config.BindFlag", "failed to bind flag "+flag.Name)
	}
	return nil
}

// Path returns the config file path that Load reads.
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	return filepath.Join(l.dir, FileName)
}

// Load loads the configuration. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	path := l.Path()
	if _, err := os.Stat(path); err == nil {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, rperrors.ConfigWrap(err, op, fmt.Sprintf("failed to parse %s", path))
		}
	} else if l.configPath != "" {
		return nil, rperrors.ConfigWrap(err, op, "config file not found")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	var err error
	if cfg.Fixed, err = parseGroups("fixed", l.v.Get("fixed")); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "invalid fixed groups")
	}
	if cfg.Linked, err = parseGroups("linked", l.v.Get("linked")); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "invalid linked groups")
	}

	cfg.DependentBump = DependentBump(strings.ToLower(string(cfg.DependentBump)))
	cfg.Ecosystem = strings.ToLower(strings.TrimSpace(cfg.Ecosystem))

	l.expandEnvVars(cfg)
	return cfg, nil
}

// setDefaults sets default values using Viper.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("ecosystem", d.Ecosystem)
	l.v.SetDefault("dependent_bump", string(d.DependentBump))
	l.v.SetDefault("ignore", []string{})

	l.v.SetDefault("changelog.format", d.Changelog.Format)
	l.v.SetDefault("changelog.attribution", d.Changelog.Attribution)
	l.v.SetDefault("changelog.repository_url", "")

	l.v.SetDefault("python.version_file", "")

	l.v.SetDefault("git.tag", d.Git.Tag)
	l.v.SetDefault("git.push", d.Git.Push)
	l.v.SetDefault("git.remote", d.Git.Remote)

	l.v.SetDefault("ai.provider", "")
	l.v.SetDefault("ai.model", "")
	l.v.SetDefault("ai.api_key", "")
	l.v.SetDefault("ai.base_url", "")
	l.v.SetDefault("ai.command", "")
	l.v.SetDefault("ai.instructions", "")
	l.v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	l.v.SetDefault("ai.timeout", d.AI.Timeout)
}

// expandEnvVars expands environment variables in sensitive configuration fields.
func (l *Loader) expandEnvVars(cfg *Config) {
	cfg.AI.APIKey = expandEnvVar(cfg.AI.APIKey)
	cfg.AI.BaseURL = expandEnvVar(cfg.AI.BaseURL)
	cfg.Changelog.RepositoryURL = expandEnvVar(cfg.Changelog.RepositoryURL)
}

// expandEnvVar expands ${VAR}, ${VAR:-default} and $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if value := os.Getenv(submatch[1]); value != "" {
			return value
		}
		if len(submatch) > 2 {
			return submatch[2]
		}
		return ""
	})

	return simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		if value := os.Getenv(match[1:]); value != "" {
			return value
		}
		return match
	})
}

// Load reads <dir>/config.toml.
func Load(dir string) (*Config, error) {
	return NewLoader(dir).Load()
}

// WriteDefault writes DefaultTOML to <dir>/config.toml unless a file exists.
// It reports whether the file was created.
func WriteDefault(dir string) (bool, error) {
	const op = "config.WriteDefault"

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, rperrors.IOWrap(err, op, "failed to create "+dir)
	}
	if err := os.WriteFile(path, []byte(DefaultTOML), 0o644); err != nil { // #nosec G306 -- config is not secret
		return false, rperrors.IOWrap(err, op, "failed to write "+path)
	}
	return true, nil
}
