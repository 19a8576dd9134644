package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Ecosystem)
	assert.Equal(t, DependentBumpPatch, cfg.DependentBump)
	assert.Equal(t, "per-package", cfg.Changelog.Format)
	assert.True(t, cfg.Changelog.Attribution)
	assert.True(t, cfg.Git.Tag)
	assert.Equal(t, "origin", cfg.Git.Remote)
	assert.Empty(t, cfg.Fixed)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
}

func TestLoad_DefaultTOMLRoundTrips(t *testing.T) {
	dir := t.TempDir()
	created, err := WriteDefault(dir)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = WriteDefault(dir)
	require.NoError(t, err)
	assert.False(t, created, "an existing config is left alone")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Changelog, cfg.Changelog)
	assert.Equal(t, DefaultConfig().Git, cfg.Git)
	require.NoError(t, NewValidator(nil).Validate(cfg))
}

func TestLoad_GroupForms(t *testing.T) {
	tests := []struct {
		name   string
		toml   string
		fixed  [][]string
		linked [][]string
	}{
		{
			name:  "inline arrays",
			toml:  "fixed = [[\"a\", \"b\"], [\"c\", \"d\"]]\nlinked = [[\"x\", \"y\"]]\n",
			fixed: [][]string{{"a", "b"}, {"c", "d"}}, linked: [][]string{{"x", "y"}},
		},
		{
			name:  "array of tables",
			toml:  "[[fixed]]\nmembers = [\"a\", \"b\"]\n\n[[linked]]\nmembers = [\"x\", \"y\"]\n\n[[linked]]\nmembers = [\"p\", \"q\"]\n",
			fixed: [][]string{{"a", "b"}}, linked: [][]string{{"x", "y"}, {"p", "q"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.toml))
			require.NoError(t, err)
			assert.Equal(t, tt.fixed, cfg.Fixed)
			assert.Equal(t, tt.linked, cfg.Linked)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeConfig(t, "dependent_bump = \n"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = Load(writeConfig(t, "[[fixed]]\nname = \"a\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing members")

	_, err = NewLoader(t.TempDir()).WithConfigPath(filepath.Join(t.TempDir(), "nope.toml")).Load()
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CHANGELOGS_DEPENDENT_BUMP", "Minor")
	t.Setenv("CHANGELOGS_CHANGELOG_FORMAT", "root")
	t.Setenv("CHANGELOGS_TEST_TOKEN", "sk-test")

	cfg, err := Load(writeConfig(t, "dependent_bump = \"none\"\n[ai]\napi_key = \"${CHANGELOGS_TEST_TOKEN}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, DependentBumpMinor, cfg.DependentBump)
	assert.Equal(t, "root", cfg.Changelog.Format)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
}

func TestLoad_BoundFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("ecosystem", "", "")
	require.NoError(t, flags.Parse([]string{"--ecosystem", "NPM"}))

	l := NewLoader(writeConfig(t, "ecosystem = \"cargo\"\n"))
	require.NoError(t, l.BindFlag("ecosystem", flags.Lookup("ecosystem")))
	require.NoError(t, l.BindFlag("ignored", nil))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "npm", cfg.Ecosystem)
}

func TestDependentBump(t *testing.T) {
	assert.Equal(t, version.BumpPatch, DependentBumpPatch.Bump())
	assert.Equal(t, version.BumpMinor, DependentBumpMinor.Bump())
	assert.Equal(t, version.BumpNone, DependentBumpNone.Bump())
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("TOKEN_VALUE", "abc123")

	got := expandEnvVar("prefix-${TOKEN_VALUE}-${MISSING_CHANGELOGS_VAR:-default}-$MISSING_CHANGELOGS_VAR")
	assert.Equal(t, "prefix-abc123-default-$MISSING_CHANGELOGS_VAR", got)
}
