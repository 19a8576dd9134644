package changelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/domain/version"
)

type staticAttributor map[string]entry.Attribution

func (s staticAttributor) Attribute(id string) (entry.Attribution, bool) {
	a, ok := s[id]
	return a, ok
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
}

func sampleEntries() []entry.Entry {
	return []entry.Entry{
		{
			ID:       "brave-lions-dance",
			Summary:  "Add streaming API.\n\n- Works with HTTP/2\n* Documented",
			Releases: []entry.Release{{Package: "core", Bump: version.BumpMinor}},
		},
		{
			ID:       "calm-bears-swim",
			Summary:  "Fix panic on empty input",
			Releases: []entry.Release{{Package: "core", Bump: version.BumpPatch}, {Package: "cli", Bump: version.BumpPatch}},
		},
		{
			ID:       "dark-owls-hum",
			Summary:  "Drop Go 1.21",
			Releases: []entry.Release{{Package: "core", Bump: version.BumpMajor}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatPerPackage},
		{in: "per-package", want: FormatPerPackage},
		{in: "per-crate", want: FormatPerPackage},
		{in: "ROOT", want: FormatRoot},
		{in: "flat", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriter_Render(t *testing.T) {
	w := NewWriter(FormatPerPackage, WithClock(fixedClock))
	rel := Release{
		Name:     "core",
		Version:  version.MustParse("2.0.0"),
		Bump:     version.BumpMajor,
		EntryIDs: []string{"brave-lions-dance", "calm-bears-swim", "dark-owls-hum"},
	}

	want := "## 2.0.0 (2026-03-14)\n\n" +
		"### Major Changes\n\n" +
		"- Drop Go 1.21\n\n" +
		"### Minor Changes\n\n" +
		"- Add streaming API.\n" +
		"- Works with HTTP/2\n" +
		"* Documented\n\n" +
		"### Patch Changes\n\n" +
		"- Fix panic on empty input\n\n"
	assert.Equal(t, want, w.Render(rel, sampleEntries()))
}

func TestWriter_RenderAttribution(t *testing.T) {
	attr := staticAttributor{
		"brave-lions-dance": {Commit: "0123456789abcdef", PR: 42, Authors: []string{"Ada Lovelace", "grace"}},
		"calm-bears-swim":   {Commit: "fedcba9876543210", Authors: []string{"linus"}},
	}
	rel := Release{
		Name:     "core",
		Version:  version.MustParse("1.3.0"),
		EntryIDs: []string{"brave-lions-dance", "calm-bears-swim"},
	}

	t.Run("with repository links", func(t *testing.T) {
		w := NewWriter(FormatPerPackage, WithClock(fixedClock), WithAttribution(attr, "https://github.com/acme/tools/"))
		out := w.Render(rel, sampleEntries())

		assert.Contains(t, out, "* Documented (by @AdaLovelace, @grace, [#42](https://github.com/acme/tools/pull/42))\n")
		assert.Contains(t, out, "- Add streaming API.\n")
		assert.Contains(t, out, "- Fix panic on empty input (by @linus, [fedcba9](https://github.com/acme/tools/commit/fedcba9))\n")
	})

	t.Run("without repository url", func(t *testing.T) {
		w := NewWriter(FormatPerPackage, WithClock(fixedClock), WithAttribution(attr, ""))
		out := w.Render(rel, sampleEntries())

		assert.Contains(t, out, "- Fix panic on empty input (by @linus)\n")
		assert.NotContains(t, out, "/pull/")
	})
}

func TestWriter_DependencyOnlyRelease(t *testing.T) {
	w := NewWriter(FormatPerPackage, WithClock(fixedClock))
	rel := Release{Name: "app", Version: version.MustParse("0.4.0"), Bump: version.BumpMinor}

	assert.Equal(t,
		"## 0.4.0 (2026-03-14)\n\n### Minor Changes\n\n- Updated dependencies\n\n",
		w.Render(rel, sampleEntries()))
}

func TestWriter_WritePerPackage(t *testing.T) {
	root := t.TempDir()
	coreDir := filepath.Join(root, "crates", "core")
	cliDir := filepath.Join(root, "crates", "cli")
	require.NoError(t, os.MkdirAll(coreDir, 0o755))
	require.NoError(t, os.MkdirAll(cliDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(coreDir, FileName),
		[]byte("# Changelog\n\n\n## `core@1.2.3`\n\n### Patch Changes\n\n- Old fix\n"), 0o644))

	w := NewWriter(FormatPerPackage, WithClock(fixedClock))
	paths, err := w.Write(root, []Release{
		{Name: "cli", Version: version.MustParse("0.1.1"), Path: cliDir, EntryIDs: []string{"calm-bears-swim"}},
		{Name: "core", Version: version.MustParse("1.2.4"), Path: coreDir, EntryIDs: []string{"calm-bears-swim"}},
	}, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(cliDir, FileName), filepath.Join(coreDir, FileName)}, paths)

	cli, err := os.ReadFile(filepath.Join(cliDir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "# Changelog\n\n## `cli@0.1.1`\n\n### Patch Changes\n\n- Fix panic on empty input\n\n", string(cli))

	core, err := os.ReadFile(filepath.Join(coreDir, FileName))
	require.NoError(t, err)
	assert.Equal(t,
		"# Changelog\n\n## `core@1.2.4`\n\n### Patch Changes\n\n- Fix panic on empty input\n\n"+
			"## `core@1.2.3`\n\n### Patch Changes\n\n- Old fix\n",
		string(core))
}

func TestWriter_WriteRoot(t *testing.T) {
	root := t.TempDir()

	w := NewWriter(FormatRoot, WithClock(fixedClock))
	paths, err := w.Write(root, []Release{
		{Name: "cli", Version: version.MustParse("0.1.1"), EntryIDs: []string{"calm-bears-swim"}},
		{Name: "core", Version: version.MustParse("1.3.0"), EntryIDs: []string{"dark-owls-hum"}},
	}, sampleEntries())
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, FileName)}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t,
		"# Changelog\n\n"+
			"## cli@0.1.1 (2026-03-14)\n\n### Patch Changes\n\n- Fix panic on empty input\n\n"+
			"## core@1.3.0 (2026-03-14)\n\n### Major Changes\n\n- Drop Go 1.21\n\n",
		string(data))
}

func TestWriter_WriteNothing(t *testing.T) {
	root := t.TempDir()
	paths, err := NewWriter(FormatRoot).Write(root, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.NoFileExists(t, filepath.Join(root, FileName))
}

func TestPrepend(t *testing.T) {
	tests := []struct {
		name     string
		existing *string
		want     string
	}{
		{
			name: "missing file",
			want: "# Changelog\n\n## new\n",
		},
		{
			name:     "empty file",
			existing: ptr(""),
			want:     "# Changelog\n\n## new\n",
		},
		{
			name:     "existing header",
			existing: ptr("# Changelog\n\n\n## old\n"),
			want:     "# Changelog\n\n## new\n## old\n",
		},
		{
			name:     "foreign content is kept below",
			existing: ptr("Release notes live here.\n"),
			want:     "# Changelog\n\n## new\nRelease notes live here.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if tt.existing != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.existing), 0o644))
			}
			require.NoError(t, Prepend(path, "## new\n"))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func ptr(s string) *string { return &s }
