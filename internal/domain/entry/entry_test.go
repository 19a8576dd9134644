package entry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	rperrors "github.com/relicta-tech/changelogs/internal/errors"
)

func TestParse(t *testing.T) {
	content := `---
core: minor
"@acme/ui": patch
commit: abc1234
---

Added a new parser.

- with bullets
`
	e, err := Parse("brave-lions-dance", content)
	require.NoError(t, err)

	assert.Equal(t, "brave-lions-dance", e.ID)
	assert.Equal(t, "abc1234", e.Commit)
	assert.Equal(t, []Release{
		{Package: "core", Bump: version.BumpMinor},
		{Package: "@acme/ui", Bump: version.BumpPatch},
	}, e.Releases)
	assert.Equal(t, "Added a new parser.\n\n- with bullets", e.Summary)

	bump, ok := e.BumpFor("core")
	assert.True(t, ok)
	assert.Equal(t, version.BumpMinor, bump)
	_, ok = e.BumpFor("commit")
	assert.False(t, ok)
	assert.Equal(t, []string{"core", "@acme/ui"}, e.Packages())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing frontmatter", "core: minor\n\nsummary", "missing frontmatter"},
		{"missing end", "---\ncore: minor\n\nsummary", "missing frontmatter end"},
		{"invalid bump", "---\ncore: huge\n---\nsummary", "invalid bump type: huge"},
		{"sequence bump", "---\ncore: [minor]\n---\nsummary", "invalid bump type for core"},
		{"nested bump", "---\ncore:\n  bump: minor\n---\nsummary", "invalid bump type for core"},
		{"complex key", "---\n? [core]\n: minor\n---\nsummary", "not a package name"},
		{"not a mapping", "---\n- core\n---\nsummary", "mapping"},
		{"duplicate", "---\ncore: minor\ncore: patch\n---\nsummary", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("calm-owls-sing", tt.content)
			require.Error(t, err)
			assert.True(t, rperrors.IsKind(err, rperrors.KindParse))
			assert.Contains(t, err.Error(), "calm-owls-sing")
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestParse_EmptyEntry(t *testing.T) {
	e, err := Parse("quiet-moons-rest", "---\n---\n")
	require.NoError(t, err)
	assert.Empty(t, e.Releases)
	assert.Empty(t, e.Summary)
}

func TestParse_LeadingWhitespace(t *testing.T) {
	e, err := Parse("x", "\n\n  ---\ncore: major\n---\nBreaking.\n\n")
	require.NoError(t, err)
	assert.Equal(t, "Breaking.", e.Summary)
}

func TestSerializeRoundTrip(t *testing.T) {
	original := Entry{
		ID:      "bold-crabs-fix",
		Summary: "Fixed the thing.",
		Releases: []Release{
			{Package: "zeta", Bump: version.BumpMajor},
			{Package: "@scope/alpha", Bump: version.BumpPatch},
		},
		Commit: "deadbeef",
	}

	out := Serialize(original)
	assert.True(t, strings.HasPrefix(out, "---\nzeta: major\n\"@scope/alpha\": patch\ncommit: deadbeef\n---\n\n"))

	parsed, err := Parse(original.ID, out)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Contains(t, adjectives, parts[0])
	assert.Contains(t, nouns, parts[1])
	assert.Contains(t, verbs, parts[2])
}

func TestGenerateUniqueID(t *testing.T) {
	calls := 0
	id := GenerateUniqueID(func(string) bool {
		calls++
		return calls <= 20
	})
	assert.Regexp(t, `^[a-z]+-[a-z]+-[a-z]+-\d+$`, id)

	free := GenerateUniqueID(func(string) bool { return false })
	assert.Len(t, strings.Split(free, "-"), 3)
}
