// Package entry provides the changelog entry model: one pending change with a
// summary and a bump per package.
package entry

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	rperrors "github.com/relicta-tech/changelogs/internal/errors"
)

const (
	frontmatterDelimiter = "---"
	// commitKey is reserved in the frontmatter and never treated as a package.
	commitKey = "commit"
)

// Release is a single package bump requested by an entry.
type Release struct {
	Package string
	Bump    version.BumpType
}

// Entry is a pending changelog record stored as .changelog/<ID>.md.
type Entry struct {
	ID       string
	Summary  string
	Releases []Release
	// Commit optionally pins the originating commit.
	Commit string
}

// BumpFor returns the bump the entry requests for pkg.
func (e Entry) BumpFor(pkg string) (version.BumpType, bool) {
	for _, r := range e.Releases {
		if r.Package == pkg {
			return r.Bump, true
		}
	}
	return version.BumpNone, false
}

// Packages returns the package names named by the entry, in frontmatter order.
func (e Entry) Packages() []string {
	names := make([]string, len(e.Releases))
	for i, r := range e.Releases {
		names[i] = r.Package
	}
	return names
}

// Parse parses entry file content. The id is only used for error reporting.
func Parse(id, content string) (Entry, error) {
	const op = "entry.Parse"

	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return Entry{}, rperrors.Parse(op, id, "missing frontmatter")
	}

	rest := content[len(frontmatterDelimiter):]
	end := strings.Index(rest, frontmatterDelimiter)
	if end < 0 {
		return Entry{}, rperrors.Parse(op, id, "missing frontmatter end")
	}

	header := strings.TrimSpace(rest[:end])
	e := Entry{
		ID:      id,
		Summary: strings.TrimSpace(rest[end+len(frontmatterDelimiter):]),
	}

	if header == "" {
		return e, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err != nil {
		return Entry{}, rperrors.ParseWrap(err, op, id, "invalid frontmatter")
	}
	if len(doc.Content) == 0 {
		return e, nil
	}

	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return Entry{}, rperrors.Parse(op, id, "frontmatter must be a mapping of package to bump")
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return Entry{}, rperrors.Parse(op, id, fmt.Sprintf("frontmatter key on line %d is not a package name", key.Line))
		}
		if value.Kind != yaml.ScalarNode {
			return Entry{}, rperrors.Parse(op, id, fmt.Sprintf("invalid bump type for %s: expected patch, minor or major", key.Value))
		}
		if key.Value == commitKey {
			e.Commit = value.Value
			continue
		}
		bump, err := version.ParseBumpType(value.Value)
		if err != nil {
			return Entry{}, rperrors.Parse(op, id, fmt.Sprintf("invalid bump type: %s", value.Value))
		}
		if seen[key.Value] {
			return Entry{}, rperrors.Parse(op, id, fmt.Sprintf("package %s listed twice", key.Value))
		}
		seen[key.Value] = true
		e.Releases = append(e.Releases, Release{Package: key.Value, Bump: bump})
	}

	return e, nil
}

// Serialize renders the entry in its on-disk form.
func Serialize(e Entry) string {
	var sb strings.Builder
	sb.WriteString(frontmatterDelimiter + "\n")
	for _, r := range e.Releases {
		fmt.Fprintf(&sb, "%s: %s\n", quoteKey(r.Package), r.Bump)
	}
	if e.Commit != "" {
		fmt.Fprintf(&sb, "%s: %s\n", commitKey, e.Commit)
	}
	sb.WriteString(frontmatterDelimiter + "\n\n")
	sb.WriteString(e.Summary)
	sb.WriteString("\n")
	return sb.String()
}

// quoteKey quotes package names YAML would otherwise misread, such as npm
// scopes starting with "@".
func quoteKey(name string) string {
	if strings.HasPrefix(name, "@") || strings.ContainsAny(name, ":#") {
		return fmt.Sprintf("%q", name)
	}
	return name
}

// Attribution links an entry to the history that introduced it.
type Attribution struct {
	// Commit is the full hash of the commit that added the entry file.
	Commit string
	// PR is the pull request number, or 0 when none was found.
	PR int
	// Authors are display names, deduplicated and sorted.
	Authors []string
}

// ShortCommit returns the first seven characters of the commit hash.
func (a Attribution) ShortCommit() string {
	if len(a.Commit) > 7 {
		return a.Commit[:7]
	}
	return a.Commit
}
