package changelog

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
)

// FileName is the rendered changelog file name.
const FileName = "CHANGELOG.md"

const header = "# Changelog"

// Format selects where released sections are written.
type Format string

const (
	// FormatPerPackage writes <package>/CHANGELOG.md for every release.
	FormatPerPackage Format = "per-package"
	// FormatRoot writes one combined CHANGELOG.md at the workspace root.
	FormatRoot Format = "root"
)

// ParseFormat parses a changelog format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per-package", "per-pkg", "per-crate", "per_package":
		return FormatPerPackage, nil
	case "root":
		return FormatRoot, nil
	default:
		return "", fmt.Errorf("invalid changelog format %q (expected per-package or root)", s)
	}
}

// Release is one package release to render.
type Release struct {
	Name    string
	Version version.SemanticVersion
	Bump    version.BumpType
	// Path is the package directory.
	Path     string
	EntryIDs []string
}

// Attributor looks up who introduced an entry and through which change.
type Attributor interface {
	Attribute(entryID string) (entry.Attribution, bool)
}

// Writer renders releases into CHANGELOG.md files.
type Writer struct {
	format     Format
	now        func() time.Time
	attributor Attributor
	repoURL    string
	logger     *log.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the release date source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithAttribution enables author and link suffixes. repoURL is a web base
// such as https://github.com/owner/repo; links are omitted when it is empty.
func WithAttribution(a Attributor, repoURL string) Option {
	return func(w *Writer) {
		w.attributor = a
		w.repoURL = strings.TrimSuffix(repoURL, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates a Writer for format.
func NewWriter(format Format, opts ...Option) *Writer {
	w := &Writer{
		format: format,
		now:    time.Now,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders every release and prepends the sections to the changelog
// files. It returns the files it wrote.
func (w *Writer) Write(root string, releases []Release, entries []entry.Entry) ([]string, error) {
	if len(releases) == 0 {
		return nil, nil
	}
	date := w.now().UTC().Format("2006-01-02")

	if w.format == FormatRoot {
		var sb strings.Builder
		for _, rel := range releases {
			fmt.Fprintf(&sb, "## %s@%s (%s)\n\n", rel.Name, rel.Version, date)
			sb.WriteString(w.body(rel, entries))
		}
		path := filepath.Join(root, FileName)
		if err := Prepend(path, sb.String()); err != nil {
			return nil, err
		}
		w.logger.Debug("updated changelog", "path", path, "releases", len(releases))
		return []string{path}, nil
	}

	paths := make([]string, 0, len(releases))
	for _, rel := range releases {
		section := fmt.Sprintf("## `%s@%s`\n\n", rel.Name, rel.Version) + w.body(rel, entries)
		path := filepath.Join(rel.Path, FileName)
		if err := Prepend(path, section); err != nil {
			return paths, err
		}
		w.logger.Debug("updated changelog", "path", path, "package", rel.Name)
		paths = append(paths, path)
	}
	return paths, nil
}

// Render returns the standalone section for rel, headed by version and date.
func (w *Writer) Render(rel Release, entries []entry.Entry) string {
	date := w.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("## %s (%s)\n\n", rel.Version, date) + w.body(rel, entries)
}

type change struct {
	summary string
	suffix  string
}

var titleCaser = cases.Title(language.English)

// body groups the release's entries under Major, Minor and Patch headings.
func (w *Writer) body(rel Release, entries []entry.Entry) string {
	byID := make(map[string]entry.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	groups := make(map[version.BumpType][]change)
	for _, id := range rel.EntryIDs {
		e, ok := byID[id]
		if !ok {
			continue
		}
		bump, ok := e.BumpFor(rel.Name)
		if !ok {
			continue
		}
		groups[bump] = append(groups[bump], change{
			summary: strings.TrimSpace(e.Summary),
			suffix:  w.suffix(id),
		})
	}

	// Releases caused only by dependency propagation carry no entries.
	if len(groups) == 0 {
		bump := rel.Bump
		if !bump.IsValid() {
			bump = version.BumpPatch
		}
		groups[bump] = []change{{summary: "Updated dependencies"}}
	}

	var sb strings.Builder
	for _, bump := range []version.BumpType{version.BumpMajor, version.BumpMinor, version.BumpPatch} {
		changes := groups[bump]
		if len(changes) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s Changes\n\n", titleCaser.String(bump.String()))
		for _, c := range changes {
			writeChange(&sb, c)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (w *Writer) suffix(id string) string {
	if w.attributor == nil {
		return ""
	}
	attr, ok := w.attributor.Attribute(id)
	if !ok {
		return ""
	}

	var parts []string
	if len(attr.Authors) > 0 {
		handles := make([]string, len(attr.Authors))
		for i, a := range attr.Authors {
			handles[i] = "@" + strings.ReplaceAll(a, " ", "")
		}
		parts = append(parts, "by "+strings.Join(handles, ", "))
	}
	if w.repoURL != "" {
		switch {
		case attr.PR > 0:
			parts = append(parts, fmt.Sprintf("[#%d](%s/pull/%d)", attr.PR, w.repoURL, attr.PR))
		case attr.Commit != "":
			short := attr.ShortCommit()
			parts = append(parts, fmt.Sprintf("[%s](%s/commit/%s)", short, w.repoURL, short))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// writeChange turns summary lines into bullets; existing bullets are kept and
// the attribution suffix goes on the last line.
func writeChange(sb *strings.Builder, c change) {
	lines := strings.Split(c.summary, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		suffix := ""
		if i == len(lines)-1 {
			suffix = c.suffix
		}
		switch {
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"):
			sb.WriteString(line + suffix + "\n")
		case line != "":
			sb.WriteString("- " + line + suffix + "\n")
		}
	}
}

// Prepend inserts section below the "# Changelog" header of path, creating
// the file and header when needed.
func Prepend(path, section string) error {
	const op = "changelog.Prepend"

	var existing string
	if fileutil.Exists(path) {
		data, err := fileutil.ReadFile(path)
		if err != nil {
			return errors.IOWrap(err, op, "failed to read "+path)
		}
		existing = string(data)
	}

	rest := existing
	if after, ok := strings.CutPrefix(existing, header); ok {
		rest = strings.TrimLeft(after, "\n")
	}
	content := header + "\n\n" + section + rest

	if err := fileutil.WriteFile(path, []byte(content)); err != nil {
		return errors.IOWrap(err, op, "failed to write "+path)
	}
	return nil
}
