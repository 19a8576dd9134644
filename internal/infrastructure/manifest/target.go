// Package manifest edits version strings inside manifest files without
// disturbing anything else in them.
//
// A Target names one place that holds a version: a key in a TOML document,
// a key in an INI section or the single match of a regular expression. Apply
// rewrites only the bytes of that value; comments, ordering and whitespace
// around it are left as they were.
package manifest

import (
	"fmt"
	"strings"
)

// Target is a location of a version string inside a file.
// The set of implementations is closed: TableKey, IniKey and Pattern.
type Target interface {
	// Path returns the file the target lives in.
	Path() string
	// String describes the target for logs and error messages.
	String() string

	read(data []byte) (string, error)
	apply(data []byte, value string) ([]byte, error)
}

// TableKey addresses a string value in a TOML document by its key path,
// e.g. ["package", "version"] or ["tool", "poetry", "version"].
type TableKey struct {
	File string
	Key  []string
}

// Path implements Target.
func (t TableKey) Path() string { return t.File }

func (t TableKey) String() string {
	return fmt.Sprintf("%s:%s", t.File, strings.Join(t.Key, "."))
}

// IniKey addresses a key inside a section of an INI file such as setup.cfg.
type IniKey struct {
	File    string
	Section string
	Key     string
}

// Path implements Target.
func (t IniKey) Path() string { return t.File }

func (t IniKey) String() string {
	return fmt.Sprintf("%s:[%s].%s", t.File, t.Section, t.Key)
}

// Pattern addresses the only match of Regexp in File. When the expression has
// a capture group, group 1 is the version; otherwise the whole match is.
type Pattern struct {
	File   string
	Regexp string
}

// Path implements Target.
func (t Pattern) Path() string { return t.File }

func (t Pattern) String() string {
	return fmt.Sprintf("%s:/%s/", t.File, t.Regexp)
}
