// Package changelog stores pending changelog entries under .changelog/ and
// renders released entries into CHANGELOG.md files.
package changelog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
)

const (
	// DirName is the workspace-relative directory holding entries.
	DirName = ".changelog"

	entryExt   = ".md"
	readmeName = "README"
)

// Store reads and writes entry files in one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, usually <root>/.changelog.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the entry directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+entryExt)
}

// Exists reports whether an entry file for id exists.
func (s *Store) Exists(id string) bool {
	return fileutil.Exists(s.Path(id))
}

// NewID returns an id not yet used in the directory.
func (s *Store) NewID() string {
	return entry.GenerateUniqueID(s.Exists)
}

// ReadAll parses every entry file sorted by id. README.md is skipped and a
// missing directory yields no entries. The first unparseable file aborts.
func (s *Store) ReadAll() ([]entry.Entry, error) {
	const op = "changelog.ReadAll"

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOWrap(err, op, "failed to read "+s.dir)
	}

	ids := make([]string, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || filepath.Ext(name) != entryExt {
			continue
		}
		id := strings.TrimSuffix(name, entryExt)
		if strings.EqualFold(id, readmeName) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]entry.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.Read(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Read parses the entry stored under id.
func (s *Store) Read(id string) (entry.Entry, error) {
	data, err := fileutil.ReadFile(s.Path(id))
	if err != nil {
		return entry.Entry{}, errors.IOWrap(err, "changelog.Read", "failed to read entry "+id)
	}
	return entry.Parse(id, string(data))
}

// Write stores e as <dir>/<e.ID>.md and returns the path written.
func (s *Store) Write(e entry.Entry) (string, error) {
	const op = "changelog.Write"

	if e.ID == "" {
		return "", errors.Validation(op, "entry has no id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.IOWrap(err, op, "failed to create "+s.dir)
	}
	path := s.Path(e.ID)
	if err := fileutil.WriteFile(path, []byte(entry.Serialize(e))); err != nil {
		return "", errors.IOWrap(err, op, "failed to write "+path)
	}
	return path, nil
}

// Delete removes the entry file for id. A missing file is not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return errors.IOWrap(err, "changelog.Delete", "failed to delete entry "+id)
	}
	return nil
}
