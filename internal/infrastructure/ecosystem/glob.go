package ecosystem

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// expandMembers resolves workspace member globs relative to root and returns
// the absolute directories that contain marker and match no exclude pattern.
func expandMembers(root string, includes, excludes []string, marker string) ([]string, error) {
	fsys := os.DirFS(root)

	seen := make(map[string]bool)
	var dirs []string
	for _, pattern := range includes {
		pattern = cleanPattern(pattern)
		if pattern == "" {
			continue
		}

		var matches []string
		if strings.ContainsAny(pattern, "*?[{") {
			m, err := doublestar.Glob(fsys, pattern)
			if err != nil {
				return nil, err
			}
			matches = m
		} else {
			matches = []string{pattern}
		}

		for _, rel := range matches {
			if seen[rel] || excluded(rel, excludes) {
				continue
			}
			dir := filepath.Join(root, filepath.FromSlash(rel))
			if _, err := os.Stat(filepath.Join(dir, marker)); err != nil {
				continue
			}
			seen[rel] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func excluded(rel string, excludes []string) bool {
	for _, ex := range excludes {
		ex = cleanPattern(ex)
		if ex == "" {
			continue
		}
		if ok, _ := doublestar.Match(ex, rel); ok {
			return true
		}
		if strings.HasPrefix(rel, ex+"/") {
			return true
		}
	}
	return false
}

func cleanPattern(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return path.Clean(p)
}

// splitNegations separates npm/pnpm style "!pattern" entries.
func splitNegations(patterns []string) (includes, excludes []string) {
	for _, p := range patterns {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(p), "!"); ok {
			excludes = append(excludes, rest)
			continue
		}
		includes = append(includes, p)
	}
	return includes, excludes
}
