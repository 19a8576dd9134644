package ecosystem

import (
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"

	"github.com/relicta-tech/changelogs/internal/fileutil"
)

// DeclaresWorkspace reports whether dir holds a manifest that lists
// workspace members: a Cargo [workspace] table, a [tool.uv.workspace] table,
// a package.json "workspaces" field or a pnpm-workspace.yaml file.
// Unreadable manifests declare nothing.
func (k Kind) DeclaresWorkspace(dir string) bool {
	switch k {
	case KindCargo:
		doc, ok := readTOMLTable(filepath.Join(dir, "Cargo.toml"))
		return ok && hasTable(doc, "workspace")
	case KindPython:
		doc, ok := readTOMLTable(filepath.Join(dir, "pyproject.toml"))
		return ok && hasTable(doc, "tool", "uv", "workspace")
	case KindNPM:
		if fileutil.Exists(filepath.Join(dir, "pnpm-workspace.yaml")) {
			return true
		}
		data, err := fileutil.ReadFile(filepath.Join(dir, "package.json"))
		return err == nil && gjson.GetBytes(data, "workspaces").Exists()
	default:
		return false
	}
}

func readTOMLTable(path string) (map[string]any, bool) {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func hasTable(doc map[string]any, keys ...string) bool {
	cur := doc
	for _, key := range keys {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	return true
}
