package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func cargoTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"Cargo.toml":             "[workspace]\nmembers = [\"crates/*\"]\n",
		"crates/core/Cargo.toml": "[package]\nname = \"core\"\nversion = \"0.1.0\"\n",
		"crates/cli/Cargo.toml": "[package]\nname = \"cli\"\nversion = \"0.2.0\"\n\n" +
			"[dependencies]\ncore = { path = \"../core\", version = \"0.1.0\" }\n",
		"crates/app/Cargo.toml": "[package]\nname = \"app\"\nversion = \"1.0.0\"\n\n" +
			"[dependencies]\ncli = { path = \"../cli\" }\n",
	})
}

func TestDiscover_Cargo(t *testing.T) {
	root := cargoTree(t)

	ws, err := Discover(context.Background(), filepath.Join(root, "crates", "cli"))
	require.NoError(t, err)

	assert.Equal(t, ecosystem.KindCargo, ws.Kind())
	assert.Equal(t, []string{"app", "cli", "core"}, ws.PackageNames())
	assert.Equal(t, filepath.Join(ws.Root(), ".changelog"), ws.ChangelogDir())
	assert.False(t, ws.IsInitialized())

	cli, ok := ws.Package("cli")
	require.True(t, ok)
	assert.Equal(t, "0.2.0", cli.Version.String())

	_, ok = ws.Package("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"app", "cli"}, ws.Graph().AllDependents("core"))
	assert.Equal(t, []string{"core"}, ws.Graph().Dependencies("cli"))
}

func TestDiscover_PrefersInitializedAncestor(t *testing.T) {
	root := cargoTree(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".changelog"), 0o755))

	ws, err := Discover(context.Background(), filepath.Join(root, "crates", "core"))
	require.NoError(t, err)
	assert.True(t, ws.IsInitialized())
	assert.Len(t, ws.Packages(), 3)
}

func TestFindRoot(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		start    string
		kind     ecosystem.Kind
		wantDir  string
		wantKind ecosystem.Kind
	}{
		{
			name:     "cargo beats python and npm in one directory",
			files:    map[string]string{"Cargo.toml": "", "pyproject.toml": "", "package.json": "{}"},
			wantKind: ecosystem.KindCargo,
		},
		{
			name:     "python beats npm",
			files:    map[string]string{"setup.cfg": "", "package.json": "{}"},
			wantKind: ecosystem.KindPython,
		},
		{
			name:     "override only counts its markers",
			files:    map[string]string{"Cargo.toml": "", "package.json": "{}"},
			kind:     ecosystem.KindNPM,
			wantKind: ecosystem.KindNPM,
		},
		{
			name:     "walks up from a nested directory",
			files:    map[string]string{"package.json": "{}", "src/lib/index.ts": ""},
			start:    "src/lib",
			wantKind: ecosystem.KindNPM,
		},
		{
			name:     "nearest marker without an initialized ancestor",
			files:    map[string]string{"pyproject.toml": "", "pkgs/a/pyproject.toml": ""},
			start:    "pkgs/a",
			wantDir:  "pkgs/a",
			wantKind: ecosystem.KindPython,
		},
		{
			name: "cargo workspace root wins over a member manifest",
			files: map[string]string{
				"Cargo.toml":          "[workspace]\nmembers = [\"crates/*\"]\n",
				"crates/a/Cargo.toml": "[package]\nname = \"a\"\n",
			},
			start:    "crates/a",
			wantKind: ecosystem.KindCargo,
		},
		{
			name: "uv workspace root wins over a member manifest",
			files: map[string]string{
				"pyproject.toml":        "[tool.uv.workspace]\nmembers = [\"pkgs/*\"]\n",
				"pkgs/a/pyproject.toml": "[project]\nname = \"a\"\n",
			},
			start:    "pkgs/a",
			wantKind: ecosystem.KindPython,
		},
		{
			name: "npm workspaces field wins over a member manifest",
			files: map[string]string{
				"package.json":            `{"private":true,"workspaces":["packages/*"]}`,
				"packages/a/package.json": `{"name":"a"}`,
			},
			start:    "packages/a",
			wantKind: ecosystem.KindNPM,
		},
		{
			name: "pnpm workspace file marks the root",
			files: map[string]string{
				"package.json":            `{"private":true}`,
				"pnpm-workspace.yaml":     "packages:\n  - packages/*\n",
				"packages/a/package.json": `{"name":"a"}`,
			},
			start:    "packages/a",
			wantKind: ecosystem.KindNPM,
		},
		{
			name:     "bare setup.py still marks a python root",
			files:    map[string]string{"setup.py": ""},
			wantKind: ecosystem.KindPython,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeTree(t, tt.files)
			dir, kind, err := FindRoot(filepath.Join(root, filepath.FromSlash(tt.start)), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.wantDir)), dir)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestFindRoot_NoWorkspace(t *testing.T) {
	root := writeTree(t, map[string]string{"README.md": ""})

	_, _, err := FindRoot(root, ecosystem.KindCargo)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDiscovery))
	assert.Contains(t, err.Error(), "no cargo workspace found")
}

func TestNew_RejectsDuplicateNames(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":   `{"name":"root","private":true,"workspaces":["a","b"]}`,
		"a/package.json": `{"name":"dup","version":"1.0.0"}`,
		"b/package.json": `{"name":"dup","version":"2.0.0"}`,
	})

	_, err := Discover(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dup")
}

func pythonTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"pyproject.toml":               "[tool.uv.workspace]\nmembers = [\"packages/*\"]\n",
		"packages/core/pyproject.toml": "[project]\nname = \"My_Pkg\"\nversion = \"1.0.0\"\n",
		"packages/app/pyproject.toml": "[project]\nname = \"app\"\nversion = \"0.1.0\"\n" +
			"dependencies = [\"my.pkg>=1\"]\n",
	})
}

func TestDiscover_PythonNamesMatchNormalized(t *testing.T) {
	ws, err := Discover(context.Background(), pythonTree(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"My_Pkg", "app"}, ws.PackageNames())
	for _, name := range []string{"My_Pkg", "my-pkg", "MY.PKG", "my_pkg-"} {
		p, ok := ws.Package(name)
		require.True(t, ok, name)
		assert.Equal(t, "My_Pkg", p.Name, name)
	}
	_, ok := ws.Package("my-pkg-extra")
	assert.False(t, ok)

	assert.Equal(t, []string{"app"}, ws.Graph().Dependents("My_Pkg"))
}

func TestNew_RejectsNamesEqualAfterNormalization(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pyproject.toml":   "[tool.uv.workspace]\nmembers = [\"a\", \"b\"]\n",
		"a/pyproject.toml": "[project]\nname = \"My_Pkg\"\nversion = \"1.0.0\"\n",
		"b/pyproject.toml": "[project]\nname = \"my.pkg\"\nversion = \"1.0.0\"\n",
	})

	_, err := Discover(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}
