package ecosystem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/domain/workspace"
)

// fakeRunner records commands and answers from a per-tool table.
type fakeRunner struct {
	calls   []Command
	outputs map[string]Output
	errs    map[string]error
	// hook runs before the response is returned, e.g. to create build output.
	hook func(Command)
}

func (f *fakeRunner) Run(_ context.Context, c Command) (Output, error) {
	f.calls = append(f.calls, c)
	if f.hook != nil {
		f.hook(c)
	}
	return f.outputs[c.Name], f.errs[c.Name]
}

// writeTree creates files under a fresh temp dir and returns its path.
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func newAdapter(t *testing.T, kind Kind, deps Deps) Adapter {
	t.Helper()
	if deps.Getenv == nil {
		deps.Getenv = env(nil)
	}
	a, err := New(kind, deps)
	require.NoError(t, err)
	return a
}

func findPackage(t *testing.T, pkgs []workspace.Package, name string) workspace.Package {
	t.Helper()
	for _, p := range pkgs {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("package %q not found in %v", name, workspace.Names(pkgs))
	return workspace.Package{}
}

type route struct {
	status int
	body   string
}

// registryServer serves fixed status codes and bodies by escaped request path.
func registryServer(t *testing.T, routes map[string]route) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := routes[r.URL.EscapedPath()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(route.status)
		_, _ = w.Write([]byte(route.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
