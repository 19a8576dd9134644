// Package workspace composes a discovered workspace: its root, ecosystem
// adapter, packages and dependency graph.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/changelogs/internal/domain/graph"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
	"github.com/relicta-tech/changelogs/internal/infrastructure/changelog"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

// Workspace is a discovered multi-package source tree.
type Workspace struct {
	root     string
	kind     ecosystem.Kind
	adapter  ecosystem.Adapter
	packages []workspace.Package
	index    map[string]int
	graph    *graph.Graph
}

type options struct {
	kind   ecosystem.Kind
	deps   ecosystem.Deps
	logger *log.Logger
}

// Option configures discovery.
type Option func(*options)

// WithKind restricts detection to one ecosystem.
func WithKind(kind ecosystem.Kind) Option {
	return func(o *options) { o.kind = kind }
}

// WithDeps sets the collaborators handed to the ecosystem adapter.
func WithDeps(deps ecosystem.Deps) Option {
	return func(o *options) { o.deps = deps }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Discover finds the workspace containing start and loads its packages.
func Discover(ctx context.Context, start string, opts ...Option) (*Workspace, error) {
	const op = "workspace.Discover"

	o := options{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.deps.Logger == nil {
		o.deps.Logger = o.logger
	}

	root, kind, err := FindRoot(start, o.kind)
	if err != nil {
		return nil, err
	}

	adapter, err := ecosystem.New(kind, o.deps)
	if err != nil {
		return nil, err
	}

	pkgs, err := adapter.Discover(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, errors.Discovery(op, fmt.Sprintf("no %s packages found under %s", kind, root))
	}

	o.logger.Debug("discovered workspace", "root", root, "ecosystem", kind, "packages", len(pkgs))
	return New(root, adapter, pkgs)
}

// New assembles a workspace from already discovered packages. Package names
// are indexed under the ecosystem's name normalization; names that collide
// after normalization are rejected.
func New(root string, adapter ecosystem.Adapter, pkgs []workspace.Package) (*Workspace, error) {
	sorted := make([]workspace.Package, len(pkgs))
	copy(sorted, pkgs)
	workspace.SortByName(sorted)

	kind := adapter.Kind()
	index := make(map[string]int, len(sorted))
	for i, p := range sorted {
		key := kind.NormalizeName(p.Name)
		if j, dup := index[key]; dup {
			return nil, errors.Discovery("workspace.New",
				fmt.Sprintf("package %s is defined more than once (also as %s)", p.Name, sorted[j].Name))
		}
		index[key] = i
	}

	return &Workspace{
		root:     root,
		kind:     kind,
		adapter:  adapter,
		packages: sorted,
		index:    index,
		graph:    graph.New(sorted),
	}, nil
}

// FindRoot walks upward from start to the workspace root. An ancestor that
// already holds a .changelog directory wins. Otherwise the nearest ancestor
// whose manifest declares workspace members wins over a nearer member
// manifest, and failing both the nearest directory with a marker is used.
// Within one directory Cargo beats Python beats npm. A non-zero kind
// restricts the markers considered.
func FindRoot(start string, kind ecosystem.Kind) (string, ecosystem.Kind, error) {
	const op = "workspace.FindRoot"

	abs, err := filepath.Abs(start)
	if err != nil {
		return "", ecosystem.KindUnknown, errors.IOWrap(err, op, "failed to resolve "+start)
	}

	kinds := ecosystem.AllKinds()
	if kind != ecosystem.KindUnknown {
		kinds = []ecosystem.Kind{kind}
	}

	var (
		nearest       string
		nearestKind   ecosystem.Kind
		workspaceRoot string
		workspaceKind ecosystem.Kind
	)
	for dir := abs; ; {
		if k, ok := markerKind(dir, kinds); ok {
			if fileutil.IsDir(filepath.Join(dir, changelog.DirName)) {
				return dir, k, nil
			}
			if nearest == "" {
				nearest, nearestKind = dir, k
			}
			if workspaceRoot == "" {
				if wk, ok := workspaceKindOf(dir, kinds); ok {
					workspaceRoot, workspaceKind = dir, wk
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	switch {
	case workspaceRoot != "":
		return workspaceRoot, workspaceKind, nil
	case nearest != "":
		return nearest, nearestKind, nil
	}

	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return "", ecosystem.KindUnknown, errors.Discovery(op,
		fmt.Sprintf("no %s workspace found in %s or any parent directory", strings.Join(names, "/"), abs))
}

// workspaceKindOf returns the first kind whose manifest in dir declares
// workspace members.
func workspaceKindOf(dir string, kinds []ecosystem.Kind) (ecosystem.Kind, bool) {
	for _, k := range kinds {
		if k.DeclaresWorkspace(dir) {
			return k, true
		}
	}
	return ecosystem.KindUnknown, false
}

func markerKind(dir string, kinds []ecosystem.Kind) (ecosystem.Kind, bool) {
	for _, k := range kinds {
		for _, marker := range k.Markers() {
			if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && !info.IsDir() {
				return k, true
			}
		}
	}
	return ecosystem.KindUnknown, false
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Kind returns the detected ecosystem.
func (w *Workspace) Kind() ecosystem.Kind {
	return w.kind
}

// Adapter returns the ecosystem adapter.
func (w *Workspace) Adapter() ecosystem.Adapter {
	return w.adapter
}

// ChangelogDir returns <root>/.changelog.
func (w *Workspace) ChangelogDir() string {
	return filepath.Join(w.root, changelog.DirName)
}

// IsInitialized reports whether the .changelog directory exists.
func (w *Workspace) IsInitialized() bool {
	return fileutil.IsDir(w.ChangelogDir())
}

// Store returns the entry store for this workspace.
func (w *Workspace) Store() *changelog.Store {
	return changelog.NewStore(w.ChangelogDir())
}

// Packages returns the members sorted by name.
func (w *Workspace) Packages() []workspace.Package {
	out := make([]workspace.Package, len(w.packages))
	copy(out, w.packages)
	return out
}

// Package looks up a member by name. Any spelling the ecosystem treats as
// equal to the declared name matches; the returned package carries the
// declared name.
func (w *Workspace) Package(name string) (workspace.Package, bool) {
	i, ok := w.index[w.kind.NormalizeName(name)]
	if !ok {
		return workspace.Package{}, false
	}
	return w.packages[i], true
}

// PackageNames returns the member names sorted.
func (w *Workspace) PackageNames() []string {
	return workspace.Names(w.packages)
}

// Graph returns the dependency graph.
func (w *Workspace) Graph() *graph.Graph {
	return w.graph
}
