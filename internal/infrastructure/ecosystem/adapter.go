// Package ecosystem adapts Cargo, Python and npm workspaces to a common
// contract: discover packages, read and write their versions, rewrite
// intra-workspace dependency requirements, probe the registry and publish.
package ecosystem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/manifest"
)

// Kind identifies a supported ecosystem.
type Kind uint8

const (
	// KindUnknown is the zero value; no adapter exists for it.
	KindUnknown Kind = iota
	// KindCargo is a Rust crate or Cargo workspace.
	KindCargo
	// KindPython is a pyproject.toml / setup.cfg project or uv workspace.
	KindPython
	// KindNPM is a package.json project or npm/yarn/pnpm/bun workspace.
	KindNPM
)

// AllKinds returns the supported kinds in detection precedence order.
func AllKinds() []Kind {
	return []Kind{KindCargo, KindPython, KindNPM}
}

func (k Kind) String() string {
	switch k {
	case KindCargo:
		return "cargo"
	case KindPython:
		return "python"
	case KindNPM:
		return "npm"
	default:
		return "unknown"
	}
}

// ParseKind parses an ecosystem name. Common aliases are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cargo", "rust":
		return KindCargo, nil
	case "python", "pypi", "uv", "poetry":
		return KindPython, nil
	case "npm", "node", "typescript", "javascript", "pnpm", "yarn", "bun":
		return KindNPM, nil
	default:
		return KindUnknown, fmt.Errorf("unknown ecosystem %q (expected cargo, python or npm)", s)
	}
}

// Markers returns the root files that identify a workspace of this kind.
func (k Kind) Markers() []string {
	switch k {
	case KindCargo:
		return []string{"Cargo.toml"}
	case KindPython:
		return []string{"pyproject.toml", "setup.cfg", "setup.py"}
	case KindNPM:
		return []string{"package.json"}
	default:
		return nil
	}
}

// NormalizeName returns the form under which the ecosystem treats package
// names as equal. Python names compare after PEP 503 normalization; Cargo
// and npm names compare as written.
func (k Kind) NormalizeName(name string) string {
	if k == KindPython {
		return NormalizePythonName(name)
	}
	return strings.TrimSpace(name)
}

// Registry returns the display name of the public registry.
func (k Kind) Registry() string {
	switch k {
	case KindCargo:
		return "crates.io"
	case KindPython:
		return "PyPI"
	case KindNPM:
		return "npm"
	default:
		return "registry"
	}
}

// PublishStatus is the outcome of a publish attempt.
type PublishStatus uint8

const (
	// PublishSuccess means the package is now on the registry, including the
	// case where the registry already had this exact version.
	PublishSuccess PublishStatus = iota
	// PublishSkipped means no credential was available; nothing was run.
	PublishSkipped
	// PublishFailed means the ecosystem tool ran and failed.
	PublishFailed
)

func (s PublishStatus) String() string {
	switch s {
	case PublishSuccess:
		return "success"
	case PublishSkipped:
		return "skipped"
	case PublishFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PublishOptions controls a publish.
type PublishOptions struct {
	DryRun bool
	// Registry is an ecosystem-specific registry name, URL or dist-tag.
	Registry string
}

// PublishResult describes a publish outcome.
type PublishResult struct {
	Status  PublishStatus
	Message string
	Output  string
}

// Adapter is implemented once per ecosystem.
type Adapter interface {
	Kind() Kind
	// Discover lists the packages of the workspace rooted at root.
	Discover(ctx context.Context, root string) ([]workspace.Package, error)
	// VersionTargets lists every place that holds pkg's version. It may be
	// empty: npm edits package.json structurally in WriteVersion and exposes
	// no targets, so callers must go through WriteVersion.
	VersionTargets(pkg workspace.Package) []manifest.Target
	ReadVersion(pkg workspace.Package) (version.SemanticVersion, error)
	WriteVersion(pkg workspace.Package, v version.SemanticVersion) error
	// UpdateDependencyVersion points pkg's requirement on dep at v. It
	// reports whether anything was rewritten.
	UpdateDependencyVersion(pkg workspace.Package, dep string, v version.SemanticVersion) (bool, error)
	IsPublished(ctx context.Context, pkg workspace.Package) (bool, error)
	Publish(ctx context.Context, pkg workspace.Package, opts PublishOptions) (PublishResult, error)
}

// WorkspaceDependencyUpdater is implemented by adapters whose root manifest
// pins workspace members separately from the members themselves.
type WorkspaceDependencyUpdater interface {
	UpdateWorkspaceDependency(root, dep string, v version.SemanticVersion) (bool, error)
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Runner Runner
	HTTP   *http.Client
	Logger *log.Logger
	// Getenv looks up credentials; defaults to os.Getenv.
	Getenv func(string) string

	// PythonVersionFile is a path, relative to each Python project, of a
	// module whose __version__ mirrors the manifest version.
	PythonVersionFile string

	// Registry base URLs, overridable for tests and mirrors.
	CratesURL string
	PyPIURL   string
	NPMURL    string
}

const (
	defaultCratesURL = "https://crates.io"
	defaultPyPIURL   = "https://pypi.org"
	defaultNPMURL    = "https://registry.npmjs.org"
)

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard)
	}
	if d.Runner == nil {
		d.Runner = NewExecRunner(d.Logger)
	}
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.CratesURL == "" {
		d.CratesURL = defaultCratesURL
	}
	if d.PyPIURL == "" {
		d.PyPIURL = defaultPyPIURL
	}
	if d.NPMURL == "" {
		d.NPMURL = defaultNPMURL
	}
	return d
}

// New returns the adapter for kind.
func New(kind Kind, deps Deps) (Adapter, error) {
	deps = deps.withDefaults()
	reg := newRegistryClient(deps.HTTP, deps.Logger)

	switch kind {
	case KindCargo:
		return &cargoAdapter{deps: deps, registry: reg}, nil
	case KindPython:
		return &pythonAdapter{deps: deps, registry: reg}, nil
	case KindNPM:
		return &npmAdapter{deps: deps, registry: reg}, nil
	default:
		return nil, errors.Validation("ecosystem.New", fmt.Sprintf("unsupported ecosystem: %s", kind))
	}
}

func hasEnv(getenv func(string) string, keys ...string) bool {
	for _, k := range keys {
		if getenv(k) != "" {
			return true
		}
	}
	return false
}
