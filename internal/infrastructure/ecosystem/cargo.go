package ecosystem

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
	"github.com/relicta-tech/changelogs/internal/infrastructure/manifest"
)

type cargoManifest struct {
	Package           *cargoPackage             `toml:"package"`
	Workspace         *cargoWorkspace           `toml:"workspace"`
	Dependencies      map[string]any            `toml:"dependencies"`
	DevDependencies   map[string]any            `toml:"dev-dependencies"`
	BuildDependencies map[string]any            `toml:"build-dependencies"`
	Target            map[string]cargoTargetDeps `toml:"target"`
}

type cargoPackage struct {
	Name    string `toml:"name"`
	Version any    `toml:"version"`
	Publish any    `toml:"publish"`
}

type cargoWorkspace struct {
	Members      []string       `toml:"members"`
	Exclude      []string       `toml:"exclude"`
	Dependencies map[string]any `toml:"dependencies"`
}

type cargoTargetDeps struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

type cargoSection struct {
	path []string
	deps map[string]any
}

// sections lists every dependency table of the manifest with its key path.
func (m *cargoManifest) sections() []cargoSection {
	out := []cargoSection{
		{[]string{"dependencies"}, m.Dependencies},
		{[]string{"dev-dependencies"}, m.DevDependencies},
		{[]string{"build-dependencies"}, m.BuildDependencies},
	}
	cfgs := make([]string, 0, len(m.Target))
	for cfg := range m.Target {
		cfgs = append(cfgs, cfg)
	}
	sort.Strings(cfgs)
	for _, cfg := range cfgs {
		t := m.Target[cfg]
		out = append(out,
			cargoSection{[]string{"target", cfg, "dependencies"}, t.Dependencies},
			cargoSection{[]string{"target", cfg, "dev-dependencies"}, t.DevDependencies},
			cargoSection{[]string{"target", cfg, "build-dependencies"}, t.BuildDependencies},
		)
	}
	return out
}

type cargoAdapter struct {
	deps     Deps
	registry *registryClient
}

func (a *cargoAdapter) Kind() Kind { return KindCargo }

func readCargoManifest(path string) (*cargoManifest, error) {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, errors.IOWrap(err, "cargo.readManifest", "failed to read "+path)
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.DiscoveryWrap(err, "cargo.readManifest", "invalid "+path)
	}
	return &m, nil
}

// Discover reads [workspace].members (minus exclude) and the root
// [package], when there is one.
func (a *cargoAdapter) Discover(_ context.Context, root string) ([]workspace.Package, error) {
	const op = "cargo.Discover"

	rootManifest := filepath.Join(root, "Cargo.toml")
	m, err := readCargoManifest(rootManifest)
	if err != nil {
		return nil, err
	}
	if m.Package == nil && m.Workspace == nil {
		return nil, errors.Discovery(op, rootManifest+" has neither [package] nor [workspace]")
	}

	var dirs []string
	if m.Package != nil {
		dirs = append(dirs, root)
	}
	if m.Workspace != nil {
		members, err := expandMembers(root, m.Workspace.Members, m.Workspace.Exclude, "Cargo.toml")
		if err != nil {
			return nil, errors.DiscoveryWrap(err, op, "invalid workspace member pattern")
		}
		for _, d := range members {
			if d != root {
				dirs = append(dirs, d)
			}
		}
	}

	pkgs := make([]workspace.Package, 0, len(dirs))
	for _, dir := range dirs {
		pkg, err := a.loadCrate(dir)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	a.deps.Logger.Debug("discovered crates", "root", root, "count", len(pkgs))
	return keepWorkspaceDeps(KindCargo, pkgs), nil
}

func (a *cargoAdapter) loadCrate(dir string) (workspace.Package, error) {
	const op = "cargo.Discover"

	path := filepath.Join(dir, "Cargo.toml")
	m, err := readCargoManifest(path)
	if err != nil {
		return workspace.Package{}, err
	}
	if m.Package == nil {
		return workspace.Package{}, errors.Discovery(op, path+" has no [package] table")
	}
	if m.Package.Name == "" {
		return workspace.Package{}, errors.Discovery(op, "missing package name in "+path)
	}

	var ver version.SemanticVersion
	switch v := m.Package.Version.(type) {
	case string:
		ver, err = version.Parse(v)
		if err != nil {
			return workspace.Package{}, errors.DiscoveryWrap(err, op, fmt.Sprintf("invalid version %q in %s", v, path))
		}
	case map[string]any:
		return workspace.Package{}, errors.Discovery(op,
			fmt.Sprintf("version is inherited from the workspace in %s (version.workspace = true is not supported)", path))
	case nil:
		return workspace.Package{}, errors.Discovery(op, "missing package version in "+path)
	default:
		return workspace.Package{}, errors.Discovery(op, "package version is not a string in "+path)
	}

	var deps []string
	for _, sec := range m.sections() {
		for key, spec := range sec.deps {
			deps = append(deps, cargoDepName(key, spec))
		}
	}

	return workspace.Package{
		Name:         m.Package.Name,
		Version:      ver,
		Path:         dir,
		ManifestPath: path,
		Dependencies: deps,
		Private:      cargoUnpublishable(m.Package.Publish),
	}, nil
}

// cargoDepName honours the `package = "real-name"` rename key.
func cargoDepName(key string, spec any) string {
	if t, ok := spec.(map[string]any); ok {
		if p, ok := t["package"].(string); ok && p != "" {
			return p
		}
	}
	return key
}

func cargoUnpublishable(publish any) bool {
	switch p := publish.(type) {
	case bool:
		return !p
	case []any:
		return len(p) == 0
	default:
		return false
	}
}

func (a *cargoAdapter) VersionTargets(pkg workspace.Package) []manifest.Target {
	return []manifest.Target{
		manifest.TableKey{File: pkg.ManifestPath, Key: []string{"package", "version"}},
	}
}

func (a *cargoAdapter) ReadVersion(pkg workspace.Package) (version.SemanticVersion, error) {
	raw, err := manifest.Read(a.VersionTargets(pkg)[0])
	if err != nil {
		return version.Zero, err
	}
	v, err := version.Parse(raw)
	if err != nil {
		return version.Zero, errors.VersionWrap(err, "cargo.ReadVersion", "invalid version in "+pkg.ManifestPath)
	}
	return v, nil
}

func (a *cargoAdapter) WriteVersion(pkg workspace.Package, v version.SemanticVersion) error {
	return manifest.ApplyAll(a.VersionTargets(pkg), v.String())
}

// UpdateDependencyVersion rewrites the version key of every dependency table
// naming dep. Path-only and git dependencies carry no version and are left
// alone.
func (a *cargoAdapter) UpdateDependencyVersion(pkg workspace.Package, dep string, v version.SemanticVersion) (bool, error) {
	m, err := readCargoManifest(pkg.ManifestPath)
	if err != nil {
		return false, err
	}
	sections := m.sections()
	if m.Workspace != nil {
		sections = append(sections, cargoSection{[]string{"workspace", "dependencies"}, m.Workspace.Dependencies})
	}
	return rewriteCargoDeps(pkg.ManifestPath, sections, dep, v)
}

// UpdateWorkspaceDependency rewrites [workspace.dependencies] in the root
// manifest.
func (a *cargoAdapter) UpdateWorkspaceDependency(root, dep string, v version.SemanticVersion) (bool, error) {
	path := filepath.Join(root, "Cargo.toml")
	m, err := readCargoManifest(path)
	if err != nil {
		return false, err
	}
	if m.Workspace == nil {
		return false, nil
	}
	return rewriteCargoDeps(path, []cargoSection{{[]string{"workspace", "dependencies"}, m.Workspace.Dependencies}}, dep, v)
}

func rewriteCargoDeps(file string, sections []cargoSection, dep string, v version.SemanticVersion) (bool, error) {
	changed := false
	for _, sec := range sections {
		keys := make([]string, 0, len(sec.deps))
		for k := range sec.deps {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			spec := sec.deps[key]
			if cargoDepName(key, spec) != dep {
				continue
			}
			table, ok := spec.(map[string]any)
			if !ok {
				continue
			}
			old, ok := table["version"].(string)
			if !ok {
				continue
			}
			req := rewriteRequirement(old, v)
			if req == old {
				continue
			}
			target := manifest.TableKey{File: file, Key: append(append([]string{}, sec.path...), key, "version")}
			if err := manifest.Apply(target, req); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	return changed, nil
}

var requirementOperator = regexp.MustCompile(`^\s*(\^|~|=|>=|<=|>|<)?\s*`)

// rewriteRequirement keeps a single leading operator such as ^, ~ or = and
// replaces the version after it. Compound requirements become exact.
func rewriteRequirement(old string, v version.SemanticVersion) string {
	if strings.Contains(old, ",") {
		return v.String()
	}
	op := requirementOperator.FindStringSubmatch(old)[1]
	return op + v.String()
}

func (a *cargoAdapter) IsPublished(ctx context.Context, pkg workspace.Package) (bool, error) {
	u := fmt.Sprintf("%s/api/v1/crates/%s/%s",
		strings.TrimSuffix(a.deps.CratesURL, "/"), url.PathEscape(pkg.Name), url.PathEscape(pkg.Version.String()))
	ok, _, err := a.registry.exists(ctx, u)
	return ok, err
}

func (a *cargoAdapter) Publish(ctx context.Context, pkg workspace.Package, opts PublishOptions) (PublishResult, error) {
	if pkg.Private {
		return PublishResult{Status: PublishSkipped, Message: "publish = false"}, nil
	}

	tokenVars := []string{"CARGO_REGISTRY_TOKEN"}
	if opts.Registry != "" {
		name := strings.ToUpper(strings.ReplaceAll(opts.Registry, "-", "_"))
		tokenVars = append(tokenVars, "CARGO_REGISTRIES_"+name+"_TOKEN")
	}
	if !opts.DryRun && !hasEnv(a.deps.Getenv, tokenVars...) {
		return skipped(KindCargo), nil
	}

	cmd := Command{
		Name: "cargo",
		Args: []string{"publish", "--package", pkg.Name, "--no-verify", "--allow-dirty"},
		Dir:  pkg.Path,
	}
	if opts.Registry != "" {
		cmd.Args = append(cmd.Args, "--registry", opts.Registry)
	}
	if opts.DryRun {
		cmd.Args = append(cmd.Args, "--dry-run")
	}

	out, err := a.deps.Runner.Run(ctx, cmd)
	return publishOutcome(ctx, KindCargo, cmd, out, err)
}

// keepWorkspaceDeps restricts each package's dependencies to workspace
// members, deduplicated and sorted. Dependencies are matched under kind's
// name normalization and recorded by the member's declared name.
func keepWorkspaceDeps(kind Kind, pkgs []workspace.Package) []workspace.Package {
	names := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		names[kind.NormalizeName(p.Name)] = p.Name
	}
	for i := range pkgs {
		seen := make(map[string]bool)
		deps := []string{}
		for _, d := range pkgs[i].Dependencies {
			name, ok := names[kind.NormalizeName(d)]
			if ok && name != pkgs[i].Name && !seen[name] {
				seen[name] = true
				deps = append(deps, name)
			}
		}
		sort.Strings(deps)
		pkgs[i].Dependencies = deps
	}
	workspace.SortByName(pkgs)
	return pkgs
}
