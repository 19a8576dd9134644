package ecosystem

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
	"github.com/relicta-tech/changelogs/internal/infrastructure/manifest"
)

var npmDependencySections = []string{
	"dependencies",
	"devDependencies",
	"peerDependencies",
	"optionalDependencies",
}

// PackageManager is the npm-compatible client used to publish.
type PackageManager string

const (
	PackageManagerNPM  PackageManager = "npm"
	PackageManagerPNPM PackageManager = "pnpm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerBun  PackageManager = "bun"
)

var lockfiles = []struct {
	file string
	pm   PackageManager
}{
	{"bun.lockb", PackageManagerBun},
	{"bun.lock", PackageManagerBun},
	{"pnpm-lock.yaml", PackageManagerPNPM},
	{"yarn.lock", PackageManagerYarn},
	{"package-lock.json", PackageManagerNPM},
}

// DetectPackageManager walks up from dir and returns the manager owning the
// first lockfile found; npm when there is none.
func DetectPackageManager(dir string) PackageManager {
	for {
		for _, lf := range lockfiles {
			if fileutil.Exists(filepath.Join(dir, lf.file)) {
				return lf.pm
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return PackageManagerNPM
		}
		dir = parent
	}
}

type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

type npmAdapter struct {
	deps     Deps
	registry *registryClient
}

func (a *npmAdapter) Kind() Kind { return KindNPM }

func readPackageJSON(path string) ([]byte, error) {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, errors.IOWrap(err, "npm.readPackageJSON", "failed to read "+path)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.Discovery("npm.readPackageJSON", "invalid JSON in "+path)
	}
	return data, nil
}

// workspacePatterns returns the member globs of the workspace rooted at
// root. pnpm-workspace.yaml wins over package.json "workspaces".
func workspacePatterns(root string, rootJSON []byte) ([]string, error) {
	pnpmPath := filepath.Join(root, "pnpm-workspace.yaml")
	if fileutil.Exists(pnpmPath) {
		data, err := fileutil.ReadFile(pnpmPath)
		if err != nil {
			return nil, errors.IOWrap(err, "npm.workspacePatterns", "failed to read "+pnpmPath)
		}
		var ws pnpmWorkspace
		if err := yaml.Unmarshal(data, &ws); err != nil {
			return nil, errors.DiscoveryWrap(err, "npm.workspacePatterns", "invalid "+pnpmPath)
		}
		return ws.Packages, nil
	}

	ws := gjson.GetBytes(rootJSON, "workspaces")
	if ws.IsObject() {
		ws = ws.Get("packages")
	}
	var patterns []string
	for _, p := range ws.Array() {
		patterns = append(patterns, p.String())
	}
	return patterns, nil
}

// Discover expands the workspace member globs, or treats the root
// package.json as a single package when there are none.
func (a *npmAdapter) Discover(_ context.Context, root string) ([]workspace.Package, error) {
	const op = "npm.Discover"

	rootJSON, err := readPackageJSON(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	patterns, err := workspacePatterns(root, rootJSON)
	if err != nil {
		return nil, err
	}

	if len(patterns) == 0 {
		pkg, ok, err := a.loadPackage(root, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Discovery(op, "no publishable package in "+root)
		}
		return []workspace.Package{pkg}, nil
	}

	includes, excludes := splitNegations(patterns)
	dirs, err := expandMembers(root, includes, excludes, "package.json")
	if err != nil {
		return nil, errors.DiscoveryWrap(err, op, "invalid workspace pattern")
	}

	pkgs := make([]workspace.Package, 0, len(dirs))
	for _, dir := range dirs {
		pkg, ok, err := a.loadPackage(dir, false)
		if err != nil {
			return nil, err
		}
		if ok {
			pkgs = append(pkgs, pkg)
		}
	}
	a.deps.Logger.Debug("discovered npm packages", "root", root, "count", len(pkgs))
	return keepWorkspaceDeps(KindNPM, pkgs), nil
}

// loadPackage reads dir/package.json. Private members without a version
// are tooling-only and are skipped.
func (a *npmAdapter) loadPackage(dir string, single bool) (workspace.Package, bool, error) {
	const op = "npm.Discover"

	path := filepath.Join(dir, "package.json")
	data, err := readPackageJSON(path)
	if err != nil {
		return workspace.Package{}, false, err
	}

	name := gjson.GetBytes(data, "name").String()
	if name == "" {
		return workspace.Package{}, false, errors.Discovery(op, "missing \"name\" in "+path)
	}
	private := gjson.GetBytes(data, "private").Bool()

	raw := gjson.GetBytes(data, "version")
	if !raw.Exists() {
		if private && !single {
			a.deps.Logger.Debug("skipping private package without version", "name", name)
			return workspace.Package{}, false, nil
		}
		return workspace.Package{}, false, errors.Discovery(op, "missing \"version\" in "+path)
	}
	ver, err := version.ParseLenient(raw.String())
	if err != nil {
		return workspace.Package{}, false, errors.DiscoveryWrap(err, op, fmt.Sprintf("invalid version %q in %s", raw.String(), path))
	}

	var deps []string
	for _, section := range npmDependencySections {
		gjson.GetBytes(data, section).ForEach(func(key, _ gjson.Result) bool {
			deps = append(deps, key.String())
			return true
		})
	}

	return workspace.Package{
		Name:         name,
		Version:      ver,
		Path:         dir,
		ManifestPath: path,
		Dependencies: deps,
		Private:      private,
	}, true, nil
}

// VersionTargets is always empty: WriteVersion edits package.json
// structurally with sjson rather than through a manifest.Target.
func (a *npmAdapter) VersionTargets(workspace.Package) []manifest.Target {
	return nil
}

func (a *npmAdapter) ReadVersion(pkg workspace.Package) (version.SemanticVersion, error) {
	data, err := readPackageJSON(pkg.ManifestPath)
	if err != nil {
		return version.Zero, err
	}
	raw := gjson.GetBytes(data, "version")
	if !raw.Exists() {
		return version.Zero, errors.Version("npm.ReadVersion", "missing \"version\" in "+pkg.ManifestPath)
	}
	v, err := version.ParseLenient(raw.String())
	if err != nil {
		return version.Zero, errors.VersionWrap(err, "npm.ReadVersion", "invalid version in "+pkg.ManifestPath)
	}
	return v, nil
}

// WriteVersion replaces the top-level "version" value in place, keeping key
// order and indentation.
func (a *npmAdapter) WriteVersion(pkg workspace.Package, v version.SemanticVersion) error {
	const op = "npm.WriteVersion"

	data, err := readPackageJSON(pkg.ManifestPath)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(data, "version").Exists() {
		return errors.Manifest(op, "missing \"version\" in "+pkg.ManifestPath)
	}
	out, err := sjson.SetBytes(data, "version", v.String())
	if err != nil {
		return errors.ManifestWrap(err, op, pkg.ManifestPath)
	}
	return writeIfChanged(pkg.ManifestPath, data, out, op)
}

// UpdateDependencyVersion rewrites dep's range in every dependency section,
// keeping its prefix. Protocol and tag specs are left alone.
func (a *npmAdapter) UpdateDependencyVersion(pkg workspace.Package, dep string, v version.SemanticVersion) (bool, error) {
	const op = "npm.UpdateDependencyVersion"

	data, err := readPackageJSON(pkg.ManifestPath)
	if err != nil {
		return false, err
	}

	out := data
	for _, section := range npmDependencySections {
		path := section + "." + gjson.Escape(dep)
		cur := gjson.GetBytes(out, path)
		if !cur.Exists() || cur.Type != gjson.String {
			continue
		}
		next, ok := rewriteNPMRange(cur.String(), v)
		if !ok || next == cur.String() {
			continue
		}
		out, err = sjson.SetBytes(out, path, next)
		if err != nil {
			return false, errors.ManifestWrap(err, op, pkg.ManifestPath)
		}
	}

	if bytes.Equal(out, data) {
		return false, nil
	}
	if err := writeIfChanged(pkg.ManifestPath, data, out, op); err != nil {
		return false, err
	}
	return true, nil
}

var npmRange = regexp.MustCompile(`^(\^|~|>=|=)?(\s*)v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)$`)

// rewriteNPMRange points a single-version range at v. It reports false for
// specs it does not own: workspace:*, workspace:^, workspace:~, file:,
// link:, URLs, git specs, aliases, tags and compound ranges.
func rewriteNPMRange(spec string, v version.SemanticVersion) (string, bool) {
	if rest, ok := strings.CutPrefix(spec, "workspace:"); ok {
		switch rest {
		case "*", "^", "~", "":
			return "", false
		}
		next, ok := rewriteNPMRange(rest, v)
		if !ok {
			return "", false
		}
		return "workspace:" + next, true
	}

	m := npmRange.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return "", false
	}
	return m[1] + m[2] + v.String(), true
}

func writeIfChanged(path string, before, after []byte, op string) error {
	if bytes.Equal(before, after) {
		return nil
	}
	if err := fileutil.WriteFile(path, after); err != nil {
		return errors.IOWrap(err, op, "failed to write "+path)
	}
	return nil
}

// IsPublished asks the registry for the exact version document.
func (a *npmAdapter) IsPublished(ctx context.Context, pkg workspace.Package) (bool, error) {
	name := strings.ReplaceAll(pkg.Name, "/", "%2F")
	u := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(a.deps.NPMURL, "/"), name, pkg.Version.String())
	ok, _, err := a.registry.exists(ctx, u)
	return ok, err
}

func (a *npmAdapter) Publish(ctx context.Context, pkg workspace.Package, opts PublishOptions) (PublishResult, error) {
	if pkg.Private {
		return PublishResult{Status: PublishSkipped, Message: "private package"}, nil
	}
	if !opts.DryRun && !a.hasCredentials(pkg.Path) {
		return skipped(KindNPM), nil
	}

	pm := DetectPackageManager(pkg.Path)
	cmd := publishCommand(pm, pkg, opts)
	out, err := a.deps.Runner.Run(ctx, cmd)
	return publishOutcome(ctx, KindNPM, cmd, out, err)
}

func publishCommand(pm PackageManager, pkg workspace.Package, opts PublishOptions) Command {
	cmd := Command{Name: string(pm), Dir: pkg.Path}
	switch pm {
	case PackageManagerYarn:
		cmd.Args = []string{"npm", "publish"}
	case PackageManagerPNPM:
		cmd.Args = []string{"publish", "--no-git-checks"}
	default:
		cmd.Args = []string{"publish"}
	}
	if strings.HasPrefix(pkg.Name, "@") {
		cmd.Args = append(cmd.Args, "--access", "public")
	}
	if opts.Registry != "" {
		cmd.Args = append(cmd.Args, "--tag", opts.Registry)
	}
	if opts.DryRun {
		cmd.Args = append(cmd.Args, "--dry-run")
	}
	return cmd
}

// hasCredentials reports whether an npm token is in the environment or an
// .npmrc between dir and the filesystem root (or in $HOME) carries auth.
func (a *npmAdapter) hasCredentials(dir string) bool {
	if hasEnv(a.deps.Getenv, "NPM_TOKEN", "NODE_AUTH_TOKEN") {
		return true
	}
	candidates := []string{}
	for d := dir; ; {
		candidates = append(candidates, filepath.Join(d, ".npmrc"))
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if home := a.deps.Getenv("HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, ".npmrc"))
	}
	for _, c := range candidates {
		if npmrcHasAuth(c) {
			return true
		}
	}
	return false
}

func npmrcHasAuth(path string) bool {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.Contains(line, "_authToken") || strings.Contains(line, "_auth=") || strings.Contains(line, "_auth =") {
			return true
		}
	}
	return false
}
