package ecosystem

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"gopkg.in/ini.v1"

	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
	"github.com/relicta-tech/changelogs/internal/infrastructure/manifest"
)

// VersionFilePattern matches the mirrored __version__ assignment.
const VersionFilePattern = `__version__\s*=\s*["']([^"']+)["']`

const privateClassifier = "Private :: Do Not Upload"

type pyproject struct {
	Project *pyProject `toml:"project"`
	Tool    struct {
		Poetry *poetrySection `toml:"poetry"`
		UV     struct {
			Workspace *struct {
				Members []string `toml:"members"`
				Exclude []string `toml:"exclude"`
			} `toml:"workspace"`
		} `toml:"uv"`
	} `toml:"tool"`
	DependencyGroups map[string][]any `toml:"dependency-groups"`
}

type pyProject struct {
	Name                 string              `toml:"name"`
	Version              *string             `toml:"version"`
	Dynamic              []string            `toml:"dynamic"`
	Dependencies         []string            `toml:"dependencies"`
	OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	Classifiers          []string            `toml:"classifiers"`
}

type poetrySection struct {
	Name            string         `toml:"name"`
	Version         string         `toml:"version"`
	Dependencies    map[string]any `toml:"dependencies"`
	DevDependencies map[string]any `toml:"dev-dependencies"`
	Group           map[string]struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"group"`
	Classifiers []string `toml:"classifiers"`
}

// poetrySections returns every poetry dependency table with its key path.
func (p *poetrySection) sections() []cargoSection {
	out := []cargoSection{
		{[]string{"tool", "poetry", "dependencies"}, p.Dependencies},
		{[]string{"tool", "poetry", "dev-dependencies"}, p.DevDependencies},
	}
	groups := make([]string, 0, len(p.Group))
	for g := range p.Group {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		out = append(out, cargoSection{[]string{"tool", "poetry", "group", g, "dependencies"}, p.Group[g].Dependencies})
	}
	return out
}

// pySource says where a Python project declares its version.
type pySource uint8

const (
	pySourceProject pySource = iota
	pySourceDynamic
	pySourcePoetry
	pySourceSetupCfg
)

var pep503Separators = regexp.MustCompile(`[-_.]+`)

// NormalizePythonName applies PEP 503 normalization and drops trailing
// separators, so "My_Pkg" and "my.pkg-" both become "my-pkg".
func NormalizePythonName(name string) string {
	n := pep503Separators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.TrimRight(n, "-")
}

type pythonAdapter struct {
	deps     Deps
	registry *registryClient
}

func (a *pythonAdapter) Kind() Kind { return KindPython }

func readPyproject(path string) (*pyproject, error) {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, errors.IOWrap(err, "python.readPyproject", "failed to read "+path)
	}
	var p pyproject
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, errors.DiscoveryWrap(err, "python.readPyproject", "invalid "+path)
	}
	return &p, nil
}

func readSetupCfg(path string) (*ini.File, error) {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, errors.IOWrap(err, "python.readSetupCfg", "failed to read "+path)
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SkipUnrecognizableLines:    true,
		InsensitiveKeys:            true,
	}, data)
	if err != nil {
		return nil, errors.DiscoveryWrap(err, "python.readSetupCfg", "invalid "+path)
	}
	return cfg, nil
}

// Discover reads [tool.uv.workspace] members from the root pyproject.toml,
// or treats the root as a single project.
func (a *pythonAdapter) Discover(_ context.Context, root string) ([]workspace.Package, error) {
	const op = "python.Discover"

	dirs := []string{root}
	rootPyproject := filepath.Join(root, "pyproject.toml")
	if fileutil.Exists(rootPyproject) {
		p, err := readPyproject(rootPyproject)
		if err != nil {
			return nil, err
		}
		if ws := p.Tool.UV.Workspace; ws != nil {
			members, err := expandMembers(root, ws.Members, ws.Exclude, "pyproject.toml")
			if err != nil {
				return nil, errors.DiscoveryWrap(err, op, "invalid uv workspace member pattern")
			}
			dirs = dirs[:0]
			// A virtual uv root has no [project] and is not itself a package.
			if p.Project != nil {
				dirs = append(dirs, root)
			}
			for _, d := range members {
				if d != root {
					dirs = append(dirs, d)
				}
			}
		}
	}

	pkgs := make([]workspace.Package, 0, len(dirs))
	for _, dir := range dirs {
		pkg, err := a.loadProject(dir)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	a.deps.Logger.Debug("discovered python projects", "root", root, "count", len(pkgs))
	return keepWorkspaceDeps(KindPython, pkgs), nil
}

func (a *pythonAdapter) loadProject(dir string) (workspace.Package, error) {
	const op = "python.Discover"

	pyprojectPath := filepath.Join(dir, "pyproject.toml")
	if fileutil.Exists(pyprojectPath) {
		p, err := readPyproject(pyprojectPath)
		if err != nil {
			return workspace.Package{}, err
		}
		switch {
		case p.Project != nil:
			return a.loadPEP621(dir, pyprojectPath, p)
		case p.Tool.Poetry != nil:
			return a.loadPoetry(dir, pyprojectPath, p.Tool.Poetry)
		}
	}

	setupCfgPath := filepath.Join(dir, "setup.cfg")
	if fileutil.Exists(setupCfgPath) {
		return a.loadSetupCfg(dir, setupCfgPath)
	}
	if fileutil.Exists(filepath.Join(dir, "setup.py")) {
		return workspace.Package{}, errors.Discovery(op,
			fmt.Sprintf("unsupported manifest in %s: setup.py without pyproject.toml or setup.cfg metadata", dir))
	}
	return workspace.Package{}, errors.Discovery(op, "no [project] or [tool.poetry] table in "+pyprojectPath)
}

func (a *pythonAdapter) loadPEP621(dir, path string, p *pyproject) (workspace.Package, error) {
	const op = "python.Discover"

	proj := p.Project
	if proj.Name == "" {
		return workspace.Package{}, errors.Discovery(op, "missing [project].name in "+path)
	}

	var ver version.SemanticVersion
	switch {
	case proj.Version != nil:
		v, err := version.ParseLenient(*proj.Version)
		if err != nil {
			return workspace.Package{}, errors.DiscoveryWrap(err, op, fmt.Sprintf("invalid version %q in %s", *proj.Version, path))
		}
		ver = v
	case containsString(proj.Dynamic, "version"):
		if a.deps.PythonVersionFile == "" {
			return workspace.Package{}, errors.Discovery(op, fmt.Sprintf(
				"version of %s is dynamic in %s; configure version_file under [python] in .changelog/config.toml", proj.Name, path))
		}
		v, err := a.readVersionFile(dir)
		if err != nil {
			return workspace.Package{}, err
		}
		ver = v
	default:
		return workspace.Package{}, errors.Discovery(op, "missing [project].version in "+path)
	}

	var deps []string
	for _, req := range proj.Dependencies {
		deps = append(deps, pep508Name(req))
	}
	for _, reqs := range proj.OptionalDependencies {
		for _, req := range reqs {
			deps = append(deps, pep508Name(req))
		}
	}
	for _, group := range p.DependencyGroups {
		for _, item := range group {
			if req, ok := item.(string); ok {
				deps = append(deps, pep508Name(req))
			}
		}
	}

	return workspace.Package{
		Name:         strings.TrimSpace(proj.Name),
		Version:      ver,
		Path:         dir,
		ManifestPath: path,
		Dependencies: normalizeAll(deps),
		Private:      containsString(proj.Classifiers, privateClassifier),
	}, nil
}

func (a *pythonAdapter) loadPoetry(dir, path string, p *poetrySection) (workspace.Package, error) {
	const op = "python.Discover"

	if p.Name == "" {
		return workspace.Package{}, errors.Discovery(op, "missing [tool.poetry].name in "+path)
	}
	if p.Version == "" {
		return workspace.Package{}, errors.Discovery(op, "missing [tool.poetry].version in "+path)
	}
	ver, err := version.ParseLenient(p.Version)
	if err != nil {
		return workspace.Package{}, errors.DiscoveryWrap(err, op, fmt.Sprintf("invalid version %q in %s", p.Version, path))
	}

	var deps []string
	for _, sec := range p.sections() {
		for name := range sec.deps {
			if strings.EqualFold(name, "python") {
				continue
			}
			deps = append(deps, name)
		}
	}

	return workspace.Package{
		Name:         strings.TrimSpace(p.Name),
		Version:      ver,
		Path:         dir,
		ManifestPath: path,
		Dependencies: normalizeAll(deps),
		Private:      containsString(p.Classifiers, privateClassifier),
	}, nil
}

func (a *pythonAdapter) loadSetupCfg(dir, path string) (workspace.Package, error) {
	const op = "python.Discover"

	cfg, err := readSetupCfg(path)
	if err != nil {
		return workspace.Package{}, err
	}
	meta, err := cfg.GetSection("metadata")
	if err != nil {
		return workspace.Package{}, errors.Discovery(op, "missing [metadata] section in "+path)
	}
	name := strings.TrimSpace(meta.Key("name").String())
	if name == "" {
		return workspace.Package{}, errors.Discovery(op, "missing metadata name in "+path)
	}
	raw := strings.TrimSpace(meta.Key("version").String())
	if raw == "" {
		return workspace.Package{}, errors.Discovery(op, "missing metadata version in "+path)
	}
	if strings.HasPrefix(raw, "attr:") || strings.HasPrefix(raw, "file:") {
		return workspace.Package{}, errors.Discovery(op, fmt.Sprintf(
			"version of %s is computed elsewhere (%s) in %s; set a literal version", name, raw, path))
	}
	ver, err := version.ParseLenient(raw)
	if err != nil {
		return workspace.Package{}, errors.DiscoveryWrap(err, op, fmt.Sprintf("invalid version %q in %s", raw, path))
	}

	var deps []string
	if opts, err := cfg.GetSection("options"); err == nil && opts.HasKey("install_requires") {
		for _, line := range strings.Split(opts.Key("install_requires").String(), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			deps = append(deps, pep508Name(line))
		}
	}

	private := false
	if meta.HasKey("classifiers") {
		private = strings.Contains(meta.Key("classifiers").String(), privateClassifier)
	}

	return workspace.Package{
		Name:         name,
		Version:      ver,
		Path:         dir,
		ManifestPath: path,
		Dependencies: normalizeAll(deps),
		Private:      private,
	}, nil
}

func (a *pythonAdapter) versionFileTarget(dir string) manifest.Pattern {
	return manifest.Pattern{
		File:   filepath.Join(dir, filepath.FromSlash(a.deps.PythonVersionFile)),
		Regexp: VersionFilePattern,
	}
}

func (a *pythonAdapter) readVersionFile(dir string) (version.SemanticVersion, error) {
	raw, err := manifest.Read(a.versionFileTarget(dir))
	if err != nil {
		return version.Zero, err
	}
	v, err := version.ParseLenient(raw)
	if err != nil {
		return version.Zero, errors.DiscoveryWrap(err, "python.readVersionFile",
			fmt.Sprintf("invalid __version__ %q in %s", raw, a.versionFileTarget(dir).File))
	}
	return v, nil
}

func (a *pythonAdapter) source(pkg workspace.Package) pySource {
	if filepath.Base(pkg.ManifestPath) == "setup.cfg" {
		return pySourceSetupCfg
	}
	p, err := readPyproject(pkg.ManifestPath)
	if err != nil {
		return pySourceProject
	}
	switch {
	case p.Project != nil && p.Project.Version == nil && containsString(p.Project.Dynamic, "version"):
		return pySourceDynamic
	case p.Project == nil && p.Tool.Poetry != nil:
		return pySourcePoetry
	default:
		return pySourceProject
	}
}

// VersionTargets returns the manifest key and, when python.version_file is
// configured and present, the mirrored __version__ assignment.
func (a *pythonAdapter) VersionTargets(pkg workspace.Package) []manifest.Target {
	var targets []manifest.Target
	switch a.source(pkg) {
	case pySourceProject:
		targets = append(targets, manifest.TableKey{File: pkg.ManifestPath, Key: []string{"project", "version"}})
	case pySourcePoetry:
		targets = append(targets, manifest.TableKey{File: pkg.ManifestPath, Key: []string{"tool", "poetry", "version"}})
	case pySourceSetupCfg:
		targets = append(targets, manifest.IniKey{File: pkg.ManifestPath, Section: "metadata", Key: "version"})
	case pySourceDynamic:
		return []manifest.Target{a.versionFileTarget(pkg.Path)}
	}
	if a.deps.PythonVersionFile != "" {
		if vf := a.versionFileTarget(pkg.Path); fileutil.Exists(vf.File) {
			targets = append(targets, vf)
		}
	}
	return targets
}

func (a *pythonAdapter) ReadVersion(pkg workspace.Package) (version.SemanticVersion, error) {
	raw, err := manifest.Read(a.VersionTargets(pkg)[0])
	if err != nil {
		return version.Zero, err
	}
	v, err := version.ParseLenient(raw)
	if err != nil {
		return version.Zero, errors.VersionWrap(err, "python.ReadVersion", "invalid version in "+pkg.ManifestPath)
	}
	return v, nil
}

func (a *pythonAdapter) WriteVersion(pkg workspace.Package, v version.SemanticVersion) error {
	return manifest.ApplyAll(a.VersionTargets(pkg), v.String())
}

// UpdateDependencyVersion pins requirements on dep to ==v.
func (a *pythonAdapter) UpdateDependencyVersion(pkg workspace.Package, dep string, v version.SemanticVersion) (bool, error) {
	dep = NormalizePythonName(dep)
	rewrite := func(req string) (string, bool) {
		out, ok := rewritePEP508(req, dep, v)
		return out, ok && out != req
	}

	if filepath.Base(pkg.ManifestPath) == "setup.cfg" {
		return manifest.RewriteINIList(pkg.ManifestPath, "options", "install_requires", rewrite)
	}

	p, err := readPyproject(pkg.ManifestPath)
	if err != nil {
		return false, err
	}
	if p.Project == nil && p.Tool.Poetry != nil {
		return rewritePoetryDeps(pkg.ManifestPath, p.Tool.Poetry, dep, v)
	}

	return manifest.RewriteTOMLStrings(pkg.ManifestPath, func(key []string, value string) (string, bool) {
		if !isRequirementList(key) {
			return "", false
		}
		return rewrite(value)
	})
}

func isRequirementList(key []string) bool {
	switch {
	case len(key) == 2 && key[0] == "project" && key[1] == "dependencies":
		return true
	case len(key) == 3 && key[0] == "project" && key[1] == "optional-dependencies":
		return true
	case len(key) == 2 && key[0] == "dependency-groups":
		return true
	default:
		return false
	}
}

func rewritePoetryDeps(file string, p *poetrySection, dep string, v version.SemanticVersion) (bool, error) {
	changed := false
	for _, sec := range p.sections() {
		keys := make([]string, 0, len(sec.deps))
		for k := range sec.deps {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if NormalizePythonName(key) != dep {
				continue
			}
			path := append(append([]string{}, sec.path...), key)
			var old string
			switch spec := sec.deps[key].(type) {
			case string:
				old = spec
			case map[string]any:
				s, ok := spec["version"].(string)
				if !ok {
					continue
				}
				old = s
				path = append(path, "version")
			default:
				continue
			}
			if old == "*" {
				continue
			}
			req := rewriteRequirement(old, v)
			if req == old {
				continue
			}
			if err := manifest.Apply(manifest.TableKey{File: file, Key: path}, req); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	return changed, nil
}

var pep508NameRe = regexp.MustCompile(`^\s*([A-Za-z0-9._-]+)`)

// pep508Name returns the distribution name of a requirement string.
func pep508Name(req string) string {
	m := pep508NameRe.FindStringSubmatch(req)
	if m == nil {
		return ""
	}
	return m[1]
}

// rewritePEP508 rewrites a requirement naming dep to name[extras]==v; marker.
// Direct URL references (name @ url) are left alone.
func rewritePEP508(req, dep string, v version.SemanticVersion) (string, bool) {
	name := pep508Name(req)
	if name == "" || NormalizePythonName(name) != dep {
		return "", false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req), name))
	extras := ""
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", false
		}
		extras = rest[:end+1]
		rest = strings.TrimSpace(rest[end+1:])
	}

	marker := ""
	if i := strings.Index(rest, ";"); i >= 0 {
		marker = strings.TrimSpace(rest[i+1:])
		rest = strings.TrimSpace(rest[:i])
	}
	if strings.HasPrefix(rest, "@") {
		return "", false
	}

	out := name + extras + "==" + v.String()
	if marker != "" {
		out += "; " + marker
	}
	return out, true
}

// IsPublished checks the releases map of the PyPI JSON API.
func (a *pythonAdapter) IsPublished(ctx context.Context, pkg workspace.Package) (bool, error) {
	u := fmt.Sprintf("%s/pypi/%s/json", strings.TrimSuffix(a.deps.PyPIURL, "/"), url.PathEscape(NormalizePythonName(pkg.Name)))
	ok, body, err := a.registry.exists(ctx, u)
	if err != nil || !ok {
		return false, err
	}

	found := false
	gjson.GetBytes(body, "releases").ForEach(func(key, _ gjson.Result) bool {
		if v, err := version.ParseLenient(key.String()); err == nil && v.Equal(pkg.Version) {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// Publish builds sdist and wheel with python -m build, then uploads them
// with twine. A dry run builds and runs twine check instead.
func (a *pythonAdapter) Publish(ctx context.Context, pkg workspace.Package, opts PublishOptions) (PublishResult, error) {
	if pkg.Private {
		return PublishResult{Status: PublishSkipped, Message: "classified " + privateClassifier}, nil
	}

	var env []string
	switch {
	case hasEnv(a.deps.Getenv, "TWINE_USERNAME", "TWINE_PASSWORD"):
	case hasEnv(a.deps.Getenv, "TWINE_API_TOKEN"):
		env = []string{"TWINE_USERNAME=__token__", "TWINE_PASSWORD=" + a.deps.Getenv("TWINE_API_TOKEN")}
	case !opts.DryRun:
		return skipped(KindPython), nil
	}

	dist := filepath.Join(pkg.Path, "dist")
	if err := os.RemoveAll(dist); err != nil {
		return PublishResult{Status: PublishFailed, Message: "failed to clean " + dist + ": " + err.Error()}, nil
	}

	build := Command{Name: "python", Args: []string{"-m", "build"}, Dir: pkg.Path}
	out, err := a.deps.Runner.Run(ctx, build)
	if err != nil {
		return publishOutcome(ctx, KindPython, build, out, err)
	}

	files, err := doublestar.FilepathGlob(filepath.Join(dist, "*"))
	if err != nil || len(files) == 0 {
		return PublishResult{Status: PublishFailed, Message: "python -m build produced no distributions in " + dist}, nil
	}

	upload := Command{Name: "twine", Dir: pkg.Path, Env: env}
	if opts.DryRun {
		upload.Args = append([]string{"check"}, files...)
	} else {
		upload.Args = append([]string{"upload", "--non-interactive"}, twineRepositoryArgs(opts.Registry)...)
		upload.Args = append(upload.Args, files...)
	}

	out, err = a.deps.Runner.Run(ctx, upload)
	return publishOutcome(ctx, KindPython, upload, out, err)
}

func twineRepositoryArgs(registry string) []string {
	switch {
	case registry == "":
		return nil
	case strings.HasPrefix(registry, "http://"), strings.HasPrefix(registry, "https://"):
		return []string{"--repository-url", registry}
	default:
		return []string{"--repository", registry}
	}
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, NormalizePythonName(n))
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
