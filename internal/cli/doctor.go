package cli

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/fileutil"
	"github.com/relicta-tech/changelogs/internal/infrastructure/changelog"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
	wssvc "github.com/relicta-tech/changelogs/internal/service/workspace"
)

// checkResult is the outcome of one diagnostic.
type checkResult struct {
	name   string
	ok     bool
	detail string
}

// doctorReport collects and prints diagnostics as they run.
type doctorReport struct {
	opts    *Options
	results []checkResult
}

func (r *doctorReport) pass(name, detail string) {
	r.add(checkResult{name: name, ok: true, detail: detail})
}

func (r *doctorReport) fail(name, detail string) {
	r.add(checkResult{name: name, ok: false, detail: detail})
}

func (r *doctorReport) add(c checkResult) {
	r.results = append(r.results, c)
	line := c.name
	if c.detail != "" {
		line += " " + r.opts.Styles.Subtle.Render("("+c.detail+")")
	}
	if c.ok {
		r.opts.PrintSuccess(line)
	} else {
		r.opts.PrintError(line)
	}
}

func (r *doctorReport) failed() int {
	n := 0
	for _, c := range r.results {
		if !c.ok {
			n++
		}
	}
	return n
}

func newDoctorCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the workspace setup",
		Long: `Run diagnostics on the workspace: detection, initialization, config
validity, group and ignore members, pending changelog references and the git
remote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, opts)
		},
	}
}

// runDoctor implements the doctor command. Failed checks are reported, not
// returned as an error.
func runDoctor(cmd *cobra.Command, opts *Options) error {
	ctx := cmd.Context()
	r := &doctorReport{opts: opts}

	opts.PrintTitle("Running diagnostics...")
	opts.Println("")
	defer printDoctorSummary(r)

	start, err := opts.dir()
	if err != nil {
		return err
	}
	kind, err := opts.ecosystemKind()
	if err != nil {
		return err
	}

	root, detected, err := wssvc.FindRoot(start, kind)
	if err != nil {
		r.fail("Workspace detected", err.Error())
		return nil
	}
	r.pass("Workspace detected", fmt.Sprintf("%s, %s", detected, root))

	dir := filepath.Join(root, changelog.DirName)
	initialized := fileutil.IsDir(dir)
	if initialized {
		r.pass("Changelogs initialized", "")
	} else {
		r.fail("Changelogs initialized", "run changelogs init")
	}

	cfg, err := opts.loadConfig(cmd, dir)
	if err != nil {
		r.fail("Config valid", err.Error())
		cfg = config.DefaultConfig()
	}
	if kind == ecosystem.KindUnknown {
		if k, err := parseEcosystem(cfg.Ecosystem); err == nil {
			kind = k
		}
	}

	deps := opts.Deps
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}
	if deps.PythonVersionFile == "" {
		deps.PythonVersionFile = cfg.Python.VersionFile
	}
	ws, err := wssvc.Discover(ctx, start,
		wssvc.WithKind(kind),
		wssvc.WithDeps(deps),
		wssvc.WithLogger(opts.Logger),
	)
	if err != nil {
		r.fail("Packages discovered", err.Error())
		return nil
	}
	r.pass("Packages discovered", fmt.Sprintf("%d package(s)", len(ws.Packages())))

	if !hasFailure(r, "Config valid") {
		v := config.NewValidator(nil)
		if err := v.Validate(cfg); err != nil {
			r.fail("Config valid", strings.Join(v.Result().Errors, "; "))
		} else {
			r.pass("Config valid", "")
		}
		for _, w := range v.Result().Warnings {
			opts.PrintWarning(w)
		}
	}

	checkMembers(r, "Fixed/linked group members valid", ws, slices.Concat(flatten(cfg.Fixed), flatten(cfg.Linked)))
	checkMembers(r, "Ignore list valid", ws, cfg.Ignore)

	if initialized {
		checkEntries(r, ws)
	}
	checkRemote(r, opts, &session{ws: ws, cfg: cfg})
	return nil
}

func printDoctorSummary(r *doctorReport) {
	r.opts.Println("")
	if failed := r.failed(); failed > 0 {
		r.opts.PrintError(fmt.Sprintf("%d passed, %d failed", len(r.results)-failed, failed))
		return
	}
	r.opts.PrintSuccess(fmt.Sprintf("All %d checks passed", len(r.results)))
}

func hasFailure(r *doctorReport, name string) bool {
	for _, c := range r.results {
		if c.name == name && !c.ok {
			return true
		}
	}
	return false
}

func flatten(groups [][]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// checkMembers fails when any of members is not a workspace package.
func checkMembers(r *doctorReport, name string, ws *wssvc.Workspace, members []string) {
	var unknown []string
	for _, m := range members {
		if _, ok := ws.Package(m); !ok && !slices.Contains(unknown, m) {
			unknown = append(unknown, m)
		}
	}
	if len(unknown) > 0 {
		r.fail(name, "unknown: "+strings.Join(unknown, ", "))
		return
	}
	r.pass(name, "")
}

// checkEntries fails when a pending entry cannot be parsed or names a
// package outside the workspace.
func checkEntries(r *doctorReport, ws *wssvc.Workspace) {
	const name = "Pending changelogs valid"

	entries, err := ws.Store().ReadAll()
	if err != nil {
		r.fail(name, err.Error())
		return
	}
	var bad []string
	for _, e := range entries {
		for _, rel := range e.Releases {
			if _, ok := ws.Package(rel.Package); !ok {
				bad = append(bad, fmt.Sprintf("'%s' in %s", rel.Package, e.ID))
			}
		}
	}
	if len(bad) > 0 {
		r.fail(name, "unknown packages: "+strings.Join(bad, ", "))
		return
	}
	r.pass(name, fmt.Sprintf("%d pending", len(entries)))
}

func checkRemote(r *doctorReport, opts *Options, s *session) {
	const name = "Git remote detected"

	repo, err := opts.openRepository(s)
	if err != nil {
		r.fail(name, err.Error())
		return
	}
	remote := s.cfg.Git.Remote
	if remote == "" {
		remote = "origin"
	}
	u, err := repo.RemoteURL(remote)
	if err != nil {
		r.fail(name, err.Error())
		return
	}
	r.pass(name, u)
}
