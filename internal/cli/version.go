package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/infrastructure/changelog"
	"github.com/relicta-tech/changelogs/internal/service/plan"
	"github.com/relicta-tech/changelogs/internal/service/release"
	"github.com/relicta-tech/changelogs/internal/ui"
)

func newVersionCommand(opts *Options) *cobra.Command {
	var (
		dryRun  bool
		confirm bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Apply version bumps and generate changelogs",
		Long: `Fold the pending changelog files into one version per package, write the
new versions and dependency requirements into the manifests, prepend the
CHANGELOG.md sections and delete the consumed files.`,
		Example: `  changelogs version --dry-run
  changelogs version
  changelogs version --confirm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.Context(), cmd, opts, dryRun, confirm)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the release plan without changing files")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "review the release plan interactively before applying it")
	return cmd
}

// runVersion implements the version command.
func runVersion(ctx context.Context, cmd *cobra.Command, opts *Options, dryRun, confirm bool) error {
	s, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	if err := s.requireInitialized(); err != nil {
		return err
	}

	store := s.ws.Store()
	entries, err := store.ReadAll()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		opts.PrintInfo("No changelogs found")
		return nil
	}

	p := plan.Assemble(s.ws, entries, s.cfg)
	for _, w := range p.Warnings {
		opts.PrintWarning(w)
	}
	if len(p.Releases) == 0 {
		opts.PrintInfo("No packages to release")
		return nil
	}

	opts.Println(opts.Styles.Bold.Render("Release plan:"))
	for _, r := range p.Releases {
		opts.Println(fmt.Sprintf("  %s %s %s → %s",
			opts.Styles.Success.Render("✓"), r.Name, r.OldVersion,
			opts.Styles.Version.Render(r.NewVersion.String())))
	}
	opts.Println("")

	if dryRun {
		opts.PrintInfo(fmt.Sprintf("%d package(s) would be updated (dry run, no files changed)", len(p.Releases)))
		return nil
	}

	if confirm {
		if !opts.IsInteractive() {
			opts.PrintWarning("--confirm needs a terminal; nothing was changed")
			return nil
		}
		ok, err := ui.RunConfirm(planSummary(p), opts.Stdin, opts.Stdout)
		if err != nil {
			return err
		}
		if !ok {
			opts.PrintWarning("Release plan rejected; nothing was changed")
			return nil
		}
	}

	writer, err := opts.changelogWriter(ctx, s, entries)
	if err != nil {
		return err
	}

	opts.PrintStep("Updating versions...")
	applier := release.NewApplier(s.ws, store,
		release.WithApplyLogger(opts.Logger),
		release.WithWriter(writer),
	)
	result, err := applier.Apply(ctx, p)
	if result != nil {
		printApplyResult(opts, s, result)
	}
	if err != nil {
		return err
	}

	opts.Println("")
	opts.PrintSuccess(fmt.Sprintf("%d package(s) updated", len(result.Versions)))
	return nil
}

func printApplyResult(opts *Options, s *session, result *release.ApplyResult) {
	for _, d := range result.Dependencies {
		opts.Logger.Debug("updated dependency", "package", d.Package, "dependency", d.Dependency, "version", d.Version)
	}
	for _, path := range result.Changelogs {
		opts.PrintSuccess("Updated " + s.relPath(path) + changelogOwner(s, path))
	}
	for _, id := range result.Consumed {
		opts.PrintSubtle("  Deleted " + id + ".md")
	}
}

// changelogOwner names the package whose directory holds path.
func changelogOwner(s *session, path string) string {
	dir := filepath.Dir(path)
	if dir == s.ws.Root() {
		return ""
	}
	for _, pkg := range s.ws.Packages() {
		if pkg.Path == dir {
			return " for " + pkg.Name
		}
	}
	return ""
}

// changelogWriter builds the writer for the configured format. With
// attribution enabled, entries are linked to the commit and pull request
// that introduced them when the workspace is a git repository.
func (o *Options) changelogWriter(ctx context.Context, s *session, entries []entry.Entry) (*changelog.Writer, error) {
	format, err := changelog.ParseFormat(s.cfg.Changelog.Format)
	if err != nil {
		return nil, err
	}
	opts := []changelog.Option{changelog.WithLogger(o.Logger)}

	if s.cfg.Changelog.Attribution {
		repo, err := o.openRepository(s)
		if err != nil {
			o.Logger.Debug("attribution disabled", "reason", err)
			return changelog.NewWriter(format, opts...), nil
		}
		attr, err := repo.Attributor(ctx, s.ws.ChangelogDir())
		if err != nil {
			o.Logger.Debug("attribution disabled", "reason", err)
			return changelog.NewWriter(format, opts...), nil
		}
		attr.Pin(entries)
		opts = append(opts, changelog.WithAttribution(attr, repositoryURL(repo, s.cfg)))
	}
	return changelog.NewWriter(format, opts...), nil
}

func planSummary(p plan.Plan) ui.PlanSummary {
	summary := ui.PlanSummary{Entries: len(p.Entries), Warnings: p.Warnings}
	for _, r := range p.Releases {
		summary.Rows = append(summary.Rows, ui.PlanRow{
			Name:       r.Name,
			OldVersion: r.OldVersion.String(),
			NewVersion: r.NewVersion.String(),
			Bump:       r.Bump.String(),
		})
	}
	return summary
}
