package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
	"github.com/relicta-tech/changelogs/internal/service/release"
)

type publishOptions struct {
	dryRun   bool
	registry string
	noGitTag bool
}

func newPublishCommand(opts *Options) *cobra.Command {
	var o publishOptions

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish unpublished packages to their registry",
		Long: `Publish every public package whose current version is not on its registry
yet, then create a name@version git tag for each package that was published
or skipped for lack of credentials.`,
		Example: `  changelogs publish --dry-run
  changelogs publish
  changelogs publish --tag next --no-git-tag`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), cmd, opts, o)
		},
	}

	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "run the ecosystem tools in dry-run mode and create no tags")
	cmd.Flags().StringVar(&o.registry, "tag", "", "registry name, URL or npm dist-tag passed to the publish tool")
	cmd.Flags().BoolVar(&o.noGitTag, "no-git-tag", false, "do not create git tags")
	return cmd
}

// runPublish implements the publish command.
func runPublish(ctx context.Context, cmd *cobra.Command, opts *Options, o publishOptions) error {
	s, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}

	tag := s.cfg.Git.Tag && !o.noGitTag && !o.dryRun
	pubOpts := []release.PublisherOption{
		release.WithPublishLogger(opts.Logger),
		release.WithProgress(func(out release.Outcome) { printOutcome(opts, out, o.dryRun) }),
	}
	if tag {
		repo, err := opts.openRepository(s)
		if err != nil {
			opts.PrintWarning("Git tags disabled: " + err.Error())
			tag = false
		} else {
			pubOpts = append(pubOpts, release.WithTagger(repo))
		}
	}
	publisher := release.NewPublisher(s.ws, pubOpts...)

	pending, err := publisher.Unpublished(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		opts.PrintInfo("No unpublished packages found")
		return nil
	}
	opts.PrintStep(fmt.Sprintf("Publishing %d package(s)...", len(pending)))

	report, pubErr := publisher.Publish(ctx, release.PublishOptions{
		DryRun:   o.dryRun,
		Registry: o.registry,
		Tag:      tag,
		Push:     s.cfg.Git.Push,
		Remote:   s.cfg.Git.Remote,
	})
	if report == nil {
		return pubErr
	}

	opts.Println("")
	for _, out := range report.Outcomes {
		switch {
		case out.Tagged:
			opts.PrintSuccess("Created git tag: " + out.Tag)
		case out.TagErr != nil:
			opts.PrintWarning(fmt.Sprintf("Failed to create git tag %s: %v", out.Tag, out.TagErr))
		}
	}
	if tags := report.Tags(); len(tags) > 0 && !s.cfg.Git.Push {
		opts.PrintSubtle("Don't forget to push tags: git push --follow-tags")
	}

	if pubErr != nil {
		for _, out := range report.Failed() {
			opts.PrintError(out.Package.Name + ": " + failureMessage(out))
		}
		return pubErr
	}

	published := report.Count(ecosystem.PublishSuccess)
	skipped := report.Count(ecosystem.PublishSkipped)
	switch {
	case o.dryRun:
		opts.PrintSuccess(fmt.Sprintf("Dry run complete. %d package(s) would be published.", published))
	case published == 0 && skipped > 0:
		opts.PrintWarning(fmt.Sprintf("No packages published (no token), but %d git tag(s) created", len(report.Tags())))
	default:
		opts.PrintSuccess(fmt.Sprintf("Successfully published %d package(s)", published))
	}
	return nil
}

// printOutcome prints the progress line for one package.
func printOutcome(opts *Options, out release.Outcome, dryRun bool) {
	label := fmt.Sprintf("  %s v%s ...", out.Package.Name, out.Package.Version)
	switch {
	case out.Failed():
		opts.Println(label + " " + opts.Styles.Error.Render("✗"))
	case out.Result.Status == ecosystem.PublishSkipped:
		opts.Println(label + " " + opts.Styles.Warning.Render("⊘ (no token)"))
	case dryRun:
		opts.Println(label + " " + opts.Styles.Subtle.Render("(dry-run)"))
	case out.Result.Status == ecosystem.PublishSuccess && out.Result.Message != "" && opts.Verbose:
		opts.Println(label + " " + opts.Styles.Success.Render("✓") + " " + opts.Styles.Subtle.Render(out.Result.Message))
	default:
		opts.Println(label + " " + opts.Styles.Success.Render("✓"))
	}
}

func failureMessage(out release.Outcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if out.Result.Message != "" {
		return out.Result.Message
	}
	return "publish failed"
}
