package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/domain/version"
	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/service/ai"
	"github.com/relicta-tech/changelogs/internal/ui"
)

// aiFromConfig selects the provider configured under [ai].
const aiFromConfig = "config"

type addOptions struct {
	empty        bool
	bumps        []string
	message      string
	ai           string
	instructions string
	ref          string
}

func newAddCommand(opts *Options) *cobra.Command {
	var o addOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new changelog",
		Long: `Create a changelog entry in .changelog/.

Without flags an interactive prompt asks for the packages, a bump per
package and a summary. Use --bump and --message to skip the prompt, or --ai
to draft the entry from the current diff.`,
		Example: `  changelogs add
  changelogs add --bump core=minor --bump cli=patch -m "Added streaming support."
  changelogs add --ai anthropic
  changelogs add --ai "claude -p" --ref origin/main
  changelogs add --empty`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, o)
		},
	}

	cmd.Flags().BoolVar(&o.empty, "empty", false, "create an empty changelog (no packages)")
	cmd.Flags().StringArrayVarP(&o.bumps, "bump", "b", nil, "package bump as name=patch|minor|major (repeatable)")
	cmd.Flags().StringVarP(&o.message, "message", "m", "", "changelog summary (requires --bump)")
	cmd.Flags().StringVarP(&o.ai, "ai", "a", "", `generate the changelog from the git diff with a provider (openai, anthropic, gemini), "config", or a command`)
	cmd.Flags().StringVarP(&o.instructions, "instructions", "i", "", "custom instructions for AI generation ({packages} and {diff} are replaced)")
	cmd.Flags().StringVarP(&o.ref, "ref", "r", "", "base ref to diff against for --ai (e.g. origin/main)")
	return cmd
}

// runAdd implements the add command.
func runAdd(cmd *cobra.Command, opts *Options, o addOptions) error {
	const op = "cli.add"
	ctx := cmd.Context()

	s, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	if err := s.requireInitialized(); err != nil {
		return err
	}
	store := s.ws.Store()

	switch {
	case o.empty:
		id := store.NewID()
		path, err := store.Write(entry.Entry{ID: id})
		if err != nil {
			return err
		}
		opts.PrintSuccess("Created empty changelog: " + opts.Styles.Accent.Render(s.relPath(path)))
		return nil

	case o.ai != "":
		return runAddAI(ctx, opts, s, o)

	case len(o.bumps) > 0:
		releases, err := parseBumpFlags(s, o.bumps)
		if err != nil {
			return err
		}
		if strings.TrimSpace(o.message) == "" {
			return rperrors.Validation(op, "--message is required with --bump")
		}
		return writeEntry(opts, s, entry.Entry{Releases: releases, Summary: strings.TrimSpace(o.message)})

	case o.message != "":
		return rperrors.Validation(op, "--message requires at least one --bump")
	}

	names := s.ws.PackageNames()
	if len(names) == 0 {
		opts.PrintWarning("No packages found in workspace")
		return nil
	}
	if !opts.IsInteractive() {
		return rperrors.Validation(op, "no terminal for the interactive prompt; pass --bump and --message, --ai or --empty")
	}

	res, err := ui.RunAddPrompt(names, opts.Stdin, opts.Stdout)
	if err != nil {
		return err
	}
	if res.Canceled {
		opts.PrintWarning("Canceled, changelog not created")
		return nil
	}
	if res.Summary == "" {
		opts.PrintWarning("Empty summary, changelog not created")
		return nil
	}
	return writeEntry(opts, s, entry.Entry{Releases: res.Releases, Summary: res.Summary})
}

// parseBumpFlags parses name=kind pairs against the workspace members.
func parseBumpFlags(s *session, values []string) ([]entry.Release, error) {
	const op = "cli.parseBumpFlags"

	seen := make(map[string]bool, len(values))
	releases := make([]entry.Release, 0, len(values))
	for _, v := range values {
		name, kind, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, rperrors.Validation(op, fmt.Sprintf("invalid --bump %q: expected name=patch|minor|major", v))
		}
		pkg, found := s.ws.Package(name)
		if !found {
			return nil, rperrors.Validation(op, fmt.Sprintf("unknown package %q (available: %s)", name, strings.Join(s.ws.PackageNames(), ", ")))
		}
		name = pkg.Name
		if seen[name] {
			return nil, rperrors.Validation(op, fmt.Sprintf("package %s is given more than once", name))
		}
		seen[name] = true

		bump, err := version.ParseBumpType(strings.TrimSpace(kind))
		if err != nil {
			return nil, rperrors.Wrap(err, rperrors.KindValidation, op, fmt.Sprintf("invalid bump for %s", name))
		}
		releases = append(releases, entry.Release{Package: name, Bump: bump})
	}
	return releases, nil
}

// writeEntry stores e under a fresh id and reports it.
func writeEntry(opts *Options, s *session, e entry.Entry) error {
	store := s.ws.Store()
	e.ID = store.NewID()
	path, err := store.Write(e)
	if err != nil {
		return err
	}

	opts.Println("")
	opts.PrintSuccess("Created changelog: " + opts.Styles.Accent.Render(s.relPath(path)))
	opts.Println("")
	opts.Println("Packages to be released:")
	for _, r := range e.Releases {
		opts.Println(fmt.Sprintf("  %s %s (%s)",
			opts.Styles.Subtle.Render("•"), r.Package, opts.Styles.Warning.Render(r.Bump.String())))
	}
	return nil
}

// runAddAI drafts an entry from the diff with the selected generator.
func runAddAI(ctx context.Context, opts *Options, s *session, o addOptions) error {
	const op = "cli.addAI"

	opts.PrintStep("Generating changelog with AI...")

	repo, err := opts.openRepository(s)
	if err != nil {
		return err
	}

	var diff string
	if o.ref != "" {
		if diff, err = repo.DiffFrom(ctx, o.ref); err != nil {
			return err
		}
		if strings.TrimSpace(diff) == "" {
			return rperrors.Validation(op, fmt.Sprintf("No changes detected between %s and HEAD.", o.ref))
		}
	} else {
		if diff, err = repo.StagedDiff(ctx); err != nil {
			return err
		}
		if strings.TrimSpace(diff) == "" {
			if diff, err = repo.WorkingDiff(ctx); err != nil {
				return err
			}
		}
		if strings.TrimSpace(diff) == "" {
			return rperrors.Validation(op,
				"No changes detected. Stage your changes with `git add` first, or use --ref to diff against a branch.")
		}
	}

	selector := o.ai
	if strings.EqualFold(selector, aiFromConfig) {
		selector = ""
	}
	aiOpts := opts.AI
	if aiOpts.Logger == nil {
		aiOpts.Logger = opts.Logger
	}
	if aiOpts.Runner == nil {
		aiOpts.Runner = opts.Deps.Runner
	}
	aiOpts.Dir = s.ws.Root()

	gen, err := ai.New(ctx, selector, s.cfg.AI, aiOpts)
	if err != nil {
		return err
	}

	instructions := o.instructions
	if instructions == "" {
		instructions = s.cfg.AI.Instructions
	}
	drafted, err := ai.NewDrafter(gen, instructions, s.cfg.AI.Timeout, opts.Logger).
		Draft(ctx, s.ws.PackageNames(), diff)
	if err != nil {
		return err
	}

	if err := writeEntry(opts, s, drafted); err != nil {
		return err
	}
	opts.Println("")
	opts.Println("Summary:")
	opts.Println(drafted.Summary)
	return nil
}
