package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/service/plan"
)

// watchDebounce coalesces bursts of file events into one refresh.
const watchDebounce = 100 * time.Millisecond

func newStatusCommand(opts *Options) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changelogs and releases",
		Long: `Show the pending changelog files and the versions they would produce.
Use --verbose to list each changelog and --watch to refresh whenever a file
in .changelog/ changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openWorkspace(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if err := s.requireInitialized(); err != nil {
				return err
			}
			if err := printStatus(opts, s); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchStatus(cmd, opts, s)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "refresh the status when changelog files change")
	return cmd
}

// printStatus prints the pending entries and the plan they produce.
func printStatus(opts *Options, s *session) error {
	entries, err := s.ws.Store().ReadAll()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		opts.PrintInfo("No changelogs found")
		return nil
	}

	opts.Println(opts.Styles.Bold.Render(fmt.Sprintf("%d changelog(s) found", len(entries))))
	if opts.Verbose {
		opts.Println("")
		for _, e := range entries {
			summary, _, _ := strings.Cut(e.Summary, "\n")
			if summary == "" {
				summary = opts.Styles.Subtle.Render("(empty)")
			}
			opts.Println(fmt.Sprintf("  %s %s", opts.Styles.Accent.Render(e.ID), summary))
			for _, r := range e.Releases {
				opts.Println(fmt.Sprintf("      %s: %s", r.Package, r.Bump))
			}
		}
	}
	opts.Println("")

	p := plan.Assemble(s.ws, entries, s.cfg)
	for _, w := range p.Warnings {
		opts.PrintWarning(w)
	}
	if len(p.Releases) == 0 {
		opts.PrintInfo("No packages will be released")
		return nil
	}

	opts.Println(opts.Styles.Bold.Render("Releases:"))
	for _, r := range p.Releases {
		opts.Println(fmt.Sprintf("  %s %s %s → %s (%s)",
			opts.Styles.Subtle.Render("•"),
			r.Name,
			r.OldVersion,
			opts.Styles.Version.Render(r.NewVersion.String()),
			opts.Styles.Warning.Render(r.Bump.String()),
		))
	}
	return nil
}

// watchStatus reprints the status after every burst of changes to the
// changelog directory until the context is cancelled. Config edits reload
// the configuration first.
func watchStatus(cmd *cobra.Command, opts *Options, s *session) error {
	const op = "cli.watchStatus"
	ctx := cmd.Context()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return rperrors.IOWrap(err, op, "failed to start file watcher")
	}
	defer watcher.Close()

	dir := s.ws.ChangelogDir()
	if err := watcher.Add(dir); err != nil {
		return rperrors.IOWrap(err, op, "failed to watch "+dir)
	}
	opts.PrintSubtle(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", s.relPath(dir)))

	var (
		timer        *time.Timer
		fire         <-chan time.Time
		reloadConfig bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Ext(ev.Name) == ".toml" {
				reloadConfig = true
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			opts.Logger.Warn("watch error", "error", err)

		case <-fire:
			fire = nil
			if reloadConfig {
				reloadConfig = false
				if err := refreshSession(ctx, cmd, opts, s); err != nil {
					opts.PrintError(err.Error())
					continue
				}
			}
			opts.Println("")
			opts.PrintSubtle(time.Now().Format("15:04:05"))
			if err := printStatus(opts, s); err != nil {
				opts.PrintError(err.Error())
			}
		}
	}
}

// refreshSession rediscovers the workspace in place.
func refreshSession(ctx context.Context, cmd *cobra.Command, opts *Options, s *session) error {
	fresh, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	*s = *fresh
	return nil
}
