package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/security"
)

// NewRootCommand builds the command tree bound to opts.
func NewRootCommand(opts *Options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "changelogs",
		Short: "Manage versioning and changelogs for workspaces",
		Long: `changelogs manages versions and changelogs for multi-package workspaces.

Every change is described by a small markdown file under .changelog/ that
names the packages it affects and how far each should be bumped. When it is
time to release, the pending files are folded into one version per package,
bumps are propagated to dependents and configured groups, manifests and
CHANGELOG.md files are rewritten, and the consumed files are removed.

Supported ecosystems: Cargo workspaces, Python (uv, poetry, setup.cfg) and
npm/pnpm/yarn/bun workspaces.

Get started with 'changelogs init'.`,
		Version: versionString(opts.Version),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.configureOutput()
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("changelogs {{.Version}}\n")
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)
	rootCmd.SetIn(opts.Stdin)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.Ecosystem, "ecosystem", "", "ecosystem to use (cargo, python, npm); auto-detected if not set")
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default: .changelog/config.toml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	flags.BoolVar(&opts.JSONOutput, "json", false, "emit logs as JSON")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newAddCommand(opts),
		newStatusCommand(opts),
		newVersionCommand(opts),
		newPublishCommand(opts),
		newDoctorCommand(opts),
	)
	return rootCmd
}

// ExecuteContext runs the CLI on the process streams.
func ExecuteContext(ctx context.Context, info VersionInfo) error {
	opts := NewOptions()
	opts.Version = info
	err := NewRootCommand(opts).ExecuteContext(ctx)
	logToolOutput(opts, err)
	return err
}

// logToolOutput logs, at debug level, the output of a failed external tool
// carried by err.
func logToolOutput(opts *Options, err error) {
	if out := rperrors.ProcessOutput(err); out != "" {
		opts.Logger.Debug("tool output", "output", out)
	}
}

func versionString(v VersionInfo) string {
	if v.Version == "" {
		return "dev"
	}
	if v.Commit == "" || v.Commit == "none" {
		return v.Version
	}
	return fmt.Sprintf("%s (%s, %s)", v.Version, v.Commit, v.Date)
}

// configureOutput applies the global output flags to the logger and styles.
func (o *Options) configureOutput() {
	if o.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
		o.Logger.SetFormatter(log.TextFormatter)
	}
	if o.JSONOutput {
		o.Logger.SetFormatter(log.JSONFormatter)
		o.Logger.SetReportTimestamp(true)
	}

	switch strings.ToLower(o.LogLevel) {
	case "debug":
		o.Logger.SetLevel(log.DebugLevel)
	case "warn":
		o.Logger.SetLevel(log.WarnLevel)
	case "error":
		o.Logger.SetLevel(log.ErrorLevel)
	default:
		o.Logger.SetLevel(log.InfoLevel)
	}

	if o.Verbose {
		o.Logger.SetLevel(log.DebugLevel)
	}

	if security.InCI(os.Getenv) {
		if _, masked := o.Stdout.(*security.MaskedWriter); !masked && o.Stdout != nil {
			o.Stdout = security.NewMaskedWriter(o.Stdout)
		}
		if _, masked := o.Stderr.(*security.MaskedWriter); !masked && o.Stderr != nil {
			o.Stderr = security.NewMaskedWriter(o.Stderr)
		}
	}
}
