// Package cli provides the command-line interface for changelogs.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
	"github.com/relicta-tech/changelogs/internal/service/ai"
)

// Options holds the CLI runtime options and dependencies.
type Options struct {
	// Version information
	Version VersionInfo

	// Global flags
	ConfigFile string
	Ecosystem  string
	Verbose    bool
	JSONOutput bool
	NoColor    bool
	LogLevel   string

	// Runtime state
	Config *config.Config
	Logger *log.Logger
	Styles Styles

	// Dir is where workspace discovery starts. Empty means the working
	// directory.
	Dir string
	// Deps are handed to the ecosystem adapter.
	Deps ecosystem.Deps
	// AI configures generators for add --ai.
	AI ai.Options
	// Interactive reports whether prompts can be shown.
	Interactive func() bool

	// I/O streams
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// VersionInfo holds version metadata.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// Styles holds the CLI styling configuration.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Subtle  lipgloss.Style
	Bold    lipgloss.Style
	Accent  lipgloss.Style
	Version lipgloss.Style
}

// DefaultStyles returns the default CLI styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Underline(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Version: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

// NewOptions creates a new Options instance with default values.
func NewOptions() *Options {
	return &Options{
		Styles:      DefaultStyles(),
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Stdin:       os.Stdin,
		Interactive: isTerminal,
		Logger: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			ReportCaller:    false,
		}),
	}
}

// SetVersion sets the version information.
func (o *Options) SetVersion(version, commit, date string) {
	o.Version.Version = version
	o.Version.Commit = commit
	o.Version.Date = date
}

// IsInteractive reports whether prompts can be shown.
func (o *Options) IsInteractive() bool {
	return o.Interactive != nil && o.Interactive()
}

// PrintSuccess prints a success message.
func (o *Options) PrintSuccess(msg string) {
	o.println(o.Styles.Success.Render("✓") + " " + msg)
}

// PrintError prints an error message.
func (o *Options) PrintError(msg string) {
	o.println(o.Styles.Error.Render("✗") + " " + msg)
}

// PrintWarning prints a warning message.
func (o *Options) PrintWarning(msg string) {
	o.println(o.Styles.Warning.Render("!") + " " + msg)
}

// PrintInfo prints an info message.
func (o *Options) PrintInfo(msg string) {
	o.println(o.Styles.Info.Render("ℹ") + " " + msg)
}

// PrintStep prints a progress message.
func (o *Options) PrintStep(msg string) {
	o.println(o.Styles.Accent.Render("→") + " " + msg)
}

// PrintTitle prints a title.
func (o *Options) PrintTitle(msg string) {
	o.println(o.Styles.Title.Render(msg))
}

// PrintSubtle prints subtle/muted text.
func (o *Options) PrintSubtle(msg string) {
	o.println(o.Styles.Subtle.Render(msg))
}

// Println prints a plain line.
func (o *Options) Println(s string) {
	o.println(s)
}

// Printf prints formatted text without a trailing newline.
func (o *Options) Printf(format string, args ...any) {
	if o.Stdout != nil {
		fmt.Fprintf(o.Stdout, format, args...)
	}
}

func (o *Options) println(s string) {
	if o.Stdout != nil {
		_, _ = io.WriteString(o.Stdout, s+"\n")
	}
}

func isTerminal() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
