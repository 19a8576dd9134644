package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/changelogs/internal/config"
	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/fileutil"
	"github.com/relicta-tech/changelogs/internal/infrastructure/changelog"
	wssvc "github.com/relicta-tech/changelogs/internal/service/workspace"
)

const readmeTemplate = "# Changelogs\n\n" +
	"This folder contains changelog files that describe changes to be released.\n\n" +
	"## Adding a changelog\n\n" +
	"Run `changelogs add` to create a new changelog file.\n\n" +
	"## File format\n\n" +
	"Changelog files are markdown with YAML frontmatter:\n\n" +
	"```markdown\n" +
	"---\n" +
	"package-name: minor\n" +
	"other-package: patch\n" +
	"---\n\n" +
	"Description of the changes made.\n" +
	"```\n\n" +
	"## Releasing\n\n" +
	"Run `changelogs version` to apply version bumps and generate changelogs.\n"

func newInitCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize changelogs in this workspace",
		Long: `Create the .changelog directory at the workspace root with a commented
config.toml and a README. Running init again only adds missing files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}
}

// runInit implements the init command.
func runInit(opts *Options) error {
	const op = "cli.init"

	start, err := opts.dir()
	if err != nil {
		return err
	}
	kind, err := opts.ecosystemKind()
	if err != nil {
		return err
	}
	root, kind, err := wssvc.FindRoot(start, kind)
	if err != nil {
		return err
	}

	dir := filepath.Join(root, changelog.DirName)
	existed := fileutil.IsDir(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rperrors.IOWrap(err, op, "failed to create "+dir)
	}

	wroteConfig, err := config.WriteDefault(dir)
	if err != nil {
		return err
	}
	readme := filepath.Join(dir, "README.md")
	wroteReadme := false
	if !fileutil.Exists(readme) {
		if err := fileutil.WriteFile(readme, []byte(readmeTemplate)); err != nil {
			return rperrors.IOWrap(err, op, "failed to write "+readme)
		}
		wroteReadme = true
	}

	if existed {
		opts.PrintWarning(fmt.Sprintf("changelogs is already initialized in %s", dir))
		if wroteConfig {
			opts.PrintSuccess("Created missing " + config.FileName)
		}
		if wroteReadme {
			opts.PrintSuccess("Created missing README.md")
		}
		return nil
	}

	opts.PrintSuccess(fmt.Sprintf("Initialized changelogs in %s (%s)", dir, kind))
	opts.Println("")
	opts.Println("Next steps:")
	opts.Println("  1. Run " + opts.Styles.Accent.Render("changelogs add") + " to create your first changelog")
	opts.Println("  2. Commit the changelog file with your PR")
	opts.Println("  3. Run " + opts.Styles.Accent.Render("changelogs version") + " to apply versions")
	return nil
}
