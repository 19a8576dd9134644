package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/changelogs/internal/config"
	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/changelog"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
	"github.com/relicta-tech/changelogs/internal/infrastructure/git"
	wssvc "github.com/relicta-tech/changelogs/internal/service/workspace"
)

// session is a discovered workspace together with its configuration.
type session struct {
	ws  *wssvc.Workspace
	cfg *config.Config
}

func (o *Options) dir() (string, error) {
	if o.Dir != "" {
		return o.Dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", rperrors.IOWrap(err, "cli.dir", "failed to get working directory")
	}
	return wd, nil
}

// ecosystemKind parses --ecosystem; empty and "auto" detect.
func (o *Options) ecosystemKind() (ecosystem.Kind, error) {
	return parseEcosystem(o.Ecosystem)
}

func parseEcosystem(s string) (ecosystem.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ecosystem.KindUnknown, nil
	}
	kind, err := ecosystem.ParseKind(s)
	if err != nil {
		return ecosystem.KindUnknown, rperrors.Validation("cli.ecosystem", err.Error())
	}
	return kind, nil
}

// loadConfig reads the config for the changelog directory dir. The
// --ecosystem flag overrides the file when it was given.
func (o *Options) loadConfig(cmd *cobra.Command, dir string) (*config.Config, error) {
	loader := config.NewLoader(dir)
	if o.ConfigFile != "" {
		loader.WithConfigPath(o.ConfigFile)
	}
	if cmd != nil {
		if err := loader.BindFlag("ecosystem", cmd.Flags().Lookup("ecosystem")); err != nil {
			return nil, err
		}
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	o.Config = cfg
	return cfg, nil
}

// openWorkspace finds the workspace root above the start directory, loads
// its config and discovers its packages with the configured ecosystem.
func (o *Options) openWorkspace(ctx context.Context, cmd *cobra.Command) (*session, error) {
	const op = "cli.openWorkspace"

	start, err := o.dir()
	if err != nil {
		return nil, err
	}
	kind, err := o.ecosystemKind()
	if err != nil {
		return nil, err
	}

	root, _, err := wssvc.FindRoot(start, kind)
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(cmd, filepath.Join(root, changelog.DirName))
	if err != nil {
		return nil, err
	}

	if kind == ecosystem.KindUnknown {
		if kind, err = parseEcosystem(cfg.Ecosystem); err != nil {
			return nil, rperrors.ConfigWrap(err, op, "invalid ecosystem in config")
		}
	}
	if kind != ecosystem.KindUnknown {
		cfg.Ecosystem = kind.String()
	}

	v := config.NewValidator(nil)
	if err := v.Validate(cfg); err != nil {
		return nil, err
	}
	for _, w := range v.Result().Warnings {
		o.Logger.Warn("config", "warning", w)
	}

	deps := o.Deps
	if deps.Logger == nil {
		deps.Logger = o.Logger
	}
	if deps.PythonVersionFile == "" {
		deps.PythonVersionFile = cfg.Python.VersionFile
	}

	ws, err := wssvc.Discover(ctx, start,
		wssvc.WithKind(kind),
		wssvc.WithDeps(deps),
		wssvc.WithLogger(o.Logger),
	)
	if err != nil {
		return nil, err
	}
	return &session{ws: ws, cfg: cfg}, nil
}

func (s *session) requireInitialized() error {
	if !s.ws.IsInitialized() {
		return rperrors.State("cli", "changelogs is not initialized in "+s.ws.Root()+"; run 'changelogs init' first")
	}
	return nil
}

// relPath shortens path to be relative to the workspace root.
func (s *session) relPath(path string) string {
	if rel, err := filepath.Rel(s.ws.Root(), path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// openRepository opens the git repository holding the workspace.
func (o *Options) openRepository(s *session) (*git.Repository, error) {
	gitOpts := []git.Option{git.WithLogger(o.Logger)}
	if o.Deps.Runner != nil {
		gitOpts = append(gitOpts, git.WithRunner(o.Deps.Runner))
	}
	return git.Open(s.ws.Root(), gitOpts...)
}

// repositoryURL is the web base for changelog links: the configured URL,
// else the GitHub URL of the configured remote.
func repositoryURL(repo *git.Repository, cfg *config.Config) string {
	if cfg.Changelog.RepositoryURL != "" {
		return cfg.Changelog.RepositoryURL
	}
	remote, err := repo.RemoteURL(cfg.Git.Remote)
	if err != nil {
		return ""
	}
	url, ok := git.GitHubURL(remote)
	if !ok {
		return ""
	}
	return url
}
