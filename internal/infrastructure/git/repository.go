// Package git wraps go-git for the repository operations releases need:
// tagging, remote lookup, entry attribution and diff capture.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

// Default timeouts for git operations to prevent hangs on slow/unreachable remotes.
const (
	// DefaultLocalTimeout is the timeout for local git operations.
	DefaultLocalTimeout = 30 * time.Second

	// DefaultRemoteTimeout is the timeout for remote git operations.
	DefaultRemoteTimeout = 60 * time.Second
)

// DefaultRemote is used when no remote is configured.
const DefaultRemote = "origin"

// withLocalTimeout applies a timeout for local git operations.
func withLocalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	// Don't override if context already has a shorter deadline
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultLocalTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultLocalTimeout)
}

// withRemoteTimeout applies a timeout for remote git operations.
func withRemoteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	// Don't override if context already has a shorter deadline
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultRemoteTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultRemoteTimeout)
}

// Repository is an opened git repository.
type Repository struct {
	root   string
	repo   *git.Repository
	runner ecosystem.Runner
	logger *log.Logger
	tagger object.Signature
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithRunner sets the runner used for operations go-git cannot perform.
func WithRunner(runner ecosystem.Runner) Option {
	return func(r *Repository) { r.runner = runner }
}

// WithTagger sets the identity recorded on annotated tags.
func WithTagger(name, email string) Option {
	return func(r *Repository) {
		r.tagger.Name = name
		r.tagger.Email = email
	}
}

// Open opens the repository containing path, searching parent directories.
func Open(path string, opts ...Option) (*Repository, error) {
	const op = "git.Open"

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get absolute path")
	}

	repo, err := git.PlainOpenWithOptions(absPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to open repository")
	}

	root := absPath
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}

	r := &Repository{
		root:   root,
		repo:   repo,
		logger: log.New(io.Discard),
		tagger: object.Signature{Name: "changelogs", Email: "changelogs@localhost"},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runner == nil {
		r.runner = ecosystem.NewExecRunner(r.logger)
	}
	return r, nil
}

// Root returns the worktree root.
func (r *Repository) Root() string {
	return r.root
}

// RemoteURL returns the first URL of the named remote.
func (r *Repository) RemoteURL(name string) (string, error) {
	const op = "git.RemoteURL"

	if name == "" {
		name = DefaultRemote
	}
	remote, err := r.repo.Remote(name)
	if err != nil {
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to get remote %s", name))
	}

	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return "", rperrors.NotFound(op, fmt.Sprintf("remote %s has no URLs", name))
	}
	return cfg.URLs[0], nil
}

// TagExists reports whether a tag named name exists locally.
func (r *Repository) TagExists(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewTagReferenceName(name), false)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return false, rperrors.GitWrap(err, "git.TagExists", fmt.Sprintf("failed to look up tag %s", name))
}

// CreateTag tags HEAD. The tag is annotated when message is non-empty and
// lightweight otherwise.
func (r *Repository) CreateTag(ctx context.Context, name, message string) error {
	const op = "git.CreateTag"

	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := r.TagExists(name)
	if err != nil {
		return err
	}
	if exists {
		return rperrors.Git(op, fmt.Sprintf("tag %s already exists", name))
	}

	head, err := r.repo.Head()
	if err != nil {
		return rperrors.GitWrap(err, op, "failed to resolve HEAD")
	}
	hash := head.Hash()

	if message != "" {
		tagger := r.tagger
		tagger.When = time.Now()
		_, err = r.repo.CreateTag(name, hash, &git.CreateTagOptions{
			Message: message,
			Tagger:  &tagger,
		})
	} else {
		refName := plumbing.NewTagReferenceName(name)
		err = r.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash))
	}
	if err != nil {
		return rperrors.GitWrap(err, op, fmt.Sprintf("failed to create tag %s", name))
	}

	r.logger.Debug("created tag", "tag", name, "commit", hash.String()[:7])
	return nil
}

// PushTag pushes a single tag to remote.
func (r *Repository) PushTag(ctx context.Context, name, remote string) error {
	const op = "git.PushTag"

	ctx, cancel := withRemoteTimeout(ctx)
	defer cancel()

	if remote == "" {
		remote = DefaultRemote
	}
	refSpec := config.RefSpec(fmt.Sprintf("refs/tags/%s:refs/tags/%s", name, name))

	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{refSpec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return rperrors.GitWrap(err, op, fmt.Sprintf("failed to push tag %s", name))
	}
	return nil
}

// resolveRef resolves a hash, branch, tag or revision expression.
func (r *Repository) resolveRef(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve reference %s: %w", ref, err)
	}
	return *resolved, nil
}
