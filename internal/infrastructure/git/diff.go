package git

import (
	"context"
	"fmt"

	rperrors "github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

// StagedDiff returns the patch of the index against HEAD.
func (r *Repository) StagedDiff(ctx context.Context) (string, error) {
	return r.cliDiff(ctx, "git.StagedDiff", "--cached")
}

// WorkingDiff returns the unstaged patch of the working tree against the
// index.
func (r *Repository) WorkingDiff(ctx context.Context) (string, error) {
	return r.cliDiff(ctx, "git.WorkingDiff")
}

// cliDiff shells out because go-git cannot render patches against the index.
func (r *Repository) cliDiff(ctx context.Context, op string, extra ...string) (string, error) {
	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	args := append([]string{"diff"}, extra...)
	args = append(args, "--no-color", "--no-ext-diff")
	cmd := ecosystem.Command{Name: "git", Args: args, Dir: r.root}

	out, err := r.runner.Run(ctx, cmd)
	if err != nil {
		return "", rperrors.ProcessWrap(err, op, cmd.String()+" failed", out.Combined())
	}
	return out.Stdout, nil
}

// DiffFrom returns the patch from the merge base of base and HEAD to HEAD,
// the equivalent of "git diff base...HEAD".
func (r *Repository) DiffFrom(ctx context.Context, base string) (string, error) {
	const op = "git.DiffFrom"

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	baseHash, err := r.resolveRef(base)
	if err != nil {
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve %s", base))
	}
	head, err := r.repo.Head()
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to resolve HEAD")
	}

	baseCommit, err := r.repo.CommitObject(baseHash)
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to get base commit")
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to get HEAD commit")
	}

	bases, err := headCommit.MergeBase(baseCommit)
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to compute merge base")
	}
	if len(bases) == 0 {
		return "", rperrors.Git(op, fmt.Sprintf("%s and HEAD have no common ancestor", base))
	}

	patch, err := bases[0].PatchContext(ctx, headCommit)
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to compute diff")
	}
	return patch.String(), nil
}
