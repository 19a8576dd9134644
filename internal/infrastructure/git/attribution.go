package git

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/relicta-tech/changelogs/internal/domain/entry"
	rperrors "github.com/relicta-tech/changelogs/internal/errors"
)

var (
	// squash merges and rebased PRs: "Fix parser (#123)"
	prSuffix = regexp.MustCompile(`\(#(\d+)\)`)
	// merge commits: "Merge pull request #123 from owner/branch"
	prMerge  = regexp.MustCompile(`^Merge pull request #(\d+)`)
	coAuthor = regexp.MustCompile(`(?mi)^co-authored-by:\s*(.+?)\s*<[^>]*>\s*$`)

	githubRemote = regexp.MustCompile(`^(?:git@github\.com:|ssh://git@github\.com/|https://(?:[^@/]+@)?github\.com/)([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// GitHubURL converts an ssh or https GitHub remote into the repository's web
// URL. Other hosts report false.
func GitHubURL(remote string) (string, bool) {
	m := githubRemote.FindStringSubmatch(strings.TrimSpace(remote))
	if m == nil {
		return "", false
	}
	return "https://github.com/" + m[1] + "/" + m[2], true
}

// Attribution finds the commit that added relPath (slash separated, relative
// to the worktree root) and derives the PR number and authors from it.
func (r *Repository) Attribution(ctx context.Context, relPath string) (entry.Attribution, error) {
	const op = "git.Attribution"

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	head, err := r.repo.Head()
	if err != nil {
		return entry.Attribution{}, rperrors.GitWrap(err, op, "failed to resolve HEAD")
	}

	added, err := r.addingCommit(ctx, head.Hash(), relPath)
	if err != nil {
		return entry.Attribution{}, rperrors.GitWrap(err, op, "failed to walk history for "+relPath)
	}
	if added == nil {
		return entry.Attribution{}, rperrors.NotFound(op, relPath+" is not committed")
	}

	attr := attributionOf(added)
	if attr.PR == 0 {
		pr, err := r.mergedPR(ctx, head.Hash(), added)
		if err != nil {
			return entry.Attribution{}, rperrors.GitWrap(err, op, "failed to find merge commit")
		}
		attr.PR = pr
	}
	return attr, nil
}

// CommitAttribution attributes a pinned commit.
func (r *Repository) CommitAttribution(ref string) (entry.Attribution, error) {
	const op = "git.CommitAttribution"

	hash, err := r.resolveRef(ref)
	if err != nil {
		return entry.Attribution{}, rperrors.GitWrap(err, op, "unknown commit "+ref)
	}
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return entry.Attribution{}, rperrors.GitWrap(err, op, "failed to read commit "+ref)
	}
	return attributionOf(c), nil
}

// addingCommit returns the newest non-merge commit reachable from from that
// created relPath, or nil.
func (r *Repository) addingCommit(ctx context.Context, from plumbing.Hash, relPath string) (*object.Commit, error) {
	iter, err := r.repo.Log(&git.LogOptions{
		From:     from,
		FileName: &relPath,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var added *object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if introduces(c, relPath) {
			added = c
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	return added, nil
}

func introduces(c *object.Commit, relPath string) bool {
	if c.NumParents() > 1 {
		return false
	}
	if _, err := c.File(relPath); err != nil {
		return false
	}
	if c.NumParents() == 0 {
		return true
	}
	parent, err := c.Parent(0)
	if err != nil {
		return false
	}
	_, err = parent.File(relPath)
	return errors.Is(err, object.ErrFileNotFound)
}

// mergedPR returns the PR number of the oldest merge commit between added and
// from whose subject names one.
func (r *Repository) mergedPR(ctx context.Context, from plumbing.Hash, added *object.Commit) (int, error) {
	iter, err := r.repo.Log(&git.LogOptions{From: from, Order: git.LogOrderCommitterTime})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	pr := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		// history older than the entry cannot contain its merge
		if c.Committer.When.Before(added.Committer.When) {
			return storer.ErrStop
		}
		if c.NumParents() < 2 {
			return nil
		}
		n := subjectPR(c.Message)
		if n == 0 {
			return nil
		}
		ok, err := added.IsAncestor(c)
		if err != nil {
			return err
		}
		if ok {
			// keep walking: the oldest qualifying merge wins
			pr = n
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return 0, err
	}
	return pr, nil
}

func attributionOf(c *object.Commit) entry.Attribution {
	authors := []string{c.Author.Name}
	for _, m := range coAuthor.FindAllStringSubmatch(c.Message, -1) {
		authors = append(authors, m[1])
	}
	return entry.Attribution{
		Commit:  c.Hash.String(),
		PR:      subjectPR(c.Message),
		Authors: dedupeSorted(authors),
	}
}

func subjectPR(message string) int {
	subject, _, _ := strings.Cut(message, "\n")
	m := prSuffix.FindStringSubmatch(subject)
	if m == nil {
		m = prMerge.FindStringSubmatch(subject)
	}
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Attributor resolves entry ids to attributions, caching results. Lookup
// failures are logged and reported as "no attribution".
type Attributor struct {
	ctx  context.Context
	repo *Repository
	dir  string

	mu    sync.Mutex
	pins  map[string]string
	cache map[string]attributorResult
}

type attributorResult struct {
	attr entry.Attribution
	ok   bool
}

// Attributor returns an Attributor for entries stored in changelogDir.
func (r *Repository) Attributor(ctx context.Context, changelogDir string) (*Attributor, error) {
	rel, err := relativeTo(r.root, changelogDir)
	if err != nil {
		return nil, rperrors.GitWrap(err, "git.Attributor", fmt.Sprintf("%s is outside the repository", changelogDir))
	}
	return &Attributor{
		ctx:   ctx,
		repo:  r,
		dir:   rel,
		pins:  make(map[string]string),
		cache: make(map[string]attributorResult),
	}, nil
}

// Pin records entries whose frontmatter names their originating commit.
func (a *Attributor) Pin(entries []entry.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range entries {
		if e.Commit != "" {
			a.pins[e.ID] = e.Commit
		}
	}
}

// Attribute implements changelog.Attributor.
func (a *Attributor) Attribute(id string) (entry.Attribution, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if res, ok := a.cache[id]; ok {
		return res.attr, res.ok
	}

	var (
		attr entry.Attribution
		err  error
	)
	if pinned, ok := a.pins[id]; ok {
		attr, err = a.repo.CommitAttribution(pinned)
	} else {
		attr, err = a.repo.Attribution(a.ctx, path.Join(a.dir, id+".md"))
	}
	if err != nil {
		a.repo.logger.Debug("no attribution for entry", "id", id, "err", err)
	}
	res := attributorResult{attr: attr, ok: err == nil}
	a.cache[id] = res
	return res.attr, res.ok
}

func relativeTo(root, dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not under %s", dir, root)
	}
	return filepath.ToSlash(rel), nil
}
