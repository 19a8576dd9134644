package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

// testRepo builds histories in a temporary repository.
type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	// clock advances one minute per commit so committer order is stable
	clock time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	return &testRepo{
		t:     t,
		dir:   dir,
		repo:  repo,
		clock: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (h *testRepo) signature(name string) *object.Signature {
	h.clock = h.clock.Add(time.Minute)
	return &object.Signature{Name: name, Email: "dev@example.com", When: h.clock}
}

// commit writes files and commits them as author.
func (h *testRepo) commit(author, message string, files map[string]string) plumbing.Hash {
	h.t.Helper()

	wt, err := h.repo.Worktree()
	require.NoError(h.t, err)

	for name, content := range files {
		path := filepath.Join(h.dir, filepath.FromSlash(name))
		require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(h.t, err)
	}

	sig := h.signature(author)
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	require.NoError(h.t, err)
	return hash
}

// merge records a merge commit of branch tip into HEAD without touching the
// worktree; the tree is taken from the branch tip.
func (h *testRepo) merge(message string, tip plumbing.Hash) plumbing.Hash {
	h.t.Helper()

	head, err := h.repo.Head()
	require.NoError(h.t, err)
	tipCommit, err := h.repo.CommitObject(tip)
	require.NoError(h.t, err)

	sig := h.signature("GitHub")
	c := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      message,
		TreeHash:     tipCommit.TreeHash,
		ParentHashes: []plumbing.Hash{head.Hash(), tip},
	}
	obj := h.repo.Storer.NewEncodedObject()
	require.NoError(h.t, c.Encode(obj))
	hash, err := h.repo.Storer.SetEncodedObject(obj)
	require.NoError(h.t, err)

	ref := plumbing.NewHashReference(head.Name(), hash)
	require.NoError(h.t, h.repo.Storer.SetReference(ref))
	return hash
}

func (h *testRepo) checkout(branch string, create bool) {
	h.t.Helper()
	wt, err := h.repo.Worktree()
	require.NoError(h.t, err)
	require.NoError(h.t, wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
		Force:  true,
	}))
}

func (h *testRepo) open() *Repository {
	h.t.Helper()
	r, err := Open(h.dir)
	require.NoError(h.t, err)
	return r
}

func TestTimeoutHelpers(t *testing.T) {
	ctx := context.Background()
	localCtx, cancelLocal := withLocalTimeout(ctx)
	defer cancelLocal()

	dl, ok := localCtx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(dl), DefaultLocalTimeout)

	shortCtx, shortCancel := context.WithTimeout(ctx, time.Second)
	defer shortCancel()
	withShort, cancelShort := withRemoteTimeout(shortCtx)
	defer cancelShort()
	dl, _ = withShort.Deadline()
	assert.Less(t, time.Until(dl), 2*time.Second)
}

func TestOpen_FromSubdirectory(t *testing.T) {
	h := newTestRepo(t)
	h.commit("Ada", "init", map[string]string{"crates/core/Cargo.toml": "[package]\n"})

	r, err := Open(filepath.Join(h.dir, "crates", "core"))
	require.NoError(t, err)

	want, _ := filepath.EvalSymlinks(h.dir)
	got, _ := filepath.EvalSymlinks(r.Root())
	assert.Equal(t, want, got)
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindGit))
}

func TestRemoteURL(t *testing.T) {
	h := newTestRepo(t)
	h.commit("Ada", "init", map[string]string{"a.txt": "a"})
	_, err := h.repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:acme/tools.git"},
	})
	require.NoError(t, err)

	r := h.open()
	url, err := r.RemoteURL("")
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:acme/tools.git", url)

	_, err = r.RemoteURL("upstream")
	assert.Error(t, err)
}

func TestCreateTag(t *testing.T) {
	h := newTestRepo(t)
	head := h.commit("Ada", "init", map[string]string{"a.txt": "a"})
	r := h.open()
	ctx := context.Background()

	exists, err := r.TagExists("core@1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, r.CreateTag(ctx, "core@1.0.0", ""))
	require.NoError(t, r.CreateTag(ctx, "cli@0.2.0", "cli 0.2.0"))

	ref, err := h.repo.Reference(plumbing.NewTagReferenceName("core@1.0.0"), false)
	require.NoError(t, err)
	assert.Equal(t, head, ref.Hash(), "lightweight tag points at HEAD")

	ref, err = h.repo.Reference(plumbing.NewTagReferenceName("cli@0.2.0"), false)
	require.NoError(t, err)
	tag, err := h.repo.TagObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, head, tag.Target)
	assert.Equal(t, "cli 0.2.0", strings.TrimSpace(tag.Message))
	assert.Equal(t, "changelogs", tag.Tagger.Name)

	exists, err = r.TagExists("cli@0.2.0")
	require.NoError(t, err)
	assert.True(t, exists)

	err = r.CreateTag(ctx, "core@1.0.0", "")
	assert.True(t, errors.IsKind(err, errors.KindGit), "duplicate tags are rejected")
}

func TestPushTag(t *testing.T) {
	remoteDir := t.TempDir()
	_, err := git.PlainInit(remoteDir, true)
	require.NoError(t, err)

	h := newTestRepo(t)
	h.commit("Ada", "init", map[string]string{"a.txt": "a"})
	_, err = h.repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remoteDir}})
	require.NoError(t, err)

	r := h.open()
	ctx := context.Background()
	require.NoError(t, r.CreateTag(ctx, "core@1.0.0", ""))
	require.NoError(t, r.PushTag(ctx, "core@1.0.0", ""))
	require.NoError(t, r.PushTag(ctx, "core@1.0.0", "origin"), "pushing again is a no-op")

	bare, err := git.PlainOpen(remoteDir)
	require.NoError(t, err)
	_, err = bare.Reference(plumbing.NewTagReferenceName("core@1.0.0"), false)
	assert.NoError(t, err)
}

type recordingRunner struct {
	cmds []ecosystem.Command
	out  ecosystem.Output
	err  error
}

func (r *recordingRunner) Run(_ context.Context, cmd ecosystem.Command) (ecosystem.Output, error) {
	r.cmds = append(r.cmds, cmd)
	return r.out, r.err
}

func TestStagedDiff(t *testing.T) {
	h := newTestRepo(t)
	h.commit("Ada", "init", map[string]string{"a.txt": "a"})

	runner := &recordingRunner{out: ecosystem.Output{Stdout: "diff --git a/a.txt b/a.txt\n"}}
	r, err := Open(h.dir, WithRunner(runner))
	require.NoError(t, err)

	diff, err := r.StagedDiff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "diff --git a/a.txt b/a.txt\n", diff)
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, "git", runner.cmds[0].Name)
	assert.Equal(t, []string{"diff", "--cached", "--no-color", "--no-ext-diff"}, runner.cmds[0].Args)
	assert.Equal(t, r.Root(), runner.cmds[0].Dir)

	runner.err = assert.AnError
	runner.out = ecosystem.Output{Stderr: "fatal: bad revision", ExitCode: 128}
	_, err = r.StagedDiff(context.Background())
	assert.True(t, errors.IsKind(err, errors.KindProcess))

	runner.err = nil
	_, err = r.WorkingDiff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"diff", "--no-color", "--no-ext-diff"}, runner.cmds[len(runner.cmds)-1].Args)
}

func TestDiffFrom(t *testing.T) {
	h := newTestRepo(t)
	h.commit("Ada", "init", map[string]string{"src/lib.rs": "fn a() {}\n"})
	h.checkout("feature", true)
	h.commit("Ada", "add b", map[string]string{"src/lib.rs": "fn a() {}\nfn b() {}\n"})

	r := h.open()
	diff, err := r.DiffFrom(context.Background(), "master")
	require.NoError(t, err)
	assert.Contains(t, diff, "src/lib.rs")
	assert.Contains(t, diff, "+fn b() {}")

	_, err = r.DiffFrom(context.Background(), "no-such-branch")
	assert.True(t, errors.IsKind(err, errors.KindGit))
}
