package merge

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/wtsync/internal/conflict"
	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/git/gittest"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/tests/testutil"
)

type fakeChecker struct {
	info  model.ConflictInfo
	err   error
	calls int
}

func (f *fakeChecker) CheckConflicts(context.Context, string, string) (model.ConflictInfo, error) {
	f.calls++
	return f.info, f.err
}

func conflicted(files ...string) model.ConflictInfo {
	var ds []model.ConflictDetail
	for _, f := range files {
		ds = append(ds, model.ConflictDetail{File: f, Type: model.ConflictContent})
	}
	return model.NewConflictInfo(ds)
}

func fakeClient(t *testing.T, runner *gittest.Runner) *git.Client {
	t.Helper()
	c, err := git.NewClient(context.Background(), t.TempDir(), git.WithRunner(runner))
	require.NoError(t, err)
	return c
}

func TestMergeWorktree_ConflictsSkipMerge(t *testing.T) {
	runner := gittest.New().
		On("rev-parse HEAD", "1111111111111111111111111111111111111111", nil).
		On("stash push", "No local changes to save", nil)
	checker := &fakeChecker{info: conflicted("shared.txt")}

	res, err := New(fakeClient(t, runner), checker).MergeWorktree(context.Background(), "feature/a", Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusConflict, res.Status)
	assert.False(t, res.Outcome.Success)
	require.NotNil(t, res.Outcome.Conflicts)
	assert.Equal(t, []string{"shared.txt"}, res.Outcome.Conflicts.ConflictedFiles)
	assert.False(t, runner.Called("merge --no-ff"), "merge must not run when conflicts are predicted")

	require.NotNil(t, res.Backup, "backup is retained on conflict")
	assert.Equal(t, "1111111111111111111111111111111111111111", res.Backup.CommitHash)
	assert.Empty(t, res.Backup.StashID)
	assert.Equal(t, res.Backup.CommitHash, res.Backup.RollbackPoint())
}

func TestMergeWorktree_ForceMergesDespiteConflicts(t *testing.T) {
	runner := gittest.New().
		On("rev-parse HEAD", "2222222222222222222222222222222222222222", nil).
		On("stash push", "No local changes to save", nil)
	checker := &fakeChecker{info: conflicted("shared.txt")}

	res, err := New(fakeClient(t, runner), checker).MergeWorktree(context.Background(), "feature/a", Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 1, runner.Count("merge --no-ff --no-edit -m chore: merge feature/a - sync from feature/a feature/a"))
}

func TestMergeWorktree_BackupFailureIsFatal(t *testing.T) {
	runner := gittest.New().
		On("rev-parse HEAD", "abc", nil).
		On("stash push", "", gittest.Fail("fatal: index.lock exists", 128))
	checker := &fakeChecker{}

	res, err := New(fakeClient(t, runner), checker).MergeWorktree(context.Background(), "feature/a", Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "create backup")
	assert.Zero(t, checker.calls)
	assert.False(t, runner.Called("merge --no-ff"))
}

func TestMergeWorktree_MergeCommandFailure(t *testing.T) {
	runner := gittest.New().
		On("rev-parse HEAD", "abc", nil).
		On("stash push", "Saved working directory", nil).
		On("rev-parse stash@{0}", "5555555555555555555555555555555555555555", nil).
		On("merge --no-ff", "", gittest.Fail("CONFLICT (content): Merge conflict in a.txt", 1))

	res, err := New(fakeClient(t, runner), &fakeChecker{}).MergeWorktree(context.Background(), "feature/a", Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailure, res.Status)
	assert.Contains(t, res.Outcome.Error, "Merge conflict in a.txt")
	assert.True(t, runner.Called("merge --abort"))
	require.NotNil(t, res.Backup)
	assert.Equal(t, "stash@{0}", res.Backup.StashID)
	assert.Equal(t, "5555555555555555555555555555555555555555", res.Backup.StashCommit)
}

func TestMergeWorktree_DirtyAfterMergeFails(t *testing.T) {
	runner := gittest.New().
		On("rev-parse HEAD", "abc", nil).
		On("stash push", "No local changes to save", nil).
		On("status --porcelain", "UU a.txt", nil)

	res, err := New(fakeClient(t, runner), &fakeChecker{}).MergeWorktree(context.Background(), "feature/a", Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailure, res.Status)
	assert.Equal(t, NotCleanMessage, res.Outcome.Error)
	assert.NotNil(t, res.Backup)
}

func TestMergeWorktree_DryRunTouchesNothing(t *testing.T) {
	runner := gittest.New()
	checker := &fakeChecker{info: conflicted("x.go")}

	res, err := New(fakeClient(t, runner), checker).MergeWorktree(context.Background(), "feature/a", Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConflict, res.Status)
	assert.Nil(t, res.Backup)
	assert.False(t, runner.Called("stash"))
	assert.False(t, runner.Called("merge --no-ff"))

	checker.info = model.NewConflictInfo(nil)
	res, err = New(fakeClient(t, runner), checker).MergeWorktree(context.Background(), "feature/a", Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.True(t, res.Outcome.Success)
}

func TestMergeWorktree_RejectsUnsafeBranch(t *testing.T) {
	runner := gittest.New()
	_, err := New(fakeClient(t, runner), &fakeChecker{}).MergeWorktree(context.Background(), "a;rm -rf /", Options{})
	require.Error(t, err)
	assert.Len(t, runner.Calls(), 1, "only the constructor's repository probe ran")
}

func TestMergeWorktree_RealRepository(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	wt := repo.AddWorktree("feature/new")
	repo.WriteFileIn(wt, "new-file.txt", "content\n")
	repo.CommitAllIn(wt, "add new file")

	// Uncommitted work on the trunk ends up in the backup stash.
	repo.WriteFile("scratch.txt", "wip\n")
	before := repo.Head()

	client, err := git.NewClient(context.Background(), repo.RootDir)
	require.NoError(t, err)
	stamp := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	m := New(client, conflict.NewAnalyzer(client), WithClock(func() time.Time { return stamp }), WithLogger(logger))

	res, err := m.MergeWorktree(context.Background(), "feature/new", Options{})
	require.NoError(t, err)
	require.Equal(t, model.StatusSuccess, res.Status, res.Outcome.Error)

	testutil.AssertFileExists(t, filepath.Join(repo.RootDir, "new-file.txt"))
	testutil.AssertFileNotExists(t, filepath.Join(repo.RootDir, "scratch.txt"))
	assert.Equal(t, repo.Head(), res.Outcome.CommitHash)

	require.NotNil(t, res.Backup)
	assert.Equal(t, before, res.Backup.CommitHash)
	assert.Equal(t, "stash@{0}", res.Backup.StashID)
	assert.Equal(t, stamp, res.Backup.Timestamp)
	assert.Equal(t, "feature/new", res.Backup.Branch)
	assert.Contains(t, logs.String(), "uncommitted changes remain stashed")
	assert.Contains(t, logs.String(), "git stash apply "+res.Backup.StashCommit)
}
