package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/wtsync/internal/config"
	"github.com/randalmurphal/wtsync/internal/logging"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/storage"
	"github.com/randalmurphal/wtsync/tests/testutil"
)

func buildForRepo(t *testing.T, repo *testutil.TestRepo, mutate func(*config.Config)) *Orchestrator {
	t.Helper()
	cfg := config.Default()
	cfg.RepoPath = repo.RootDir
	cfg.Preflight.SkipDiskSpace = true
	cfg.Preflight.SkipNetwork = true
	if mutate != nil {
		mutate(cfg)
	}
	o, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestIntegration_SyncNewFile(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	wt := repo.AddWorktree("feature/new")
	repo.WriteFileIn(wt, "new-file.txt", "hello\n")
	repo.CommitAllIn(wt, "add new file")
	before := repo.Head()

	o := buildForRepo(t, repo, nil)
	op, err := o.SyncWorktree(context.Background(), "feature/new", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, model.StatusSuccess, op.Status, op.Error)

	require.NotNil(t, op.DiffSummary)
	assert.Equal(t, 1, op.DiffSummary.FilesChanged)
	file, ok := op.DiffSummary.File("new-file.txt")
	require.True(t, ok)
	assert.Equal(t, model.FileAdded, file.Status)
	testutil.AssertFileExists(t, filepath.Join(repo.RootDir, "new-file.txt"))

	assert.Equal(t, repo.Head(), op.CommitHash)
	assert.Equal(t, before, op.RollbackPoint, "clean trunk rolls back to the pre-merge commit")

	// State lives in an ignored directory and never dirties the trunk.
	assert.Empty(t, repo.Git("status", "--porcelain"))

	rolled, _, err := o.RollbackSync(context.Background(), op.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRolledBack, rolled.Status)
	assert.Equal(t, before, repo.Head())
}

func TestIntegration_SameLineEditsConflict(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("shared.txt", "original\n")
	repo.CommitAll("add shared")

	wt := repo.AddWorktree("feature/edit")
	repo.WriteFileIn(wt, "shared.txt", "branch version\n")
	repo.CommitAllIn(wt, "branch edit")

	repo.WriteFile("shared.txt", "main version\n")
	repo.CommitAll("main edit")
	head := repo.Head()

	o := buildForRepo(t, repo, nil)
	report, err := o.CheckBranch(context.Background(), "feature/edit")
	require.NoError(t, err)
	require.True(t, report.ConflictInfo.HasConflicts)
	require.Len(t, report.ConflictInfo.Details, 1)
	assert.Equal(t, "shared.txt", report.ConflictInfo.Details[0].File)
	assert.Equal(t, model.ConflictContent, report.ConflictInfo.Details[0].Type)

	op, err := o.SyncWorktree(context.Background(), "feature/edit", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConflict, op.Status)
	assert.Equal(t, head, repo.Head(), "conflicted sync leaves main untouched")
}

func TestIntegration_SyncAllAndHistory(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	for _, branch := range []string{"feature/one", "feature/two", "spike/skip"} {
		wt := repo.AddWorktree(branch)
		repo.WriteFileIn(wt, filepath.Base(branch)+".txt", branch+"\n")
		repo.CommitAllIn(wt, "work on "+branch)
	}

	o := buildForRepo(t, repo, func(cfg *config.Config) {
		cfg.Store.Driver = storage.BackendSQLite
		cfg.Sync.ExcludedWorktrees = []string{"spike/*"}
	})

	ops, err := o.SyncAllWorktrees(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, model.StatusSuccess, op.Status, op.Error)
	}
	testutil.AssertFileExists(t, filepath.Join(repo.RootDir, "one.txt"))
	testutil.AssertFileExists(t, filepath.Join(repo.RootDir, "two.txt"))
	testutil.AssertFileNotExists(t, filepath.Join(repo.RootDir, "skip.txt"))

	history, err := o.GetSyncHistory(context.Background(), storage.Filter{Status: model.StatusSuccess, Limit: 1})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ops[1].ID, history[0].ID)
}

func TestIntegration_VerificationCommand(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	wt := repo.AddWorktree("feature/checked")
	repo.WriteFileIn(wt, "checked.txt", "x\n")
	repo.CommitAllIn(wt, "add checked")

	o := buildForRepo(t, repo, func(cfg *config.Config) {
		cfg.Sync.VerificationCommands = []string{"test -f checked.txt", "test -f missing.txt"}
	})

	op, err := o.SyncWorktree(context.Background(), "feature/checked", SyncOptions{})
	require.Error(t, err)
	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Contains(t, op.Error, "missing.txt")
	assert.NotEmpty(t, op.RollbackPoint)
}
