package orchestrator

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/wtsync/internal/config"
	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/lock"
	"github.com/randalmurphal/wtsync/internal/logging"
	"github.com/randalmurphal/wtsync/internal/merge"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/notify"
	"github.com/randalmurphal/wtsync/internal/preflight"
	"github.com/randalmurphal/wtsync/internal/rollback"
	"github.com/randalmurphal/wtsync/internal/sanitize"
	"github.com/randalmurphal/wtsync/internal/storage"
)

type fakeGit struct {
	branch    string
	worktrees []model.Worktree
	pushErrs  []error
	pushes    int
}

func (f *fakeGit) RepoPath() string { return "/repo" }

func (f *fakeGit) CurrentBranch(context.Context) (string, error) { return f.branch, nil }

func (f *fakeGit) ListWorktrees(context.Context) ([]model.Worktree, error) { return f.worktrees, nil }

func (f *fakeGit) Push(context.Context, string, string) error {
	f.pushes++
	if len(f.pushErrs) == 0 {
		return nil
	}
	err := f.pushErrs[0]
	f.pushErrs = f.pushErrs[1:]
	return err
}

type fakeValidator struct {
	result *model.ValidationResult
	calls  int
}

func (f *fakeValidator) Validate(context.Context, preflight.Options) *model.ValidationResult {
	f.calls++
	if f.result == nil {
		return model.NewValidationResult()
	}
	return f.result
}

type fakeDiff struct {
	summary model.DiffSummary
	err     error
}

func (f *fakeDiff) Summary(context.Context, string, string) (model.DiffSummary, error) {
	return f.summary, f.err
}

type fakeConflicts struct {
	info  model.ConflictInfo
	calls int
}

func (f *fakeConflicts) CheckConflicts(context.Context, string, string) (model.ConflictInfo, error) {
	f.calls++
	return f.info, nil
}

type fakeMerger struct {
	result *merge.Result
	err    error
	calls  int
	opts   merge.Options
}

func (f *fakeMerger) MergeWorktree(_ context.Context, _ string, opts merge.Options) (*merge.Result, error) {
	f.calls++
	f.opts = opts
	return f.result, f.err
}

type fakeRollback struct {
	backups []model.BackupInfo
	err     error
}

func (f *fakeRollback) Rollback(_ context.Context, b model.BackupInfo, _ rollback.Options) (*rollback.Result, error) {
	f.backups = append(f.backups, b)
	if f.err != nil {
		return nil, f.err
	}
	return &rollback.Result{ToCommit: b.CommitHash}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type fakeVerifier struct {
	fail map[string]bool
	ran  []string
}

func (f *fakeVerifier) Verify(_ context.Context, _ string, command string) (string, error) {
	f.ran = append(f.ran, command)
	if f.fail[command] {
		return "FAIL\n", stderrors.New("exit status 1")
	}
	return "ok\n", nil
}

type fixture struct {
	cfg       *config.Config
	git       *fakeGit
	validator *fakeValidator
	diff      *fakeDiff
	conflicts *fakeConflicts
	merger    *fakeMerger
	rollback  *fakeRollback
	notifier  *recordingNotifier
	verifier  *fakeVerifier
	store     storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	merger := &fakeMerger{result: &merge.Result{
		Status:  model.StatusSuccess,
		Outcome: model.MergeOutcome{Success: true, CommitHash: "cafe"},
		Backup:  &model.BackupInfo{CommitHash: "beef", Branch: "feature/a"},
	}}
	return &fixture{
		cfg:       config.Default(),
		git:       &fakeGit{branch: "main"},
		validator: &fakeValidator{},
		diff:      &fakeDiff{summary: model.NewDiffSummary([]model.FileDiff{{Path: "a.go", Status: model.FileModified, Insertions: 3}})},
		conflicts: &fakeConflicts{info: model.NewConflictInfo(nil)},
		merger:    merger,
		rollback:  &fakeRollback{},
		notifier:  &recordingNotifier{},
		verifier:  &fakeVerifier{fail: map[string]bool{}},
		store:     store,
	}
}

func (f *fixture) orchestrator(opts ...Option) *Orchestrator {
	o := New(f.cfg, Deps{
		Git:       f.git,
		Store:     f.store,
		Validator: f.validator,
		Diff:      f.diff,
		Conflicts: f.conflicts,
		Merger:    f.merger,
		Rollback:  f.rollback,
		Notifier:  f.notifier,
		Verifier:  f.verifier,
	}, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func (f *fixture) stored(t *testing.T, id string) *model.SyncOperation {
	t.Helper()
	op, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	return op
}

func TestSyncWorktree_Success(t *testing.T) {
	f := newFixture(t)

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, op.Status)
	assert.Equal(t, "cafe", op.CommitHash)
	assert.Equal(t, "beef", op.RollbackPoint)
	require.NotNil(t, op.CompletedAt)
	require.NotNil(t, op.MergeOutcome)
	assert.True(t, op.MergeOutcome.Success)
	assert.Equal(t, 0, f.git.pushes, "auto push is off by default")

	saved := f.stored(t, op.ID)
	assert.Equal(t, model.StatusSuccess, saved.Status)
	require.NotNil(t, saved.Backup)
	assert.Equal(t, "beef", saved.Backup.CommitHash)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.StatusSuccess, f.notifier.events[0].Status)
}

func TestSyncWorktree_ZeroDiffSkipsConflictCheckAndMerge(t *testing.T) {
	f := newFixture(t)
	f.diff.summary = model.NewDiffSummary(nil)

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, op.Status)
	require.NotNil(t, op.DiffSummary)
	assert.Equal(t, 0, op.DiffSummary.FilesChanged)
	assert.Equal(t, 0, f.conflicts.calls)
	assert.Equal(t, 0, f.merger.calls)
}

func TestSyncWorktree_ConflictShortCircuitsMerge(t *testing.T) {
	f := newFixture(t)
	f.conflicts.info = model.NewConflictInfo([]model.ConflictDetail{
		{File: "shared.txt", Type: model.ConflictContent},
	})

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err, "conflicts are a status, not an error")

	assert.Equal(t, model.StatusConflict, op.Status)
	assert.Equal(t, 0, f.merger.calls)
	require.NotNil(t, op.ConflictInfo)
	assert.Equal(t, []string{"shared.txt"}, op.ConflictInfo.ConflictedFiles)
	assert.Equal(t, model.StatusConflict, f.stored(t, op.ID).Status)
}

func TestSyncWorktree_ForceMergesThroughConflicts(t *testing.T) {
	f := newFixture(t)
	f.conflicts.info = model.NewConflictInfo([]model.ConflictDetail{
		{File: "shared.txt", Type: model.ConflictContent},
	})

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, op.Status)
	assert.Equal(t, 1, f.merger.calls)
	assert.True(t, f.merger.opts.Force)
}

func TestSyncWorktree_DryRunDoesNotMerge(t *testing.T) {
	f := newFixture(t)

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, op.Status)
	assert.Equal(t, 1, f.conflicts.calls)
	assert.Equal(t, 0, f.merger.calls)
	assert.Empty(t, op.RollbackPoint)
}

func TestSyncWorktree_ExcludedBranch(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.ExcludedWorktrees = []string{"release/**"}

	op, err := f.orchestrator().SyncWorktree(context.Background(), "release/v1", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Contains(t, op.Error, "excluded")
	assert.Equal(t, 0, f.validator.calls)
	assert.Equal(t, model.StatusFailure, f.stored(t, op.ID).Status)
}

func TestSyncWorktree_PreflightFailureStopsBeforeGit(t *testing.T) {
	f := newFixture(t)
	result := model.NewValidationResult()
	result.AddCheck(model.ValidationCheck{Name: preflight.CheckWorktree, Message: "no worktree for feature/a"}, true)
	result.AddCheck(model.ValidationCheck{Name: preflight.CheckDiskSpace, Message: "low disk"}, true)
	f.validator.result = result

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Equal(t, "preflight validation failed: no worktree for feature/a; low disk", op.Error)
	assert.Nil(t, op.DiffSummary)
	assert.Equal(t, 0, f.merger.calls)
}

func TestSyncWorktree_WrongCheckoutFails(t *testing.T) {
	f := newFixture(t)
	f.git.branch = "develop"

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Contains(t, op.Error, "develop")
	assert.Equal(t, 0, f.merger.calls)
}

func TestSyncWorktree_MergeFailureKeepsBackup(t *testing.T) {
	f := newFixture(t)
	f.merger.result = &merge.Result{
		Status:  model.StatusFailure,
		Outcome: model.MergeOutcome{Error: merge.NotCleanMessage},
		Backup:  &model.BackupInfo{CommitHash: "beef", StashID: "stash@{0}", StashCommit: "abcd"},
	}
	f.cfg.Sync.AutoPush = true
	f.cfg.Sync.VerificationCommands = []string{"make test"}

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Equal(t, merge.NotCleanMessage, op.Error)
	assert.Equal(t, "stash@{0}", op.RollbackPoint)
	assert.Equal(t, 0, f.git.pushes)
	assert.Empty(t, f.verifier.ran)
}

func TestSyncWorktree_BackupErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.merger.result = nil
	f.merger.err = stderrors.New("stash push: index.lock exists")

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.Error(t, err)
	assert.Equal(t, wterrors.CodeSyncOperation, wterrors.CodeOf(err))

	se := wterrors.AsSyncError(err)
	require.NotNil(t, se)
	assert.Equal(t, "feature/a", se.Branch)
	assert.Equal(t, op.ID, se.OperationID)

	saved := f.stored(t, op.ID)
	assert.Equal(t, model.StatusFailure, saved.Status)
	assert.Contains(t, saved.Error, "index.lock")
	require.Len(t, f.notifier.events, 1)
}

func TestSyncWorktree_PushFailureStaysSuccess(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.AutoPush = true
	f.git.pushErrs = []error{stderrors.New("remote rejected")}

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, op.Status)
	assert.Contains(t, op.Error, "push failed")
	assert.Equal(t, 1, f.git.pushes, "non-retryable errors are not retried")
}

func TestSyncWorktree_PushRetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	transient := wterrors.NewGitOperation("git push origin main", 128, "fatal: Could not resolve host: example.com", nil)
	require.True(t, wterrors.IsRetryable(transient))
	f.git.pushErrs = []error{transient, transient}

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{Push: PushAlways})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, op.Status)
	assert.Empty(t, op.Error)
	assert.Equal(t, 3, f.git.pushes)
}

func TestSyncWorktree_PushRateLimited(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.AutoPush = true
	o := f.orchestrator(WithRateLimiter(sanitize.NewRateLimiter(1, time.Hour)))

	first, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)
	assert.Empty(t, first.Error)

	second, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, second.Status)
	assert.Contains(t, second.Error, "rate limit")
	assert.Equal(t, 1, f.git.pushes)
}

func TestSyncWorktree_VerificationFailureDemotesSuccess(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.VerificationCommands = []string{"go vet ./...", "make test", "echo done"}
	f.verifier.fail["make test"] = true

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.Error(t, err)

	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Equal(t, []string{"go vet ./...", "make test"}, f.verifier.ran, "remaining commands are skipped")
	assert.Contains(t, op.Error, "make test")
	assert.Equal(t, "beef", op.RollbackPoint, "rollback point survives the demotion")
	assert.Equal(t, model.StatusFailure, f.stored(t, op.ID).Status)
}

func TestSyncWorktree_RejectedVerificationCommand(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.VerificationCommands = []string{"rm -rf /"}

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.Error(t, err)

	assert.Equal(t, model.StatusFailure, op.Status)
	assert.Empty(t, f.verifier.ran)
	assert.ErrorIs(t, err, wterrors.ErrSecurity)
}

func TestSyncWorktree_InvalidBranchName(t *testing.T) {
	f := newFixture(t)

	op, err := f.orchestrator().SyncWorktree(context.Background(), "feat;rm -rf", SyncOptions{})
	require.Error(t, err)
	assert.Nil(t, op)

	ops, err := f.store.List(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, ops, "rejected input leaves no record")
}

func TestSyncWorktree_Disabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.Enabled = false

	_, err := f.orchestrator().SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.Error(t, err)
	assert.Equal(t, wterrors.CodeValidation, wterrors.CodeOf(err))
}

type recordingLocker struct {
	resources []string
}

func (l *recordingLocker) WithLock(ctx context.Context, resource string, _ lock.AcquireOptions, fn func(context.Context) error) error {
	l.resources = append(l.resources, resource)
	return fn(ctx)
}

func TestSyncWorktree_RunsUnderRepositoryLock(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	locker := &recordingLocker{}
	o.deps.Locker = locker

	_, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/repo"}, locker.resources)
}

func TestSyncAllWorktrees(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.ExcludedWorktrees = []string{"wip/*"}
	f.git.worktrees = []model.Worktree{
		{Path: "/repo", Branch: "main"},
		{Path: "/wt/a", Branch: "feature/a"},
		{Path: "/wt/wip", Branch: "wip/spike"},
		{Path: "/wt/detached", Detached: true},
		{Path: "/wt/b", Branch: "feature/b"},
	}

	ops, err := f.orchestrator().SyncAllWorktrees(context.Background(), SyncOptions{})
	require.NoError(t, err)

	require.Len(t, ops, 2)
	assert.Equal(t, "feature/a", ops[0].WorktreeBranch)
	assert.Equal(t, "feature/b", ops[1].WorktreeBranch)
	assert.Equal(t, 2, f.merger.calls)
}

func TestSyncAllWorktrees_ContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	f.git.worktrees = []model.Worktree{
		{Path: "/wt/bad", Branch: "bad$name"},
		{Path: "/wt/a", Branch: "feature/a"},
	}

	ops, err := f.orchestrator().SyncAllWorktrees(context.Background(), SyncOptions{})
	require.NoError(t, err)

	require.Len(t, ops, 2)
	assert.Equal(t, model.StatusFailure, ops[0].Status)
	assert.Equal(t, "bad$name", ops[0].WorktreeBranch)
	assert.Equal(t, model.StatusSuccess, ops[1].Status)
	assert.Equal(t, model.StatusFailure, f.stored(t, ops[0].ID).Status)
}

func TestRollbackSync(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	op, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	rolled, res, err := o.RollbackSync(context.Background(), op.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRolledBack, rolled.Status)
	assert.Equal(t, "beef", res.ToCommit)
	require.Len(t, f.rollback.backups, 1)
	assert.Equal(t, "beef", f.rollback.backups[0].CommitHash)
	assert.Equal(t, model.StatusRolledBack, f.stored(t, op.ID).Status)

	// Second rollback is a no-op.
	again, res, err := o.RollbackSync(context.Background(), op.ID, false)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, model.StatusRolledBack, again.Status)
	assert.Len(t, f.rollback.backups, 1)
}

func TestRollbackSync_Errors(t *testing.T) {
	f := newFixture(t)
	f.diff.summary = model.NewDiffSummary(nil)
	o := f.orchestrator()

	_, _, err := o.RollbackSync(context.Background(), "missing", false)
	require.Error(t, err)
	assert.Equal(t, wterrors.CodeNotFound, wterrors.CodeOf(err))

	noop, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)
	_, _, err = o.RollbackSync(context.Background(), noop.ID, false)
	require.Error(t, err)
	assert.Equal(t, wterrors.CodeRollback, wterrors.CodeOf(err))
	assert.Empty(t, f.rollback.backups)
}

func TestRollbackSync_FailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.rollback.err = wterrors.NewRollback("beef", "working tree has uncommitted changes", "use --force", nil)
	o := f.orchestrator()

	op, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.NoError(t, err)

	_, _, err = o.RollbackSync(context.Background(), op.ID, false)
	require.Error(t, err)
	assert.Equal(t, model.StatusSuccess, f.stored(t, op.ID).Status)
}

func TestGetSyncHistory(t *testing.T) {
	f := newFixture(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := f.orchestrator(WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	var successes []string
	for i, branch := range []string{"feature/a", "feature/b", "feature/c", "feature/d"} {
		if i == 2 {
			f.conflicts.info = model.NewConflictInfo([]model.ConflictDetail{{File: "x", Type: model.ConflictContent}})
		} else {
			f.conflicts.info = model.NewConflictInfo(nil)
		}
		op, err := o.SyncWorktree(context.Background(), branch, SyncOptions{})
		require.NoError(t, err)
		if op.Status == model.StatusSuccess {
			successes = append(successes, op.ID)
		}
	}
	require.Len(t, successes, 3)

	ops, err := o.GetSyncHistory(context.Background(), storage.Filter{Status: model.StatusSuccess, Limit: 2})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, successes[2], ops[0].ID)
	assert.Equal(t, successes[1], ops[1].ID)
	assert.True(t, ops[0].StartedAt.After(ops[1].StartedAt))

	byBranch, err := o.GetSyncHistory(context.Background(), storage.Filter{Branch: "feature/c"})
	require.NoError(t, err)
	require.Len(t, byBranch, 1)
	assert.Equal(t, model.StatusConflict, byBranch[0].Status)

	got, err := o.GetOperation(context.Background(), successes[0])
	require.NoError(t, err)
	assert.Equal(t, "feature/a", got.WorktreeBranch)
}

func TestCheckBranch(t *testing.T) {
	f := newFixture(t)
	f.conflicts.info = model.NewConflictInfo([]model.ConflictDetail{
		{File: "gone.txt", Type: model.ConflictDeleteModify},
	})

	report, err := f.orchestrator().CheckBranch(context.Background(), "feature/a")
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, report.RiskLevel)
	assert.False(t, report.CanAutoResolve)

	_, err = f.orchestrator().CheckBranch(context.Background(), "a|b")
	require.Error(t, err)
}

func TestSyncWorktree_TimeoutRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.TimeoutSeconds = 1
	f.merger.result = nil
	o := f.orchestrator()
	o.deps.Merger = mergerFunc(func(ctx context.Context) (*merge.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	op, err := o.SyncWorktree(context.Background(), "feature/a", SyncOptions{})
	require.Error(t, err)
	assert.Equal(t, model.StatusFailure, op.Status)

	assert.Equal(t, wterrors.CodeSyncOperation, wterrors.CodeOf(err))
	assert.ErrorIs(t, err, wterrors.ErrTimeout)
}

type mergerFunc func(ctx context.Context) (*merge.Result, error)

func (m mergerFunc) MergeWorktree(ctx context.Context, _ string, _ merge.Options) (*merge.Result, error) {
	return m(ctx)
}
