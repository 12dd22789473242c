// Package merge performs a guarded merge of a worktree branch into the
// checked-out trunk: backup, conflict pre-check, merge, then a cleanliness
// check of the result.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// NotCleanMessage is the outcome error when a merge reported success but
// left the working tree dirty.
const NotCleanMessage = "Repository is not clean after merge"

// Git is the subset of git.Client the merger needs.
type Git interface {
	HeadCommit(ctx context.Context) (string, error)
	StashPush(ctx context.Context, message string) (*git.StashEntry, error)
	Merge(ctx context.Context, branch, message string) (string, error)
	AbortMerge(ctx context.Context) error
	Status(ctx context.Context) (string, error)
}

// ConflictChecker predicts merge conflicts.
type ConflictChecker interface {
	CheckConflicts(ctx context.Context, base, target string) (model.ConflictInfo, error)
}

// Options controls one MergeWorktree call.
type Options struct {
	// Force merges even when conflicts are predicted.
	Force bool
	// DryRun only predicts conflicts; nothing is mutated and no backup is taken.
	DryRun bool
}

// Result is the outcome of MergeWorktree. Backup is set whenever a full run
// got far enough to take one, including failed and conflicted runs.
type Result struct {
	Status  model.SyncStatus
	Outcome model.MergeOutcome
	Backup  *model.BackupInfo
}

// Merger merges branches into the checked-out branch of one working tree.
type Merger struct {
	git     Git
	checker ConflictChecker
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// WithClock overrides time.Now for backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) {
		m.now = now
	}
}

// New creates a Merger.
func New(g Git, checker ConflictChecker, opts ...Option) *Merger {
	m := &Merger{git: g, checker: checker, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// CommitMessage is the merge commit message for branch.
func CommitMessage(branch string) string {
	return fmt.Sprintf("chore: merge %s - sync from %s", branch, branch)
}

// MergeWorktree merges branch into HEAD.
//
// A full run always records a backup before anything else; failing to take
// it aborts with an error because no rollback point would exist. Predicted
// conflicts stop the run unless opts.Force is set.
func (m *Merger) MergeWorktree(ctx context.Context, branch string, opts Options) (*Result, error) {
	if err := sanitize.ValidateBranchName(branch); err != nil {
		return nil, err
	}
	logger := m.logger.With("branch", branch)

	if opts.DryRun {
		info, err := m.checker.CheckConflicts(ctx, "HEAD", branch)
		if err != nil {
			return nil, fmt.Errorf("dry run conflict check: %w", err)
		}
		res := &Result{
			Status:  model.StatusSuccess,
			Outcome: model.MergeOutcome{Success: !info.HasConflicts, Conflicts: &info},
		}
		if info.HasConflicts {
			res.Status = model.StatusConflict
		}
		logger.Info("dry run merge", "conflicts", len(info.ConflictedFiles))
		return res, nil
	}

	backup, err := m.backup(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("create backup before merging %s: %w", branch, err)
	}
	logger.Info("backup created", "commit", backup.CommitHash, "stash", backup.StashID)

	info, err := m.checker.CheckConflicts(ctx, "HEAD", branch)
	if err != nil {
		return failed(backup, nil, fmt.Sprintf("conflict check failed: %v", err)), nil
	}
	if info.HasConflicts && !opts.Force {
		logger.Warn("merge skipped: conflicts predicted", "conflicts", len(info.ConflictedFiles))
		return &Result{
			Status:  model.StatusConflict,
			Outcome: model.MergeOutcome{Success: false, Conflicts: &info},
			Backup:  backup,
		}, nil
	}

	sha, err := m.git.Merge(ctx, branch, CommitMessage(branch))
	if err != nil {
		if abortErr := m.git.AbortMerge(ctx); abortErr != nil {
			logger.Debug("merge abort failed", "error", abortErr)
		}
		logger.Error("merge failed", "error", err)
		return failed(backup, conflictsOrNil(info), err.Error()), nil
	}

	status, err := m.git.Status(ctx)
	if err != nil {
		return failed(backup, nil, fmt.Sprintf("post-merge status failed: %v", err)), nil
	}
	if status != "" {
		logger.Error("merge left a dirty working tree", "status", status)
		return failed(backup, nil, NotCleanMessage), nil
	}

	logger.Info("merge completed", "commit", sha)
	if hint := backup.RestoreHint(); hint != "" {
		logger.Info("uncommitted changes remain stashed", "stash", backup.StashID, "restore", hint)
	}
	return &Result{
		Status:  model.StatusSuccess,
		Outcome: model.MergeOutcome{Success: true, CommitHash: sha},
		Backup:  backup,
	}, nil
}

// backup records HEAD and stashes uncommitted work. A clean tree yields a
// backup with no stash entry.
func (m *Merger) backup(ctx context.Context, branch string) (*model.BackupInfo, error) {
	head, err := m.git.HeadCommit(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := m.git.StashPush(ctx, "wtsync backup before merging "+branch)
	if err != nil {
		return nil, err
	}
	b := &model.BackupInfo{
		CommitHash: head,
		Timestamp:  m.now().UTC(),
		Branch:     branch,
	}
	if entry != nil {
		b.StashID = entry.Ref
		b.StashCommit = entry.SHA
	}
	return b, nil
}

func failed(backup *model.BackupInfo, conflicts *model.ConflictInfo, msg string) *Result {
	return &Result{
		Status:  model.StatusFailure,
		Outcome: model.MergeOutcome{Success: false, Conflicts: conflicts, Error: msg},
		Backup:  backup,
	}
}

func conflictsOrNil(info model.ConflictInfo) *model.ConflictInfo {
	if !info.HasConflicts {
		return nil
	}
	return &info
}
