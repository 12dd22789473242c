package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/randalmurphal/wtsync/internal/conflict"
	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/rollback"
	"github.com/randalmurphal/wtsync/internal/sanitize"
	"github.com/randalmurphal/wtsync/internal/storage"
)

// SyncAllWorktrees syncs every eligible worktree branch one at a time.
// Bare, detached, main and excluded worktrees are skipped. A branch whose
// sync errors still contributes a Failure record, so the batch always
// returns one operation per attempted branch.
func (o *Orchestrator) SyncAllWorktrees(ctx context.Context, opts SyncOptions) ([]*model.SyncOperation, error) {
	worktrees, err := o.deps.Git.ListWorktrees(ctx)
	if err != nil {
		return nil, err
	}

	var ops []*model.SyncOperation
	for _, wt := range worktrees {
		if wt.Bare || wt.Detached || wt.Branch == "" || wt.Branch == o.cfg.MainBranch {
			continue
		}
		if o.cfg.Sync.IsExcluded(wt.Branch) {
			o.logger.Debug("skipping excluded worktree", "branch", wt.Branch)
			continue
		}
		if err := ctx.Err(); err != nil {
			return ops, err
		}

		op, err := o.SyncWorktree(ctx, wt.Branch, opts)
		if err != nil {
			o.logger.Error("worktree sync failed", "branch", wt.Branch, "error", err)
			if op == nil {
				op = o.failureRecord(ctx, wt.Branch, err)
			}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// failureRecord persists a Failure for a branch that never got an
// operation of its own, e.g. because its name was rejected.
func (o *Orchestrator) failureRecord(ctx context.Context, branch string, cause error) *model.SyncOperation {
	op := model.NewSyncOperation(uuid.NewString(), branch, o.now())
	_ = op.TransitionTo(model.StatusFailure, o.now())
	op.Error = cause.Error()
	if err := o.deps.Store.Save(context.WithoutCancel(ctx), op); err != nil {
		o.logger.Error("persist failure record", "branch", branch, "error", err)
	}
	return op
}

// RollbackSync restores the backup recorded on operation id and marks it
// RolledBack. Rolling back an operation twice is a no-op.
func (o *Orchestrator) RollbackSync(ctx context.Context, id string, force bool) (*model.SyncOperation, *rollback.Result, error) {
	op, err := o.deps.Store.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if op.Status == model.StatusRolledBack {
		o.logger.Warn("operation already rolled back", "sync_id", id)
		return op, &rollback.Result{NoOp: true}, nil
	}
	backup, ok := backupOf(op)
	if !ok {
		return op, nil, wterrors.NewRollback("", fmt.Sprintf("operation %s has no rollback point", id),
			"Only operations that reached the merge step can be rolled back", nil)
	}
	if !op.Status.CanTransitionTo(model.StatusRolledBack) {
		return op, nil, wterrors.NewRollback(backup.CommitHash,
			fmt.Sprintf("operation %s is %s", id, op.Status), "Wait for the sync to finish", nil)
	}

	var res *rollback.Result
	err = o.withRepoLock(ctx, func(ctx context.Context) error {
		var rerr error
		res, rerr = o.deps.Rollback.Rollback(ctx, backup, rollback.Options{Force: force})
		if rerr != nil {
			return rerr
		}
		return o.transition(ctx, op, model.StatusRolledBack)
	})
	if err != nil {
		return op, res, err
	}
	for _, w := range res.Warnings {
		o.logger.Warn("rollback warning", "sync_id", id, "warning", w)
	}
	o.logger.Info("rolled back", "sync_id", id, "branch", op.WorktreeBranch, "commit", backup.CommitHash)
	return op, res, nil
}

// backupOf recovers the BackupInfo for op. Records without a full backup
// fall back to a commit-only rollback point.
func backupOf(op *model.SyncOperation) (model.BackupInfo, bool) {
	if op.Backup != nil && op.Backup.CommitHash != "" {
		return *op.Backup, true
	}
	if op.RollbackPoint == "" || strings.HasPrefix(op.RollbackPoint, "stash@") {
		return model.BackupInfo{}, false
	}
	return model.BackupInfo{CommitHash: op.RollbackPoint, Branch: op.WorktreeBranch}, true
}

// GetSyncHistory lists persisted operations matching filter, newest first.
func (o *Orchestrator) GetSyncHistory(ctx context.Context, filter storage.Filter) ([]*model.SyncOperation, error) {
	return o.deps.Store.List(ctx, filter)
}

// GetOperation loads one operation by id.
func (o *Orchestrator) GetOperation(ctx context.Context, id string) (*model.SyncOperation, error) {
	return o.deps.Store.Load(ctx, id)
}

// CheckBranch predicts the conflicts of merging branch into main without
// recording anything.
func (o *Orchestrator) CheckBranch(ctx context.Context, branch string) (model.ConflictReport, error) {
	if err := sanitize.ValidateBranchName(branch); err != nil {
		return model.ConflictReport{}, err
	}
	info, err := o.deps.Conflicts.CheckConflicts(ctx, o.cfg.MainBranch, branch)
	if err != nil {
		return model.ConflictReport{}, err
	}
	return conflict.BuildReport(info), nil
}

// ValidateBranch runs the preflight checks for branch.
func (o *Orchestrator) ValidateBranch(ctx context.Context, branch string) (*model.ValidationResult, error) {
	if err := sanitize.ValidateBranchName(branch); err != nil {
		return nil, err
	}
	return o.deps.Validator.Validate(ctx, o.preflightOptions(branch)), nil
}
