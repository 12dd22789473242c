package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/wtsync/internal/config"
	"github.com/randalmurphal/wtsync/internal/conflict"
	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/merge"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/notify"
	"github.com/randalmurphal/wtsync/internal/preflight"
	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// PushMode overrides SyncConfig.AutoPush for one call.
type PushMode int

const (
	PushDefault PushMode = iota
	PushAlways
	PushNever
)

// SyncOptions controls one sync.
type SyncOptions struct {
	// Force merges even when conflicts are predicted.
	Force bool
	// DryRun stops after the conflict check without touching the tree.
	DryRun bool
	Push   PushMode
}

type resolvedOptions struct {
	force  bool
	dryRun bool
	push   bool
}

func (o SyncOptions) resolve(cfg *config.Config) resolvedOptions {
	r := resolvedOptions{force: o.Force, dryRun: o.DryRun, push: cfg.Sync.AutoPush}
	switch o.Push {
	case PushAlways:
		r.push = true
	case PushNever:
		r.push = false
	}
	return r
}

// SyncWorktree merges branch into the main branch. The returned operation
// is persisted in its final state. Conflicts and excluded branches are
// reported through the operation status with a nil error; anything that
// aborts the flow is recorded as Failure and returned wrapped with the
// branch and operation id.
func (o *Orchestrator) SyncWorktree(ctx context.Context, branch string, opts SyncOptions) (*model.SyncOperation, error) {
	if err := sanitize.ValidateBranchName(branch); err != nil {
		return nil, err
	}
	if !o.cfg.Sync.Enabled {
		return nil, wterrors.NewValidation("sync is disabled", "set sync.enabled to true in the configuration")
	}

	op := model.NewSyncOperation(uuid.NewString(), branch, o.now())
	logger := o.logger.With("branch", branch, "sync_id", op.ID)
	if err := o.deps.Store.Save(ctx, op); err != nil {
		return nil, wterrors.NewSyncOperation(branch, op.ID, err)
	}
	logger.Info("sync started")

	if d := o.cfg.Sync.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	start := time.Now()

	resolved := opts.resolve(o.cfg)
	err := o.withRepoLock(ctx, func(ctx context.Context) error {
		return o.run(ctx, op, resolved)
	})
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = wterrors.NewTimeout(fmt.Sprintf("sync of %s", branch), time.Since(start)).WithCause(err)
	}

	// Recording the outcome must survive the sync's own deadline.
	saveCtx := context.WithoutCancel(ctx)
	if err != nil {
		if op.Status.CanTransitionTo(model.StatusFailure) {
			_ = op.TransitionTo(model.StatusFailure, o.now())
			op.Error = err.Error()
		} else if op.Error == "" {
			op.Error = err.Error()
		}
		if serr := o.deps.Store.Save(saveCtx, op); serr != nil {
			logger.Error("persist failed operation", "error", serr)
		}
		logger.Error("sync failed", "error", err)
		o.notify(saveCtx, op)
		return op, wterrors.NewSyncOperation(branch, op.ID, err)
	}

	logger.Info("sync finished", "status", op.Status, "duration", op.Duration())
	o.notify(saveCtx, op)
	return op, nil
}

// run walks op through the sync state machine. Each transition is saved
// before the next step starts.
func (o *Orchestrator) run(ctx context.Context, op *model.SyncOperation, opts resolvedOptions) error {
	branch := op.WorktreeBranch
	logger := o.logger.With("branch", branch, "sync_id", op.ID)

	if o.cfg.Sync.IsExcluded(branch) {
		logger.Info("branch excluded from sync")
		op.Error = fmt.Sprintf("branch %s is excluded from sync", branch)
		return o.transition(ctx, op, model.StatusFailure)
	}

	if err := o.transition(ctx, op, model.StatusRunning); err != nil {
		return err
	}

	result := o.deps.Validator.Validate(ctx, o.preflightOptions(branch))
	for _, w := range result.Warnings {
		logger.Warn("preflight warning", "warning", w)
	}
	if !result.Valid {
		op.Error = "preflight validation failed: " + strings.Join(result.Errors, "; ")
		logger.Warn("preflight failed", "errors", len(result.Errors))
		return o.transition(ctx, op, model.StatusFailure)
	}

	main := o.cfg.MainBranch
	summary, err := o.deps.Diff.Summary(ctx, main, branch)
	if err != nil {
		return err
	}
	op.DiffSummary = &summary
	if err := o.save(ctx, op); err != nil {
		return err
	}
	logger.Debug("diff computed", "files_changed", summary.FilesChanged,
		"insertions", summary.Insertions, "deletions", summary.Deletions)
	if summary.FilesChanged == 0 {
		logger.Info("nothing to merge")
		return o.transition(ctx, op, model.StatusSuccess)
	}

	info, err := o.deps.Conflicts.CheckConflicts(ctx, main, branch)
	if err != nil {
		return err
	}
	op.ConflictInfo = &info
	if err := o.save(ctx, op); err != nil {
		return err
	}
	if info.HasConflicts && !opts.force {
		logger.Warn("conflicts predicted", "conflicts", len(info.ConflictedFiles))
		if o.cfg.Sync.ConflictStrategy == config.ConflictManual {
			for _, rec := range conflict.BuildReport(info).Recommendations {
				logger.Info("conflict recommendation", "recommendation", rec)
			}
		}
		op.Error = wterrors.NewConflictDetected(branch, info.ConflictedFiles).Error()
		return o.transition(ctx, op, model.StatusConflict)
	}

	if opts.dryRun {
		logger.Info("dry run complete", "files_changed", summary.FilesChanged)
		return o.transition(ctx, op, model.StatusSuccess)
	}

	current, err := o.deps.Git.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if current != main {
		op.Error = fmt.Sprintf("repository is on %s, expected %s to be checked out", current, main)
		return o.transition(ctx, op, model.StatusFailure)
	}

	res, err := o.deps.Merger.MergeWorktree(ctx, branch, merge.Options{Force: opts.force})
	if res != nil && res.Backup != nil {
		op.Backup = res.Backup
		op.RollbackPoint = res.Backup.RollbackPoint()
	}
	if err != nil {
		return err
	}
	outcome := res.Outcome
	op.MergeOutcome = &outcome
	op.CommitHash = outcome.CommitHash
	if outcome.Conflicts != nil {
		op.ConflictInfo = outcome.Conflicts
	}
	if outcome.Error != "" {
		op.Error = outcome.Error
	}
	if err := o.transition(ctx, op, res.Status); err != nil {
		return err
	}
	if res.Status != model.StatusSuccess {
		logger.Warn("merge did not succeed", "status", res.Status, "error", outcome.Error)
		return nil
	}
	logger.Info("merged", "commit", outcome.CommitHash)

	if opts.push {
		if err := o.push(ctx, main); err != nil {
			op.Error = "push failed: " + err.Error()
			logger.Warn("push failed, merge kept", "error", err)
			if err := o.save(ctx, op); err != nil {
				return err
			}
		}
	}

	for _, command := range o.cfg.Sync.VerificationCommands {
		if err := o.verify(ctx, command); err != nil {
			op.Error = err.Error()
			if terr := o.transition(ctx, op, model.StatusFailure); terr != nil {
				return terr
			}
			return err
		}
	}
	return nil
}

// push publishes main to the configured remote, retrying transient
// failures with a linear backoff.
func (o *Orchestrator) push(ctx context.Context, branch string) error {
	remote := o.cfg.Remote
	if err := o.limiter.Check("push:" + remote + "/" + branch); err != nil {
		return err
	}
	var err error
	for attempt := 0; attempt <= o.cfg.Sync.MaxRetries; attempt++ {
		if attempt > 0 {
			if serr := o.sleep(ctx, time.Duration(attempt)*o.cfg.Push.RetryBackoff); serr != nil {
				return serr
			}
			o.logger.Info("retrying push", "remote", remote, "attempt", attempt+1)
		}
		if err = o.deps.Git.Push(ctx, remote, branch); err == nil || !wterrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) verify(ctx context.Context, command string) error {
	if o.deps.Verifier == nil {
		return wterrors.NewValidation("verification commands configured but no verifier available")
	}
	if err := sanitize.ValidateShellCommand(command, nil); err != nil {
		return err
	}
	o.logger.Info("running verification", "command", command)
	out, err := o.deps.Verifier.Verify(ctx, o.deps.Git.RepoPath(), command)
	if err != nil {
		o.logger.Warn("verification failed", "command", command, "output", tail(out, 20))
		return fmt.Errorf("verification %q failed: %w", command, err)
	}
	return nil
}

func (o *Orchestrator) preflightOptions(branch string) preflight.Options {
	p := o.cfg.Preflight
	return preflight.Options{
		Branch:          branch,
		Remote:          o.cfg.Remote,
		MinFreeBytes:    p.MinFreeBytes,
		NetworkTimeout:  p.NetworkTimeout,
		SkipDiskSpace:   p.SkipDiskSpace,
		SkipHealth:      p.SkipHealth,
		SkipPermissions: p.SkipPermissions,
		SkipNetwork:     p.SkipNetwork,
	}
}

func (o *Orchestrator) transition(ctx context.Context, op *model.SyncOperation, next model.SyncStatus) error {
	if err := op.TransitionTo(next, o.now()); err != nil {
		return err
	}
	return o.save(ctx, op)
}

func (o *Orchestrator) save(ctx context.Context, op *model.SyncOperation) error {
	if err := o.deps.Store.Save(ctx, op); err != nil {
		return fmt.Errorf("persist operation %s: %w", op.ID, err)
	}
	return nil
}

// notify is best-effort; a failed notification never changes the outcome.
func (o *Orchestrator) notify(ctx context.Context, op *model.SyncOperation) {
	if !op.Status.IsTerminal() {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, notify.EventFromOperation(op, o.now())); err != nil {
		o.logger.Warn("notification failed", "sync_id", op.ID, "error", err)
	}
}

// tail returns at most the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
