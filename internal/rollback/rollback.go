// Package rollback reverts a working tree to a recorded backup.
package rollback

import (
	"context"
	"fmt"
	"log/slog"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/model"
)

// Git is the subset of git.Client the rollback manager needs.
type Git interface {
	HeadCommit(ctx context.Context) (string, error)
	IsClean(ctx context.Context) (bool, error)
	RevParse(ctx context.Context, rev string) (string, error)
	CommitExists(ctx context.Context, sha string) bool
	Reset(ctx context.Context, commit string, hard bool) error
	FindStash(ctx context.Context, sha string) (string, error)
	StashApply(ctx context.Context, ref string) error
}

// Options controls a rollback.
type Options struct {
	// Force allows rolling back a dirty tree and uses a hard reset, which
	// discards uncommitted changes. Without it a mixed reset keeps them.
	Force bool
}

// Result describes what a rollback did.
type Result struct {
	FromCommit    string   `json:"from_commit"`
	ToCommit      string   `json:"to_commit"`
	NoOp          bool     `json:"no_op,omitempty"`
	StashRestored bool     `json:"stash_restored,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Manager performs rollbacks.
type Manager struct {
	git    Git
	logger *slog.Logger
}

// New creates a Manager. A nil logger uses slog.Default().
func New(g Git, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{git: g, logger: logger}
}

// Rollback resets HEAD to backup.CommitHash and then tries to re-apply the
// backup stash. A failed stash restore is reported as a warning because the
// commit-level revert has already succeeded.
func (m *Manager) Rollback(ctx context.Context, backup model.BackupInfo, opts Options) (*Result, error) {
	target := backup.CommitHash
	if target == "" {
		return nil, wterrors.NewRollback("", "backup has no commit hash", "", nil)
	}

	head, err := m.git.HeadCommit(ctx)
	if err != nil {
		return nil, wterrors.NewRollback(target, "cannot read HEAD", "", err)
	}
	res := &Result{FromCommit: head, ToCommit: target}
	if head == target {
		m.logger.Info("rollback not needed, HEAD already at target", "commit", target)
		res.NoOp = true
		return res, nil
	}

	if !opts.Force {
		clean, err := m.git.IsClean(ctx)
		if err != nil {
			return nil, wterrors.NewRollback(target, "cannot read working tree status", "", err)
		}
		if !clean {
			return nil, wterrors.NewRollback(target,
				"working tree has uncommitted changes",
				"Commit or stash the changes, or re-run with --force to discard them",
				nil)
		}
	}

	if err := m.git.Reset(ctx, target, opts.Force); err != nil {
		return nil, wterrors.NewRollback(target, "git reset failed", "Inspect the repository and reset manually", err)
	}
	m.logger.Info("rolled back", "from", head, "commit", target, "hard", opts.Force)

	if backup.StashID != "" || backup.StashCommit != "" {
		if err := m.restoreStash(ctx, backup); err != nil {
			msg := fmt.Sprintf("stash restore failed: %v", err)
			m.logger.Warn("rollback stash restore failed", "stash", backup.StashID, "error", err)
			res.Warnings = append(res.Warnings, msg)
		} else {
			res.StashRestored = true
		}
	}
	return res, nil
}

// restoreStash applies the backup's stash. The stash commit is preferred
// because stash@{N} shifts when later entries are pushed.
func (m *Manager) restoreStash(ctx context.Context, backup model.BackupInfo) error {
	ref := backup.StashID
	if backup.StashCommit != "" {
		found, err := m.git.FindStash(ctx, backup.StashCommit)
		if err != nil {
			return err
		}
		ref = found
	}
	return m.git.StashApply(ctx, ref)
}

// RollbackBySteps rolls HEAD back n commits.
func (m *Manager) RollbackBySteps(ctx context.Context, n int, opts Options) (*Result, error) {
	if n < 1 {
		return nil, wterrors.NewValidation("invalid rollback step count", fmt.Sprintf("steps must be at least 1, got %d", n))
	}
	rev := fmt.Sprintf("HEAD~%d", n)
	target, err := m.git.RevParse(ctx, rev)
	if err != nil {
		return nil, wterrors.NewRollback(rev, fmt.Sprintf("%s does not exist", rev), "Use a smaller step count", err)
	}
	return m.Rollback(ctx, model.BackupInfo{CommitHash: target}, opts)
}

// VerifyRollbackPossible checks, without changing anything, that the backup
// commit exists and the working tree is clean.
func (m *Manager) VerifyRollbackPossible(ctx context.Context, backup model.BackupInfo) *model.ValidationResult {
	r := model.NewValidationResult()

	exists := backup.CommitHash != "" && m.git.CommitExists(ctx, backup.CommitHash)
	check := model.ValidationCheck{Name: "target_commit", Passed: exists, Message: "target commit exists"}
	if !exists {
		check.Message = fmt.Sprintf("target commit %q does not exist", backup.CommitHash)
	}
	r.AddCheck(check, true)

	clean, err := m.git.IsClean(ctx)
	check = model.ValidationCheck{Name: "working_tree", Passed: err == nil && clean, Message: "working tree is clean"}
	switch {
	case err != nil:
		check.Message = fmt.Sprintf("cannot read working tree status: %v", err)
	case !clean:
		check.Message = "working tree has uncommitted changes"
	}
	r.AddCheck(check, true)

	return r
}
