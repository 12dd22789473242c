package model

import (
	"fmt"
	"time"
)

// SyncStatus is the state of a SyncOperation.
type SyncStatus string

const (
	StatusPending    SyncStatus = "pending"
	StatusRunning    SyncStatus = "running"
	StatusSuccess    SyncStatus = "success"
	StatusConflict   SyncStatus = "conflict"
	StatusFailure    SyncStatus = "failure"
	StatusRolledBack SyncStatus = "rolled_back"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []SyncStatus{
	StatusPending, StatusRunning, StatusSuccess, StatusConflict, StatusFailure, StatusRolledBack,
}

// ParseSyncStatus accepts a status name, case-sensitively.
func ParseSyncStatus(s string) (SyncStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown sync status %q", s)
}

// IsTerminal reports whether the sync flow has finished in s.
func (s SyncStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusConflict, StatusFailure, StatusRolledBack:
		return true
	}
	return false
}

var transitions = map[SyncStatus][]SyncStatus{
	StatusPending: {StatusRunning, StatusFailure},
	StatusRunning: {StatusSuccess, StatusConflict, StatusFailure},
	// Verification runs after a successful merge and may demote it.
	StatusSuccess:  {StatusFailure, StatusRolledBack},
	StatusConflict: {StatusRolledBack},
	StatusFailure:  {StatusRolledBack},
}

// CanTransitionTo reports whether s may move to next.
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MergeOutcome is what SafeMerger reports about one merge attempt.
type MergeOutcome struct {
	Success    bool          `json:"success"`
	CommitHash string        `json:"commit_hash,omitempty"`
	Conflicts  *ConflictInfo `json:"conflicts,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BackupInfo is the restore point taken before a merge mutates the tree.
// StashID is empty when the working tree was clean and nothing was stashed.
type BackupInfo struct {
	StashID     string    `json:"stash_id,omitempty"`
	StashCommit string    `json:"stash_commit,omitempty"`
	CommitHash  string    `json:"commit_hash"`
	Timestamp   time.Time `json:"timestamp"`
	Branch      string    `json:"branch"`
}

// RollbackPoint identifies the backup: the stash id, or the pre-merge
// commit when nothing was stashed.
func (b BackupInfo) RollbackPoint() string {
	if b.StashID != "" {
		return b.StashID
	}
	return b.CommitHash
}

// RestoreHint returns the command that re-applies the stashed work, or ""
// when nothing was stashed. A successful merge leaves the stash in place.
func (b BackupInfo) RestoreHint() string {
	switch {
	case b.StashCommit != "":
		return "git stash apply " + b.StashCommit
	case b.StashID != "":
		return "git stash apply " + b.StashID
	}
	return ""
}

// SyncOperation is the persisted record of one sync attempt. It is updated
// in place as it moves through the state machine and never deleted.
type SyncOperation struct {
	ID             string        `json:"id"`
	WorktreeBranch string        `json:"worktree_branch"`
	CommitHash     string        `json:"commit_hash,omitempty"`
	Status         SyncStatus    `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	DiffSummary    *DiffSummary  `json:"diff_summary,omitempty"`
	ConflictInfo   *ConflictInfo `json:"conflict_info,omitempty"`
	MergeOutcome   *MergeOutcome `json:"merge_outcome,omitempty"`
	RollbackPoint  string        `json:"rollback_point,omitempty"`
	Backup         *BackupInfo   `json:"backup,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// NewSyncOperation returns a pending operation.
func NewSyncOperation(id, branch string, now time.Time) *SyncOperation {
	return &SyncOperation{
		ID:             id,
		WorktreeBranch: branch,
		Status:         StatusPending,
		StartedAt:      now,
	}
}

// TransitionTo moves the operation to next, stamping CompletedAt when next
// is terminal.
func (op *SyncOperation) TransitionTo(next SyncStatus, now time.Time) error {
	if !op.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal sync status transition %s -> %s", op.Status, next)
	}
	op.Status = next
	if next.IsTerminal() {
		t := now
		op.CompletedAt = &t
	}
	return nil
}

// Duration is how long the operation ran, or zero while it is still running.
func (op *SyncOperation) Duration() time.Duration {
	if op.CompletedAt == nil {
		return 0
	}
	return op.CompletedAt.Sub(op.StartedAt)
}
