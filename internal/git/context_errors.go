package git

import "errors"

// Plain git conditions. Client methods return these unwrapped so callers can
// branch on them with errors.Is; every other failure is a *errors.SyncError.
var (
	// ErrNotGitRepo indicates the path is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrWorktreeNotFound indicates no worktree has the requested branch.
	ErrWorktreeNotFound = errors.New("worktree not found")

	// ErrRemoteNotFound indicates the named remote is not configured.
	ErrRemoteNotFound = errors.New("remote not found")

	// ErrNothingToCommit indicates there are no staged changes to commit.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrStashNotFound indicates the stash entry no longer exists.
	ErrStashNotFound = errors.New("stash entry not found")

	// ErrUnknownRevision indicates a revision did not resolve to a commit.
	ErrUnknownRevision = errors.New("unknown revision")
)
