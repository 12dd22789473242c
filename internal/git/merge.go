package git

import (
	"context"
	"strings"

	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// MergeBase returns the best common ancestor of a and b.
func (c *Client) MergeBase(ctx context.Context, a, b string) (string, error) {
	if err := validateRevs(a, b); err != nil {
		return "", err
	}
	return c.run(ctx, "merge-base", a, b)
}

// MergeTree simulates a three-way merge of ours and theirs over base without
// touching the index or working tree, returning merge-tree's textual report.
// Content conflicts appear as conflict markers inside "changed in both"
// sections.
func (c *Client) MergeTree(ctx context.Context, base, ours, theirs string) (string, error) {
	if err := validateRevs(base, ours, theirs); err != nil {
		return "", err
	}
	return c.run(ctx, "merge-tree", base, ours, theirs)
}

// Merge merges branch into the current branch with a merge commit and
// returns the resulting HEAD.
func (c *Client) Merge(ctx context.Context, branch, message string) (string, error) {
	if err := sanitize.ValidateBranchName(branch); err != nil {
		return "", err
	}
	if err := sanitize.ValidateCommitMessage(message); err != nil {
		return "", err
	}
	if _, err := c.run(ctx, "merge", "--no-ff", "--no-edit", "-m", message, branch); err != nil {
		return "", err
	}
	return c.HeadCommit(ctx)
}

// AbortMerge abandons an in-progress merge.
func (c *Client) AbortMerge(ctx context.Context) error {
	_, err := c.run(ctx, "merge", "--abort")
	return err
}

// StageAll stages all changes, untracked files included.
func (c *Client) StageAll(ctx context.Context) error {
	_, err := c.run(ctx, "add", "-A")
	return err
}

// Commit creates a commit with the given message and returns its SHA.
// Returns ErrNothingToCommit if there are no staged changes.
func (c *Client) Commit(ctx context.Context, message string) (string, error) {
	if err := sanitize.ValidateCommitMessage(message); err != nil {
		return "", err
	}
	out, err := c.run(ctx, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(err.Error(), "nothing to commit") {
			return "", ErrNothingToCommit
		}
		return "", err
	}
	return c.HeadCommit(ctx)
}
