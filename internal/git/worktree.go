package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/wtsync/internal/model"
)

// ListWorktrees returns all worktrees of the repository, main checkout first.
func (c *Client) ListWorktrees(ctx context.Context) ([]model.Worktree, error) {
	output, err := c.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreePorcelain(output), nil
}

// FindWorktree returns the worktree that has branch checked out.
func (c *Client) FindWorktree(ctx context.Context, branch string) (*model.Worktree, error) {
	worktrees, err := c.ListWorktrees(ctx)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return &wt, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", branch, ErrWorktreeNotFound)
}

// parseWorktreePorcelain parses blank-line delimited porcelain records.
// "locked" and "prunable" may carry a trailing reason.
func parseWorktreePorcelain(output string) []model.Worktree {
	var worktrees []model.Worktree
	var current model.Worktree

	flush := func() {
		if current.Path != "" {
			worktrees = append(worktrees, current)
		}
		current = model.Worktree{}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			current.Path = filepath.Clean(value)
		case "HEAD":
			current.CommitHash = value
		case "branch":
			current.Branch = strings.TrimPrefix(value, "refs/heads/")
		case "detached":
			current.Detached = true
		case "bare":
			current.Bare = true
		case "locked":
			current.Locked = true
		case "prunable":
			current.Prunable = true
		}
	}
	flush()

	return worktrees
}
