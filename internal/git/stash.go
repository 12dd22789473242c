package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// StashEntry is one entry of the stash reflog.
type StashEntry struct {
	Ref     string // stash@{N}; shifts as newer entries are pushed
	SHA     string // stash commit, stable for the entry's lifetime
	Message string
}

// StashPush stashes tracked and untracked changes. It returns nil when the
// working tree was clean and git created no entry.
func (c *Client) StashPush(ctx context.Context, message string) (*StashEntry, error) {
	if err := sanitize.ValidateCommitMessage(message); err != nil {
		return nil, err
	}
	out, err := c.run(ctx, "stash", "push", "--include-untracked", "-m", message)
	if err != nil {
		return nil, err
	}
	if strings.Contains(out, "No local changes to save") {
		return nil, nil
	}
	sha, err := c.run(ctx, "rev-parse", "stash@{0}")
	if err != nil {
		return nil, err
	}
	return &StashEntry{Ref: "stash@{0}", SHA: sha, Message: message}, nil
}

// StashList returns stash entries, newest first.
func (c *Client) StashList(ctx context.Context) ([]StashEntry, error) {
	out, err := c.run(ctx, "stash", "list", "--format=%gd%x09%H%x09%gs")
	if err != nil {
		return nil, err
	}
	var entries []StashEntry
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			continue
		}
		e := StashEntry{Ref: parts[0], SHA: parts[1]}
		if len(parts) == 3 {
			e.Message = parts[2]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindStash returns the current stash@{N} ref of the entry with commit sha.
func (c *Client) FindStash(ctx context.Context, sha string) (string, error) {
	entries, err := c.StashList(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.SHA == sha {
			return e.Ref, nil
		}
	}
	return "", fmt.Errorf("%s: %w", sha, ErrStashNotFound)
}

// StashApply applies a stash entry without dropping it.
func (c *Client) StashApply(ctx context.Context, ref string) error {
	if err := sanitize.ValidateStashRef(ref); err != nil {
		return err
	}
	_, err := c.run(ctx, "stash", "apply", ref)
	return err
}

// StashDrop removes a stash entry.
func (c *Client) StashDrop(ctx context.Context, ref string) error {
	if err := sanitize.ValidateStashRef(ref); err != nil {
		return err
	}
	_, err := c.run(ctx, "stash", "drop", ref)
	return err
}
