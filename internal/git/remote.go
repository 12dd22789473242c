package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// Push pushes branch to remote, bounded by the client's push timeout.
func (c *Client) Push(ctx context.Context, remote, branch string) error {
	if err := sanitize.ValidateRemoteName(remote); err != nil {
		return err
	}
	if err := sanitize.ValidateBranchName(branch); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()
	_, err := c.run(ctx, "push", remote, branch)
	return err
}

// Remotes lists configured remote names.
func (c *Client) Remotes(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "remote")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// RemoteURL returns the URL of remote, or ErrRemoteNotFound.
func (c *Client) RemoteURL(ctx context.Context, remote string) (string, error) {
	if err := sanitize.ValidateRemoteName(remote); err != nil {
		return "", err
	}
	url, err := c.run(ctx, "remote", "get-url", remote)
	if err != nil {
		if se := wterrors.AsSyncError(err); se != nil && strings.Contains(se.Stderr, "No such remote") {
			return "", fmt.Errorf("%s: %w", remote, ErrRemoteNotFound)
		}
		return "", err
	}
	return url, nil
}

// LsRemote checks that remote answers within timeout.
func (c *Client) LsRemote(ctx context.Context, remote string, timeout time.Duration) error {
	if err := sanitize.ValidateRemoteName(remote); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultNetworkTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.run(ctx, "ls-remote", "--heads", remote)
	return err
}
