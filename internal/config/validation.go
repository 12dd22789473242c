package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// Validate checks the config for values the engine cannot run with. All
// problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := sanitize.ValidateBranchName(c.MainBranch); err != nil {
		add("main_branch: %v", err)
	}
	if err := sanitize.ValidateRemoteName(c.Remote); err != nil {
		add("remote: %v", err)
	}
	if c.StateDir == "" {
		add("state_dir: must not be empty")
	}

	switch c.Sync.ConflictStrategy {
	case ConflictAbort, ConflictManual:
	default:
		add("sync.conflict_strategy: %q is not one of abort, manual", c.Sync.ConflictStrategy)
	}
	if c.Sync.MaxRetries < 0 {
		add("sync.max_retries: must be >= 0, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.TimeoutSeconds < 0 {
		add("sync.timeout_seconds: must be >= 0, got %d", c.Sync.TimeoutSeconds)
	}
	for _, pattern := range c.Sync.ExcludedWorktrees {
		if !doublestar.ValidatePattern(pattern) {
			add("sync.excluded_worktrees: invalid pattern %q", pattern)
		}
	}
	for _, ch := range c.Sync.NotificationChannels {
		if ch != "log" && !strings.HasPrefix(ch, "webhook:") {
			add("sync.notification_channels: unknown channel %q", ch)
		}
	}
	for _, cmd := range c.Sync.VerificationCommands {
		if err := sanitize.ValidateShellCommand(cmd, nil); err != nil {
			add("sync.verification_commands: %v", err)
		}
	}

	switch c.Store.Driver {
	case "file", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			add("store.dsn: required for the postgres driver")
		}
	default:
		add("store.driver: %q is not one of file, sqlite, postgres", c.Store.Driver)
	}

	if c.Lock.Enabled && c.Lock.Timeout <= 0 {
		add("lock.timeout: must be positive when locking is enabled")
	}
	if c.Push.RateLimit <= 0 {
		add("push.rate_limit: must be positive, got %d", c.Push.RateLimit)
	}
	if c.Push.RateWindow <= 0 {
		add("push.rate_window: must be positive")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format: %q is not one of text, json", c.Log.Format)
	}

	if len(problems) == 0 {
		return nil
	}
	err := wterrors.NewValidation("invalid configuration", problems...)
	err.Code = wterrors.CodeConfigInvalid
	return err
}

// IsExcluded reports whether branch matches an excluded name or pattern.
func (s SyncConfig) IsExcluded(branch string) bool {
	for _, pattern := range s.ExcludedWorktrees {
		if pattern == branch {
			return true
		}
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}
