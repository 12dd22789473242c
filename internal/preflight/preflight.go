// Package preflight runs the health, resource, permission and network checks
// that must pass before a sync mutates anything.
package preflight

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/model"
)

// Check names.
const (
	CheckWorktree    = "worktree"
	CheckDiskSpace   = "disk_space"
	CheckHealth      = "repository_health"
	CheckPermissions = "permissions"
	CheckNetwork     = "network"
)

// DefaultMinFreeBytes is the default disk space floor (1 GiB).
const DefaultMinFreeBytes uint64 = 1 << 30

// Git is the subset of git.Client the validator needs.
type Git interface {
	RepoPath() string
	ListWorktrees(ctx context.Context) ([]model.Worktree, error)
	Fsck(ctx context.Context) (string, error)
	Status(ctx context.Context) (string, error)
	RemoteURL(ctx context.Context, remote string) (string, error)
	LsRemote(ctx context.Context, remote string, timeout time.Duration) error
}

// Options selects and tunes checks. Each Skip flag is independent.
type Options struct {
	Branch         string
	Remote         string
	MinFreeBytes   uint64
	NetworkTimeout time.Duration

	SkipWorktree    bool
	SkipDiskSpace   bool
	SkipHealth      bool
	SkipPermissions bool
	SkipNetwork     bool
}

func (o Options) withDefaults() Options {
	if o.MinFreeBytes == 0 {
		o.MinFreeBytes = DefaultMinFreeBytes
	}
	if o.Remote == "" {
		o.Remote = "origin"
	}
	if o.NetworkTimeout <= 0 {
		o.NetworkTimeout = git.DefaultNetworkTimeout
	}
	return o
}

// Validator runs preflight checks.
type Validator struct {
	git       Git
	logger    *slog.Logger
	freeBytes func(path string) (uint64, error)
	writable  func(dir string) error
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithDiskProbe replaces the free-space probe.
func WithDiskProbe(fn func(path string) (uint64, error)) Option {
	return func(v *Validator) {
		v.freeBytes = fn
	}
}

// New creates a Validator.
func New(g Git, opts ...Option) *Validator {
	v := &Validator{git: g, freeBytes: freeBytes, writable: writable}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

type checkFunc func(ctx context.Context, opts Options) (model.ValidationCheck, bool)

// Validate runs the selected checks concurrently. The result is valid when
// no fatal check failed; warnings never affect validity.
func (v *Validator) Validate(ctx context.Context, opts Options) *model.ValidationResult {
	opts = opts.withDefaults()

	type planned struct {
		name string
		skip bool
		fn   checkFunc
	}
	plan := []planned{
		{CheckWorktree, opts.SkipWorktree, v.checkWorktree},
		{CheckDiskSpace, opts.SkipDiskSpace, v.checkDiskSpace},
		{CheckHealth, opts.SkipHealth, v.checkHealth},
		{CheckPermissions, opts.SkipPermissions, v.checkPermissions},
		{CheckNetwork, opts.SkipNetwork, v.checkNetwork},
	}

	type outcome struct {
		check model.ValidationCheck
		fatal bool
	}
	results := make([]outcome, len(plan))

	var g errgroup.Group
	for i, p := range plan {
		if p.skip {
			results[i] = outcome{check: model.ValidationCheck{Name: p.name, Passed: true, Skipped: true, Message: p.name + " check skipped"}}
			continue
		}
		g.Go(func() error {
			c, fatal := p.fn(ctx, opts)
			c.Name = p.name
			results[i] = outcome{check: c, fatal: fatal}
			return nil
		})
	}
	_ = g.Wait()

	r := model.NewValidationResult()
	for _, o := range results {
		r.AddCheck(o.check, o.fatal)
	}
	v.logger.Debug("preflight complete",
		"branch", opts.Branch,
		"valid", r.Valid,
		"errors", len(r.Errors),
		"warnings", len(r.Warnings),
	)
	return r
}

// checkWorktree is fatal: the branch's worktree must exist and be neither
// locked nor prunable.
func (v *Validator) checkWorktree(ctx context.Context, opts Options) (model.ValidationCheck, bool) {
	if opts.Branch == "" {
		return model.ValidationCheck{Passed: true, Message: "no worktree branch to check"}, true
	}
	worktrees, err := v.git.ListWorktrees(ctx)
	if err != nil {
		return failed(fmt.Sprintf("cannot list worktrees: %v", err)), true
	}
	for _, wt := range worktrees {
		if wt.Branch != opts.Branch {
			continue
		}
		details := map[string]any{"path": wt.Path, "commit": wt.CommitHash}
		switch {
		case wt.Locked:
			c := failed(fmt.Sprintf("worktree for %s is locked", opts.Branch))
			c.Details = details
			return c, true
		case wt.Prunable:
			c := failed(fmt.Sprintf("worktree for %s is prunable (its directory is missing)", opts.Branch))
			c.Details = details
			return c, true
		}
		return model.ValidationCheck{Passed: true, Message: "worktree found", Details: details}, true
	}
	return failed(fmt.Sprintf("no worktree found for branch %s", opts.Branch)), true
}

// checkDiskSpace is fatal.
func (v *Validator) checkDiskSpace(_ context.Context, opts Options) (model.ValidationCheck, bool) {
	free, err := v.freeBytes(v.git.RepoPath())
	if err != nil {
		return failed(fmt.Sprintf("cannot determine free disk space: %v", err)), true
	}
	details := map[string]any{"free_bytes": free, "required_bytes": opts.MinFreeBytes}
	if free < opts.MinFreeBytes {
		c := failed(fmt.Sprintf("insufficient disk space: %s free, %s required", humanBytes(free), humanBytes(opts.MinFreeBytes)))
		c.Details = details
		return c, true
	}
	return model.ValidationCheck{Passed: true, Message: humanBytes(free) + " free", Details: details}, true
}

// checkHealth degrades to a warning.
func (v *Validator) checkHealth(ctx context.Context, _ Options) (model.ValidationCheck, bool) {
	out, err := v.git.Fsck(ctx)
	if err != nil {
		return failed(fmt.Sprintf("repository integrity check failed: %v", err)), false
	}
	c := model.ValidationCheck{Passed: true, Message: "repository integrity check passed"}
	if out != "" {
		c.Details = map[string]any{"output": out}
	}
	return c, false
}

// checkPermissions degrades to a warning: the trunk checkout should be
// writable and have no uncommitted changes.
func (v *Validator) checkPermissions(ctx context.Context, _ Options) (model.ValidationCheck, bool) {
	repo := v.git.RepoPath()
	if err := v.writable(repo); err != nil {
		return failed(fmt.Sprintf("repository %s is not writable: %v", repo, err)), false
	}
	gitDir := filepath.Join(repo, ".git")
	if err := v.writable(gitDir); err != nil {
		return failed(fmt.Sprintf("git directory %s is not writable: %v", gitDir, err)), false
	}

	status, err := v.git.Status(ctx)
	if err != nil {
		return failed(fmt.Sprintf("cannot read working tree status: %v", err)), false
	}
	if status != "" {
		c := failed("working tree has uncommitted changes")
		c.Details = map[string]any{"changed": len(strings.Split(status, "\n"))}
		return c, false
	}
	return model.ValidationCheck{Passed: true, Message: "repository writable and clean"}, false
}

// checkNetwork degrades to a warning. A missing remote passes.
func (v *Validator) checkNetwork(ctx context.Context, opts Options) (model.ValidationCheck, bool) {
	url, err := v.git.RemoteURL(ctx, opts.Remote)
	if stderrors.Is(err, git.ErrRemoteNotFound) {
		return model.ValidationCheck{Passed: true, Message: fmt.Sprintf("no remote %s configured", opts.Remote)}, false
	}
	if err != nil {
		return failed(fmt.Sprintf("cannot read remote %s: %v", opts.Remote, err)), false
	}
	if err := v.git.LsRemote(ctx, opts.Remote, opts.NetworkTimeout); err != nil {
		return failed(fmt.Sprintf("remote %s is unreachable: %v", opts.Remote, err)), false
	}
	return model.ValidationCheck{Passed: true, Message: fmt.Sprintf("remote %s reachable", opts.Remote), Details: map[string]any{"url": url}}, false
}

func failed(msg string) model.ValidationCheck {
	return model.ValidationCheck{Passed: false, Message: msg}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
