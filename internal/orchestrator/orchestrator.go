// Package orchestrator drives a sync through its state machine: preflight,
// diff, conflict prediction, guarded merge, push and verification, with the
// operation record persisted after every transition.
package orchestrator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/randalmurphal/wtsync/internal/config"
	"github.com/randalmurphal/wtsync/internal/lock"
	"github.com/randalmurphal/wtsync/internal/merge"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/notify"
	"github.com/randalmurphal/wtsync/internal/preflight"
	"github.com/randalmurphal/wtsync/internal/rollback"
	"github.com/randalmurphal/wtsync/internal/sanitize"
	"github.com/randalmurphal/wtsync/internal/storage"
)

// Git is the subset of git.Client the orchestrator calls directly.
type Git interface {
	RepoPath() string
	CurrentBranch(ctx context.Context) (string, error)
	ListWorktrees(ctx context.Context) ([]model.Worktree, error)
	Push(ctx context.Context, remote, branch string) error
}

// Validator runs preflight checks.
type Validator interface {
	Validate(ctx context.Context, opts preflight.Options) *model.ValidationResult
}

// DiffSummarizer computes what a branch would bring into the trunk.
type DiffSummarizer interface {
	Summary(ctx context.Context, target, source string) (model.DiffSummary, error)
}

// ConflictChecker predicts merge conflicts.
type ConflictChecker interface {
	CheckConflicts(ctx context.Context, base, target string) (model.ConflictInfo, error)
}

// Merger performs the guarded merge.
type Merger interface {
	MergeWorktree(ctx context.Context, branch string, opts merge.Options) (*merge.Result, error)
}

// RollbackRunner restores a backup.
type RollbackRunner interface {
	Rollback(ctx context.Context, backup model.BackupInfo, opts rollback.Options) (*rollback.Result, error)
}

// Locker serializes syncs on a resource key.
type Locker interface {
	WithLock(ctx context.Context, resource string, opts lock.AcquireOptions, fn func(context.Context) error) error
}

// Deps are the collaborators of an Orchestrator. Locker, Notifier and
// Verifier are optional.
type Deps struct {
	Git       Git
	Store     storage.Store
	Validator Validator
	Diff      DiffSummarizer
	Conflicts ConflictChecker
	Merger    Merger
	Rollback  RollbackRunner
	Locker    Locker
	Notifier  notify.Notifier
	Verifier  Verifier
}

// Orchestrator runs syncs for one repository.
type Orchestrator struct {
	cfg     *config.Config
	deps    Deps
	limiter *sanitize.RateLimiter
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	closers []func() error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides time.Now for operation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRateLimiter replaces the push rate limiter.
func WithRateLimiter(l *sanitize.RateLimiter) Option {
	return func(o *Orchestrator) {
		o.limiter = l
	}
}

// WithCloser registers a function Close calls, in registration order.
func WithCloser(fn func() error) Option {
	return func(o *Orchestrator) {
		o.closers = append(o.closers, fn)
	}
}

// New creates an Orchestrator. A nil cfg uses config.Default().
func New(cfg *config.Config, deps Deps, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.limiter == nil {
		o.limiter = sanitize.NewRateLimiter(cfg.Push.RateLimit, cfg.Push.RateWindow)
	}
	if o.deps.Notifier == nil {
		o.deps.Notifier = notify.Multi{}
	}
	return o
}

// Config returns the configuration the orchestrator runs with.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg
}

// Close releases the store, lock sweeper and anything else registered.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, fn := range o.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// lockOptions derives per-acquire bounds from config.
func (o *Orchestrator) lockOptions() lock.AcquireOptions {
	return lock.AcquireOptions{
		Timeout:       o.cfg.Lock.Timeout,
		RetryInterval: o.cfg.Lock.RetryInterval,
	}
}

// withRepoLock runs fn under the repository lock when a Locker is set.
func (o *Orchestrator) withRepoLock(ctx context.Context, fn func(context.Context) error) error {
	if o.deps.Locker == nil {
		return fn(ctx)
	}
	return o.deps.Locker.WithLock(ctx, o.deps.Git.RepoPath(), o.lockOptions(), fn)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
