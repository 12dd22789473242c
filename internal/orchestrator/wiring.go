package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/wtsync/internal/config"
	"github.com/randalmurphal/wtsync/internal/conflict"
	"github.com/randalmurphal/wtsync/internal/diff"
	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/lock"
	"github.com/randalmurphal/wtsync/internal/merge"
	"github.com/randalmurphal/wtsync/internal/notify"
	"github.com/randalmurphal/wtsync/internal/preflight"
	"github.com/randalmurphal/wtsync/internal/rollback"
	"github.com/randalmurphal/wtsync/internal/storage"
	"github.com/randalmurphal/wtsync/internal/util"
)

// diffCacheSize is the number of commit-pair summaries kept in memory.
const diffCacheSize = 128

// Build wires an Orchestrator for cfg.RepoPath from configuration: git
// client, operation store, analyzers, merger, rollback, preflight, lock
// manager and notifiers. The caller owns the result and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, gitOpts ...git.Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	repoPath := cfg.RepoPath
	if repoPath == "" {
		repoPath = "."
	}

	opts := append([]git.Option{
		git.WithLogger(logger),
		git.WithGitBinary(cfg.GitPath),
		git.WithPushTimeout(cfg.Push.Timeout),
	}, gitOpts...)
	client, err := git.NewClient(ctx, repoPath, opts...)
	if err != nil {
		return nil, err
	}
	repoPath = client.RepoPath()

	if err := util.EnsureStateDir(cfg.ResolvedStateDir(repoPath)); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	store, err := storage.New(ctx, storage.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.StoreDSN(repoPath),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	notifier, err := notify.FromChannels(cfg.Sync.NotificationChannels, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	analyzer := conflict.NewAnalyzer(client, conflict.WithLogger(logger))
	deps := Deps{
		Git:       client,
		Store:     store,
		Validator: preflight.New(client, preflight.WithLogger(logger)),
		Diff:      diff.NewClassifier(client, diff.WithCache(diff.NewCache(diffCacheSize)), diff.WithLogger(logger)),
		Conflicts: analyzer,
		Merger:    merge.New(client, analyzer, merge.WithLogger(logger)),
		Rollback:  rollback.New(client, logger),
		Notifier:  notifier,
		Verifier:  ProcessVerifier{},
	}
	options := []Option{WithLogger(logger), WithCloser(store.Close)}

	if cfg.Lock.Enabled {
		locks, err := lock.NewManager(cfg.LockDir(repoPath),
			lock.WithLogger(logger),
			lock.WithStaleAfter(cfg.Lock.StaleAfter),
			lock.WithSweepInterval(cfg.Lock.SweepInterval),
		)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		locks.Start(ctx)
		deps.Locker = locks
		// Stop the sweeper before the store goes away.
		options = append([]Option{WithCloser(locks.Close)}, options...)
	}

	resolved := *cfg
	resolved.RepoPath = repoPath
	return New(&resolved, deps, options...), nil
}
