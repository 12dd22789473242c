// Package storage persists SyncOperation records. Each record is keyed by
// its id and rewritten in full on every state transition.
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/randalmurphal/wtsync/internal/db/driver"
	"github.com/randalmurphal/wtsync/internal/model"
)

// Backend names accepted by New.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store saves and loads sync operations. Implementations are safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, op *model.SyncOperation) error
	// Load returns a NOT_FOUND error for an unknown id.
	Load(ctx context.Context, id string) (*model.SyncOperation, error)
	// List returns matching operations, newest first.
	List(ctx context.Context, filter Filter) ([]*model.SyncOperation, error)
	Close() error
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Branch string
	Status model.SyncStatus
	Since  time.Time
	Limit  int
}

// Match reports whether op passes the filter, ignoring Limit.
func (f Filter) Match(op *model.SyncOperation) bool {
	if f.Branch != "" && op.WorktreeBranch != f.Branch {
		return false
	}
	if f.Status != "" && op.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && op.StartedAt.Before(f.Since) {
		return false
	}
	return true
}

// Config selects a backend.
type Config struct {
	Driver string // file (default), sqlite, postgres
	// DSN is a directory for file, a database path for sqlite and a
	// connection string for postgres.
	DSN string
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case BackendFile, "":
		return NewFileStore(cfg.DSN)
	case BackendSQLite, BackendPostgres:
		dialect, err := driver.ParseDialect(cfg.Driver)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(ctx, dialect, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// sortNewestFirst orders by start time descending, then id for stability.
func sortNewestFirst(ops []*model.SyncOperation) {
	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].StartedAt.Equal(ops[j].StartedAt) {
			return ops[i].StartedAt.After(ops[j].StartedAt)
		}
		return ops[i].ID > ops[j].ID
	})
}
