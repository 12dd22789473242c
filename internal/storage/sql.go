package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/wtsync/internal/db/driver"
	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/model"
)

//go:embed schema
var schemaFS embed.FS

// SQLStore keeps operations in a sync_operations table. The full record is
// stored as JSON; branch, status and timestamps are duplicated into columns
// for filtering.
type SQLStore struct {
	drv driver.Driver
}

// NewSQLStore opens dsn and applies pending migrations.
func NewSQLStore(ctx context.Context, dialect driver.Dialect, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, wterrors.NewConfigInvalid("store.dsn", fmt.Sprintf("%s store needs a DSN", dialect))
	}
	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	if err := drv.Migrate(ctx, schemaFS, "schema"); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}
	return &SQLStore{drv: drv}, nil
}

// Save upserts op.
func (s *SQLStore) Save(ctx context.Context, op *model.SyncOperation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal sync operation %s: %w", op.ID, err)
	}
	var completed any
	if op.CompletedAt != nil {
		completed = op.CompletedAt.UnixNano()
	}

	p := s.drv.Placeholder
	query := fmt.Sprintf(`
		INSERT INTO sync_operations (id, worktree_branch, status, started_at, completed_at, data)
		VALUES (%s, %s, %s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			worktree_branch = excluded.worktree_branch,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			data = excluded.data`,
		p(1), p(2), p(3), p(4), p(5), p(6))

	if _, err := s.drv.Exec(ctx, query,
		op.ID, op.WorktreeBranch, string(op.Status), op.StartedAt.UnixNano(), completed, string(data),
	); err != nil {
		return fmt.Errorf("save sync operation %s: %w", op.ID, err)
	}
	return nil
}

// Load reads one operation.
func (s *SQLStore) Load(ctx context.Context, id string) (*model.SyncOperation, error) {
	var data string
	err := s.drv.QueryRow(ctx,
		fmt.Sprintf("SELECT data FROM sync_operations WHERE id = %s", s.drv.Placeholder(1)), id,
	).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, wterrors.NewNotFound("sync operation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load sync operation %s: %w", id, err)
	}
	return decodeOperation(id, data)
}

// List filters in SQL and decodes the matching rows.
func (s *SQLStore) List(ctx context.Context, filter Filter) ([]*model.SyncOperation, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, s.drv.Placeholder(len(args))))
	}
	if filter.Branch != "" {
		add("worktree_branch = %s", filter.Branch)
	}
	if filter.Status != "" {
		add("status = %s", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		add("started_at >= %s", filter.Since.UnixNano())
	}

	query := "SELECT id, data FROM sync_operations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + s.drv.Placeholder(len(args))
	}

	rows, err := s.drv.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []*model.SyncOperation
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan sync operation: %w", err)
		}
		op, err := decodeOperation(id, data)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync operations: %w", err)
	}
	return ops, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.drv.Close()
}

func decodeOperation(id, data string) (*model.SyncOperation, error) {
	var op model.SyncOperation
	if err := json.Unmarshal([]byte(data), &op); err != nil {
		return nil, fmt.Errorf("parse sync operation %s: %w", id, err)
	}
	return &op, nil
}
