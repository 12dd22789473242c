package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/sanitize"
	"github.com/randalmurphal/wtsync/internal/util"
)

// FileStore keeps one JSON file per operation in a directory. Writes go
// through a temp file and rename, so a crash never leaves a torn record.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, wterrors.NewConfigInvalid("store.dsn", "file store needs a directory")
	}
	if err := util.EnsureStateDir(dir); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", wterrors.NewSecurity("invalid operation id", fmt.Sprintf("%q cannot be used as a file name", id))
	}
	rel, err := sanitize.ValidatePath(id+".json", "")
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, rel), nil
}

// Save writes op, replacing any earlier version.
func (s *FileStore) Save(_ context.Context, op *model.SyncOperation) error {
	path, err := s.path(op.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(op, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sync operation %s: %w", op.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save sync operation %s: %w", op.ID, err)
	}
	return nil
}

// Load reads one operation.
func (s *FileStore) Load(_ context.Context, id string) (*model.SyncOperation, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readOperation(path, id)
}

// List scans the directory. Unparseable files are skipped.
func (s *FileStore) List(_ context.Context, filter Filter) ([]*model.SyncOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read state dir: %w", err)
	}

	var ops []*model.SyncOperation
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		op, err := readOperation(filepath.Join(s.dir, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if filter.Match(op) {
			ops = append(ops, op)
		}
	}

	sortNewestFirst(ops)
	if filter.Limit > 0 && len(ops) > filter.Limit {
		ops = ops[:filter.Limit]
	}
	return ops, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func readOperation(path, id string) (*model.SyncOperation, error) {
	data, err := os.ReadFile(path)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, wterrors.NewNotFound("sync operation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read sync operation %s: %w", id, err)
	}
	var op model.SyncOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("parse sync operation %s: %w", id, err)
	}
	return &op, nil
}
