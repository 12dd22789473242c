package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/wtsync/internal/db/driver"
)

// NewTestStore returns a SQLite-backed store in a temp dir, closed when the
// test completes.
func NewTestStore(t testing.TB) *SQLStore {
	t.Helper()

	s, err := NewSQLStore(context.Background(), driver.DialectSQLite, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
