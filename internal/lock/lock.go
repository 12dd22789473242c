// Package lock provides a file-based mutex keyed by resource name. Records
// live as YAML files in a shared directory, so any process on any host that
// sees the directory takes part in the exclusion.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/util"
)

// Defaults.
const (
	DefaultStaleAfter    = time.Hour
	DefaultTimeout       = 30 * time.Second
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultSweepInterval = 5 * time.Minute
)

// lockExt is the suffix of every record file.
const lockExt = ".lock"

// Record is the on-disk content of a held lock.
type Record struct {
	LockID     string    `yaml:"lock_id"`
	Resource   string    `yaml:"resource"`
	AcquiredAt time.Time `yaml:"acquired_at"`
	PID        int       `yaml:"pid"`
	Hostname   string    `yaml:"hostname"`
}

// Age returns how long the record has been held as of now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// AcquireOptions bounds one Acquire call.
type AcquireOptions struct {
	Timeout       time.Duration
	RetryInterval time.Duration
}

func (o AcquireOptions) withDefaults() AcquireOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return o
}

// Manager acquires and releases resource locks in one directory.
type Manager struct {
	dir           string
	logger        *slog.Logger
	staleAfter    time.Duration
	sweepInterval time.Duration
	hostname      string
	pid           int
	now           func() time.Time
	alive         func(pid int) bool

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStaleAfter sets the age ceiling past which any record is reclaimable.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		m.staleAfter = d
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.sweepInterval = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager storing records under dir.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if err := util.EnsureStateDir(dir); err != nil {
		return nil, wterrors.NewLock(dir, "cannot create lock directory", err)
	}
	host, _ := os.Hostname()
	m := &Manager{
		dir:           dir,
		staleAfter:    DefaultStaleAfter,
		sweepInterval: DefaultSweepInterval,
		hostname:      host,
		pid:           os.Getpid(),
		now:           time.Now,
		alive:         processExists,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// Dir returns the lock directory.
func (m *Manager) Dir() string {
	return m.dir
}

// path maps a resource key to its record file. Keys are hashed because they
// are usually filesystem paths themselves.
func (m *Manager) path(resource string) string {
	sum := sha256.Sum256([]byte(resource))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:16])+lockExt)
}

// Acquire blocks until resource is locked by this caller and returns the
// lock id needed to release it. A stale record is reclaimed at once; a live
// one is polled every RetryInterval until Timeout, which fails with a
// TIMEOUT error.
func (m *Manager) Acquire(ctx context.Context, resource string, opts AcquireOptions) (string, error) {
	if resource == "" {
		return "", wterrors.NewLock(resource, "resource key is empty", nil)
	}
	opts = opts.withDefaults()
	path := m.path(resource)
	start := time.Now()
	deadline := start.Add(opts.Timeout)

	for {
		rec := &Record{
			LockID:     uuid.NewString(),
			Resource:   resource,
			AcquiredAt: m.now().UTC(),
			PID:        m.pid,
			Hostname:   m.hostname,
		}
		data, err := yaml.Marshal(rec)
		if err != nil {
			return "", wterrors.NewLock(resource, "cannot encode lock record", err)
		}

		err = util.CreateExclusive(path, data, 0o644)
		if err == nil {
			m.logger.Debug("lock acquired", "resource", resource, "lock_id", rec.LockID)
			return rec.LockID, nil
		}
		if !stderrors.Is(err, os.ErrExist) {
			return "", wterrors.NewLock(resource, "cannot write lock record", err)
		}

		evicted, err := m.evictIfStale(path)
		if err != nil {
			return "", err
		}
		if evicted {
			continue
		}

		if !time.Now().Before(deadline) {
			return "", wterrors.NewTimeout(fmt.Sprintf("acquire lock on %s", resource), time.Since(start))
		}
		wait := opts.RetryInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return "", wterrors.NewLock(resource, "acquire cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// Release deletes the record for resource if lockID still owns it. An
// absent record is a no-op; a different owner is an error.
func (m *Manager) Release(resource, lockID string) error {
	path := m.path(resource)
	rec, err := readRecord(path)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return wterrors.NewLock(resource, "cannot read lock record", err)
	}
	if rec.LockID != lockID {
		return wterrors.NewLock(resource,
			fmt.Sprintf("lock is held by %s (pid %d on %s), not %s", rec.LockID, rec.PID, rec.Hostname, lockID), nil)
	}
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return wterrors.NewLock(resource, "cannot remove lock record", err)
	}
	m.logger.Debug("lock released", "resource", resource, "lock_id", lockID)
	return nil
}

// WithLock runs fn while holding resource. The lock is released on every
// exit path; a release failure is returned only when fn succeeded.
func (m *Manager) WithLock(ctx context.Context, resource string, opts AcquireOptions, fn func(context.Context) error) (err error) {
	lockID, err := m.Acquire(ctx, resource, opts)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := m.Release(resource, lockID); relErr != nil {
			m.logger.Warn("lock release failed", "resource", resource, "lock_id", lockID, "error", relErr)
			if err == nil {
				err = relErr
			}
		}
	}()
	return fn(ctx)
}

// IsLocked returns the live record holding resource, or nil when it is free
// or only held by a stale record.
func (m *Manager) IsLocked(resource string) (*Record, error) {
	rec, err := readRecord(m.path(resource))
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, wterrors.NewLock(resource, "cannot read lock record", err)
	}
	if m.isStale(rec) {
		return nil, nil
	}
	return rec, nil
}

// List returns every record in the directory, stale ones included.
// Unreadable files are skipped.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, wterrors.NewLock(m.dir, "cannot read lock directory", err)
	}
	var out []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), lockExt) {
			continue
		}
		rec, err := readRecord(filepath.Join(m.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// IsStale reports whether rec may be forcibly reclaimed.
func (m *Manager) IsStale(rec *Record) bool {
	return m.isStale(rec)
}

func (m *Manager) isStale(rec *Record) bool {
	if rec.Age(m.now()) > m.staleAfter {
		return true
	}
	// Liveness can only be probed for holders on this host.
	if rec.Hostname == m.hostname && rec.PID > 0 && !m.alive(rec.PID) {
		return true
	}
	return false
}

// evictIfStale removes the record at path when it is stale or unreadable.
// It reports true if the caller should retry the create immediately.
func (m *Manager) evictIfStale(path string) (bool, error) {
	rec, err := readRecord(path)
	switch {
	case stderrors.Is(err, os.ErrNotExist):
		// Released between our create and read.
		return true, nil
	case err != nil:
		m.logger.Warn("removing corrupt lock record", "path", path, "error", err)
	case !m.isStale(rec):
		return false, nil
	default:
		m.logger.Warn("reclaiming stale lock",
			"resource", rec.Resource,
			"lock_id", rec.LockID,
			"pid", rec.PID,
			"hostname", rec.Hostname,
			"age", rec.Age(m.now()).Round(time.Second),
		)
	}
	if _, err := m.reclaim(path, rec); err != nil {
		return false, err
	}
	return true, nil
}

// reclaim deletes the record at path only if it is still the one judged
// stale: seen, or nil for a record that could not be parsed. The file is
// first renamed aside so a fresh lock written after the staleness check is
// never deleted; such a record is linked back in place. It reports whether
// the stale record was removed.
func (m *Manager) reclaim(path string, seen *Record) (bool, error) {
	aside := path + ".stale-" + uuid.NewString()
	if err := os.Rename(path, aside); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, wterrors.NewLock(filepath.Base(path), "cannot move stale lock record aside", err)
	}
	defer os.Remove(aside)

	moved, err := readRecord(aside)
	same := (seen == nil && err != nil) || (seen != nil && err == nil && moved.LockID == seen.LockID)
	if same {
		return true, nil
	}

	// Another caller replaced the record after we read it.
	if err := os.Link(aside, path); err != nil {
		lockID := ""
		if moved != nil {
			lockID = moved.LockID
		}
		m.logger.Warn("cannot restore replaced lock record", "path", path, "lock_id", lockID, "error", err)
		return false, wterrors.NewLock(filepath.Base(path), "cannot restore replaced lock record", err)
	}
	m.logger.Debug("lock record replaced during reclaim, restored", "path", path)
	return false, nil
}

// Sweep removes every stale record and returns how many were removed.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, wterrors.NewLock(m.dir, "cannot read lock directory", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), lockExt) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		rec, err := readRecord(path)
		if stderrors.Is(err, os.ErrNotExist) {
			continue
		}
		if err == nil && !m.isStale(rec) {
			continue
		}
		ok, err := m.reclaim(path, rec)
		if err != nil {
			m.logger.Warn("sweep: cannot remove lock record", "path", path, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept stale locks", "removed", removed)
	}
	return removed, nil
}

// Start launches the periodic sweep. It is stopped by Close or by ctx.
// Calling Start twice is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if _, err := m.Sweep(); err != nil {
					m.logger.Warn("lock sweep failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the sweep and waits for it to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock record: %w", err)
	}
	if rec.LockID == "" {
		return nil, fmt.Errorf("parse lock record: missing lock_id")
	}
	return &rec, nil
}
