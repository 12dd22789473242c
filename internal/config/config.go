// Package config provides configuration management for wtsync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// StateDirName is the per-repository state directory.
	StateDirName = ".wtsync"
)

// ConflictStrategy decides what a sync does when conflicts are predicted.
type ConflictStrategy string

const (
	// ConflictAbort stops the sync with status conflict (default).
	ConflictAbort ConflictStrategy = "abort"
	// ConflictManual also stops, leaving resolution to the user; the
	// conflict report is surfaced with recommendations.
	ConflictManual ConflictStrategy = "manual"
)

// SyncConfig controls the sync flow itself.
type SyncConfig struct {
	Enabled          bool             `yaml:"enabled"`
	AutoPush         bool             `yaml:"auto_push"`
	MaxRetries       int              `yaml:"max_retries"`
	TimeoutSeconds   int              `yaml:"timeout_seconds"`
	ConflictStrategy ConflictStrategy `yaml:"conflict_strategy"`

	// ExcludedWorktrees holds branch names or doublestar patterns
	// ("release/**") that are never synced.
	ExcludedWorktrees []string `yaml:"excluded_worktrees,omitempty"`

	// NotificationChannels are "log" or "webhook:<url>".
	NotificationChannels []string `yaml:"notification_channels,omitempty"`

	// VerificationCommands run in the trunk checkout after a successful
	// merge; the first failure marks the sync failed.
	VerificationCommands []string `yaml:"verification_commands,omitempty"`
}

// Timeout returns TimeoutSeconds as a duration, zero meaning unbounded.
func (s SyncConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// StoreConfig selects the operation history backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // file, sqlite, postgres
	DSN    string `yaml:"dsn,omitempty"`
}

// PreflightConfig tunes the preflight checks.
type PreflightConfig struct {
	MinFreeBytes    uint64        `yaml:"min_free_bytes"`
	NetworkTimeout  time.Duration `yaml:"network_timeout"`
	SkipDiskSpace   bool          `yaml:"skip_disk_space"`
	SkipHealth      bool          `yaml:"skip_health"`
	SkipPermissions bool          `yaml:"skip_permissions"`
	SkipNetwork     bool          `yaml:"skip_network"`
}

// LockConfig controls per-repository locking around a sync.
type LockConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Dir           string        `yaml:"dir,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PushConfig bounds pushes to the remote.
type PushConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RateLimit    int           `yaml:"rate_limit"`
	RateWindow   time.Duration `yaml:"rate_window"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Config represents the wtsync configuration.
type Config struct {
	Version int `yaml:"version"`

	// RepoPath is the trunk checkout; empty means the current directory.
	RepoPath   string `yaml:"repo_path,omitempty"`
	MainBranch string `yaml:"main_branch"`
	Remote     string `yaml:"remote"`
	GitPath    string `yaml:"git_path"`

	// StateDir holds operation records and locks. Relative paths are
	// resolved against RepoPath.
	StateDir string `yaml:"state_dir"`

	Sync      SyncConfig      `yaml:"sync"`
	Store     StoreConfig     `yaml:"store"`
	Preflight PreflightConfig `yaml:"preflight"`
	Lock      LockConfig      `yaml:"lock"`
	Push      PushConfig      `yaml:"push"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:    1,
		MainBranch: "main",
		Remote:     "origin",
		GitPath:    "git",
		StateDir:   StateDirName,
		Sync: SyncConfig{
			Enabled:          true,
			AutoPush:         false,
			MaxRetries:       3,
			TimeoutSeconds:   300,
			ConflictStrategy: ConflictAbort,
		},
		Store: StoreConfig{
			Driver: "file",
		},
		Preflight: PreflightConfig{
			MinFreeBytes:   1 << 30,
			NetworkTimeout: 10 * time.Second,
		},
		Lock: LockConfig{
			Enabled:       true,
			Timeout:       30 * time.Second,
			RetryInterval: 100 * time.Millisecond,
			StaleAfter:    time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Push: PushConfig{
			Timeout:      60 * time.Second,
			RateLimit:    10,
			RateWindow:   time.Minute,
			RetryBackoff: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ResolvedStateDir returns StateDir made absolute against repoPath.
func (c *Config) ResolvedStateDir(repoPath string) string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(repoPath, c.StateDir)
}

// OperationsDir is where the file store keeps records.
func (c *Config) OperationsDir(repoPath string) string {
	return filepath.Join(c.ResolvedStateDir(repoPath), "operations")
}

// LockDir is where lock records live.
func (c *Config) LockDir(repoPath string) string {
	if c.Lock.Dir != "" {
		if filepath.IsAbs(c.Lock.Dir) {
			return c.Lock.Dir
		}
		return filepath.Join(repoPath, c.Lock.Dir)
	}
	return filepath.Join(c.ResolvedStateDir(repoPath), "locks")
}

// StoreDSN returns the store DSN with backend-specific defaults filled in.
func (c *Config) StoreDSN(repoPath string) string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	switch c.Store.Driver {
	case "sqlite":
		return filepath.Join(c.ResolvedStateDir(repoPath), "state.db")
	case "postgres":
		return ""
	default:
		return c.OperationsDir(repoPath)
	}
}

// LoadFrom loads a single config file over the defaults. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo saves the config to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Init writes a default project config under repoPath. Existing files are
// kept unless force is set.
func Init(repoPath string, force bool) (string, error) {
	path := filepath.Join(repoPath, StateDirName, ConfigFileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := Default().SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}
