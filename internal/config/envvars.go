package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"WTSYNC_REPO_PATH":   "repo_path",
	"WTSYNC_MAIN_BRANCH": "main_branch",
	"WTSYNC_REMOTE":      "remote",
	"WTSYNC_GIT_PATH":    "git_path",
	"WTSYNC_STATE_DIR":   "state_dir",
	// Sync
	"WTSYNC_SYNC_ENABLED":          "sync.enabled",
	"WTSYNC_AUTO_PUSH":             "sync.auto_push",
	"WTSYNC_MAX_RETRIES":           "sync.max_retries",
	"WTSYNC_TIMEOUT_SECONDS":       "sync.timeout_seconds",
	"WTSYNC_CONFLICT_STRATEGY":     "sync.conflict_strategy",
	"WTSYNC_EXCLUDED_WORKTREES":    "sync.excluded_worktrees",
	"WTSYNC_NOTIFICATION_CHANNELS": "sync.notification_channels",
	"WTSYNC_VERIFICATION_COMMANDS": "sync.verification_commands",
	// Store
	"WTSYNC_STORE_DRIVER": "store.driver",
	"WTSYNC_STORE_DSN":    "store.dsn",
	// Preflight
	"WTSYNC_MIN_FREE_BYTES":  "preflight.min_free_bytes",
	"WTSYNC_NETWORK_TIMEOUT": "preflight.network_timeout",
	"WTSYNC_SKIP_DISK_SPACE": "preflight.skip_disk_space",
	"WTSYNC_SKIP_NETWORK":    "preflight.skip_network",
	// Lock
	"WTSYNC_LOCK_ENABLED": "lock.enabled",
	"WTSYNC_LOCK_DIR":     "lock.dir",
	"WTSYNC_LOCK_TIMEOUT": "lock.timeout",
	// Push
	"WTSYNC_PUSH_TIMEOUT": "push.timeout",
	// Logging
	"WTSYNC_LOG_LEVEL":  "log.level",
	"WTSYNC_LOG_FORMAT": "log.format",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns a list of paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv)
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied; unparseable values are ignored.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "repo_path":
		cfg.RepoPath = value
	case "main_branch":
		cfg.MainBranch = value
	case "remote":
		cfg.Remote = value
	case "git_path":
		cfg.GitPath = value
	case "state_dir":
		cfg.StateDir = value
	case "sync.enabled":
		cfg.Sync.Enabled = parseBool(value)
	case "sync.auto_push":
		cfg.Sync.AutoPush = parseBool(value)
	case "sync.max_retries":
		return setInt(&cfg.Sync.MaxRetries, value)
	case "sync.timeout_seconds":
		return setInt(&cfg.Sync.TimeoutSeconds, value)
	case "sync.conflict_strategy":
		cfg.Sync.ConflictStrategy = ConflictStrategy(value)
	case "sync.excluded_worktrees":
		cfg.Sync.ExcludedWorktrees = splitList(value)
	case "sync.notification_channels":
		cfg.Sync.NotificationChannels = splitList(value)
	case "sync.verification_commands":
		// Commands contain spaces and commas, so they are ';;'-separated.
		cfg.Sync.VerificationCommands = splitOn(value, ";;")
	case "store.driver":
		cfg.Store.Driver = value
	case "store.dsn":
		cfg.Store.DSN = value
	case "preflight.min_free_bytes":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return false
		}
		cfg.Preflight.MinFreeBytes = v
	case "preflight.network_timeout":
		return setDuration(&cfg.Preflight.NetworkTimeout, value)
	case "preflight.skip_disk_space":
		cfg.Preflight.SkipDiskSpace = parseBool(value)
	case "preflight.skip_network":
		cfg.Preflight.SkipNetwork = parseBool(value)
	case "lock.enabled":
		cfg.Lock.Enabled = parseBool(value)
	case "lock.dir":
		cfg.Lock.Dir = value
	case "lock.timeout":
		return setDuration(&cfg.Lock.Timeout, value)
	case "push.timeout":
		return setDuration(&cfg.Push.Timeout, value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return false
	}
	return true
}

func setInt(dst *int, value string) bool {
	v, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	*dst = v
	return true
}

func setDuration(dst *time.Duration, value string) bool {
	d, err := time.ParseDuration(value)
	if err != nil {
		return false
	}
	*dst = d
	return true
}

func splitList(s string) []string {
	return splitOn(s, ",")
}

func splitOn(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
