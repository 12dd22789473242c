package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadOptions locates the config layers.
type LoadOptions struct {
	// RepoPath is where the project config (.wtsync/config.yaml) is looked up.
	RepoPath string
	// ConfigFile replaces the project config when set; it must exist.
	ConfigFile string
	// HomeDir overrides os.UserHomeDir for the user config.
	HomeDir string
	// SkipEnv disables WTSYNC_* overrides.
	SkipEnv bool
}

// Load is LoadWithSources without source tracking.
func Load(opts LoadOptions) (*Config, error) {
	tc, err := LoadWithSources(opts)
	if err != nil {
		return nil, err
	}
	return tc.Config, nil
}

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.wtsync/config.yaml) - optional
//  3. Project config (<repo>/.wtsync/config.yaml), or opts.ConfigFile
//  4. Environment variables (WTSYNC_*)
func LoadWithSources(opts LoadOptions) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	home := opts.HomeDir
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home != "" {
		userPath := filepath.Join(home, StateDirName, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	if opts.ConfigFile != "" {
		if err := mergeFromFile(tc, opts.ConfigFile, SourceFile); err != nil {
			return nil, err
		}
	} else {
		repo := opts.RepoPath
		if repo == "" {
			repo = "."
		}
		projectPath := filepath.Join(repo, StateDirName, ConfigFileName)
		if _, err := os.Stat(projectPath); err == nil {
			// Project config errors are fatal.
			if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
				return nil, err
			}
		}
	}

	if !opts.SkipEnv {
		ApplyEnvVars(tc)
	}

	if tc.Config.RepoPath == "" {
		tc.Config.RepoPath = opts.RepoPath
	}
	return tc, nil
}

// mergeFromFile overlays the keys present in path onto tc.Config.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	// Decoding into the existing struct only touches keys the file sets.
	if err := yaml.Unmarshal(data, tc.Config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	markKeys(tc, "", raw, source)
	return nil
}

// markKeys records source for every leaf key in raw.
func markKeys(tc *TrackedConfig, prefix string, raw map[string]any, source ConfigSource) {
	for k, v := range raw {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			markKeys(tc, path, nested, source)
			continue
		}
		tc.SetSource(path, source)
	}
}
