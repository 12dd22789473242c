package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/wtsync/internal/config"
	"github.com/randalmurphal/wtsync/internal/logging"
	"github.com/randalmurphal/wtsync/internal/orchestrator"
)

// loadConfig layers config files and env, then applies flag overrides.
func loadConfig() (*config.TrackedConfig, error) {
	tc, err := config.LoadWithSources(config.LoadOptions{
		RepoPath:   repoPath(),
		ConfigFile: cfgFile,
	})
	if err != nil {
		return nil, err
	}
	if repoDir != "" {
		tc.Config.RepoPath = repoDir
		tc.SetSource("repo_path", config.SourceFlag)
	}
	if v := settings.GetString("log.level"); v != "" {
		tc.Config.Log.Level = v
		tc.SetSource("log.level", config.SourceFlag)
	}
	if v := settings.GetString("log.format"); v != "" {
		tc.Config.Log.Format = v
		tc.SetSource("log.format", config.SourceFlag)
	}
	if verbose {
		tc.Config.Log.Level = "debug"
	}
	return tc, nil
}

func repoPath() string {
	if repoDir != "" {
		return repoDir
	}
	return "."
}

// newLogger builds the process logger. Quiet mode only shows errors.
func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	logger, err := logging.New(w, logging.Options{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// openOrchestrator loads configuration and wires an orchestrator for the
// selected repository. The caller must Close it.
func openOrchestrator(ctx context.Context, cmd *cobra.Command) (*orchestrator.Orchestrator, error) {
	tc, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), tc.Config)
	if err != nil {
		return nil, err
	}
	return orchestrator.Build(ctx, tc.Config, logger)
}

func stdoutIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
