// Package cli implements the wtsync command-line interface.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	repoDir   string
	verbose   bool
	quiet     bool
	jsonOut   bool
	logLevel  string
	logFormat string

	// settings resolves global flags against WTSYNC_* environment variables.
	settings *viper.Viper
)

// newRootCmd builds the command tree. Flag state is reset on every call.
func newRootCmd() *cobra.Command {
	cfgFile, repoDir, logLevel, logFormat = "", "", "", ""
	verbose, quiet, jsonOut = false, false, false
	settings = viper.New()

	rootCmd := &cobra.Command{
		Use:   "wtsync",
		Short: "Synchronize git worktree branches into the main branch",
		Long: `wtsync merges work from git worktrees back into the main branch safely.

Every sync runs preflight checks, predicts conflicts, takes a backup and
records the outcome so it can be inspected or rolled back later.

Quick start:
  wtsync init                       Write .wtsync/config.yaml
  wtsync sync check feature/login   Predict conflicts
  wtsync sync worktree feature/login
  wtsync sync auto                  Sync every worktree
  wtsync sync list                  Show history`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .wtsync/config.yaml)")
	flags.StringVarP(&repoDir, "repo", "C", "", "repository path (default is the current directory)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	flags.BoolVar(&jsonOut, "json", false, "output as JSON")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (text, json)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newLockCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI and prints any error to stderr.
func Execute() error {
	ctx, cancel := SetupSignalHandler()
	defer cancel()

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		PrintError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// initConfig binds global flags to WTSYNC_* environment variables.
func initConfig(cmd *cobra.Command) error {
	settings.SetEnvPrefix("WTSYNC")
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	settings.AutomaticEnv()

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"config":     "config",
		"repo":       "repo",
		"json":       "json",
		"log.level":  "log-level",
		"log.format": "log-format",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := settings.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfgFile = settings.GetString("config")
	repoDir = settings.GetString("repo")
	jsonOut = settings.GetBool("json")
	return nil
}
