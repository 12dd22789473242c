package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/wtsync/internal/config"
	"github.com/randalmurphal/wtsync/internal/util"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .wtsync/config.yaml",
		Long: `Write a default project configuration to .wtsync/config.yaml.

The state directory is ignored by git so sync records and locks never show
up as untracked changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(repoPath(), force)
			if err != nil {
				return err
			}
			if err := util.EnsureStateDir(config.Default().ResolvedStateDir(repoPath())); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}
