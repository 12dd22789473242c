package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/internal/orchestrator"
	"github.com/randalmurphal/wtsync/internal/storage"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync worktree branches and inspect sync history",
	}
	cmd.AddCommand(newSyncAutoCmd())
	cmd.AddCommand(newSyncWorktreeCmd())
	cmd.AddCommand(newSyncListCmd())
	cmd.AddCommand(newSyncShowCmd())
	cmd.AddCommand(newSyncRollbackCmd())
	cmd.AddCommand(newSyncCheckCmd())
	cmd.AddCommand(newSyncValidateCmd())
	return cmd
}

type syncFlags struct {
	force  bool
	dryRun bool
	push   bool
	noPush bool
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "merge even when conflicts are predicted")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "stop after the conflict check")
	cmd.Flags().BoolVar(&f.push, "push", false, "push the main branch after a successful merge")
	cmd.Flags().BoolVar(&f.noPush, "no-push", false, "never push, even if sync.auto_push is set")
	cmd.MarkFlagsMutuallyExclusive("push", "no-push")
}

func (f *syncFlags) options() orchestrator.SyncOptions {
	opts := orchestrator.SyncOptions{Force: f.force, DryRun: f.dryRun}
	switch {
	case f.push:
		opts.Push = orchestrator.PushAlways
	case f.noPush:
		opts.Push = orchestrator.PushNever
	}
	return opts
}

func newSyncWorktreeCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "worktree <branch>",
		Short: "Sync one worktree branch into the main branch",
		Long: `Sync one worktree branch into the main branch.

The main branch must be checked out in the repository. Predicted conflicts
stop the sync unless --force is given.

Example:
  wtsync sync worktree feature/login
  wtsync sync worktree feature/login --dry-run
  wtsync sync worktree feature/login --force --push`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			op, err := o.SyncWorktree(ctx, args[0], flags.options())
			if op != nil {
				if jsonOut {
					if perr := printJSON(cmd.OutOrStdout(), op); perr != nil {
						return perr
					}
				} else {
					printOperationLine(cmd.OutOrStdout(), newPainter(cmd.OutOrStdout()), op)
				}
			}
			if err != nil {
				return err
			}
			if op.Status != model.StatusSuccess {
				return outcomef("sync of %s ended with status %s", op.WorktreeBranch, op.Status)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newSyncAutoCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Sync every worktree branch, one at a time",
		Long: `Sync every worktree branch into the main branch, one at a time.

The main branch, detached and bare worktrees, and branches matching
sync.excluded_worktrees are skipped. A failing branch does not stop the
batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			ops, err := o.SyncAllWorktrees(ctx, flags.options())
			out := cmd.OutOrStdout()
			if jsonOut {
				if perr := printJSON(out, ops); perr != nil {
					return perr
				}
			} else {
				p := newPainter(out)
				if len(ops) == 0 && !quiet {
					fmt.Fprintln(out, "No worktrees to sync.")
				}
				for _, op := range ops {
					printOperationLine(out, p, op)
				}
			}
			if err != nil {
				return err
			}

			failed := 0
			for _, op := range ops {
				if op.Status != model.StatusSuccess {
					failed++
				}
			}
			if failed > 0 {
				return outcomef("%d of %d worktree syncs did not succeed", failed, len(ops))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newSyncListCmd() *cobra.Command {
	var (
		status string
		branch string
		since  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "history"},
		Short:   "List recorded sync operations, newest first",
		Long: `List recorded sync operations, newest first.

Example:
  wtsync sync list
  wtsync sync list --status success --limit 5
  wtsync sync list --branch feature/login --since 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.Filter{Branch: branch, Limit: limit}
			if status != "" {
				st, err := model.ParseSyncStatus(strings.ToLower(status))
				if err != nil {
					return err
				}
				filter.Status = st
			}
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				filter.Since = t
			}

			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			ops, err := o.GetSyncHistory(ctx, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, ops)
			}
			if len(ops) == 0 {
				fmt.Fprintln(out, "No sync operations recorded.")
				return nil
			}

			p := newPainter(out)
			branchWidth := terminalWidth(out) - 60
			if branchWidth < 12 {
				branchWidth = 12
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tBRANCH\tFILES\tSTARTED\tDURATION")
			for _, op := range ops {
				files := "-"
				if op.DiffSummary != nil {
					files = fmt.Sprint(op.DiffSummary.FilesChanged)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(op.ID), p.status(op.Status), truncate(op.WorktreeBranch, branchWidth),
					files, op.StartedAt.Local().Format("2006-01-02 15:04:05"), formatDuration(op.Duration()))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show operations with this status")
	cmd.Flags().StringVar(&branch, "branch", "", "only show operations for this branch")
	cmd.Flags().StringVar(&since, "since", "", "only show operations started after a duration ago (24h) or a date (2006-01-02)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of operations (0 for all)")
	return cmd
}

// parseSince accepts a duration before now, an RFC 3339 timestamp or a date.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: want a duration (24h), RFC 3339 time or date (2006-01-02)", s)
}

func newSyncShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded sync operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			op, err := o.GetOperation(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), op)
			}
			printOperation(cmd.OutOrStdout(), newPainter(cmd.OutOrStdout()), op)
			return nil
		},
	}
}

func newSyncRollbackCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rollback <id>",
		Short: "Restore the backup taken before a sync",
		Long: `Restore the backup taken before a sync and mark it rolled back.

Without --force the working tree must be clean and a mixed reset keeps any
working-tree edits. With --force a hard reset discards them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			op, res, err := o.RollbackSync(ctx, args[0], force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, map[string]any{"operation": op, "result": res})
			}
			p := newPainter(out)
			if res.NoOp && res.ToCommit == "" {
				fmt.Fprintf(out, "%s was already rolled back\n", op.ID)
				return nil
			}
			fmt.Fprintf(out, "%s  %s restored to %s\n", p.status(op.Status), op.WorktreeBranch, res.ToCommit)
			if res.StashRestored {
				fmt.Fprintln(out, "    stashed changes re-applied")
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "    %s %s\n", p.paint(warnStyle, "warning:"), w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "hard reset, discarding uncommitted changes")
	return cmd
}

func newSyncCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <branch>",
		Short: "Predict conflicts of merging a branch into main",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			report, err := o.CheckBranch(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				p := newPainter(out)
				fmt.Fprintf(out, "Risk: %s\n", p.risk(report.RiskLevel))
				if report.ConflictInfo.HasConflicts {
					printConflicts(out, &report.ConflictInfo)
				} else {
					fmt.Fprintf(out, "%s merges cleanly into %s\n", args[0], o.Config().MainBranch)
				}
				if len(report.Recommendations) > 0 {
					fmt.Fprintln(out, "\nRecommendations:")
					for _, r := range report.Recommendations {
						fmt.Fprintf(out, "  - %s\n", r)
					}
				}
			}
			if report.ConflictInfo.HasConflicts {
				return outcomef("%d conflicted file(s)", len(report.ConflictInfo.ConflictedFiles))
			}
			return nil
		},
	}
}

func newSyncValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <branch>",
		Short: "Run the preflight checks for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := openOrchestrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer o.Close()

			result, err := o.ValidateBranch(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else {
				printValidation(out, newPainter(out), result)
			}
			if !result.Valid {
				return outcomef("preflight validation failed: %s", strings.Join(result.Errors, "; "))
			}
			return nil
		},
	}
}
