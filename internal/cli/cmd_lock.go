package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/wtsync/internal/lock"
)

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and clean up sync locks",
	}
	cmd.AddCommand(newLockStatusCmd())
	cmd.AddCommand(newLockSweepCmd())
	return cmd
}

// openLockManager builds a lock manager over the configured lock directory
// without starting its background sweep.
func openLockManager(cmd *cobra.Command) (*lock.Manager, error) {
	tc, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := tc.Config
	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return nil, err
	}
	repo, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, err
	}
	return lock.NewManager(cfg.LockDir(repo),
		lock.WithLogger(logger),
		lock.WithStaleAfter(cfg.Lock.StaleAfter),
	)
}

func newLockStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List held locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openLockManager(cmd)
			if err != nil {
				return err
			}
			records, err := m.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				type entry struct {
					lock.Record
					Stale bool `json:"stale"`
				}
				entries := make([]entry, 0, len(records))
				for i := range records {
					entries = append(entries, entry{Record: records[i], Stale: m.IsStale(&records[i])})
				}
				return printJSON(out, entries)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No locks held.")
				return nil
			}

			p := newPainter(out)
			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RESOURCE\tHOLDER\tAGE\tSTATE")
			for i := range records {
				rec := &records[i]
				state := p.paint(successStyle, "held")
				if m.IsStale(rec) {
					state = p.paint(warnStyle, "stale")
				}
				fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\n", rec.Resource, rec.Hostname, rec.PID,
					rec.Age(now).Round(time.Second), state)
			}
			return w.Flush()
		},
	}
}

func newLockSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale locks left by crashed syncs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openLockManager(cmd)
			if err != nil {
				return err
			}
			removed, err := m.Sweep()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale lock(s)\n", removed)
			return nil
		},
	}
}
