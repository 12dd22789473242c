package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/randalmurphal/wtsync/internal/model"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

const defaultWidth = 100

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// terminalWidth returns the width of w, or defaultWidth when w is not a
// terminal.
func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return defaultWidth
}

// painter applies styles only when writing to a terminal.
type painter struct {
	color bool
}

func newPainter(w io.Writer) painter {
	return painter{color: stdoutIsTerminal(w)}
}

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p painter) status(st model.SyncStatus) string {
	text := statusIcon(st) + " " + string(st)
	switch st {
	case model.StatusSuccess:
		return p.paint(successStyle, text)
	case model.StatusConflict, model.StatusRolledBack:
		return p.paint(warnStyle, text)
	case model.StatusFailure:
		return p.paint(failStyle, text)
	default:
		return text
	}
}

func (p painter) risk(r model.RiskLevel) string {
	switch r {
	case model.RiskHigh:
		return p.paint(failStyle, string(r))
	case model.RiskMedium, model.RiskLow:
		return p.paint(warnStyle, string(r))
	default:
		return p.paint(successStyle, string(r))
	}
}

func statusIcon(status model.SyncStatus) string {
	switch status {
	case model.StatusPending:
		return "○"
	case model.StatusRunning:
		return "⏳"
	case model.StatusSuccess:
		return "✅"
	case model.StatusConflict:
		return "⚠️"
	case model.StatusFailure:
		return "❌"
	case model.StatusRolledBack:
		return "↩️"
	default:
		return "❓"
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOperationLine writes the one-line summary used after a sync.
func printOperationLine(w io.Writer, p painter, op *model.SyncOperation) {
	files := 0
	if op.DiffSummary != nil {
		files = op.DiffSummary.FilesChanged
	}
	fmt.Fprintf(w, "%s  %s  %d file(s)  %s\n", p.status(op.Status), op.WorktreeBranch, files, p.paint(dimStyle, shortID(op.ID)))
	if op.Error != "" {
		fmt.Fprintf(w, "    %s\n", op.Error)
	}
	if hint := stashHint(op); hint != "" {
		fmt.Fprintf(w, "    uncommitted changes stashed, restore with: %s\n", hint)
	}
}

// stashHint returns the restore command for work stashed by a successful
// sync. Rollback re-applies the stash itself, so other statuses get none.
func stashHint(op *model.SyncOperation) string {
	if op.Status != model.StatusSuccess || op.Backup == nil {
		return ""
	}
	return op.Backup.RestoreHint()
}

// printOperation writes the full record for sync show.
func printOperation(w io.Writer, p painter, op *model.SyncOperation) {
	fmt.Fprintf(w, "%s %s\n", p.paint(boldStyle, "Operation"), op.ID)
	fmt.Fprintf(w, "  Branch:    %s\n", op.WorktreeBranch)
	fmt.Fprintf(w, "  Status:    %s\n", p.status(op.Status))
	fmt.Fprintf(w, "  Started:   %s\n", op.StartedAt.Format(time.RFC3339))
	if op.CompletedAt != nil {
		fmt.Fprintf(w, "  Completed: %s (%s)\n", op.CompletedAt.Format(time.RFC3339), formatDuration(op.Duration()))
	}
	if op.CommitHash != "" {
		fmt.Fprintf(w, "  Commit:    %s\n", op.CommitHash)
	}
	if op.RollbackPoint != "" {
		fmt.Fprintf(w, "  Rollback:  %s\n", op.RollbackPoint)
	}
	if hint := stashHint(op); hint != "" {
		fmt.Fprintf(w, "  Stashed:   %s (restore with: %s)\n", op.Backup.StashID, hint)
	}
	if op.Error != "" {
		fmt.Fprintf(w, "  Error:     %s\n", p.paint(failStyle, op.Error))
	}

	if d := op.DiffSummary; d != nil {
		fmt.Fprintf(w, "\n%s %d file(s), +%d -%d\n", p.paint(boldStyle, "Diff"), d.FilesChanged, d.Insertions, d.Deletions)
		for _, f := range d.Files {
			counts := fmt.Sprintf("+%d -%d", f.Insertions, f.Deletions)
			if f.Binary {
				counts = "binary"
			}
			fmt.Fprintf(w, "  %-9s %s  %s\n", f.Status, f.Path, p.paint(dimStyle, counts))
		}
	}
	if c := op.ConflictInfo; c != nil && c.HasConflicts {
		printConflicts(w, c)
	}
}

func printConflicts(w io.Writer, c *model.ConflictInfo) {
	fmt.Fprintf(w, "\nConflicts (%d file(s))\n", len(c.ConflictedFiles))
	for _, d := range c.Details {
		line := fmt.Sprintf("  %-13s %s", d.Type, d.File)
		if d.Description != "" {
			line += ": " + strings.ReplaceAll(d.Description, "\n", " ")
		}
		fmt.Fprintln(w, line)
	}
}

func printValidation(w io.Writer, p painter, r *model.ValidationResult) {
	for _, c := range r.Checks {
		mark := p.paint(successStyle, "✓")
		switch {
		case c.Skipped:
			mark = p.paint(dimStyle, "-")
		case !c.Passed:
			mark = p.paint(failStyle, "✗")
		}
		fmt.Fprintf(w, "%s %-18s %s\n", mark, c.Name, c.Message)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "%s %s\n", p.paint(warnStyle, "warning:"), warn)
	}
}
