package cli

import (
	"fmt"
	"io"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
)

// PrintError prints err to w. SyncErrors use their user-facing format.
func PrintError(w io.Writer, err error) {
	if se := wterrors.AsSyncError(err); se != nil {
		fmt.Fprintln(w, se.UserMessage())
		if verbose {
			fmt.Fprintf(w, "\nCode: %s\n", se.Code)
			if se.Cause != nil {
				fmt.Fprintf(w, "Cause: %v\n", se.Cause)
			}
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// outcomeError reports a command that ran but did not reach success, so
// the process exits non-zero.
type outcomeError struct {
	msg string
}

func (e *outcomeError) Error() string { return e.msg }

func outcomef(format string, args ...any) error {
	return &outcomeError{msg: fmt.Sprintf(format, args...)}
}
