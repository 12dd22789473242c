package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Verifier runs one post-merge verification command in dir and returns its
// combined output.
type Verifier interface {
	Verify(ctx context.Context, dir, command string) (string, error)
}

// ProcessVerifier runs commands as child processes. Arguments are split on
// whitespace; no shell is involved.
type ProcessVerifier struct {
	// WaitDelay bounds how long to wait for output pipes after the process
	// group was killed.
	WaitDelay time.Duration
}

// Verify runs command in its own process group so a timeout takes down
// anything it spawned as well.
func (v ProcessVerifier) Verify(ctx context.Context, dir, command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty verification command")
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = dir
	setProcAttr(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = v.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		return out.String(), fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return out.String(), err
}
