//go:build windows

package orchestrator

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// killProcessGroup only kills the direct child; there are no POSIX
// process groups here.
func killProcessGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
