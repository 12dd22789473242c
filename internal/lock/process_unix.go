//go:build !windows

package lock

import (
	"os"
	"syscall"
)

// processExists reports whether pid names a live process on this host.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 checks without delivering.
	err = process.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
