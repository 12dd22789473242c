//go:build windows

package lock

import "os"

// processExists reports whether pid names a live process on this host.
// FindProcess opens a handle on Windows, so it fails for exited processes.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	process.Release()
	return true
}
