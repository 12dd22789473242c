//go:build !windows

package preflight

import (
	"golang.org/x/sys/unix"
)

// freeBytes returns the bytes available to unprivileged users on the
// filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// writable reports whether the current user may create entries in dir.
func writable(dir string) error {
	return unix.Access(dir, unix.W_OK)
}
