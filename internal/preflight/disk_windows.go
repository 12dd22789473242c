//go:build windows

package preflight

import (
	"os"

	"golang.org/x/sys/windows"
)

// freeBytes returns the bytes available to the calling user on the volume
// holding path.
func freeBytes(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &total, &free); err != nil {
		return 0, err
	}
	return avail, nil
}

// writable reports whether the current user may create entries in dir.
// Windows ACLs are not reflected in file modes, so it creates and removes
// a temporary file.
func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".wtsync-write-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
