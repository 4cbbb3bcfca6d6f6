//go:build !windows

package commands

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkMountPoint requires an existing, writable directory.
func checkMountPoint(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("mountpoint %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return fmt.Errorf("mountpoint %s: not a directory", path)
	}
	if err := unix.Access(path, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("mountpoint %s: %w", path, err)
	}
	return nil
}
