//go:build windows

package commands

import (
	"fmt"
	"os"
)

// checkMountPoint rejects an existing non-directory. WinFsp creates the
// mountpoint itself.
func checkMountPoint(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mountpoint %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mountpoint %s: not a directory", path)
	}
	return nil
}
