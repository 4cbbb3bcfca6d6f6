package winclient

import (
	"context"
	"fmt"
	"runtime"
)

// Backend is the interface the go-fuse and cgofuse backends implement.
type Backend interface {
	// Start mounts the filesystem. It blocks until ctx is cancelled or an
	// error occurs.
	Start(ctx context.Context, core *ClientCore) error

	// Stop cleanly shuts down the backend.
	Stop() error

	// Name returns a human-readable name for the backend.
	Name() string
}

// SelectBackend returns the backend for mode: "fuse", "cgofuse" or "auto".
func SelectBackend(mode, mountPoint string) (Backend, error) {
	switch mode {
	case "fuse":
		return NewGoFuseBackend(mountPoint), nil
	case "cgofuse":
		return NewCgoFuseBackend(mountPoint), nil
	case "auto", "":
		if runtime.GOOS == "linux" {
			return NewGoFuseBackend(mountPoint), nil
		}
		return NewCgoFuseBackend(mountPoint), nil
	}
	return nil, fmt.Errorf("unknown backend %q", mode)
}
