//go:build windows

package winclient

import (
	"context"
	"errors"
)

var errNoKernelFUSE = errors.New("the fuse backend is not available on windows; use cgofuse")

// GoFuseBackend is unavailable on Windows.
type GoFuseBackend struct{}

func NewGoFuseBackend(mountPath string) *GoFuseBackend {
	return &GoFuseBackend{}
}

func (b *GoFuseBackend) Name() string {
	return "fuse"
}

func (b *GoFuseBackend) Start(ctx context.Context, core *ClientCore) error {
	return errNoKernelFUSE
}

func (b *GoFuseBackend) Stop() error {
	return nil
}
