//go:build !windows

package winclient

import (
	"context"
	"sync"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/pkg/fuse"
)

// GoFuseBackend mounts through the kernel FUSE protocol with go-fuse.
type GoFuseBackend struct {
	mountPath string

	mu     sync.Mutex
	server *gofuse.Server
	fsys   *fuse.NetFS
}

func NewGoFuseBackend(mountPath string) *GoFuseBackend {
	return &GoFuseBackend{mountPath: mountPath}
}

func (b *GoFuseBackend) Name() string {
	return "fuse"
}

func (b *GoFuseBackend) Start(ctx context.Context, core *ClientCore) error {
	fsys := fuse.NewNetFS(ctx, core.Session, fuse.Config{
		AllowOther: core.Config.AllowOther,
		Debug:      core.Config.Debug,
		Online:     core.IsOnline,
	})
	server, err := fsys.Mount(b.mountPath)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.server, b.fsys = server, fsys
	b.mu.Unlock()

	core.StartBackgroundLoops(ctx)
	defer core.StopBackgroundLoops()

	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if err := b.Stop(); err != nil {
			return err
		}
		<-done
		return ctx.Err()
	}
}

func (b *GoFuseBackend) Stop() error {
	b.mu.Lock()
	server, fsys := b.server, b.fsys
	b.server = nil
	b.mu.Unlock()
	if server == nil {
		return nil
	}

	stats := fsys.GetStats()
	logging.Info("unmounting",
		zap.String("mountpoint", b.mountPath),
		zap.Int64("lookups", stats.Lookups.Load()),
		zap.Int64("dir_reads", stats.DirReads.Load()),
		zap.Int64("failed_ops", stats.FailedOps.Load()),
	)
	return server.Unmount()
}
