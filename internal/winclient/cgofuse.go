package winclient

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/netfs"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

const xattrPrefix = "user.networkfs."

// CgoFuseBackend implements Backend using cgofuse (cross-platform FUSE via WinFSP).
// Every operation resolves its path from the root through the session.
type CgoFuseBackend struct {
	fuse.FileSystemBase

	core      *ClientCore
	host      *fuse.FileSystemHost
	mountPath string
	mounted   time.Time
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCgoFuseBackend creates a new cgofuse backend.
func NewCgoFuseBackend(mountPath string) *CgoFuseBackend {
	ctx, cancel := context.WithCancel(context.Background())
	return &CgoFuseBackend{
		mountPath: mountPath,
		mounted:   time.Now(),
		log:       logging.Named("cgofuse"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (b *CgoFuseBackend) Name() string {
	return "cgofuse"
}

// attach binds the backend to core without mounting.
func (b *CgoFuseBackend) attach(core *ClientCore) {
	b.core = core
}

func (b *CgoFuseBackend) Start(ctx context.Context, core *ClientCore) error {
	b.attach(core)

	if err := os.MkdirAll(b.mountPath, 0755); err != nil {
		return err
	}

	b.host = fuse.NewFileSystemHost(b)
	b.host.SetCapReaddirPlus(false)

	core.StartBackgroundLoops(ctx)
	defer core.StopBackgroundLoops()

	b.log.Info("mounting", zap.String("mountpoint", b.mountPath))

	// host.Mount blocks until unmounted.
	opts := []string{"-o", "fsname=networkfs"}
	if core.Config.AllowOther {
		opts = append(opts, "-o", "allow_other")
	}
	errCh := make(chan error, 1)
	go func() {
		if !b.host.Mount(b.mountPath, opts) {
			errCh <- fuse.Error(-fuse.EIO)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		b.host.Unmount()
		return ctx.Err()
	}
}

func (b *CgoFuseBackend) Stop() error {
	if b.host != nil {
		b.host.Unmount()
	}
	if b.core != nil {
		b.core.StopBackgroundLoops()
	}
	return nil
}

// errno translates a netfs error into a negative cgofuse status.
func errno(err error) int {
	switch netfs.KindOf(err) {
	case netfs.NoError:
		return 0
	case netfs.NotFound:
		return -fuse.ENOENT
	case netfs.ResourceExhausted:
		return -fuse.ENOMEM
	case netfs.InvalidArgument:
		if errors.Is(err, netfs.ErrNameTooLong) {
			return -fuse.ENAMETOOLONG
		}
		return -fuse.EINVAL
	case netfs.RemoteRejected:
		switch protocol.StatusOf(err) {
		case protocol.StatusExists:
			return -fuse.EEXIST
		case protocol.StatusNotEmpty:
			return -fuse.ENOTEMPTY
		case protocol.StatusNotDir:
			return -fuse.ENOTDIR
		case protocol.StatusNotFile:
			return -fuse.EISDIR
		case protocol.StatusNameTooLong:
			return -fuse.ENAMETOOLONG
		case protocol.StatusBadRequest:
			return -fuse.EINVAL
		}
	}
	return -fuse.EIO
}

func (b *CgoFuseBackend) result(op string, err error) int {
	metrics.RecordFSOperation(op, err == nil)
	if err != nil {
		b.core.Stats.FailedOps.Add(1)
		b.log.Debug("operation failed", zap.String("op", op), zap.Error(err))
	}
	return errno(err)
}

func (b *CgoFuseBackend) nodeToStat(n *netfs.Node, stat *fuse.Stat_t) {
	stat.Ino = n.ID
	stat.Mode = n.Mode
	stat.Nlink = 1
	if n.IsDir() {
		stat.Nlink = 2
	}
	stat.Size = 0
	mt := fuse.NewTimespec(b.mounted)
	stat.Mtim = mt
	stat.Atim = mt
	stat.Ctim = mt
	stat.Uid = uint32(os.Getuid())
	stat.Gid = uint32(os.Getgid())
}

// --- fuse.FileSystemInterface implementation ---

func (b *CgoFuseBackend) Init() {
	b.log.Info("init")
}

func (b *CgoFuseBackend) Destroy() {
	b.log.Info("destroy")
	b.cancel()
}

func (b *CgoFuseBackend) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	node, err := b.core.Resolve(b.ctx, path)
	if err != nil {
		return errno(err)
	}
	b.nodeToStat(node, stat)
	return 0
}

func (b *CgoFuseBackend) Access(path string, mask uint32) int {
	_, err := b.core.Resolve(b.ctx, path)
	return errno(err)
}

func (b *CgoFuseBackend) Opendir(path string) (int, uint64) {
	node, err := b.core.Resolve(b.ctx, path)
	if err != nil {
		return errno(err), ^uint64(0)
	}
	if !node.IsDir() {
		return -fuse.ENOTDIR, ^uint64(0)
	}
	return 0, node.ID
}

// Readdir runs in offset mode: the offset handed to fill is the cursor
// position following the entry, so a refused entry is produced again on the
// next call.
func (b *CgoFuseBackend) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	node, parent, err := b.core.Session.Walk(b.ctx, path)
	if err != nil {
		return errno(err)
	}
	if !node.IsDir() {
		return -fuse.ENOTDIR
	}
	b.core.Stats.DirReads.Add(1)

	pos := ofst
	for {
		n, err := b.core.Session.Iterate(b.ctx, node.ID, parent.ID, &pos, func(e netfs.DirEntry) bool {
			st := fuse.Stat_t{Ino: e.ID, Mode: e.Kind.Mode()}
			return fill(e.Name, &st, e.Pos+1)
		})
		if err != nil {
			return b.result("readdir", err)
		}
		if n == 0 {
			break
		}
	}
	metrics.RecordFSOperation("readdir", true)
	return 0
}

func (b *CgoFuseBackend) Releasedir(path string, fh uint64) int {
	return 0
}

func (b *CgoFuseBackend) Open(path string, flags int) (int, uint64) {
	node, err := b.core.Resolve(b.ctx, path)
	if err != nil {
		return errno(err), ^uint64(0)
	}
	if node.IsDir() {
		return -fuse.EISDIR, ^uint64(0)
	}
	return 0, node.ID
}

// Read returns EOF; files carry no content.
func (b *CgoFuseBackend) Read(path string, buff []byte, ofst int64, fh uint64) int {
	return 0
}

func (b *CgoFuseBackend) Release(path string, fh uint64) int {
	return 0
}

func (b *CgoFuseBackend) Create(path string, flags int, mode uint32) (int, uint64) {
	dir, name, err := b.core.ResolveParent(b.ctx, path)
	if err != nil {
		return errno(err), ^uint64(0)
	}
	node, err := b.core.Session.Create(b.ctx, dir.ID, name, models.KindRegularFile)
	if err != nil {
		return b.result("create", err), ^uint64(0)
	}
	b.core.Stats.FilesCreated.Add(1)
	return b.result("create", nil), node.ID
}

func (b *CgoFuseBackend) Mkdir(path string, mode uint32) int {
	dir, name, err := b.core.ResolveParent(b.ctx, path)
	if err != nil {
		return errno(err)
	}
	if _, err := b.core.Session.Mkdir(b.ctx, dir.ID, name); err != nil {
		return b.result("mkdir", err)
	}
	b.core.Stats.DirsCreated.Add(1)
	return b.result("mkdir", nil)
}

func (b *CgoFuseBackend) Unlink(path string) int {
	dir, name, err := b.core.ResolveParent(b.ctx, path)
	if err != nil {
		return errno(err)
	}
	if err := b.core.Session.Unlink(b.ctx, dir.ID, name); err != nil {
		return b.result("unlink", err)
	}
	b.core.Stats.FilesDeleted.Add(1)
	return b.result("unlink", nil)
}

func (b *CgoFuseBackend) Rmdir(path string) int {
	dir, name, err := b.core.ResolveParent(b.ctx, path)
	if err != nil {
		return errno(err)
	}
	if err := b.core.Session.Rmdir(b.ctx, dir.ID, name); err != nil {
		return b.result("rmdir", err)
	}
	b.core.Stats.DirsDeleted.Add(1)
	return b.result("rmdir", nil)
}

// Truncate only accepts sizes that keep a file empty.
func (b *CgoFuseBackend) Truncate(path string, size int64, fh uint64) int {
	if _, err := b.core.Resolve(b.ctx, path); err != nil {
		return errno(err)
	}
	if size != 0 {
		return -fuse.EFBIG
	}
	return 0
}

func (b *CgoFuseBackend) Utimens(path string, tmsp []fuse.Timespec) int {
	_, err := b.core.Resolve(b.ctx, path)
	return errno(err)
}

func (b *CgoFuseBackend) Chmod(path string, mode uint32) int {
	return 0 // no-op
}

func (b *CgoFuseBackend) Chown(path string, uid uint32, gid uint32) int {
	return 0 // no-op
}

func (b *CgoFuseBackend) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Files = uint64(b.core.Session.Nodes().Len())
	stat.Namemax = models.MaxNameLen
	return 0
}

func (b *CgoFuseBackend) Getxattr(path string, name string) (int, []byte) {
	node, err := b.core.Resolve(b.ctx, path)
	if err != nil {
		return errno(err), nil
	}
	switch name {
	case xattrPrefix + "id":
		return 0, []byte(strconv.FormatUint(node.ID, 10))
	case xattrPrefix + "kind":
		return 0, []byte(node.Kind.String())
	case xattrPrefix + "online":
		return 0, []byte(strconv.FormatBool(b.core.IsOnline()))
	}
	return -fuse.ENODATA, nil
}

func (b *CgoFuseBackend) Listxattr(path string, fill func(name string) bool) int {
	if _, err := b.core.Resolve(b.ctx, path); err != nil {
		return errno(err)
	}
	for _, name := range []string{xattrPrefix + "id", xattrPrefix + "kind", xattrPrefix + "online"} {
		if !fill(name) {
			return -fuse.ERANGE
		}
	}
	return 0
}
