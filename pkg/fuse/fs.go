// Package fuse exposes a netfs session as a FUSE filesystem.
package fuse

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/netfs"
)

const xattrPrefix = "user.networkfs."

// NetFS is the mounted filesystem.
type NetFS struct {
	session *netfs.Session
	cfg     Config
	log     *zap.Logger
	mounted time.Time

	// ctx outlives individual requests; directory streams read through it.
	ctx context.Context

	stats Stats
}

// Stats holds filesystem statistics.
type Stats struct {
	Lookups       atomic.Int64
	FailedLookups atomic.Int64
	DirReads      atomic.Int64
	EntriesListed atomic.Int64
	FilesCreated  atomic.Int64
	DirsCreated   atomic.Int64
	FilesDeleted  atomic.Int64
	DirsDeleted   atomic.Int64
	FailedOps     atomic.Int64
}

// Node is a file or directory known to the identity table.
type Node struct {
	fs.Inode

	fsys *NetFS
	node *netfs.Node
}

// Config holds FUSE filesystem configuration.
type Config struct {
	FsName     string
	AllowOther bool
	Debug      bool

	// Online reports whether the directory service is reachable.
	Online func() bool
}

// NewNetFS wraps s. The session stays owned by the caller.
func NewNetFS(ctx context.Context, s *netfs.Session, cfg Config) *NetFS {
	if cfg.FsName == "" {
		cfg.FsName = "networkfs"
	}
	return &NetFS{
		session: s,
		cfg:     cfg,
		log:     logging.Named("fuse"),
		mounted: time.Now(),
		ctx:     ctx,
	}
}

// Root returns the root node.
func (f *NetFS) Root() *Node {
	return &Node{fsys: f, node: f.session.Root()}
}

// Options returns the node-tree options used by Mount. The root keeps the
// session's root id as its inode number.
func (f *NetFS) Options() *fs.Options {
	// Remote state is never cached by the kernel.
	var zero time.Duration
	root := stableAttr(f.session.Root())
	return &fs.Options{
		MountOptions: gofuse.MountOptions{
			AllowOther: f.cfg.AllowOther,
			Debug:      f.cfg.Debug,
			FsName:     f.cfg.FsName,
			Name:       "networkfs",
		},
		EntryTimeout:    &zero,
		AttrTimeout:     &zero,
		NegativeTimeout: &zero,
		UID:             uint32(os.Getuid()),
		GID:             uint32(os.Getgid()),
		RootStableAttr:  &root,
	}
}

// Mount mounts the filesystem at the given path.
func (f *NetFS) Mount(mountPoint string) (*gofuse.Server, error) {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	server, err := fs.Mount(mountPoint, f.Root(), f.Options())
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	f.log.Info("mounted", zap.String("mountpoint", mountPoint))
	return server, nil
}

// GetStats returns filesystem statistics.
func (f *NetFS) GetStats() *Stats {
	return &f.stats
}

// IsOnline returns true if the service is reachable.
func (f *NetFS) IsOnline() bool {
	if f.cfg.Online == nil {
		return true
	}
	return f.cfg.Online()
}

func (f *NetFS) record(method string, err error) syscall.Errno {
	metrics.RecordFSOperation(method, err == nil)
	if err != nil {
		f.stats.FailedOps.Add(1)
		f.log.Debug("operation failed", zap.String("op", method),
			zap.Stringer("kind", netfs.KindOf(err)), zap.Error(err))
	}
	return Errno(err)
}

var _ fs.InodeEmbedder = (*Node)(nil)
var _ fs.NodeGetattrer = (*Node)(nil)
var _ fs.NodeSetattrer = (*Node)(nil)
var _ fs.NodeLookuper = (*Node)(nil)
var _ fs.NodeReaddirer = (*Node)(nil)
var _ fs.NodeOpener = (*Node)(nil)
var _ fs.NodeReader = (*Node)(nil)
var _ fs.NodeGetxattrer = (*Node)(nil)
var _ fs.NodeListxattrer = (*Node)(nil)
var _ fs.NodeCreater = (*Node)(nil)
var _ fs.NodeMkdirer = (*Node)(nil)
var _ fs.NodeUnlinker = (*Node)(nil)
var _ fs.NodeRmdirer = (*Node)(nil)
var _ fs.NodeOnForgetter = (*Node)(nil)

// fillAttr describes a node. Objects carry no size or timestamps, so the
// mount time stands in for all three times.
func (f *NetFS) fillAttr(n *netfs.Node, out *gofuse.Attr) {
	out.Ino = n.ID
	out.Mode = n.Mode
	out.Nlink = 1
	if n.IsDir() {
		out.Nlink = 2
	}
	out.Size = 0
	out.Mtime = uint64(f.mounted.Unix())
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
}

func stableAttr(n *netfs.Node) fs.StableAttr {
	// A kind change under the same id is a new generation.
	return fs.StableAttr{Mode: n.Mode &^ models.FullAccess, Ino: n.ID, Gen: uint64(n.Kind)}
}

func (n *Node) newChild(ctx context.Context, child *netfs.Node, out *gofuse.EntryOut) *fs.Inode {
	n.fsys.fillAttr(child, &out.Attr)
	return n.NewInode(ctx, &Node{fsys: n.fsys, node: child}, stableAttr(child))
}

// parentID is the id ".." resolves to. The root is its own parent, and
// detached nodes fall back to it.
func (n *Node) parentID() uint64 {
	if _, p := n.Parent(); p != nil {
		if pn, ok := p.Operations().(*Node); ok {
			return pn.node.ID
		}
	}
	return n.fsys.session.Root().ID
}

func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	n.fsys.fillAttr(n.node, &out.Attr)
	return 0
}

// Setattr accepts and ignores changes so utilities like touch succeed.
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *gofuse.SetAttrIn, out *gofuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok && size != 0 {
		return syscall.EFBIG
	}
	n.fsys.fillAttr(n.node, &out.Attr)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fsys.stats.Lookups.Add(1)
	child, err := n.fsys.session.Lookup(ctx, n.node.ID, name)
	if err != nil {
		n.fsys.stats.FailedLookups.Add(1)
		return nil, n.fsys.record("lookup", err)
	}
	n.fsys.record("lookup", nil)
	return n.newChild(ctx, child, out), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	if !n.node.IsDir() {
		return nil, syscall.ENOTDIR
	}
	n.fsys.stats.DirReads.Add(1)
	return &dirStream{
		fsys:     n.fsys,
		dirID:    n.node.ID,
		parentID: n.parentID(),
	}, 0
}

// Open succeeds for files; they have no content.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if n.node.IsDir() {
		return nil, 0, syscall.EISDIR
	}
	return nil, gofuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	return gofuse.ReadResultData(nil), 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *gofuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child, err := n.fsys.session.Create(ctx, n.node.ID, name, models.KindRegularFile)
	if err != nil {
		return nil, nil, 0, n.fsys.record("create", err)
	}
	n.fsys.record("create", nil)
	n.fsys.stats.FilesCreated.Add(1)
	return n.newChild(ctx, child, out), nil, gofuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.fsys.session.Mkdir(ctx, n.node.ID, name)
	if err != nil {
		return nil, n.fsys.record("mkdir", err)
	}
	n.fsys.record("mkdir", nil)
	n.fsys.stats.DirsCreated.Add(1)
	return n.newChild(ctx, child, out), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := n.fsys.session.Unlink(ctx, n.node.ID, name); err != nil {
		return n.fsys.record("unlink", err)
	}
	n.fsys.stats.FilesDeleted.Add(1)
	return n.fsys.record("unlink", nil)
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := n.fsys.session.Rmdir(ctx, n.node.ID, name); err != nil {
		return n.fsys.record("rmdir", err)
	}
	n.fsys.stats.DirsDeleted.Add(1)
	return n.fsys.record("rmdir", nil)
}

// OnForget releases the identity binding once the kernel drops the inode.
func (n *Node) OnForget() {
	n.fsys.session.Nodes().Release(n.node)
}

func (n *Node) xattr(attr string) (string, bool) {
	switch attr {
	case xattrPrefix + "id":
		return fmt.Sprintf("%d", n.node.ID), true
	case xattrPrefix + "kind":
		return n.node.Kind.String(), true
	case xattrPrefix + "online":
		if n.fsys.IsOnline() {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

var xattrNames = []string{xattrPrefix + "id", xattrPrefix + "kind", xattrPrefix + "online"}

func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	value, ok := n.xattr(attr)
	if !ok {
		return 0, syscall.ENODATA
	}
	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return 0, syscall.ERANGE
	}
	copy(dest, value)
	return uint32(len(value)), 0
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	var total int
	for _, attr := range xattrNames {
		total += len(attr) + 1
	}
	if len(dest) == 0 {
		return uint32(total), 0
	}
	if len(dest) < total {
		return 0, syscall.ERANGE
	}
	offset := 0
	for _, attr := range xattrNames {
		copy(dest[offset:], attr)
		offset += len(attr)
		dest[offset] = 0
		offset++
	}
	return uint32(total), 0
}
