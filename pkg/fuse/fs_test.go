package fuse

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/api"
	"github.com/fruitsalade/networkfs/internal/store/memory"
	"github.com/fruitsalade/networkfs/pkg/client"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/netfs"
	"github.com/fruitsalade/networkfs/pkg/protocol"
	"github.com/fruitsalade/networkfs/pkg/retry"
)

// newTestFS wires a NetFS to an in-process directory service. The root is
// attached to a node tree without mounting.
func newTestFS(t *testing.T) (*NetFS, *Node) {
	t.Helper()
	f, root, _ := newTestBridge(t)
	return f, root
}

// newTestBridge is newTestFS that also returns the kernel-facing bridge.
func newTestBridge(t *testing.T) (*NetFS, *Node, gofuse.RawFileSystem) {
	t.Helper()
	ts := httptest.NewServer(api.NewServer(memory.New(), api.WithLogger(zap.NewNop())).Handler())
	t.Cleanup(ts.Close)

	c := client.New(client.Config{
		BaseURL:     ts.URL,
		Timeout:     5 * time.Second,
		RetryConfig: retry.Once(),
		Logger:      zap.NewNop(),
	})
	s, err := netfs.Open("fuse-test", c, c.Codec(), netfs.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	f := NewNetFS(context.Background(), s, Config{Online: c.IsOnline})
	f.log = zap.NewNop()
	root := f.Root()
	raw := fs.NewNodeFS(root, f.Options())
	return f, root, raw
}

func readAll(t *testing.T, n *Node) []gofuse.DirEntry {
	t.Helper()
	stream, errno := n.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("Readdir: %v", errno)
	}
	defer stream.Close()
	var out []gofuse.DirEntry
	for stream.HasNext() {
		e, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("Next: %v", errno)
		}
		out = append(out, e)
	}
	return out
}

func TestRootAttributes(t *testing.T) {
	_, root := newTestFS(t)
	var out gofuse.AttrOut
	if errno := root.Getattr(context.Background(), nil, &out); errno != 0 {
		t.Fatal(errno)
	}
	if out.Mode != syscall.S_IFDIR|0o777 || out.Ino != models.RootID {
		t.Errorf("root attr mode=%o ino=%d", out.Mode, out.Ino)
	}
}

func TestRootInodeThroughBridge(t *testing.T) {
	_, root, raw := newTestBridge(t)

	var out gofuse.AttrOut
	in := &gofuse.GetAttrIn{InHeader: gofuse.InHeader{NodeId: gofuse.FUSE_ROOT_ID}}
	if status := raw.GetAttr(nil, in, &out); !status.Ok() {
		t.Fatalf("GetAttr: %v", status)
	}
	if out.Ino != models.RootID {
		t.Errorf("root ino = %d, want %d", out.Ino, models.RootID)
	}
	if out.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		t.Errorf("root mode = %o", out.Mode)
	}

	entries := readAll(t, root)
	if len(entries) == 0 || entries[0].Name != "." || entries[0].Ino != out.Ino {
		t.Errorf("\".\" entry %+v does not match root ino %d", entries, out.Ino)
	}
}

func TestCreateLookupReaddir(t *testing.T) {
	f, root := newTestFS(t)
	ctx := context.Background()

	var out gofuse.EntryOut
	inode, _, _, errno := root.Create(ctx, "a.txt", 0, 0o644, &out)
	if errno != 0 {
		t.Fatalf("Create: %v", errno)
	}
	if out.Mode != syscall.S_IFREG|0o777 || inode.StableAttr().Ino != out.Ino {
		t.Errorf("created mode=%o ino=%d", out.Mode, out.Ino)
	}

	var dirOut gofuse.EntryOut
	if _, errno := root.Mkdir(ctx, "docs", 0o755, &dirOut); errno != 0 {
		t.Fatalf("Mkdir: %v", errno)
	}

	var looked gofuse.EntryOut
	found, errno := root.Lookup(ctx, "a.txt", &looked)
	if errno != 0 {
		t.Fatalf("Lookup: %v", errno)
	}
	if found.StableAttr() != inode.StableAttr() || looked.Ino != out.Ino {
		t.Errorf("lookup resolved %+v, created %+v", found.StableAttr(), inode.StableAttr())
	}

	entries := readAll(t, root)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != ".,..,a.txt,docs" {
		t.Errorf("entries = %s", got)
	}
	if entries[3].Mode != syscall.S_IFDIR || entries[2].Mode != syscall.S_IFREG {
		t.Errorf("modes %o %o", entries[2].Mode, entries[3].Mode)
	}
	if entries[0].Ino != models.RootID || entries[1].Ino != models.RootID {
		t.Errorf("dot entries %d %d", entries[0].Ino, entries[1].Ino)
	}

	stats := f.GetStats()
	if stats.FilesCreated.Load() != 1 || stats.DirsCreated.Load() != 1 || stats.EntriesListed.Load() != 4 {
		t.Errorf("stats files=%d dirs=%d listed=%d",
			stats.FilesCreated.Load(), stats.DirsCreated.Load(), stats.EntriesListed.Load())
	}
}

func TestErrnos(t *testing.T) {
	_, root := newTestFS(t)
	ctx := context.Background()
	var out gofuse.EntryOut

	if _, errno := root.Lookup(ctx, "missing", &out); errno != syscall.ENOENT {
		t.Errorf("lookup missing: %v", errno)
	}
	if _, errno := root.Lookup(ctx, strings.Repeat("x", 256), &out); errno != syscall.ENOENT {
		t.Errorf("lookup long name: %v", errno)
	}
	if _, errno := root.Mkdir(ctx, strings.Repeat("x", 256), 0, &out); errno != syscall.ENAMETOOLONG {
		t.Errorf("mkdir long name: %v", errno)
	}

	root.Mkdir(ctx, "d", 0, &out)
	if _, errno := root.Mkdir(ctx, "d", 0, &out); errno != syscall.EEXIST {
		t.Errorf("mkdir exists: %v", errno)
	}
	if errno := root.Unlink(ctx, "d"); errno != syscall.EISDIR {
		t.Errorf("unlink dir: %v", errno)
	}

	var dirOut gofuse.EntryOut
	d, _ := root.Lookup(ctx, "d", &dirOut)
	dn := d.Operations().(*Node)
	dn.Create(ctx, "f", 0, 0, &out)
	if errno := root.Rmdir(ctx, "d"); errno != syscall.ENOTEMPTY {
		t.Errorf("rmdir non-empty: %v", errno)
	}
	if errno := dn.Rmdir(ctx, "f"); errno != syscall.ENOTDIR {
		t.Errorf("rmdir file: %v", errno)
	}
	if errno := dn.Unlink(ctx, "f"); errno != 0 {
		t.Errorf("unlink: %v", errno)
	}
	if errno := root.Rmdir(ctx, "d"); errno != 0 {
		t.Errorf("rmdir: %v", errno)
	}
}

func TestReaddirSubdirParent(t *testing.T) {
	_, root := newTestFS(t)
	ctx := context.Background()
	var out gofuse.EntryOut
	d, errno := root.Mkdir(ctx, "sub", 0, &out)
	if errno != 0 {
		t.Fatal(errno)
	}
	root.AddChild("sub", d, false)

	entries := readAll(t, d.Operations().(*Node))
	if len(entries) != 2 || entries[0].Ino != out.Ino || entries[1].Ino != models.RootID {
		t.Errorf("entries = %+v", entries)
	}
}

func TestReadIsEmpty(t *testing.T) {
	_, root := newTestFS(t)
	ctx := context.Background()
	var out gofuse.EntryOut
	inode, _, _, _ := root.Create(ctx, "empty", 0, 0, &out)
	file := inode.Operations().(*Node)

	if _, _, errno := file.Open(ctx, syscall.O_RDONLY); errno != 0 {
		t.Fatalf("Open: %v", errno)
	}
	res, errno := file.Read(ctx, nil, make([]byte, 64), 0)
	if errno != 0 || res.Size() != 0 {
		t.Errorf("Read = %d bytes, %v", res.Size(), errno)
	}
	if _, _, errno := root.Open(ctx, syscall.O_RDONLY); errno != syscall.EISDIR {
		t.Errorf("open dir: %v", errno)
	}
}

func TestXattrs(t *testing.T) {
	_, root := newTestFS(t)
	ctx := context.Background()

	buf := make([]byte, 64)
	n, errno := root.Getxattr(ctx, "user.networkfs.id", buf)
	if errno != 0 || string(buf[:n]) != fmt.Sprint(models.RootID) {
		t.Errorf("id = %q, %v", buf[:n], errno)
	}
	n, _ = root.Getxattr(ctx, "user.networkfs.kind", buf)
	if string(buf[:n]) != "directory" {
		t.Errorf("kind = %q", buf[:n])
	}
	n, _ = root.Getxattr(ctx, "user.networkfs.online", buf)
	if v := string(buf[:n]); v != "true" && v != "false" {
		t.Errorf("online = %q", v)
	}
	if _, errno := root.Getxattr(ctx, "user.other", buf); errno != syscall.ENODATA {
		t.Errorf("unknown xattr: %v", errno)
	}
	if _, errno := root.Getxattr(ctx, "user.networkfs.kind", make([]byte, 2)); errno != syscall.ERANGE {
		t.Errorf("short buffer: %v", errno)
	}

	size, _ := root.Listxattr(ctx, nil)
	list := make([]byte, size)
	root.Listxattr(ctx, list)
	if got := strings.Split(strings.TrimRight(string(list), "\x00"), "\x00"); len(got) != 3 {
		t.Errorf("xattrs = %q", got)
	}
}

func TestSetattrTruncateOnly(t *testing.T) {
	_, root := newTestFS(t)
	var out gofuse.AttrOut
	in := &gofuse.SetAttrIn{}
	if errno := root.Setattr(context.Background(), nil, in, &out); errno != 0 {
		t.Errorf("Setattr: %v", errno)
	}
	in.Valid = gofuse.FATTR_SIZE
	in.Size = 10
	if errno := root.Setattr(context.Background(), nil, in, &out); errno != syscall.EFBIG {
		t.Errorf("grow: %v", errno)
	}
}

func TestErrnoMapping(t *testing.T) {
	remote := func(s protocol.Status) error {
		return &protocol.CallError{Method: protocol.MethodCreate, Status: s}
	}
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{netfs.ErrNotExist, syscall.ENOENT},
		{netfs.ErrResourceExhausted, syscall.ENOMEM},
		{netfs.ErrNameTooLong, syscall.ENAMETOOLONG},
		{netfs.ErrInvalidArgument, syscall.EINVAL},
		{remote(protocol.StatusExists), syscall.EEXIST},
		{remote(protocol.StatusNotEmpty), syscall.ENOTEMPTY},
		{remote(protocol.StatusNotDir), syscall.ENOTDIR},
		{remote(protocol.StatusNotFile), syscall.EISDIR},
		{remote(protocol.StatusInternal), syscall.EIO},
		{remote(protocol.StatusTransport), syscall.EIO},
		{netfs.ErrIdentityConflict, syscall.EIO},
	}
	for _, tt := range tests {
		if got := Errno(tt.err); got != tt.want {
			t.Errorf("Errno(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
