package fuse

import (
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/netfs"
)

// dirStream drives Iterate with its own cursor. A stream ends after an
// invocation emits nothing or fails.
type dirStream struct {
	fsys     *NetFS
	dirID    uint64
	parentID uint64

	pos   int64
	buf   []gofuse.DirEntry
	errno syscall.Errno
	done  bool
}

var _ fs.DirStream = (*dirStream)(nil)

func (d *dirStream) fill() {
	n, err := d.fsys.session.Iterate(d.fsys.ctx, d.dirID, d.parentID, &d.pos, func(e netfs.DirEntry) bool {
		d.buf = append(d.buf, gofuse.DirEntry{
			Name: e.Name,
			Ino:  e.ID,
			Mode: e.Kind.Mode() &^ models.FullAccess,
		})
		return true
	})
	if err != nil {
		d.errno = d.fsys.record("readdir", err)
		d.done = true
		return
	}
	d.fsys.stats.EntriesListed.Add(int64(n))
	if n == 0 {
		d.fsys.record("readdir", nil)
		d.done = true
	}
}

func (d *dirStream) HasNext() bool {
	if len(d.buf) == 0 && d.errno == 0 && !d.done {
		d.fill()
	}
	return len(d.buf) > 0 || d.errno != 0
}

func (d *dirStream) Next() (gofuse.DirEntry, syscall.Errno) {
	if len(d.buf) == 0 {
		errno := d.errno
		if errno == 0 {
			errno = syscall.EIO
		}
		d.errno = 0
		return gofuse.DirEntry{}, errno
	}
	e := d.buf[0]
	d.buf = d.buf[1:]
	return e, 0
}

func (d *dirStream) Close() {}
