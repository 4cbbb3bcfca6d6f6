package fuse

import (
	"errors"
	"syscall"

	"github.com/fruitsalade/networkfs/pkg/netfs"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

// Errno translates a netfs error into the errno reported to the kernel.
func Errno(err error) syscall.Errno {
	switch netfs.KindOf(err) {
	case netfs.NoError:
		return 0
	case netfs.NotFound:
		return syscall.ENOENT
	case netfs.ResourceExhausted:
		return syscall.ENOMEM
	case netfs.InvalidArgument:
		if errors.Is(err, netfs.ErrNameTooLong) {
			return syscall.ENAMETOOLONG
		}
		return syscall.EINVAL
	case netfs.RemoteRejected:
		switch protocol.StatusOf(err) {
		case protocol.StatusExists:
			return syscall.EEXIST
		case protocol.StatusNotEmpty:
			return syscall.ENOTEMPTY
		case protocol.StatusNotDir:
			return syscall.ENOTDIR
		case protocol.StatusNotFile:
			return syscall.EISDIR
		case protocol.StatusNameTooLong:
			return syscall.ENAMETOOLONG
		case protocol.StatusBadRequest:
			return syscall.EINVAL
		}
		return syscall.EIO
	}
	return syscall.EIO
}
