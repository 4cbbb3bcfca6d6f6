package netfs

import (
	"errors"
	"fmt"

	"github.com/fruitsalade/networkfs/pkg/protocol"
)

var (
	// ErrNotExist is the negative resolution of a lookup.
	ErrNotExist = errors.New("no such entry")
	// ErrNameTooLong is returned before any remote call for names over the length bound.
	ErrNameTooLong = protocol.ErrNameTooLong
	// ErrInvalidArgument reports a request the driver refuses to send.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrResourceExhausted reports that the node table is full.
	ErrResourceExhausted = errors.New("node table exhausted")
	// ErrIdentityConflict reports a remote id that cannot be bound to the requested kind.
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrSessionClosed is returned for calls on a torn-down session.
	ErrSessionClosed = errors.New("session closed")
)

// ErrorKind classifies a failed operation.
type ErrorKind int

const (
	NoError ErrorKind = iota
	NotFound
	TransportFailure
	RemoteRejected
	ResourceExhausted
	InvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "ok"
	case NotFound:
		return "not found"
	case TransportFailure:
		return "transport failure"
	case RemoteRejected:
		return "remote rejected"
	case ResourceExhausted:
		return "resource exhausted"
	case InvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// KindOf classifies err. Every non-nil error maps to exactly one kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	switch {
	case errors.Is(err, ErrResourceExhausted):
		return ResourceExhausted
	case errors.Is(err, ErrNotExist):
		return NotFound
	case errors.Is(err, ErrNameTooLong), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrSessionClosed):
		return InvalidArgument
	case errors.Is(err, ErrIdentityConflict):
		return RemoteRejected
	}

	if ce, ok := protocol.AsCallError(err); ok {
		switch {
		case ce.Status.Local():
			return TransportFailure
		case ce.Status == protocol.StatusNoEntry, ce.Status == protocol.StatusNoEntryInDir:
			return NotFound
		default:
			return RemoteRejected
		}
	}
	return TransportFailure
}

func notExist(cause error) error {
	return fmt.Errorf("%w: %w", ErrNotExist, cause)
}

func malformed(method protocol.Method, err error) error {
	return &protocol.CallError{Method: method, Status: protocol.StatusMalformedResponse, Err: err}
}
