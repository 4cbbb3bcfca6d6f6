package netfs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fruitsalade/networkfs/pkg/protocol"
)

func TestKindOf(t *testing.T) {
	remote := func(s protocol.Status) error {
		return fmt.Errorf("op: %w", &protocol.CallError{Method: protocol.MethodCreate, Status: s})
	}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, NoError},
		{"negative lookup", notExist(remote(protocol.StatusTransport)), NotFound},
		{"no entry", remote(protocol.StatusNoEntry), NotFound},
		{"transport", remote(protocol.StatusTransport), TransportFailure},
		{"malformed", malformed(protocol.MethodList, protocol.ErrShortPayload), TransportFailure},
		{"exists", remote(protocol.StatusExists), RemoteRejected},
		{"not empty", remote(protocol.StatusNotEmpty), RemoteRejected},
		{"name too long", fmt.Errorf("x: %w", ErrNameTooLong), InvalidArgument},
		{"closed", ErrSessionClosed, InvalidArgument},
		{"exhausted", fmt.Errorf("create: %w", ErrResourceExhausted), ResourceExhausted},
		{"conflict", ErrIdentityConflict, RemoteRejected},
		{"unknown", errors.New("boom"), TransportFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}
