// Package netfs translates filesystem operations into remote calls against
// the directory service and maps the answers onto local node handles.
package netfs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

// Session is one mount: the credential, the caller used to reach the
// service, the wire codec and the identity table. It is safe for
// concurrent use; operations are not serialized against each other.
type Session struct {
	caller protocol.Caller
	codec  protocol.Codec
	ids    *Identity
	log    *zap.Logger

	mu     sync.RWMutex
	token  string
	closed bool
}

type options struct {
	logger   *zap.Logger
	maxNodes int
	rootID   uint64
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxNodes caps the identity table.
func WithMaxNodes(n int) Option {
	return func(o *options) { o.maxNodes = n }
}

// WithRootID overrides the root sentinel.
func WithRootID(id uint64) Option {
	return func(o *options) { o.rootID = id }
}

// Open starts a session with the given mount credential. The credential is
// opaque and forwarded unchanged on every call.
func Open(token string, caller protocol.Caller, codec protocol.Codec, opts ...Option) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrInvalidArgument)
	}
	if caller == nil {
		return nil, fmt.Errorf("%w: nil caller", ErrInvalidArgument)
	}
	if codec == nil {
		codec = protocol.FixedCodec{}
	}

	o := options{rootID: models.RootID}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Named("netfs")
	}

	s := &Session{
		caller: caller,
		codec:  codec,
		ids:    NewIdentity(o.rootID, o.maxNodes),
		log:    o.logger,
		token:  token,
	}
	s.log.Debug("session opened",
		logging.Token(token),
		logging.Inode("root", o.rootID),
		zap.String("format", string(codec.Format())),
	)
	return s, nil
}

// Root returns the root handle.
func (s *Session) Root() *Node {
	return s.ids.Root()
}

// Nodes returns the identity table.
func (s *Session) Nodes() *Identity {
	return s.ids
}

// Codec returns the wire codec.
func (s *Session) Codec() protocol.Codec {
	return s.codec
}

// Close releases the credential. Calls made afterwards fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.token = ""
	s.ids.Close()
	s.log.Debug("session closed")
	return nil
}

func (s *Session) credential() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.token, nil
}

// call performs one remote call and enforces the response bound for method.
func (s *Session) call(ctx context.Context, method protocol.Method, params ...protocol.Param) ([]byte, error) {
	token, err := s.credential()
	if err != nil {
		return nil, err
	}

	limit := s.codec.ResponseLimit(method)
	payload, err := s.caller.Call(ctx, token, method, limit, params...)
	if err != nil {
		if _, ok := protocol.AsCallError(err); !ok {
			err = &protocol.CallError{Method: method, Status: protocol.StatusTransport, Err: err}
		}
		return nil, err
	}
	if len(payload) > limit {
		return nil, &protocol.CallError{
			Method: method,
			Status: protocol.StatusResponseTooLarge,
			Err:    fmt.Errorf("%d bytes exceed %d", len(payload), limit),
		}
	}
	return payload, nil
}
