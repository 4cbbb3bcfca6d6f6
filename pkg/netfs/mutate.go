package netfs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

// Lookup resolves name inside directory parentID.
//
// Every failure except table exhaustion and a closed session resolves
// negatively: the error wraps ErrNotExist with the cause attached. A failed
// remote call and a "no such entry" answer are not told apart.
func (s *Session) Lookup(ctx context.Context, parentID uint64, name string) (*Node, error) {
	if err := protocol.ValidateName(name); err != nil {
		return nil, notExist(err)
	}

	payload, err := s.call(ctx, protocol.MethodLookup,
		protocol.IDParam("parent", parentID),
		protocol.Param{Key: "name", Value: name},
	)
	if errors.Is(err, ErrSessionClosed) {
		return nil, err
	}
	if err != nil {
		s.log.Debug("lookup negative", logging.Inode("parent", parentID), logging.Name(name), zap.Error(err))
		return nil, notExist(err)
	}

	info, err := s.codec.DecodeEntryInfo(payload)
	if err != nil {
		return nil, notExist(malformed(protocol.MethodLookup, err))
	}
	if !info.Kind.Valid() {
		return nil, notExist(malformed(protocol.MethodLookup, fmt.Errorf("kind %d", uint8(info.Kind))))
	}

	node, err := s.ids.Materialize(info.Kind, info.ID)
	if errors.Is(err, ErrResourceExhausted) {
		s.log.Error("lookup: node table exhausted", logging.Inode("parent", parentID), logging.Name(name))
		return nil, err
	}
	if err != nil {
		return nil, notExist(err)
	}
	return node, nil
}

// Create makes a new entry of the given kind in parentID and returns its handle.
// Nothing is created locally unless the service accepted the request.
func (s *Session) Create(ctx context.Context, parentID uint64, name string, kind models.Kind) (*Node, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidArgument, uint8(kind))
	}
	if err := protocol.ValidateName(name); err != nil {
		return nil, err
	}

	payload, err := s.call(ctx, protocol.MethodCreate,
		protocol.IDParam("parent", parentID),
		protocol.Param{Key: "name", Value: name},
		protocol.Param{Key: "type", Value: protocol.KindParam(kind)},
	)
	if err != nil {
		s.log.Warn("create failed",
			logging.Inode("parent", parentID),
			logging.Name(name),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	info, err := s.codec.DecodeCreateInfo(payload)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, malformed(protocol.MethodCreate, err))
	}

	node, err := s.ids.Materialize(kind, info.ID)
	if err != nil {
		s.log.Error("create: cannot bind new entry",
			logging.Inode("parent", parentID),
			logging.Name(name),
			zap.Uint64("id", info.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	s.log.Info("created",
		logging.Inode("parent", parentID),
		logging.Name(name),
		zap.Stringer("kind", kind),
		zap.Uint64("id", node.ID),
	)
	return node, nil
}

// Mkdir creates a directory.
func (s *Session) Mkdir(ctx context.Context, parentID uint64, name string) (*Node, error) {
	return s.Create(ctx, parentID, name, models.KindDirectory)
}

// Unlink removes a file. The service decides whether the target is a file.
func (s *Session) Unlink(ctx context.Context, parentID uint64, name string) error {
	return s.remove(ctx, protocol.MethodUnlink, parentID, name)
}

// Rmdir removes an empty directory. Emptiness is checked by the service.
func (s *Session) Rmdir(ctx context.Context, parentID uint64, name string) error {
	return s.remove(ctx, protocol.MethodRmdir, parentID, name)
}

func (s *Session) remove(ctx context.Context, method protocol.Method, parentID uint64, name string) error {
	if err := protocol.ValidateName(name); err != nil {
		return err
	}

	_, err := s.call(ctx, method,
		protocol.IDParam("parent", parentID),
		protocol.Param{Key: "name", Value: name},
	)
	if err != nil {
		s.log.Warn(string(method)+" failed",
			logging.Inode("parent", parentID),
			logging.Name(name),
			zap.Error(err),
		)
		return fmt.Errorf("%s %q: %w", method, name, err)
	}

	s.log.Info("removed",
		logging.Method(method),
		logging.Inode("parent", parentID),
		logging.Name(name),
	)
	return nil
}
