// Package badger persists namespaces in an embedded BadgerDB.
//
// Key layout (ns never contains NUL):
//
//	o\x00<ns>\x00<id:8>          -> kind
//	c\x00<ns>\x00<parent:8><name> -> id:8 kind:1
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/retry"
)

var sequenceKey = []byte("seq:id")

// Store is a BadgerDB-backed store.Store.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a database at path. An empty path keeps the database
// in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", opts.Dir, err)
	}
	seq, err := db.GetSequence(sequenceKey, 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease id sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func objectKey(ns string, id uint64) []byte {
	k := make([]byte, 0, len(ns)+11)
	k = append(k, 'o', 0)
	k = append(k, ns...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint64(k, id)
}

func childPrefix(ns string, parent uint64) []byte {
	k := make([]byte, 0, len(ns)+11)
	k = append(k, 'c', 0)
	k = append(k, ns...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint64(k, parent)
}

func childKey(ns string, parent uint64, name string) []byte {
	return append(childPrefix(ns, parent), name...)
}

func encodeChild(id uint64, kind models.Kind) []byte {
	return append(binary.BigEndian.AppendUint64(nil, id), byte(kind))
}

func decodeChild(val []byte) (uint64, models.Kind, error) {
	if len(val) != 9 {
		return 0, 0, fmt.Errorf("corrupt child record of %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), models.Kind(val[8]), nil
}

// checkDir fails unless id names a directory in ns.
func checkDir(txn *badger.Txn, ns string, id uint64) error {
	if id == models.RootID {
		return nil
	}
	item, err := txn.Get(objectKey(ns, id))
	if err == badger.ErrKeyNotFound {
		return store.ErrNoSuchInode
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if len(val) != 1 || !models.Kind(val[0]).IsDir() {
			return store.ErrNotDir
		}
		return nil
	})
}

func getChild(txn *badger.Txn, ns string, parent uint64, name string) (models.Entry, error) {
	item, err := txn.Get(childKey(ns, parent, name))
	if err == badger.ErrKeyNotFound {
		return models.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return models.Entry{}, err
	}
	e := models.Entry{Name: name}
	err = item.Value(func(val []byte) error {
		var err error
		e.ID, e.Kind, err = decodeChild(val)
		return err
	})
	return e, err
}

func (s *Store) List(ctx context.Context, ns string, dir uint64) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		if err := checkDir(txn, ns, dir); err != nil {
			return err
		}
		prefix := childPrefix(ns, dir)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			e := models.Entry{Name: string(item.Key()[len(prefix):])}
			err := item.Value(func(val []byte) error {
				var err error
				e.ID, e.Kind, err = decodeChild(val)
				return err
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Lookup(ctx context.Context, ns string, parent uint64, name string) (models.Entry, error) {
	var e models.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		if err := checkDir(txn, ns, parent); err != nil {
			return err
		}
		var err error
		e, err = getChild(txn, ns, parent, name)
		return err
	})
	return e, err
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			return retry.Retryable(err)
		}
		return err
	})
}

func (s *Store) Create(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) (uint64, error) {
	if err := store.ValidateCreate(name, kind); err != nil {
		return 0, err
	}
	var id uint64
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := checkDir(txn, ns, parent); err != nil {
			return err
		}
		if _, err := txn.Get(childKey(ns, parent, name)); err == nil {
			return store.ErrExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		next, err := s.seq.Next()
		if err != nil {
			return err
		}
		id = next + store.FirstID
		if err := txn.Set(objectKey(ns, id), []byte{byte(kind)}); err != nil {
			return err
		}
		return txn.Set(childKey(ns, parent, name), encodeChild(id, kind))
	})
	if err != nil {
		return 0, retry.Unwrap(err)
	}
	return id, nil
}

func (s *Store) Remove(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := checkDir(txn, ns, parent); err != nil {
			return err
		}
		target, err := getChild(txn, ns, parent, name)
		if err != nil {
			return err
		}
		children := 0
		if target.Kind.IsDir() {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = childPrefix(ns, target.ID)
			it := txn.NewIterator(opts)
			it.Rewind()
			if it.Valid() {
				children = 1
			}
			it.Close()
		}
		if err := store.CheckRemove(target, kind, children); err != nil {
			return err
		}
		if err := txn.Delete(childKey(ns, parent, name)); err != nil {
			return err
		}
		return txn.Delete(objectKey(ns, target.ID))
	})
	return retry.Unwrap(err)
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
