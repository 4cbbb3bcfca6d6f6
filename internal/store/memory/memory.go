// Package memory is a map-backed store used by tests and ephemeral servers.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/pkg/models"
)

type object struct {
	kind     models.Kind
	children map[string]uint64
}

type namespace struct {
	objects map[uint64]*object
}

// Store keeps every namespace in process memory.
type Store struct {
	mu     sync.RWMutex
	nextID uint64
	spaces map[string]*namespace
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{nextID: store.FirstID, spaces: make(map[string]*namespace)}
}

// space returns the namespace for ns, creating it with an empty root.
// Callers must hold s.mu for writing when create is true.
func (s *Store) space(ns string, create bool) *namespace {
	sp, ok := s.spaces[ns]
	if ok || !create {
		return sp
	}
	sp = &namespace{objects: map[uint64]*object{
		models.RootID: {kind: models.KindDirectory, children: map[string]uint64{}},
	}}
	s.spaces[ns] = sp
	return sp
}

func (s *Store) dir(ns string, id uint64) (*object, error) {
	sp := s.space(ns, false)
	if sp == nil {
		if id == models.RootID {
			return &object{kind: models.KindDirectory}, nil
		}
		return nil, store.ErrNoSuchInode
	}
	o, ok := sp.objects[id]
	if !ok {
		return nil, store.ErrNoSuchInode
	}
	if !o.kind.IsDir() {
		return nil, store.ErrNotDir
	}
	return o, nil
}

func (s *Store) List(ctx context.Context, ns string, dir uint64) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.dir(ns, dir)
	if err != nil {
		return nil, err
	}
	sp := s.space(ns, false)
	entries := make([]models.Entry, 0, len(d.children))
	for name, id := range d.children {
		entries = append(entries, models.Entry{Name: name, Kind: sp.objects[id].kind, ID: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *Store) Lookup(ctx context.Context, ns string, parent uint64, name string) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.dir(ns, parent)
	if err != nil {
		return models.Entry{}, err
	}
	id, ok := d.children[name]
	if !ok {
		return models.Entry{}, store.ErrNotFound
	}
	return models.Entry{Name: name, Kind: s.space(ns, false).objects[id].kind, ID: id}, nil
}

func (s *Store) Create(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) (uint64, error) {
	if err := store.ValidateCreate(name, kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.space(ns, true)
	d, err := s.dir(ns, parent)
	if err != nil {
		return 0, err
	}
	if _, ok := d.children[name]; ok {
		return 0, store.ErrExists
	}
	id := s.nextID
	s.nextID++
	o := &object{kind: kind}
	if kind.IsDir() {
		o.children = map[string]uint64{}
	}
	sp.objects[id] = o
	d.children[name] = id
	return id, nil
}

func (s *Store) Remove(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.dir(ns, parent)
	if err != nil {
		return err
	}
	id, ok := d.children[name]
	if !ok {
		return store.ErrNotFound
	}
	sp := s.space(ns, false)
	target := sp.objects[id]
	if err := store.CheckRemove(models.Entry{Kind: target.kind, ID: id}, kind, len(target.children)); err != nil {
		return err
	}
	delete(d.children, name)
	delete(sp.objects, id)
	return nil
}

func (s *Store) Close() error { return nil }
