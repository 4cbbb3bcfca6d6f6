// Package store defines the persistence interface of the directory service.
//
// Every credential owns an independent namespace whose root directory has id
// models.RootID and always exists. Identifiers of all other objects are
// unique across namespaces.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fruitsalade/networkfs/pkg/models"
)

var (
	ErrNotFound    = errors.New("entry not found")
	ErrNoSuchInode = errors.New("no such inode")
	ErrNotDir      = errors.New("not a directory")
	ErrNotFile     = errors.New("not a file")
	ErrExists      = errors.New("entry exists")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrBadName     = errors.New("invalid name")
	ErrBadKind     = errors.New("invalid entry type")
)

// Store persists namespaces of directories and files.
type Store interface {
	// List returns the members of dir ordered by name.
	List(ctx context.Context, ns string, dir uint64) ([]models.Entry, error)
	// Lookup resolves name inside parent.
	Lookup(ctx context.Context, ns string, parent uint64, name string) (models.Entry, error)
	// Create adds an entry of the given kind and returns its new id.
	Create(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) (uint64, error)
	// Remove deletes name from parent. The entry must be of the given kind;
	// directories must be empty.
	Remove(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) error
	Close() error
}

// FirstID is the first identifier handed out for created objects.
const FirstID = models.RootID + 1

// ValidateName checks the naming rules shared by all stores.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrBadName, name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q", ErrBadName, name)
	case len(name) > models.MaxNameLen:
		return fmt.Errorf("%w: %d bytes", ErrBadName, len(name))
	}
	return nil
}

// ValidateCreate checks the arguments of Create.
func ValidateCreate(name string, kind models.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %v", ErrBadKind, kind)
	}
	return ValidateName(name)
}

// CheckRemove applies the kind rules of Remove to an existing entry.
func CheckRemove(target models.Entry, kind models.Kind, childCount int) error {
	if kind.IsDir() {
		if !target.Kind.IsDir() {
			return ErrNotDir
		}
		if childCount > 0 {
			return ErrNotEmpty
		}
		return nil
	}
	if target.Kind.IsDir() {
		return ErrNotFile
	}
	return nil
}
