// Package models contains the data types shared by the driver, the wire codecs and the directory service.
package models

import "fmt"

const (
	// RootID is the identifier the driver assigns to the mount root.
	// The directory service never hands it out for other objects.
	RootID uint64 = 1000

	// MaxNameLen is the longest entry name, in bytes, the service stores.
	MaxNameLen = 255

	// MaxListingEntries is the capacity of a listing page in the fixed wire format.
	MaxListingEntries = 16

	// FullAccess is the permission class every node carries (rwx for owner, group and other).
	FullAccess uint32 = 0o777
)

// Kind is the type of a remote object. The values match the dirent type codes.
type Kind uint8

const (
	KindUnknown     Kind = 0
	KindDirectory   Kind = 4
	KindRegularFile Kind = 8
)

// File type bits carried in node modes.
const (
	ModeTypeDir     uint32 = 0o040000
	ModeTypeRegular uint32 = 0o100000
)

// Mode returns the full mode of a node of kind k: its type bits plus FullAccess.
func (k Kind) Mode() uint32 {
	if k.IsDir() {
		return ModeTypeDir | FullAccess
	}
	return ModeTypeRegular | FullAccess
}

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindDirectory || k == KindRegularFile
}

// IsDir reports whether k is a directory.
func (k Kind) IsDir() bool {
	return k == KindDirectory
}

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegularFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind converts the request form ("file" or "directory") back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file":
		return KindRegularFile, nil
	case "directory":
		return KindDirectory, nil
	default:
		return KindUnknown, fmt.Errorf("unknown kind %q", s)
	}
}

// Entry is one member of a remote directory.
type Entry struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	ID   uint64 `json:"id"`
}

// EntryInfo is the answer to a lookup: the kind and id of a named child.
type EntryInfo struct {
	Kind Kind   `json:"kind"`
	ID   uint64 `json:"id"`
}

// CreateInfo is the answer to a create: the id allocated for the new object.
type CreateInfo struct {
	ID uint64 `json:"id"`
}

// ListingPage is the answer to a list call.
type ListingPage struct {
	Entries []Entry `json:"entries"`
}

// Count returns the number of entries in the page.
func (p *ListingPage) Count() int {
	return len(p.Entries)
}
