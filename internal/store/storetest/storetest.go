// Package storetest holds a conformance suite run against every store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/pkg/models"
)

// Run exercises s. Namespaces are derived from the test name and the current
// time so persistent backends can be reused between runs.
func Run(t *testing.T, s store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, ns string)
	}{
		{"EmptyRoot", testEmptyRoot},
		{"CreateLookup", testCreateLookup},
		{"ListSorted", testListSorted},
		{"Exists", testExists},
		{"Remove", testRemove},
		{"RemoveKindMismatch", testRemoveKindMismatch},
		{"NotEmpty", testNotEmpty},
		{"ParentErrors", testParentErrors},
		{"BadArguments", testBadArguments},
		{"Namespaces", testNamespaces},
		{"UniqueIDs", testUniqueIDs},
	}
	stamp := time.Now().UnixNano()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, s, fmt.Sprintf("%s-%d", tt.name, stamp))
		})
	}
}

func mustCreate(t *testing.T, s store.Store, ns string, parent uint64, name string, kind models.Kind) uint64 {
	t.Helper()
	id, err := s.Create(context.Background(), ns, parent, name, kind)
	if err != nil {
		t.Fatalf("Create(%d, %q): %v", parent, name, err)
	}
	return id
}

func testEmptyRoot(t *testing.T, s store.Store, ns string) {
	entries, err := s.List(context.Background(), ns, models.RootID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("fresh namespace has %d entries", len(entries))
	}
}

func testCreateLookup(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	dir := mustCreate(t, s, ns, models.RootID, "docs", models.KindDirectory)
	file := mustCreate(t, s, ns, dir, "a.txt", models.KindRegularFile)

	if dir < store.FirstID || file < store.FirstID || dir == file {
		t.Errorf("ids dir=%d file=%d", dir, file)
	}

	e, err := s.Lookup(ctx, ns, models.RootID, "docs")
	if err != nil {
		t.Fatalf("Lookup docs: %v", err)
	}
	if e.ID != dir || e.Kind != models.KindDirectory || e.Name != "docs" {
		t.Errorf("docs = %+v", e)
	}
	e, err = s.Lookup(ctx, ns, dir, "a.txt")
	if err != nil {
		t.Fatalf("Lookup a.txt: %v", err)
	}
	if e.ID != file || e.Kind != models.KindRegularFile {
		t.Errorf("a.txt = %+v", e)
	}
	if _, err := s.Lookup(ctx, ns, models.RootID, "a.txt"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("lookup in wrong dir: %v", err)
	}
}

func testListSorted(t *testing.T, s store.Store, ns string) {
	for _, name := range []string{"zeta", "Alpha", "beta", "alpha"} {
		mustCreate(t, s, ns, models.RootID, name, models.KindRegularFile)
	}
	entries, err := s.List(context.Background(), ns, models.RootID)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "Alpha,alpha,beta,zeta" {
		t.Errorf("order = %s", got)
	}
}

func testExists(t *testing.T, s store.Store, ns string) {
	mustCreate(t, s, ns, models.RootID, "x", models.KindRegularFile)
	for _, k := range []models.Kind{models.KindRegularFile, models.KindDirectory} {
		if _, err := s.Create(context.Background(), ns, models.RootID, "x", k); !errors.Is(err, store.ErrExists) {
			t.Errorf("duplicate %v: %v", k, err)
		}
	}
}

func testRemove(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	dir := mustCreate(t, s, ns, models.RootID, "d", models.KindDirectory)
	mustCreate(t, s, ns, models.RootID, "f", models.KindRegularFile)

	if err := s.Remove(ctx, ns, models.RootID, "f", models.KindRegularFile); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if err := s.Remove(ctx, ns, models.RootID, "d", models.KindDirectory); err != nil {
		t.Fatalf("rmdir: %v", err)
	}
	if err := s.Remove(ctx, ns, models.RootID, "f", models.KindRegularFile); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second unlink: %v", err)
	}
	if _, err := s.List(ctx, ns, dir); !errors.Is(err, store.ErrNoSuchInode) {
		t.Errorf("list removed dir: %v", err)
	}
	// The name is free again.
	mustCreate(t, s, ns, models.RootID, "f", models.KindDirectory)
}

func testRemoveKindMismatch(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	mustCreate(t, s, ns, models.RootID, "d", models.KindDirectory)
	mustCreate(t, s, ns, models.RootID, "f", models.KindRegularFile)

	if err := s.Remove(ctx, ns, models.RootID, "d", models.KindRegularFile); !errors.Is(err, store.ErrNotFile) {
		t.Errorf("unlink dir: %v", err)
	}
	if err := s.Remove(ctx, ns, models.RootID, "f", models.KindDirectory); !errors.Is(err, store.ErrNotDir) {
		t.Errorf("rmdir file: %v", err)
	}
}

func testNotEmpty(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	dir := mustCreate(t, s, ns, models.RootID, "d", models.KindDirectory)
	mustCreate(t, s, ns, dir, "child", models.KindRegularFile)

	if err := s.Remove(ctx, ns, models.RootID, "d", models.KindDirectory); !errors.Is(err, store.ErrNotEmpty) {
		t.Errorf("rmdir non-empty: %v", err)
	}
	if _, err := s.Lookup(ctx, ns, models.RootID, "d"); err != nil {
		t.Errorf("dir vanished after failed rmdir: %v", err)
	}
}

func testParentErrors(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	file := mustCreate(t, s, ns, models.RootID, "f", models.KindRegularFile)

	if _, err := s.List(ctx, ns, file); !errors.Is(err, store.ErrNotDir) {
		t.Errorf("list file: %v", err)
	}
	if _, err := s.Lookup(ctx, ns, file, "x"); !errors.Is(err, store.ErrNotDir) {
		t.Errorf("lookup in file: %v", err)
	}
	if _, err := s.Create(ctx, ns, file, "x", models.KindRegularFile); !errors.Is(err, store.ErrNotDir) {
		t.Errorf("create in file: %v", err)
	}
	if _, err := s.List(ctx, ns, 1<<60); !errors.Is(err, store.ErrNoSuchInode) {
		t.Errorf("list unknown: %v", err)
	}
	if err := s.Remove(ctx, ns, 1<<60, "x", models.KindRegularFile); !errors.Is(err, store.ErrNoSuchInode) {
		t.Errorf("remove in unknown: %v", err)
	}
}

func testBadArguments(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	for _, name := range []string{"", ".", "..", "a/b", strings.Repeat("n", models.MaxNameLen+1)} {
		if _, err := s.Create(ctx, ns, models.RootID, name, models.KindRegularFile); !errors.Is(err, store.ErrBadName) {
			t.Errorf("Create(%q): %v", name, err)
		}
	}
	if _, err := s.Create(ctx, ns, models.RootID, strings.Repeat("n", models.MaxNameLen), models.KindRegularFile); err != nil {
		t.Errorf("longest name: %v", err)
	}
	if _, err := s.Create(ctx, ns, models.RootID, "k", models.KindUnknown); !errors.Is(err, store.ErrBadKind) {
		t.Errorf("unknown kind: %v", err)
	}
}

func testNamespaces(t *testing.T, s store.Store, ns string) {
	ctx := context.Background()
	other := ns + "-other"
	mustCreate(t, s, ns, models.RootID, "mine", models.KindRegularFile)

	if _, err := s.Lookup(ctx, other, models.RootID, "mine"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("entry leaked across namespaces: %v", err)
	}
	mustCreate(t, s, other, models.RootID, "mine", models.KindDirectory)
	e, err := s.Lookup(ctx, ns, models.RootID, "mine")
	if err != nil || e.Kind != models.KindRegularFile {
		t.Errorf("own entry = %+v, %v", e, err)
	}
}

func testUniqueIDs(t *testing.T, s store.Store, ns string) {
	const n = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[uint64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Create(context.Background(), ns, models.RootID, fmt.Sprintf("f%02d", i), models.KindRegularFile)
			if err != nil {
				t.Errorf("Create f%02d: %v", i, err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if len(ids) != n {
		t.Errorf("%d distinct ids for %d creates", len(ids), n)
	}
}
