package badger

import (
	"context"
	"testing"

	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/internal/store/storetest"
	"github.com/fruitsalade/networkfs/pkg/models"
)

func TestStore(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	storetest.Run(t, s)
}

func TestInMemory(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	storetest.Run(t, s)
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Create(ctx, "tok", models.RootID, "keep", models.KindDirectory)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	e, err := s.Lookup(ctx, "tok", models.RootID, "keep")
	if err != nil || e.ID != id || !e.Kind.IsDir() {
		t.Fatalf("after reopen: %+v, %v", e, err)
	}
	next, err := s.Create(ctx, "tok", models.RootID, "new", models.KindRegularFile)
	if err != nil {
		t.Fatal(err)
	}
	if next <= id || next < store.FirstID {
		t.Errorf("id %d reused or below %d after reopen", next, id)
	}
}
