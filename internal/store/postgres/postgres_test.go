package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/fruitsalade/networkfs/internal/store/storetest"
)

func TestStore(t *testing.T) {
	url := os.Getenv("NETWORKFS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NETWORKFS_TEST_DATABASE_URL not set")
	}
	s, err := New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Migrations are idempotent.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	storetest.Run(t, s)
}
