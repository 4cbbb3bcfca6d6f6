package netfs

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/fruitsalade/networkfs/pkg/models"
)

func TestWalk(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(models.RootID, models.Entry{Name: "docs", Kind: models.KindDirectory, ID: 7})
	remote.seed(7, models.Entry{Name: "a.txt", Kind: models.KindRegularFile, ID: 8})
	s := remote.session()
	ctx := context.Background()

	node, parent, err := s.Walk(ctx, "/docs/a.txt")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if node.ID != 8 || parent.ID != 7 {
		t.Errorf("node=%v parent=%v", node, parent)
	}

	node, parent, err = s.Walk(ctx, "/")
	if err != nil || node != s.Root() || parent != s.Root() {
		t.Errorf("root walk = %v %v %v", node, parent, err)
	}

	node, _, err = s.Walk(ctx, "docs/../docs/./a.txt")
	if err != nil || node.ID != 8 {
		t.Errorf("dot walk = %v %v", node, err)
	}

	if _, _, err := s.Walk(ctx, "/docs/a.txt/x"); !errors.Is(err, ErrNotExist) {
		t.Errorf("walk through file: %v", err)
	}
	if _, _, err := s.Walk(ctx, "/nope"); !errors.Is(err, ErrNotExist) {
		t.Errorf("walk missing: %v", err)
	}
}

func TestWalkParent(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(models.RootID, models.Entry{Name: "docs", Kind: models.KindDirectory, ID: 7})
	s := remote.session()

	dir, name, err := s.WalkParent(context.Background(), "/docs/new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if dir.ID != 7 || name != "new.txt" {
		t.Errorf("dir=%v name=%q", dir, name)
	}
	if _, _, err := s.WalkParent(context.Background(), "/"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("root: %v", err)
	}
}

func TestSplitPath(t *testing.T) {
	got := SplitPath("//a/b//c/")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("SplitPath = %v", got)
	}
	if SplitPath("/") != nil {
		t.Error("root should have no elements")
	}
}
