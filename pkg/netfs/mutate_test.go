package netfs

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

func TestCreateThenLookup(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()
	ctx := context.Background()

	node, err := s.Create(ctx, models.RootID, "notes.txt", models.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if node.ID != 42 || node.Kind != models.KindRegularFile {
		t.Fatalf("created %+v", node)
	}
	if node.Mode != models.ModeTypeRegular|0o777 {
		t.Errorf("mode = %o", node.Mode)
	}

	wantParams := []protocol.Param{
		{Key: "parent", Value: "1000"},
		{Key: "name", Value: "notes.txt"},
		{Key: "type", Value: "file"},
	}
	if got := remote.lastCall().params; !reflect.DeepEqual(got, wantParams) {
		t.Errorf("create params = %+v", got)
	}
	if got := remote.lastCall().maxSize; got != protocol.FixedCreateInfoSize {
		t.Errorf("create maxSize = %d", got)
	}

	found, err := s.Lookup(ctx, models.RootID, "notes.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found.ID != 42 || found.Kind != models.KindRegularFile {
		t.Errorf("lookup = %+v", found)
	}
	if found != node {
		t.Error("lookup did not reuse the created handle")
	}
}

func TestMkdirSendsDirectoryType(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()

	node, err := s.Mkdir(context.Background(), models.RootID, "docs")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if !node.IsDir() || node.Mode != models.ModeTypeDir|0o777 {
		t.Errorf("node = %+v", node)
	}
	call := remote.lastCall()
	if call.method != protocol.MethodCreate || call.params[2].Value != "directory" {
		t.Errorf("mkdir call = %+v", call)
	}
}

func TestNameLengthBoundary(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()
	ctx := context.Background()

	ok := strings.Repeat("a", 255)
	if _, err := s.Create(ctx, models.RootID, ok, models.KindRegularFile); err != nil {
		t.Fatalf("255-byte name rejected: %v", err)
	}
	if remote.callCount(protocol.MethodCreate) != 1 {
		t.Fatal("255-byte name was not forwarded")
	}

	long := strings.Repeat("a", 256)
	before := len(remote.calls)
	if _, err := s.Create(ctx, models.RootID, long, models.KindRegularFile); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Create: expected ErrNameTooLong, got %v", err)
	}
	if _, err := s.Mkdir(ctx, models.RootID, long); KindOf(err) != InvalidArgument {
		t.Errorf("Mkdir: expected InvalidArgument, got %v", err)
	}
	if err := s.Unlink(ctx, models.RootID, long); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Unlink: expected ErrNameTooLong, got %v", err)
	}
	if err := s.Rmdir(ctx, models.RootID, long); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Rmdir: expected ErrNameTooLong, got %v", err)
	}
	if _, err := s.Lookup(ctx, models.RootID, long); !errors.Is(err, ErrNotExist) {
		t.Errorf("Lookup: expected ErrNotExist, got %v", err)
	}
	if len(remote.calls) != before {
		t.Errorf("%d remote calls made for over-long names", len(remote.calls)-before)
	}
}

func TestUnlinkFailureKeepsBinding(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()
	ctx := context.Background()

	if _, err := s.Create(ctx, models.RootID, "notes.txt", models.KindRegularFile); err != nil {
		t.Fatal(err)
	}

	remote.fail[protocol.MethodUnlink] = protocol.StatusInternal
	err := s.Unlink(ctx, models.RootID, "notes.txt")
	if err == nil {
		t.Fatal("expected unlink failure")
	}
	if KindOf(err) != RemoteRejected {
		t.Errorf("KindOf = %v", KindOf(err))
	}

	if _, err := s.Lookup(ctx, models.RootID, "notes.txt"); err != nil {
		t.Errorf("lookup after failed unlink: %v", err)
	}
}

func TestUnlinkAndRmdir(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()
	ctx := context.Background()

	dir, _ := s.Mkdir(ctx, models.RootID, "docs")
	s.Create(ctx, dir.ID, "a.txt", models.KindRegularFile)

	if err := s.Rmdir(ctx, models.RootID, "docs"); protocol.StatusOf(err) != protocol.StatusNotEmpty {
		t.Errorf("rmdir non-empty: %v", err)
	}
	if err := s.Unlink(ctx, dir.ID, "a.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if got := remote.lastCall().params; got[0].Value != protocol.FormatID(dir.ID) || got[1].Value != "a.txt" {
		t.Errorf("unlink params = %+v", got)
	}
	if err := s.Rmdir(ctx, models.RootID, "docs"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if _, err := s.Lookup(ctx, models.RootID, "docs"); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected docs to be gone, got %v", err)
	}
}

func TestLookupFailuresResolveNegatively(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()
	ctx := context.Background()

	_, err := s.Lookup(ctx, models.RootID, "missing")
	if !errors.Is(err, ErrNotExist) || KindOf(err) != NotFound {
		t.Errorf("missing entry: %v (%v)", err, KindOf(err))
	}

	remote.fail[protocol.MethodLookup] = protocol.StatusTransport
	_, err = s.Lookup(ctx, models.RootID, "anything")
	if !errors.Is(err, ErrNotExist) {
		t.Errorf("transport failure: expected ErrNotExist, got %v", err)
	}
	if protocol.StatusOf(err) != protocol.StatusTransport {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestLookupUnknownKind(t *testing.T) {
	remote := newFakeRemote()
	remote.override[protocol.MethodLookup], _ = protocol.FixedCodec{}.EncodeEntryInfo(models.EntryInfo{Kind: models.Kind(1), ID: 5})
	remote.seed(models.RootID, models.Entry{Name: "odd", Kind: models.KindRegularFile, ID: 5})
	s := remote.session()

	_, err := s.Lookup(context.Background(), models.RootID, "odd")
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if s.Nodes().Len() != 1 {
		t.Errorf("unknown kind materialized a node")
	}
}

func TestLookupRootIDAsFile(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(models.RootID, models.Entry{Name: "loop", Kind: models.KindRegularFile, ID: models.RootID})
	s := remote.session()

	_, err := s.Lookup(context.Background(), models.RootID, "loop")
	if !errors.Is(err, ErrNotExist) || !errors.Is(err, ErrIdentityConflict) {
		t.Fatalf("expected negative resolution with identity conflict, got %v", err)
	}
}

func TestCreateFailureCreatesNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(models.RootID, models.Entry{Name: "taken", Kind: models.KindRegularFile, ID: 9})
	s := remote.session()

	_, err := s.Create(context.Background(), models.RootID, "taken", models.KindDirectory)
	if protocol.StatusOf(err) != protocol.StatusExists {
		t.Fatalf("expected StatusExists, got %v", err)
	}
	if s.Nodes().Len() != 1 {
		t.Errorf("identity table grew to %d", s.Nodes().Len())
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()

	_, err := s.Create(context.Background(), models.RootID, "x", models.KindUnknown)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if len(remote.calls) != 0 {
		t.Error("remote call made for invalid kind")
	}
}

func TestResourceExhaustionIsDistinct(t *testing.T) {
	remote := newFakeRemote()
	remote.seed(models.RootID, models.Entry{Name: "a", Kind: models.KindRegularFile, ID: 5})
	s := remote.session(WithMaxNodes(1))
	ctx := context.Background()

	_, err := s.Lookup(ctx, models.RootID, "a")
	if !errors.Is(err, ErrResourceExhausted) || errors.Is(err, ErrNotExist) {
		t.Fatalf("lookup: expected ErrResourceExhausted only, got %v", err)
	}
	if KindOf(err) != ResourceExhausted {
		t.Errorf("KindOf = %v", KindOf(err))
	}

	_, err = s.Create(ctx, models.RootID, "b", models.KindRegularFile)
	if KindOf(err) != ResourceExhausted {
		t.Errorf("create: KindOf = %v (%v)", KindOf(err), err)
	}
}

func TestOversizedPayloadIsRejected(t *testing.T) {
	remote := newFakeRemote()
	remote.override[protocol.MethodCreate] = make([]byte, protocol.FixedCreateInfoSize+1)
	s := remote.session()

	_, err := s.Create(context.Background(), models.RootID, "big", models.KindRegularFile)
	if protocol.StatusOf(err) != protocol.StatusResponseTooLarge {
		t.Fatalf("expected StatusResponseTooLarge, got %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	remote := newFakeRemote()
	s := remote.session()
	s.Close()
	ctx := context.Background()

	if _, err := s.Lookup(ctx, models.RootID, "a"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Lookup after close: %v", err)
	}
	if _, err := s.Create(ctx, models.RootID, "a", models.KindRegularFile); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Create after close: %v", err)
	}
	var pos int64
	if _, err := s.Iterate(ctx, models.RootID, models.RootID, &pos, func(DirEntry) bool { return true }); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Iterate after close: %v", err)
	}
	if len(remote.calls) != 0 {
		t.Errorf("%d calls made on a closed session", len(remote.calls))
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open("", newFakeRemote(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty credential: %v", err)
	}
	if _, err := Open(testToken, nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil caller: %v", err)
	}

	s, err := Open("not-a-uuid at all", newFakeRemote(), nil, WithRootID(1))
	if err != nil {
		t.Fatalf("opaque credential rejected: %v", err)
	}
	if s.Root().ID != 1 || !s.Root().IsDir() {
		t.Errorf("root = %+v", s.Root())
	}
	if s.Codec().Format() != protocol.FormatFixed {
		t.Errorf("default codec = %v", s.Codec().Format())
	}
}
