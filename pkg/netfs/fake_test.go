package netfs

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

const testToken = "f22aea6a-152e-4df0-bffb-2009965129c6"

type recordedCall struct {
	token   string
	method  protocol.Method
	maxSize int
	params  []protocol.Param
}

// fakeRemote is a tiny directory service speaking the fixed codec.
type fakeRemote struct {
	mu     sync.Mutex
	codec  protocol.Codec
	dirs   map[uint64][]models.Entry
	nextID uint64
	calls  []recordedCall

	// fail forces a status for a method.
	fail map[protocol.Method]protocol.Status
	// override replaces the payload of successful calls of a method.
	override map[protocol.Method][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		codec:    protocol.FixedCodec{},
		dirs:     map[uint64][]models.Entry{models.RootID: nil},
		nextID:   42,
		fail:     map[protocol.Method]protocol.Status{},
		override: map[protocol.Method][]byte{},
	}
}

func (f *fakeRemote) session(opts ...Option) *Session {
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	s, err := Open(testToken, f, f.codec, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (f *fakeRemote) callCount(m protocol.Method) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == m {
			n++
		}
	}
	return n
}

func (f *fakeRemote) lastCall() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeRemote) Call(ctx context.Context, token string, method protocol.Method, maxSize int, params ...protocol.Param) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, recordedCall{token: token, method: method, maxSize: maxSize, params: params})
	if st, ok := f.fail[method]; ok {
		return nil, &protocol.CallError{Method: method, Status: st}
	}

	status, payload := f.serve(method, params)
	if status != protocol.StatusOK {
		return nil, &protocol.CallError{Method: method, Status: status}
	}
	if p, ok := f.override[method]; ok {
		payload = p
	}
	return payload, nil
}

func (f *fakeRemote) serve(method protocol.Method, params []protocol.Param) (protocol.Status, []byte) {
	get := func(key string) string {
		for _, p := range params {
			if p.Key == key {
				return p.Value
			}
		}
		return ""
	}
	id := func(key string) uint64 {
		v, err := protocol.ParseID(get(key))
		if err != nil {
			return 0
		}
		return v
	}
	find := func(dir uint64, name string) (int, bool) {
		for i, e := range f.dirs[dir] {
			if e.Name == name {
				return i, true
			}
		}
		return -1, false
	}

	switch method {
	case protocol.MethodList:
		entries, ok := f.dirs[id("inode")]
		if !ok {
			return protocol.StatusNotDir, nil
		}
		page := &models.ListingPage{Entries: entries}
		if len(page.Entries) > models.MaxListingEntries {
			page.Entries = page.Entries[:models.MaxListingEntries]
		}
		b, _ := f.codec.EncodeListing(page)
		return protocol.StatusOK, b

	case protocol.MethodLookup:
		parent := id("parent")
		i, ok := find(parent, get("name"))
		if !ok {
			return protocol.StatusNoEntryInDir, nil
		}
		e := f.dirs[parent][i]
		b, _ := f.codec.EncodeEntryInfo(models.EntryInfo{Kind: e.Kind, ID: e.ID})
		return protocol.StatusOK, b

	case protocol.MethodCreate:
		parent := id("parent")
		if _, ok := f.dirs[parent]; !ok {
			return protocol.StatusNotDir, nil
		}
		name := get("name")
		if _, ok := find(parent, name); ok {
			return protocol.StatusExists, nil
		}
		kind, err := models.ParseKind(get("type"))
		if err != nil {
			return protocol.StatusBadRequest, nil
		}
		newID := f.nextID
		f.nextID++
		f.add(parent, models.Entry{Name: name, Kind: kind, ID: newID})
		b, _ := f.codec.EncodeCreateInfo(models.CreateInfo{ID: newID})
		return protocol.StatusOK, b

	case protocol.MethodUnlink, protocol.MethodRmdir:
		parent := id("parent")
		i, ok := find(parent, get("name"))
		if !ok {
			return protocol.StatusNoEntryInDir, nil
		}
		e := f.dirs[parent][i]
		if method == protocol.MethodUnlink && e.Kind.IsDir() {
			return protocol.StatusNotFile, nil
		}
		if method == protocol.MethodRmdir {
			if !e.Kind.IsDir() {
				return protocol.StatusNotDir, nil
			}
			if len(f.dirs[e.ID]) > 0 {
				return protocol.StatusNotEmpty, nil
			}
			delete(f.dirs, e.ID)
		}
		f.dirs[parent] = append(f.dirs[parent][:i:i], f.dirs[parent][i+1:]...)
		return protocol.StatusOK, nil
	}
	return protocol.StatusBadRequest, nil
}

func (f *fakeRemote) add(parent uint64, e models.Entry) {
	f.dirs[parent] = append(f.dirs[parent], e)
	sort.Slice(f.dirs[parent], func(i, j int) bool { return f.dirs[parent][i].Name < f.dirs[parent][j].Name })
	if e.Kind.IsDir() {
		f.dirs[e.ID] = nil
	}
}

// seed adds entries directly, bypassing create.
func (f *fakeRemote) seed(parent uint64, entries ...models.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.add(parent, e)
	}
}
