package netfs

import (
	"fmt"
	"sync"

	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/pkg/models"
)

// Node is the local handle of a remote object. Its identity is the remote id.
type Node struct {
	ID   uint64
	Kind models.Kind
	Mode uint32
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind.IsDir()
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.Kind, n.ID)
}

// Identity maps remote ids to node handles.
//
// A second materialization of a known id with the same kind returns the
// existing handle. With a different kind the remote answer wins: the stale
// handle is replaced. The root handle is fixed for the lifetime of the table.
type Identity struct {
	mu       sync.Mutex
	nodes    map[uint64]*Node
	root     *Node
	maxNodes int
}

// NewIdentity creates a table holding only the root directory. maxNodes caps
// the number of handles, root included; zero means unbounded.
func NewIdentity(rootID uint64, maxNodes int) *Identity {
	root := &Node{ID: rootID, Kind: models.KindDirectory, Mode: models.KindDirectory.Mode()}
	t := &Identity{
		nodes:    map[uint64]*Node{rootID: root},
		root:     root,
		maxNodes: maxNodes,
	}
	metrics.AddNodesMaterialized(1)
	return t
}

// Root returns the root handle.
func (t *Identity) Root() *Node {
	return t.root
}

// Materialize returns the handle for (kind, id), creating it on first reference.
func (t *Identity) Materialize(kind models.Kind, id uint64) (*Node, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidArgument, uint8(kind))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id == t.root.ID {
		if !kind.IsDir() {
			return nil, fmt.Errorf("%w: root id %d reported as %s", ErrIdentityConflict, id, kind)
		}
		return t.root, nil
	}

	old, ok := t.nodes[id]
	if ok && old.Kind == kind {
		return old, nil
	} else if !ok && t.maxNodes > 0 && len(t.nodes) >= t.maxNodes {
		return nil, fmt.Errorf("%w: %d handles", ErrResourceExhausted, len(t.nodes))
	}

	n := &Node{ID: id, Kind: kind, Mode: kind.Mode()}
	t.nodes[id] = n
	if !ok {
		metrics.AddNodesMaterialized(1)
	}
	return n, nil
}

// Get returns the handle for id if one exists.
func (t *Identity) Get(id uint64) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Forget drops the handle for id. The root is never dropped.
func (t *Identity) Forget(id uint64) {
	if id == t.root.ID {
		return
	}
	t.mu.Lock()
	if _, ok := t.nodes[id]; ok {
		delete(t.nodes, id)
		metrics.AddNodesMaterialized(-1)
	}
	t.mu.Unlock()
}

// Release drops n if it is still the handle bound to its id. Host bindings
// call it when the kernel forgets a node, so a handle replaced after a kind
// change does not evict its successor.
func (t *Identity) Release(n *Node) {
	if n == nil || n == t.root {
		return
	}
	t.mu.Lock()
	if t.nodes[n.ID] == n {
		delete(t.nodes, n.ID)
		metrics.AddNodesMaterialized(-1)
	}
	t.mu.Unlock()
}

// Close drops every handle, root included, and withdraws them from the
// process-wide gauge. The table must not be used afterwards.
func (t *Identity) Close() {
	t.mu.Lock()
	metrics.AddNodesMaterialized(-len(t.nodes))
	t.nodes = map[uint64]*Node{}
	t.mu.Unlock()
}

// Len returns the number of handles, root included.
func (t *Identity) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}
