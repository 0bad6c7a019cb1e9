package tree

import (
	"errors"
	"fmt"

	"github.com/roach88/tabletop/internal/ir"
)

// Handle addresses a node in a Tree's arena. Handles are stable for the
// lifetime of the Tree; a pruned node keeps its handle but is no longer
// reachable or indexed.
type Handle int

const (
	// NoHandle marks a missing node or the parent of a detached node.
	NoHandle Handle = -1

	// RootHandle is always the root node.
	RootHandle Handle = 0
)

// Root identity. Every tree has exactly one root with this key.
const (
	RootClass = "Root"
	RootType  = "root"
	RootID    = "root"
)

// Key identifies a node by (type, id), unique among reachable nodes.
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string {
	return k.Type + "/" + k.ID
}

var (
	ErrSelfParent        = errors.New("node cannot be its own parent")
	ErrCycle             = errors.New("node cannot be moved under its own descendant")
	ErrLeaf              = errors.New("leaf node refuses children")
	ErrDuplicateKey      = errors.New("key already owned by another reachable node")
	ErrUnknownHandle     = errors.New("unknown handle")
	ErrPruneRoot         = errors.New("root cannot be pruned")
	ErrMismatch          = errors.New("serialized node does not match live node")
	ErrUnregisteredClass = errors.New("unregistered class")
	ErrMissingNode       = errors.New("serialized node not found and creation not allowed")
	ErrMalformed         = errors.New("malformed serialized node")
)

type node struct {
	class    *Class
	key      Key
	name     string
	hidden   bool
	parent   Handle
	children []Handle
	props    ir.IRObject
}

// Tree is the ownership tree: an arena of nodes with single-parent
// ownership and a lookup index of every node reachable from the root.
//
// Invariant: index[key] == h iff h is reachable from the root. Every
// mutation below keeps it; Check verifies it.
type Tree struct {
	reg   *Registry
	nodes []*node
	index map[Key]Handle
}

// New creates a tree holding only the root.
func New(reg *Registry) *Tree {
	if reg == nil {
		reg = NewRegistry()
	}
	rootClass, _ := reg.Lookup(RootClass)
	t := &Tree{
		reg:   reg,
		index: make(map[Key]Handle),
	}
	t.nodes = append(t.nodes, &node{
		class:  rootClass,
		key:    Key{Type: RootType, ID: RootID},
		parent: RootHandle,
		props:  ir.IRObject{},
	})
	t.index[t.nodes[RootHandle].key] = RootHandle
	return t
}

// Registry returns the class registry used for parsing.
func (t *Tree) Registry() *Registry {
	return t.reg
}

// Create allocates a detached node. It becomes reachable only once added
// under a reachable parent.
func (t *Tree) Create(class, typ, id, name string) (Handle, error) {
	c, ok := t.reg.Lookup(class)
	if !ok {
		return NoHandle, fmt.Errorf("create %s/%s: %w: %q", typ, id, ErrUnregisteredClass, class)
	}
	if typ == "" || id == "" {
		return NoHandle, fmt.Errorf("create: %w: empty type or id", ErrMalformed)
	}
	t.nodes = append(t.nodes, &node{
		class:  c,
		key:    Key{Type: typ, ID: id},
		name:   name,
		parent: NoHandle,
		props:  ir.IRObject{},
	})
	return Handle(len(t.nodes) - 1), nil
}

func (t *Tree) get(h Handle) (*node, error) {
	if h < 0 || int(h) >= len(t.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return t.nodes[h], nil
}

func (t *Tree) mustGet(h Handle) *node {
	n, err := t.get(h)
	if err != nil {
		panic(err)
	}
	return n
}

// Valid reports whether h addresses an allocated node.
func (t *Tree) Valid(h Handle) bool {
	return h >= 0 && int(h) < len(t.nodes)
}

// AddChild re-parents child under parent. The child and its whole subtree
// are first removed from their prior location and from the lookup, then
// inserted at the front (onTop) or the back of parent's children. The
// subtree is indexed again when parent is reachable.
func (t *Tree) AddChild(parent, child Handle, onTop bool) error {
	p, err := t.get(parent)
	if err != nil {
		return err
	}
	c, err := t.get(child)
	if err != nil {
		return err
	}
	if parent == child {
		return fmt.Errorf("add %s under itself: %w", c.key, ErrSelfParent)
	}
	if child == RootHandle {
		return fmt.Errorf("add root under %s: %w", p.key, ErrCycle)
	}
	if p.class.Leaf {
		return fmt.Errorf("add %s under %s: %w", c.key, p.key, ErrLeaf)
	}
	for a := parent; a != NoHandle && a != RootHandle; a = t.nodes[a].parent {
		if a == child {
			return fmt.Errorf("add %s under %s: %w", c.key, p.key, ErrCycle)
		}
	}

	reachable := t.Reachable(parent)
	if reachable {
		var dup error
		within := make(map[Key]bool)
		t.walk(child, func(h Handle) bool {
			k := t.nodes[h].key
			if within[k] {
				dup = fmt.Errorf("add %s under %s: %w: %s repeats in subtree", c.key, p.key, ErrDuplicateKey, k)
				return false
			}
			within[k] = true
			if owner, ok := t.index[k]; ok && owner != h && !t.isWithin(owner, child) {
				dup = fmt.Errorf("add %s under %s: %w: %s", c.key, p.key, ErrDuplicateKey, k)
				return false
			}
			return true
		})
		if dup != nil {
			return dup
		}
	}

	t.detach(child)

	if onTop {
		p.children = append([]Handle{child}, p.children...)
	} else {
		p.children = append(p.children, child)
	}
	c.parent = parent

	if reachable {
		t.walk(child, func(h Handle) bool {
			t.index[t.nodes[h].key] = h
			return true
		})
	}
	return nil
}

// isWithin reports whether h is child or one of its descendants.
func (t *Tree) isWithin(h, ancestor Handle) bool {
	for a := h; a != NoHandle; a = t.nodes[a].parent {
		if a == ancestor {
			return true
		}
		if a == RootHandle {
			return false
		}
	}
	return false
}

// detach unlinks h from its parent and drops its subtree from the lookup.
// The subtree below h stays attached to h.
func (t *Tree) detach(h Handle) {
	n := t.nodes[h]
	if n.parent != NoHandle {
		p := t.nodes[n.parent]
		for i, c := range p.children {
			if c == h {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
	}
	n.parent = NoHandle
	t.walk(h, func(d Handle) bool {
		k := t.nodes[d].key
		if t.index[k] == d {
			delete(t.index, k)
		}
		return true
	})
}

// Prune detaches h from its parent and from the lookup. A deep prune
// dissolves the whole subtree: every descendant is detached too. A shallow
// prune first re-homes h's children under the root so they stay reachable,
// then detaches h alone.
func (t *Tree) Prune(h Handle, deep bool) error {
	n, err := t.get(h)
	if err != nil {
		return err
	}
	if h == RootHandle {
		return ErrPruneRoot
	}
	if deep {
		for len(n.children) > 0 {
			if err := t.Prune(n.children[len(n.children)-1], true); err != nil {
				return err
			}
		}
		t.detach(h)
		return nil
	}

	wasReachable := t.Reachable(h)
	kids := append([]Handle(nil), n.children...)
	t.detach(h)
	for _, c := range kids {
		if wasReachable {
			if err := t.AddChild(RootHandle, c, false); err != nil {
				return fmt.Errorf("prune %s: re-home %s: %w", n.key, t.nodes[c].key, err)
			}
			continue
		}
		t.detach(c)
	}
	return nil
}

// Unparent re-parents h directly under the root.
func (t *Tree) Unparent(h Handle) error {
	return t.AddChild(RootHandle, h, false)
}

// Reachable reports whether h is connected to the root by parent links.
func (t *Tree) Reachable(h Handle) bool {
	if !t.Valid(h) {
		return false
	}
	for a := h; ; a = t.nodes[a].parent {
		if a == RootHandle {
			return true
		}
		if a == NoHandle {
			return false
		}
	}
}

// Lookup returns the reachable node owning key.
func (t *Tree) Lookup(k Key) (Handle, bool) {
	h, ok := t.index[k]
	return h, ok
}

// Get is Lookup by type and id.
func (t *Tree) Get(typ, id string) (Handle, bool) {
	return t.Lookup(Key{Type: typ, ID: id})
}

// Len returns the number of indexed (reachable) nodes, root included.
func (t *Tree) Len() int {
	return len(t.index)
}

// Walk visits h and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(h Handle, fn func(Handle) bool) {
	if !t.Valid(h) {
		return
	}
	t.walk(h, fn)
}

func (t *Tree) walk(h Handle, fn func(Handle) bool) {
	if !fn(h) {
		return
	}
	for _, c := range t.nodes[h].children {
		t.walk(c, fn)
	}
}

// FindType returns every reachable node of the given key type, in tree order.
func (t *Tree) FindType(typ string) []Handle {
	var out []Handle
	t.walk(RootHandle, func(h Handle) bool {
		if t.nodes[h].key.Type == typ {
			out = append(out, h)
		}
		return true
	})
	return out
}

// Check verifies the ownership invariant and returns the first violation.
func (t *Tree) Check() error {
	seen := make(map[Handle]bool)
	var err error
	t.walk(RootHandle, func(h Handle) bool {
		seen[h] = true
		n := t.nodes[h]
		if got, ok := t.index[n.key]; !ok || got != h {
			err = fmt.Errorf("reachable node %s (handle %d) not indexed", n.key, h)
			return false
		}
		for _, c := range n.children {
			if t.nodes[c].parent != h {
				err = fmt.Errorf("child %s of %s has parent %d", t.nodes[c].key, n.key, t.nodes[c].parent)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	for k, h := range t.index {
		if !seen[h] {
			return fmt.Errorf("indexed node %s (handle %d) not reachable", k, h)
		}
	}
	return nil
}

// Key returns the node's (type, id).
func (t *Tree) Key(h Handle) Key {
	return t.mustGet(h).key
}

// Class returns the node's class.
func (t *Tree) Class(h Handle) *Class {
	return t.mustGet(h).class
}

// Parent returns the node's parent, NoHandle when detached. The root is its
// own parent.
func (t *Tree) Parent(h Handle) Handle {
	return t.mustGet(h).parent
}

// Children returns a copy of the node's ordered children.
func (t *Tree) Children(h Handle) []Handle {
	return append([]Handle(nil), t.mustGet(h).children...)
}

// Name returns the display name.
func (t *Tree) Name(h Handle) string {
	return t.mustGet(h).name
}

// SetName sets the display name.
func (t *Tree) SetName(h Handle, name string) {
	t.mustGet(h).name = name
}

// Hidden reports the presentation flag.
func (t *Tree) Hidden(h Handle) bool {
	return t.mustGet(h).hidden
}

// SetHidden sets the presentation flag.
func (t *Tree) SetHidden(h Handle, hidden bool) {
	t.mustGet(h).hidden = hidden
}

// Prop returns a prop value. Callers must not mutate composite values in
// place; use SetProp with a copy.
func (t *Tree) Prop(h Handle, key string) (ir.IRValue, bool) {
	v, ok := t.mustGet(h).props[key]
	return v, ok
}

// SetProp writes a prop.
func (t *Tree) SetProp(h Handle, key string, v ir.IRValue) {
	t.mustGet(h).props[key] = v
}

// DeleteProp removes a prop.
func (t *Tree) DeleteProp(h Handle, key string) {
	delete(t.mustGet(h).props, key)
}

// Props returns a deep copy of the node's props.
func (t *Tree) Props(h Handle) ir.IRObject {
	return t.mustGet(h).props.Clone()
}
