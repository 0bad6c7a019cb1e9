package tree

import (
	"fmt"
	"strings"

	"github.com/roach88/tabletop/internal/ir"
)

// Field names of a serialized node. Const fields carry ConstPrefix and are
// never authoritative.
const (
	FieldClass    = "class"
	FieldType     = "type"
	FieldID       = "id"
	FieldName     = "name"
	FieldProps    = "props"
	FieldHidden   = "hidden"
	FieldChildren = "children"

	ConstPrefix = "$"
)

// LiteSerialize returns just enough to re-identify the node.
func (t *Tree) LiteSerialize(h Handle) ir.IRObject {
	n := t.mustGet(h)
	return ir.IRObject{
		FieldClass: ir.IRString(n.class.Name),
		FieldType:  ir.IRString(n.key.Type),
		FieldID:    ir.IRString(n.key.ID),
	}
}

// ConstSerialize returns the derived fields of a node, each key prefixed
// with "$". "$path" is always present; the class adds the rest.
func (t *Tree) ConstSerialize(h Handle) ir.IRObject {
	n := t.mustGet(h)
	out := ir.IRObject{ConstPrefix + "path": ir.IRString(t.Path(h))}
	if n.class.Const != nil {
		for k, v := range n.class.Const(t, h) {
			out[ConstPrefix+k] = v
		}
	}
	return out
}

// Path renders the key chain from the root, e.g. "player/alice/card/c1".
// Detached nodes render relative to their topmost ancestor.
func (t *Tree) Path(h Handle) string {
	var parts []string
	for a := h; a != NoHandle && a != RootHandle; a = t.nodes[a].parent {
		parts = append(parts, t.nodes[a].key.String())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Serialize emits the node and its subtree. lite leaves out const fields;
// the lite form is what snapshots store and what Parse consumes.
func (t *Tree) Serialize(h Handle, lite bool) ir.IRObject {
	n := t.mustGet(h)
	out := t.LiteSerialize(h)
	if n.name != "" {
		out[FieldName] = ir.IRString(n.name)
	}
	out[FieldProps] = n.props.Clone()
	if n.hidden {
		out[FieldHidden] = ir.IRBool(true)
	}
	children := make(ir.IRArray, len(n.children))
	for i, c := range n.children {
		children[i] = t.Serialize(c, lite)
	}
	out[FieldChildren] = children
	if !lite {
		for k, v := range t.ConstSerialize(h) {
			out[k] = v
		}
	}
	return out
}

// Parse reconciles the live subtree at h against a serialized one.
//
// Each serialized child is found by key, or created when allowCreate is
// set, then moved into position and reconciled recursively. Once the whole
// subtree is walked, every live descendant of h not present in obj is
// pruned. Identity mismatches, unregistered classes and missing nodes are
// fatal: they mean the log and the live model disagree.
func (t *Tree) Parse(h Handle, obj ir.IRObject, allowCreate bool) error {
	if _, err := t.get(h); err != nil {
		return err
	}
	if err := uniqueKeys(obj, map[Key]bool{}); err != nil {
		return err
	}
	seen := map[Handle]bool{h: true}
	if err := t.parseNode(h, obj, allowCreate, seen); err != nil {
		return err
	}
	return t.pruneUnseen(h, seen)
}

// uniqueKeys rejects a serialized subtree that names one key twice. It runs
// before any mutation, so a bad blob leaves the tree untouched.
func uniqueKeys(obj ir.IRObject, keys map[Key]bool) error {
	_, key, err := identity(obj)
	if err != nil {
		return err
	}
	if keys[key] {
		return fmt.Errorf("%w: %s appears twice in serialized subtree", ErrDuplicateKey, key)
	}
	keys[key] = true
	rawChildren, _ := obj[FieldChildren].(ir.IRArray)
	for _, raw := range rawChildren {
		// malformed children are reported by parseNode with their position
		if cobj, ok := raw.(ir.IRObject); ok {
			if err := uniqueKeys(cobj, keys); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) pruneUnseen(h Handle, seen map[Handle]bool) error {
	for _, c := range t.Children(h) {
		if !seen[c] {
			if err := t.Prune(c, true); err != nil {
				return err
			}
			continue
		}
		if err := t.pruneUnseen(c, seen); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) parseNode(h Handle, obj ir.IRObject, allowCreate bool, seen map[Handle]bool) error {
	n := t.nodes[h]
	class, key, err := identity(obj)
	if err != nil {
		return err
	}
	if class != n.class.Name || key != n.key {
		return fmt.Errorf("%w: live %s %s, serialized %s %s", ErrMismatch, n.class.Name, n.key, class, key)
	}

	n.name = obj.String(FieldName)
	n.hidden = obj.Bool(FieldHidden)
	if props, ok := obj[FieldProps]; ok {
		p, ok := props.(ir.IRObject)
		if !ok {
			return fmt.Errorf("%s: %w: props is %T", key, ErrMalformed, props)
		}
		n.props = p.Clone()
	} else {
		n.props = ir.IRObject{}
	}

	rawChildren, _ := obj[FieldChildren].(ir.IRArray)
	order := make([]Handle, 0, len(rawChildren))
	for i, raw := range rawChildren {
		cobj, ok := raw.(ir.IRObject)
		if !ok {
			return fmt.Errorf("%s: %w: children[%d] is %T", key, ErrMalformed, i, raw)
		}
		c, err := t.findOrCreate(cobj, allowCreate)
		if err != nil {
			return fmt.Errorf("%s: children[%d]: %w", key, i, err)
		}
		if seen[c] {
			return fmt.Errorf("%s: %w: %s appears twice", key, ErrMalformed, t.nodes[c].key)
		}
		seen[c] = true
		if t.nodes[c].parent != h {
			if err := t.AddChild(h, c, false); err != nil {
				return fmt.Errorf("%s: children[%d]: %w", key, i, err)
			}
		}
		if err := t.parseNode(c, cobj, allowCreate, seen); err != nil {
			return err
		}
		order = append(order, c)
	}

	// Serialized children first, in serialized order; leftovers follow and
	// are pruned by the top-level call.
	inOrder := make(map[Handle]bool, len(order))
	for _, c := range order {
		inOrder[c] = true
	}
	for _, c := range n.children {
		if !inOrder[c] {
			order = append(order, c)
		}
	}
	n.children = order
	return nil
}

func (t *Tree) findOrCreate(obj ir.IRObject, allowCreate bool) (Handle, error) {
	class, key, err := identity(obj)
	if err != nil {
		return NoHandle, err
	}
	if h, ok := t.index[key]; ok {
		return h, nil
	}
	if !allowCreate {
		return NoHandle, fmt.Errorf("%w: %s", ErrMissingNode, key)
	}
	if _, ok := t.reg.Lookup(class); !ok {
		return NoHandle, fmt.Errorf("%w: %q for %s", ErrUnregisteredClass, class, key)
	}
	return t.Create(class, key.Type, key.ID, obj.String(FieldName))
}

func identity(obj ir.IRObject) (string, Key, error) {
	class := obj.String(FieldClass)
	key := Key{Type: obj.String(FieldType), ID: obj.String(FieldID)}
	if class == "" || key.Type == "" || key.ID == "" {
		return "", Key{}, fmt.Errorf("%w: missing class, type or id", ErrMalformed)
	}
	return class, key, nil
}
