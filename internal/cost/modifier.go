package cost

import (
	"fmt"
	"sort"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Shape says which part of a context a modifier rewrites. It is
// descriptive; the Apply function does the work.
type Shape string

const (
	ShapeCost      Shape = "cost"
	ShapeSource    Shape = "source"
	ShapeTarget    Shape = "target"
	ShapeSecondary Shape = "secondary"
)

// Modifier is one active rule effect that can alter a cost. It is plain
// data; behaviour comes from the Kind registered under Kind.
type Modifier struct {
	ID      string
	Kind    string
	MustUse bool
	Node    tree.Handle
	Args    ir.IRObject
}

// Kind is a registered modifier variant carrying its predicate and its
// rewrite as data.
type Kind struct {
	Name  string
	Shape Shape

	// CanUse decides applicability to a context. Required.
	CanUse func(c *Context, m Modifier) bool

	// Apply rewrites the context. A ResolutionError means the combination
	// is infeasible; any other error is fatal.
	Apply func(c *Context, m Modifier) error
}

// Catalog maps kind names to kinds.
type Catalog struct {
	kinds map[string]*Kind
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[string]*Kind)}
}

// Register adds a kind. Names are unique.
func (c *Catalog) Register(k *Kind) error {
	if k == nil || k.Name == "" || k.CanUse == nil || k.Apply == nil {
		return fmt.Errorf("register modifier kind: name, CanUse and Apply are required")
	}
	if _, dup := c.kinds[k.Name]; dup {
		return fmt.Errorf("register modifier kind: duplicate %q", k.Name)
	}
	c.kinds[k.Name] = k
	return nil
}

// MustRegister is Register that panics, for static catalogues.
func (c *Catalog) MustRegister(kinds ...*Kind) *Catalog {
	for _, k := range kinds {
		if err := c.Register(k); err != nil {
			panic(err)
		}
	}
	return c
}

// Lookup finds a kind by name.
func (c *Catalog) Lookup(name string) (*Kind, bool) {
	k, ok := c.kinds[name]
	return k, ok
}

// Source enumerates the modifiers currently active in the world.
type Source interface {
	Modifiers(t *tree.Tree) ([]Modifier, error)
}

// Node props read by TreeSource.
const (
	PropKind    = "kind"
	PropMustUse = "must_use"
	PropArgs    = "args"
)

// TreeSource reads modifiers from reachable nodes of one key type. The node
// id is the modifier id; props kind, must_use and args fill the rest.
type TreeSource struct {
	Type string
}

// Modifiers implements Source.
func (s TreeSource) Modifiers(t *tree.Tree) ([]Modifier, error) {
	var out []Modifier
	for _, h := range t.FindType(s.Type) {
		props := t.Props(h)
		kind := props.String(PropKind)
		if kind == "" {
			return nil, fmt.Errorf("modifier %s: missing %q prop", t.Key(h), PropKind)
		}
		out = append(out, Modifier{
			ID:      t.Key(h).ID,
			Kind:    kind,
			MustUse: props.Bool(PropMustUse),
			Node:    h,
			Args:    props.Object(PropArgs),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StaticSource serves a fixed list, for tests and tooling.
type StaticSource []Modifier

// Modifiers implements Source.
func (s StaticSource) Modifiers(*tree.Tree) ([]Modifier, error) {
	return []Modifier(s), nil
}
