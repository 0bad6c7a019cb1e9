package tree

import (
	"fmt"
	"sort"

	"github.com/roach88/tabletop/internal/ir"
)

// Class is a registered node variant. Behaviour lives here as data rather
// than in per-node types, so a parse can rebuild any node from its class
// name alone.
type Class struct {
	Name string

	// Leaf classes refuse children.
	Leaf bool

	// Const derives display-only fields. They are emitted with a "$" prefix
	// by ConstSerialize and ignored by Parse. May be nil.
	Const func(t *Tree, h Handle) ir.IRObject
}

// Registry maps serialized class names back to classes.
type Registry struct {
	classes map[string]*Class
}

// NewRegistry returns a registry that already knows the Root class.
func NewRegistry() *Registry {
	r := &Registry{classes: make(map[string]*Class)}
	r.classes[RootClass] = &Class{Name: RootClass}
	return r
}

// Register adds a class. Names are unique.
func (r *Registry) Register(c *Class) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("register class: empty name")
	}
	if _, dup := r.classes[c.Name]; dup {
		return fmt.Errorf("register class: duplicate class %q", c.Name)
	}
	r.classes[c.Name] = c
	return nil
}

// MustRegister is Register that panics, for static catalogues.
func (r *Registry) MustRegister(classes ...*Class) *Registry {
	for _, c := range classes {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup finds a class by name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Names returns the registered class names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.classes))
	for n := range r.classes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
