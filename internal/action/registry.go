package action

import (
	"fmt"
	"sort"

	"github.com/roach88/tabletop/internal/ir"
)

// Def is a registered action or effect variant.
type Def struct {
	Kind  string
	Label string

	// Effect marks an auto-resolving variant; effects never expose selects.
	Effect bool

	// OneWay marks every execution as not safely reversible.
	OneWay bool

	// TopLevel marks actions a player may start by name.
	TopLevel bool

	// Available hides top-level actions that can never complete right now.
	// nil means always available.
	Available func(x *Exec, player string) (bool, error)

	// Selects returns the action's prompts given the params chosen so far.
	// It must be deterministic.
	Selects func(x *Exec, a *Action) ([]Select, error)

	// Execute performs the mutation once every select is resolved. Its
	// result is handed to the effect's callback hook, if any.
	Execute func(x *Exec, a *Action) (ir.IRValue, error)
}

// Hook receives an effect's result.
type Hook func(x *Exec, result ir.IRValue, args ir.IRObject) error

// Registry maps kinds to defs and hook names to hooks.
type Registry struct {
	defs  map[string]*Def
	hooks map[string]Hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def), hooks: make(map[string]Hook)}
}

// Register adds a def.
func (r *Registry) Register(d *Def) error {
	switch {
	case d == nil || d.Kind == "":
		return fmt.Errorf("register action: empty kind")
	case d.Effect && d.Selects != nil:
		return fmt.Errorf("register action %q: effects cannot expose selects", d.Kind)
	case d.Effect && d.TopLevel:
		return fmt.Errorf("register action %q: effects cannot be started by players", d.Kind)
	}
	if _, dup := r.defs[d.Kind]; dup {
		return fmt.Errorf("register action: duplicate kind %q", d.Kind)
	}
	r.defs[d.Kind] = d
	return nil
}

// MustRegister is Register that panics, for static catalogues.
func (r *Registry) MustRegister(defs ...*Def) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterHook adds a named hook.
func (r *Registry) RegisterHook(name string, h Hook) error {
	if name == "" || h == nil {
		return fmt.Errorf("register hook: name and function are required")
	}
	if _, dup := r.hooks[name]; dup {
		return fmt.Errorf("register hook: duplicate %q", name)
	}
	r.hooks[name] = h
	return nil
}

// Def finds a def by kind.
func (r *Registry) Def(kind string) (*Def, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// Hook finds a hook by name.
func (r *Registry) Hook(name string) (Hook, bool) {
	h, ok := r.hooks[name]
	return h, ok
}

// TopLevel returns the kinds players may start, sorted.
func (r *Registry) TopLevel() []string {
	var out []string
	for k, d := range r.defs {
		if d.TopLevel {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
