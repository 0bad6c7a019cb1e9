package cost

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/mask"
	"github.com/roach88/tabletop/internal/metrics"
	"github.com/roach88/tabletop/internal/tree"
)

const (
	// DefaultMaxOptional bounds the power set at 2^16 subsets.
	DefaultMaxOptional = 16

	// DefaultMaxDepth bounds secondary-cost recursion.
	DefaultMaxDepth = 4
)

var (
	ErrTooManyModifiers = errors.New("too many optional modifiers")
	ErrUnknownKind      = errors.New("unknown modifier kind")
)

// NoModifiers is the outcome key of the empty optional subset.
const NoModifiers = "none"

// Outcome is one payable combination: the rewritten context and the
// modifiers that produced it.
type Outcome struct {
	Context *Context

	// Used lists every applied modifier id, mandatory included, sorted.
	Used []string

	// Optional lists the optional modifier ids of the subset, sorted.
	Optional []string

	// Consumed lists modifier ids consumed while applying, sorted.
	Consumed []string
}

// Key names the outcome by its optional subset, stable across replays.
func (o Outcome) Key() string {
	if len(o.Optional) == 0 {
		return NoModifiers
	}
	return strings.Join(o.Optional, "+")
}

// Resolver enumerates modifier combinations that make a cost payable.
type Resolver struct {
	Catalog     *Catalog
	Source      Source
	MaxOptional int
	MaxDepth    int
}

// NewResolver creates a resolver with default limits.
func NewResolver(cat *Catalog, src Source) *Resolver {
	return &Resolver{
		Catalog:     cat,
		Source:      src,
		MaxOptional: DefaultMaxOptional,
		MaxDepth:    DefaultMaxDepth,
	}
}

// Resolve returns every (context, modifiers) pair that leaves the cost
// payable. Optional modifiers are enumerated as a power set, never as
// permutations; within a subset modifiers apply in ID order.
//
// The modifier catalogue is snapshotted on the first resolve of a context.
// Consumption during Apply only affects the consuming combination.
func (r *Resolver) Resolve(c *Context) ([]Outcome, error) {
	if err := r.snapshot(c); err != nil {
		return nil, err
	}
	return r.resolve(c, false)
}

// Mandatory resolves with no optional modifier forced: mandatory modifiers
// only. Returns nil when that is not payable.
func (r *Resolver) Mandatory(c *Context) (*Outcome, error) {
	if err := r.snapshot(c); err != nil {
		return nil, err
	}
	outs, err := r.resolve(c, true)
	if err != nil || len(outs) == 0 {
		return nil, err
	}
	return &outs[0], nil
}

// Feasible reports whether any combination is payable.
func (r *Resolver) Feasible(c *Context) (bool, error) {
	outs, err := r.Resolve(c)
	return len(outs) > 0, err
}

func (r *Resolver) snapshot(c *Context) error {
	if c.active != nil {
		return nil
	}
	mods, err := r.Source.Modifiers(c.Tree())
	if err != nil {
		return fmt.Errorf("snapshot modifiers: %w", err)
	}
	base := make(map[string]Modifier, len(mods))
	for _, m := range mods {
		base[m.ID] = m
	}
	c.active = mask.NewMapView(c.view, base)
	return nil
}

func (r *Resolver) resolve(c *Context, emptyOnly bool) ([]Outcome, error) {
	if c.depth > r.MaxDepth {
		slog.Debug("secondary cost too deep", "origin", c.Origin, "depth", c.depth)
		return nil, nil
	}

	var mandatory, optional []Modifier
	for _, id := range c.active.Keys() {
		m, _ := c.active.Get(id)
		kind, ok := r.Catalog.Lookup(m.Kind)
		if !ok {
			return nil, fmt.Errorf("modifier %s: %w: %q", m.ID, ErrUnknownKind, m.Kind)
		}
		if !kind.CanUse(c, m) {
			continue
		}
		if m.MustUse {
			mandatory = append(mandatory, m)
		} else {
			optional = append(optional, m)
		}
	}
	if len(optional) > r.MaxOptional {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyModifiers, len(optional), r.MaxOptional)
	}

	subsets := 1 << len(optional)
	if emptyOnly {
		subsets = 1
	}
	var out []Outcome
	for bits := 0; bits < subsets; bits++ {
		chosen := slices.Clone(mandatory)
		var picked []string
		for i, m := range optional {
			if bits&(1<<i) != 0 {
				chosen = append(chosen, m)
				picked = append(picked, m.ID)
			}
		}
		slices.SortFunc(chosen, func(a, b Modifier) int { return strings.Compare(a.ID, b.ID) })
		metrics.SolverSubsets.Inc()

		clone := c.fork()
		applied, ok, err := r.apply(clone, chosen)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		valid, err := r.valid(clone)
		if err != nil {
			return nil, err
		}
		if !valid {
			continue
		}
		used := make([]string, len(applied))
		for i, m := range applied {
			used[i] = m.ID
		}
		out = append(out, Outcome{
			Context:  clone,
			Used:     used,
			Optional: picked,
			Consumed: clone.active.Deleted(),
		})
	}
	if c.depth == 0 {
		metrics.SolverOutcomes.Observe(float64(len(out)))
	}
	return out, nil
}

// apply runs the chosen modifiers in order and returns those that took
// effect. An optional modifier consumed or made inapplicable by an earlier
// one voids the combination; a mandatory one in that state is skipped,
// since it was never the player's choice.
func (r *Resolver) apply(c *Context, chosen []Modifier) ([]Modifier, bool, error) {
	applied := make([]Modifier, 0, len(chosen))
	for _, m := range chosen {
		kind, _ := r.Catalog.Lookup(m.Kind)
		if !c.Active(m.ID) || !kind.CanUse(c, m) {
			if m.MustUse {
				continue
			}
			return nil, false, nil
		}
		if err := kind.Apply(c, m); err != nil {
			if ir.IsResolutionError(err) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("apply modifier %s: %w", m.ID, err)
		}
		applied = append(applied, m)
	}
	return applied, true, nil
}

// valid checks the primary cost, then each secondary in turn against the
// holdings left after everything before it is deducted. Secondaries must
// themselves be resolvable, recursively.
func (r *Resolver) valid(c *Context) (bool, error) {
	if !c.Affordable() {
		return false, nil
	}
	if len(c.secondary) == 0 {
		return true, nil
	}
	after := c.view.Fork()
	active := c.active.Fork(after)
	deduct(after, c.Cost, c.Source, c.Target)
	for _, s := range c.secondary {
		sc := &Context{
			Cost:   s.Cost.Clone(),
			Source: s.Source,
			Target: s.Target,
			Origin: c.Origin,
			view:   after,
			active: active,
			depth:  c.depth + 1,
		}
		outs, err := r.resolve(sc, false)
		if err != nil {
			return false, err
		}
		if len(outs) == 0 {
			return false, nil
		}
		first := outs[0].Context
		first.view.Commit()
		first.active.Commit()
		deduct(after, first.Cost, first.Source, first.Target)
	}
	return true, nil
}

// Pay applies an outcome to the live tree: the outcome's speculative
// rewrites are committed, the primary cost is deducted, each secondary is
// paid through its first payable outcome, and consumed modifier nodes are
// pruned.
func (r *Resolver) Pay(t *tree.Tree, o Outcome) error {
	c := o.Context
	if c == nil {
		return fmt.Errorf("pay: outcome has no context")
	}
	c.view.CommitAll()

	live := mask.New(t)
	if !affordable(live, c.Cost, c.Source) {
		return ir.Reject(ir.CodeUnpayableCost, "cannot pay %s", c.Cost).WithDetail("origin", c.Origin)
	}
	deduct(live, c.Cost, c.Source, c.Target)
	live.Commit()

	for _, id := range o.Consumed {
		if err := r.consume(t, id); err != nil {
			return err
		}
	}

	for i, s := range c.secondary {
		sc := NewContext(t, s.Cost, s.Source, s.Target, c.Origin)
		sc.depth = c.depth + 1
		outs, err := r.Resolve(sc)
		if err != nil {
			return fmt.Errorf("pay secondary %d: %w", i, err)
		}
		if len(outs) == 0 {
			return ir.Reject(ir.CodeUnpayableCost, "cannot pay secondary cost %s", s.Cost).WithDetail("origin", c.Origin)
		}
		if err := r.Pay(t, outs[0]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) consume(t *tree.Tree, id string) error {
	mods, err := r.Source.Modifiers(t)
	if err != nil {
		return err
	}
	for _, m := range mods {
		if m.ID == id && m.Node != tree.NoHandle && m.Node != tree.RootHandle {
			if err := t.Prune(m.Node, true); err != nil {
				return fmt.Errorf("consume modifier %s: %w", id, err)
			}
			return nil
		}
	}
	return nil
}
