package cost

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/mask"
	"github.com/roach88/tabletop/internal/tree"
)

// Node props that hold a payer's assets.
const (
	PropResources = "resources"
	PropSupply    = "supply"
)

// Resource names a fungible resource type.
type Resource string

// Pool is a multiset of resources. Zero counts are dropped.
type Pool map[Resource]int

// Clone copies the pool.
func (p Pool) Clone() Pool {
	out := make(Pool, len(p))
	for r, n := range p {
		out[r] = n
	}
	return out
}

// Add adjusts the count of r by n, dropping the entry at zero.
func (p Pool) Add(r Resource, n int) {
	p[r] += n
	if p[r] == 0 {
		delete(p, r)
	}
}

// Total returns the number of units in the pool.
func (p Pool) Total() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}

// Resources returns the resource types present, sorted.
func (p Pool) Resources() []Resource {
	out := make([]Resource, 0, len(p))
	for r := range p {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// IR converts the pool to an IRObject.
func (p Pool) IR() ir.IRObject {
	obj := make(ir.IRObject, len(p))
	for r, n := range p {
		obj[string(r)] = ir.IRInt(n)
	}
	return obj
}

func (p Pool) String() string {
	parts := make([]string, 0, len(p))
	for _, r := range p.Resources() {
		parts = append(parts, fmt.Sprintf("%d %s", p[r], r))
	}
	return strings.Join(parts, ", ")
}

// PoolFromIR reads a pool from an IRObject of integers. Other values are
// ignored.
func PoolFromIR(obj ir.IRObject) Pool {
	out := make(Pool, len(obj))
	for k, v := range obj {
		if n, ok := v.(ir.IRInt); ok && n != 0 {
			out[Resource(k)] = int(n)
		}
	}
	return out
}

// Cost is what an action asks a payer to give up. Placed resources move to
// the target; burnt resources leave the game; Supply is a flat count taken
// from the payer's supply prop.
type Cost struct {
	Placed Pool
	Burnt  Pool
	Supply int
}

// Clone copies the cost.
func (c Cost) Clone() Cost {
	return Cost{Placed: c.Placed.Clone(), Burnt: c.Burnt.Clone(), Supply: c.Supply}
}

// Need returns placed and burnt resources combined.
func (c Cost) Need() Pool {
	need := c.Placed.Clone()
	for r, n := range c.Burnt {
		need.Add(r, n)
	}
	return need
}

// Zero reports whether nothing is asked.
func (c Cost) Zero() bool {
	return c.Need().Total() == 0 && c.Supply == 0
}

func (c Cost) String() string {
	var parts []string
	if len(c.Placed) > 0 {
		parts = append(parts, "place "+c.Placed.String())
	}
	if len(c.Burnt) > 0 {
		parts = append(parts, "burn "+c.Burnt.String())
	}
	if c.Supply > 0 {
		parts = append(parts, fmt.Sprintf("%d supply", c.Supply))
	}
	if len(parts) == 0 {
		return "free"
	}
	return strings.Join(parts, "; ")
}

// Secondary is an extra cost a modifier attaches to a context, paid from
// its own source.
type Secondary struct {
	Cost   Cost
	Source tree.Handle
	Target tree.Handle
}

// Context pairs a cost with the payer (Source), the receiver (Target) and
// the id of the action that asked for it. Modifiers rewrite it; every read
// of holdings goes through the context's mask view so rewrites stay
// speculative until the chosen outcome is paid.
type Context struct {
	Cost   Cost
	Source tree.Handle
	Target tree.Handle
	Origin string

	secondary []Secondary
	view      *mask.Manager
	active    *mask.MapView[string, Modifier]
	depth     int
}

// NewContext creates a context over the live tree. Target may be
// tree.NoHandle when nothing is placed.
func NewContext(t *tree.Tree, c Cost, source, target tree.Handle, origin string) *Context {
	return &Context{
		Cost:   c.Clone(),
		Source: source,
		Target: target,
		Origin: origin,
		view:   mask.New(t),
	}
}

// View returns the context's mask manager.
func (c *Context) View() *mask.Manager {
	return c.view
}

// Tree returns the live tree.
func (c *Context) Tree() *tree.Tree {
	return c.view.Tree()
}

// Proxy returns the masked view of h.
func (c *Context) Proxy(h tree.Handle) *mask.Proxy {
	return c.view.Get(h)
}

// Holdings returns h's resources as seen through the mask.
func (c *Context) Holdings(h tree.Handle) Pool {
	v, _ := c.Proxy(h).Prop(PropResources)
	obj, _ := v.(ir.IRObject)
	return PoolFromIR(obj)
}

// SetHoldings writes h's resources into the mask overlay.
func (c *Context) SetHoldings(h tree.Handle, p Pool) {
	c.Proxy(h).SetProp(PropResources, p.IR())
}

// Supply returns h's supply as seen through the mask.
func (c *Context) Supply(h tree.Handle) int {
	return int(c.Proxy(h).Int(PropSupply, 0))
}

// AddSecondary attaches a secondary cost.
func (c *Context) AddSecondary(cost Cost, source, target tree.Handle) {
	c.secondary = append(c.secondary, Secondary{Cost: cost.Clone(), Source: source, Target: target})
}

// Secondary returns the attached secondary costs.
func (c *Context) Secondary() []Secondary {
	return c.secondary
}

// Depth is 0 for a primary cost and grows by one per secondary level.
func (c *Context) Depth() int {
	return c.depth
}

// Active reports whether modifier id is still in this context's catalogue
// snapshot.
func (c *Context) Active(id string) bool {
	return c.active != nil && c.active.Has(id)
}

// Consume removes a modifier from this context's catalogue snapshot. The
// removal is private to the context; the modifier node is pruned only when
// an outcome that consumed it is paid.
func (c *Context) Consume(id string) {
	if c.active != nil {
		c.active.Delete(id)
	}
}

// Affordable checks the primary cost against the masked holdings.
func (c *Context) Affordable() bool {
	return affordable(c.view, c.Cost, c.Source)
}

func (c *Context) fork() *Context {
	view := c.view.Fork()
	out := &Context{
		Cost:      c.Cost.Clone(),
		Source:    c.Source,
		Target:    c.Target,
		Origin:    c.Origin,
		secondary: slices.Clone(c.secondary),
		view:      view,
		depth:     c.depth,
	}
	if c.active != nil {
		out.active = c.active.Fork(view)
	}
	return out
}

func affordable(m *mask.Manager, c Cost, source tree.Handle) bool {
	if c.Zero() {
		return true
	}
	if source == tree.NoHandle {
		return false
	}
	p := m.Get(source)
	v, _ := p.Prop(PropResources)
	obj, _ := v.(ir.IRObject)
	have := PoolFromIR(obj)
	for r, n := range c.Need() {
		if have[r] < n {
			return false
		}
	}
	return int(p.Int(PropSupply, 0)) >= c.Supply
}

// deduct moves the cost in the given view: need leaves the source, placed
// lands on the target.
func deduct(m *mask.Manager, c Cost, source, target tree.Handle) {
	if source != tree.NoHandle {
		src := m.Get(source)
		v, _ := src.Prop(PropResources)
		obj, _ := v.(ir.IRObject)
		have := PoolFromIR(obj)
		for r, n := range c.Need() {
			have.Add(r, -n)
		}
		src.SetProp(PropResources, have.IR())
		if c.Supply != 0 {
			src.SetProp(PropSupply, ir.IRInt(src.Int(PropSupply, 0)-int64(c.Supply)))
		}
	}
	if target != tree.NoHandle && len(c.Placed) > 0 {
		dst := m.Get(target)
		v, _ := dst.Prop(PropResources)
		obj, _ := v.(ir.IRObject)
		got := PoolFromIR(obj)
		for r, n := range c.Placed {
			got.Add(r, n)
		}
		dst.SetProp(PropResources, got.IR())
	}
}
