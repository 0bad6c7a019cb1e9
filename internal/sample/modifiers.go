package sample

import (
	"fmt"

	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Modifier nodes hang under the node they serve: a player's own modifiers
// under the player, site modifiers under the site.
func attachedTo(c *cost.Context, m cost.Modifier) tree.Handle {
	if m.Node == tree.NoHandle || m.Node == tree.RootHandle {
		return tree.NoHandle
	}
	return c.Tree().Parent(m.Node)
}

// convert trades one unit of args.from for one unit of args.to while
// paying.
var convertKind = &cost.Kind{
	Name:  "convert",
	Shape: cost.ShapeSource,
	CanUse: func(c *cost.Context, m cost.Modifier) bool {
		return attachedTo(c, m) == c.Source && c.Cost.Need()[cost.Resource(m.Args.String("to"))] > 0
	},
	Apply: func(c *cost.Context, m cost.Modifier) error {
		from, to := cost.Resource(m.Args.String("from")), cost.Resource(m.Args.String("to"))
		have := c.Holdings(c.Source)
		if have[from] < 1 {
			return ir.Reject(ir.CodeUnpayableCost, "no %s to convert", from)
		}
		have.Add(from, -1)
		have.Add(to, 1)
		c.SetHoldings(c.Source, have)
		return nil
	},
}

// discount takes one unit of args.res off the cost, burnt first. With
// args.once set the modifier is used up when the payment goes through.
var discountKind = &cost.Kind{
	Name:  "discount",
	Shape: cost.ShapeCost,
	CanUse: func(c *cost.Context, m cost.Modifier) bool {
		return attachedTo(c, m) == c.Source && c.Cost.Need()[cost.Resource(m.Args.String("res"))] > 0
	},
	Apply: func(c *cost.Context, m cost.Modifier) error {
		res := cost.Resource(m.Args.String("res"))
		switch {
		case c.Cost.Burnt[res] > 0:
			c.Cost.Burnt.Add(res, -1)
		case c.Cost.Placed[res] > 0:
			c.Cost.Placed.Add(res, -1)
		}
		if m.Args.Bool("once") {
			c.Consume(m.ID)
		}
		return nil
	},
}

// levy charges args.n supply to whoever builds on the site it sits on.
// It only applies to primary costs, so a levy never levies itself.
var levyKind = &cost.Kind{
	Name:  "levy",
	Shape: cost.ShapeSecondary,
	CanUse: func(c *cost.Context, m cost.Modifier) bool {
		return c.Depth() == 0 && c.Target != tree.NoHandle && attachedTo(c, m) == c.Target
	},
	Apply: func(c *cost.Context, m cost.Modifier) error {
		c.AddSecondary(cost.Cost{Supply: int(m.Args.Int("n", 1))}, c.Source, tree.NoHandle)
		return nil
	},
}

// redirect sends placed resources to args.type/args.id instead of the
// build site.
var redirectKind = &cost.Kind{
	Name:  "redirect",
	Shape: cost.ShapeTarget,
	CanUse: func(c *cost.Context, m cost.Modifier) bool {
		return attachedTo(c, m) == c.Source && c.Target != tree.NoHandle && len(c.Cost.Placed) > 0
	},
	Apply: func(c *cost.Context, m cost.Modifier) error {
		h, ok := c.Tree().Get(m.Args.String("type"), m.Args.String("id"))
		if !ok {
			return fmt.Errorf("redirect %s: no node %s/%s", m.ID, m.Args.String("type"), m.Args.String("id"))
		}
		c.Target = h
		return nil
	},
}

// Modifiers returns the modifier kinds of the catalogue.
func Modifiers() *cost.Catalog {
	return cost.NewCatalog().MustRegister(convertKind, discountKind, levyKind, redirectKind)
}
