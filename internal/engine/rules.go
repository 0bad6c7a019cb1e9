package engine

import (
	"github.com/roach88/tabletop/internal/action"
	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/tree"
)

// Rules is a rule catalogue: the node classes, actions, hooks and modifier
// kinds a game is played with. A setup names its catalogue; replay requires
// the same one.
type Rules struct {
	Name      string
	Classes   *tree.Registry
	Actions   *action.Registry
	Modifiers *cost.Catalog

	// ModifierType is the key type of nodes that carry active modifiers.
	// Empty means the catalogue has no modifiers.
	ModifierType string
}

func (r *Rules) source() cost.Source {
	if r.ModifierType == "" {
		return cost.StaticSource(nil)
	}
	return cost.TreeSource{Type: r.ModifierType}
}

func (r *Rules) catalog() *cost.Catalog {
	if r.Modifiers == nil {
		return cost.NewCatalog()
	}
	return r.Modifiers
}
