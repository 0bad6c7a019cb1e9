package sample

import (
	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Node key types.
const (
	TypePlayer   = "player"
	TypeSite     = "site"
	TypeBuilding = "building"
	TypeDeck     = "deck"
	TypeCard     = "card"
	TypeModifier = "modifier"
)

// Node props.
const (
	PropScore = "score"
	PropYield = "yield"
	PropCost  = "cost"
	PropGain  = "gain"
	PropOwner = "owner"
	PropTurn  = "turn"
)

// MainDeck is the id of the shared deck.
const MainDeck = "main"

// Classes returns the node classes of the catalogue.
func Classes() *tree.Registry {
	return tree.NewRegistry().MustRegister(
		&tree.Class{Name: "Player", Const: playerConst},
		&tree.Class{Name: "Site", Const: siteConst},
		&tree.Class{Name: "Building", Leaf: true},
		&tree.Class{Name: "Deck", Const: deckConst},
		&tree.Class{Name: "Card", Leaf: true},
		&tree.Class{Name: "Modifier", Leaf: true},
	)
}

func playerConst(t *tree.Tree, h tree.Handle) ir.IRObject {
	props := t.Props(h)
	return ir.IRObject{
		"holding": ir.IRString(cost.PoolFromIR(props.Object(cost.PropResources)).String()),
		"cards":   ir.IRInt(len(childrenOfType(t, h, TypeCard))),
	}
}

func siteConst(t *tree.Tree, h tree.Handle) ir.IRObject {
	return ir.IRObject{
		"built": ir.IRBool(len(childrenOfType(t, h, TypeBuilding)) > 0),
		"cost":  ir.IRString(siteCost(t.Props(h)).String()),
	}
}

func deckConst(t *tree.Tree, h tree.Handle) ir.IRObject {
	return ir.IRObject{"size": ir.IRInt(len(t.Children(h)))}
}

func childrenOfType(t *tree.Tree, h tree.Handle, typ string) []tree.Handle {
	var out []tree.Handle
	for _, c := range t.Children(h) {
		if t.Key(c).Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// defaultBuildCost applies to sites without a cost prop.
var defaultBuildCost = cost.Cost{
	Placed: cost.Pool{"wood": 2},
	Burnt:  cost.Pool{"stone": 1},
}

// siteCost reads {placed, burnt, supply} from a site's cost prop.
func siteCost(props ir.IRObject) cost.Cost {
	c, ok := props[PropCost].(ir.IRObject)
	if !ok {
		return defaultBuildCost.Clone()
	}
	return cost.Cost{
		Placed: cost.PoolFromIR(c.Object("placed")),
		Burnt:  cost.PoolFromIR(c.Object("burnt")),
		Supply: int(c.Int("supply", 0)),
	}
}
