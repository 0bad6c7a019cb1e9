package sample

import (
	"fmt"

	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Catalog is the catalogue name setups must carry.
const Catalog = "sample"

// Node builds the serialized form of one node.
func Node(class, typ, id, name string, props ir.IRObject, children ...ir.IRObject) ir.IRObject {
	if props == nil {
		props = ir.IRObject{}
	}
	kids := make(ir.IRArray, len(children))
	for i, c := range children {
		kids[i] = c
	}
	obj := ir.IRObject{
		tree.FieldClass:    ir.IRString(class),
		tree.FieldType:     ir.IRString(typ),
		tree.FieldID:       ir.IRString(id),
		tree.FieldProps:    props,
		tree.FieldChildren: kids,
	}
	if name != "" {
		obj[tree.FieldName] = ir.IRString(name)
	}
	return obj
}

// ModifierNode builds a modifier node for the tree source.
func ModifierNode(id, kind string, mustUse bool, args ir.IRObject) ir.IRObject {
	if args == nil {
		args = ir.IRObject{}
	}
	return Node("Modifier", TypeModifier, id, "", ir.IRObject{
		cost.PropKind:    ir.IRString(kind),
		cost.PropMustUse: ir.IRBool(mustUse),
		cost.PropArgs:    args,
	})
}

func card(id string, gain cost.Pool) ir.IRObject {
	return Node("Card", TypeCard, id, "", ir.IRObject{PropGain: gain.IR()})
}

// NewWorld lays out the standard table for players: a starting hand of
// resources and a trade modifier each, three sites (the quarry levies one
// supply on builders) and a deck of six cards.
func NewWorld(players []string) ir.IRObject {
	var children []ir.IRObject
	for _, p := range players {
		children = append(children, Node("Player", TypePlayer, p, p,
			ir.IRObject{
				cost.PropResources: cost.Pool{"wood": 1, "stone": 1}.IR(),
				cost.PropSupply:    ir.IRInt(2),
				PropScore:          ir.IRInt(0),
			},
			ModifierNode(p+"-trade", "convert", false, ir.O("from", "stone", "to", "wood")),
			ModifierNode(p+"-charter", "discount", false, ir.O("res", "stone", "once", true)),
		))
	}
	children = append(children,
		Node("Site", TypeSite, "forest", "Forest", ir.IRObject{PropYield: cost.Pool{"wood": 2}.IR()}),
		Node("Site", TypeSite, "quarry", "Quarry", ir.IRObject{PropYield: cost.Pool{"stone": 1}.IR()},
			ModifierNode("quarry-levy", "levy", true, ir.O("n", 1)),
		),
		Node("Site", TypeSite, "hill", "Hill", ir.IRObject{
			PropYield: cost.Pool{"gold": 1}.IR(),
			PropCost: ir.IRObject{
				"placed": cost.Pool{"wood": 1, "gold": 1}.IR(),
				"burnt":  ir.IRObject{},
				"supply": ir.IRInt(1),
			},
		}),
	)
	var cards []ir.IRObject
	for i, gain := range []cost.Pool{
		{"wood": 1}, {"wood": 2}, {"stone": 1}, {"stone": 2}, {"gold": 1}, {"wood": 1, "stone": 1},
	} {
		cards = append(cards, card(fmt.Sprintf("c%d", i+1), gain))
	}
	children = append(children, Node("Deck", TypeDeck, MainDeck, "Deck", nil, cards...))

	return Node(tree.RootClass, tree.RootType, tree.RootID, "", ir.IRObject{PropTurn: ir.IRInt(0)}, children...)
}

// Setup returns a ready-to-play setup on the standard table.
func Setup(seed int64, players ...string) ir.Setup {
	return ir.Setup{
		Catalog: Catalog,
		Players: players,
		Seed:    seed,
		World:   NewWorld(players),
	}
}
