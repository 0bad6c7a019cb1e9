package sample

import (
	"fmt"
	"strings"

	"github.com/roach88/tabletop/internal/action"
	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Action and effect kinds.
const (
	KindGather        = "gather"
	KindBuild         = "build"
	KindDraw          = "draw"
	KindEndTurn       = "end_turn"
	KindGainResource  = "gain_resource"
	KindPlaceBuilding = "place_building"

	HookScore = "score"
)

// BuildPoints is what a finished building scores.
const BuildPoints = 3

// Actions returns the action registry of the catalogue.
func Actions() *action.Registry {
	reg := action.NewRegistry().MustRegister(
		&action.Def{
			Kind:     KindGather,
			Label:    "Gather from a site",
			TopLevel: true,
			Available: func(x *action.Exec, _ string) (bool, error) {
				return len(x.World.Tree.FindType(TypeSite)) > 0, nil
			},
			Selects: gatherSelects,
			Execute: gather,
		},
		&action.Def{
			Kind:      KindBuild,
			Label:     "Build on a free site",
			TopLevel:  true,
			Available: canBuild,
			Selects:   buildSelects,
			Execute:   build,
		},
		&action.Def{
			Kind:     KindDraw,
			Label:    "Draw a card",
			TopLevel: true,
			OneWay:   true,
			Available: func(x *action.Exec, _ string) (bool, error) {
				deck, err := x.Node(TypeDeck, MainDeck)
				if err != nil {
					return false, nil
				}
				return len(x.World.Tree.Children(deck)) > 0, nil
			},
			Execute: draw,
		},
		&action.Def{
			Kind:     KindEndTurn,
			Label:    "End turn",
			TopLevel: true,
			Execute:  endTurn,
		},
		&action.Def{
			Kind:    KindGainResource,
			Effect:  true,
			Execute: gainResource,
		},
		&action.Def{
			Kind:    KindPlaceBuilding,
			Effect:  true,
			Execute: placeBuilding,
		},
	)
	if err := reg.RegisterHook(HookScore, score); err != nil {
		panic(err)
	}
	return reg
}

// Rules returns the complete sample catalogue.
func Rules() *engine.Rules {
	return &engine.Rules{
		Name:         Catalog,
		Classes:      Classes(),
		Actions:      Actions(),
		Modifiers:    Modifiers(),
		ModifierType: TypeModifier,
	}
}

func siteChoices(t *tree.Tree, keep func(tree.Handle) bool) []action.Choice {
	var out []action.Choice
	for _, h := range t.FindType(TypeSite) {
		if keep != nil && !keep(h) {
			continue
		}
		label := t.Name(h)
		if label == "" {
			label = t.Key(h).ID
		}
		out = append(out, action.Choice{Key: t.Key(h).ID, Label: label})
	}
	return out
}

func gatherSelects(x *action.Exec, a *action.Action) ([]action.Select, error) {
	return []action.Select{{
		Name:    "site",
		Prompt:  "Gather from which site?",
		Choices: siteChoices(x.World.Tree, nil),
		Min:     1,
		Max:     1,
	}}, nil
}

func gather(x *action.Exec, a *action.Action) (ir.IRValue, error) {
	site, err := x.Node(TypeSite, a.Param("site"))
	if err != nil {
		return nil, err
	}
	yield := x.World.Tree.Props(site).Object(PropYield)
	for _, res := range yield.SortedKeys() {
		x.DoNext(x.NewEffect(KindGainResource, ir.O(
			"player", a.Player,
			"res", res,
			"n", yield.Int(res, 0),
		), nil))
	}
	return nil, nil
}

func free(t *tree.Tree) func(tree.Handle) bool {
	return func(h tree.Handle) bool { return len(childrenOfType(t, h, TypeBuilding)) == 0 }
}

// buildOutcomes resolves every way player can pay for building on site.
func buildOutcomes(x *action.Exec, player, site string) ([]cost.Outcome, error) {
	payer, err := x.Node(TypePlayer, player)
	if err != nil {
		return nil, err
	}
	target, err := x.Node(TypeSite, site)
	if err != nil {
		return nil, err
	}
	t := x.World.Tree
	ctx := cost.NewContext(t, siteCost(t.Props(target)), payer, target, KindBuild)
	return x.World.Costs.Resolve(ctx)
}

func buildableSites(x *action.Exec, player string) ([]action.Choice, error) {
	var out []action.Choice
	for _, c := range siteChoices(x.World.Tree, free(x.World.Tree)) {
		outs, err := buildOutcomes(x, player, c.Key)
		if err != nil {
			return nil, err
		}
		if len(outs) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func canBuild(x *action.Exec, player string) (bool, error) {
	sites, err := buildableSites(x, player)
	return len(sites) > 0, err
}

func outcomeLabel(o cost.Outcome) string {
	label := o.Context.Cost.String()
	if len(o.Used) > 0 {
		label += " using " + strings.Join(o.Used, ", ")
	}
	if n := len(o.Context.Secondary()); n > 0 {
		label += fmt.Sprintf(" (+%d extra)", n)
	}
	return label
}

func buildSelects(x *action.Exec, a *action.Action) ([]action.Select, error) {
	sites, err := buildableSites(x, a.Player)
	if err != nil {
		return nil, err
	}
	sels := []action.Select{{Name: "site", Prompt: "Build where?", Choices: sites, Min: 1, Max: 1}}
	if !a.Resolved("site") {
		return sels, nil
	}

	outs, err := buildOutcomes(x, a.Player, a.Param("site"))
	if err != nil {
		return nil, err
	}
	payments := make([]action.Choice, len(outs))
	for i, o := range outs {
		payments[i] = action.Choice{Key: o.Key(), Label: outcomeLabel(o)}
	}
	return append(sels, action.Select{
		Name:    "payment",
		Prompt:  "Pay how?",
		Choices: payments,
		Min:     1,
		Max:     1,
		Default: []string{cost.NoModifiers},
	}), nil
}

func build(x *action.Exec, a *action.Action) (ir.IRValue, error) {
	outs, err := buildOutcomes(x, a.Player, a.Param("site"))
	if err != nil {
		return nil, err
	}
	want := a.Param("payment")
	for _, o := range outs {
		if o.Key() != want {
			continue
		}
		if err := x.World.Costs.Pay(x.World.Tree, o); err != nil {
			return nil, err
		}
		x.DoNext(x.NewEffect(KindPlaceBuilding,
			ir.O("player", a.Player, "site", a.Param("site")),
			&action.Callback{Hook: HookScore, Args: ir.O("player", a.Player, "points", BuildPoints)},
		))
		return ir.IRString(want), nil
	}
	return nil, ir.Reject(ir.CodeUnpayableCost, "payment %q is no longer possible", want).
		WithPlayer(a.Player).WithAction(KindBuild)
}

func draw(x *action.Exec, a *action.Action) (ir.IRValue, error) {
	t := x.World.Tree
	deck, err := x.Node(TypeDeck, MainDeck)
	if err != nil {
		return nil, err
	}
	cards := t.Children(deck)
	if len(cards) == 0 {
		return nil, ir.Reject(ir.CodeActionUnavailable, "the deck is empty").WithPlayer(a.Player).WithAction(KindDraw)
	}
	player, err := x.Node(TypePlayer, a.Player)
	if err != nil {
		return nil, err
	}

	card := cards[x.World.Rand.IntN(len(cards))]
	if err := t.AddChild(player, card, false); err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}
	t.SetHidden(card, true)

	gain := t.Props(card).Object(PropGain)
	for _, res := range gain.SortedKeys() {
		x.DoNext(x.NewEffect(KindGainResource, ir.O(
			"player", a.Player,
			"res", res,
			"n", gain.Int(res, 0),
		), nil))
	}
	return ir.IRString(t.Key(card).ID), nil
}

func endTurn(x *action.Exec, a *action.Action) (ir.IRValue, error) {
	t := x.World.Tree
	players := x.World.Players
	next := players[0]
	for i, p := range players {
		if p == a.Player {
			next = players[(i+1)%len(players)]
			break
		}
	}
	t.SetProp(tree.RootHandle, engine.ActivePlayerProp, ir.IRString(next))
	turn := t.Props(tree.RootHandle).Int(PropTurn, 0) + 1
	t.SetProp(tree.RootHandle, PropTurn, ir.IRInt(turn))
	return ir.IRString(next), nil
}

func gainResource(x *action.Exec, a *action.Action) (ir.IRValue, error) {
	player, err := x.Node(TypePlayer, a.Args.String("player"))
	if err != nil {
		return nil, err
	}
	t := x.World.Tree
	have := cost.PoolFromIR(t.Props(player).Object(cost.PropResources))
	res := cost.Resource(a.Args.String("res"))
	have.Add(res, int(a.Args.Int("n", 0)))
	t.SetProp(player, cost.PropResources, have.IR())
	return ir.IRInt(have[res]), nil
}

func placeBuilding(x *action.Exec, a *action.Action) (ir.IRValue, error) {
	site, err := x.Node(TypeSite, a.Args.String("site"))
	if err != nil {
		return nil, err
	}
	t := x.World.Tree
	id := a.Args.String("site")
	b, err := t.Create("Building", TypeBuilding, id, a.Args.String("player")+"'s building")
	if err != nil {
		return nil, err
	}
	if err := t.AddChild(site, b, false); err != nil {
		return nil, fmt.Errorf("place building: %w", err)
	}
	t.SetProp(b, PropOwner, ir.IRString(a.Args.String("player")))
	return ir.IRString(id), nil
}

func score(x *action.Exec, _ ir.IRValue, args ir.IRObject) error {
	player, err := x.Node(TypePlayer, args.String("player"))
	if err != nil {
		return err
	}
	t := x.World.Tree
	t.SetProp(player, PropScore, ir.IRInt(t.Props(player).Int(PropScore, 0)+args.Int("points", 0)))
	return nil
}
