package sample

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

func newGame(t *testing.T, setup ir.Setup) *engine.Game {
	t.Helper()
	g, err := engine.NewGame(context.Background(), "sample", setup, Rules())
	require.NoError(t, err)
	return g
}

func node(t *testing.T, g *engine.Game, typ, id string) tree.Handle {
	t.Helper()
	h, ok := g.Tree().Get(typ, id)
	require.True(t, ok, "%s/%s", typ, id)
	return h
}

func holdings(t *testing.T, g *engine.Game, typ, id string) cost.Pool {
	t.Helper()
	return cost.PoolFromIR(g.Tree().Props(node(t, g, typ, id)).Object(cost.PropResources))
}

func TestNewWorld_Parses(t *testing.T) {
	g := newGame(t, Setup(1, "alice", "bob"))
	require.NoError(t, g.Tree().Check())

	assert.Len(t, g.Tree().FindType(TypeSite), 3)
	assert.Len(t, g.Tree().FindType(TypeCard), 6)
	assert.Len(t, g.Tree().FindType(TypeModifier), 5)

	full := g.Tree().Serialize(node(t, g, TypeSite, "hill"), false)
	assert.Equal(t, ir.IRString("place 1 gold, 1 wood; 1 supply"), full["$cost"])
	assert.Equal(t, ir.IRBool(false), full["$built"])
}

func TestView_OffersFeasibleActions(t *testing.T) {
	g := newGame(t, Setup(1, "alice", "bob"))
	view, err := g.View("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{KindBuild, KindDraw, KindEndTurn, KindGather}, view.Available)
}

func TestGather(t *testing.T) {
	ctx := context.Background()
	g := newGame(t, Setup(1, "alice", "bob"))

	view, err := g.StartAction(ctx, "alice", KindGather)
	require.NoError(t, err)
	require.Len(t, view.Selects, 1)
	assert.Len(t, view.Selects[0].Choices, 3)

	view, err = g.ContinueAction(ctx, "alice", ir.Choices{"site": {"forest"}})
	require.NoError(t, err)
	assert.True(t, view.Done)
	require.Len(t, view.Applied, 1)
	assert.Equal(t, KindGainResource, view.Applied[0].Kind)
	assert.Equal(t, ir.IRInt(3), view.Applied[0].Result)
	assert.Equal(t, cost.Pool{"wood": 3, "stone": 1}, holdings(t, g, TypePlayer, "alice"))
}

func TestBuild_PaysThroughModifiers(t *testing.T) {
	ctx := context.Background()
	g := newGame(t, Setup(1, "alice", "bob"))

	view, err := g.StartAction(ctx, "alice", KindBuild)
	require.NoError(t, err)
	require.Len(t, view.Selects, 1)
	assert.Equal(t, "site", view.Selects[0].Name)
	var sites []string
	for _, c := range view.Selects[0].Choices {
		sites = append(sites, c.Key)
	}
	assert.Equal(t, []string{"forest", "quarry"}, sites, "hill needs gold")

	// only one payment works, so it is filled in
	view, err = g.ContinueAction(ctx, "alice", ir.Choices{"site": {"forest"}})
	require.NoError(t, err)
	assert.True(t, view.Done)

	assert.Empty(t, holdings(t, g, TypePlayer, "alice"))
	assert.Equal(t, cost.Pool{"wood": 2}, holdings(t, g, TypeSite, "forest"))
	_, ok := g.Tree().Get(TypeModifier, "alice-charter")
	assert.False(t, ok, "charter is used up")
	_, ok = g.Tree().Get(TypeModifier, "alice-trade")
	assert.True(t, ok)

	b := node(t, g, TypeBuilding, "forest")
	assert.Equal(t, node(t, g, TypeSite, "forest"), g.Tree().Parent(b))
	assert.Equal(t, int64(BuildPoints), g.Tree().Props(node(t, g, TypePlayer, "alice")).Int(PropScore, 0))
	require.NoError(t, g.Tree().Check())
}

func TestBuild_LevyChargesSupply(t *testing.T) {
	ctx := context.Background()
	g := newGame(t, Setup(1, "alice", "bob"))

	_, err := g.StartAction(ctx, "alice", KindBuild)
	require.NoError(t, err)
	_, err = g.ContinueAction(ctx, "alice", ir.Choices{"site": {"quarry"}})
	require.NoError(t, err)

	alice := g.Tree().Props(node(t, g, TypePlayer, "alice"))
	assert.Equal(t, int64(1), alice.Int(cost.PropSupply, 0))
	_, ok := g.Tree().Get(TypeModifier, "quarry-levy")
	assert.True(t, ok, "levy stays on the site")
}

func TestBuild_RedirectMovesPlacedResources(t *testing.T) {
	ctx := context.Background()
	world := Node(tree.RootClass, tree.RootType, tree.RootID, "", nil,
		Node("Player", TypePlayer, "alice", "", ir.IRObject{
			cost.PropResources: cost.Pool{"wood": 2, "stone": 1}.IR(),
		}, ModifierNode("alice-route", "redirect", true, ir.O("type", TypePlayer, "id", "bob"))),
		Node("Player", TypePlayer, "bob", "", ir.IRObject{cost.PropResources: cost.Pool{"wood": 1}.IR()}),
		Node("Site", TypeSite, "forest", "Forest", nil),
	)
	g := newGame(t, ir.Setup{Catalog: Catalog, Players: []string{"alice", "bob"}, Seed: 1, World: world})

	// one site and one payment: nothing to ask
	view, err := g.StartAction(ctx, "alice", KindBuild)
	require.NoError(t, err)
	assert.True(t, view.Done)

	assert.Equal(t, cost.Pool{"wood": 3}, holdings(t, g, TypePlayer, "bob"))
	assert.Empty(t, holdings(t, g, TypeSite, "forest"))
}

func TestBuild_CancelRestoresConsumedModifier(t *testing.T) {
	ctx := context.Background()
	g := newGame(t, Setup(1, "alice", "bob"))

	_, err := g.StartAction(ctx, "alice", KindBuild)
	require.NoError(t, err)
	before, err := g.Hash()
	require.NoError(t, err)
	_, err = g.ContinueAction(ctx, "alice", ir.Choices{"site": {"forest"}})
	require.NoError(t, err)

	view, err := g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, KindBuild, view.Action)

	_, ok := g.Tree().Get(TypeModifier, "alice-charter")
	assert.True(t, ok)
	after, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDraw_IsOneWayAndSeeded(t *testing.T) {
	ctx := context.Background()
	drawn := func(seed int64) string {
		g := newGame(t, Setup(seed, "alice", "bob"))
		view, err := g.StartAction(ctx, "alice", KindDraw)
		require.NoError(t, err)
		require.True(t, view.Done)

		hist := g.History()
		require.Len(t, hist, 1)
		assert.True(t, hist[0].Events[0].OneWay)

		alice := node(t, g, TypePlayer, "alice")
		var cards []string
		for _, c := range g.Tree().Children(alice) {
			if g.Tree().Key(c).Type == TypeCard {
				cards = append(cards, g.Tree().Key(c).ID)
				assert.True(t, g.Tree().Hidden(c))
			}
		}
		require.Len(t, cards, 1)
		assert.Len(t, g.Tree().Children(node(t, g, TypeDeck, MainDeck)), 5)
		return cards[0]
	}

	assert.Equal(t, drawn(99), drawn(99))
}

func TestEndTurn(t *testing.T) {
	ctx := context.Background()
	g := newGame(t, Setup(1, "alice", "bob"))

	view, err := g.StartAction(ctx, "alice", KindEndTurn)
	require.NoError(t, err)
	assert.Equal(t, "bob", view.ActivePlayer)
	assert.Equal(t, int64(1), g.Tree().Props(tree.RootHandle).Int(PropTurn, 0))

	_, err = g.StartAction(ctx, "alice", KindGather)
	assert.Equal(t, ir.CodeWrongPlayer, ir.ResolutionCode(err))
}

func TestReplay_FullGame(t *testing.T) {
	ctx := context.Background()
	g := newGame(t, Setup(5, "alice", "bob"))

	steps := []func() error{
		func() error { _, err := g.StartAction(ctx, "alice", KindDraw); return err },
		func() error { _, err := g.StartAction(ctx, "alice", KindGather); return err },
		func() error {
			_, err := g.ContinueAction(ctx, "alice", ir.Choices{"site": {"forest"}})
			return err
		},
		func() error { _, err := g.StartAction(ctx, "alice", KindEndTurn); return err },
		func() error { _, err := g.StartAction(ctx, "bob", KindDraw); return err },
		func() error { _, err := g.StartAction(ctx, "bob", KindBuild); return err },
		func() error {
			_, err := g.ContinueAction(ctx, "bob", ir.Choices{"site": {"quarry"}})
			return err
		},
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
	}

	want, err := g.Hash()
	require.NoError(t, err)
	r, err := engine.Replay(g.Log(), Rules())
	require.NoError(t, err)
	got, err := r.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
