package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabletop/internal/action"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/testutil"
	"github.com/roach88/tabletop/internal/tree"
)

var colors = []action.Choice{{Key: "red", Label: "Red"}, {Key: "green", Label: "Green"}, {Key: "blue", Label: "Blue"}}

func passTurn(x *action.Exec) {
	t := x.World.Tree
	v, _ := t.Prop(tree.RootHandle, ActivePlayerProp)
	active, _ := v.(ir.IRString)
	players := x.World.Players
	for i, p := range players {
		if p == string(active) {
			t.SetProp(tree.RootHandle, ActivePlayerProp, ir.IRString(players[(i+1)%len(players)]))
			return
		}
	}
}

func rootInt(g *Game, key string) int64 {
	v, _ := g.Tree().Prop(tree.RootHandle, key)
	n, _ := v.(ir.IRInt)
	return int64(n)
}

func testRules() *Rules {
	actions := action.NewRegistry().MustRegister(
		&action.Def{
			Kind:     "pick",
			TopLevel: true,
			Selects: func(x *action.Exec, a *action.Action) ([]action.Select, error) {
				return []action.Select{{Name: "color", Prompt: "Pick a color", Choices: colors, Min: 1, Max: 1}}, nil
			},
			Execute: func(x *action.Exec, a *action.Action) (ir.IRValue, error) {
				x.World.Tree.SetProp(tree.RootHandle, "color", ir.IRString(a.Param("color")))
				return nil, nil
			},
		},
		&action.Def{
			Kind:     "step",
			TopLevel: true,
			Execute: func(x *action.Exec, a *action.Action) (ir.IRValue, error) {
				x.DoNext(x.NewEffect("add", ir.O("amount", 1), nil))
				passTurn(x)
				return nil, nil
			},
		},
		&action.Def{
			Kind:   "add",
			Effect: true,
			Execute: func(x *action.Exec, a *action.Action) (ir.IRValue, error) {
				t := x.World.Tree
				total := t.Props(tree.RootHandle).Int("total", 0) + a.Args.Int("amount", 0)
				t.SetProp(tree.RootHandle, "total", ir.IRInt(total))
				return ir.IRInt(total), nil
			},
		},
		&action.Def{
			Kind:     "roll",
			TopLevel: true,
			OneWay:   true,
			Execute: func(x *action.Exec, a *action.Action) (ir.IRValue, error) {
				t := x.World.Tree
				roll := int64(x.World.Rand.IntN(6) + 1)
				t.SetProp(tree.RootHandle, "rolls", ir.IRInt(t.Props(tree.RootHandle).Int("rolls", 0)*10+roll))
				passTurn(x)
				return ir.IRInt(roll), nil
			},
		},
		&action.Def{
			Kind:      "closed",
			TopLevel:  true,
			Available: func(x *action.Exec, player string) (bool, error) { return false, nil },
			Execute:   func(x *action.Exec, a *action.Action) (ir.IRValue, error) { return nil, nil },
		},
	)
	return &Rules{Name: "test", Classes: tree.NewRegistry(), Actions: actions}
}

func testSetup(players ...string) ir.Setup {
	return ir.Setup{
		Catalog: "test",
		Players: players,
		Seed:    42,
		World: ir.IRObject{
			tree.FieldClass:    ir.IRString(tree.RootClass),
			tree.FieldType:     ir.IRString(tree.RootType),
			tree.FieldID:       ir.IRString(tree.RootID),
			tree.FieldProps:    ir.IRObject{"total": ir.IRInt(0)},
			tree.FieldChildren: ir.IRArray{},
		},
	}
}

func newTestGame(t *testing.T, opts ...Option) *Game {
	t.Helper()
	g, err := NewGame(context.Background(), "g1", testSetup("alice", "bob"), testRules(), opts...)
	require.NoError(t, err)
	return g
}

func TestNewGame_RejectsBadSetup(t *testing.T) {
	_, err := NewGame(context.Background(), "g", ir.Setup{Catalog: "test"}, testRules())
	assert.Error(t, err)

	setup := testSetup("alice")
	setup.Catalog = "other"
	_, err = NewGame(context.Background(), "g", setup, testRules())
	assert.ErrorContains(t, err, "catalogue")
}

func TestNewGame_FirstPlayerActive(t *testing.T) {
	g := newTestGame(t)
	assert.Equal(t, "alice", g.ActivePlayer())

	view, err := g.View("alice")
	require.NoError(t, err)
	assert.True(t, view.Done)
	assert.Equal(t, []string{"pick", "roll", "step"}, view.Available)

	view, err = g.View("bob")
	require.NoError(t, err)
	assert.Empty(t, view.Available)
}

func TestStartAction_SuspendsAndContinues(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	view, err := g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)
	assert.False(t, view.Done)
	assert.Equal(t, "pick", view.Action)
	assert.Equal(t, "alice", view.Player)
	require.Len(t, view.Selects, 1)
	assert.Equal(t, "color", view.Selects[0].Name)
	assert.Equal(t, int64(1), view.Seq)

	view, err = g.ContinueAction(ctx, "alice", ir.Choices{"color": {"green"}})
	require.NoError(t, err)
	assert.True(t, view.Done)

	v, _ := g.Tree().Prop(tree.RootHandle, "color")
	assert.Equal(t, ir.IRString("green"), v)

	hist := g.History()
	require.Len(t, hist, 1)
	require.Len(t, hist[0].Events, 2)
	assert.Equal(t, ir.EventStart, hist[0].Events[0].Kind)
	assert.Equal(t, ir.EventContinue, hist[0].Events[1].Kind)
}

func TestStartAction_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		player string
		kind   string
		code   ir.ErrorCode
	}{
		{"not seated", "carol", "step", ir.CodeWrongPlayer},
		{"not active", "bob", "step", ir.CodeWrongPlayer},
		{"unknown", "alice", "fly", ir.CodeUnknownAction},
		{"effect", "alice", "add", ir.CodeUnknownAction},
		{"unavailable", "alice", "closed", ir.CodeActionUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t)
			before, err := g.Hash()
			require.NoError(t, err)

			_, err = g.StartAction(ctx, tt.player, tt.kind)
			require.Error(t, err)
			assert.Equal(t, tt.code, ir.ResolutionCode(err))

			after, err := g.Hash()
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Empty(t, g.History())
		})
	}
}

func TestStartAction_WhileSuspendedReturnsView(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	_, err := g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)

	view, err := g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	assert.Equal(t, "pick", view.Action)
	require.Len(t, g.History(), 1)
	assert.Len(t, g.History()[0].Events, 1)
}

func TestContinueAction_InvalidChoiceIsAtomic(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	before, err := g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)
	hash, err := g.Hash()
	require.NoError(t, err)

	_, err = g.ContinueAction(ctx, "alice", ir.Choices{"color": {"purple"}})
	require.Error(t, err)
	assert.True(t, ir.IsResolutionError(err))
	assert.Equal(t, ir.CodeInvalidSelection, ir.ResolutionCode(err))

	again, err := g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)
	assert.Equal(t, before.Action, again.Action)
	assert.Equal(t, before.Selects, again.Selects)
	assert.Equal(t, before.Seq, again.Seq)

	after, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, after)
	require.Len(t, g.History(), 1)
	assert.Len(t, g.History()[0].Events, 1)
}

func TestContinueAction_WrongPlayer(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	_, err := g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)

	_, err = g.ContinueAction(ctx, "bob", ir.Choices{"color": {"red"}})
	assert.Equal(t, ir.CodeWrongPlayer, ir.ResolutionCode(err))

	_, err = g.ContinueAction(ctx, "alice", ir.Choices{})
	assert.Equal(t, ir.CodeMissingSelection, ir.ResolutionCode(err))
}

func TestStep_RecordsAppliedEffects(t *testing.T) {
	g := newTestGame(t)

	view, err := g.StartAction(context.Background(), "alice", "step")
	require.NoError(t, err)
	assert.True(t, view.Done)
	assert.Equal(t, "bob", view.ActivePlayer)
	require.Len(t, view.Applied, 1)
	assert.Equal(t, "add", view.Applied[0].Kind)
	assert.Equal(t, ir.IRInt(1), view.Applied[0].Result)
	assert.Equal(t, int64(1), rootInt(g, "total"))
}

func TestCancelAction_ImmediateUnwind(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	genesis, err := g.Hash()
	require.NoError(t, err)

	_, err = g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)

	view, err := g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, view.Done)
	assert.Nil(t, view.Consent)
	assert.Empty(t, g.History())

	hash, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, genesis, hash)
}

func TestCancelAction_KeepsEarlierEventsOfNode(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	_, err := g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)
	suspended, err := g.Hash()
	require.NoError(t, err)
	_, err = g.ContinueAction(ctx, "alice", ir.Choices{"color": {"red"}})
	require.NoError(t, err)

	view, err := g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pick", view.Action)

	hash, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, suspended, hash)
	require.Len(t, g.History(), 1)
	assert.Len(t, g.History()[0].Events, 1)
}

func TestCancelAction_Rejections(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	_, err := g.CancelAction(ctx, "alice")
	assert.Equal(t, ir.CodeIllegalRollback, ir.ResolutionCode(err), "nothing to undo")

	_, err = g.CancelAction(ctx, "carol")
	assert.Equal(t, ir.CodeWrongPlayer, ir.ResolutionCode(err))

	_, err = g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	_, err = g.CancelAction(ctx, "alice")
	assert.Equal(t, ir.CodeIllegalRollback, ir.ResolutionCode(err), "alice no longer holds the decision")
}

func TestConsentRollback_TwoPlayers(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	genesis, err := g.Hash()
	require.NoError(t, err)

	_, err = g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "bob", "roll")
	require.NoError(t, err)
	require.Len(t, g.History(), 2)
	assert.True(t, g.History()[1].Events[0].OneWay)

	view, err := g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, view.Consent)
	assert.Equal(t, "alice", view.Consent.Requester)
	assert.Equal(t, int64(1), view.Consent.TargetSeq)
	assert.Equal(t, map[string]bool{"alice": true, "bob": false}, view.Consent.Votes)
	assert.Len(t, g.History(), 2, "nothing undone before bob agrees")

	_, err = g.StartAction(ctx, "alice", "step")
	assert.Equal(t, ir.CodeConsentPending, ir.ResolutionCode(err))

	view, err = g.ConsentToRollback(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, view.Consent)
	assert.Equal(t, "alice", view.ActivePlayer)
	assert.Empty(t, g.History())
	assert.Equal(t, int64(0), rootInt(g, "total"))

	hash, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, genesis, hash)
}

func TestConsentRollback_Declined(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	_, err := g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "bob", "roll")
	require.NoError(t, err)
	before, err := g.Hash()
	require.NoError(t, err)

	_, err = g.ConsentToRollback(ctx, "bob")
	assert.Equal(t, ir.CodeNoConsentRound, ir.ResolutionCode(err))

	_, err = g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	view, err := g.DeclineRollback(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, view.Consent)

	after, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, g.History(), 2)

	_, err = g.StartAction(ctx, "alice", "step")
	assert.NoError(t, err)
}

func TestConsentRollback_SoloSettlesAtOnce(t *testing.T) {
	ctx := context.Background()
	g, err := NewGame(ctx, "solo", testSetup("alice"), testRules())
	require.NoError(t, err)

	_, err = g.StartAction(ctx, "alice", "roll")
	require.NoError(t, err)

	view, err := g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, view.Consent)
	assert.Empty(t, g.History())
}

// play runs a fixed sequence that exercises every history path.
func play(t *testing.T, g *Game) {
	t.Helper()
	ctx := context.Background()
	_, err := g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "bob", "roll")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "alice", "roll")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "bob", "pick")
	require.NoError(t, err)
	_, err = g.ContinueAction(ctx, "bob", ir.Choices{"color": {"blue"}})
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "bob", "step")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "alice", "pick")
	require.NoError(t, err)
}

func TestGame_PersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	g := newTestGame(t, WithPersister(s))
	play(t, g)

	want, err := g.Hash()
	require.NoError(t, err)

	log, err := s.LoadGame(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, log.Nodes, len(g.History()))
	for i, n := range g.History() {
		assert.Equal(t, ir.MustSnapshotHash(n.Snapshot), ir.MustSnapshotHash(log.Nodes[i].Snapshot))
		assert.Len(t, log.Nodes[i].Events, len(n.Events))
	}

	loaded, err := Load(log, testRules(), WithPersister(s))
	require.NoError(t, err)
	got, err := loaded.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// the loaded game keeps playing where the original stopped
	_, err = loaded.ContinueAction(ctx, "alice", ir.Choices{"color": {"red"}})
	require.NoError(t, err)
	_, err = g.ContinueAction(ctx, "alice", ir.Choices{"color": {"red"}})
	require.NoError(t, err)
	a, _ := g.Hash()
	b, _ := loaded.Hash()
	assert.Equal(t, a, b)
}

func TestGame_RollbackIsPersisted(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	g := newTestGame(t, WithPersister(s))

	_, err := g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	_, err = g.StartAction(ctx, "bob", "roll")
	require.NoError(t, err)
	_, err = g.CancelAction(ctx, "alice")
	require.NoError(t, err)
	_, err = g.ConsentToRollback(ctx, "bob")
	require.NoError(t, err)

	log, err := s.LoadGame(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, log.Nodes)
}

func TestGame_FailedCommitLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewRecordingPersister()
	g := newTestGame(t, WithPersister(p))
	assert.Equal(t, []string{"g1"}, p.Games())

	before, err := g.Hash()
	require.NoError(t, err)

	boom := errors.New("disk full")
	p.FailCommits(boom)
	_, err = g.StartAction(ctx, "alice", "step")
	require.ErrorIs(t, err, boom)
	assert.False(t, ir.IsResolutionError(err))

	after, err := g.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, g.History())
	assert.Empty(t, p.Changes())

	p.FailCommits(nil)
	view, err := g.StartAction(ctx, "alice", "step")
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Seq)
	require.Len(t, p.Changes(), 1)
	assert.Equal(t, 0, p.Changes()[0].FromNode)
}

func TestReplay_Deterministic(t *testing.T) {
	g := newTestGame(t)
	play(t, g)
	want, err := g.Hash()
	require.NoError(t, err)

	for range 3 {
		r, err := Replay(g.Log(), testRules())
		require.NoError(t, err)
		got, err := r.Hash()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, rootInt(g, "rolls"), rootInt(r, "rolls"))
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	g := newTestGame(t)
	play(t, g)

	log := g.Log()
	log.Setup.Seed = 7

	_, err := Replay(log, testRules())
	require.Error(t, err)
	assert.True(t, IsReplayError(err))
	assert.True(t, IsFatal(err))
}

func TestReplay_RejectsMalformedHistory(t *testing.T) {
	g := newTestGame(t)
	play(t, g)

	log := g.Log()
	log.Nodes[1].Events[0].Kind = ir.EventContinue

	_, err := Replay(log, testRules())
	require.Error(t, err)
	assert.True(t, IsCorruptLog(err))
}

func TestWithMaxSteps_FailsRunaway(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	require.NoError(t, rules.Actions.Register(&action.Def{
		Kind:     "spin",
		TopLevel: true,
		Execute: func(x *action.Exec, a *action.Action) (ir.IRValue, error) {
			for range 5 {
				x.DoNext(x.NewEffect("add", ir.O("amount", 1), nil))
			}
			return nil, nil
		},
	}))
	g, err := NewGame(ctx, "g", testSetup("alice"), rules, WithMaxSteps(3))
	require.NoError(t, err)

	_, err = g.StartAction(ctx, "alice", "spin")
	require.Error(t, err)
	assert.True(t, action.IsStepsExceededError(err))
	assert.True(t, IsFatal(err))
	assert.Equal(t, int64(0), rootInt(g, "total"))
	assert.Empty(t, g.History())
}
