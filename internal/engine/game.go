package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/roach88/tabletop/internal/action"
	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/store"
	"github.com/roach88/tabletop/internal/tree"
)

// ActivePlayerProp is the root prop naming the player whose turn it is.
const ActivePlayerProp = "active_player"

// rngStream is the fixed PCG stream; the setup seed picks the state.
const rngStream = 0x7461626c65746f70

// Persister receives every history change. *store.Store implements it.
type Persister interface {
	CreateGame(ctx context.Context, id string, setup ir.Setup) error
	Commit(ctx context.Context, c store.Change) error
}

// Option configures a Game.
type Option func(*options)

type options struct {
	persister Persister
	maxSteps  int
}

// WithPersister stores history through p. Without it a game lives in
// memory only.
func WithPersister(p Persister) Option {
	return func(o *options) { o.persister = p }
}

// WithMaxSteps bounds the actions a single request may execute.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// Game is one running game: the world tree, the action stack, the seeded
// generator and the history that produced them.
//
// A Game is not safe for concurrent use; the Engine serializes requests.
type Game struct {
	id    string
	setup ir.Setup
	rules *Rules
	opts  options

	tree  *tree.Tree
	pcg   *rand.PCG
	world *action.World
	stack *action.Stack
	clock *Clock

	nodes   []ir.HistoryNode
	consent *consentRound
}

// NewGame builds a game from its setup and records it with the persister.
func NewGame(ctx context.Context, id string, setup ir.Setup, rules *Rules, opts ...Option) (*Game, error) {
	g, err := newGame(id, setup, rules, opts...)
	if err != nil {
		return nil, err
	}
	if g.opts.persister != nil {
		if err := g.opts.persister.CreateGame(ctx, id, setup); err != nil {
			return nil, fmt.Errorf("create game %s: %w", id, err)
		}
	}
	slog.Info("game created", "game", id, "catalog", setup.Catalog, "players", len(setup.Players))
	return g, nil
}

// newGame builds the genesis state without persisting anything.
func newGame(id string, setup ir.Setup, rules *Rules, opts ...Option) (*Game, error) {
	if errs := setup.Validate(); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid setup: %w", errors.Join(joined...))
	}
	if setup.Catalog != rules.Name {
		return nil, fmt.Errorf("setup wants catalogue %q, rules are %q", setup.Catalog, rules.Name)
	}

	o := options{maxSteps: action.DefaultMaxSteps}
	for _, opt := range opts {
		opt(&o)
	}

	t := tree.New(rules.Classes)
	if err := t.Parse(tree.RootHandle, setup.World, true); err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}
	if _, ok := t.Prop(tree.RootHandle, ActivePlayerProp); !ok {
		t.SetProp(tree.RootHandle, ActivePlayerProp, ir.IRString(setup.Players[0]))
	}

	pcg := rand.NewPCG(uint64(setup.Seed), rngStream)
	stack := action.NewStack()
	stack.MaxSteps = o.maxSteps

	return &Game{
		id:    id,
		setup: setup,
		rules: rules,
		opts:  o,
		tree:  t,
		pcg:   pcg,
		world: &action.World{
			Tree:    t,
			Rand:    rand.New(pcg),
			Costs:   cost.NewResolver(rules.catalog(), rules.source()),
			Players: slices.Clone(setup.Players),
		},
		stack: stack,
		clock: NewClock(),
	}, nil
}

// ID returns the game id.
func (g *Game) ID() string { return g.id }

// Setup returns the immutable setup blob.
func (g *Game) Setup() ir.Setup { return g.setup }

// Tree exposes the live world, for tests and tooling.
func (g *Game) Tree() *tree.Tree { return g.tree }

// History returns a copy of the history nodes.
func (g *Game) History() []ir.HistoryNode {
	out := make([]ir.HistoryNode, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = ir.HistoryNode{Index: n.Index, Snapshot: n.Snapshot, Events: slices.Clone(n.Events)}
	}
	return out
}

// Log returns the game as a storable log.
func (g *Game) Log() store.GameLog {
	return store.GameLog{GameID: g.id, Setup: g.setup, Nodes: g.History()}
}

// ActivePlayer returns whose turn it is.
func (g *Game) ActivePlayer() string {
	v, _ := g.tree.Prop(tree.RootHandle, ActivePlayerProp)
	s, _ := v.(ir.IRString)
	return string(s)
}

// decisionHolder is the player who must act next: the owner of the
// suspended action, otherwise the active player.
func (g *Game) decisionHolder() string {
	if top := g.stack.Top(); top != nil && top.Player != "" {
		return top.Player
	}
	return g.ActivePlayer()
}

// Snapshot captures the complete resumable state.
func (g *Game) Snapshot() (ir.Snapshot, error) {
	state, err := g.pcg.MarshalBinary()
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("snapshot rng: %w", err)
	}
	return ir.Snapshot{
		World: g.tree.Serialize(tree.RootHandle, true),
		Stack: g.stack.IR(),
		RNG:   hex.EncodeToString(state),
		Seq:   g.clock.Current(),
	}, nil
}

// Hash is the content hash of the current snapshot.
func (g *Game) Hash() (string, error) {
	snap, err := g.Snapshot()
	if err != nil {
		return "", err
	}
	return ir.SnapshotHash(snap)
}

func (g *Game) restore(s ir.Snapshot) error {
	if err := g.tree.Parse(tree.RootHandle, s.World, true); err != nil {
		return newRestoreError(g.id, err)
	}
	stack, err := action.StackFromIR(s.Stack, g.opts.maxSteps)
	if err != nil {
		return newRestoreError(g.id, err)
	}
	state, err := hex.DecodeString(s.RNG)
	if err != nil {
		return newRestoreError(g.id, fmt.Errorf("rng state: %w", err))
	}
	if err := g.pcg.UnmarshalBinary(state); err != nil {
		return newRestoreError(g.id, fmt.Errorf("rng state: %w", err))
	}
	g.stack = stack
	g.clock.Reset(s.Seq)
	return nil
}

// StartAction begins a top-level action for the active player. While an
// action is suspended nothing new starts; the current view is returned.
func (g *Game) StartAction(ctx context.Context, player, kind string) (ir.ActionView, error) {
	if g.consent != nil {
		return ir.ActionView{}, g.consentPending(player)
	}
	if !g.stack.Idle() {
		return g.View(player)
	}
	return g.submit(ctx, ir.HistoryEvent{Player: player, Kind: ir.EventStart, Action: kind})
}

// ContinueAction supplies choices for the suspended action.
func (g *Game) ContinueAction(ctx context.Context, player string, choices ir.Choices) (ir.ActionView, error) {
	if g.consent != nil {
		return ir.ActionView{}, g.consentPending(player)
	}
	return g.submit(ctx, ir.HistoryEvent{Player: player, Kind: ir.EventContinue, Choices: choices})
}

func (g *Game) consentPending(player string) error {
	return ir.Reject(ir.CodeConsentPending, "a rollback vote requested by %s is open", g.consent.requester).
		WithPlayer(player)
}

// submit is the all-or-nothing wrapper around one external decision:
// snapshot, apply, record, persist. Any error restores the snapshot.
func (g *Game) submit(ctx context.Context, ev ir.HistoryEvent) (ir.ActionView, error) {
	snap, err := g.Snapshot()
	if err != nil {
		return ir.ActionView{}, err
	}
	saved := slices.Clone(g.nodes)

	ev.Seq = g.clock.Next()
	oneWay, err := g.apply(ev)
	if err != nil {
		return ir.ActionView{}, g.abort(snap, saved, err)
	}
	ev.OneWay = oneWay

	from := g.record(snap, ev)
	if err := g.persist(ctx, from); err != nil {
		return ir.ActionView{}, g.abort(snap, saved, err)
	}
	slog.Debug("event accepted", "game", g.id, "seq", ev.Seq, "player", ev.Player, "kind", ev.Kind, "one_way", ev.OneWay)
	return g.View(ev.Player)
}

func (g *Game) abort(snap ir.Snapshot, nodes []ir.HistoryNode, cause error) error {
	g.nodes = nodes
	if err := g.restore(snap); err != nil {
		slog.Error("restore after failed request", "game", g.id, "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

// apply runs one event against the live state. It is the only code path
// for both live requests and replay.
func (g *Game) apply(ev ir.HistoryEvent) (bool, error) {
	if !g.setup.HasPlayer(ev.Player) {
		return false, ir.Reject(ir.CodeWrongPlayer, "%q is not seated in this game", ev.Player).WithPlayer(ev.Player)
	}
	x := action.NewExec(g.world, g.rules.Actions, g.stack)

	switch ev.Kind {
	case ir.EventStart:
		if err := g.checkStart(x, ev.Player, ev.Action); err != nil {
			return false, err
		}
		g.stack.ResetApplied()
		x.DoNext(x.New(ev.Action, ev.Player, nil))
		if err := g.stack.Drive(x); err != nil {
			return false, err
		}
	case ir.EventContinue:
		if err := g.stack.Continue(x, ev.Player, ev.Choices); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return x.OneWay(), nil
}

func (g *Game) checkStart(x *action.Exec, player, kind string) error {
	if top := g.stack.Top(); top != nil {
		return ir.Reject(ir.CodeActionUnavailable, "%s is still waiting on %s", top.Kind, top.Player).
			WithPlayer(player).WithAction(kind)
	}
	if active := g.ActivePlayer(); player != active {
		return ir.Reject(ir.CodeWrongPlayer, "it is %s's turn", active).WithPlayer(player).WithAction(kind)
	}
	def, ok := g.rules.Actions.Def(kind)
	if !ok || !def.TopLevel {
		return ir.Reject(ir.CodeUnknownAction, "no action named %q", kind).WithPlayer(player).WithAction(kind)
	}
	if def.Available != nil {
		ok, err := def.Available(x, player)
		if err != nil {
			return fmt.Errorf("availability of %s: %w", kind, err)
		}
		if !ok {
			return ir.Reject(ir.CodeActionUnavailable, "%s cannot be completed right now", kind).
				WithPlayer(player).WithAction(kind)
		}
	}
	return nil
}

// record appends ev to history and returns the first node that changed.
// A start opens a node holding the pre-request snapshot; a continue joins
// the latest node.
func (g *Game) record(snap ir.Snapshot, ev ir.HistoryEvent) int {
	if ev.Kind == ir.EventStart || len(g.nodes) == 0 {
		g.nodes = append(g.nodes, ir.HistoryNode{Index: len(g.nodes), Snapshot: snap, Events: []ir.HistoryEvent{ev}})
		return len(g.nodes) - 1
	}
	last := len(g.nodes) - 1
	g.nodes[last].Events = append(slices.Clone(g.nodes[last].Events), ev)
	return last
}

func (g *Game) persist(ctx context.Context, from int) error {
	if g.opts.persister == nil {
		return nil
	}
	change := store.Change{GameID: g.id, FromNode: from}
	for _, n := range g.nodes[from:] {
		change.Nodes = append(change.Nodes, ir.HistoryNode{Index: n.Index, Snapshot: n.Snapshot, Events: slices.Clone(n.Events)})
	}
	if err := g.opts.persister.Commit(ctx, change); err != nil {
		return fmt.Errorf("persist game %s: %w", g.id, err)
	}
	return nil
}

// View renders what player sees now.
func (g *Game) View(player string) (ir.ActionView, error) {
	x := action.NewExec(g.world, g.rules.Actions, g.stack)
	view := ir.ActionView{
		GameID:       g.id,
		Seq:          g.clock.Current(),
		ActivePlayer: g.ActivePlayer(),
		Done:         g.stack.Idle(),
		World:        g.tree.Serialize(tree.RootHandle, true),
	}

	top, open, err := g.stack.Pending(x)
	if err != nil {
		return ir.ActionView{}, err
	}
	if top != nil {
		view.Action = top.Kind
		view.Player = top.Player
		for _, sel := range open {
			view.Selects = append(view.Selects, sel.View())
		}
	}
	for _, a := range g.stack.Applied {
		view.Applied = append(view.Applied, ir.AppliedEffect{Kind: a.Kind, Args: a.Args.Clone(), Result: a.Result})
	}

	if g.consent != nil {
		votes := make(map[string]bool, len(g.consent.votes))
		for p, v := range g.consent.votes {
			votes[p] = v
		}
		view.Consent = &ir.ConsentView{Requester: g.consent.requester, TargetSeq: g.consent.target, Votes: votes}
	} else if view.Done && player == view.ActivePlayer {
		view.Available, err = g.available(x, player)
		if err != nil {
			return ir.ActionView{}, err
		}
	}
	return view, nil
}

func (g *Game) available(x *action.Exec, player string) ([]string, error) {
	var out []string
	for _, kind := range g.rules.Actions.TopLevel() {
		def, _ := g.rules.Actions.Def(kind)
		if def.Available != nil {
			ok, err := def.Available(x, player)
			if err != nil {
				return nil, fmt.Errorf("availability of %s: %w", kind, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, kind)
	}
	return out, nil
}
