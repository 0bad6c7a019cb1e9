package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/store"
	"github.com/roach88/tabletop/internal/tree"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext is what assertions inspect once a scenario has run.
type AssertionContext struct {
	Ctx   context.Context
	Game  *engine.Game
	Rules *engine.Rules
	Store *store.Store
}

// EvaluateAssertions evaluates all assertions and returns one message per
// failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertProp:
			err = assertProp(actx.Game, a)
		case AssertNode:
			err = assertNode(actx.Game, a)
		case AssertHistory:
			err = assertHistory(actx.Game, a)
		case AssertAvailable:
			err = assertAvailable(actx.Game, a)
		case AssertReplay:
			err = assertReplay(actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errors
}

// lookup resolves a "type/id" reference.
func lookup(g *engine.Game, ref string) (tree.Handle, bool, error) {
	typ, id, ok := strings.Cut(ref, "/")
	if !ok || typ == "" || id == "" {
		return tree.NoHandle, false, fmt.Errorf("node reference %q is not type/id", ref)
	}
	h, found := g.Tree().Get(typ, id)
	return h, found, nil
}

func assertProp(g *engine.Game, a Assertion) error {
	h, found, err := lookup(g, a.Node)
	if err != nil {
		return err
	}
	if !found {
		return &AssertionError{Type: AssertProp, Expected: fmt.Sprintf("node %s", a.Node), Actual: "no such node"}
	}
	want, err := ir.FromAny(a.Equals)
	if err != nil {
		return fmt.Errorf("equals: %w", err)
	}
	got, ok := g.Tree().Prop(h, a.Prop)
	if !ok || !ir.Equal(got, want) {
		return &AssertionError{
			Type:     AssertProp,
			Expected: fmt.Sprintf("%s.%s = %s", a.Node, a.Prop, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

func assertNode(g *engine.Game, a Assertion) error {
	h, found, err := lookup(g, a.Node)
	if err != nil {
		return err
	}
	if a.Exists != nil && *a.Exists != found {
		return &AssertionError{
			Type:     AssertNode,
			Expected: fmt.Sprintf("%s exists = %v", a.Node, *a.Exists),
			Actual:   fmt.Sprintf("exists = %v", found),
		}
	}
	if a.Parent == "" {
		return nil
	}
	if !found {
		return &AssertionError{Type: AssertNode, Expected: fmt.Sprintf("%s under %s", a.Node, a.Parent), Actual: "no such node"}
	}
	parent, ok, err := lookup(g, a.Parent)
	if err != nil {
		return err
	}
	if got := g.Tree().Parent(h); !ok || got != parent {
		actual := "detached"
		if got != tree.NoHandle {
			actual = "under " + g.Tree().Key(got).String()
		}
		return &AssertionError{Type: AssertNode, Expected: fmt.Sprintf("%s under %s", a.Node, a.Parent), Actual: actual}
	}
	return nil
}

func assertHistory(g *engine.Game, a Assertion) error {
	nodes := g.History()
	events := 0
	for _, n := range nodes {
		events += len(n.Events)
	}
	if a.Nodes != nil && *a.Nodes != len(nodes) {
		return &AssertionError{Type: AssertHistory, Expected: fmt.Sprintf("%d nodes", *a.Nodes), Actual: fmt.Sprintf("%d", len(nodes))}
	}
	if a.Events != nil && *a.Events != events {
		return &AssertionError{Type: AssertHistory, Expected: fmt.Sprintf("%d events", *a.Events), Actual: fmt.Sprintf("%d", events)}
	}
	return nil
}

func assertAvailable(g *engine.Game, a Assertion) error {
	view, err := g.View(a.Player)
	if err != nil {
		return err
	}
	got := view.Available
	if !slices.Equal(got, a.Actions) && (len(got) > 0 || len(a.Actions) > 0) {
		return &AssertionError{
			Type:     AssertAvailable,
			Expected: fmt.Sprintf("%s may start %v", a.Player, a.Actions),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertReplay rebuilds the game twice, once by full replay of the log and
// once from the persisted store, and compares both with the live hash.
func assertReplay(actx *AssertionContext) error {
	want, err := actx.Game.Hash()
	if err != nil {
		return err
	}

	replayed, err := engine.Replay(actx.Game.Log(), actx.Rules)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if got, err := replayed.Hash(); err != nil || got != want {
		return &AssertionError{Type: AssertReplay, Expected: want, Actual: fmt.Sprintf("replayed %s (%v)", got, err)}
	}

	log, err := actx.Store.LoadGame(actx.Ctx, actx.Game.ID())
	if err != nil {
		return fmt.Errorf("load from store: %w", err)
	}
	loaded, err := engine.Load(log, actx.Rules)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if got, err := loaded.Hash(); err != nil || got != want {
		return &AssertionError{Type: AssertReplay, Expected: want, Actual: fmt.Sprintf("loaded %s (%v)", got, err)}
	}
	return nil
}

func render(v ir.IRValue) string {
	if v == nil {
		return "<unset>"
	}
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
