package action

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/metrics"
)

var (
	ErrUnknownKind = errors.New("unknown action kind")
	ErrUnknownHook = errors.New("unknown hook")
	ErrUnsettled   = errors.New("selects did not settle")
)

// maxFillRounds bounds the auto-fill fixpoint. Selects that keep producing
// new auto-resolvable prompts beyond this are a rules bug.
const maxFillRounds = 64

// Stack holds the actions waiting to run. The top is the last element.
// Future collects work scheduled by the action currently executing; it is
// flushed onto the stack in reverse so the first scheduled runs first.
type Stack struct {
	Actions  []*Action
	Future   []*Action
	Applied  []ir.AppliedEffect
	NextID   int64
	MaxSteps int
}

// NewStack returns an empty stack with the default step limit.
func NewStack() *Stack {
	return &Stack{MaxSteps: DefaultMaxSteps}
}

// Idle reports whether nothing is waiting, suspended or scheduled.
func (s *Stack) Idle() bool {
	return len(s.Actions) == 0 && len(s.Future) == 0
}

// Top returns the action on top of the stack, nil when empty.
func (s *Stack) Top() *Action {
	if len(s.Actions) == 0 {
		return nil
	}
	return s.Actions[len(s.Actions)-1]
}

// ResetApplied clears the applied-effects list. The engine calls it when a
// new top-level action starts.
func (s *Stack) ResetApplied() {
	s.Applied = nil
}

func (s *Stack) flush() {
	for i := len(s.Future) - 1; i >= 0; i-- {
		s.Actions = append(s.Actions, s.Future[i])
	}
	s.Future = nil
}

// Drive runs actions until the stack is empty or the top action needs a
// player decision. A suspended action stays on top with its partial params.
func (s *Stack) Drive(x *Exec) error {
	s.flush()
	quota := NewQuota(s.MaxSteps)
	for len(s.Actions) > 0 {
		top := s.Top()
		def, ok := x.reg.Def(top.Kind)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKind, top.Kind)
		}
		resolved, err := s.start(x, top, def)
		if err != nil {
			return err
		}
		if !resolved {
			slog.Debug("action suspended", "action", top.Kind, "id", top.ID, "player", top.Player)
			return nil
		}

		s.Actions = s.Actions[:len(s.Actions)-1]
		if err := quota.Check(top.Kind); err != nil {
			return err
		}
		if err := s.execute(x, top, def); err != nil {
			return err
		}
		s.flush()
	}
	return nil
}

func (s *Stack) execute(x *Exec, a *Action, def *Def) error {
	x.current = a
	defer func() { x.current = nil }()

	var result ir.IRValue
	if def.Execute != nil {
		var err error
		result, err = def.Execute(x, a)
		if err != nil {
			return fmt.Errorf("execute %s (%s): %w", a.Kind, a.ID, err)
		}
	}
	if def.OneWay {
		x.MarkOneWay()
	}
	metrics.ActionsExecuted.WithLabelValues(a.Kind).Inc()
	slog.Debug("action executed", "action", a.Kind, "id", a.ID, "effect", def.Effect)

	if !def.Effect {
		return nil
	}
	applied := ir.AppliedEffect{Kind: a.Kind, Args: a.Args.Clone()}
	if result != nil {
		applied.Result = ir.Clone(result)
	}
	s.Applied = append(s.Applied, applied)

	if a.OnResult == nil {
		return nil
	}
	hook, ok := x.reg.Hook(a.OnResult.Hook)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHook, a.OnResult.Hook)
	}
	if err := hook(x, result, a.OnResult.Args); err != nil {
		return fmt.Errorf("hook %s after %s: %w", a.OnResult.Hook, a.ID, err)
	}
	return nil
}

// start auto-fills what it can, repeating until nothing changes, and
// reports whether every select is resolved.
func (s *Stack) start(x *Exec, a *Action, def *Def) (bool, error) {
	if def.Effect || def.Selects == nil {
		return true, nil
	}
	if a.Params == nil {
		a.Params = ir.Choices{}
	}
	x.current = a
	defer func() { x.current = nil }()

	for round := 0; round < maxFillRounds; round++ {
		sels, err := def.Selects(x, a)
		if err != nil {
			return false, fmt.Errorf("selects of %s (%s): %w", a.Kind, a.ID, err)
		}
		changed, pending := false, 0
		for _, sel := range sels {
			if a.Resolved(sel.Name) {
				continue
			}
			if keys, ok := sel.autofill(a.Player); ok {
				a.Params[sel.Name] = keys
				changed = true
				continue
			}
			pending++
		}
		if !changed {
			return pending == 0, nil
		}
	}
	return false, fmt.Errorf("%w: %s (%s)", ErrUnsettled, a.Kind, a.ID)
}

// Pending returns the suspended top action and its unresolved selects.
// The action is nil when nothing is suspended.
func (s *Stack) Pending(x *Exec) (*Action, []Select, error) {
	top := s.Top()
	if top == nil {
		return nil, nil, nil
	}
	def, ok := x.reg.Def(top.Kind)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, top.Kind)
	}
	if def.Selects == nil {
		return top, nil, nil
	}
	x.current = top
	defer func() { x.current = nil }()
	sels, err := def.Selects(x, top)
	if err != nil {
		return nil, nil, fmt.Errorf("selects of %s (%s): %w", top.Kind, top.ID, err)
	}
	var open []Select
	for _, sel := range sels {
		if !top.Resolved(sel.Name) {
			open = append(open, sel)
		}
	}
	return top, open, nil
}

// Continue submits a player's choices for the suspended top action. Every
// choice is validated before any is committed; then the stack drives on.
func (s *Stack) Continue(x *Exec, player string, choices ir.Choices) error {
	top, open, err := s.Pending(x)
	if err != nil {
		return err
	}
	if top == nil {
		return ir.Reject(ir.CodeNothingPending, "no action is waiting for a decision").WithPlayer(player)
	}
	if top.Player != player {
		return ir.Reject(ir.CodeWrongPlayer, "%s is waiting on %s", top.Kind, top.Player).
			WithPlayer(player).WithAction(top.Kind)
	}
	if len(choices) == 0 {
		return ir.Reject(ir.CodeMissingSelection, "no choices submitted").WithPlayer(player).WithAction(top.Kind)
	}

	byName := make(map[string]Select, len(open))
	for _, sel := range open {
		byName[sel.Name] = sel
	}
	names := make([]string, 0, len(choices))
	for name := range choices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sel, ok := byName[name]
		if !ok {
			return ir.Reject(ir.CodeInvalidSelection, "%s has no open select %q", top.Kind, name).
				WithPlayer(player).WithAction(top.Kind).WithDetail("select", name)
		}
		if err := sel.validate(choices[name]); err != nil {
			var re *ir.ResolutionError
			if errors.As(err, &re) {
				re.WithPlayer(player).WithAction(top.Kind)
			}
			return err
		}
	}

	if top.Params == nil {
		top.Params = ir.Choices{}
	}
	for _, name := range names {
		top.Params[name] = slices.Clone(choices[name])
	}
	return s.Drive(x)
}

// IR serializes the stack for snapshots. MaxSteps is configuration and is
// not part of the state.
func (s *Stack) IR() ir.IRObject {
	applied := make(ir.IRArray, len(s.Applied))
	for i, a := range s.Applied {
		obj := ir.IRObject{"kind": ir.IRString(a.Kind), "args": a.Args.Clone()}
		if a.Args == nil {
			obj["args"] = ir.IRObject{}
		}
		if a.Result != nil {
			obj["result"] = ir.Clone(a.Result)
		}
		applied[i] = obj
	}
	return ir.IRObject{
		"actions": actionsIR(s.Actions),
		"future":  actionsIR(s.Future),
		"applied": applied,
		"next_id": ir.IRInt(s.NextID),
	}
}

// StackFromIR restores a stack serialized by IR. An empty object yields an
// empty stack.
func StackFromIR(obj ir.IRObject, maxSteps int) (*Stack, error) {
	s := &Stack{MaxSteps: maxSteps, NextID: obj.Int("next_id", 0)}
	var err error
	if s.Actions, err = actionsFromIR(obj.Array("actions")); err != nil {
		return nil, fmt.Errorf("stack actions: %w", err)
	}
	if s.Future, err = actionsFromIR(obj.Array("future")); err != nil {
		return nil, fmt.Errorf("stack future: %w", err)
	}
	for i, v := range obj.Array("applied") {
		o, ok := v.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("stack applied[%d]: expected object, got %T", i, v)
		}
		s.Applied = append(s.Applied, ir.AppliedEffect{
			Kind:   o.String("kind"),
			Args:   o.Object("args"),
			Result: o["result"],
		})
	}
	return s, nil
}

func actionsIR(actions []*Action) ir.IRArray {
	out := make(ir.IRArray, len(actions))
	for i, a := range actions {
		out[i] = a.IR()
	}
	return out
}

func actionsFromIR(arr ir.IRArray) ([]*Action, error) {
	var out []*Action
	for i, v := range arr {
		o, ok := v.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected object, got %T", i, v)
		}
		a, err := ActionFromIR(o)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// IR serializes the action record.
func (a *Action) IR() ir.IRObject {
	obj := ir.IRObject{
		"id":     ir.IRString(a.ID),
		"kind":   ir.IRString(a.Kind),
		"args":   a.Args.Clone(),
		"effect": ir.IRBool(a.Effect),
	}
	if a.Args == nil {
		obj["args"] = ir.IRObject{}
	}
	if a.Player != "" {
		obj["player"] = ir.IRString(a.Player)
	}
	if a.Params != nil {
		obj["params"] = a.Params.IR()
	}
	if a.OnResult != nil {
		cb := ir.IRObject{"hook": ir.IRString(a.OnResult.Hook), "args": a.OnResult.Args.Clone()}
		if a.OnResult.Args == nil {
			cb["args"] = ir.IRObject{}
		}
		obj["on_result"] = cb
	}
	return obj
}

// ActionFromIR restores an action record.
func ActionFromIR(obj ir.IRObject) (*Action, error) {
	a := &Action{
		ID:     obj.String("id"),
		Kind:   obj.String("kind"),
		Player: obj.String("player"),
		Args:   obj.Object("args"),
		Effect: obj.Bool("effect"),
	}
	if a.ID == "" || a.Kind == "" {
		return nil, fmt.Errorf("action record needs id and kind")
	}
	if a.Args == nil {
		a.Args = ir.IRObject{}
	}
	if p, ok := obj["params"].(ir.IRObject); ok {
		params, err := ir.ChoicesFromIR(p)
		if err != nil {
			return nil, fmt.Errorf("action %s params: %w", a.ID, err)
		}
		a.Params = params
	}
	if cb, ok := obj["on_result"].(ir.IRObject); ok {
		a.OnResult = &Callback{Hook: cb.String("hook"), Args: cb.Object("args")}
	}
	return a, nil
}
