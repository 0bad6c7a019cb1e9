package action

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/roach88/tabletop/internal/cost"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Choice is one selectable option of a Select.
type Choice struct {
	Key   string
	Label string
}

// Select is a constrained multiple-choice prompt.
type Select struct {
	Name    string
	Prompt  string
	Choices []Choice
	Min     int
	Max     int
	Default []string
}

// Has reports whether key is one of the choices.
func (s Select) Has(key string) bool {
	return slices.ContainsFunc(s.Choices, func(c Choice) bool { return c.Key == key })
}

// Keys returns the choice keys in order.
func (s Select) Keys() []string {
	out := make([]string, len(s.Choices))
	for i, c := range s.Choices {
		out[i] = c.Key
	}
	return out
}

// View renders the select for clients.
func (s Select) View() ir.SelectView {
	choices := make([]ir.ChoiceView, len(s.Choices))
	for i, c := range s.Choices {
		choices[i] = ir.ChoiceView{Key: c.Key, Label: c.Label}
	}
	return ir.SelectView{
		Name:    s.Name,
		Prompt:  s.Prompt,
		Choices: choices,
		Min:     s.Min,
		Max:     s.Max,
		Default: slices.Clone(s.Default),
	}
}

// validate checks a submission against the select: every key known, no
// duplicates, count within [Min, Max].
func (s Select) validate(keys []string) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !s.Has(k) {
			return ir.Reject(ir.CodeInvalidSelection, "%q is not a choice of %s", k, s.Name).WithDetail("select", s.Name)
		}
		if seen[k] {
			return ir.Reject(ir.CodeInvalidSelection, "%q chosen twice for %s", k, s.Name).WithDetail("select", s.Name)
		}
		seen[k] = true
	}
	if len(keys) < s.Min || len(keys) > s.Max {
		return ir.Reject(ir.CodeInvalidSelection, "%s takes %d to %d choices, got %d", s.Name, s.Min, s.Max, len(keys)).
			WithDetail("select", s.Name)
	}
	return nil
}

// autofill decides a select without asking anyone: when there is nothing
// to choose, when every choice is required, or when no player owns the
// action. The second result is false when a player must decide.
func (s Select) autofill(player string) ([]string, bool) {
	switch {
	case len(s.Choices) == 0:
		return []string{}, true
	case len(s.Choices) <= s.Min:
		return s.Keys(), true
	case player == "":
		if len(s.Default) > 0 && s.validate(s.Default) == nil {
			return slices.Clone(s.Default), true
		}
		return s.Keys()[:s.Min], true
	default:
		return nil, false
	}
}

// Callback names a registered hook that receives an effect's result.
type Callback struct {
	Hook string
	Args ir.IRObject
}

// Action is the serializable record of one unit of work on the stack.
// Behaviour lives in the Def registered for Kind; the record carries only
// data so the stack can be snapshotted and replayed.
type Action struct {
	ID       string
	Kind     string
	Player   string
	Args     ir.IRObject
	Params   ir.Choices
	Effect   bool
	OnResult *Callback
}

// Param returns the single chosen key of a select, "" when none.
func (a *Action) Param(name string) string {
	if keys := a.Params[name]; len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// Resolved reports whether a select already has a value.
func (a *Action) Resolved(name string) bool {
	_, ok := a.Params[name]
	return ok
}

// World is the explicit context every action and effect runs against.
// There is no ambient state.
type World struct {
	Tree    *tree.Tree
	Rand    *rand.Rand
	Costs   *cost.Resolver
	Players []string
}

// Exec is handed to Def functions while the stack drives.
type Exec struct {
	World *World

	reg     *Registry
	stack   *Stack
	current *Action
	oneWay  bool
}

// NewExec binds a world, a registry and a stack for one request.
func NewExec(w *World, reg *Registry, s *Stack) *Exec {
	return &Exec{World: w, reg: reg, stack: s}
}

// Registry returns the action registry.
func (x *Exec) Registry() *Registry {
	return x.reg
}

// Stack returns the stack being driven.
func (x *Exec) Stack() *Stack {
	return x.stack
}

// Current returns the action being started or executed.
func (x *Exec) Current() *Action {
	return x.current
}

// New builds an action record with the next stack-local id.
func (x *Exec) New(kind, player string, args ir.IRObject) *Action {
	x.stack.NextID++
	if args == nil {
		args = ir.IRObject{}
	}
	a := &Action{ID: fmt.Sprintf("a%d", x.stack.NextID), Kind: kind, Player: player, Args: args}
	if def, ok := x.reg.Def(kind); ok {
		a.Effect = def.Effect
	}
	return a
}

// NewEffect builds an effect record. onResult may be nil.
func (x *Exec) NewEffect(kind string, args ir.IRObject, onResult *Callback) *Action {
	a := x.New(kind, "", args)
	a.Effect = true
	a.OnResult = onResult
	return a
}

// DoNext schedules work. Scheduled actions run after the current one, in
// the order they were scheduled, before anything already on the stack.
func (x *Exec) DoNext(actions ...*Action) {
	x.stack.Future = append(x.stack.Future, actions...)
}

// MarkOneWay flags the current request as not safely reversible, e.g.
// because it revealed hidden information.
func (x *Exec) MarkOneWay() {
	x.oneWay = true
}

// OneWay reports whether anything executed during this request was one-way.
func (x *Exec) OneWay() bool {
	return x.oneWay
}

// Node looks up a reachable node by type and id, failing with a fatal
// error when it is gone.
func (x *Exec) Node(typ, id string) (tree.Handle, error) {
	h, ok := x.World.Tree.Get(typ, id)
	if !ok {
		return tree.NoHandle, fmt.Errorf("node %s/%s not found", typ, id)
	}
	return h, nil
}
