package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/setup"
	"github.com/roach88/tabletop/internal/store"
)

// Options configures a scenario run.
type Options struct {
	// Rules is the catalogue every scenario game is played under.
	Rules *engine.Rules

	// World builds the starting table when the setup carries none.
	World func(players []string) ir.IRObject

	// MaxSteps bounds one request; zero keeps the engine default.
	MaxSteps int
}

// Run plays a scenario through a real engine and returns the result.
//
// Each scenario runs in a fresh in-memory database. The game id is the
// scenario name, so traces are reproducible. A step whose outcome does not
// match its expect clause is recorded as a failure and the run goes on; an
// error that is not a rule violation aborts the run.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	if opts.Rules == nil {
		return nil, fmt.Errorf("harness: rules are required")
	}
	s, err := scenarioSetup(scenario, opts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	var gameOpts []engine.Option
	if opts.MaxSteps > 0 {
		gameOpts = append(gameOpts, engine.WithMaxSteps(opts.MaxSteps))
	}
	eng := engine.New(st, opts.Rules, engine.NewFixedGenerator(scenario.Name), gameOpts...)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return eng.Run(gctx) })

	result, runErr := play(ctx, eng, scenario, s)
	eng.Stop()
	if err := group.Wait(); err != nil && runErr == nil {
		runErr = fmt.Errorf("engine: %w", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	// Run has returned; the game is safe to inspect.
	g, ok := eng.Game(scenario.Name)
	if !ok {
		return nil, fmt.Errorf("game %s vanished", scenario.Name)
	}
	if result.Hash, err = g.Hash(); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ctx: ctx, Game: g, Rules: opts.Rules, Store: st}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	slog.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

func scenarioSetup(scenario *Scenario, opts Options) (ir.Setup, error) {
	var s ir.Setup
	if scenario.Setup != "" {
		loaded, err := setup.LoadFile(scenario.Setup)
		if err != nil {
			return ir.Setup{}, err
		}
		s = loaded
	} else {
		s = ir.Setup{Catalog: opts.Rules.Name, Players: slices.Clone(scenario.Players), Seed: scenario.Seed}
	}
	if s.World == nil && opts.World != nil {
		s.World = opts.World(s.Players)
	}
	if errs := s.Validate(); len(errs) > 0 {
		return ir.Setup{}, fmt.Errorf("scenario %s: invalid setup: %v", scenario.Name, errs)
	}
	return s, nil
}

func play(ctx context.Context, eng *engine.Engine, scenario *Scenario, s ir.Setup) (*Result, error) {
	_, err := eng.Submit(ctx, engine.Request{
		Op:     engine.OpCreate,
		GameID: scenario.Name,
		Player: s.Players[0],
		Setup:  &s,
	})
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		req := engine.Request{
			Op:      engine.Op(step.Op),
			GameID:  scenario.Name,
			Player:  step.Player,
			Action:  step.Action,
			Choices: ir.Choices(step.Choices),
		}
		view, err := eng.Submit(ctx, req)

		outcome := OutcomeOK
		if err != nil {
			if !ir.IsResolutionError(err) {
				return nil, fmt.Errorf("step %d (%s %s): %w", i, step.Op, step.Player, err)
			}
			outcome = string(ir.ResolutionCode(err))
			// a rejected request changes nothing; show what the player sees now
			view, err = eng.Submit(ctx, engine.Request{Op: engine.OpView, GameID: scenario.Name, Player: step.Player})
			if err != nil {
				return nil, fmt.Errorf("step %d: view after rejection: %w", i, err)
			}
		}

		ev := newTraceEvent(i, step, outcome, view)
		result.Trace = append(result.Trace, ev)
		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, step.Op, step.Player, msg))
		}
	}
	return result, nil
}

// checkExpect compares a step's trace event with its expect clause. A nil
// clause requires success.
func checkExpect(want *Expect, got TraceEvent) []string {
	if want == nil {
		if got.Outcome != OutcomeOK {
			return []string{fmt.Sprintf("expected success, got %s", got.Outcome)}
		}
		return nil
	}

	var errs []string
	wantOutcome := OutcomeOK
	if want.Error != "" {
		wantOutcome = want.Error
	}
	if got.Outcome != wantOutcome {
		errs = append(errs, fmt.Sprintf("outcome: expected %s, got %s", wantOutcome, got.Outcome))
	}
	if want.Done != nil && *want.Done != got.Done {
		errs = append(errs, fmt.Sprintf("done: expected %v, got %v", *want.Done, got.Done))
	}
	if want.Active != "" && want.Active != got.Active {
		errs = append(errs, fmt.Sprintf("active: expected %s, got %s", want.Active, got.Active))
	}
	if want.Pending != "" && want.Pending != got.Pending {
		errs = append(errs, fmt.Sprintf("pending: expected %s, got %q", want.Pending, got.Pending))
	}
	if want.Selects != nil && !slices.Equal(want.Selects, got.Selects) {
		errs = append(errs, fmt.Sprintf("selects: expected %v, got %v", want.Selects, got.Selects))
	}
	if want.Applied != nil && !slices.Equal(want.Applied, got.Applied) {
		errs = append(errs, fmt.Sprintf("applied: expected %v, got %v", want.Applied, got.Applied))
	}
	if want.Consent != nil && *want.Consent != got.Consent {
		errs = append(errs, fmt.Sprintf("consent: expected %v, got %v", *want.Consent, got.Consent))
	}
	return errs
}
