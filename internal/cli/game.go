package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/sample"
	"github.com/roach88/tabletop/internal/setup"
	"github.com/roach88/tabletop/internal/store"
)

// DefaultCatalog is the catalogue used when --catalog is not given.
const DefaultCatalog = sample.Catalog

// catalogue is a rules set plus the table it lays out when a setup carries
// no world.
type catalogue struct {
	rules func() *engine.Rules
	world func(players []string) ir.IRObject
}

var catalogues = map[string]catalogue{
	sample.Catalog: {rules: sample.Rules, world: sample.NewWorld},
}

func lookupCatalogue(name string) (catalogue, error) {
	c, ok := catalogues[name]
	if !ok {
		names := make([]string, 0, len(catalogues))
		for n := range catalogues {
			names = append(names, n)
		}
		sort.Strings(names)
		return catalogue{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown catalogue %q (have %s)", name, strings.Join(names, ", ")))
	}
	return c, nil
}

// withEngine opens the database, runs an engine over it for the duration of
// fn and shuts both down.
func withEngine(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, e *engine.Engine) error) error {
	cat, err := lookupCatalogue(opts.Catalog)
	if err != nil {
		return err
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	eng := engine.New(st, cat.rules(), engine.UUIDv7Generator{}, engine.WithMaxSteps(opts.MaxSteps))
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return eng.Run(gctx) })

	fnErr := fn(gctx, eng)
	eng.Stop()
	if err := group.Wait(); err != nil && fnErr == nil {
		return WrapExitError(ExitCommandError, "engine error", err)
	}
	return fnErr
}

// submit sends one request and prints the resulting view.
func submit(cmd *cobra.Command, opts *RootOptions, req engine.Request) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return withEngine(commandContext(cmd), opts, func(ctx context.Context, e *engine.Engine) error {
		view, err := e.Submit(ctx, req)
		if err != nil {
			return requestError(out, err)
		}
		return out.View(view)
	})
}

// requestError maps an engine error to output and an exit code.
func requestError(out *OutputFormatter, err error) error {
	switch {
	case ir.IsResolutionError(err):
		return out.Rejected(err)
	case errors.Is(err, store.ErrGameNotFound):
		return WrapExitError(ExitCommandError, "no such game", err)
	case errors.Is(err, store.ErrGameExists):
		return WrapExitError(ExitCommandError, "game already exists", err)
	case engine.IsCorruptLog(err), engine.IsReplayError(err):
		return WrapExitError(ExitCommandError, "stored game is unusable", err)
	default:
		return WrapExitError(ExitCommandError, "request failed", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// NewOptions holds flags for the new command.
type NewOptions struct {
	*RootOptions
	ID      string
	Players []string
	Seed    int64
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new [setup.cue]",
		Short: "Create a game",
		Long: `Create a game from a CUE setup file, or from the catalogue's standard
table for the given players.

Examples:
  tabletop new --players alice,bob --seed 7
  tabletop new ./tables/duel.cue --id duel-1`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "game id (default: a new UUIDv7)")
	cmd.Flags().StringSliceVar(&opts.Players, "players", nil, "seated players, in turn order")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed")

	return cmd
}

func runNew(opts *NewOptions, args []string, cmd *cobra.Command) error {
	cat, err := lookupCatalogue(opts.Catalog)
	if err != nil {
		return err
	}

	var s ir.Setup
	if len(args) == 1 {
		if s, err = setup.LoadFile(args[0]); err != nil {
			return WrapExitError(ExitCommandError, "failed to load setup", err)
		}
		// the file names its catalogue
		if cat, err = lookupCatalogue(s.Catalog); err != nil {
			return err
		}
		opts.Catalog = s.Catalog
	} else {
		if len(opts.Players) == 0 {
			return NewExitError(ExitCommandError, "--players is required without a setup file")
		}
		s = ir.Setup{Catalog: opts.Catalog, Players: opts.Players, Seed: opts.Seed}
	}
	if s.World == nil {
		s.World = cat.world(s.Players)
	}

	var first string
	if len(s.Players) > 0 {
		first = s.Players[0]
	}
	return submit(cmd, opts.RootOptions, engine.Request{Op: engine.OpCreate, GameID: opts.ID, Player: first, Setup: &s})
}

// playerCommand builds the commands that take a game id and --player.
// fill completes the request from the remaining arguments and flags.
func playerCommand(rootOpts *RootOptions, use, short, long string, op engine.Op, nargs int, fill func(req *engine.Request, args []string) error) *cobra.Command {
	var player string

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(nargs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.Request{Op: op, GameID: args[0], Player: player}
			if fill != nil {
				if err := fill(&req, args[1:]); err != nil {
					return err
				}
			}
			return submit(cmd, rootOpts, req)
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "acting player (required)")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	return playerCommand(rootOpts, "start <game> <action>", "Start a top-level action", `Start a top-level action for the active player.

Example:
  tabletop start duel-1 build --player alice`,
		engine.OpStart, 2,
		func(req *engine.Request, args []string) error {
			req.Action = args[0]
			return nil
		})
}

// NewContinueCommand creates the continue command.
func NewContinueCommand(rootOpts *RootOptions) *cobra.Command {
	var raw []string
	cmd := playerCommand(rootOpts, "continue <game>", "Answer the pending prompt", `Supply choices for the suspended action. Each --choice is name=key[,key...].

Example:
  tabletop continue duel-1 --player alice --choice site=forest --choice payment=none`,
		engine.OpContinue, 1,
		func(req *engine.Request, _ []string) error {
			choices, err := parseChoices(raw)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --choice", err)
			}
			req.Choices = choices
			return nil
		})
	cmd.Flags().StringArrayVarP(&raw, "choice", "c", nil, "choice as name=key[,key...]")
	return cmd
}

// parseChoices parses name=key[,key...] pairs. A repeated name appends.
func parseChoices(raw []string) (ir.Choices, error) {
	out := ir.Choices{}
	for _, r := range raw {
		name, keys, ok := strings.Cut(r, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%q is not name=key[,key...]", r)
		}
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out[name] = append(out[name], k)
			}
		}
		if _, ok := out[name]; !ok {
			out[name] = []string{}
		}
	}
	return out, nil
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	return playerCommand(rootOpts, "cancel <game>", "Undo your latest decision", `Undo the acting player's latest decision. When other players acted since,
or the decision revealed something, a rollback vote opens instead.`, engine.OpCancel, 1, nil)
}

// NewConsentCommand creates the consent command.
func NewConsentCommand(rootOpts *RootOptions) *cobra.Command {
	return playerCommand(rootOpts, "consent <game>", "Agree to the open rollback vote", "", engine.OpConsent, 1, nil)
}

// NewDeclineCommand creates the decline command.
func NewDeclineCommand(rootOpts *RootOptions) *cobra.Command {
	return playerCommand(rootOpts, "decline <game>", "Refuse the open rollback vote", "", engine.OpDecline, 1, nil)
}

// NewViewCommand creates the view command.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	return playerCommand(rootOpts, "view <game>", "Show what a player sees", "", engine.OpView, 1, nil)
}
