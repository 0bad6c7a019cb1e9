package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/store"
)

// ReplayGameResult holds the replay result for a single game.
type ReplayGameResult struct {
	GameID        string `json:"game_id"`
	Nodes         int    `json:"nodes"`
	Events        int    `json:"events"`
	Hash          string `json:"hash,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Games            []ReplayGameResult `json:"games"`
	TotalGames       int                `json:"total_games"`
	AllDeterministic bool               `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [game]",
		Short: "Replay stored games and verify determinism",
		Long: `Replay a stored game from its setup, twice and independently, and compare
the resulting state hashes with each other and with the stored state.
Without a game id every stored game is replayed.

Exit codes:
  0 - All games are deterministic
  1 - A replay diverged or hashes differ
  2 - Command error (database not found, corrupt log, etc.)

Examples:
  tabletop replay
  tabletop replay duel-1 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runReplay(opts *RootOptions, args []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	cat, err := lookupCatalogue(opts.Catalog)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var ids []string
	if len(args) == 1 {
		ids = args
	} else {
		games, err := st.ListGames(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list games", err)
		}
		for _, g := range games {
			ids = append(ids, g.ID)
		}
	}

	result := ReplayResult{
		Games:            make([]ReplayGameResult, 0, len(ids)),
		TotalGames:       len(ids),
		AllDeterministic: true,
	}
	for _, id := range ids {
		log, err := st.LoadGame(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load game %s", id), err)
		}
		gr, err := replayAndVerify(ctx, log, cat.rules)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay game %s", id), err)
		}
		result.Games = append(result.Games, gr)
		if !gr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		if err := outputReplayJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd, result)
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// replayAndVerify rebuilds a game twice from scratch in parallel and once
// from its last snapshot. All three hashes must agree. A replay that
// diverges is reported in the result; a corrupt log is an error.
func replayAndVerify(ctx context.Context, log store.GameLog, rules func() *engine.Rules) (ReplayGameResult, error) {
	gr := ReplayGameResult{GameID: log.GameID, Nodes: len(log.Nodes)}
	for _, n := range log.Nodes {
		gr.Events += len(n.Events)
	}

	var hashes [2]string
	group, _ := errgroup.WithContext(ctx)
	for i := range hashes {
		group.Go(func() error {
			g, err := engine.Replay(log, rules())
			if err != nil {
				return err
			}
			hashes[i], err = g.Hash()
			return err
		})
	}
	if err := group.Wait(); err != nil {
		if engine.IsReplayError(err) {
			gr.Error = err.Error()
			return gr, nil
		}
		return gr, err
	}

	loaded, err := engine.Load(log, rules())
	if err != nil {
		return gr, err
	}
	stored, err := loaded.Hash()
	if err != nil {
		return gr, err
	}

	gr.Hash = stored
	gr.Deterministic = hashes[0] == hashes[1] && hashes[0] == stored
	if !gr.Deterministic {
		gr.Error = fmt.Sprintf("hashes differ: replay %s, replay %s, stored %s", hashes[0], hashes[1], stored)
	}
	return gr, nil
}

func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{Code: "E_NONDETERMINISTIC", Message: "determinism verification failed"}
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) {
	w := cmd.OutOrStdout()
	if result.TotalGames == 0 {
		fmt.Fprintln(w, "No games found in database.")
		return
	}
	for _, g := range result.Games {
		if g.Deterministic {
			fmt.Fprintf(w, "✓ %s: %d nodes, %d events, hash %s\n", g.GameID, g.Nodes, g.Events, g.Hash)
			continue
		}
		fmt.Fprintf(w, "✗ %s: %s\n", g.GameID, g.Error)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Replay Summary: %d game(s)\n", result.TotalGames)
}
