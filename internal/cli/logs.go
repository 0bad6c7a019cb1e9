package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tabletop/internal/engine"
	"github.com/roach88/tabletop/internal/store"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <game>",
		Short: "Write a game log as canonical JSON lines",
		Long: `Write a stored game as a log file: a header line with the setup, then one
line per history node. Two exports of the same game are byte-identical.

Examples:
  tabletop export duel-1 > duel-1.log
  tabletop export duel-1 -o duel-1.log`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			st, err := store.Open(rootOpts.DB)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			log, err := st.LoadGame(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load game", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output file", err)
				}
				defer f.Close()
				w = f
			}
			if err := store.WriteLog(w, log); err != nil {
				return WrapExitError(ExitCommandError, "failed to write log", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a game log into the database",
		Long: `Read a log written by export, verify it by replaying it from its setup and
store it under its game id. A log that fails replay is not stored.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cat, err := lookupCatalogue(rootOpts.Catalog)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open log", err)
			}
			defer f.Close()
			log, err := store.ReadLog(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read log", err)
			}
			if _, err := engine.Replay(log, cat.rules()); err != nil {
				return WrapExitError(ExitFailure, "log does not replay", err)
			}

			st, err := store.Open(rootOpts.DB)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()
			if err := st.Import(ctx, log); err != nil {
				return WrapExitError(ExitCommandError, "failed to import game", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(fmt.Sprintf("imported %s (%d nodes)", log.GameID, len(log.Nodes)))
		},
	}
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored games",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(rootOpts.DB)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			games, err := st.ListGames(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list games", err)
			}

			if rootOpts.Format == "json" {
				type row struct {
					ID      string `json:"id"`
					Catalog string `json:"catalog"`
					Nodes   int    `json:"nodes"`
					Events  int    `json:"events"`
					LastSeq int64  `json:"last_seq"`
				}
				rows := make([]row, len(games))
				for i, g := range games {
					rows[i] = row(g)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(CLIResponse{Status: "ok", Data: rows})
			}

			if len(games) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No games found in database.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATALOG\tNODES\tEVENTS\tSEQ")
			for _, g := range games {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", g.ID, g.Catalog, g.Nodes, g.Events, g.LastSeq)
			}
			return tw.Flush()
		},
	}
}
