package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tabletop/internal/config"
	"github.com/roach88/tabletop/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	DB       string
	Catalog  string
	MaxSteps int
	Metrics  bool

	// configErr is reported by PersistentPreRunE so --help still works
	// with a broken environment.
	configErr error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Flag defaults come from the
// environment (see config.Load).
func NewRootCommand() *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Config{DB: "./tabletop.db", Format: "text", MaxSteps: 1000}
	}
	opts := &RootOptions{configErr: err}

	cmd := &cobra.Command{
		Use:   "tabletop",
		Short: "tabletop - a turn-based board game engine",
		Long: `Play deterministic, replayable board games from the command line.

Every decision is an event in a persisted history. Games can be undone,
replayed, exported and imported, and always reach the same state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", opts.configErr)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.MaxSteps <= 0 {
				return fmt.Errorf("invalid --max-steps %d: must be positive", opts.MaxSteps)
			}
			setupLogging(opts)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Metrics {
				return nil
			}
			return metrics.WriteText(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", cfg.Verbose, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", cfg.DB, "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", DefaultCatalog, "rules catalogue")
	cmd.PersistentFlags().IntVar(&opts.MaxSteps, "max-steps", cfg.MaxSteps, "actions one request may execute")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print metrics to stderr on exit")

	cmd.AddCommand(NewNewCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewContinueCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewConsentCommand(opts))
	cmd.AddCommand(NewDeclineCommand(opts))
	cmd.AddCommand(NewViewCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setupLogging routes slog to stderr, as JSON when the output is JSON.
func setupLogging(opts *RootOptions) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}
	slog.SetDefault(slog.New(handler))
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
