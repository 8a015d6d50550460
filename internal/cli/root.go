package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"bottega/internal/backend"
	"bottega/internal/config"
	"bottega/internal/core"
	"bottega/internal/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string
}

var ValidFormats = []string{"text", "json"}

// operator is the identity bottegactl acts as. It has no row in the store.
var operator = core.User{Username: "bottegactl", Name: "Command line", Role: core.RoleAdmin}

// NewRootCommand creates the bottegactl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bottegactl",
		Short: "Administer a bottega ledger",
		Long:  "Maintenance commands for the bottega shop ledger: schema migrations, seeding, accounts and monthly summaries.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH and DATA_BACKEND)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// loadConfig loads the environment config with the --db override applied.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if o.DBPath != "" {
		cfg.DataBackend = config.BackendSQLite
		cfg.SQLiteDBPath = o.DBPath
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *RootOptions) logger(cmd *cobra.Command) *log.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: log.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})
}

// open returns the record store without touching the broker or seeding.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*backend.BackendResult, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	bcfg.Seed = false
	bcfg.AMQPURL = ""
	result, err := backend.NewFactory(o.logger(cmd).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	return result, cfg, nil
}

func (o *RootOptions) emit(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
