package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bottega/internal/aggregate"
	"bottega/internal/backend"
	"bottega/internal/config"
	"bottega/internal/core"
	"bottega/internal/seed"
	"bottega/internal/services"
	"bottega/internal/storage"
	"bottega/internal/worker"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.DataBackend != config.BackendSQLite {
				return fmt.Errorf("migrate needs the sqlite backend, got %q", cfg.DataBackend)
			}
			version, err := storage.RunMigrations(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), map[string]any{"path": cfg.SQLiteDBPath, "version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "%s at schema version %d\n", cfg.SQLiteDBPath, version)
			})
		},
	}
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert missing reference data",
		Long: `Insert the default admin account, categories and suppliers, or the
contents of --file. Rows that already exist are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			result, cfg, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer result.Cleanup()

			if file == "" {
				file = cfg.SeedFile
			}
			f, err := seed.Load(file)
			if err != nil {
				return err
			}
			res, err := seed.Apply(ctx, result.Store, f)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "inserted %s\n", res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file (default: SEED_FILE or the built-in seed)")
	return cmd
}

func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	cmd.AddCommand(newUserListCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	var in struct {
		username, name, role, rate, password string
	}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long: `Create an account. The password is read from --password or, when
omitted, from the BOTTEGA_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := in.password
			if password == "" {
				password = os.Getenv("BOTTEGA_PASSWORD")
			}
			if password == "" {
				return errors.New("no password: pass --password or set BOTTEGA_PASSWORD")
			}
			rate, err := core.ParseMoney(in.rate)
			if err != nil {
				return fmt.Errorf("invalid --rate %q: %w", in.rate, err)
			}
			name := in.name
			if name == "" {
				name = in.username
			}

			ctx := cmd.Context()
			result, _, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer result.Cleanup()

			u, err := services.NewLedger(result.Store).CreateUser(ctx, operator, services.UserInput{
				Username:   in.username,
				Password:   password,
				Name:       name,
				Role:       core.Role(in.role),
				HourlyRate: rate,
			})
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), u, func(w io.Writer) {
				fmt.Fprintf(w, "created user %d %s (%s)\n", u.ID, u.Username, u.Role)
			})
		},
	}
	cmd.Flags().StringVarP(&in.username, "username", "u", "", "login name")
	cmd.Flags().StringVar(&in.name, "name", "", "display name (default: username)")
	cmd.Flags().StringVar(&in.role, "role", string(core.RoleWorker), "admin, shift_manager or worker")
	cmd.Flags().StringVar(&in.rate, "rate", "0", "hourly rate in euros")
	cmd.Flags().StringVar(&in.password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newUserListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			result, _, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer result.Cleanup()

			users, err := services.NewLedger(result.Store).ListUsers(ctx, operator)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), users, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tROLE\tRATE")
				for _, u := range users {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Name, u.Role, u.HourlyRate)
				}
				tw.Flush()
			})
		},
	}
}

type monthFlags struct {
	year, month int
}

func (m *monthFlags) register(cmd *cobra.Command) {
	now := time.Now()
	cmd.Flags().IntVar(&m.year, "year", now.Year(), "year")
	cmd.Flags().IntVar(&m.month, "month", int(now.Month()), "month (1-12)")
}

func (m *monthFlags) validate() error {
	if m.month < 1 || m.month > 12 {
		return fmt.Errorf("invalid --month %d: must be between 1 and 12", m.month)
	}
	return nil
}

func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	var period monthFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a month's figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := period.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			result, _, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer result.Cleanup()

			s, err := aggregate.New(result.Store).ComputeMonthlySummary(ctx, period.year, period.month)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), s, func(w io.Writer) { writeSummary(w, s) })
		},
	}
	period.register(cmd)
	return cmd
}

func writeSummary(w io.Writer, s core.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%04d-%02d (%s to %s)\n", s.Year, s.Month, s.From, s.To)
	rows := []struct {
		label string
		value string
	}{
		{"Revenue", s.TotalRevenue.String()},
		{"Supplier expenses", s.SupplierExpenses.String()},
		{"Fixed expenses", s.FixedExpenses.String()},
		{"Operational expenses", s.OperationalExpenses.String()},
		{"Labor costs", s.LaborCosts.String()},
		{"Total expenses", s.TotalExpenses.String()},
		{"Net profit", s.NetProfit.String()},
		{"Labor hours", s.LaborHours.StringFixed(2)},
		{"Product cost %", s.ProductCostPercent.StringFixed(2)},
		{"Labor cost %", s.LaborCostPercent.StringFixed(2)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t\n", r.label, r.value)
	}
	tw.Flush()

	if len(s.RevenueByCategory) > 0 {
		fmt.Fprintln(w, "\nRevenue by category")
		for _, c := range s.RevenueByCategory {
			fmt.Fprintf(w, "  %-32s %s\n", c.Name, c.Total)
		}
	}
	if s.Target.Target != nil {
		fmt.Fprintf(w, "\nTarget %s: product cost %s, labor cost %s\n",
			s.Target.Target.RevenueTarget,
			s.Target.ProductCostStatus,
			s.Target.LaborCostStatus)
	}
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var period monthFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a month's summary row to the spreadsheet",
		Long: `Recompute a month and write its row to Google Sheets, as the worker
does after a ledger change. Needs GOOGLE_SPREADSHEET_ID and credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := period.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			result, cfg, err := rootOpts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer result.Cleanup()
			if !cfg.SheetsEnabled() {
				return errors.New("export needs GOOGLE_SPREADSHEET_ID")
			}

			writer, err := backend.NewFactory(rootOpts.logger(cmd).Logger).CreateSummaryWriter(ctx, backend.Config{SheetsEnabled: true})
			if err != nil {
				return err
			}
			exporter := worker.NewExportWorker(aggregate.New(result.Store), writer)
			if err := exporter.ExportMonth(ctx, period.year, period.month); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %04d-%02d\n", period.year, period.month)
			return nil
		},
	}
	period.register(cmd)
	return cmd
}
