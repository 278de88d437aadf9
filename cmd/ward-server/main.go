package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/donka/ward/internal/config"
	"github.com/donka/ward/internal/domain/dashboard"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/platform/auth"
	"github.com/donka/ward/internal/platform/db"
	"github.com/donka/ward/internal/platform/export"
	"github.com/donka/ward/internal/platform/seed"
	"github.com/donka/ward/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ward-server",
		Short: "Orthopedic ward manager API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(hashPassphraseCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ward API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// withApp loads the configuration, opens the ward (restoring the snapshot on
// the memory backend) and hands it to fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadSnapshot(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	openMigrator := func(cmd *cobra.Command) (*db.Migrator, func(), string, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, "", err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, "", fmt.Errorf("DATABASE_URL is required for migrations")
		}
		schema, _ := cmd.Flags().GetString("schema")
		if schema == "" {
			schema = cfg.DBSchema
		}
		pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, "", err
		}
		return db.NewMigrator(pool, migrations.Files, schema), pool.Close, schema, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, schema, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closePool()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema for migrations (default DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, schema, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema for migrations (default DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo inventory (or a YAML seed file) into the ward",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return withApp(func(ctx context.Context, a *app) error {
				if file == "" {
					file = a.cfg.SeedFile
				}
				if a.cfg.StoreBackend == config.StoreMemory && a.cfg.SnapshotDir == "" {
					return fmt.Errorf("seeding the memory backend needs SNAPSHOT_DIR to keep the result")
				}
				f, err := seed.Load(file)
				if err != nil {
					return err
				}
				res, err := seed.Apply(ctx, f, seed.Services{Patients: a.patients, Ledger: a.ledger, Stock: a.stock}, a.logger)
				if err != nil {
					return err
				}
				if err := a.saveSnapshot(ctx); err != nil {
					return err
				}
				fmt.Printf("Seeded %d stock item(s), %d patient(s), %d transaction(s); %d skipped.\n",
					res.Stock, res.Patients, res.Transactions, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().String("file", "", "YAML seed file (default SEED_FILE, then the built-in inventory)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ward tables as CSV files or an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			xlsx, _ := cmd.Flags().GetString("xlsx")
			if dir == "" && xlsx == "" {
				return fmt.Errorf("one of --dir or --xlsx is required")
			}
			return withApp(func(ctx context.Context, a *app) error {
				if dir != "" {
					if err := a.ward.SaveDir(ctx, dir); err != nil {
						return err
					}
					fmt.Printf("Wrote %s, %s and %s to %s\n",
						export.PatientsFile, export.TransactionsFile, export.StockFile, dir)
				}
				if xlsx != "" {
					if err := writeWorkbookFile(ctx, a.ward, xlsx); err != nil {
						return err
					}
					fmt.Printf("Wrote %s\n", xlsx)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("dir", "", "Directory receiving patients.csv, transactions.csv and stock.csv")
	cmd.Flags().String("xlsx", "", "Path of the XLSX workbook to write")
	return cmd
}

func writeWorkbookFile(ctx context.Context, ward *export.Ward, path string) error {
	snap, err := ward.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteWorkbook(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the ward dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, _ := cmd.Flags().GetString("lang")
			tag, err := language.Parse(lang)
			if err != nil {
				return fmt.Errorf("invalid --lang %q: %w", lang, err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				sum, err := a.dashboard.Summary(ctx)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), message.NewPrinter(tag), sum, a.cfg.Currency)
				return nil
			})
		},
	}
	cmd.Flags().String("lang", "fr", "Language used to format amounts")
	return cmd
}

// formatAmount renders a whole-unit amount with the printer's digit grouping.
func formatAmount(p *message.Printer, amount float64, currency string) string {
	return p.Sprintf("%d %s", int64(math.Round(amount)), currency)
}

func printSummary(w io.Writer, p *message.Printer, sum *dashboard.Summary, currency string) {
	fmt.Fprintf(w, "Active patients      %d / %d\n", sum.ActivePatients, sum.TotalPatients)
	fmt.Fprintf(w, "Complications        %d\n", sum.Complications)
	fmt.Fprintf(w, "Income               %s\n", formatAmount(p, sum.Income, currency))
	fmt.Fprintf(w, "Expense              %s\n", formatAmount(p, sum.Expense, currency))
	fmt.Fprintf(w, "Balance              %s\n", formatAmount(p, sum.Balance, currency))
	fmt.Fprintf(w, "Stock alerts         %d", sum.StockAlerts)
	if len(sum.AlertItems) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(sum.AlertItems, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "\nProcedures performed")
	for _, proc := range patient.Procedures {
		fmt.Fprintf(w, "  %-24s %d\n", proc.Display(), sum.Procedures[proc])
	}
	fmt.Fprintln(w, "\nPatients by status")
	for _, st := range patient.Statuses {
		fmt.Fprintf(w, "  %-24s %d\n", st, sum.ByStatus[st])
	}
}

func hashPassphraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passphrase [passphrase]",
		Short: "Print the bcrypt hash to store in WARD_PASSPHRASE_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, err := readPassphrase(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.HashPassphrase(passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readPassphrase takes the argument when given, otherwise the first line of in.
func readPassphrase(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
