package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"mototumen.org/internal/migrate"
	"mototumen.org/migrations"
)

type options struct {
	dsn            string
	migrationsPath string
	seedsPath      string
	timeout        time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply database migrations and seeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.dsn, "dsn", os.Getenv("MOTOTUMEN_PG_DSN"), "PostgreSQL DSN")
	flags.StringVar(&opts.migrationsPath, "migrations", "", "Directory of SQL migrations (defaults to the embedded set)")
	flags.StringVar(&opts.seedsPath, "seeds", "", "Directory of SQL seeds (defaults to the embedded set)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout")

	cmd.AddCommand(
		newStepCommand(opts, "up", "Apply all pending migrations", (*migrate.Manager).Up),
		newStepCommand(opts, "down", "Roll back the most recent migration", (*migrate.Manager).Down),
		newStepCommand(opts, "seed", "Apply seed files not yet applied", (*migrate.Manager).Seed),
		newStatusCommand(opts),
	)
	return cmd
}

func newStepCommand(opts *options, use, short string, step func(*migrate.Manager, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, mgr *migrate.Manager) error {
				if err := step(mgr, ctx); err != nil {
					return fmt.Errorf("migrate %s: %w", use, err)
				}
				return nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied migrations in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, mgr *migrate.Manager) error {
				history, err := mgr.Status(ctx)
				if err != nil {
					return fmt.Errorf("migrate status: %w", err)
				}
				for _, item := range history {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.Name, item.AppliedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func withManager(parent context.Context, opts *options, fn func(context.Context, *migrate.Manager) error) error {
	if opts.dsn == "" {
		return errors.New("missing DSN: provide via --dsn or MOTOTUMEN_PG_DSN")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	db, err := sql.Open("pgx", opts.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	return fn(ctx, migrate.NewManager(db, pickFS(opts.migrationsPath, migrations.Schema()), pickFS(opts.seedsPath, migrations.Seeds())))
}

func pickFS(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}
