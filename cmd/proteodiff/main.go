package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"proteodiff/adapters/postgres"
	"proteodiff/internal/config"
	"proteodiff/internal/errors"
	"proteodiff/internal/logger"
	"proteodiff/internal/migration"
	"proteodiff/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errors.GetCode(err), err)
		os.Exit(1)
	}
}

// cli carries state shared by subcommands after the root pre-run
type cli struct {
	cfg    *config.Config
	stdout io.Writer
}

func newRootCmd() *cobra.Command {
	app := &cli{stdout: os.Stdout}
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "proteodiff",
		Short: "Differential abundance testing for proteomics matrices",
		Long: `proteodiff fits a per-feature linear model, moderates the variances with an
empirical Bayes prior, adjusts p-values with Benjamini-Hochberg and classifies
every feature as Increased, Decreased or Not significant.

Settings come from PD_* environment variables (optionally from a .env file)
and can be overridden by flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return errors.IOError(envFile, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Component: "proteodiff"})
			app.cfg = cfg
			if cmd.OutOrStdout() != os.Stdout {
				app.stdout = cmd.OutOrStdout()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")

	rootCmd.AddCommand(
		newAnalyzeCmd(app),
		newPivotCmd(app),
		newRunsCmd(app),
	)
	return rootCmd
}

// openRepository connects to DATABASE_URL and applies migrations when
// enabled. The returned close func is never nil.
func (c *cli) openRepository(ctx context.Context) (ports.ResultRepository, func(), error) {
	if !c.cfg.Database.Enabled() {
		return nil, func() {}, errors.ConfigInvalid("DATABASE_URL is required for persistence")
	}
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.Database.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(connectCtx, c.cfg.Database.URL)
	if err != nil {
		return nil, func() {}, err
	}
	if c.cfg.Database.Migrate {
		if err := migration.NewRunner().Run(ctx, db); err != nil {
			db.Close()
			return nil, func() {}, errors.DatabaseError("migration failed", err)
		}
	}
	return postgres.NewResultRepository(db), closer(db), nil
}

func closer(db *sqlx.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Named("postgres").Warn().Err(err).Msg("close failed")
		}
	}
}

// createOutput opens path for writing; "-" and "" mean stdout
func (c *cli) createOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return c.stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errors.IOError(dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.IOError(path, err)
	}
	return f, f.Close, nil
}
