// Package commands implements the evervoicectl operator CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/evervoice/internal/app"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	databaseURL string
	verbose     bool

	versionInfo = struct {
		Version string
		Commit  string
	}{Version: "dev", Commit: "none"}
)

// SetVersion records build metadata for the version command.
func SetVersion(version, commit string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cfg := app.LoadConfig()

	cmd := &cobra.Command{
		Use:   "evervoicectl",
		Short: "Operator tools for the Evervoice backend",
		Long: `Operator tools for the Evervoice backend.

Applies the schema, grants tiers, inspects profiles and share tokens, and
issues user tokens for local testing. Data commands need DATABASE_URL or
--database-url.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(
		NewMigrateCmd(),
		NewTierCmd(),
		NewTokenCmd(cfg),
		NewProfileCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

var errNoDatabase = errors.New("DATABASE_URL or --database-url is required")

// openStore connects to Postgres and applies the schema. The returned close
// func releases the pool.
func openStore(ctx context.Context) (store.Records, func(), error) {
	if databaseURL == "" {
		return nil, nil, errNoDatabase
	}
	records, db, err := app.OpenRecords(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return records, func() { closePool(db) }, nil
}

func closePool(db *pgxpool.Pool) {
	if db != nil {
		db.Close()
	}
}

func logger() zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
