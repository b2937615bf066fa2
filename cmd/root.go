// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movie-harvester",
		Short: "Harvests movie releases from forum sources into Postgres",
		Long: `movie-harvester walks configured forum categories, parses release
titles into structured records, enriches them with TMDB/OMDB metadata and
persists them with their download variants. Runs are idempotent: a source
locator is never ingested twice.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only)")

	cmd.AddCommand(newBulkCmd())
	cmd.AddCommand(newIncrementalCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBackfillCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so in-flight batches can flush before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
