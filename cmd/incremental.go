package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/app"
)

func newIncrementalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "incremental",
		Short: "Ingests releases newer than the last known topic per category",
		Long: `Scans only the first page of each category and stops at the first
already-persisted topic. New releases get full TMDB/OMDB enrichment and
are committed one by one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Pipeline.RunIncremental(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Logger.Info("incremental ingestion done",
				zap.Int("processed", summary.Processed),
				zap.Int("added", summary.Added),
			)
			return nil
		},
	}
}
