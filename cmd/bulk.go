package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/app"
)

func newBulkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk",
		Short: "Walks every category to its end and ingests all new releases",
		Long: `Paginates every configured category until it is exhausted or the page
cap is reached, builds records concurrently with light enrichment, and
commits them in batches. Interrupting the run flushes the in-memory batch
first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Pipeline.RunBulk(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Logger.Info("bulk ingestion done",
				zap.Int("processed", summary.Processed),
				zap.Int("added", summary.Added),
			)
			return nil
		},
	}
}
