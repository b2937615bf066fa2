package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/app"
	"github.com/filmvault/movie-harvester/internal/backfill"
)

func newBackfillCmd() *cobra.Command {
	var opts backfill.Options

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-enriches stored records with full TMDB metadata",
		Long: `Revisits records whose poster or backdrop is missing and upgrades them
with full TMDB lookups. Already-populated fields are kept unless
--overwrite is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.TMDB == nil {
				return errors.New("backfill requires providers.tmdb_token")
			}

			b := backfill.New(a.Store, a.TMDB, opts, a.Logger)
			summary, err := b.Run(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Logger.Info("backfill done",
				zap.Int("processed", summary.Processed),
				zap.Int("updated", summary.Updated),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "revisit every record, not only those missing artwork")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace already-populated provider fields")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max records to process (0 = unlimited)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 3, "concurrent provider lookups")

	return cmd
}
