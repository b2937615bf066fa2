// Package backfill re-enriches stored records whose artwork is missing.
//
// Bulk ingestion runs light enrichment only, so records routinely land
// with a forum-hosted poster or none at all. The backfill revisits them
// with full TMDB lookups and upgrades what the first pass left behind.
package backfill

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/media"
)

const tmdbImageHost = "https://image.tmdb.org/"

// Store is the persistence surface the backfill needs.
type Store interface {
	ListForBackfill(ctx context.Context, includeComplete bool, limit int) ([]media.Record, error)
	UpdateEnrichment(ctx context.Context, id int64, e media.Enrichment) error
}

// Provider performs one full metadata lookup. The TMDB client implements it.
type Provider interface {
	LookupFull(ctx context.Context, title string, year int) (media.Enrichment, error)
}

// Options tunes a backfill run.
type Options struct {
	All       bool // revisit every record, not just those missing artwork
	Overwrite bool // replace provider fields even when already populated
	Limit     int  // max records to process, 0 = unlimited
	Workers   int  // concurrent lookups, default 3
}

// Summary reports the outcome of a backfill run.
type Summary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
}

// Backfill drives the re-enrichment run.
type Backfill struct {
	store    Store
	provider Provider
	opts     Options
	logger   *zap.Logger
}

// New builds a Backfill.
func New(store Store, provider Provider, opts Options, logger *zap.Logger) *Backfill {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	return &Backfill{
		store:    store,
		provider: provider,
		opts:     opts,
		logger:   logger,
	}
}

// Run lists candidates and re-enriches them concurrently. Every record is
// committed individually as soon as its lookup lands, so an interrupt
// loses at most the in-flight lookups.
func (b *Backfill) Run(ctx context.Context) (Summary, error) {
	records, err := b.store.ListForBackfill(ctx, b.opts.All, b.opts.Limit)
	if err != nil {
		return Summary{}, err
	}
	b.logger.Info("backfill starting",
		zap.Int("candidates", len(records)),
		zap.Bool("all", b.opts.All),
		zap.Bool("overwrite", b.opts.Overwrite),
	)

	jobs := make(chan media.Record)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary Summary
	)
	for i := 0; i < b.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				updated := b.process(ctx, rec)
				mu.Lock()
				summary.Processed++
				if updated {
					summary.Updated++
				}
				mu.Unlock()
			}
		}()
	}

	for _, rec := range records {
		select {
		case jobs <- rec:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return summary, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	b.logger.Info("backfill finished",
		zap.Int("processed", summary.Processed),
		zap.Int("updated", summary.Updated),
	)
	return summary, ctx.Err()
}

func (b *Backfill) process(ctx context.Context, rec media.Record) bool {
	year := 0
	if rec.Year != nil {
		year = *rec.Year
	}
	fresh, err := b.provider.LookupFull(ctx, rec.Title, year)
	if err != nil {
		b.logger.Warn("lookup failed, skipping",
			zap.String("title", rec.Title),
			zap.Error(err),
		)
		return false
	}
	if fresh.Empty() {
		return false
	}

	merged, changed := b.merge(rec, fresh)
	if !changed {
		return false
	}
	if err := b.store.UpdateEnrichment(ctx, rec.ID, merged); err != nil {
		b.logger.Warn("update failed, skipping",
			zap.String("title", rec.Title),
			zap.Error(err),
		)
		return false
	}
	b.logger.Info("record backfilled",
		zap.Int64("id", rec.ID),
		zap.String("title", rec.Title),
	)
	return true
}

// merge decides the final enrichment for a record. Images are replaced
// when absent or not provider-hosted; the textual fields only fill gaps.
// Overwrite makes the fresh lookup win everywhere it has data.
func (b *Backfill) merge(rec media.Record, fresh media.Enrichment) (media.Enrichment, bool) {
	existing := media.Enrichment{
		Rating:      rec.Rating,
		Synopsis:    rec.Synopsis,
		Director:    rec.Director,
		Cast:        rec.Cast,
		PosterURL:   rec.PosterURL,
		BackdropURL: rec.BackdropURL,
	}
	if rec.ExternalID != nil {
		existing.ExternalID = *rec.ExternalID
	}
	if rec.Runtime != nil {
		existing.Runtime = *rec.Runtime
	}

	out := existing
	replaceImage := func(current, candidate string) string {
		if candidate == "" {
			return current
		}
		if b.opts.Overwrite || current == "" || !strings.HasPrefix(current, tmdbImageHost) {
			return candidate
		}
		return current
	}
	out.PosterURL = replaceImage(out.PosterURL, fresh.PosterURL)
	out.BackdropURL = replaceImage(out.BackdropURL, fresh.BackdropURL)

	fill := func(current, candidate string) string {
		if candidate != "" && (b.opts.Overwrite || current == "") {
			return candidate
		}
		return current
	}
	out.Synopsis = fill(out.Synopsis, fresh.Synopsis)
	out.Director = fill(out.Director, fresh.Director)
	out.Cast = fill(out.Cast, fresh.Cast)
	if fresh.Rating != 0 && (b.opts.Overwrite || out.Rating == 0) {
		out.Rating = fresh.Rating
	}
	if fresh.Runtime != 0 && (b.opts.Overwrite || out.Runtime == 0) {
		out.Runtime = fresh.Runtime
	}
	if fresh.ExternalID != 0 && (b.opts.Overwrite || out.ExternalID == 0) {
		out.ExternalID = fresh.ExternalID
	}

	changed := out.PosterURL != existing.PosterURL ||
		out.BackdropURL != existing.BackdropURL ||
		out.Synopsis != existing.Synopsis ||
		out.Director != existing.Director ||
		out.Cast != existing.Cast ||
		out.Rating != existing.Rating ||
		out.Runtime != existing.Runtime ||
		out.ExternalID != existing.ExternalID
	return out, changed
}
