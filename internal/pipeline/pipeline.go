// Package pipeline coordinates harvest, parse, enrich and persistence.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/harvest"
	"github.com/filmvault/movie-harvester/internal/media"
	"github.com/filmvault/movie-harvester/internal/metrics"
	"github.com/filmvault/movie-harvester/internal/parser"
)

// Options tunes the run modes.
type Options struct {
	Workers   int // concurrent item builders, default 3
	BatchSize int // items per insert transaction, default 50

	// Randomized pacing before each detail-page fetch, per mode.
	// A zero max disables the pause.
	BulkDelayMin        time.Duration
	BulkDelayMax        time.Duration
	IncrementalDelayMin time.Duration
	IncrementalDelayMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	return o
}

// Pipeline wires the harvester, the topic fetcher, the enricher and the
// persistence gateway into the two run modes. The coordinator goroutine is
// the sole committer; workers only build items.
type Pipeline struct {
	harvester  *harvest.Harvester
	fetcher    media.Fetcher
	enricher   media.Enricher
	gateway    media.Gateway
	categories []media.CategorySource
	opts       Options
	logger     *zap.Logger
}

// New builds a Pipeline.
func New(
	h *harvest.Harvester,
	fetcher media.Fetcher,
	enricher media.Enricher,
	gateway media.Gateway,
	categories []media.CategorySource,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		harvester:  h,
		fetcher:    fetcher,
		enricher:   enricher,
		gateway:    gateway,
		categories: categories,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// RunBulk walks every category to its end, skips already-persisted
// locators, builds items concurrently and commits them in batches. A
// failed batch rolls back whole and the run moves on; cancellation
// flushes the in-memory batch before returning.
func (p *Pipeline) RunBulk(ctx context.Context) (media.Summary, error) {
	runLog := p.logger.With(zap.String("run_id", uuid.NewString()), zap.String("mode", "bulk"))
	runLog.Info("bulk run starting", zap.Int("categories", len(p.categories)))

	topics := p.harvester.HarvestAll(ctx, p.categories)

	known, err := p.gateway.ListAllLocators(ctx)
	if err != nil {
		return media.Summary{}, fmt.Errorf("load persisted locators: %w", err)
	}
	fresh := topics[:0]
	for _, t := range topics {
		if _, ok := known[t.Locator]; !ok {
			fresh = append(fresh, t)
		}
	}
	runLog.Info("harvest complete",
		zap.Int("harvested", len(topics)),
		zap.Int("new", len(fresh)),
	)

	jobs := make(chan media.TopicRef)
	results := make(chan *media.Item)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for topic := range jobs {
				item, err := p.buildItem(ctx, topic, false)
				if err != nil {
					runLog.Warn("item build failed, dropping",
						zap.String("locator", topic.Locator),
						zap.Error(err),
					)
					continue
				}
				select {
				case results <- item:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range fresh {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	summary := media.Summary{}
	batch := make([]*media.Item, 0, p.opts.BatchSize)
	for item := range results {
		summary.Processed++
		batch = append(batch, item)
		if len(batch) >= p.opts.BatchSize {
			summary.Added += p.flush(ctx, runLog, batch)
			batch = batch[:0]
		}
	}
	// Remaining items are flushed even on cancellation: work already done
	// should survive an interrupt.
	summary.Added += p.flush(context.WithoutCancel(ctx), runLog, batch)

	runLog.Info("bulk run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("added", summary.Added),
	)
	return summary, ctx.Err()
}

// RunIncremental scans page 1 of every category, stops at the first known
// locator per category, fully enriches each new item and commits it
// immediately.
func (p *Pipeline) RunIncremental(ctx context.Context) (media.Summary, error) {
	runLog := p.logger.With(zap.String("run_id", uuid.NewString()), zap.String("mode", "incremental"))
	runLog.Info("incremental run starting")

	known, err := p.gateway.ListAllLocators(ctx)
	if err != nil {
		return media.Summary{}, fmt.Errorf("load persisted locators: %w", err)
	}

	topics := p.harvester.HarvestUntilKnown(ctx, p.categories, known)
	runLog.Info("harvest complete", zap.Int("new", len(topics)))

	summary := media.Summary{}
	for _, topic := range topics {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Processed++
		item, err := p.buildItem(ctx, topic, true)
		if err != nil {
			runLog.Warn("item build failed, dropping",
				zap.String("locator", topic.Locator),
				zap.Error(err),
			)
			continue
		}
		inserted, err := p.gateway.InsertOne(ctx, item)
		if err != nil {
			runLog.Warn("insert failed, dropping",
				zap.String("locator", topic.Locator),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			summary.Added++
			metrics.ObserveInserted("incremental", 1)
			runLog.Info("record added",
				zap.String("title", item.Record.Title),
				zap.String("category", topic.CategoryTag),
			)
		}
	}

	runLog.Info("incremental run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("added", summary.Added),
	)
	return summary, nil
}

// buildItem runs fetch, parse, detail extraction and enrichment for one
// topic. Incremental runs enrich fully and substitute the current year for
// titles without one; bulk runs enrich light and store the year as absent.
// The substituted year is storage-only: enrichment stays year-less so a
// guessed year cannot steer the provider match.
func (p *Pipeline) buildItem(ctx context.Context, topic media.TopicRef, full bool) (*media.Item, error) {
	if full {
		pause(ctx, p.opts.IncrementalDelayMin, p.opts.IncrementalDelayMax)
	} else {
		pause(ctx, p.opts.BulkDelayMin, p.opts.BulkDelayMax)
	}
	body, err := p.fetcher.Get(ctx, topic.Locator)
	if err != nil {
		return nil, fmt.Errorf("fetch topic: %w", err)
	}
	detail, err := harvest.ExtractDetail(body)
	if err != nil {
		return nil, err
	}

	desc := parser.Parse(topic.RawTitle)

	var year *int
	if desc.Year != 0 {
		y := desc.Year
		year = &y
	} else if full {
		y := time.Now().Year()
		year = &y
	}

	var e media.Enrichment
	if full {
		e = p.enricher.Enrich(ctx, desc.Title, desc.Year)
	} else {
		e = p.enricher.EnrichLight(ctx, desc.Title, desc.Year)
	}

	posterURL := e.PosterURL
	if posterURL == "" {
		posterURL = detail.PosterURL
	}
	var externalID *int
	if e.ExternalID != 0 {
		id := e.ExternalID
		externalID = &id
	}
	var runtime *int
	if e.Runtime != 0 {
		rt := e.Runtime
		runtime = &rt
	}

	languages := desc.Languages
	if !contains(languages, topic.CategoryTag) {
		languages = append(append([]string(nil), languages...), topic.CategoryTag)
	}

	return &media.Item{
		Record: media.Record{
			Title:         desc.Title,
			Year:          year,
			Synopsis:      e.Synopsis,
			Director:      e.Director,
			Cast:          e.Cast,
			PosterURL:     posterURL,
			BackdropURL:   e.BackdropURL,
			Rating:        e.Rating,
			ExternalID:    externalID,
			SourceLocator: topic.Locator,
			SourceFormat:  desc.SourceFormat,
			Runtime:       runtime,
		},
		Genres:    e.Genres,
		Languages: languages,
		Variants:  parser.BuildDownloadVariants(detail.Magnets, desc),
	}, nil
}

// flush commits one batch. Failures roll back the whole batch and are
// logged, not returned: the run continues with the next batch.
func (p *Pipeline) flush(ctx context.Context, log *zap.Logger, batch []*media.Item) int {
	if len(batch) == 0 {
		return 0
	}
	added, err := p.gateway.InsertBatch(ctx, batch)
	if err != nil {
		log.Error("batch insert failed, batch dropped",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return 0
	}
	metrics.ObserveInserted("bulk", added)
	log.Info("batch committed",
		zap.Int("batch_size", len(batch)),
		zap.Int("added", added),
	)
	return added
}

func pause(ctx context.Context, low, high time.Duration) {
	if high <= 0 {
		return
	}
	delay := low
	if spread := high - low; spread > 0 {
		delay += time.Duration(rand.Int64N(int64(spread)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
