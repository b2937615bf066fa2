// Package enrich resolves external movie metadata from TMDB and OMDB.
//
// TMDB is authoritative: when it returns a poster the OMDB answer only
// fills in fields TMDB left empty. When TMDB finds nothing usable, OMDB
// stands alone. Lookups are memoized for the lifetime of the enricher, so
// a multi-variant release parsed to the same (title, year) costs one set
// of provider calls per run.
package enrich

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/media"
	"github.com/filmvault/movie-harvester/internal/metrics"
)

// Enricher implements media.Enricher over the two providers. Either
// provider may be nil when unconfigured; enrichment then degrades rather
// than fails.
type Enricher struct {
	tmdb   *TMDB
	omdb   *OMDB
	memo   *gocache.Cache
	logger *zap.Logger
}

// New builds an Enricher. The memo cache never expires; callers build one
// enricher per run.
func New(tmdb *TMDB, omdb *OMDB, logger *zap.Logger) *Enricher {
	return &Enricher{
		tmdb:   tmdb,
		omdb:   omdb,
		memo:   gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

// Enrich resolves metadata for a (title, year) pair. It never returns an
// error: provider failures are logged and yield whatever the other
// provider produced, possibly nothing.
func (e *Enricher) Enrich(ctx context.Context, title string, year int) media.Enrichment {
	key := fmt.Sprintf("full|%s|%d", title, year)
	if cached, ok := e.memo.Get(key); ok {
		return cached.(media.Enrichment)
	}

	primary := e.fromTMDB(ctx, title, year)

	var result media.Enrichment
	if primary.PosterURL != "" {
		// TMDB hit: pull OMDB for the textual fields TMDB is weak on,
		// but let TMDB win wherever both answered.
		result = merge(primary, e.fromOMDB(ctx, title, year))
	} else {
		result = e.fromOMDB(ctx, title, year)
	}

	e.memo.Set(key, result, gocache.NoExpiration)
	return result
}

// EnrichLight resolves only the TMDB side, skipping OMDB entirely. Bulk
// ingestion uses this to keep provider traffic proportional to volume.
func (e *Enricher) EnrichLight(ctx context.Context, title string, year int) media.Enrichment {
	key := fmt.Sprintf("light|%s|%d", title, year)
	if cached, ok := e.memo.Get(key); ok {
		return cached.(media.Enrichment)
	}
	result := e.fromTMDB(ctx, title, year)
	e.memo.Set(key, result, gocache.NoExpiration)
	return result
}

func (e *Enricher) fromTMDB(ctx context.Context, title string, year int) media.Enrichment {
	if e.tmdb == nil {
		return media.Enrichment{}
	}
	r, err := e.tmdb.Lookup(ctx, title, year)
	if err != nil {
		metrics.ObserveEnrichment("tmdb", "error")
		e.logger.Warn("tmdb lookup failed", zap.String("title", title), zap.Error(err))
		return media.Enrichment{}
	}
	if r.Empty() {
		metrics.ObserveEnrichment("tmdb", "miss")
	} else {
		metrics.ObserveEnrichment("tmdb", "hit")
	}
	return r
}

func (e *Enricher) fromOMDB(ctx context.Context, title string, year int) media.Enrichment {
	if e.omdb == nil {
		return media.Enrichment{}
	}
	r, err := e.omdb.Lookup(ctx, title, year)
	if err != nil {
		metrics.ObserveEnrichment("omdb", "error")
		e.logger.Warn("omdb lookup failed", zap.String("title", title), zap.Error(err))
		return media.Enrichment{}
	}
	if r.Empty() {
		metrics.ObserveEnrichment("omdb", "miss")
	} else {
		metrics.ObserveEnrichment("omdb", "hit")
	}
	return r
}

// merge overlays secondary onto primary: primary's non-zero fields win.
func merge(primary, secondary media.Enrichment) media.Enrichment {
	out := primary
	if out.Rating == 0 {
		out.Rating = secondary.Rating
	}
	if out.Synopsis == "" {
		out.Synopsis = secondary.Synopsis
	}
	if out.Director == "" {
		out.Director = secondary.Director
	}
	if out.Cast == "" {
		out.Cast = secondary.Cast
	}
	if out.Runtime == 0 {
		out.Runtime = secondary.Runtime
	}
	if out.PosterURL == "" {
		out.PosterURL = secondary.PosterURL
	}
	if out.BackdropURL == "" {
		out.BackdropURL = secondary.BackdropURL
	}
	if len(out.Genres) == 0 {
		out.Genres = secondary.Genres
	}
	return out
}
