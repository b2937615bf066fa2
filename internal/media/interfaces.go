package media

import (
	"context"
)

// Gateway is the persistence boundary consumed by the pipeline. The store
// behind it owns a uniqueness constraint on the record locator, which is
// the correctness backstop when runs overlap.
type Gateway interface {
	// FindByLocator returns the stored record for a locator, or nil.
	FindByLocator(ctx context.Context, locator string) (*Record, error)
	// ListAllLocators returns every persisted locator in one query.
	ListAllLocators(ctx context.Context) (map[string]struct{}, error)
	// InsertBatch persists items in a single transaction, re-checking each
	// locator inside the transaction. On any failure the whole batch rolls
	// back and the error is returned; on success it returns the number of
	// items actually inserted (duplicates are skipped, not errors).
	InsertBatch(ctx context.Context, items []*Item) (int, error)
	// InsertOne persists a single item through the same transactional path.
	InsertOne(ctx context.Context, item *Item) (bool, error)
}

// Fetcher performs one retrying HTTP GET.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Enricher looks up external metadata for a (title, year) pair. A zero
// Enrichment is a valid answer; implementations never fail the caller.
type Enricher interface {
	Enrich(ctx context.Context, title string, year int) Enrichment
	EnrichLight(ctx context.Context, title string, year int) Enrichment
}
