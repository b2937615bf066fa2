// Package store provides Postgres-backed persistence for harvested media.
//
// Expected schema, with movies.source_url carrying a UNIQUE constraint:
//
//	movies(id, title, release_year, synopsis, director, cast_members,
//	       poster_url, backdrop_url, rating, external_id, source_url,
//	       source_format, runtime, created_at)
//	genres(id, name UNIQUE) / languages(id, name UNIQUE)
//	movie_genres(movie_id, genre_id) / movie_languages(movie_id, language_id)
//	movie_downloads(movie_id, quality, codec, audio_format,
//	                audio_languages, file_size, link, source_type)
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/media"
	"github.com/filmvault/movie-harvester/internal/metrics"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// queryExecer is the subset shared by the pool and an open transaction, so
// the insert helpers work in both contexts.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements media.Gateway on top of Postgres. Genre and language
// ids are cached once committed, so repeated names across items and
// batches skip the upsert round-trip. Ids resolved inside a transaction
// join the shared cache only after commit; a rollback leaves no stale ids.
type Store struct {
	pool   dbPool
	logger *zap.Logger

	mu       sync.Mutex
	genreIDs map[string]int64
	langIDs  map[string]int64
}

// New creates a Store backed by a new connection pool.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, logger), nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(pool, logger), nil
}

func newStore(pool dbPool, logger *zap.Logger) *Store {
	return &Store{
		pool:     pool,
		logger:   logger,
		genreIDs: make(map[string]int64),
		langIDs:  make(map[string]int64),
	}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const recordColumns = `id, title, release_year, synopsis, director, cast_members,
	poster_url, backdrop_url, rating, external_id, source_url, source_format,
	runtime, created_at`

// FindByLocator returns the stored record for a source locator, or nil when
// none exists.
func (s *Store) FindByLocator(ctx context.Context, locator string) (*media.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM movies WHERE source_url = $1`, locator)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by locator: %w", err)
	}
	return rec, nil
}

// ListAllLocators returns every persisted source locator in a single query.
// The pipeline uses this as its pre-insert dedup gate.
func (s *Store) ListAllLocators(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_url FROM movies`)
	if err != nil {
		return nil, fmt.Errorf("list locators: %w", err)
	}
	defer rows.Close()

	locators := make(map[string]struct{})
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan locator: %w", err)
		}
		locators[loc] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locators: %w", err)
	}
	return locators, nil
}

// InsertBatch persists items in one transaction. Each locator is re-checked
// inside the transaction; already-present items are skipped without error.
// Any failure rolls back the whole batch.
func (s *Store) InsertBatch(ctx context.Context, items []*media.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Transaction-local views of the id caches. New ids land here first
	// and join the shared cache only if the batch commits.
	txGenres := s.snapshotIDs(s.genreIDs)
	txLangs := s.snapshotIDs(s.langIDs)

	inserted := 0
	for _, item := range items {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM movies WHERE source_url = $1)`,
			item.Record.SourceLocator,
		).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("re-check locator %q: %w", item.Record.SourceLocator, err)
		}
		if exists {
			continue
		}
		if err := s.insertItem(ctx, tx, item, txGenres, txLangs); err != nil {
			return 0, fmt.Errorf("insert %q: %w", item.Record.Title, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	s.promoteIDs(txGenres, txLangs)
	metrics.ObserveBatchFlush(time.Since(start))
	return inserted, nil
}

// InsertOne persists a single item through the same transactional path and
// reports whether it was actually inserted.
func (s *Store) InsertOne(ctx context.Context, item *media.Item) (bool, error) {
	n, err := s.InsertBatch(ctx, []*media.Item{item})
	return n == 1, err
}

func (s *Store) insertItem(ctx context.Context, tx pgx.Tx, item *media.Item, genreIDs, langIDs map[string]int64) error {
	rec := &item.Record
	err := tx.QueryRow(ctx, `
INSERT INTO movies (
	title, release_year, synopsis, director, cast_members,
	poster_url, backdrop_url, rating, external_id, source_url,
	source_format, runtime
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id`,
		rec.Title, rec.Year, rec.Synopsis, rec.Director, rec.Cast,
		rec.PosterURL, rec.BackdropURL, rec.Rating, rec.ExternalID,
		rec.SourceLocator, rec.SourceFormat, rec.Runtime,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}

	for _, name := range item.Genres {
		genreID, err := resolveRef(ctx, tx, "genres", name, genreIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO movie_genres (movie_id, genre_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			rec.ID, genreID); err != nil {
			return fmt.Errorf("link genre %q: %w", name, err)
		}
	}
	for _, name := range item.Languages {
		langID, err := resolveRef(ctx, tx, "languages", name, langIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO movie_languages (movie_id, language_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			rec.ID, langID); err != nil {
			return fmt.Errorf("link language %q: %w", name, err)
		}
	}
	for _, v := range item.Variants {
		if _, err := tx.Exec(ctx, `
INSERT INTO movie_downloads (
	movie_id, quality, codec, audio_format, audio_languages,
	file_size, link, source_type
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			rec.ID, v.Quality, v.Codec, v.AudioFormat, v.AudioLanguages,
			v.FileSize, v.Link, v.SourceType); err != nil {
			return fmt.Errorf("insert download variant: %w", err)
		}
	}
	return nil
}

// GetOrCreateGenre returns the id for a genre name, creating it if needed.
// Resolved ids are cached for the life of the Store.
func (s *Store) GetOrCreateGenre(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	id, ok := s.genreIDs[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	id, err := getOrCreate(ctx, s.pool, "genres", name)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.genreIDs[name] = id
	s.mu.Unlock()
	return id, nil
}

// GetOrCreateLanguage returns the id for a language name, creating it if
// needed. Resolved ids are cached for the life of the Store.
func (s *Store) GetOrCreateLanguage(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	id, ok := s.langIDs[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	id, err := getOrCreate(ctx, s.pool, "languages", name)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.langIDs[name] = id
	s.mu.Unlock()
	return id, nil
}

func (s *Store) snapshotIDs(cache map[string]int64) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(cache))
	for k, v := range cache {
		out[k] = v
	}
	return out
}

func (s *Store) promoteIDs(genres, langs map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range genres {
		s.genreIDs[k] = v
	}
	for k, v := range langs {
		s.langIDs[k] = v
	}
}

// resolveRef answers a name→id lookup from the transaction-local cache,
// falling back to the upsert and recording the new id in the cache.
func resolveRef(ctx context.Context, tx pgx.Tx, table, name string, ids map[string]int64) (int64, error) {
	if id, ok := ids[name]; ok {
		return id, nil
	}
	id, err := getOrCreate(ctx, tx, table, name)
	if err != nil {
		return 0, err
	}
	ids[name] = id
	return id, nil
}

// getOrCreate is a single-query upsert. The DO UPDATE no-op makes RETURNING
// yield the id on conflict as well.
func getOrCreate(ctx context.Context, q queryExecer, table, name string) (int64, error) {
	var id int64
	query := fmt.Sprintf(
		`INSERT INTO %s (name) VALUES ($1) ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`,
		table)
	if err := q.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("get or create %s %q: %w", table, name, err)
	}
	return id, nil
}

// ListForBackfill returns backfill candidates, oldest first. By default
// only records missing a poster or backdrop qualify; includeComplete
// widens the selection to every record. A limit of 0 means no limit.
func (s *Store) ListForBackfill(ctx context.Context, includeComplete bool, limit int) ([]media.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM movies`
	if !includeComplete {
		query += ` WHERE poster_url = '' OR backdrop_url = ''`
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list backfill candidates: %w", err)
	}
	defer rows.Close()

	var records []media.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list backfill candidates: %w", err)
	}
	return records, nil
}

// UpdateEnrichment rewrites the provider-sourced columns of one record.
func (s *Store) UpdateEnrichment(ctx context.Context, id int64, e media.Enrichment) error {
	var externalID *int
	if e.ExternalID != 0 {
		externalID = &e.ExternalID
	}
	var runtime *int
	if e.Runtime != 0 {
		runtime = &e.Runtime
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE movies SET
	synopsis = $2, director = $3, cast_members = $4, poster_url = $5,
	backdrop_url = $6, rating = $7, external_id = $8, runtime = $9
WHERE id = $1`,
		id, e.Synopsis, e.Director, e.Cast, e.PosterURL,
		e.BackdropURL, e.Rating, externalID, runtime)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update enrichment: record %d not found", id)
	}
	return nil
}

func scanRecord(row pgx.Row) (*media.Record, error) {
	var rec media.Record
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Year, &rec.Synopsis, &rec.Director,
		&rec.Cast, &rec.PosterURL, &rec.BackdropURL, &rec.Rating,
		&rec.ExternalID, &rec.SourceLocator, &rec.SourceFormat,
		&rec.Runtime, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
