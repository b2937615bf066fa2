// Package app initializes and holds long-lived application services.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/config"
	"github.com/filmvault/movie-harvester/internal/enrich"
	"github.com/filmvault/movie-harvester/internal/fetch"
	"github.com/filmvault/movie-harvester/internal/harvest"
	"github.com/filmvault/movie-harvester/internal/logging"
	"github.com/filmvault/movie-harvester/internal/pipeline"
	"github.com/filmvault/movie-harvester/internal/store"
)

// App wires configuration, logging, persistence and the pipeline together.
// It is built once at startup and shared by every command.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *store.Store
	Fetcher  *fetch.Client
	TMDB     *enrich.TMDB
	Enricher *enrich.Enricher
	Pipeline *pipeline.Pipeline
}

// New loads configuration and initializes every service, failing fast when
// a critical dependency cannot be built.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing services",
		zap.Int("categories", len(cfg.Categories)),
		zap.Bool("tmdb", cfg.Providers.TMDBToken != ""),
		zap.Bool("omdb", cfg.Providers.OMDBKey != ""),
	)

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	fetcher := fetch.New(fetch.Config{
		MaxRetries: cfg.HTTP.MaxRetries,
		Timeout:    cfg.HTTPTimeout(),
		BaseDelay:  cfg.BackoffBase(),
		Referer:    cfg.Source.BaseURL,
	}, logger)

	tmdb := enrich.NewTMDB(cfg.Providers.TMDBToken, cfg.HTTPTimeout(), nil)
	omdb := enrich.NewOMDB(cfg.Providers.OMDBKey, cfg.HTTPTimeout(), nil)
	enricher := enrich.New(tmdb, omdb, logger)

	harvester := harvest.New(fetcher, harvest.Config{
		BaseURL:      cfg.Source.BaseURL,
		MaxPages:     cfg.Source.MaxPages,
		PageDelayMin: cfg.PageDelayMin(),
		PageDelayMax: cfg.PageDelayMax(),
	}, logger)

	pipe := pipeline.New(harvester, fetcher, enricher, st, cfg.Categories, pipeline.Options{
		Workers:             cfg.Pipeline.Workers,
		BatchSize:           cfg.Pipeline.BatchSize,
		BulkDelayMin:        cfg.BulkDelayMin(),
		BulkDelayMax:        cfg.BulkDelayMax(),
		IncrementalDelayMin: cfg.IncrementalDelayMin(),
		IncrementalDelayMax: cfg.IncrementalDelayMax(),
	}, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Fetcher:  fetcher,
		TMDB:     tmdb,
		Enricher: enricher,
		Pipeline: pipe,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
