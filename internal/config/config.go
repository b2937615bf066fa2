// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/filmvault/movie-harvester/internal/media"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Auth       AuthConfig             `mapstructure:"auth"`
	Source     SourceConfig           `mapstructure:"source"`
	HTTP       HTTPConfig             `mapstructure:"http"`
	Pipeline   PipelineConfig         `mapstructure:"pipeline"`
	Providers  ProvidersConfig        `mapstructure:"providers"`
	DB         DBConfig               `mapstructure:"db"`
	Logging    LoggingConfig          `mapstructure:"logging"`
	Categories []media.CategorySource `mapstructure:"categories"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig identifies the forum being harvested.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	MaxPages       int    `mapstructure:"max_pages"`
	PageDelayMinMs int    `mapstructure:"page_delay_min_ms"`
	PageDelayMaxMs int    `mapstructure:"page_delay_max_ms"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
}

// PipelineConfig governs worker fan-out, batching and detail-page pacing.
type PipelineConfig struct {
	Workers               int `mapstructure:"workers"`
	BatchSize             int `mapstructure:"batch_size"`
	BulkDelayMinMs        int `mapstructure:"bulk_delay_min_ms"`
	BulkDelayMaxMs        int `mapstructure:"bulk_delay_max_ms"`
	IncrementalDelayMinMs int `mapstructure:"incremental_delay_min_ms"`
	IncrementalDelayMaxMs int `mapstructure:"incremental_delay_max_ms"`
}

// ProvidersConfig holds metadata provider credentials. Empty values
// disable the corresponding provider.
type ProvidersConfig struct {
	TMDBToken string `mapstructure:"tmdb_token"`
	OMDBKey   string `mapstructure:"omdb_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultCategories lists the forum sections harvested when the config
// file does not override them.
func DefaultCategories() []media.CategorySource {
	return []media.CategorySource{
		{Tag: "Tamil", ForumID: 10, Path: "index.php?/forums/forum/10-web-hd-itunes-hd-bluray/"},
		{Tag: "Tamil", ForumID: 11, Path: "index.php?/forums/forum/11-web-hd-itunes-hd-bluray/"},
		{Tag: "Tamil", ForumID: 12, Path: "index.php?/forums/forum/12-hdrips-bdrips-dvdrips/"},
		{Tag: "Tamil", ForumID: 13, Path: "index.php?/forums/forum/13-hdtv-rips/"},
		{Tag: "Tamil", ForumID: 14, Path: "index.php?/forums/forum/14-predvd-dvdscr-cam-rips/"},
		{Tag: "Tamil", ForumID: 19, Path: "index.php?/forums/forum/19-web-hd-itunes-hd-bluray/"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "https://www.1tamilmv.earth/")
	v.SetDefault("source.max_pages", 100)
	v.SetDefault("source.page_delay_min_ms", 1000)
	v.SetDefault("source.page_delay_max_ms", 2500)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_ms", 2000)
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.bulk_delay_min_ms", 500)
	v.SetDefault("pipeline.bulk_delay_max_ms", 1500)
	v.SetDefault("pipeline.incremental_delay_min_ms", 2000)
	v.SetDefault("pipeline.incremental_delay_max_ms", 4000)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.MaxPages <= 0 {
		return fmt.Errorf("source.max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 8 {
		return fmt.Errorf("pipeline.workers must be between 1 and 8")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for _, cat := range c.Categories {
		if cat.Tag == "" || cat.Path == "" {
			return fmt.Errorf("category %d needs both tag and path", cat.ForumID)
		}
	}
	return nil
}

// HTTPTimeout returns the client timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay as a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond
}

// PageDelayMin returns the lower pacing bound between index pages.
func (c Config) PageDelayMin() time.Duration {
	return time.Duration(c.Source.PageDelayMinMs) * time.Millisecond
}

// PageDelayMax returns the upper pacing bound between index pages.
func (c Config) PageDelayMax() time.Duration {
	return time.Duration(c.Source.PageDelayMaxMs) * time.Millisecond
}

// BulkDelayMin returns the lower pacing bound before bulk detail fetches.
func (c Config) BulkDelayMin() time.Duration {
	return time.Duration(c.Pipeline.BulkDelayMinMs) * time.Millisecond
}

// BulkDelayMax returns the upper pacing bound before bulk detail fetches.
func (c Config) BulkDelayMax() time.Duration {
	return time.Duration(c.Pipeline.BulkDelayMaxMs) * time.Millisecond
}

// IncrementalDelayMin returns the lower pacing bound before incremental
// detail fetches.
func (c Config) IncrementalDelayMin() time.Duration {
	return time.Duration(c.Pipeline.IncrementalDelayMinMs) * time.Millisecond
}

// IncrementalDelayMax returns the upper pacing bound before incremental
// detail fetches.
func (c Config) IncrementalDelayMax() time.Duration {
	return time.Duration(c.Pipeline.IncrementalDelayMaxMs) * time.Millisecond
}
