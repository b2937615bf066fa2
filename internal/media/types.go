// Package media defines core types shared across subsystems.
package media

import (
	"time"
)

// CategorySource identifies one forum sub-section that is paginated
// independently. The list is static for a run.
type CategorySource struct {
	Tag     string `json:"tag" mapstructure:"tag"`
	ForumID int    `json:"forum_id" mapstructure:"forum_id"`
	Path    string `json:"path" mapstructure:"path"`
}

// TopicRef is one harvested forum topic: the locator is the unique source
// URL and the natural dedup key for the whole pipeline.
type TopicRef struct {
	Locator     string
	RawTitle    string
	CategoryTag string
}

// Descriptor holds the structured fields extracted from a raw topic title.
// Qualities follow the canonical label-list order; FileSizes follow the
// order of appearance in the raw text.
type Descriptor struct {
	Title        string
	Year         int // 0 when the title carries no (YYYY) marker
	SourceFormat string
	Qualities    []string
	Codec        string
	AudioFormat  string
	Languages    []string
	FileSizes    []string
}

// Enrichment carries provider-sourced metadata. Every field is optional;
// an all-zero Enrichment means "no data", which is never an error.
type Enrichment struct {
	ExternalID  int
	Rating      float64
	Synopsis    string
	Director    string
	Cast        string
	Runtime     int
	PosterURL   string
	BackdropURL string
	Genres      []string
}

// Empty reports whether the enrichment carries no data at all.
func (e Enrichment) Empty() bool {
	return e.ExternalID == 0 && e.Rating == 0 && e.Synopsis == "" &&
		e.Director == "" && e.Cast == "" && e.Runtime == 0 &&
		e.PosterURL == "" && e.BackdropURL == "" && len(e.Genres) == 0
}

// Record is the unit of persistence. SourceLocator is unique in the store;
// a record already present with the same locator must never be duplicated.
type Record struct {
	ID            int64
	Title         string
	Year          *int
	Synopsis      string
	Director      string
	Cast          string
	PosterURL     string
	BackdropURL   string
	Rating        float64
	ExternalID    *int
	SourceLocator string
	SourceFormat  string
	Runtime       *int
	CreatedAt     time.Time
}

// DownloadVariant is one downloadable rendition of a record. Variants are
// built by positional pairing of discovered links with the title's quality
// tiers and size labels.
type DownloadVariant struct {
	Quality        string
	Codec          string
	AudioFormat    string
	AudioLanguages string
	FileSize       string
	Link           string
	SourceType     string
}

// Item bundles a record with its associations, ready for the gateway.
type Item struct {
	Record    Record
	Genres    []string
	Languages []string
	Variants  []DownloadVariant
}

// Summary reports the outcome of one pipeline run.
type Summary struct {
	Added     int `json:"added"`
	Processed int `json:"processed"`
}
