// Package harvest walks the paginated category forums and collects topic
// references, and extracts poster/magnet data from topic detail pages.
package harvest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/media"
	"github.com/filmvault/movie-harvester/internal/metrics"
)

const topicPathMarker = "index.php?/forums/topic/"

// Inclusion: tokens that indicate a real media release. Exclusion:
// trailer/song/extras topics that share the same forums.
var (
	includeRe = regexp.MustCompile(`(?i)\b(GB|MB|1080p|720p|480p|360p|4K|2160p|1440p|` +
		`BluRay|BDRip|WEB-DL|WEBRip|HDTV|HDRip|DVDRip|DVDScr|` +
		`HQ\.PreDVD|PreDVD|CAMRip|x264|x265|HEVC|AVC|Rips)\b`)
	excludeRe = regexp.MustCompile(`(?i)\b(Official Trailer|Official Teaser|Official Music Video|` +
		`Music Video|Single Track|OST|Lyric Video|Audio Song|` +
		`Song Video|Making Of|Behind the Scenes)\b`)
	collapseRe = regexp.MustCompile(`\s+`)
)

// Config controls harvester behavior.
type Config struct {
	BaseURL      string
	MaxPages     int           // bulk mode page cap per category
	PageDelayMin time.Duration // randomized pacing between index pages
	PageDelayMax time.Duration
}

// Harvester paginates category sources and filters topic links. It keeps a
// per-run set of seen locators so the same topic never surfaces twice
// across pages; the set is used single-threaded.
type Harvester struct {
	fetcher media.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Harvester.
func New(fetcher media.Fetcher, cfg Config, logger *zap.Logger) *Harvester {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	return &Harvester{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// HarvestAll paginates every category up to MaxPages, collecting every
// qualifying topic. A page yielding zero new topics ends that category;
// page fetch failures end that category but never the whole harvest.
func (h *Harvester) HarvestAll(ctx context.Context, categories []media.CategorySource) []media.TopicRef {
	var all []media.TopicRef
	seen := make(map[string]struct{})

	for _, cat := range categories {
		catTotal := 0
		for page := 1; page <= h.cfg.MaxPages; page++ {
			if ctx.Err() != nil {
				return all
			}
			body, err := h.fetcher.Get(ctx, h.pageURL(cat, page))
			if err != nil {
				metrics.ObservePageFetch("error")
				h.logger.Warn("index page fetch failed, ending category",
					zap.String("category", cat.Tag),
					zap.Int("forum_id", cat.ForumID),
					zap.Int("page", page),
					zap.Error(err),
				)
				break
			}
			metrics.ObservePageFetch("ok")

			found := 0
			for _, link := range ExtractTopicLinks(body) {
				if !qualifiesBulk(link) {
					continue
				}
				if _, ok := seen[link.Href]; ok {
					continue
				}
				seen[link.Href] = struct{}{}
				all = append(all, media.TopicRef{
					Locator:     link.Href,
					RawTitle:    link.Text,
					CategoryTag: cat.Tag,
				})
				found++
			}
			catTotal += found
			metrics.ObserveTopics(cat.Tag, found)
			h.logger.Info("index page harvested",
				zap.Int("forum_id", cat.ForumID),
				zap.Int("page", page),
				zap.Int("new", found),
				zap.Int("category_total", catTotal),
				zap.Int("global_total", len(all)),
			)

			if found == 0 {
				h.logger.Info("category exhausted",
					zap.Int("forum_id", cat.ForumID),
					zap.Int("page", page),
				)
				break
			}
			h.pause(ctx)
		}
	}
	return all
}

// FirstPage scans only page 1 of one category and stops at the first
// qualifying link whose locator is already known. Results are newest-first
// on the source site, so everything before that link is new.
func (h *Harvester) FirstPage(ctx context.Context, cat media.CategorySource, known map[string]struct{}) ([]media.TopicRef, error) {
	body, err := h.fetcher.Get(ctx, h.pageURL(cat, 1))
	if err != nil {
		metrics.ObservePageFetch("error")
		return nil, fmt.Errorf("fetch category %q page 1: %w", cat.Tag, err)
	}
	metrics.ObservePageFetch("ok")

	var topics []media.TopicRef
	seen := make(map[string]struct{})
	for _, link := range ExtractTopicLinks(body) {
		if !qualifiesIncremental(link) {
			continue
		}
		if _, ok := known[link.Href]; ok {
			h.logger.Info("hit known locator, no more new topics",
				zap.String("category", cat.Tag),
			)
			break
		}
		if _, ok := seen[link.Href]; ok {
			continue
		}
		seen[link.Href] = struct{}{}
		topics = append(topics, media.TopicRef{
			Locator:     link.Href,
			RawTitle:    link.Text,
			CategoryTag: cat.Tag,
		})
	}
	metrics.ObserveTopics(cat.Tag, len(topics))
	return topics, nil
}

// HarvestUntilKnown runs FirstPage over every category, concatenating the
// results. Category failures are logged and skipped.
func (h *Harvester) HarvestUntilKnown(ctx context.Context, categories []media.CategorySource, known map[string]struct{}) []media.TopicRef {
	var all []media.TopicRef
	for _, cat := range categories {
		topics, err := h.FirstPage(ctx, cat, known)
		if err != nil {
			h.logger.Warn("category scan failed", zap.String("category", cat.Tag), zap.Error(err))
			continue
		}
		all = append(all, topics...)
	}
	return all
}

func (h *Harvester) pageURL(cat media.CategorySource, page int) string {
	base := strings.TrimRight(h.cfg.BaseURL, "/") + "/" + cat.Path
	if page == 1 {
		return base
	}
	// IPS forum pagination appends "page/N/" to the forum path.
	return fmt.Sprintf("%spage/%d/", base, page)
}

func (h *Harvester) pause(ctx context.Context) {
	if h.cfg.PageDelayMax <= 0 {
		return
	}
	delay := h.cfg.PageDelayMin
	if spread := h.cfg.PageDelayMax - h.cfg.PageDelayMin; spread > 0 {
		delay += time.Duration(rand.Int64N(int64(spread)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func qualifiesBulk(l TopicLink) bool {
	return strings.Contains(l.Href, topicPathMarker) &&
		len(l.Text) > 5 &&
		includeRe.MatchString(l.Text) &&
		!excludeRe.MatchString(l.Text)
}

func qualifiesIncremental(l TopicLink) bool {
	return strings.Contains(l.Href, topicPathMarker) &&
		len(l.Text) >= 20 &&
		hasSizeToken(l.Text) &&
		includeRe.MatchString(l.Text) &&
		!excludeRe.MatchString(l.Text)
}

// hasSizeToken reports whether a title carries a file size or rip marker.
// Incremental mode demands one: page 1 carries announcement and
// discussion threads that pass the general filter but list no downloads.
// Substring matching on purpose, sizes render as "12.2GB".
func hasSizeToken(text string) bool {
	return strings.Contains(text, "GB") ||
		strings.Contains(text, "MB") ||
		strings.Contains(text, "Rips")
}
