package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/filmvault/movie-harvester/internal/media"
)

const (
	tmdbSearchURL  = "https://api.themoviedb.org/3/search/movie"
	tmdbDetailURL  = "https://api.themoviedb.org/3/movie/%d"
	tmdbCreditsURL = "https://api.themoviedb.org/3/movie/%d/credits"

	tmdbPosterBase   = "https://image.tmdb.org/t/p/w500"
	tmdbBackdropBase = "https://image.tmdb.org/t/p/w1280"
)

// TMDB is the primary lookup provider: strong poster/backdrop coverage,
// weaker textual metadata.
type TMDB struct {
	bearerToken string
	httpClient  *http.Client
	searchURL   string
	detailURL   string
	creditsURL  string
}

// NewTMDB builds a TMDB client. An empty token yields a nil client, which
// the enricher treats as "provider unavailable".
func NewTMDB(bearerToken string, timeout time.Duration, httpClient *http.Client) *TMDB {
	if bearerToken == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TMDB{
		bearerToken: bearerToken,
		httpClient:  httpClient,
		searchURL:   tmdbSearchURL,
		detailURL:   tmdbDetailURL,
		creditsURL:  tmdbCreditsURL,
	}
}

type tmdbSearchResponse struct {
	Results []tmdbMovie `json:"results"`
}

type tmdbMovie struct {
	ID           int     `json:"id"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	Overview     string  `json:"overview"`
}

type tmdbDetailResponse struct {
	Runtime int `json:"runtime"`
}

type tmdbCreditsResponse struct {
	Cast []tmdbCredit `json:"cast"`
	Crew []tmdbCredit `json:"crew"`
}

type tmdbCredit struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

// Lookup searches for a movie, year-qualified first and year-dropped when
// the qualified query yields nothing. Future years are never sent: source
// titles regularly carry a not-yet-released year.
func (t *TMDB) Lookup(ctx context.Context, title string, year int) (media.Enrichment, error) {
	useYear := year > 0 && year <= time.Now().Year()

	params := url.Values{"query": {title}}
	if useYear {
		params.Set("primary_release_year", strconv.Itoa(year))
	}
	results, err := t.search(ctx, params)
	if err != nil {
		return media.Enrichment{}, err
	}
	if len(results) == 0 && useYear {
		results, err = t.search(ctx, url.Values{"query": {title}})
		if err != nil {
			return media.Enrichment{}, err
		}
	}
	if len(results) == 0 {
		return media.Enrichment{}, nil
	}

	m := results[0]
	r := media.Enrichment{
		ExternalID: m.ID,
		Rating:     math.Round(m.VoteAverage*10) / 10,
		Synopsis:   m.Overview,
	}
	if m.PosterPath != "" {
		r.PosterURL = tmdbPosterBase + m.PosterPath
	}
	if m.BackdropPath != "" {
		r.BackdropURL = tmdbBackdropBase + m.BackdropPath
	}
	return r, nil
}

// LookupFull runs Lookup and then pulls runtime, director and top cast
// from the detail and credits endpoints. Used by the image backfill, which
// wants everything TMDB can give without touching the secondary provider.
func (t *TMDB) LookupFull(ctx context.Context, title string, year int) (media.Enrichment, error) {
	r, err := t.Lookup(ctx, title, year)
	if err != nil || r.ExternalID == 0 {
		return r, err
	}

	var detail tmdbDetailResponse
	if err := t.getJSON(ctx, fmt.Sprintf(t.detailURL, r.ExternalID), nil, &detail); err == nil {
		r.Runtime = detail.Runtime
	}

	var credits tmdbCreditsResponse
	if err := t.getJSON(ctx, fmt.Sprintf(t.creditsURL, r.ExternalID), nil, &credits); err == nil {
		var directors []string
		for _, c := range credits.Crew {
			if c.Job == "Director" || c.Job == "Executive Producer" {
				directors = append(directors, c.Name)
			}
		}
		if len(directors) > 2 {
			directors = directors[:2]
		}
		r.Director = strings.Join(directors, ", ")

		var cast []string
		for i, c := range credits.Cast {
			if i == 5 {
				break
			}
			cast = append(cast, c.Name)
		}
		r.Cast = strings.Join(cast, ", ")
	}
	return r, nil
}

func (t *TMDB) search(ctx context.Context, params url.Values) ([]tmdbMovie, error) {
	var resp tmdbSearchResponse
	if err := t.getJSON(ctx, t.searchURL, params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (t *TMDB) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build tmdb request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}
