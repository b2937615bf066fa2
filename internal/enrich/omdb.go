package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/filmvault/movie-harvester/internal/media"
)

const omdbBaseURL = "https://www.omdbapi.com/"

// OMDB is the secondary provider: richer plot/director/cast/genre data,
// no backdrop images and no numeric external ID.
type OMDB struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewOMDB builds an OMDB client, or nil when no API key is configured.
func NewOMDB(apiKey string, timeout time.Duration, httpClient *http.Client) *OMDB {
	if apiKey == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OMDB{
		apiKey:     apiKey,
		httpClient: httpClient,
		baseURL:    omdbBaseURL,
	}
}

type omdbResponse struct {
	Response   string `json:"Response"`
	Plot       string `json:"Plot"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Genre      string `json:"Genre"`
	Runtime    string `json:"Runtime"`
	Poster     string `json:"Poster"`
	IMDBRating string `json:"imdbRating"`
}

// Lookup queries OMDB year-qualified first, then year-dropped when the
// qualified query finds nothing.
func (o *OMDB) Lookup(ctx context.Context, title string, year int) (media.Enrichment, error) {
	useYear := year > 0 && year <= time.Now().Year()

	params := url.Values{
		"t":      {title},
		"apikey": {o.apiKey},
		"plot":   {"full"},
		"type":   {"movie"},
	}
	if useYear {
		params.Set("y", strconv.Itoa(year))
	}
	resp, err := o.query(ctx, params)
	if err != nil {
		return media.Enrichment{}, err
	}
	if resp.Response == "False" && useYear {
		params.Del("y")
		resp, err = o.query(ctx, params)
		if err != nil {
			return media.Enrichment{}, err
		}
	}
	if resp.Response == "False" {
		return media.Enrichment{}, nil
	}

	r := media.Enrichment{
		Synopsis: cleanNA(resp.Plot),
		Director: cleanNA(resp.Director),
		Cast:     cleanNA(resp.Actors),
	}
	if rating := cleanNA(resp.IMDBRating); rating != "" {
		if v, err := strconv.ParseFloat(rating, 64); err == nil {
			r.Rating = v
		}
	}
	// Runtime arrives as "165 min".
	if rt := cleanNA(resp.Runtime); rt != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(rt, "min"))); err == nil {
			r.Runtime = v
		}
	}
	if poster := cleanNA(resp.Poster); poster != "" {
		r.PosterURL = poster
	}
	for _, g := range strings.Split(resp.Genre, ",") {
		if g = cleanNA(strings.TrimSpace(g)); g != "" {
			r.Genres = append(r.Genres, g)
		}
	}
	return r, nil
}

func (o *OMDB) query(ctx context.Context, params url.Values) (omdbResponse, error) {
	var out omdbResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return out, fmt.Errorf("build omdb request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("omdb request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("omdb status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode omdb response: %w", err)
	}
	return out, nil
}

// cleanNA maps OMDB's "N/A" placeholder to the empty string.
func cleanNA(s string) string {
	if s == "N/A" {
		return ""
	}
	return s
}
