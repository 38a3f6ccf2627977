package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://itunes.apple.com"

	// MaxSearchResults is the largest result set the search endpoint
	// will return for a single request.
	MaxSearchResults = 200
)

// Client talks to the public iTunes Search API. No authentication is
// required; Apple rate-limits by IP, so callers are expected to space
// out requests (the scheduler does).
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates an iTunes Search API client.
func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(base string) *Client {
	c := NewClient()
	c.baseURL = base
	return c
}

// searchResponse mirrors the wire format of /search and /lookup.
type searchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []searchResult `json:"results"`
}

type searchResult struct {
	TrackID                   int64   `json:"trackId"`
	TrackName                 string  `json:"trackName"`
	ArtworkURL100             string  `json:"artworkUrl100"`
	AverageUserRating         float64 `json:"averageUserRating"`
	UserRatingCount           int     `json:"userRatingCount"`
	ReleaseDate               string  `json:"releaseDate"`
	CurrentVersionReleaseDate string  `json:"currentVersionReleaseDate"`
	PrimaryGenreName          string  `json:"primaryGenreName"`
	FormattedPrice            string  `json:"formattedPrice"`
	Description               string  `json:"description"`
	SellerName                string  `json:"sellerName"`
	BundleID                  string  `json:"bundleId"`
	TrackViewURL              string  `json:"trackViewUrl"`
}

// Search returns up to limit iOS apps matching the keyword, in Apple's
// relevance order (rank 1 first). No matches is not an error: the
// result is simply an empty slice.
func (c *Client) Search(ctx context.Context, keyword, country string, limit int) ([]App, error) {
	if limit <= 0 {
		limit = 25
	}
	if limit > MaxSearchResults {
		limit = MaxSearchResults
	}

	q := url.Values{}
	q.Set("term", keyword)
	q.Set("country", country)
	q.Set("entity", "software")
	q.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.getJSON(ctx, "/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("search %q (%s): %w", keyword, country, err)
	}

	apps := make([]App, 0, len(resp.Results))
	for _, r := range resp.Results {
		apps = append(apps, parseApp(r))
	}
	return apps, nil
}

// Lookup resolves a single app by its track id. Returns nil when the
// store has no app with that id.
func (c *Client) Lookup(ctx context.Context, trackID int64, country string) (*App, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(trackID, 10))
	q.Set("country", country)

	var resp searchResponse
	if err := c.getJSON(ctx, "/lookup?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("lookup %d (%s): %w", trackID, country, err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	app := parseApp(resp.Results[0])
	return &app, nil
}

// FindAppRank searches up to 200 results (the API maximum) and returns
// the 1-based position of the given app, or ok=false if it does not
// rank in the top 200.
func (c *Client) FindAppRank(ctx context.Context, keyword string, trackID int64, country string) (int, bool, error) {
	results, err := c.Search(ctx, keyword, country, MaxSearchResults)
	if err != nil {
		return 0, false, err
	}
	rank, ok := FindRank(results, trackID)
	return rank, ok, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "asoradar/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// parseApp normalizes a raw API result into an App. All defaulting
// happens here so the scorers can rely on the fields as-is.
func parseApp(r searchResult) App {
	desc := r.Description
	// Truncate by runes, not bytes: a byte slice can cut a multi-byte
	// character in half and leave invalid UTF-8 in the record.
	if runes := []rune(desc); len(runes) > 200 {
		desc = string(runes[:200]) + "..."
	}
	price := r.FormattedPrice
	if price == "" {
		price = "Free"
	}
	return App{
		TrackID:            r.TrackID,
		Name:               r.TrackName,
		IconURL:            r.ArtworkURL100,
		Rating:             r.AverageUserRating,
		RatingCount:        r.UserRatingCount,
		ReleaseDate:        parseDate(r.ReleaseDate),
		CurrentVersionDate: parseDate(r.CurrentVersionReleaseDate),
		Genre:              r.PrimaryGenreName,
		Price:              price,
		Description:        desc,
		Seller:             r.SellerName,
		BundleID:           r.BundleID,
		StoreURL:           r.TrackViewURL,
	}
}

// parseDate swallows malformed timestamps: a record with an unparseable
// release date keeps a zero time and is excluded from age aggregates
// rather than failing the whole fetch.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
