package appstore

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Review is one customer review from Apple's per-app reviews feed.
type Review struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating"`
	Author    string    `json:"author"`
	Updated   time.Time `json:"updated"`
	Version   string    `json:"version"`
}

// ReviewFeed fetches recent customer reviews for a tracked app from
// Apple's public per-app Atom feed (sorted most-recent-first). Used to
// show recent review activity alongside rank history.
type ReviewFeed struct {
	http    *http.Client
	parser  *gofeed.Parser
	baseURL string
}

// NewReviewFeed creates a customer-reviews feed client.
func NewReviewFeed() *ReviewFeed {
	return &ReviewFeed{
		http:    &http.Client{Timeout: 30 * time.Second},
		parser:  gofeed.NewParser(),
		baseURL: defaultBaseURL,
	}
}

// NewReviewFeedWithBaseURL is used by tests to point at a stub server.
func NewReviewFeedWithBaseURL(base string) *ReviewFeed {
	f := NewReviewFeed()
	f.baseURL = base
	return f
}

// Recent returns up to limit of the newest reviews for an app in a
// given storefront. The feed caps out at 50 entries per page; one page
// is enough for the recent-activity panel.
func (f *ReviewFeed) Recent(ctx context.Context, trackID int64, country string, limit int) ([]Review, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	url := fmt.Sprintf("%s/%s/rss/customerreviews/id=%d/sortBy=mostRecent/xml",
		f.baseURL, country, trackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create reviews request: %w", err)
	}
	req.Header.Set("User-Agent", "asoradar/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch reviews %d (%s): %w", trackID, country, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reviews %d (%s): status %d", trackID, country, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse reviews feed %d: %w", trackID, err)
	}

	var reviews []Review
	for _, entry := range parsed.Items {
		// The first entry of the feed is the app itself, not a review.
		// Review entries carry an im:rating extension.
		rating := extensionValue(entry, "im", "rating")
		if rating == "" {
			continue
		}
		stars, err := strconv.Atoi(rating)
		if err != nil {
			continue
		}

		updated := time.Time{}
		if entry.UpdatedParsed != nil {
			updated = entry.UpdatedParsed.UTC()
		} else if entry.PublishedParsed != nil {
			updated = entry.PublishedParsed.UTC()
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		reviews = append(reviews, Review{
			Title:   entry.Title,
			Content: strings.TrimSpace(entry.Description),
			Rating:  stars,
			Author:  author,
			Updated: updated,
			Version: extensionValue(entry, "im", "version"),
		})
		if len(reviews) >= limit {
			break
		}
	}
	return reviews, nil
}

func extensionValue(entry *gofeed.Item, ns, name string) string {
	exts, ok := entry.Extensions[ns]
	if !ok {
		return ""
	}
	vals, ok := exts[name]
	if !ok || len(vals) == 0 {
		return ""
	}
	return vals[0].Value
}
