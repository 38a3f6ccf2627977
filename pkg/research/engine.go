package research

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/asoradar/asoradar/internal/store"
	"github.com/asoradar/asoradar/pkg/appstore"
	"github.com/asoradar/asoradar/pkg/scoring"
)

// Searcher fetches competitor apps for a keyword in a storefront.
type Searcher interface {
	Search(ctx context.Context, keyword, country string, limit int) ([]appstore.App, error)
}

// Engine runs keyword research: fetch competitors, score popularity and
// difficulty, estimate downloads, locate a tracked app's rank, and
// persist the result.
type Engine struct {
	client Searcher
	store  store.Store
	limit  int // competitors scored per keyword
}

// NewEngine creates a research engine.
func NewEngine(client Searcher, s store.Store, limit int) *Engine {
	if limit <= 0 || limit > appstore.MaxSearchResults {
		limit = 50
	}
	return &Engine{client: client, store: s, limit: limit}
}

// Outcome is one researched keyword+country pair. Previous carries the
// prior measurement of the same pair (nil on first research) so callers
// can render trend deltas and fire change alerts.
type Outcome struct {
	Result    *store.Result
	Previous  *store.Result
	Skipped   bool // fresh same-day result already existed
	TrackedBy *store.TrackedApp
}

// Opportunity returns the combined popularity/difficulty attractiveness
// of the researched keyword, or 0 when popularity is unknown.
func (o *Outcome) Opportunity() int {
	if o.Result == nil || o.Result.Popularity == nil {
		return 0
	}
	return scoring.OpportunityScore(*o.Result.Popularity, o.Result.Difficulty)
}

// Research scores one keyword in one storefront and stores the result.
// When app is non-nil the search is widened to the API maximum so the
// app's rank can be located; only the top results are scored as
// competitors either way. With skipFresh set, a pair already measured
// today is returned as-is without an API call.
func (e *Engine) Research(ctx context.Context, keyword, country string, app *store.TrackedApp, skipFresh bool) (*Outcome, error) {
	var appID *int64
	if app != nil {
		appID = &app.ID
	}
	keywordID, err := e.store.UpsertKeyword(ctx, keyword, appID)
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", keyword, err)
	}

	if skipFresh {
		fresh, err := e.store.HasResultSince(ctx, keywordID, country, startOfDay(time.Now().UTC()))
		if err != nil {
			return nil, fmt.Errorf("research %q: %w", keyword, err)
		}
		if fresh {
			return &Outcome{Skipped: true, TrackedBy: app}, nil
		}
	}

	fetchLimit := e.limit
	if app != nil {
		fetchLimit = appstore.MaxSearchResults
	}
	results, err := e.client.Search(ctx, keyword, country, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("research %q (%s): %w", keyword, country, err)
	}

	competitors := results
	if len(competitors) > e.limit {
		competitors = competitors[:e.limit]
	}

	difficulty, breakdown := scoring.CalculateDifficulty(competitors, keyword)

	r := &store.Result{
		KeywordID:      keywordID,
		Keyword:        keyword,
		Country:        country,
		Difficulty:     difficulty,
		Interpretation: breakdown.Interpretation,
		Breakdown:      &breakdown,
		Competitors:    competitors,
	}

	if pop, ok := scoring.EstimatePopularity(competitors, keyword); ok {
		r.Popularity = &pop
		downloads := scoring.EstimateDownloads(pop, len(competitors))
		r.Downloads = &downloads
	}

	if app != nil {
		if rank, ok := appstore.FindRank(results, app.TrackID); ok {
			r.AppRank = &rank
		}
	}

	previous := e.latestBefore(ctx, keywordID, country)

	if err := e.store.InsertResult(ctx, r); err != nil {
		return nil, fmt.Errorf("research %q (%s): %w", keyword, country, err)
	}

	return &Outcome{Result: r, Previous: previous, TrackedBy: app}, nil
}

// latestBefore returns the newest stored result for a pair, nil when
// the pair has no history yet or the lookup fails. History failures are
// not worth aborting a fresh measurement over.
func (e *Engine) latestBefore(ctx context.Context, keywordID int64, country string) *store.Result {
	history, err := e.store.History(ctx, keywordID, country)
	if err != nil || len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}

// RankByOpportunity orders outcomes best-first: highest opportunity
// score, then lowest difficulty as the tiebreak.
func RankByOpportunity(outcomes []*Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		oi, oj := outcomes[i].Opportunity(), outcomes[j].Opportunity()
		if oi != oj {
			return oi > oj
		}
		var di, dj int
		if outcomes[i].Result != nil {
			di = outcomes[i].Result.Difficulty
		}
		if outcomes[j].Result != nil {
			dj = outcomes[j].Result.Difficulty
		}
		return di < dj
	})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
