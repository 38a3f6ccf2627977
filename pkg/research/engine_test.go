package research

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/asoradar/asoradar/internal/store"
	"github.com/asoradar/asoradar/pkg/appstore"
)

type fakeSearcher struct {
	apps      map[string][]appstore.App
	err       error
	calls     int
	lastLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, keyword, country string, limit int) ([]appstore.App, error) {
	f.calls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.apps[keyword+"/"+country], nil
}

func testField(n int, prefix string) []appstore.App {
	apps := make([]appstore.App, n)
	for i := range apps {
		apps[i] = appstore.App{
			TrackID:     int64(i + 1),
			Name:        fmt.Sprintf("%s %d", prefix, i+1),
			Rating:      4.2,
			RatingCount: 5_000,
			Seller:      fmt.Sprintf("Seller %d", i+1),
		}
	}
	return apps
}

func newEngine(t *testing.T, client Searcher) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(client, s, 50), s
}

func TestResearchStoresResult(t *testing.T) {
	client := &fakeSearcher{apps: map[string][]appstore.App{
		"fitness tracker/us": testField(10, "Fitness Tracker"),
	}}
	engine, s := newEngine(t, client)

	out, err := engine.Research(context.Background(), "fitness tracker", "us", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.Skipped {
		t.Fatal("unexpected skip")
	}

	r := out.Result
	if r.Difficulty < 1 || r.Difficulty > 100 {
		t.Errorf("difficulty = %d", r.Difficulty)
	}
	if r.Popularity == nil {
		t.Fatal("popularity not estimated for a populated field")
	}
	if r.Downloads == nil || len(r.Downloads.Positions) != 20 {
		t.Errorf("downloads = %+v", r.Downloads)
	}
	if r.Breakdown == nil || r.Breakdown.Interpretation != r.Interpretation {
		t.Errorf("breakdown = %+v", r.Breakdown)
	}
	if out.Previous != nil {
		t.Errorf("previous = %+v, want nil on first research", out.Previous)
	}
	if out.Opportunity() <= 0 {
		t.Errorf("opportunity = %d", out.Opportunity())
	}

	history, err := s.History(context.Background(), r.KeywordID, "us")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("stored %d results, want 1", len(history))
	}
}

func TestResearchEmptyField(t *testing.T) {
	client := &fakeSearcher{apps: map[string][]appstore.App{}}
	engine, _ := newEngine(t, client)

	out, err := engine.Research(context.Background(), "zxqw vbnm", "us", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	r := out.Result
	if r.Difficulty != 0 || r.Interpretation != "No Data" {
		t.Errorf("empty field result = %+v", r)
	}
	if r.Popularity != nil || r.Downloads != nil {
		t.Error("no popularity or downloads expected without competitors")
	}
	if out.Opportunity() != 0 {
		t.Errorf("opportunity = %d, want 0", out.Opportunity())
	}
}

func TestResearchSkipsFreshPair(t *testing.T) {
	client := &fakeSearcher{apps: map[string][]appstore.App{
		"fitness/us": testField(5, "Fitness"),
	}}
	engine, _ := newEngine(t, client)
	ctx := context.Background()

	if _, err := engine.Research(ctx, "fitness", "us", nil, false); err != nil {
		t.Fatal(err)
	}
	out, err := engine.Research(ctx, "fitness", "us", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Skipped {
		t.Error("expected same-day duplicate to be skipped")
	}
	if client.calls != 1 {
		t.Errorf("made %d API calls, want 1", client.calls)
	}

	// Without skipFresh the pair is re-measured.
	out, err = engine.Research(ctx, "fitness", "us", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.Skipped {
		t.Error("skipFresh=false must not skip")
	}
	if out.Previous == nil {
		t.Error("expected previous result on re-measurement")
	}
}

func TestResearchTrackedAppRank(t *testing.T) {
	field := testField(30, "Budget App")
	client := &fakeSearcher{apps: map[string][]appstore.App{
		"budget/us": field,
	}}
	engine, s := newEngine(t, client)
	ctx := context.Background()

	app := &store.TrackedApp{Name: "Budget App 17", TrackID: 17, Country: "us"}
	if err := s.AddApp(ctx, app); err != nil {
		t.Fatal(err)
	}

	out, err := engine.Research(ctx, "budget", "us", app, false)
	if err != nil {
		t.Fatal(err)
	}
	if client.lastLimit != appstore.MaxSearchResults {
		t.Errorf("search limit = %d, want widened to %d for rank lookup",
			client.lastLimit, appstore.MaxSearchResults)
	}
	if out.Result.AppRank == nil || *out.Result.AppRank != 17 {
		t.Errorf("app rank = %v, want 17", out.Result.AppRank)
	}
}

func TestResearchSearchError(t *testing.T) {
	client := &fakeSearcher{err: errors.New("rate limited")}
	engine, _ := newEngine(t, client)

	_, err := engine.Research(context.Background(), "kw", "us", nil, false)
	if err == nil || !errors.Is(err, client.err) {
		t.Errorf("err = %v, want wrapped search error", err)
	}
}

func TestRankByOpportunity(t *testing.T) {
	mk := func(pop, diff int) *Outcome {
		return &Outcome{Result: &store.Result{Popularity: &pop, Difficulty: diff}}
	}
	outcomes := []*Outcome{
		mk(50, 80), // opportunity 10
		mk(80, 20), // opportunity 64
		mk(64, 0),  // opportunity 64, easier
	}
	RankByOpportunity(outcomes)

	if outcomes[0].Result.Difficulty != 0 {
		t.Errorf("first outcome = %+v, want the tie broken by lower difficulty", outcomes[0].Result)
	}
	if outcomes[2].Opportunity() != 10 {
		t.Errorf("last outcome opportunity = %d, want 10", outcomes[2].Opportunity())
	}
}
