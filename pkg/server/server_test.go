package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asoradar/asoradar/internal/scheduler"
	"github.com/asoradar/asoradar/internal/store"
	"github.com/asoradar/asoradar/pkg/appstore"
	"github.com/asoradar/asoradar/pkg/research"
)

type fakeAppStore struct {
	apps    map[string][]appstore.App
	lookup  map[int64]*appstore.App
	reviews []appstore.Review
}

func (f *fakeAppStore) Search(ctx context.Context, keyword, country string, limit int) ([]appstore.App, error) {
	return f.apps[keyword+"/"+country], nil
}

func (f *fakeAppStore) Lookup(ctx context.Context, trackID int64, country string) (*appstore.App, error) {
	return f.lookup[trackID], nil
}

func (f *fakeAppStore) Recent(ctx context.Context, trackID int64, country string, limit int) ([]appstore.Review, error) {
	if len(f.reviews) > limit {
		return f.reviews[:limit], nil
	}
	return f.reviews, nil
}

func testField(n int, prefix string) []appstore.App {
	apps := make([]appstore.App, n)
	for i := range apps {
		apps[i] = appstore.App{
			TrackID:     int64(i + 1),
			Name:        fmt.Sprintf("%s %d", prefix, i+1),
			Rating:      4.2,
			RatingCount: 4_000,
			Seller:      fmt.Sprintf("Seller %d", i+1),
		}
	}
	return apps
}

func newTestServer(t *testing.T, fake *fakeAppStore) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	engine := research.NewEngine(fake, s, 50)
	status := func() scheduler.Status {
		return scheduler.Status{LastRun: time.Date(2025, 8, 30, 6, 0, 0, 0, time.UTC)}
	}
	srv := httptest.NewServer(New(s, engine, fake, fake, status, 0).Handler())
	t.Cleanup(srv.Close)
	return srv, s
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url, body string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAppStore{})
	var body map[string]string
	resp := getJSON(t, srv.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestSearchEndpoint(t *testing.T) {
	fake := &fakeAppStore{apps: map[string][]appstore.App{
		"fitness/us":    testField(10, "Fitness App"),
		"meditation/us": testField(3, "Calm Mind"),
	}}
	srv, _ := newTestServer(t, fake)

	var body struct {
		Data []struct {
			Country string `json:"country"`
			Results []struct {
				Keyword     string `json:"keyword"`
				Difficulty  int    `json:"difficulty"`
				Opportunity int    `json:"opportunity"`
			} `json:"results"`
			Skipped []string `json:"skipped"`
		} `json:"data"`
	}
	resp := postJSON(t, srv.URL+"/api/v1/search",
		`{"keywords":"fitness,meditation","countries":"us"}`, &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body.Data) != 1 || body.Data[0].Country != "us" {
		t.Fatalf("data = %+v", body.Data)
	}
	results := body.Data[0].Results
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Ordered best opportunity first.
	if results[0].Opportunity < results[1].Opportunity {
		t.Errorf("results not ranked by opportunity: %+v", results)
	}

	// Second identical search skips the same-day pairs.
	resp = postJSON(t, srv.URL+"/api/v1/search",
		`{"keywords":"fitness,meditation","countries":"us"}`, &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat status = %d", resp.StatusCode)
	}
	if len(body.Data[0].Skipped) != 2 {
		t.Errorf("skipped = %v, want both keywords", body.Data[0].Skipped)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAppStore{})

	if resp := postJSON(t, srv.URL+"/api/v1/search", `{"keywords":""}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty keywords status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, srv.URL+"/api/v1/search", `{"keywords":"a","countries":"zz"}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad country status = %d", resp.StatusCode)
	}
	if resp := getJSON(t, srv.URL+"/api/v1/search", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", resp.StatusCode)
	}
}

func TestResultsEndpointDeltas(t *testing.T) {
	srv, s := newTestServer(t, &fakeAppStore{})
	ctx := context.Background()

	kwID, err := s.UpsertKeyword(ctx, "fitness", nil)
	if err != nil {
		t.Fatal(err)
	}
	pop1, pop2 := 60, 70
	base := time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)
	s.InsertResult(ctx, &store.Result{
		KeywordID: kwID, Country: "us", Popularity: &pop1, Difficulty: 50,
		Interpretation: "Moderate", SearchedAt: base,
	})
	s.InsertResult(ctx, &store.Result{
		KeywordID: kwID, Country: "us", Popularity: &pop2, Difficulty: 58,
		Interpretation: "Hard", SearchedAt: base.AddDate(0, 0, 1),
	})

	var body struct {
		Data []struct {
			Keyword    string `json:"keyword"`
			Difficulty int    `json:"difficulty"`
			Deltas     *struct {
				Popularity *int `json:"popularity"`
				Difficulty *int `json:"difficulty"`
			} `json:"deltas"`
		} `json:"data"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/results", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body.Data) != 1 {
		t.Fatalf("got %d rows, want latest only", len(body.Data))
	}
	row := body.Data[0]
	if row.Difficulty != 58 {
		t.Errorf("difficulty = %d, want the newest measurement", row.Difficulty)
	}
	if row.Deltas == nil || row.Deltas.Popularity == nil || *row.Deltas.Popularity != 10 {
		t.Errorf("deltas = %+v, want popularity +10", row.Deltas)
	}
	if *row.Deltas.Difficulty != 8 {
		t.Errorf("difficulty delta = %d, want +8", *row.Deltas.Difficulty)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, s := newTestServer(t, &fakeAppStore{})
	ctx := context.Background()

	kwID, _ := s.UpsertKeyword(ctx, "sleep tracker", nil)
	for day := 0; day < 3; day++ {
		s.InsertResult(ctx, &store.Result{
			KeywordID: kwID, Country: "us", Difficulty: 40 + day,
			SearchedAt: time.Date(2025, 8, 25+day, 8, 0, 0, 0, time.UTC),
		})
	}

	var body struct {
		Keyword string `json:"keyword"`
		Count   int    `json:"count"`
		Data    []struct {
			Difficulty int `json:"difficulty"`
		} `json:"data"`
	}
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/keywords/%d/history", srv.URL, kwID), &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Keyword != "sleep tracker" || body.Count != 3 {
		t.Errorf("body = %+v", body)
	}
	if body.Data[0].Difficulty != 40 || body.Data[2].Difficulty != 42 {
		t.Errorf("history not ascending: %+v", body.Data)
	}

	if resp := getJSON(t, srv.URL+"/api/v1/keywords/99999/history", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown keyword status = %d", resp.StatusCode)
	}
	if resp := getJSON(t, srv.URL+"/api/v1/keywords/abc/history", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
}

func TestRefreshStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAppStore{})

	var status scheduler.Status
	resp := getJSON(t, srv.URL+"/api/v1/refresh/status", &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if status.LastRun.IsZero() {
		t.Errorf("status = %+v", status)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, s := newTestServer(t, &fakeAppStore{})
	ctx := context.Background()

	kwID, _ := s.UpsertKeyword(ctx, "fitness", nil)
	s.InsertResult(ctx, &store.Result{
		KeywordID: kwID, Country: "us", Difficulty: 55, Interpretation: "Moderate",
	})

	resp, err := http.Get(srv.URL + "/api/v1/export.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if !strings.HasPrefix(out, "keyword,country,") {
		t.Errorf("csv = %q", out)
	}
	if !strings.Contains(out, "fitness,us,,55,Moderate") {
		t.Errorf("csv missing row: %q", out)
	}
}

func TestAppsEndpoint(t *testing.T) {
	fake := &fakeAppStore{lookup: map[int64]*appstore.App{
		101: {TrackID: 101, Name: "StepCount Pro", BundleID: "com.stepcount.pro"},
	}}
	srv, _ := newTestServer(t, fake)

	var created store.TrackedApp
	resp := postJSON(t, srv.URL+"/api/v1/apps", `{"track_id":101,"country":"us"}`, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if created.ID == 0 || created.Name != "StepCount Pro" {
		t.Errorf("created = %+v", created)
	}

	var list struct {
		Count int `json:"count"`
		Data  []store.TrackedApp
	}
	getJSON(t, srv.URL+"/api/v1/apps", &list)
	if list.Count != 1 || list.Data[0].TrackID != 101 {
		t.Errorf("list = %+v", list)
	}

	// Unknown track id: the directory returns nothing.
	if resp := postJSON(t, srv.URL+"/api/v1/apps", `{"track_id":999}`, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown app status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, srv.URL+"/api/v1/apps", `{}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing track_id status = %d", resp.StatusCode)
	}
}

func TestAppReviewsEndpoint(t *testing.T) {
	fake := &fakeAppStore{reviews: []appstore.Review{
		{Title: "Love it", Rating: 5, Author: "runner42"},
		{Title: "Crashes on launch", Rating: 1, Author: "miles_p"},
		{Title: "Decent", Rating: 3, Author: "k"},
	}}
	srv, s := newTestServer(t, fake)

	app := &store.TrackedApp{Name: "StepCount Pro", TrackID: 101, Country: "us"}
	if err := s.AddApp(context.Background(), app); err != nil {
		t.Fatal(err)
	}

	var body struct {
		App   string `json:"app"`
		Count int    `json:"count"`
		Data  []struct {
			Title  string `json:"title"`
			Rating int    `json:"rating"`
		} `json:"data"`
	}
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/apps/%d/reviews?limit=2", srv.URL, app.ID), &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.App != "StepCount Pro" || body.Count != 2 {
		t.Errorf("body = %+v", body)
	}
	if body.Data[0].Title != "Love it" || body.Data[0].Rating != 5 {
		t.Errorf("data = %+v", body.Data)
	}

	if resp := getJSON(t, srv.URL+"/api/v1/apps/999/reviews", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown app status = %d", resp.StatusCode)
	}
}

func TestAppReviewsBadLimitKeepsDefault(t *testing.T) {
	fake := &fakeAppStore{}
	for i := 0; i < 25; i++ {
		fake.reviews = append(fake.reviews, appstore.Review{
			Title: fmt.Sprintf("Review %d", i+1), Rating: 4,
		})
	}
	srv, s := newTestServer(t, fake)

	app := &store.TrackedApp{Name: "StepCount Pro", TrackID: 101, Country: "us"}
	if err := s.AddApp(context.Background(), app); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Count int `json:"count"`
	}
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/apps/%d/reviews?limit=abc", srv.URL, app.ID), &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Count != 10 {
		t.Errorf("count = %d, want the default 10 when limit is unparseable", body.Count)
	}
}
