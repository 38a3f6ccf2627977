package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/asoradar/asoradar/internal/scheduler"
	"github.com/asoradar/asoradar/internal/store"
	"github.com/asoradar/asoradar/pkg/appstore"
	"github.com/asoradar/asoradar/pkg/export"
	"github.com/asoradar/asoradar/pkg/research"
	"github.com/asoradar/asoradar/pkg/scoring"
)

// Directory resolves single apps by track id.
type Directory interface {
	Lookup(ctx context.Context, trackID int64, country string) (*appstore.App, error)
}

// ReviewSource fetches recent customer reviews for an app.
type ReviewSource interface {
	Recent(ctx context.Context, trackID int64, country string, limit int) ([]appstore.Review, error)
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	engine    *research.Engine
	directory Directory
	reviews   ReviewSource
	status    func() scheduler.Status // nil when no scheduler runs
	port      int
}

// New creates a new HTTP server. status may be nil when the server runs
// without a background scheduler.
func New(s store.Store, engine *research.Engine, directory Directory, reviews ReviewSource, status func() scheduler.Status, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:     s,
		engine:    engine,
		directory: directory,
		reviews:   reviews,
		status:    status,
		port:      port,
	}
}

// Handler returns the route table. Split from ListenAndServe for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/results", s.handleResults)
	mux.HandleFunc("/api/v1/keywords/", s.handleHistory)
	mux.HandleFunc("/api/v1/refresh/status", s.handleRefreshStatus)
	mux.HandleFunc("/api/v1/export.csv", s.handleExport)
	mux.HandleFunc("/api/v1/apps", s.handleApps)
	mux.HandleFunc("/api/v1/apps/", s.handleAppReviews)
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("asoradar server listening on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Keywords  string `json:"keywords"`
	Countries string `json:"countries"`
	AppID     *int64 `json:"app_id"`
}

// resultView is a stored result plus its derived opportunity score.
type resultView struct {
	store.Result
	Opportunity int `json:"opportunity"`
}

type countryResults struct {
	Country string       `json:"country"`
	Results []resultView `json:"results"`
	Skipped []string     `json:"skipped,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	keywords := appstore.ParseKeywords(req.Keywords)
	if len(keywords) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no keywords given"})
		return
	}
	countries, err := appstore.ParseCountries(req.Countries)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx := r.Context()
	var app *store.TrackedApp
	if req.AppID != nil {
		app, err = s.store.GetApp(ctx, *req.AppID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if app == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no tracked app %d", *req.AppID)})
			return
		}
	}

	var blocks []countryResults
	for _, country := range countries {
		block := countryResults{Country: country}
		var outcomes []*research.Outcome

		for _, keyword := range keywords {
			out, err := s.engine.Research(ctx, keyword, country, app, true)
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			if out.Skipped {
				block.Skipped = append(block.Skipped, keyword)
				continue
			}
			outcomes = append(outcomes, out)
		}

		research.RankByOpportunity(outcomes)
		for _, out := range outcomes {
			block.Results = append(block.Results, resultView{
				Result:      *out.Result,
				Opportunity: out.Opportunity(),
			})
		}
		blocks = append(blocks, block)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  blocks,
		"count": len(blocks),
	})
}

// deltas are the changes versus the previous measurement of a pair.
type deltas struct {
	Popularity *int `json:"popularity,omitempty"`
	Difficulty *int `json:"difficulty,omitempty"`
	Rank       *int `json:"rank,omitempty"`
}

type trendedResult struct {
	resultView
	Deltas *deltas `json:"deltas,omitempty"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	opts := store.ResultOpts{Country: r.URL.Query().Get("country")}
	if v := r.URL.Query().Get("app"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid app id"})
			return
		}
		opts.AppID = &id
	}
	if v := r.URL.Query().Get("page"); v != "" {
		opts.Page, _ = strconv.Atoi(v)
	}

	ctx := r.Context()
	results, err := s.store.LatestResults(ctx, opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	views := make([]trendedResult, 0, len(results))
	for i := range results {
		views = append(views, trendedResult{
			resultView: resultView{Result: results[i], Opportunity: opportunityOf(&results[i])},
			Deltas:     s.deltasFor(ctx, &results[i]),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  views,
		"count": len(views),
	})
}

// deltasFor compares a latest result with the measurement before it.
// Missing history means no deltas, not an error.
func (s *Server) deltasFor(ctx context.Context, r *store.Result) *deltas {
	history, err := s.store.History(ctx, r.KeywordID, r.Country)
	if err != nil || len(history) < 2 {
		return nil
	}
	prev := &history[len(history)-2]

	var d deltas
	if r.Popularity != nil && prev.Popularity != nil {
		v := *r.Popularity - *prev.Popularity
		d.Popularity = &v
	}
	diff := r.Difficulty - prev.Difficulty
	d.Difficulty = &diff
	if r.AppRank != nil && prev.AppRank != nil {
		v := *r.AppRank - *prev.AppRank
		d.Rank = &v
	}
	return &d
}

// handleHistory serves /api/v1/keywords/{id}/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/keywords/")
	idStr, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "history" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid keyword id"})
		return
	}

	country := r.URL.Query().Get("country")
	if country == "" {
		country = "us"
	}

	ctx := r.Context()
	kw, err := s.store.GetKeyword(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if kw == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no keyword %d", id)})
		return
	}

	history, err := s.store.History(ctx, id, country)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keyword": kw.Keyword,
		"country": country,
		"data":    history,
		"count":   len(history),
	})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"scheduler": false})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ctx := r.Context()
	var results []store.Result
	var err error

	if v := r.URL.Query().Get("keyword_id"); v != "" {
		id, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid keyword id"})
			return
		}
		country := r.URL.Query().Get("country")
		if country == "" {
			country = "us"
		}
		results, err = s.store.History(ctx, id, country)
	} else {
		results, err = s.store.LatestResults(ctx, store.ResultOpts{
			Country: r.URL.Query().Get("country"),
			PerPage: 10_000,
		})
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="asoradar-export.csv"`)
	if err := export.WriteCSV(w, results); err != nil {
		fmt.Printf("export error: %v\n", err)
	}
}

type addAppRequest struct {
	TrackID int64  `json:"track_id"`
	Country string `json:"country"`
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		apps, err := s.store.ListApps(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  apps,
			"count": len(apps),
		})

	case http.MethodPost:
		var req addAppRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "track_id is required"})
			return
		}
		if req.Country == "" {
			req.Country = "us"
		}
		if !appstore.ValidStorefront(req.Country) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown storefront %q", req.Country)})
			return
		}

		ctx := r.Context()
		meta, err := s.directory.Lookup(ctx, req.TrackID, req.Country)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		if meta == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no app %d in %s store", req.TrackID, req.Country)})
			return
		}

		app := &store.TrackedApp{
			Name:     meta.Name,
			TrackID:  meta.TrackID,
			BundleID: meta.BundleID,
			Country:  req.Country,
		}
		if err := s.store.AddApp(ctx, app); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, app)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleAppReviews serves /api/v1/apps/{id}/reviews.
func (s *Server) handleAppReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.reviews == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "reviews not available"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/apps/")
	idStr, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "reviews" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid app id"})
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	ctx := r.Context()
	app, err := s.store.GetApp(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if app == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no tracked app %d", id)})
		return
	}

	reviews, err := s.reviews.Recent(ctx, app.TrackID, app.Country, limit)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"app":   app.Name,
		"data":  reviews,
		"count": len(reviews),
	})
}

func opportunityOf(r *store.Result) int {
	if r.Popularity == nil {
		return 0
	}
	return scoring.OpportunityScore(*r.Popularity, r.Difficulty)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
