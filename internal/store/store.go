package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/asoradar/asoradar/pkg/appstore"
	"github.com/asoradar/asoradar/pkg/scoring"
)

// TrackedApp is an app whose keyword rankings are monitored.
type TrackedApp struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TrackID   int64     `db:"track_id" json:"track_id"`
	BundleID  string    `db:"bundle_id" json:"bundle_id"`
	Country   string    `db:"country" json:"country"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Keyword is a researched search term, optionally pinned to a tracked app.
type Keyword struct {
	ID        int64     `db:"id" json:"id"`
	Keyword   string    `db:"keyword" json:"keyword"`
	AppID     *int64    `db:"app_id" json:"app_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Result is one scored keyword+country measurement. The breakdown,
// competitor list and download estimate are stored as JSON columns and
// decoded on read.
type Result struct {
	ID             int64     `db:"id" json:"id"`
	KeywordID      int64     `db:"keyword_id" json:"keyword_id"`
	Keyword        string    `db:"keyword" json:"keyword"`
	Country        string    `db:"country" json:"country"`
	Popularity     *int      `db:"popularity" json:"popularity"`
	Difficulty     int       `db:"difficulty" json:"difficulty"`
	Interpretation string    `db:"interpretation" json:"interpretation"`
	AppRank        *int      `db:"app_rank" json:"app_rank,omitempty"`
	SearchedAt     time.Time `db:"searched_at" json:"searched_at"`

	BreakdownJSON   string `db:"breakdown" json:"-"`
	CompetitorsJSON string `db:"competitors" json:"-"`
	DownloadsJSON   string `db:"downloads" json:"-"`

	Breakdown   *scoring.Breakdown        `db:"-" json:"breakdown,omitempty"`
	Competitors []appstore.App            `db:"-" json:"competitors,omitempty"`
	Downloads   *scoring.DownloadEstimate `db:"-" json:"downloads,omitempty"`
}

// Pair identifies a keyword+country combination due for a refresh.
type Pair struct {
	KeywordID int64  `db:"keyword_id"`
	Keyword   string `db:"keyword"`
	Country   string `db:"country"`
}

// ResultOpts controls latest-result listing.
type ResultOpts struct {
	AppID   *int64
	Country string
	Page    int
	PerPage int
}

// Store is the persistence interface.
type Store interface {
	AddApp(ctx context.Context, app *TrackedApp) error
	GetApp(ctx context.Context, id int64) (*TrackedApp, error)
	GetAppByTrackID(ctx context.Context, trackID int64, country string) (*TrackedApp, error)
	ListApps(ctx context.Context) ([]TrackedApp, error)
	DeleteApp(ctx context.Context, id int64) error

	UpsertKeyword(ctx context.Context, keyword string, appID *int64) (int64, error)
	GetKeyword(ctx context.Context, id int64) (*Keyword, error)
	ListKeywords(ctx context.Context, appID *int64) ([]Keyword, error)
	CountKeywords(ctx context.Context) (int, error)

	InsertResult(ctx context.Context, r *Result) error
	LatestResults(ctx context.Context, opts ResultOpts) ([]Result, error)
	History(ctx context.Context, keywordID int64, country string) ([]Result, error)
	HasResultSince(ctx context.Context, keywordID int64, country string, since time.Time) (bool, error)
	StalePairs(ctx context.Context, cutoff time.Time) ([]Pair, error)
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AddApp(ctx context.Context, app *TrackedApp) error {
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (name, track_id, bundle_id, country, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(track_id, country) DO UPDATE SET
			name = excluded.name,
			bundle_id = excluded.bundle_id
	`, app.Name, app.TrackID, app.BundleID, app.Country, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("add app %d: %w", app.TrackID, err)
	}
	// LastInsertId is unreliable after a conflict-update, so resolve
	// the row id directly.
	if err := s.db.GetContext(ctx, &app.ID,
		"SELECT id FROM apps WHERE track_id = ? AND country = ?",
		app.TrackID, app.Country); err != nil {
		return fmt.Errorf("add app %d: %w", app.TrackID, err)
	}
	return nil
}

func (s *SQLiteStore) GetApp(ctx context.Context, id int64) (*TrackedApp, error) {
	var app TrackedApp
	err := s.db.GetContext(ctx, &app, "SELECT * FROM apps WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get app %d: %w", id, err)
	}
	return &app, nil
}

func (s *SQLiteStore) GetAppByTrackID(ctx context.Context, trackID int64, country string) (*TrackedApp, error) {
	var app TrackedApp
	err := s.db.GetContext(ctx, &app,
		"SELECT * FROM apps WHERE track_id = ? AND country = ?", trackID, country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get app by track id %d: %w", trackID, err)
	}
	return &app, nil
}

func (s *SQLiteStore) ListApps(ctx context.Context) ([]TrackedApp, error) {
	var apps []TrackedApp
	if err := s.db.SelectContext(ctx, &apps, "SELECT * FROM apps ORDER BY created_at"); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}

func (s *SQLiteStore) DeleteApp(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM apps WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete app %d: %w", id, err)
	}
	return nil
}

// UpsertKeyword returns the id of an existing keyword+app row or
// inserts a new one. A nil appID means a global research keyword.
func (s *SQLiteStore) UpsertKeyword(ctx context.Context, keyword string, appID *int64) (int64, error) {
	query := "SELECT id FROM keywords WHERE keyword = ? AND app_id IS NULL"
	args := []any{keyword}
	if appID != nil {
		query = "SELECT id FROM keywords WHERE keyword = ? AND app_id = ?"
		args = append(args, *appID)
	}

	var id int64
	err := s.db.GetContext(ctx, &id, query, args...)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find keyword %q: %w", keyword, err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO keywords (keyword, app_id, created_at) VALUES (?, ?, ?)",
		keyword, appID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert keyword %q: %w", keyword, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetKeyword(ctx context.Context, id int64) (*Keyword, error) {
	var kw Keyword
	err := s.db.GetContext(ctx, &kw, "SELECT * FROM keywords WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get keyword %d: %w", id, err)
	}
	return &kw, nil
}

func (s *SQLiteStore) ListKeywords(ctx context.Context, appID *int64) ([]Keyword, error) {
	query := "SELECT * FROM keywords ORDER BY keyword"
	var args []any
	if appID != nil {
		query = "SELECT * FROM keywords WHERE app_id = ? ORDER BY keyword"
		args = append(args, *appID)
	}

	var keywords []Keyword
	if err := s.db.SelectContext(ctx, &keywords, query, args...); err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	return keywords, nil
}

func (s *SQLiteStore) CountKeywords(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM keywords"); err != nil {
		return 0, fmt.Errorf("count keywords: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) InsertResult(ctx context.Context, r *Result) error {
	if r.SearchedAt.IsZero() {
		r.SearchedAt = time.Now().UTC()
	}
	if r.Breakdown != nil {
		b, _ := json.Marshal(r.Breakdown)
		r.BreakdownJSON = string(b)
	}
	if r.Competitors != nil {
		b, _ := json.Marshal(r.Competitors)
		r.CompetitorsJSON = string(b)
	}
	if r.Downloads != nil {
		b, _ := json.Marshal(r.Downloads)
		r.DownloadsJSON = string(b)
	}
	if r.BreakdownJSON == "" {
		r.BreakdownJSON = "{}"
	}
	if r.CompetitorsJSON == "" {
		r.CompetitorsJSON = "[]"
	}
	if r.DownloadsJSON == "" {
		r.DownloadsJSON = "{}"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO results (keyword_id, country, popularity, difficulty, interpretation,
			app_rank, breakdown, competitors, downloads, searched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.KeywordID, r.Country, r.Popularity, r.Difficulty, r.Interpretation,
		r.AppRank, r.BreakdownJSON, r.CompetitorsJSON, r.DownloadsJSON, r.SearchedAt)
	if err != nil {
		return fmt.Errorf("insert result keyword %d (%s): %w", r.KeywordID, r.Country, err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// LatestResults returns the newest result per keyword+country pair,
// hardest first.
func (s *SQLiteStore) LatestResults(ctx context.Context, opts ResultOpts) ([]Result, error) {
	query := `
		SELECT r.*, k.keyword FROM results r
		JOIN keywords k ON k.id = r.keyword_id
		WHERE r.id IN (SELECT MAX(id) FROM results GROUP BY keyword_id, country)`
	var args []any

	if opts.AppID != nil {
		query += " AND k.app_id = ?"
		args = append(args, *opts.AppID)
	}
	if opts.Country != "" {
		query += " AND r.country = ?"
		args = append(args, opts.Country)
	}

	query += " ORDER BY r.difficulty DESC, k.keyword"

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, perPage, (page-1)*perPage)

	var results []Result
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("latest results: %w", err)
	}
	decodeResults(results)
	return results, nil
}

// History returns all results for one keyword+country pair, oldest first.
func (s *SQLiteStore) History(ctx context.Context, keywordID int64, country string) ([]Result, error) {
	var results []Result
	err := s.db.SelectContext(ctx, &results, `
		SELECT r.*, k.keyword FROM results r
		JOIN keywords k ON k.id = r.keyword_id
		WHERE r.keyword_id = ? AND r.country = ?
		ORDER BY r.searched_at`, keywordID, country)
	if err != nil {
		return nil, fmt.Errorf("history keyword %d (%s): %w", keywordID, country, err)
	}
	decodeResults(results)
	return results, nil
}

func (s *SQLiteStore) HasResultSince(ctx context.Context, keywordID int64, country string, since time.Time) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM results WHERE keyword_id = ? AND country = ? AND searched_at >= ?",
		keywordID, country, since)
	if err != nil {
		return false, fmt.Errorf("has result since keyword %d: %w", keywordID, err)
	}
	return count > 0, nil
}

// StalePairs returns keyword+country pairs whose newest result predates
// the cutoff. Pairs are returned oldest first so the most out-of-date
// keywords refresh first.
func (s *SQLiteStore) StalePairs(ctx context.Context, cutoff time.Time) ([]Pair, error) {
	var pairs []Pair
	err := s.db.SelectContext(ctx, &pairs, `
		SELECT r.keyword_id, k.keyword, r.country
		FROM results r
		JOIN keywords k ON k.id = r.keyword_id
		GROUP BY r.keyword_id, r.country
		HAVING MAX(r.searched_at) < ?
		ORDER BY MAX(r.searched_at)`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale pairs: %w", err)
	}
	return pairs, nil
}

func (s *SQLiteStore) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM results WHERE searched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete results before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	return res.RowsAffected()
}

func decodeResults(results []Result) {
	for i := range results {
		r := &results[i]
		if r.BreakdownJSON != "" && r.BreakdownJSON != "{}" {
			var b scoring.Breakdown
			if json.Unmarshal([]byte(r.BreakdownJSON), &b) == nil {
				r.Breakdown = &b
			}
		}
		if r.CompetitorsJSON != "" && r.CompetitorsJSON != "[]" {
			json.Unmarshal([]byte(r.CompetitorsJSON), &r.Competitors)
		}
		if r.DownloadsJSON != "" && r.DownloadsJSON != "{}" {
			var d scoring.DownloadEstimate
			if json.Unmarshal([]byte(r.DownloadsJSON), &d) == nil {
				r.Downloads = &d
			}
		}
	}
}
