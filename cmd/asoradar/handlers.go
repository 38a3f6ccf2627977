package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/asoradar/asoradar/internal/config"
	"github.com/asoradar/asoradar/internal/scheduler"
	"github.com/asoradar/asoradar/internal/store"
	"github.com/asoradar/asoradar/pkg/alert"
	"github.com/asoradar/asoradar/pkg/appstore"
	"github.com/asoradar/asoradar/pkg/export"
	"github.com/asoradar/asoradar/pkg/research"
	"github.com/asoradar/asoradar/pkg/scoring"
	"github.com/asoradar/asoradar/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runSearch(args []string, countryFlag string, appID int64, jsonOutput, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	keywords := appstore.ParseKeywords(strings.Join(args, ","))
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords given")
	}

	if countryFlag == "" {
		countryFlag = cfg.Search.Country
	}
	countries, err := appstore.ParseCountries(countryFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var app *store.TrackedApp
	if appID != 0 {
		app, err = db.GetApp(ctx, appID)
		if err != nil {
			return fmt.Errorf("load app: %w", err)
		}
		if app == nil {
			return fmt.Errorf("no tracked app with id %d", appID)
		}
	}

	engine := research.NewEngine(appstore.NewClient(), db, cfg.Search.Limit)
	delay := cfg.Search.ParseRequestDelay()
	skipFresh := !force

	var outcomes []*research.Outcome
	for _, country := range countries {
		for _, keyword := range keywords {
			fmt.Fprintf(os.Stderr, "researching %q in %s...\n", keyword, country)
			out, err := engine.Research(ctx, keyword, country, app, skipFresh)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  error: %v\n", err)
				continue
			}
			if out.Skipped {
				fmt.Fprintf(os.Stderr, "  already measured today, skipping (use --force to re-measure)\n")
				continue
			}
			outcomes = append(outcomes, out)
			time.Sleep(delay)
		}
	}

	research.RankByOpportunity(outcomes)

	if jsonOutput {
		results := make([]*store.Result, 0, len(outcomes))
		for _, out := range outcomes {
			results = append(results, out.Result)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(outcomes) == 0 {
		fmt.Println("no results")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEYWORD\tCOUNTRY\tPOP\tDIFF\tBAND\tOPP\tRANK")
	for _, out := range outcomes {
		r := out.Result
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			r.Keyword, r.Country, optInt(r.Popularity), r.Difficulty,
			r.Interpretation, out.Opportunity(), optRank(r.AppRank))
	}
	return w.Flush()
}

func runRank(trackIDArg, keyword, country string) error {
	trackID, err := strconv.ParseInt(trackIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid track id %q", trackIDArg)
	}
	country = strings.ToLower(strings.TrimSpace(country))
	if !appstore.ValidStorefront(country) {
		return fmt.Errorf("unknown storefront %q", country)
	}

	ctx := context.Background()
	client := appstore.NewClient()

	app, err := client.Lookup(ctx, trackID, country)
	if err != nil {
		return fmt.Errorf("lookup app: %w", err)
	}
	if app == nil {
		return fmt.Errorf("no app %d in the %s store", trackID, country)
	}

	rank, ok, err := client.FindAppRank(ctx, keyword, trackID, country)
	if err != nil {
		return fmt.Errorf("find rank: %w", err)
	}
	if !ok {
		fmt.Printf("%s is not in the top %d for %q (%s)\n",
			app.Name, appstore.MaxSearchResults, keyword, country)
		return nil
	}

	fmt.Printf("%s ranks #%d for %q (%s)\n", app.Name, rank, keyword, country)
	return nil
}

func runOpportunity(country string, limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	results, err := db.LatestResults(context.Background(), store.ResultOpts{
		Country: country,
		PerPage: 10_000,
	})
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}

	type row struct {
		store.Result
		Opportunity int `json:"opportunity"`
	}
	rows := make([]row, 0, len(results))
	for i := range results {
		opp := 0
		if results[i].Popularity != nil {
			opp = scoring.OpportunityScore(*results[i].Popularity, results[i].Difficulty)
		}
		rows = append(rows, row{Result: results[i], Opportunity: opp})
	}
	// LatestResults orders by difficulty; re-rank best opportunity first.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Opportunity != rows[j].Opportunity {
			return rows[i].Opportunity > rows[j].Opportunity
		}
		return rows[i].Difficulty < rows[j].Difficulty
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("no results yet (try: asoradar search <keyword>)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPP\tPOP\tDIFF\tBAND\tCOUNTRY\tKEYWORD")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			r.Opportunity, optInt(r.Popularity), r.Difficulty,
			r.Interpretation, r.Country, r.Keyword)
	}
	return w.Flush()
}

func runHistory(keyword, country string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	country = strings.ToLower(strings.TrimSpace(country))

	kw, err := findKeyword(ctx, db, keyword)
	if err != nil {
		return err
	}

	history, err := db.History(ctx, kw.ID, country)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		fmt.Printf("no measurements of %q in %s\n", keyword, country)
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tPOP\tDIFF\tBAND\tRANK")
	for _, r := range history {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.SearchedAt.Format("2006-01-02 15:04"), optInt(r.Popularity),
			r.Difficulty, r.Interpretation, optRank(r.AppRank))
	}
	return w.Flush()
}

func findKeyword(ctx context.Context, db store.Store, keyword string) (*store.Keyword, error) {
	keywords, err := db.ListKeywords(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	for i := range keywords {
		if keywords[i].Keyword == keyword {
			return &keywords[i], nil
		}
	}
	return nil, fmt.Errorf("%q has never been researched (try: asoradar search %q)", keyword, keyword)
}

func runExport(country, keyword, outPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	var results []store.Result

	if keyword != "" {
		kw, err := findKeyword(ctx, db, strings.ToLower(strings.TrimSpace(keyword)))
		if err != nil {
			return err
		}
		if country == "" {
			country = "us"
		}
		results, err = db.History(ctx, kw.ID, country)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
	} else {
		results, err = db.LatestResults(ctx, store.ResultOpts{Country: country, PerPage: 10_000})
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	if err := export.WriteCSV(out, results); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", len(results), outPath)
	}
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	client := appstore.NewClient()
	engine := research.NewEngine(client, db, cfg.Search.Limit)

	srv := server.New(db, engine, client, appstore.NewReviewFeed(), nil, port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	client := appstore.NewClient()
	engine := research.NewEngine(client, db, cfg.Search.Limit)
	alertMgr := buildAlertManager(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(db, engine, alertMgr,
		cfg.Schedule.ParseCheckInterval(),
		cfg.Search.ParseRequestDelay(),
		cfg.Schedule.RetentionDays,
		cfg.Alerts.RankThreshold,
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	srv := server.New(db, engine, client, appstore.NewReviewFeed(), sched.Status, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return srv.ListenAndServe()
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optRank(v *int) string {
	if v == nil {
		return "-"
	}
	return "#" + strconv.Itoa(*v)
}
