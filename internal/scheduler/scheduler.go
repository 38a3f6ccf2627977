package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/asoradar/asoradar/internal/store"
	"github.com/asoradar/asoradar/pkg/alert"
	"github.com/asoradar/asoradar/pkg/research"
)

// Scheduler refreshes stale keyword results once a day and fires
// change alerts. Progress is owned by the scheduler and read through
// Status(); there is no shared global state.
type Scheduler struct {
	store         store.Store
	engine        *research.Engine
	alertMgr      *alert.Manager
	checkInterval time.Duration
	requestDelay  time.Duration
	retention     time.Duration
	rankThreshold int

	mu     sync.Mutex
	status Status
}

// Status is a snapshot of refresh progress.
type Status struct {
	Running   bool      `json:"running"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Current   string    `json:"current_keyword,omitempty"`
	Errors    int       `json:"errors"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
}

// New creates a scheduler.
func New(
	s store.Store,
	engine *research.Engine,
	alertMgr *alert.Manager,
	checkInterval, requestDelay time.Duration,
	retentionDays, rankThreshold int,
) *Scheduler {
	if checkInterval == 0 {
		checkInterval = time.Hour
	}
	if requestDelay == 0 {
		requestDelay = 2 * time.Second
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if rankThreshold <= 0 {
		rankThreshold = 5
	}
	return &Scheduler{
		store:         s,
		engine:        engine,
		alertMgr:      alertMgr,
		checkInterval: checkInterval,
		requestDelay:  requestDelay,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		rankThreshold: rankThreshold,
	}
}

// Status returns a copy of the current refresh progress.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	fmt.Fprintf(os.Stderr, "scheduler: running (checking every %s)\n", s.checkInterval)
	s.refreshStale(ctx)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refreshStale(ctx)
		}
	}
}

// refreshStale re-scores every keyword+country pair whose latest result
// predates today, serially with a pause between API calls. A failing
// pair is logged and skipped; the run continues.
func (s *Scheduler) refreshStale(ctx context.Context) {
	pairs, err := s.store.StalePairs(ctx, startOfToday())
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: stale lookup error: %v\n", err)
		return
	}
	if len(pairs) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "scheduler: refreshing %d stale pairs\n", len(pairs))
	s.setStatus(func(st *Status) {
		*st = Status{Running: true, Total: len(pairs), StartedAt: time.Now().UTC(), LastRun: st.LastRun}
	})

	apps := s.appsByID(ctx)

	for i, pair := range pairs {
		s.setStatus(func(st *Status) {
			st.Current = fmt.Sprintf("%s (%s)", pair.Keyword, pair.Country)
		})

		kw, err := s.store.GetKeyword(ctx, pair.KeywordID)
		if err != nil || kw == nil {
			s.recordDone(1)
			continue
		}
		var tracked *store.TrackedApp
		if kw.AppID != nil {
			tracked = apps[*kw.AppID]
		}

		out, err := s.engine.Research(ctx, pair.Keyword, pair.Country, tracked, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s (%s) error: %v\n", pair.Keyword, pair.Country, err)
			s.setStatus(func(st *Status) { st.Errors++ })
			s.recordDone(1)
			continue
		}
		if !out.Skipped {
			s.checkAlerts(ctx, out)
		}
		s.recordDone(1)

		if i < len(pairs)-1 {
			select {
			case <-ctx.Done():
				s.finishRun()
				return
			case <-time.After(s.requestDelay):
			}
		}
	}

	if deleted, err := s.store.DeleteResultsBefore(ctx, time.Now().UTC().Add(-s.retention)); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: retention cleanup error: %v\n", err)
	} else if deleted > 0 {
		fmt.Fprintf(os.Stderr, "scheduler: pruned %d old results\n", deleted)
	}

	s.finishRun()
	fmt.Fprintln(os.Stderr, "scheduler: refresh complete")
}

// checkAlerts compares a fresh result with the previous one and
// broadcasts rank and difficulty-band changes.
func (s *Scheduler) checkAlerts(ctx context.Context, out *research.Outcome) {
	if s.alertMgr == nil || !s.alertMgr.HasNotifiers() || out.Previous == nil {
		return
	}
	r, prev := out.Result, out.Previous

	if r.AppRank != nil && prev.AppRank != nil && out.TrackedBy != nil {
		if delta := *r.AppRank - *prev.AppRank; delta >= s.rankThreshold || delta <= -s.rankThreshold {
			n := alert.RankChange(out.TrackedBy.Name, r.Keyword, r.Country, *prev.AppRank, *r.AppRank)
			if err := s.alertMgr.Broadcast(ctx, n); err != nil {
				fmt.Fprintf(os.Stderr, "  alert error for %q: %v\n", r.Keyword, err)
			}
		}
	}

	if prev.Interpretation != "" && r.Interpretation != prev.Interpretation {
		n := alert.DifficultyChange(r.Keyword, r.Country, prev.Interpretation, r.Interpretation, r.Difficulty)
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			fmt.Fprintf(os.Stderr, "  alert error for %q: %v\n", r.Keyword, err)
		}
	}
}

func (s *Scheduler) appsByID(ctx context.Context) map[int64]*store.TrackedApp {
	apps := make(map[int64]*store.TrackedApp)
	list, err := s.store.ListApps(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: list apps error: %v\n", err)
		return apps
	}
	for i := range list {
		apps[list[i].ID] = &list[i]
	}
	return apps
}

func (s *Scheduler) setStatus(mutate func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.status)
}

func (s *Scheduler) recordDone(n int) {
	s.setStatus(func(st *Status) { st.Completed += n })
}

func (s *Scheduler) finishRun() {
	s.setStatus(func(st *Status) {
		st.Running = false
		st.Current = ""
		st.LastRun = time.Now().UTC()
	})
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
