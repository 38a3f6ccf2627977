package scoring

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/asoradar/asoradar/pkg/appstore"
)

// Insight and signal generation is split in two steps: the scorer
// collects an evidence value (which thresholds were crossed, counts),
// and a separate rendering step turns evidence into text. Scoring tests
// never depend on exact wording.

// insightEvidence captures the facts the difficulty insights are built
// from.
type insightEvidence struct {
	n             int
	ultraCount    int // top-half apps with >1M reviews
	megaCount     int // top-half apps with >100K reviews
	seriousCount  int // apps with >10K reviews
	weakCount     int // apps with <1K reviews
	titleMatches  int
	medianReviews float64
	avgReviews    float64
	avgQuality    float64
}

func collectEvidence(apps []appstore.App, raw rawResult) insightEvidence {
	n := len(apps)
	topHalf := raw.ratingCounts[:max(n/2, 1)]

	ev := insightEvidence{
		n:             n,
		titleMatches:  raw.titleMatchCount,
		medianReviews: raw.medianReviews,
		avgReviews:    raw.avgReviews,
		avgQuality:    raw.avgQuality,
	}
	for _, r := range raw.ratingCounts {
		if r > 10_000 {
			ev.seriousCount++
		}
		if r < 1_000 {
			ev.weakCount++
		}
	}
	for _, r := range topHalf {
		if r > 100_000 {
			ev.megaCount++
		}
		if r > 1_000_000 {
			ev.ultraCount++
		}
	}
	return ev
}

func renderInsights(ev insightEvidence) []Insight {
	var insights []Insight

	if ev.ultraCount > 0 {
		insights = append(insights, Insight{
			Icon: "🏢", Type: InsightBarrier,
			Text: fmt.Sprintf("%d %s with 1M+ reviews — dominated by major brands",
				ev.ultraCount, plural(ev.ultraCount, "app", "apps")),
		})
	} else if ev.megaCount > 0 {
		insights = append(insights, Insight{
			Icon: "⚠️", Type: InsightBarrier,
			Text: fmt.Sprintf("%d %s with 100K+ reviews — strong incumbents",
				ev.megaCount, plural(ev.megaCount, "app", "apps")),
		})
	}

	if ev.avgReviews > 0 && ev.medianReviews > 0 && ev.avgReviews > ev.medianReviews*3 {
		insights = append(insights, Insight{
			Icon: "📊", Type: InsightInfo,
			Text: fmt.Sprintf("Review distribution is skewed — median (%s) is much lower than mean (%s). A few giants inflate the average.",
				groupInt(int(ev.medianReviews)), groupInt(int(ev.avgReviews))),
		})
	}

	switch {
	case ev.titleMatches == 0 && ev.n > 0:
		insights = append(insights, Insight{
			Icon: "🎯", Type: InsightOpportunity,
			Text: "No competitors have this exact keyword in their title — potential title optimization gap",
		})
	case ev.titleMatches <= 2:
		insights = append(insights, Insight{
			Icon: "🎯", Type: InsightOpportunity,
			Text: fmt.Sprintf("Only %d of %d competitors use this keyword in their title",
				ev.titleMatches, ev.n),
		})
	default:
		insights = append(insights, Insight{
			Icon: "🔒", Type: InsightBarrier,
			Text: fmt.Sprintf("%d of %d competitors already have this keyword in their title",
				ev.titleMatches, ev.n),
		})
	}

	if ev.avgQuality >= 4.5 {
		insights = append(insights, Insight{
			Icon: "⭐", Type: InsightBarrier,
			Text: fmt.Sprintf("High quality bar — avg rating is %.1f stars. Users expect excellence.",
				ev.avgQuality),
		})
	}

	if ev.weakCount >= 3 {
		insights = append(insights, Insight{
			Icon: "💡", Type: InsightOpportunity,
			Text: fmt.Sprintf("%d of %d competitors have <1,000 reviews — beatable with a quality app",
				ev.weakCount, ev.n),
		})
	}

	return insights
}

// overrideEvidence describes a score correction for explanation.
type overrideEvidence struct {
	reason     OverrideReason
	rawScore   int
	finalScore int
	leaderName string
	leader     int
	matches    int
	matchRatio float64
	n          int
}

// applyOverrideInsight prepends an explanatory insight for a fired
// override and, when most results are backfill, qualifies any insight
// that would misattribute padding apps as genuine competition.
func applyOverrideInsight(insights []Insight, ov overrideEvidence) []Insight {
	var text string
	switch {
	case ov.reason == OverrideSmallResultSet:
		text = fmt.Sprintf("Score adjusted from %d → %d. Only %d %s found for this keyword — very little competition exists.",
			ov.rawScore, ov.finalScore, ov.n, plural(ov.n, "app", "apps"))
	case ov.matchRatio > 0.3:
		text = fmt.Sprintf("Score adjusted from %d → %d. The #1 app (%s) has only %s %s, but %d of %d competitors target this keyword — real competition exists.",
			ov.rawScore, ov.finalScore, ov.leaderName, groupInt(ov.leader),
			plural(ov.leader, "review", "reviews"), ov.matches, ov.n)
	default:
		text = fmt.Sprintf("Score adjusted from %d → %d. The #1 app (%s) has only %s %s. The remaining results are generic backfill from broader search terms — not real competition for this specific keyword.",
			ov.rawScore, ov.finalScore, ov.leaderName, groupInt(ov.leader),
			plural(ov.leader, "review", "reviews"))
	}

	if (ov.reason == OverrideWeakLeader || ov.reason == OverrideBackfill) && ov.matchRatio <= 0.3 {
		for i, insight := range insights {
			if claimsRealCompetition(insight.Text) {
				insights[i].Text = insight.Text + " (but most are backfill, not targeting this keyword)"
				insights[i].Type = InsightInfo
			}
		}
	}

	return append([]Insight{{Icon: "📍", Type: InsightOpportunity, Text: text}}, insights...)
}

// claimsRealCompetition flags insight wording that would mislead when
// the field is mostly backfill.
func claimsRealCompetition(text string) bool {
	for _, phrase := range []string{
		"strong incumbents",
		"dominated by major brands",
		"High quality bar",
		"Users expect excellence",
	} {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// signalEvidence captures the facts the opportunity signals are built
// from.
type signalEvidence struct {
	n              int
	titleMatches   int
	weakCount      int
	weakestName    string
	weakestReviews int
	freshCount     int
	genres         []string
}

func collectSignalEvidence(apps []appstore.App, raw rawResult, now time.Time) signalEvidence {
	ev := signalEvidence{
		n:            len(apps),
		titleMatches: raw.titleMatchCount,
	}

	weakestReviews := -1
	for _, app := range apps {
		if app.RatingCount < 1_000 {
			ev.weakCount++
			if weakestReviews < 0 || app.RatingCount < weakestReviews {
				weakestReviews = app.RatingCount
				ev.weakestName = app.Name
			}
		}
		if !app.ReleaseDate.IsZero() && now.Sub(app.ReleaseDate).Hours() < 365*24 {
			ev.freshCount++
		}
	}
	if weakestReviews >= 0 {
		ev.weakestReviews = weakestReviews
	}

	seen := make(map[string]bool)
	for _, app := range apps {
		if app.Genre != "" && !seen[app.Genre] {
			seen[app.Genre] = true
			ev.genres = append(ev.genres, app.Genre)
		}
	}
	sort.Strings(ev.genres)
	return ev
}

func renderSignals(ev signalEvidence) []Signal {
	var signals []Signal

	switch {
	case ev.titleMatches == 0:
		signals = append(signals, Signal{
			Name: "Title Gap", Icon: "🎯", Strength: "Strong",
			Detail: "No top app has this keyword in its title. Exact-match title optimization could give you an edge in search rankings.",
		})
	case ev.titleMatches <= ev.n/3:
		signals = append(signals, Signal{
			Name: "Title Gap", Icon: "🎯", Strength: "Moderate",
			Detail: fmt.Sprintf("Only %d of %d competitors have this keyword in their title. There's room for title optimization.",
				ev.titleMatches, ev.n),
		})
	}

	if ev.weakCount > 0 {
		strength := "Moderate"
		if ev.weakCount >= 3 {
			strength = "Strong"
		}
		signals = append(signals, Signal{
			Name: "Weak Competitors", Icon: "📉", Strength: strength,
			Detail: fmt.Sprintf("%d of %d apps have <1,000 reviews. The weakest (%s) has only %s reviews — these positions are displaceable.",
				ev.weakCount, ev.n, ev.weakestName, groupInt(ev.weakestReviews)),
		})
	}

	if ev.freshCount > 0 {
		signals = append(signals, Signal{
			Name: "Active Market", Icon: "🆕", Strength: "Moderate",
			Detail: fmt.Sprintf("%d %s launched in the last 12 months — this market is still attracting new entrants.",
				ev.freshCount, plural(ev.freshCount, "app", "apps")),
		})
	}

	if len(ev.genres) >= 3 {
		shown := ev.genres
		suffix := ""
		if len(shown) > 3 {
			shown = shown[:3]
			suffix = "..."
		}
		signals = append(signals, Signal{
			Name: "Cross-Genre", Icon: "🔀", Strength: "Moderate",
			Detail: fmt.Sprintf("Results span %d genres (%s%s). The keyword isn't locked to one category — a well-positioned app in any genre could rank.",
				len(ev.genres), strings.Join(shown, ", "), suffix),
		})
	}

	return signals
}

// groupInt formats an integer with thousands separators.
func groupInt(v int) string {
	s := strconv.Itoa(v)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
