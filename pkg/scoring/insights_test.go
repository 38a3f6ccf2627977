package scoring

import (
	"strings"
	"testing"
	"time"
)

func findInsight(insights []Insight, substr string) (Insight, bool) {
	for _, in := range insights {
		if strings.Contains(in.Text, substr) {
			return in, true
		}
	}
	return Insight{}, false
}

func findSignal(signals []Signal, name string) (Signal, bool) {
	for _, s := range signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

func TestRenderInsightsBrandBarrier(t *testing.T) {
	ev := insightEvidence{
		n:             10,
		ultraCount:    2,
		megaCount:     4,
		titleMatches:  8,
		medianReviews: 2_000_000,
		avgReviews:    2_500_000,
		avgQuality:    4.7,
	}
	insights := renderInsights(ev)

	brand, ok := findInsight(insights, "dominated by major brands")
	if !ok {
		t.Fatal("missing major-brands insight")
	}
	if brand.Type != InsightBarrier || brand.Icon != "🏢" {
		t.Errorf("brand insight = %+v", brand)
	}
	// Ultra-count suppresses the weaker 100K+ line.
	if _, ok := findInsight(insights, "strong incumbents"); ok {
		t.Error("100K+ insight should be replaced by the 1M+ one")
	}
	if lock, ok := findInsight(insights, "already have this keyword"); !ok || lock.Type != InsightBarrier {
		t.Errorf("expected title-lock barrier, got %+v", lock)
	}
	if _, ok := findInsight(insights, "High quality bar"); !ok {
		t.Error("missing quality-bar insight at 4.7 stars")
	}
}

func TestRenderInsightsOpportunities(t *testing.T) {
	ev := insightEvidence{
		n:            8,
		weakCount:    5,
		titleMatches: 0,
	}
	insights := renderInsights(ev)

	if gap, ok := findInsight(insights, "title optimization gap"); !ok || gap.Type != InsightOpportunity {
		t.Errorf("expected title-gap opportunity, got %+v", gap)
	}
	if weak, ok := findInsight(insights, "beatable with a quality app"); !ok || weak.Icon != "💡" {
		t.Errorf("expected weak-field opportunity, got %+v", weak)
	}
}

func TestRenderInsightsSkewedDistribution(t *testing.T) {
	ev := insightEvidence{
		n: 10, titleMatches: 5,
		medianReviews: 1_000,
		avgReviews:    50_000,
	}
	skew, ok := findInsight(renderInsights(ev), "Review distribution is skewed")
	if !ok {
		t.Fatal("missing skew insight for mean 50x the median")
	}
	if skew.Type != InsightInfo {
		t.Errorf("skew insight type = %q, want info", skew.Type)
	}
	if !strings.Contains(skew.Text, "1,000") || !strings.Contains(skew.Text, "50,000") {
		t.Errorf("skew text missing grouped numbers: %q", skew.Text)
	}
}

func TestApplyOverrideInsightBackfill(t *testing.T) {
	base := []Insight{
		{Icon: "⚠️", Type: InsightBarrier, Text: "9 apps with 100K+ reviews — strong incumbents"},
		{Icon: "⭐", Type: InsightBarrier, Text: "High quality bar — avg rating is 4.6 stars. Users expect excellence."},
		{Icon: "🎯", Type: InsightOpportunity, Text: "Only 0 of 10 competitors use this keyword in their title"},
	}
	out := applyOverrideInsight(base, overrideEvidence{
		reason:     OverrideBackfill,
		rawScore:   56,
		finalScore: 27,
		leaderName: "Niche Invoice Helper",
		leader:     500,
		matchRatio: 0,
		n:          10,
	})

	if out[0].Icon != "📍" {
		t.Fatalf("override insight not prepended: %+v", out[0])
	}
	if !strings.Contains(out[0].Text, "56 → 27") {
		t.Errorf("override text missing adjustment: %q", out[0].Text)
	}
	if !strings.Contains(out[0].Text, "generic backfill") {
		t.Errorf("backfill text = %q", out[0].Text)
	}

	// Barrier lines that imply real competition get qualified and
	// downgraded to informational.
	incumbents, _ := findInsight(out, "strong incumbents")
	if !strings.Contains(incumbents.Text, "not targeting this keyword") {
		t.Errorf("incumbents insight not qualified: %q", incumbents.Text)
	}
	if incumbents.Type != InsightInfo {
		t.Errorf("qualified insight type = %q, want info", incumbents.Type)
	}
	quality, _ := findInsight(out, "High quality bar")
	if quality.Type != InsightInfo {
		t.Errorf("quality insight type = %q, want info", quality.Type)
	}
	// Opportunity lines are left alone.
	title, _ := findInsight(out, "use this keyword in their title")
	if title.Type != InsightOpportunity {
		t.Errorf("title insight type changed: %+v", title)
	}
}

func TestApplyOverrideInsightWeakLeaderWithRealCompetition(t *testing.T) {
	base := []Insight{
		{Icon: "⚠️", Type: InsightBarrier, Text: "3 apps with 100K+ reviews — strong incumbents"},
	}
	out := applyOverrideInsight(base, overrideEvidence{
		reason:     OverrideWeakLeader,
		rawScore:   40,
		finalScore: 33,
		leaderName: "Budget Buddy",
		leader:     120,
		matches:    7,
		matchRatio: 0.7,
		n:          10,
	})

	if !strings.Contains(out[0].Text, "real competition exists") {
		t.Errorf("override text = %q", out[0].Text)
	}
	// match ratio above the backfill threshold: barrier lines stand.
	incumbents, _ := findInsight(out, "strong incumbents")
	if incumbents.Type != InsightBarrier || strings.Contains(incumbents.Text, "backfill") {
		t.Errorf("insight wrongly qualified: %+v", incumbents)
	}
}

func TestApplyOverrideInsightSmallResultSet(t *testing.T) {
	out := applyOverrideInsight(nil, overrideEvidence{
		reason:     OverrideSmallResultSet,
		rawScore:   61,
		finalScore: 30,
		n:          3,
	})
	if len(out) != 1 {
		t.Fatalf("got %d insights, want 1", len(out))
	}
	if !strings.Contains(out[0].Text, "Only 3 apps found") {
		t.Errorf("small-set text = %q", out[0].Text)
	}
}

func TestRenderSignals(t *testing.T) {
	now := time.Now().UTC()
	apps := uniformField(9, "Running Log", 5_000, 4.2, 3)
	apps[3].RatingCount = 200
	apps[5].RatingCount = 40
	apps[5].Name = "Jog Notes"
	apps[8].RatingCount = 900
	apps[2].ReleaseDate = now.Add(-90 * 24 * time.Hour)
	apps[1].Genre = "Health & Fitness"
	apps[4].Genre = "Lifestyle"
	apps[6].Genre = "Medical"

	raw := computeRaw(apps, newKeywordContext("cycling"), len(apps), now)
	signals := renderSignals(collectSignalEvidence(apps, raw, now))

	gap, ok := findSignal(signals, "Title Gap")
	if !ok || gap.Strength != "Strong" {
		t.Errorf("title gap = %+v, want Strong with zero matches", gap)
	}

	weak, ok := findSignal(signals, "Weak Competitors")
	if !ok || weak.Strength != "Strong" {
		t.Fatalf("weak competitors = %+v, want Strong with 3 weak apps", weak)
	}
	if !strings.Contains(weak.Detail, "Jog Notes") || !strings.Contains(weak.Detail, "40 reviews") {
		t.Errorf("weak detail = %q", weak.Detail)
	}

	fresh, ok := findSignal(signals, "Active Market")
	if !ok || !strings.Contains(fresh.Detail, "1 app launched") {
		t.Errorf("active market = %+v", fresh)
	}

	genre, ok := findSignal(signals, "Cross-Genre")
	if !ok {
		t.Fatal("missing cross-genre signal for 4 distinct genres")
	}
	if !strings.Contains(genre.Detail, "4 genres") || !strings.Contains(genre.Detail, "...") {
		t.Errorf("genre detail = %q", genre.Detail)
	}
}

func TestRenderSignalsQuietField(t *testing.T) {
	// Majority title matches, no weak apps, nothing fresh, one genre:
	// no signal fires.
	apps := uniformField(6, "Chess Club", 10_000, 4.5, 5)
	now := time.Now().UTC()
	raw := computeRaw(apps, newKeywordContext("chess club"), len(apps), now)
	if signals := renderSignals(collectSignalEvidence(apps, raw, now)); len(signals) != 0 {
		t.Errorf("expected no signals, got %+v", signals)
	}
}

func TestGroupInt(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1,000"},
		{2_500_000, "2,500,000"},
		{-1_234, "-1,234"},
	}
	for _, tt := range tests {
		if got := groupInt(tt.in); got != tt.want {
			t.Errorf("groupInt(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
