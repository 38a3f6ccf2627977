package scoring

import (
	"math"

	"github.com/asoradar/asoradar/pkg/appstore"
)

// Popularity is derived from the competitor landscape: the platform
// does not expose true search volume, so demand is inferred from how
// strong the field ranking for a keyword is. Keywords with high search
// volume attract strong apps.
//
// Score range 5-100 (the legacy Search Ads popularity scale).

var leaderBands = []band{
	{10, 1}, {100, 5}, {1_000, 10}, {10_000, 17}, {100_000, 24}, {1_000_000, 30},
}

var depthBands = []band{
	{10, 0.5}, {100, 3}, {1_000, 5}, {10_000, 8}, {50_000, 10},
}

// specificityPoints: longer, more specific queries have inherently
// lower search volume. Piecewise-linear over the keyword's word count.
var specificityPoints = []band{
	{1, 0}, {2, -3}, {3, -8}, {4, -15}, {5, -22}, {6, -28},
}

// EstimatePopularity estimates keyword search popularity from
// competitor data. Six additive signals:
//
//  1. Result coverage (0-25): more results = broader topic.
//  2. Leader strength (0-30): review counts of the top half proxy volume.
//  3. Title match density (0-20): developers optimizing = demand.
//  4. Market depth (0-10): median review count across the field.
//  5. Specificity penalty (0 to -28): long-tail queries search less.
//  6. Exact-phrase bonus (0-15): the phrase itself is a known term.
//
// Field-strength signals are scaled by the relevance factor (backfill
// correction) and ratio signals by sample dampening.
//
// ok is false iff there are no competitors.
func EstimatePopularity(apps []appstore.App, keyword string) (score int, ok bool) {
	n := len(apps)
	if n == 0 {
		return 0, false
	}

	kw := newKeywordContext(keyword)

	// Signal 1: result coverage.
	resultScore := math.Min(25, float64(n)*2.5)

	// Signal 2: leader strength. Only the top half counts; tail
	// positions are often backfill from broader terms.
	topHalf := apps[:max(n/2, 1)]
	maxReviews := 0
	for _, app := range topHalf {
		if app.RatingCount > maxReviews {
			maxReviews = app.RatingCount
		}
	}
	leaderScore := interpolate(float64(maxReviews), leaderBands, logCurve)

	// Signal 3: title match density.
	matches, exact := kw.titleMatches(apps)
	matchRatio := float64(matches) / float64(n)
	titleScore := math.Min(20, matchRatio*40)

	// Signal 4: market depth (median reviews).
	counts := make([]float64, n)
	for i, app := range apps {
		counts[i] = float64(app.RatingCount)
	}
	depthScore := interpolate(median(counts), depthBands, logCurve)

	// Signal 5: specificity penalty.
	words := kw.wordCount()
	var specificity float64
	switch {
	case words <= 1:
		specificity = 0
	case words >= 6:
		specificity = -28
	default:
		specificity = linearPoints(float64(words), specificityPoints)
	}

	// Signal 6: exact-phrase bonus.
	exactRatio := float64(exact) / float64(n)
	exactBonus := math.Min(15, exactRatio*50)

	// Ratio signals are unreliable on small samples.
	damp := sampleDampening(n)
	titleScore *= damp
	exactBonus *= damp

	// Field-strength signals are inflated by backfill padding.
	relevance := kw.relevanceFactor(apps, matchRatio)
	resultScore *= relevance
	leaderScore *= relevance
	depthScore *= relevance

	total := int(math.Round(resultScore + leaderScore + titleScore + depthScore + specificity + exactBonus))
	return clampInt(total, 5, 100), true
}

// linearPoints interpolates linearly between calibration points whose
// x values (thresholds) bracket v. v must be within the table range.
func linearPoints(v float64, pts []band) float64 {
	for i := 1; i < len(pts); i++ {
		if v <= pts[i].threshold {
			lo, hi := pts[i-1], pts[i]
			t := (v - lo.threshold) / (hi.threshold - lo.threshold)
			return lo.score + t*(hi.score-lo.score)
		}
	}
	return pts[len(pts)-1].score
}
