package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/asoradar/asoradar/pkg/appstore"
)

// Difficulty scoring: seven sub-scores, each normalized to 0-100 before
// weighting, so the full 1-100 range is usable. Median-based volume and
// velocity prevent a single outlier from skewing the field assessment.
//
// Sub-score weights:
//
//	rating volume       30%     review velocity     10%
//	dominant players    20%     rating quality      10%
//	market age          10%     publisher diversity 10%
//	title relevance     10%
//
// Post-processing overrides correct for the platform's generic
// backfill: when the search cannot find enough apps matching a
// specific keyword it pads the results with popular apps from broader
// terms, which inflates the raw score.

var ratingVolumeBands = []band{
	{50, 5}, {200, 15}, {500, 30}, {2_000, 50},
	{5_000, 65}, {10_000, 78}, {25_000, 88}, {100_000, 95},
}

var velocityBands = []band{
	{10, 5}, {50, 15}, {200, 30}, {1_000, 50},
	{5_000, 70}, {20_000, 85}, {50_000, 95},
}

var qualityBands = []band{
	{3.0, 20}, {3.5, 35}, {4.0, 50}, {4.3, 70}, {4.5, 85}, {5.0, 100},
}

var ageBands = []band{
	{0.5, 10}, {1, 20}, {2, 35}, {3, 50}, {5, 70}, {8, 85}, {10, 100},
}

// Per-app dominance saturates at 10M reviews: log10(reviews)/7 gives
// 100 reviews -> 0.29, 10K -> 0.57, 1M -> 0.86, 10M -> 1.0.
const dominanceLogCeiling = 7.0

// rawResult carries the pre-override score plus the intermediates the
// override and insight stages need.
type rawResult struct {
	score           int
	subs            SubScores
	titleMatchCount int
	medianReviews   float64
	avgReviews      float64
	avgQuality      float64
	ratingCounts    []int
}

// computeRaw runs the core difficulty calculation on a competitor
// slice. It is reused identically for the overall score and for each
// ranking tier; fullResultCount is always the size of the FULL result
// set, so a deliberate tier slice never distorts sample dampening.
func computeRaw(apps []appstore.App, kw keywordContext, fullResultCount int, now time.Time) rawResult {
	n := len(apps)
	if n == 0 {
		return rawResult{}
	}

	ratingCounts := make([]int, n)
	counts := make([]float64, n)
	for i, app := range apps {
		ratingCounts[i] = app.RatingCount
		counts[i] = float64(app.RatingCount)
	}

	// Rating volume (median, log curve).
	medianReviews := median(counts)
	var sum float64
	for _, c := range counts {
		sum += c
	}
	avgReviews := sum / float64(n)
	ratingVolume := interpolate(medianReviews, ratingVolumeBands, logCurve)
	if medianReviews >= 100_000 {
		ratingVolume = 100
	}

	// Review velocity (median reviews per year since release).
	reviewVelocity := velocityScore(apps, now)

	// Dominant players: review-weighted average of per-app dominance.
	// The top half is weighted 2x since high-ranking heavyweights matter more.
	topHalfSize := max(n/2, 1)
	var dominanceTotal float64
	for i, r := range ratingCounts {
		if r <= 0 {
			continue
		}
		dominance := math.Min(1, math.Log10(math.Max(float64(r), 1))/dominanceLogCeiling)
		weight := 1.0
		if i < topHalfSize {
			weight = 2.0
		}
		dominanceTotal += dominance * weight
	}
	weightSum := 2.0*float64(topHalfSize) + float64(max(n-topHalfSize, 0))
	dominantPlayers := math.Min(100, dominanceTotal/math.Max(weightSum, 1)*100)

	// Rating quality: log1p review-weighted star average. A 5.0-star
	// app with one review is noise, not quality evidence.
	var weightedStars, weightTotal float64
	for _, app := range apps {
		if app.Rating > 0 && app.RatingCount > 0 {
			w := math.Log1p(float64(app.RatingCount))
			weightedStars += app.Rating * w
			weightTotal += w
		}
	}
	avgQuality := 0.0
	if weightTotal > 0 {
		avgQuality = weightedStars / weightTotal
	}
	ratingQuality := interpolate(avgQuality, qualityBands, linearCurve)

	// Market age (mean age in years, linear curve).
	marketAge := marketAgeScore(apps, now)

	// Publisher diversity.
	sellers := make(map[string]bool)
	for _, app := range apps {
		if app.Seller != "" {
			sellers[strings.ToLower(app.Seller)] = true
		}
	}
	publisherDiversity := math.Min(100, float64(len(sellers))/float64(n)*100)

	// Title relevance.
	titleMatchCount, _ := kw.titleMatches(apps)
	titleRelevance := math.Min(100, float64(titleMatchCount)/float64(n)*100)

	// Sample dampening on ratio-based sub-scores, driven by the full
	// result count so tiers inherit the keyword's dampening.
	damp := sampleDampening(fullResultCount)
	publisherDiversity *= damp
	titleRelevance *= damp
	dominantPlayers *= damp
	ratingQuality *= damp

	// Backfill-aware relevance down-weighting: sub-scores computed on
	// irrelevant padding apps are misleading.
	matchRatio := float64(titleMatchCount) / float64(n)
	relevance := kw.relevanceFactor(apps, matchRatio)
	publisherDiversity *= relevance
	ratingQuality *= relevance
	marketAge *= relevance

	total := int(ratingVolume*0.30 +
		reviewVelocity*0.10 +
		dominantPlayers*0.20 +
		ratingQuality*0.10 +
		marketAge*0.10 +
		publisherDiversity*0.10 +
		titleRelevance*0.10)
	total = clampInt(total, 1, 100)

	return rawResult{
		score: total,
		subs: SubScores{
			RatingVolume:       round1(ratingVolume),
			ReviewVelocity:     round1(reviewVelocity),
			DominantPlayers:    round1(dominantPlayers),
			RatingQuality:      round1(ratingQuality),
			MarketAge:          round1(marketAge),
			PublisherDiversity: round1(publisherDiversity),
			TitleRelevance:     round1(titleRelevance),
		},
		titleMatchCount: titleMatchCount,
		medianReviews:   medianReviews,
		avgReviews:      avgReviews,
		avgQuality:      avgQuality,
		ratingCounts:    ratingCounts,
	}
}

// velocityScore maps the median reviews-per-year across competitors
// through the velocity calibration curve. Records without a parseable
// release date (zero time) or without reviews are skipped; when nothing
// remains the field gets a neutral mid-range 50.
func velocityScore(apps []appstore.App, now time.Time) float64 {
	var velocities []float64
	for _, app := range apps {
		if app.ReleaseDate.IsZero() || app.RatingCount <= 0 {
			continue
		}
		ageYears := math.Max(0.5, now.Sub(app.ReleaseDate).Hours()/24/365.25)
		velocities = append(velocities, float64(app.RatingCount)/ageYears)
	}
	if len(velocities) == 0 {
		return 50
	}
	v := median(velocities)
	if v >= 50_000 {
		return 100
	}
	return interpolate(v, velocityBands, logCurve)
}

// marketAgeScore maps the mean app age in years through the age curve.
// Older markets are more entrenched. Neutral 50 when no dates parse.
func marketAgeScore(apps []appstore.App, now time.Time) float64 {
	var ages []float64
	for _, app := range apps {
		if app.ReleaseDate.IsZero() {
			continue
		}
		ages = append(ages, now.Sub(app.ReleaseDate).Hours()/24/365.25)
	}
	if len(ages) == 0 {
		return 50
	}
	var sum float64
	for _, a := range ages {
		sum += a
	}
	avgAge := sum / float64(len(ages))
	if avgAge >= 10 {
		return 100
	}
	return interpolate(avgAge, ageBands, linearCurve)
}

// overrideContext is the keyword-level evidence the post-processing
// corrections run on. Tiers reuse the OVERALL context rather than
// recomputing it per slice, so a tier can never dodge a correction the
// keyword as a whole earned.
type overrideContext struct {
	leaderReviews int
	matchRatio    float64
	resultCount   int
	hasKeyword    bool
}

// applyOverrides corrects a score for generic backfill. Returns the
// adjusted score and the LAST override that changed it (later checks
// overwrite earlier reason labels).
func applyOverrides(total int, ctx overrideContext, withSmallCap bool) (int, OverrideReason) {
	reason := OverrideNone
	n := ctx.resultCount

	// Small result set: with very few results there is objectively
	// little competition regardless of how strong those apps are.
	// cap = 12 * n^0.85 tapers smoothly; only applies at n <= 5.
	if withSmallCap && n <= 5 {
		smallCap := int(12 * math.Pow(float64(n), 0.85))
		if total > smallCap {
			total = smallCap
			reason = OverrideSmallResultSet
		}
	}

	if ctx.hasKeyword && n >= 2 {
		// Weak leader: the #1 app's review count is the ultimate
		// reality check. cap = 15 + 35*log10(leader+1)/log10(1001),
		// applied only below 1000 reviews. A high match ratio blends
		// the cap away: a weak leader in a field that genuinely
		// targets the keyword just means no dominant player yet.
		if ctx.leaderReviews < 1_000 {
			cap := int(15 + 35*math.Log10(float64(ctx.leaderReviews)+1)/math.Log10(1001))
			if total > cap {
				if ctx.matchRatio > 0.2 {
					total = int(float64(cap) + float64(total-cap)*ctx.matchRatio)
				} else {
					total = cap
				}
				reason = OverrideWeakLeader
			}
		}

		// Backfill discount: few title matches AND a weak leader means
		// most results are padding from broader terms.
		if ctx.matchRatio < 0.2 && ctx.leaderReviews < 1_000 {
			ratioFactor := math.Min(1, 0.6+2*ctx.matchRatio)
			leaderFactor := math.Log10(float64(ctx.leaderReviews)+1) / math.Log10(1001)
			discount := clamp(ratioFactor+(1-ratioFactor)*leaderFactor, 0.6, 1.0)
			discounted := max(1, int(float64(total)*discount))
			if discounted < total {
				total = discounted
				reason = OverrideBackfill
			}
		}
	}

	return clampInt(total, 1, 100), reason
}

// CalculateDifficulty scores how hard it is to rank for a keyword given
// its competitor field. Returns the final 1-100 score and the full
// breakdown (sub-scores, overrides, insights, opportunity signals and
// ranking tiers). An empty competitor list is valid input and yields
// score 0 with a "No Data" breakdown.
func CalculateDifficulty(apps []appstore.App, keyword string) (int, Breakdown) {
	if len(apps) == 0 {
		return 0, Breakdown{
			Interpretation: "No Data",
			Insights:       []Insight{},
			Signals:        []Signal{},
		}
	}

	now := time.Now().UTC()
	n := len(apps)
	kw := newKeywordContext(keyword)

	raw := computeRaw(apps, kw, n, now)

	ctx := overrideContext{
		leaderReviews: apps[0].RatingCount,
		matchRatio:    float64(raw.titleMatchCount) / float64(n),
		resultCount:   n,
		hasKeyword:    kw.phrase != "",
	}
	total, reason := applyOverrides(raw.score, ctx, true)

	ev := collectEvidence(apps, raw)
	insights := renderInsights(ev)
	if reason != OverrideNone && raw.score != total {
		insights = applyOverrideInsight(insights, overrideEvidence{
			reason:     reason,
			rawScore:   raw.score,
			finalScore: total,
			leaderName: apps[0].Name,
			leader:     ctx.leaderReviews,
			matches:    raw.titleMatchCount,
			matchRatio: ctx.matchRatio,
			n:          n,
		})
	}

	signals := renderSignals(collectSignalEvidence(apps, raw, now))
	tiers := computeTiers(apps, kw, total, ctx, now)

	return total, Breakdown{
		TotalScore:      total,
		RawTotal:        raw.score,
		OverrideReason:  reason,
		SubScores:       raw.subs,
		Interpretation:  interpret(total),
		TitleMatchCount: raw.titleMatchCount,
		MedianReviews:   int(raw.medianReviews),
		AvgReviews:      int(raw.avgReviews),
		Insights:        insights,
		Signals:         signals,
		Tiers:           tiers,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
