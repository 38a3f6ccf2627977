package scoring

import (
	"fmt"
	"time"

	"github.com/asoradar/asoradar/pkg/appstore"
)

// Ranking tiers analyze the top 5, 10 and 20 positions as their own
// competitive sub-markets, using the same difficulty algorithm as the
// overall score so tier labels stay consistent with it.

// computeTiers slices the competitor list per tier and scores each
// slice. Dampening uses the FULL result count and the weak-leader /
// backfill corrections use the OVERALL context (keyword-level signals,
// not tier-local ones). Two consistency rules are then enforced:
//
//	floor:    every tier scores at least the overall score (a subset of
//	          the field is never easier to crack than the whole field)
//	ceiling:  top_10 <= top_5 and top_20 <= top_10 (more slots = easier)
//
// Labels are re-derived from the adjusted scores.
func computeTiers(apps []appstore.App, kw keywordContext, overallScore int, ctx overrideContext, now time.Time) RankingTiers {
	tiers := RankingTiers{
		Top5:  computeTier(apps, 5, kw, ctx, now),
		Top10: computeTier(apps, 10, kw, ctx, now),
		Top20: computeTier(apps, 20, kw, ctx, now),
	}

	if overallScore > 0 {
		floorTier(&tiers.Top5, overallScore)
		floorTier(&tiers.Top10, overallScore)
		floorTier(&tiers.Top20, overallScore)
	}

	if tiers.Top10.Score > tiers.Top5.Score {
		tiers.Top10.Score = tiers.Top5.Score
	}
	if tiers.Top20.Score > tiers.Top10.Score {
		tiers.Top20.Score = tiers.Top10.Score
	}

	tiers.Top5.Label = interpret(tiers.Top5.Score)
	tiers.Top10.Label = interpret(tiers.Top10.Score)
	tiers.Top20.Label = interpret(tiers.Top20.Score)
	return tiers
}

func floorTier(t *TierResult, overallScore int) {
	if t.Score < overallScore {
		t.Score = overallScore
	}
}

func computeTier(apps []appstore.App, size int, kw keywordContext, ctx overrideContext, now time.Time) TierResult {
	slice := apps
	if len(slice) > size {
		slice = slice[:size]
	}
	n := len(slice)
	if n == 0 {
		return TierResult{
			WeakestApp: "—",
			Label:      "Easy",
			Highlights: []string{"No competitors found — wide open."},
		}
	}

	raw := computeRaw(slice, kw, ctx.resultCount, now)

	// Overall corrections, minus the small-result-set cap (that one is
	// about the whole keyword, not a deliberate slice).
	score, _ := applyOverrides(raw.score, ctx, false)

	minReviews := raw.ratingCounts[0]
	minIdx := 0
	for i, r := range raw.ratingCounts {
		if r < minReviews {
			minReviews = r
			minIdx = i
		}
	}

	weak := 0
	for _, r := range raw.ratingCounts {
		if r < 1_000 {
			weak++
		}
	}

	fresh := 0
	for _, app := range slice {
		if !app.ReleaseDate.IsZero() && now.Sub(app.ReleaseDate).Hours() < 365*24 {
			fresh++
		}
	}

	return TierResult{
		MinReviews:        minReviews,
		WeakestApp:        slice[minIdx].Name,
		MedianReviews:     int(raw.medianReviews),
		WeakCount:         weak,
		FreshCount:        fresh,
		TitleKeywordCount: raw.titleMatchCount,
		TotalApps:         n,
		Score:             score,
		Label:             interpret(score),
		Highlights: tierHighlights(size, n, minReviews, slice[minIdx].Name,
			weak, fresh, raw.titleMatchCount),
	}
}

// tierHighlights renders plain-English bullets for a tier card.
func tierHighlights(size, n, minReviews int, weakestApp string, weak, fresh, titleMatches int) []string {
	var highlights []string

	if n < size {
		open := size - n
		highlights = append(highlights, fmt.Sprintf(
			"Only %d %s rank here — %d open %s.",
			n, plural(n, "app", "apps"), open, plural(open, "spot", "spots")))
		return highlights
	}

	switch {
	case minReviews < 100:
		highlights = append(highlights, fmt.Sprintf(
			"The easiest app to beat has just %s reviews.", groupInt(minReviews)))
	case minReviews < 1_000:
		highlights = append(highlights, fmt.Sprintf(
			"You need ~%s+ reviews to compete (weakest: %s).", groupInt(minReviews), weakestApp))
	case minReviews < 10_000:
		highlights = append(highlights, fmt.Sprintf(
			"You need ~%s+ reviews to break in.", groupInt(minReviews)))
	default:
		highlights = append(highlights, fmt.Sprintf(
			"Requires ~%s+ reviews — established market.", groupInt(minReviews)))
	}

	if weak > 0 {
		highlights = append(highlights, fmt.Sprintf(
			"%d of %d apps have under 1K reviews — beatable.", weak, n))
	} else {
		highlights = append(highlights, "Every app here has 1K+ reviews — no easy targets.")
	}

	if fresh > 0 {
		highlights = append(highlights, fmt.Sprintf(
			"%d %s broke in within the last year.", fresh, plural(fresh, "app", "apps")))
	}

	switch {
	case titleMatches == 0:
		highlights = append(highlights,
			"No app uses this exact keyword in its title — ASO opportunity!")
	case titleMatches < n/2:
		highlights = append(highlights, fmt.Sprintf(
			"Only %d of %d apps use this keyword in their title.", titleMatches, n))
	default:
		highlights = append(highlights, fmt.Sprintf(
			"%d of %d apps already target this keyword in their title.", titleMatches, n))
	}

	return highlights
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
