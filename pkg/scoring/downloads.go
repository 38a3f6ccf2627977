package scoring

import "math"

// Download estimation combines three models: popularity -> estimated
// daily searches (calibrated against observed rank/download pairs),
// position -> tap-through rate (power-law decay after position 1), and
// a tap -> install conversion range typical for free apps. Everything
// is a rough estimate presented as a low-high range.

// popToSearches: popularity score -> estimated daily searches,
// piecewise linear. The platform publishes no search volumes; these are
// conservative anchors cross-checked against real download and rank
// observations.
var popToSearches = []band{
	{5, 1}, {10, 2}, {15, 5}, {20, 10}, {25, 20},
	{30, 35}, {35, 60}, {40, 100}, {45, 170}, {50, 300},
	{55, 480}, {60, 700}, {65, 1_000}, {70, 1_500}, {75, 2_500},
	{80, 4_000}, {85, 6_500}, {90, 10_000}, {95, 16_000}, {100, 25_000},
}

// tapThroughRates: fraction of searchers who tap the result at each
// position. Drops sharply after #1, then decays gradually.
var tapThroughRates = [20]float64{
	0.30, 0.15, 0.10, 0.07, 0.05,
	0.035, 0.025, 0.018, 0.013, 0.010,
	0.007, 0.005, 0.004, 0.003, 0.0025,
	0.002, 0.0015, 0.001, 0.0008, 0.0006,
}

// defaultTTR applies to positions beyond the table.
const defaultTTR = 0.002

// Conversion rate (tap -> install) range for free apps.
const (
	cvrLow  = 0.35
	cvrHigh = 0.55
)

// dailySearches interpolates search volume from a popularity score:
// linear from the origin below the table, clamped above it.
func dailySearches(popularity int) float64 {
	if popularity <= 0 {
		return 0
	}
	p := float64(popularity)
	first := popToSearches[0]
	if p <= first.threshold {
		return first.score * (p / first.threshold)
	}
	last := popToSearches[len(popToSearches)-1]
	if p >= last.threshold {
		return last.score
	}
	return linearPoints(p, popToSearches)
}

// EstimateDownloads estimates daily installs for each search position
// 1-20 given a keyword's popularity score. competitorCount is carried
// for context only; it does not affect the math.
func EstimateDownloads(popularity, competitorCount int) DownloadEstimate {
	searches := dailySearches(popularity)

	est := DownloadEstimate{
		DailySearches: int(math.Round(searches)),
		Positions:     make([]PositionEstimate, 0, 20),
	}

	for pos := 1; pos <= 20; pos++ {
		ttr := defaultTTR
		if pos <= len(tapThroughRates) {
			ttr = tapThroughRates[pos-1]
		}
		est.Positions = append(est.Positions, PositionEstimate{
			Position: pos,
			TTR:      math.Round(ttr*100*100) / 100,
			Low:      int(math.Round(searches * ttr * cvrLow)),
			High:     int(math.Round(searches * ttr * cvrHigh)),
		})
	}

	est.Tiers.Top5 = tierAverage(est.Positions, 1, 5)
	est.Tiers.Top6To10 = tierAverage(est.Positions, 6, 10)
	est.Tiers.Top11To20 = tierAverage(est.Positions, 11, 20)
	return est
}

// tierAverage is the arithmetic mean of the low/high estimates across a
// position window (inclusive bounds).
func tierAverage(positions []PositionEstimate, from, to int) TierDownloads {
	var low, high, count int
	for _, p := range positions {
		if p.Position >= from && p.Position <= to {
			low += p.Low
			high += p.High
			count++
		}
	}
	if count == 0 {
		return TierDownloads{}
	}
	return TierDownloads{
		Low:  int(math.Round(float64(low) / float64(count))),
		High: int(math.Round(float64(high) / float64(count))),
	}
}
