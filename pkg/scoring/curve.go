package scoring

import (
	"math"
	"sort"
)

// band is one (threshold, score) calibration point. Thresholds are
// ascending and strictly positive.
type band struct {
	threshold float64
	score     float64
}

// interpolation mode between calibration points.
type curveMode int

const (
	// logCurve interpolates on the logarithm of the value, matching
	// metrics that span orders of magnitude (review counts, velocity).
	logCurve curveMode = iota
	// linearCurve interpolates linearly, for inputs already roughly
	// linear in perceptual difficulty (star ratings, market age).
	linearCurve
)

// interpolate maps a raw metric through a calibration table to a
// bounded score:
//
//	value <= 0             -> 0
//	value >= last threshold -> last score
//	value below first band -> linear ramp from (0, 0) to the first band
//	otherwise              -> log or linear interpolation between the
//	                          two bracketing bands
//
// Smooth interpolation avoids cliff effects between bands: two keywords
// with nearly identical medians get nearly identical scores.
func interpolate(value float64, bands []band, mode curveMode) float64 {
	if value <= 0 {
		return 0
	}
	last := bands[len(bands)-1]
	if value >= last.threshold {
		return last.score
	}

	for i, b := range bands {
		if value >= b.threshold {
			continue
		}
		if i == 0 {
			return (value / b.threshold) * b.score
		}
		prev := bands[i-1]
		var ratio float64
		if mode == logCurve {
			ratio = math.Log(value/prev.threshold) / math.Log(b.threshold/prev.threshold)
		} else {
			ratio = (value - prev.threshold) / (b.threshold - prev.threshold)
		}
		return prev.score + ratio*(b.score-prev.score)
	}
	return last.score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// median of a slice. The input is copied before sorting, so callers can
// pass shared data.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
