package scoring

import (
	"strings"

	"github.com/asoradar/asoradar/pkg/appstore"
)

// keywordContext precomputes the lowercased phrase and word set used by
// both scorers.
type keywordContext struct {
	phrase string
	words  map[string]bool
}

func newKeywordContext(keyword string) keywordContext {
	phrase := strings.ToLower(strings.TrimSpace(keyword))
	words := make(map[string]bool)
	if phrase != "" {
		for _, w := range strings.Fields(phrase) {
			words[w] = true
		}
	}
	return keywordContext{phrase: phrase, words: words}
}

func (k keywordContext) wordCount() int {
	if k.phrase == "" {
		return 1
	}
	return len(strings.Fields(k.phrase))
}

// titleMatches counts competitors whose title contains the full keyword
// phrase (also counted as exact) or all of the keyword's words.
func (k keywordContext) titleMatches(apps []appstore.App) (matches, exact int) {
	for _, app := range apps {
		title := strings.ToLower(app.Name)
		switch {
		case k.phrase != "" && strings.Contains(title, k.phrase):
			matches++
			exact++
		case len(k.words) > 0 && containsAllWords(title, k.words):
			matches++
		}
	}
	return matches, exact
}

func containsAllWords(title string, words map[string]bool) bool {
	for w := range words {
		if !strings.Contains(title, w) {
			return false
		}
	}
	return true
}

// relevanceFactor down-weights platform backfill. For multi-word
// keywords a competitor counts as relevant when its title shares at
// least half of the keyword's words; single-word keywords require a
// strict title match (matchRatio). The ratio is amplified 3x and
// clamped to [0.3, 1.0] so even pure backfill keeps some signal.
func (k keywordContext) relevanceFactor(apps []appstore.App, matchRatio float64) float64 {
	n := len(apps)
	if n == 0 {
		return 0.3
	}

	ratio := matchRatio
	if len(k.words) > 1 {
		minOverlap := float64(len(k.words)) * 0.5
		if minOverlap < 1 {
			minOverlap = 1
		}
		relevant := 0
		for _, app := range apps {
			titleWords := make(map[string]bool)
			for _, w := range strings.Fields(strings.ToLower(app.Name)) {
				titleWords[w] = true
			}
			overlap := 0
			for w := range k.words {
				if titleWords[w] {
					overlap++
				}
			}
			if float64(overlap) >= minOverlap {
				relevant++
			}
		}
		ratio = float64(relevant) / float64(n)
	}
	return clamp(ratio*3, 0.3, 1.0)
}

// sampleDampening scales ratio-based signals toward zero confidence on
// small result sets: a 1/1 = 100% ratio is a math artifact, not
// evidence. Linear ramp reaching full strength at n = 10.
func sampleDampening(n int) float64 {
	return clamp(float64(n)/10, 0, 1)
}
