package scoring

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/asoradar/asoradar/pkg/appstore"
)

func TestTierMonotonicity(t *testing.T) {
	// Strong incumbents up top, a long weak tail below: tier scores
	// must still respect top5 >= top10 >= top20 >= overall.
	apps := make([]appstore.App, 25)
	for i := range apps {
		reviews := 200_000
		if i >= 5 {
			reviews = 5_000
		}
		if i >= 12 {
			reviews = 150
		}
		apps[i] = testApp(fmt.Sprintf("Habit Tracker %d", i+1), reviews, 4.3, 3)
		apps[i].TrackID = int64(i + 1)
		apps[i].Seller = fmt.Sprintf("Seller %d", i+1)
	}

	score, breakdown := CalculateDifficulty(apps, "habit tracker")
	tiers := breakdown.Tiers

	if tiers.Top5.Score < tiers.Top10.Score {
		t.Errorf("top5 %d < top10 %d", tiers.Top5.Score, tiers.Top10.Score)
	}
	if tiers.Top10.Score < tiers.Top20.Score {
		t.Errorf("top10 %d < top20 %d", tiers.Top10.Score, tiers.Top20.Score)
	}
	if tiers.Top20.Score < score {
		t.Errorf("top20 %d below overall %d", tiers.Top20.Score, score)
	}
}

func TestTierFloorAtOverall(t *testing.T) {
	// A weak top-5 inside an otherwise brutal field: the tier floor
	// pulls the window up to the overall score rather than advertising
	// an easier entry point than the keyword actually offers.
	apps := make([]appstore.App, 20)
	for i := range apps {
		reviews := 40
		if i >= 5 {
			reviews = 2_000_000
		}
		apps[i] = testApp(fmt.Sprintf("Meditation App %d", i+1), reviews, 4.6, 6)
		apps[i].TrackID = int64(i + 1)
		apps[i].Seller = fmt.Sprintf("Seller %d", i+1)
	}

	score, breakdown := CalculateDifficulty(apps, "meditation")
	for _, tier := range []TierResult{breakdown.Tiers.Top5, breakdown.Tiers.Top10, breakdown.Tiers.Top20} {
		if tier.Score < score {
			t.Errorf("tier score %d below overall %d", tier.Score, score)
		}
	}
}

func TestTierLabelsMatchScores(t *testing.T) {
	apps := uniformField(20, "Note Taker", 30_000, 4.4, 5)
	_, breakdown := CalculateDifficulty(apps, "note taker")

	for name, tier := range map[string]TierResult{
		"top5":  breakdown.Tiers.Top5,
		"top10": breakdown.Tiers.Top10,
		"top20": breakdown.Tiers.Top20,
	} {
		if tier.Label != interpret(tier.Score) {
			t.Errorf("%s: label %q not derived from score %d", name, tier.Label, tier.Score)
		}
	}
}

func TestTierOpenSpots(t *testing.T) {
	apps := uniformField(3, "Rare Tool", 500, 4.0, 2)
	_, breakdown := CalculateDifficulty(apps, "rare tool")

	top5 := breakdown.Tiers.Top5
	if top5.TotalApps != 3 {
		t.Errorf("top5 total apps = %d, want 3", top5.TotalApps)
	}
	if len(top5.Highlights) != 1 || !strings.Contains(top5.Highlights[0], "2 open spots") {
		t.Errorf("top5 highlights = %v, want a 2-open-spots line", top5.Highlights)
	}
	if !strings.Contains(breakdown.Tiers.Top20.Highlights[0], "17 open spots") {
		t.Errorf("top20 highlights = %v, want a 17-open-spots line", breakdown.Tiers.Top20.Highlights)
	}
}

func TestTierEmptyField(t *testing.T) {
	tier := computeTier(nil, 5, newKeywordContext("anything"), overrideContext{}, time.Now().UTC())
	if tier.WeakestApp != "—" || tier.Label != "Easy" {
		t.Errorf("empty tier = %+v, want placeholder card", tier)
	}
	if len(tier.Highlights) != 1 || !strings.Contains(tier.Highlights[0], "wide open") {
		t.Errorf("empty tier highlights = %v", tier.Highlights)
	}
}

func TestTierWeakestApp(t *testing.T) {
	apps := uniformField(10, "Cloud Sync", 50_000, 4.5, 4)
	apps[7].RatingCount = 42
	apps[7].Name = "Cloud Sync Lite"

	_, breakdown := CalculateDifficulty(apps, "cloud sync")
	top10 := breakdown.Tiers.Top10
	if top10.MinReviews != 42 {
		t.Errorf("min reviews = %d, want 42", top10.MinReviews)
	}
	if top10.WeakestApp != "Cloud Sync Lite" {
		t.Errorf("weakest app = %q, want Cloud Sync Lite", top10.WeakestApp)
	}
	// The weak app sits outside the top 5, so that window keeps the
	// uniform floor.
	if breakdown.Tiers.Top5.MinReviews != 50_000 {
		t.Errorf("top5 min reviews = %d, want 50000", breakdown.Tiers.Top5.MinReviews)
	}
}
