package scoring

// OverrideReason records which post-processing correction last adjusted
// a difficulty score. Later corrections overwrite earlier ones, so only
// the final reason is reported even when several fired in sequence.
type OverrideReason string

const (
	OverrideNone           OverrideReason = ""
	OverrideSmallResultSet OverrideReason = "small_result_set"
	OverrideWeakLeader     OverrideReason = "weak_leader"
	OverrideBackfill       OverrideReason = "backfill"
)

// InsightType classifies an insight as working for or against the reader.
type InsightType string

const (
	InsightBarrier     InsightType = "barrier"
	InsightOpportunity InsightType = "opportunity"
	InsightInfo        InsightType = "info"
)

// Insight is one human-readable line explaining the difficulty score.
type Insight struct {
	Icon string      `json:"icon"`
	Type InsightType `json:"type"`
	Text string      `json:"text"`
}

// Signal is an actionable opportunity signal for the developer.
type Signal struct {
	Name     string `json:"signal"`
	Icon     string `json:"icon"`
	Strength string `json:"strength"` // "Moderate" or "Strong"
	Detail   string `json:"detail"`
}

// SubScores holds the seven weighted difficulty components, each
// normalized to 0-100 after dampening and relevance adjustment.
type SubScores struct {
	RatingVolume       float64 `json:"rating_volume"`
	ReviewVelocity     float64 `json:"review_velocity"`
	DominantPlayers    float64 `json:"dominant_players"`
	RatingQuality      float64 `json:"rating_quality"`
	MarketAge          float64 `json:"market_age"`
	PublisherDiversity float64 `json:"publisher_diversity"`
	TitleRelevance     float64 `json:"title_relevance"`
}

// TierResult describes the competitive picture of one ranking window
// (top 5, 10, or 20 positions).
type TierResult struct {
	MinReviews        int      `json:"min_reviews"`
	WeakestApp        string   `json:"weakest_app"`
	MedianReviews     int      `json:"median_reviews"`
	WeakCount         int      `json:"weak_count"`
	FreshCount        int      `json:"fresh_count"`
	TitleKeywordCount int      `json:"title_keyword_count"`
	TotalApps         int      `json:"total_apps"`
	Score             int      `json:"tier_score"`
	Label             string   `json:"label"`
	Highlights        []string `json:"highlights"`
}

// RankingTiers is the per-window breakdown. Each window scores at least
// as hard as the overall keyword, and smaller windows never score below
// larger ones.
type RankingTiers struct {
	Top5  TierResult `json:"top_5"`
	Top10 TierResult `json:"top_10"`
	Top20 TierResult `json:"top_20"`
}

// Breakdown is the full explanation attached to a difficulty score.
type Breakdown struct {
	TotalScore      int            `json:"total_score"`
	RawTotal        int            `json:"raw_total"`
	OverrideReason  OverrideReason `json:"override_reason,omitempty"`
	SubScores       SubScores      `json:"sub_scores"`
	Interpretation  string         `json:"interpretation"`
	TitleMatchCount int            `json:"title_match_count"`
	MedianReviews   int            `json:"median_reviews"`
	AvgReviews      int            `json:"avg_reviews"`
	Insights        []Insight      `json:"insights"`
	Signals         []Signal       `json:"opportunity_signals"`
	Tiers           RankingTiers   `json:"ranking_tiers"`
}

// PositionEstimate is the install range for one search-result position.
type PositionEstimate struct {
	Position int     `json:"pos"`
	TTR      float64 `json:"ttr"` // tap-through rate, percent
	Low      int     `json:"downloads_low"`
	High     int     `json:"downloads_high"`
}

// TierDownloads is the averaged install range across a position window.
type TierDownloads struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// DownloadEstimate maps a popularity score to estimated daily installs
// by ranking position.
type DownloadEstimate struct {
	DailySearches int                `json:"daily_searches"`
	Positions     []PositionEstimate `json:"positions"`
	Tiers         struct {
		Top5      TierDownloads `json:"top_5"`
		Top6To10  TierDownloads `json:"top_6_10"`
		Top11To20 TierDownloads `json:"top_11_20"`
	} `json:"tiers"`
}

// Interpretation bands: pure, order-preserving mapping of the FINAL
// (post-override) score to a label.
func interpret(score int) string {
	switch {
	case score <= 15:
		return "Very Easy"
	case score <= 35:
		return "Easy"
	case score <= 55:
		return "Moderate"
	case score <= 75:
		return "Hard"
	case score <= 90:
		return "Very Hard"
	default:
		return "Extreme"
	}
}

// OpportunityScore combines popularity and difficulty into a single
// attractiveness rank: high demand with low competition scores highest.
func OpportunityScore(popularity, difficulty int) int {
	if popularity <= 0 {
		return 0
	}
	return int(float64(popularity)*float64(100-difficulty)/100 + 0.5)
}
