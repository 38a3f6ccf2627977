package appstore

// FindRank returns the 1-based position of the app with the given track
// id within a result set (relevance order, rank 1 = index 0), or
// ok=false when the app is absent.
func FindRank(results []App, trackID int64) (int, bool) {
	for i, app := range results {
		if app.TrackID == trackID {
			return i + 1, true
		}
	}
	return 0, false
}
