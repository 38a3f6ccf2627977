package appstore

import "time"

// App is the standardized competitor record produced by the iTunes Search
// API client. Fields are normalized once at the client boundary: dates are
// parsed (zero time when unparseable), descriptions truncated, defaults
// applied. Scorers never touch raw API payloads.
type App struct {
	TrackID            int64     `json:"track_id" db:"track_id"`
	Name               string    `json:"name" db:"name"`
	IconURL            string    `json:"icon_url" db:"icon_url"`
	Rating             float64   `json:"rating" db:"rating"`
	RatingCount        int       `json:"rating_count" db:"rating_count"`
	ReleaseDate        time.Time `json:"release_date" db:"release_date"`
	CurrentVersionDate time.Time `json:"current_version_date" db:"current_version_date"`
	Genre              string    `json:"genre" db:"genre"`
	Price              string    `json:"price" db:"price"`
	Description        string    `json:"description" db:"description"`
	Seller             string    `json:"seller" db:"seller"`
	BundleID           string    `json:"bundle_id" db:"bundle_id"`
	StoreURL           string    `json:"store_url" db:"store_url"`
}
