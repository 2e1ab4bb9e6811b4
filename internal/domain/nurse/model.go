package nurse

import (
	"time"

	"github.com/google/uuid"
)

// Nurse maps to the nurse table. It is the provider-side profile used for
// matching, dispatch and the tracking views.
type Nurse struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Avatar      *string   `db:"avatar" json:"avatar,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Categories  []string  `db:"categories" json:"categories"`
	HourlyPrice float64   `db:"hourly_price" json:"hourly_price"`
	Available   bool      `db:"available" json:"available"`
	Verified    bool      `db:"verified" json:"verified"`
	Latitude    *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64  `db:"longitude" json:"longitude,omitempty"`
	RatingAvg   float64   `db:"rating_avg" json:"rating_avg"`
	RatingCount int       `db:"rating_count" json:"rating_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NearbyNurse is a matching result: the nurse plus the computed distance from
// the search origin.
type NearbyNurse struct {
	Nurse
	DistanceKm float64 `json:"distance_km"`
}

// SearchFilters narrows a proximity search. Zero values mean "no filter".
type SearchFilters struct {
	Category  string   `json:"category,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinRating *float64 `json:"min_rating,omitempty"`
}
