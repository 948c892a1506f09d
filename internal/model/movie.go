package model

import (
	"math"
	"time"
)

// Movie mirrors the `movies` table. Genre holds genre names (not ids), so a
// genre rename has to be propagated into every movie that carries it.
// Reviews and AverageRating are only filled on the single-movie view.
type Movie struct {
	ID            uint64    `json:"id"`
	Title         string    `json:"title"`
	Year          int       `json:"year"`
	Duration      int       `json:"duration"`
	Genre         []string  `json:"genre"`
	Director      string    `json:"director"`
	Cast          []string  `json:"cast"`
	Description   string    `json:"description"`
	Poster        string    `json:"poster"`
	Backdrop      string    `json:"backdrop"`
	Trailer       string    `json:"trailer"`
	CreatedAt     time.Time `json:"-"`
	Reviews       []Review  `json:"reviews,omitempty"`
	AverageRating float64   `json:"averageRating"`
}

// MoviePatch lists the mutable movie fields. Nil means "leave unchanged".
type MoviePatch struct {
	Title       *string
	Year        *int
	Duration    *int
	Genre       []string
	Director    *string
	Cast        []string
	Description *string
	Poster      *string
	Backdrop    *string
	Trailer     *string
}

// Duration buckets accepted by the movie listing.
const (
	DurationShort  = "0-90"
	DurationMedium = "90-120"
	DurationLong   = "120-180"
	DurationEpic   = "180-"
)

// MovieFilter is the decoded form of the movie listing query string.
type MovieFilter struct {
	Search   string
	Genre    string
	Director string
	Cast     []string
	YearFrom *int
	YearTo   *int
	Duration string
	Sort     string
	Page     int
	Limit    int
}

// Offset returns the number of rows to skip, or 0 when page or limit is out
// of range.
func (f MovieFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 || f.Page > math.MaxInt/f.Limit {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
