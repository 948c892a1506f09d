package model

import "time"

// Review rating bounds.
const (
	MinRating = 1
	MaxRating = 10
)

// ReviewAuthor is the public part of the user who wrote a review.
type ReviewAuthor struct {
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

// Review mirrors the `reviews` table. At most one review exists per
// (MovieID, UserID) pair.
type Review struct {
	ID         uint64        `json:"id"`
	Review     string        `json:"review"`
	Rating     int           `json:"rating"`
	MovieID    uint64        `json:"movie"`
	UserID     uint64        `json:"userId"`
	CreatedAt  time.Time     `json:"createdAt"`
	User       *ReviewAuthor `json:"user,omitempty"`
	MovieTitle string        `json:"movieTitle,omitempty"`
}

// ReviewPatch lists the mutable review fields.
type ReviewPatch struct {
	Review *string
	Rating *int
}
