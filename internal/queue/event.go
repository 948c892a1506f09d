// Package queue defines the activity events exchanged over the message
// broker, the publisher used by handlers and the consumer that appends them
// to logs/activity.log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// ActivityQueue is the durable queue activity events are routed to.
const ActivityQueue = "activity.events"

// EventType names what happened.
type EventType string

const (
	EventUserSignedUp    EventType = "user.signed_up"
	EventUserVerified    EventType = "user.verified"
	EventPasswordChanged EventType = "user.password_changed"
	EventReviewCreated   EventType = "review.created"
	EventGenreRenamed    EventType = "genre.renamed"
)

// ActivityEvent is a fire-and-forget notification about a domain change.
// Attrs carries the type-specific details (movie id, old and new genre
// name, ...) so consumers never need to query the database.
type ActivityEvent struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	UserID     uint64            `json:"user_id,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(t EventType, userID uint64, attrs map[string]string) ActivityEvent {
	return ActivityEvent{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		Attrs:      attrs,
		OccurredAt: time.Now().UTC(),
	}
}
