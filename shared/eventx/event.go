package eventx

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the user service.
const (
	EventTypeUserCreated = "UserCreatedEvent"
	EventTypeUserDeleted = "UserDeletedEvent"
)

// Event is an immutable record of something that happened to a business
// entity. The EventID is assigned at construction, not at persistence time,
// so retries downstream can deduplicate on it.
type Event struct {
	EventID       uuid.UUID      `json:"eventId"`
	EventType     string         `json:"eventType"`
	AggregateID   string         `json:"aggregateId"`
	AggregateType string         `json:"aggregateType"`
	OccurredAt    time.Time      `json:"occurredAt"`
	EventVersion  int            `json:"eventVersion"`
	UserID        string         `json:"userId,omitempty"`
	Payload       map[string]any `json:"eventData"`
}

func New(eventType string, aggregateID string, aggregateType string, userID string, payload map[string]any) *Event {
	return &Event{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		OccurredAt:    time.Now().UTC(),
		EventVersion:  1,
		UserID:        userID,
		Payload:       payload,
	}
}
