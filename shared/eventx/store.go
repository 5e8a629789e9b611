package eventx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is the durable copy of a domain event. ID and CreatedAt are
// assigned by storage; OccurredAt stays the domain time from the event.
type Record struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventData     json.RawMessage `json:"eventData"`
	EventVersion  int             `json:"eventVersion"`
	UserID        string          `json:"userId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Store is the append-only audit log behind the persistent bus. Records are
// appended once and never mutated or deleted here; retention is an
// operational concern outside the bus.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ByAggregateID(ctx context.Context, aggregateID string) ([]Record, error)
	ByAggregateIDAndType(ctx context.Context, aggregateID string, aggregateType string) ([]Record, error)
	ByEventType(ctx context.Context, eventType string) ([]Record, error)
	ByUserID(ctx context.Context, userID string) ([]Record, error)
	All(ctx context.Context, limit int, offset int) ([]Record, error)
	Count(ctx context.Context) (int64, error)
}
