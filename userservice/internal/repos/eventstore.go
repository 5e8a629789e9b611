package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"user-platform/shared/eventx"
)

const recordColumns = `id, event_id, event_type, aggregate_id, aggregate_type, event_data, event_version, user_id, occurred_at, created_at`

// EventStoreRepo is the append-only audit log behind the persistent event
// bus. Rows are inserted once and only ever read back; there is no update or
// delete path.
type EventStoreRepo struct {
	pool *pgxpool.Pool
}

var _ eventx.Store = (*EventStoreRepo)(nil)

func NewEventStoreRepo(pool *pgxpool.Pool) *EventStoreRepo {
	return &EventStoreRepo{pool: pool}
}

func (r *EventStoreRepo) Append(ctx context.Context, event *eventx.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	var userID any
	if event.UserID != "" {
		userID = event.UserID
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_store (id, event_id, event_type, aggregate_id, aggregate_type, event_data, event_version, user_id, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, uuid.New(), event.EventID, event.EventType, event.AggregateID, event.AggregateType, payload, event.EventVersion, userID, event.OccurredAt)
	return err
}

func (r *EventStoreRepo) ByAggregateID(ctx context.Context, aggregateID string) ([]eventx.Record, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM event_store
		WHERE aggregate_id = $1
		ORDER BY created_at ASC
	`, aggregateID)
}

func (r *EventStoreRepo) ByAggregateIDAndType(ctx context.Context, aggregateID string, aggregateType string) ([]eventx.Record, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM event_store
		WHERE aggregate_id = $1 AND aggregate_type = $2
		ORDER BY created_at ASC
	`, aggregateID, aggregateType)
}

func (r *EventStoreRepo) ByEventType(ctx context.Context, eventType string) ([]eventx.Record, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM event_store
		WHERE event_type = $1
		ORDER BY created_at ASC
	`, eventType)
}

func (r *EventStoreRepo) ByUserID(ctx context.Context, userID string) ([]eventx.Record, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM event_store
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
}

// All pages newest-first, for the operational "what just happened" view.
func (r *EventStoreRepo) All(ctx context.Context, limit int, offset int) ([]eventx.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM event_store
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *EventStoreRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_store`).Scan(&n)
	return n, err
}

func (r *EventStoreRepo) query(ctx context.Context, sql string, args ...any) ([]eventx.Record, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]eventx.Record, error) {
	records := make([]eventx.Record, 0, 16)
	for rows.Next() {
		var rec eventx.Record
		var userID *string
		if err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.EventType, &rec.AggregateID, &rec.AggregateType,
			&rec.EventData, &rec.EventVersion, &userID, &rec.OccurredAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if userID != nil {
			rec.UserID = *userID
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
