package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
)

type OutboxEventRepository struct {
	db DBTX
}

func NewOutboxEventRepository(db DBTX) *OutboxEventRepository {
	return &OutboxEventRepository{db: db}
}

func (r *OutboxEventRepository) Create(ctx context.Context, event *entity.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			aggregate_type, aggregate_id, event_type, payload_json,
			processed, processed_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.PayloadJSON,
		event.Processed,
		nullableTimeValue(event.ProcessedAt),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

// ListUnprocessed returns unpublished events oldest first so per-aggregate
// ordering is preserved on the bus.
func (r *OutboxEventRepository) ListUnprocessed(ctx context.Context, limit int32) ([]*entity.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json,
			processed, processed_at, created_at
		FROM outbox_events
		WHERE processed = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.OutboxEvent, 0)
	for rows.Next() {
		item := &entity.OutboxEvent{}
		var processedAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.AggregateType,
			&item.AggregateID,
			&item.EventType,
			&item.PayloadJSON,
			&item.Processed,
			&processedAt,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.ProcessedAt = timePtrFromNull(processedAt)
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (r *OutboxEventRepository) MarkProcessed(ctx context.Context, id uint64, at time.Time) error {
	query := `UPDATE outbox_events SET processed = 1, processed_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
