package db

import (
	"context"

	"lokumail/internal/types"
)

// EventRepository provides PostgreSQL-backed access to the append-only
// email_events table.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates an event repository backed by the given database handle.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Append records one inbound provider event. Events are never updated or
// deleted; duplicates from provider redelivery are appended as-is.
func (r *EventRepository) Append(ctx context.Context, event *types.EmailEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_events (id, job_id, resend_message_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		event.ID,
		event.JobID,
		nilIfEmpty(event.ProviderMessageID),
		event.EventType,
		event.Payload,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append email event", err)
	}
	return nil
}

// ListByJobID returns all events correlated to a job, oldest first.
func (r *EventRepository) ListByJobID(ctx context.Context, jobID string) ([]*types.EmailEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, job_id, resend_message_id, event_type, payload, received_at
		FROM email_events WHERE job_id = $1 ORDER BY received_at ASC`, jobID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list email events", err)
	}
	defer rows.Close()

	var events []*types.EmailEvent
	for rows.Next() {
		var (
			event     types.EmailEvent
			messageID *string
		)
		if err := rows.Scan(&event.ID, &event.JobID, &messageID, &event.EventType, &event.Payload, &event.ReceivedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email event", err)
		}
		event.ProviderMessageID = valueOrEmpty(messageID)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate email events", err)
	}
	return events, nil
}
