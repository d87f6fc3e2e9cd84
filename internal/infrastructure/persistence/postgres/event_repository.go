package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db.Pool}
}

const eventColumns = `
	id, event_type, event_timestamp, source, protocol_version, payload, signature,
	direction, delivered, attempts, last_error, last_status, delivered_at,
	received_at, signature_verified, created_at`

func (r *EventRepository) Save(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.Type,
		event.Timestamp,
		event.Source,
		event.Version,
		[]byte(event.Payload),
		event.Signature,
		string(event.Direction),
		event.Delivered,
		event.Attempts,
		event.LastError,
		event.LastStatus,
		event.DeliveredAt,
		event.ReceivedAt,
		event.SignatureVerified,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save webhook event: %w", err)
	}
	return nil
}

func (r *EventRepository) MarkDelivered(ctx context.Context, eventID string, status int, at time.Time) error {
	query := `
		UPDATE webhook_events
		SET delivered = true, last_status = $1, delivered_at = $2, attempts = attempts + 1
		WHERE id = $3
	`
	_, err := r.db.Exec(ctx, query, status, at, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event delivered: %w", err)
	}
	return nil
}

func (r *EventRepository) RecordDeliveryFailure(ctx context.Context, eventID string, deliveryErr string) error {
	query := `
		UPDATE webhook_events
		SET attempts = attempts + 1, last_error = $1
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, deliveryErr, eventID)
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + eventColumns + `
		FROM webhook_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// FindUndelivered returns outbound events the redelivery worker should try
// again, oldest first.
func (r *EventRepository) FindUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.WebhookEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM webhook_events
		WHERE direction = 'outbound' AND delivered = false AND attempts < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find undelivered events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *EventRepository) ClearEvents(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM webhook_events`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]*domain.WebhookEvent, error) {
	var events []*domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		var direction string
		var payload []byte
		if err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.Timestamp,
			&e.Source,
			&e.Version,
			&payload,
			&e.Signature,
			&direction,
			&e.Delivered,
			&e.Attempts,
			&e.LastError,
			&e.LastStatus,
			&e.DeliveredAt,
			&e.ReceivedAt,
			&e.SignatureVerified,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Payload = payload
		e.Direction = domain.EventDirection(direction)
		events = append(events, &e)
	}
	return events, rows.Err()
}
