package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EndpointRepository struct {
	db *pgxpool.Pool
}

func NewEndpointRepository(db *DB) *EndpointRepository {
	return &EndpointRepository{db: db.Pool}
}

// Upsert registers an endpoint keyed by URL. Re-registering refreshes name,
// event list and active flag but keeps the original secret. The second
// return value reports whether a new row was created.
func (r *EndpointRepository) Upsert(ctx context.Context, endpoint *domain.WebhookEndpoint) (*domain.WebhookEndpoint, bool, error) {
	query := `
		INSERT INTO webhook_endpoints (id, name, url, events, secret, active, api_key_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE
		SET name = EXCLUDED.name, events = EXCLUDED.events, active = true
		RETURNING id, secret, created_at, (xmax = 0) AS inserted
	`
	stored := *endpoint
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		endpoint.ID,
		endpoint.Name,
		endpoint.URL,
		endpoint.Events,
		endpoint.Secret,
		endpoint.Active,
		endpoint.APIKeyID,
		endpoint.CreatedAt,
	).Scan(&stored.ID, &stored.Secret, &stored.CreatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert webhook endpoint: %w", err)
	}
	return &stored, inserted, nil
}

func (r *EndpointRepository) List(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	query := `
		SELECT id, name, url, events, secret, active, api_key_id, created_at
		FROM webhook_endpoints
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*domain.WebhookEndpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (r *EndpointRepository) FindByID(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	query := `
		SELECT id, name, url, events, secret, active, api_key_id, created_at
		FROM webhook_endpoints
		WHERE id = $1
	`
	e, err := scanEndpoint(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EndpointRepository) Delete(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	query := `
		DELETE FROM webhook_endpoints
		WHERE id = $1
		RETURNING id, name, url, events, secret, active, api_key_id, created_at
	`
	e, err := scanEndpoint(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, err
	}
	return e, nil
}

func scanEndpoint(row pgx.Row) (*domain.WebhookEndpoint, error) {
	var e domain.WebhookEndpoint
	if err := row.Scan(&e.ID, &e.Name, &e.URL, &e.Events, &e.Secret, &e.Active, &e.APIKeyID, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan endpoint row: %w", err)
	}
	return &e, nil
}
