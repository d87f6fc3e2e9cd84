package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type APIKeyRepository struct {
	db *pgxpool.Pool
}

func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db.Pool}
}

const apiKeyColumns = `
	id, name, key, secret, permissions, rate_limit, active,
	created_at, last_used, expires_at, rotated_at`

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		key.ID,
		key.Name,
		key.Key,
		key.Secret,
		key.Permissions,
		key.RateLimit,
		key.Active,
		key.CreatedAt,
		key.LastUsed,
		key.ExpiresAt,
		key.RotatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) FindByKey(ctx context.Context, key string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key = $1`
	k, err := scanAPIKey(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return k, nil
}

func (r *APIKeyRepository) Update(ctx context.Context, key *domain.APIKey) error {
	query := `
		UPDATE api_keys
		SET name = $1, key = $2, secret = $3, permissions = $4, rate_limit = $5,
		    active = $6, expires_at = $7, rotated_at = $8
		WHERE id = $9
	`
	tag, err := r.db.Exec(ctx, query,
		key.Name,
		key.Key,
		key.Secret,
		key.Permissions,
		key.RateLimit,
		key.Active,
		key.ExpiresAt,
		key.RotatedAt,
		key.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	k, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return k, nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	if err := row.Scan(
		&k.ID,
		&k.Name,
		&k.Key,
		&k.Secret,
		&k.Permissions,
		&k.RateLimit,
		&k.Active,
		&k.CreatedAt,
		&k.LastUsed,
		&k.ExpiresAt,
		&k.RotatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan api key row: %w", err)
	}
	return &k, nil
}
