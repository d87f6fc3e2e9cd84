package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository is the bounded, append-only action trail. Every insert
// checks the retention cap and trims the oldest rows when the log exceeds it.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db.Pool}
}

func (r *AuditRepository) Record(ctx context.Context, action string, details map[string]any, userID string) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details for %s: %w", action, err)
	}

	query := `
		INSERT INTO audit_log (id, action, details, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query, uuid.New().String(), action, raw, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return r.trim(ctx)
}

// trim keeps the newest entries once the log grows past the cap. The cap
// check and the delete are two statements; a concurrent insert between them
// only means the next Record trims again.
func (r *AuditRepository) trim(ctx context.Context) error {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count audit entries: %w", err)
	}
	if count <= domain.AuditLogMaxEntries {
		return nil
	}

	query := `
		DELETE FROM audit_log
		WHERE id NOT IN (
			SELECT id FROM audit_log
			ORDER BY created_at DESC
			LIMIT $1
		)
	`
	if _, err := r.db.Exec(ctx, query, domain.AuditLogKeepEntries); err != nil {
		return fmt.Errorf("failed to trim audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, action, details, user_id, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Action, &raw, &e.UserID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *AuditRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}
