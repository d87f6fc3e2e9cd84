package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LockRepository struct {
	db *pgxpool.Pool
}

func NewLockRepository(db *DB) *LockRepository {
	return &LockRepository{db: db.Pool}
}

func (r *LockRepository) Create(ctx context.Context, lock *domain.Lock) error {
	doc, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal lock %s: %w", lock.LockID, err)
	}

	query := `
		INSERT INTO locks (id, lock_id, authorization_code, status, version, lemx_approval_received, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query,
		lock.ID,
		lock.LockID,
		lock.AuthorizationCode,
		string(lock.Status),
		lock.Version,
		lock.LemxApprovalReceived,
		doc,
		lock.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrDuplicateLockID
		}
		return fmt.Errorf("failed to create lock: %w", err)
	}
	return nil
}

// FindByReference resolves either the caller-visible lockId or the internal
// record id.
func (r *LockRepository) FindByReference(ctx context.Context, ref string) (*domain.Lock, error) {
	query := `
		SELECT version, doc FROM locks
		WHERE id = $1 OR lock_id = $1
	`
	return r.scanLock(r.db.QueryRow(ctx, query, ref))
}

func (r *LockRepository) FindByAuthorizationCode(ctx context.Context, code string) (*domain.Lock, error) {
	query := `
		SELECT version, doc FROM locks
		WHERE authorization_code = $1
	`
	return r.scanLock(r.db.QueryRow(ctx, query, code))
}

func (r *LockRepository) List(ctx context.Context, filter application.LockFilter) ([]*domain.Lock, error) {
	query := `
		SELECT version, doc FROM locks
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR authorization_code = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, filter.Status, filter.AuthorizationCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer rows.Close()

	var locks []*domain.Lock
	for rows.Next() {
		var version int64
		var doc []byte
		if err := rows.Scan(&version, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan lock row: %w", err)
		}
		lock, err := unmarshalLock(version, doc)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

// UpdateVersioned writes the lock only when the stored version still matches
// the version the caller read. Zero rows affected means another writer got
// there first; the caller re-reads and retries.
func (r *LockRepository) UpdateVersioned(ctx context.Context, lock *domain.Lock) error {
	doc, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal lock %s: %w", lock.LockID, err)
	}

	query := `
		UPDATE locks
		SET status = $1,
		    authorization_code = $2,
		    lemx_approval_received = $3,
		    doc = $4,
		    version = version + 1
		WHERE id = $5 AND version = $6
	`
	tag, err := r.db.Exec(ctx, query,
		string(lock.Status),
		lock.AuthorizationCode,
		lock.LemxApprovalReceived,
		doc,
		lock.ID,
		lock.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	lock.Version++
	return nil
}

func (r *LockRepository) Clear(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM locks`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *LockRepository) scanLock(row pgx.Row) (*domain.Lock, error) {
	var version int64
	var doc []byte
	if err := row.Scan(&version, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to scan lock row: %w", err)
	}
	return unmarshalLock(version, doc)
}

func unmarshalLock(version int64, doc []byte) (*domain.Lock, error) {
	var lock domain.Lock
	if err := json.Unmarshal(doc, &lock); err != nil {
		return nil, fmt.Errorf("failed to decode lock document: %w", err)
	}
	// The version column is authoritative; the document never carries it.
	lock.Version = version
	return &lock, nil
}
