package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MintRepository struct {
	db *pgxpool.Pool
}

func NewMintRepository(db *DB) *MintRepository {
	return &MintRepository{db: db.Pool}
}

// UpsertMintRequest inserts the request unless one already exists for the
// same authorization code. Redelivered authorization.generated events hit the
// conflict branch and change nothing.
func (r *MintRepository) UpsertMintRequest(ctx context.Context, req *domain.MintRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal mint request %s: %w", req.AuthorizationCode, err)
	}

	query := `
		INSERT INTO mint_requests (id, authorization_code, lock_id, status, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (authorization_code) DO NOTHING
	`
	_, err = r.db.Exec(ctx, query,
		req.ID,
		req.AuthorizationCode,
		req.LockID,
		string(req.Status),
		doc,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mint request: %w", err)
	}
	return nil
}

func (r *MintRepository) CompleteMintRequest(ctx context.Context, authorizationCode, txHash, publicationCode string, completedAt time.Time) error {
	req, err := r.FindMintRequestByCode(ctx, authorizationCode)
	if err != nil {
		return err
	}

	req.Status = domain.MintRequestCompleted
	req.MintTxHash = &txHash
	req.PublicationCode = &publicationCode
	req.CompletedAt = &completedAt

	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal mint request %s: %w", authorizationCode, err)
	}

	query := `
		UPDATE mint_requests SET status = $1, doc = $2
		WHERE authorization_code = $3
	`
	tag, err := r.db.Exec(ctx, query, string(req.Status), doc, authorizationCode)
	if err != nil {
		return fmt.Errorf("failed to complete mint request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMintReqNotFound
	}
	return nil
}

func (r *MintRepository) ListMintRequests(ctx context.Context, filter application.MintRequestFilter) ([]*domain.MintRequest, error) {
	query := `
		SELECT doc FROM mint_requests
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR authorization_code = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, filter.Status, filter.AuthorizationCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list mint requests: %w", err)
	}
	defer rows.Close()

	var reqs []*domain.MintRequest
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan mint request row: %w", err)
		}
		var req domain.MintRequest
		if err := json.Unmarshal(doc, &req); err != nil {
			return nil, fmt.Errorf("failed to decode mint request document: %w", err)
		}
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

func (r *MintRepository) FindMintRequestByCode(ctx context.Context, code string) (*domain.MintRequest, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM mint_requests WHERE authorization_code = $1`, code).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMintReqNotFound
		}
		return nil, fmt.Errorf("failed to find mint request: %w", err)
	}
	var req domain.MintRequest
	if err := json.Unmarshal(doc, &req); err != nil {
		return nil, fmt.Errorf("failed to decode mint request document: %w", err)
	}
	return &req, nil
}

// InsertCompletedMint records a mint unless its publication code, tx hash or
// lock id already matches an existing record. Returns false on the no-op.
// The NOT EXISTS guard handles the common redelivery; the partial unique
// indexes close the race when two duplicate deliveries insert concurrently,
// and that violation is reported as the same no-op.
func (r *MintRepository) InsertCompletedMint(ctx context.Context, mint *domain.CompletedMint) (bool, error) {
	doc, err := json.Marshal(mint)
	if err != nil {
		return false, fmt.Errorf("marshal completed mint %s: %w", mint.PublicationCode, err)
	}

	query := `
		INSERT INTO completed_mints (id, publication_code, tx_hash, lock_id, doc, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (
			SELECT 1 FROM completed_mints
			WHERE (publication_code = $2 AND $2 <> '')
			   OR (tx_hash = $3 AND $3 <> '')
			   OR (lock_id = $4 AND $4 <> '')
		)
	`
	tag, err := r.db.Exec(ctx, query,
		mint.ID,
		mint.PublicationCode,
		mint.TxHash,
		mint.LockID,
		doc,
		mint.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert completed mint: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MintRepository) ListCompletedMints(ctx context.Context) ([]*domain.CompletedMint, error) {
	rows, err := r.db.Query(ctx, `SELECT doc FROM completed_mints ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed mints: %w", err)
	}
	defer rows.Close()

	var mints []*domain.CompletedMint
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan completed mint row: %w", err)
		}
		var mint domain.CompletedMint
		if err := json.Unmarshal(doc, &mint); err != nil {
			return nil, fmt.Errorf("failed to decode completed mint document: %w", err)
		}
		mints = append(mints, &mint)
	}
	return mints, rows.Err()
}

func (r *MintRepository) FindCompletedMint(ctx context.Context, ref string) (*domain.CompletedMint, error) {
	query := `
		SELECT doc FROM completed_mints
		WHERE id = $1 OR publication_code = $1 OR tx_hash = $1
		   OR doc->>'authorizationCode' = $1
	`
	var doc []byte
	err := r.db.QueryRow(ctx, query, ref).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMintNotFound
		}
		return nil, fmt.Errorf("failed to find completed mint: %w", err)
	}
	var mint domain.CompletedMint
	if err := json.Unmarshal(doc, &mint); err != nil {
		return nil, fmt.Errorf("failed to decode completed mint document: %w", err)
	}
	return &mint, nil
}

func (r *MintRepository) ClearMints(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM mint_requests`); err != nil {
		return fmt.Errorf("failed to clear mint requests: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM completed_mints`); err != nil {
		return fmt.Errorf("failed to clear completed mints: %w", err)
	}
	return nil
}
