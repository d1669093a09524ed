package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
)

// PgxIdempotencyRepository backs the idempotency store with a keyed table.
// Expiry is enforced on read and on claim rather than by a background
// sweeper: an expired row is invisible to Find and can be stolen by Claim.
type PgxIdempotencyRepository struct {
	BaseRepository
}

func newPgxIdempotencyRepository(pool *pgxpool.Pool) portsrepo.IdempotencyRepository {
	return &PgxIdempotencyRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.IdempotencyRepository = (*PgxIdempotencyRepository)(nil)

// Claim writes an IN_PROGRESS record if no live record exists for the
// fingerprint. The INSERT ... ON CONFLICT DO UPDATE ... WHERE expired form
// makes insert-or-steal a single atomic statement: exactly one of N
// concurrent callers gets a row back.
func (r *PgxIdempotencyRepository) Claim(ctx context.Context, fingerprint string, ttl time.Duration) (bool, *domain.IdempotencyRecord, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO idempotency_keys (fingerprint, status, result, created_at, expires_at)
		VALUES ($1, $2, NULL, $3, $4)
		ON CONFLICT (fingerprint) DO UPDATE
		SET status = EXCLUDED.status, result = NULL,
		    created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING fingerprint;
	`
	var returned string
	err := r.Pool.QueryRow(ctx, query, fingerprint, domain.ClaimInProgress, now, now.Add(ttl)).Scan(&returned)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	// A live record beat us. Fetch it so the caller can surface the cached
	// or in-flight outcome.
	existing, err := r.Find(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The record expired or was released between the claim attempt and
			// this read. Treat as a lost race; the caller retries.
			return false, nil, fmt.Errorf("%w: idempotency record vanished during claim", apperrors.ErrConflict)
		}
		return false, nil, err
	}
	return false, existing, nil
}

// Find returns the live record for the fingerprint. Expired records are
// treated as absent.
func (r *PgxIdempotencyRepository) Find(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT fingerprint, status, result, created_at, expires_at
		FROM idempotency_keys
		WHERE fingerprint = $1 AND expires_at > $2;
	`
	var record domain.IdempotencyRecord
	var resultJSON []byte
	err := r.Pool.QueryRow(ctx, query, fingerprint, time.Now().UTC()).Scan(
		&record.Fingerprint,
		&record.Status,
		&resultJSON,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find idempotency record: %w", err)
	}
	if len(resultJSON) > 0 {
		var result domain.PaymentResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to decode cached payment result: %w", err)
		}
		record.Result = &result
	}
	return &record, nil
}

// Finalize replaces the claim with the completed outcome and extends the
// expiry to the result TTL.
func (r *PgxIdempotencyRepository) Finalize(ctx context.Context, fingerprint string, result domain.PaymentResult, ttl time.Duration) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode payment result: %w", err)
	}
	query := `
		UPDATE idempotency_keys
		SET status = $2, result = $3, expires_at = $4
		WHERE fingerprint = $1;
	`
	tag, err := r.Pool.Exec(ctx, query, fingerprint, domain.ClaimCompleted, resultJSON, time.Now().UTC().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to finalize idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no idempotency record for fingerprint", apperrors.ErrNotFound)
	}
	return nil
}

// Release deletes the record so a legitimate retry can proceed.
func (r *PgxIdempotencyRepository) Release(ctx context.Context, fingerprint string) error {
	_, err := r.Pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE fingerprint = $1;`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to release idempotency record: %w", err)
	}
	return nil
}
