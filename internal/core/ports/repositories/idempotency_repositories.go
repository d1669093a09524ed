package repositories

import (
	"context"
	"time"

	"github.com/afyapay/payments_engine/internal/core/domain"
)

// IdempotencyRepository is the capability interface for the idempotency
// store: a key-value store with per-key expiry and an atomic set-if-absent
// primitive. Expired records are invisible to all reads.
type IdempotencyRepository interface {
	// Claim atomically writes an IN_PROGRESS record for the fingerprint if no
	// live record exists. When the claim is lost, the existing record is
	// returned so the caller can surface the cached or in-flight outcome.
	Claim(ctx context.Context, fingerprint string, ttl time.Duration) (claimed bool, existing *domain.IdempotencyRecord, err error)

	// Find returns the live record for the fingerprint, or
	// apperrors.ErrNotFound if none exists.
	Find(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error)

	// Finalize replaces the claim with the completed outcome and extends the
	// expiry to the result TTL.
	Finalize(ctx context.Context, fingerprint string, result domain.PaymentResult, ttl time.Duration) error

	// Release deletes the record so a legitimate retry can proceed.
	Release(ctx context.Context, fingerprint string) error
}
