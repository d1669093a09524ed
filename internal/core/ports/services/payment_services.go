package services

import (
	"context"

	"github.com/afyapay/payments_engine/internal/core/domain"
	"github.com/afyapay/payments_engine/internal/dto"
)

// PaymentSvcFacade is the payment orchestrator contract. Every call returns a
// terminal-looking result (success, failure, or pending-retry); callers never
// observe a partially-applied ledger state.
type PaymentSvcFacade interface {
	// ProcessPayment runs the idempotent payment flow: fingerprint, consult
	// the idempotency store, claim, charge the gateway, commit the ledger
	// transaction, cache the outcome. N concurrent identical requests yield
	// one gateway call, one ledger transaction, and N identical results.
	ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error)

	// RefundPayment issues a refund for a captured payment via the gateway
	// and records the mirror transaction. A second refund against the same
	// payment fails with apperrors.ErrDuplicateRefund.
	RefundPayment(ctx context.Context, req dto.RefundRequest, requestedBy string) (*domain.LedgerTransaction, error)
}

// ReconcilerSvcFacade applies asynchronous gateway notifications to ledger
// state at most once per event ID.
type ReconcilerSvcFacade interface {
	// Apply is safe to call multiple times for the same event: duplicates are
	// a no-op returning the previously recorded outcome.
	Apply(ctx context.Context, event dto.WebhookEvent) (*domain.WebhookOutcome, error)
}
