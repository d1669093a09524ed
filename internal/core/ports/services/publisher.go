package services

import (
	"context"

	"github.com/afyapay/payments_engine/internal/core/domain"
)

// EventPublisher emits notifications about committed ledger transactions for
// downstream consumers (reporting, notifications). Publishing is best-effort:
// a publish failure is logged and never fails the payment.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, txn domain.LedgerTransaction) error
	Close() error
}
