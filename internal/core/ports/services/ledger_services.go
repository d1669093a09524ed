package services

import (
	"context"

	"github.com/afyapay/payments_engine/internal/core/domain"
	"github.com/afyapay/payments_engine/internal/dto"
	"github.com/shopspring/decimal"
)

// LedgerSvcFacade is the ledger engine's service surface. All writes go
// through RecordTransaction (or the payment-domain recipes built on it);
// reads serve the orchestrator, the reconciler, and admin reporting.
type LedgerSvcFacade interface {
	// RecordTransaction validates the double-entry invariant and persists the
	// transaction atomically. Keyed by external reference: a second call with
	// the same reference returns the original transaction instead of
	// creating a duplicate.
	RecordTransaction(ctx context.Context, req dto.RecordTransactionRequest) (*domain.LedgerTransaction, error)

	// RecordPaymentCaptured applies the payment recipe for a confirmed
	// charge: DEBIT bank/cash gross, CREDIT platform-fee-revenue fee,
	// CREDIT sales-revenue net (fee omitted when the rate is zero).
	RecordPaymentCaptured(ctx context.Context, externalReference string, net domain.Money, feeRate decimal.Decimal, description, createdBy string) (*domain.LedgerTransaction, error)

	// RecordRefund applies the mirror recipe for a refund: DEBIT
	// sales-revenue, CREDIT bank/cash. The original transaction is never
	// mutated. Fails with apperrors.ErrDuplicateRefund if a refund already
	// references the original payment.
	RecordRefund(ctx context.Context, originalReference, refundReference string, amount domain.Money, description, createdBy string) (*domain.LedgerTransaction, error)

	GetTransaction(ctx context.Context, transactionID string) (*domain.LedgerTransaction, error)

	GetTransactionByExternalReference(ctx context.Context, externalReference string) (*domain.LedgerTransaction, error)

	// FindRefundForPayment returns the refund transaction referencing the
	// given original payment, or apperrors.ErrNotFound.
	FindRefundForPayment(ctx context.Context, originalReference string) (*domain.LedgerTransaction, error)

	// GetAccountBalance returns the projected (cached) balance.
	GetAccountBalance(ctx context.Context, accountID string) (domain.Money, error)

	// RecomputeAccountBalance re-derives the balance by folding all entries
	// for the account; callers needing strong consistency use this.
	RecomputeAccountBalance(ctx context.Context, accountID string) (domain.Money, error)

	ListTransactions(ctx context.Context, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error)
}

// AccountSvcFacade manages the chart of accounts.
type AccountSvcFacade interface {
	CreateAccount(ctx context.Context, req dto.CreateAccountRequest, creatorID string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}
