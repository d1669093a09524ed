package repositories

import (
	"context"

	"github.com/afyapay/payments_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// LedgerRepository is the capability interface for the append-only ledger
// store. SaveTransaction must persist the transaction, its entries, and the
// account balance updates as a single atomic unit: a crash mid-write must
// never leave unbalanced entries visible to readers.
type LedgerRepository interface {
	// SaveTransaction persists the transaction and applies the given net
	// balance change per account inside one database transaction. It returns
	// apperrors.ErrDuplicate if a transaction with the same external
	// reference already exists.
	SaveTransaction(ctx context.Context, txn domain.LedgerTransaction, balanceChanges map[string]decimal.Decimal) error

	FindTransactionByID(ctx context.Context, transactionID string) (*domain.LedgerTransaction, error)

	// FindTransactionByExternalReference looks a transaction up by its unique
	// external (gateway) reference.
	FindTransactionByExternalReference(ctx context.Context, externalReference string) (*domain.LedgerTransaction, error)

	// FindRefundByOriginalReference returns the refund transaction that
	// references the given original payment, if any.
	FindRefundByOriginalReference(ctx context.Context, originalReference string) (*domain.LedgerTransaction, error)

	FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)

	// ListTransactions returns a page ordered by creation time descending,
	// with an opaque token for the next page.
	ListTransactions(ctx context.Context, txnType *domain.TransactionType, limit int, nextToken *string) ([]domain.LedgerTransaction, *string, error)

	// SumEntriesForAccount folds all entries for the account in creation
	// order, applying the normal-balance sign convention. This is the
	// balance-reconstruction primitive; the cached account balance must
	// always agree with it.
	SumEntriesForAccount(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// AccountRepository manages the chart of accounts and the cached balances.
type AccountRepository interface {
	SaveAccount(ctx context.Context, account domain.Account) error
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

// RepositoryProvider bundles the repository implementations handed to the
// service layer.
type RepositoryProvider struct {
	LedgerRepo      LedgerRepository
	AccountRepo     AccountRepository
	IdempotencyRepo IdempotencyRepository
	WebhookRepo     WebhookEventRepository
}
