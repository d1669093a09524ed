package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
	"github.com/afyapay/payments_engine/internal/utils/pagination"
)

// PgxLedgerRepository persists transactions, their entries, and the cached
// account balances. The ledger tables are append-only; rows are never
// updated or deleted.
type PgxLedgerRepository struct {
	BaseRepository
	accountRepo *PgxAccountRepository
}

func newPgxLedgerRepository(pool *pgxpool.Pool, accountRepo *PgxAccountRepository) portsrepo.LedgerRepository {
	return &PgxLedgerRepository{
		BaseRepository: BaseRepository{Pool: pool},
		accountRepo:    accountRepo,
	}
}

var _ portsrepo.LedgerRepository = (*PgxLedgerRepository)(nil)

// SaveTransaction persists the transaction header, its entries, and the
// account balance updates inside one database transaction. The unique index
// on external_reference is the ledger's idempotency guard: a duplicate commit
// returns ErrDuplicate without writing anything.
func (r *PgxLedgerRepository) SaveTransaction(ctx context.Context, txn domain.LedgerTransaction, balanceChanges map[string]decimal.Decimal) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	headerQuery := `
		INSERT INTO ledger_transactions (
			transaction_id, type, external_reference, original_reference,
			description, currency_code, created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = tx.Exec(ctx, headerQuery,
		txn.TransactionID,
		txn.Type,
		txn.ExternalReference,
		txn.OriginalReference,
		txn.Description,
		txn.CurrencyCode,
		txn.CreatedAt,
		txn.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: external reference %s", apperrors.ErrDuplicate, txn.ExternalReference)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", txn.TransactionID, err)
	}

	// Lock the affected accounts before touching balances. IDs are sorted
	// inside FindAccountsByIDsForUpdate so concurrent writes cannot deadlock.
	accountIDs := make([]string, 0, len(balanceChanges))
	for accID := range balanceChanges {
		accountIDs = append(accountIDs, accID)
	}
	if _, err := r.accountRepo.FindAccountsByIDsForUpdate(ctx, tx, accountIDs); err != nil {
		return fmt.Errorf("failed to lock accounts for transaction %s: %w", txn.TransactionID, err)
	}
	if err := r.accountRepo.UpdateAccountBalancesInTx(ctx, tx, balanceChanges, txn.CreatedBy, txn.CreatedAt); err != nil {
		return fmt.Errorf("failed to update balances for transaction %s: %w", txn.TransactionID, err)
	}

	entryQuery := `
		INSERT INTO ledger_entries (
			entry_id, transaction_id, account_id, side, amount, currency_code,
			description, external_reference, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	batch := &pgx.Batch{}
	for _, entry := range txn.Entries {
		batch.Queue(entryQuery,
			entry.EntryID,
			entry.TransactionID,
			entry.AccountID,
			entry.Side,
			entry.Amount.Amount,
			entry.Amount.Currency,
			entry.Description,
			entry.ExternalReference,
			entry.Metadata,
			entry.CreatedAt,
		)
	}
	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert entries for transaction %s: %w", txn.TransactionID, err)
	}

	return r.Commit(ctx, tx)
}

const transactionColumns = `transaction_id, type, external_reference, original_reference, description, currency_code, created_at, created_by`

func scanTransaction(row pgx.Row) (*domain.LedgerTransaction, error) {
	var t domain.LedgerTransaction
	var originalRef sql.NullString
	err := row.Scan(
		&t.TransactionID,
		&t.Type,
		&t.ExternalReference,
		&originalRef,
		&t.Description,
		&t.CurrencyCode,
		&t.CreatedAt,
		&t.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	if originalRef.Valid {
		t.OriginalReference = &originalRef.String
	}
	return &t, nil
}

func (r *PgxLedgerRepository) findTransaction(ctx context.Context, where string, arg any) (*domain.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE ` + where + `;`
	txn, err := scanTransaction(r.Pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	entries, err := r.FindEntriesByTransactionID(ctx, txn.TransactionID)
	if err != nil {
		return nil, err
	}
	txn.Entries = entries
	return txn, nil
}

func (r *PgxLedgerRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.LedgerTransaction, error) {
	return r.findTransaction(ctx, `transaction_id = $1`, transactionID)
}

func (r *PgxLedgerRepository) FindTransactionByExternalReference(ctx context.Context, externalReference string) (*domain.LedgerTransaction, error) {
	return r.findTransaction(ctx, `external_reference = $1`, externalReference)
}

func (r *PgxLedgerRepository) FindRefundByOriginalReference(ctx context.Context, originalReference string) (*domain.LedgerTransaction, error) {
	return r.findTransaction(ctx, `original_reference = $1`, originalReference)
}

func (r *PgxLedgerRepository) FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	query := `
		SELECT entry_id, transaction_id, account_id, side, amount, currency_code,
		       description, external_reference, metadata, created_at
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY entry_id;
	`
	rows, err := r.Pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries for transaction %s: %w", transactionID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var extRef sql.NullString
		err := rows.Scan(
			&e.EntryID,
			&e.TransactionID,
			&e.AccountID,
			&e.Side,
			&e.Amount.Amount,
			&e.Amount.Currency,
			&e.Description,
			&extRef,
			&e.Metadata,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row for transaction %s: %w", transactionID, err)
		}
		if extRef.Valid {
			e.ExternalReference = extRef.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows for transaction %s: %w", transactionID, err)
	}
	return entries, nil
}

// ListTransactions returns a page of transactions ordered by creation time
// descending, transaction ID descending as tie-breaker, with an opaque cursor
// for the next page.
func (r *PgxLedgerRepository) ListTransactions(ctx context.Context, txnType *domain.TransactionType, limit int, nextToken *string) ([]domain.LedgerTransaction, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	// Fetch one extra row to know whether a next page exists.
	fetchLimit := limit + 1

	baseQuery := `SELECT ` + transactionColumns + ` FROM ledger_transactions`
	orderBy := `ORDER BY created_at DESC, transaction_id DESC`

	var clauses []string
	args := []any{}
	if txnType != nil {
		args = append(args, *txnType)
		clauses = append(clauses, `type = $`+strconv.Itoa(len(args)))
	}
	if nextToken != nil && *nextToken != "" {
		lastCreatedAt, lastID, err := pagination.DecodeToken(*nextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid pagination token: %v", apperrors.ErrValidation, err)
		}
		args = append(args, lastCreatedAt, lastID)
		clauses = append(clauses, fmt.Sprintf(`(created_at, transaction_id) < ($%d, $%d)`, len(args)-1, len(args)))
	}

	query := baseQuery
	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	args = append(args, fetchLimit)
	query += ` ` + orderBy + ` LIMIT $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.LedgerTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	var nextTokenVal *string
	if len(txns) > limit {
		last := txns[limit-1]
		token := pagination.EncodeToken(last.CreatedAt, last.TransactionID)
		nextTokenVal = &token
		txns = txns[:limit]
	}
	return txns, nextTokenVal, nil
}

// SumEntriesForAccount folds all entries for the account with the
// normal-balance sign convention applied. This reconstructs the balance from
// the entries alone; the cached account balance must agree with it.
func (r *PgxLedgerRepository) SumEntriesForAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	query := `
		SELECT a.account_type,
		       COALESCE(SUM(CASE WHEN e.side = 'DEBIT' THEN e.amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN e.side = 'CREDIT' THEN e.amount ELSE 0 END), 0)
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.account_id
		WHERE a.account_id = $1
		GROUP BY a.account_type;
	`
	var accountType domain.AccountType
	var debits, credits decimal.Decimal
	err := r.Pool.QueryRow(ctx, query, accountID).Scan(&accountType, &debits, &credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, apperrors.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to sum entries for account %s: %w", accountID, err)
	}

	switch accountType {
	case domain.Asset, domain.Expense:
		return debits.Sub(credits), nil
	case domain.Liability, domain.Equity, domain.Revenue:
		return credits.Sub(debits), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown account type %q for account %s", accountType, accountID)
	}
}
