package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/dto"
	"github.com/afyapay/payments_engine/internal/middleware"
	"github.com/afyapay/payments_engine/internal/platform/metrics"
	"github.com/afyapay/payments_engine/internal/utils/accounting"
	"github.com/shopspring/decimal"
)

var (
	ErrReferenceMissing   = errors.New("transaction external reference is required")
	ErrDescriptionMissing = errors.New("transaction description is required")
	ErrRefundExceedsGross = errors.New("refund amount exceeds the original payment")
)

const defaultHistoryLimit = 20

// ledgerService provides the double-entry ledger operations. Every write path
// funnels through RecordTransaction, which enforces the balance invariant and
// delegates atomic persistence to the repository.
type ledgerService struct {
	ledgerRepo  portsrepo.LedgerRepository
	accountRepo portsrepo.AccountRepository
	publisher   portssvc.EventPublisher
}

// NewLedgerService creates the ledger service. The publisher may be a noop.
func NewLedgerService(ledgerRepo portsrepo.LedgerRepository, accountRepo portsrepo.AccountRepository, publisher portssvc.EventPublisher) portssvc.LedgerSvcFacade {
	return &ledgerService{
		ledgerRepo:  ledgerRepo,
		accountRepo: accountRepo,
		publisher:   publisher,
	}
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

// RecordTransaction validates and persists a balanced transaction. Keyed by
// external reference: a repeated call with the same reference returns the
// originally committed transaction, so the orchestrator can safely retry the
// commit step after a crash between gateway confirmation and ledger write.
func (s *ledgerService) RecordTransaction(ctx context.Context, req dto.RecordTransactionRequest) (*domain.LedgerTransaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.ExternalReference == "" {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, ErrReferenceMissing)
	}
	if req.Description == "" {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, ErrDescriptionMissing)
	}

	// Idempotency pre-check. The unique index on external_reference is the
	// authoritative guard; this avoids the round trip in the common retry case.
	if existing, err := s.ledgerRepo.FindTransactionByExternalReference(ctx, req.ExternalReference); err == nil {
		logger.Info("Transaction already recorded for reference, returning original",
			slog.String("external_reference", req.ExternalReference),
			slog.String("transaction_id", existing.TransactionID))
		return existing, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing transaction: %w", err)
	}

	now := time.Now().UTC()
	transactionID := uuid.NewString()

	entries := make([]domain.LedgerEntry, len(req.Entries))
	accountIDs := make([]string, 0, len(req.Entries))
	for i, in := range req.Entries {
		amount, err := domain.NewMoney(in.Amount, req.CurrencyCode)
		if err != nil {
			return nil, err
		}
		entries[i] = domain.LedgerEntry{
			EntryID:           uuid.NewString(),
			TransactionID:     transactionID,
			AccountID:         in.AccountID,
			Side:              in.Side,
			Amount:            amount.Round(),
			Description:       in.Description,
			ExternalReference: req.ExternalReference,
			Metadata:          in.Metadata,
			CreatedAt:         now,
		}
		accountIDs = append(accountIDs, in.AccountID)
	}

	if err := accounting.ValidateTransactionBalance(req.CurrencyCode, entries); err != nil {
		logger.Error("Rejected unbalanced or invalid transaction",
			slog.String("external_reference", req.ExternalReference),
			slog.String("error", err.Error()))
		return nil, err
	}

	accountsMap, err := s.accountRepo.FindAccountsByIDs(ctx, uniqueStrings(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	balanceChanges := make(map[string]decimal.Decimal)
	for _, entry := range entries {
		acc, found := accountsMap[entry.AccountID]
		if !found {
			return nil, fmt.Errorf("%w: account %s", apperrors.ErrNotFound, entry.AccountID)
		}
		if !acc.IsActive {
			return nil, fmt.Errorf("%w: account %s is inactive", apperrors.ErrValidation, entry.AccountID)
		}
		if acc.CurrencyCode != req.CurrencyCode {
			return nil, fmt.Errorf("%w: account %s is %s, transaction is %s",
				apperrors.ErrCurrencyMismatch, entry.AccountID, acc.CurrencyCode, req.CurrencyCode)
		}
		signedAmount, err := accounting.CalculateSignedAmount(entry, acc.AccountType)
		if err != nil {
			return nil, fmt.Errorf("internal error calculating balance changes: %w", err)
		}
		balanceChanges[entry.AccountID] = balanceChanges[entry.AccountID].Add(signedAmount)
	}

	txn := domain.LedgerTransaction{
		TransactionID:     transactionID,
		Type:              req.Type,
		ExternalReference: req.ExternalReference,
		OriginalReference: req.OriginalReference,
		Description:       req.Description,
		CurrencyCode:      req.CurrencyCode,
		Entries:           entries,
		CreatedAt:         now,
		CreatedBy:         req.CreatedBy,
	}

	if err := s.ledgerRepo.SaveTransaction(ctx, txn, balanceChanges); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			// Lost a race with a concurrent identical commit: the invariant
			// holds, return the winner.
			existing, findErr := s.ledgerRepo.FindTransactionByExternalReference(ctx, req.ExternalReference)
			if findErr != nil {
				return nil, fmt.Errorf("duplicate reference but original not readable: %w", findErr)
			}
			return existing, nil
		}
		logger.Error("Failed to save ledger transaction",
			slog.String("external_reference", req.ExternalReference),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrLedgerWrite, err)
	}

	metrics.LedgerTransactionsTotal.WithLabelValues(string(txn.Type)).Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionRecorded(ctx, txn); err != nil {
			// Publishing is best-effort; downstream consumers reconcile from
			// the ledger itself.
			logger.Warn("Failed to publish transaction event",
				slog.String("transaction_id", txn.TransactionID),
				slog.String("error", err.Error()))
		}
	}

	logger.Info("Ledger transaction recorded",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("type", string(txn.Type)),
		slog.String("external_reference", txn.ExternalReference))
	return &txn, nil
}

// RecordPaymentCaptured applies the payment recipe: the gross charge (net +
// platform fee) is debited to bank/cash and credited to fee revenue and sales
// revenue. All entries belong to one transaction so the balance invariant
// holds across the split.
func (s *ledgerService) RecordPaymentCaptured(ctx context.Context, externalReference string, net domain.Money, feeRate decimal.Decimal, description, createdBy string) (*domain.LedgerTransaction, error) {
	if !net.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", apperrors.ErrValidation)
	}

	gross, fee, err := accounting.SplitPlatformFee(net, feeRate)
	if err != nil {
		return nil, err
	}

	entries := []dto.EntryInput{
		{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: gross.Amount, Description: "Payment received (gross)"},
	}
	if fee.IsPositive() {
		entries = append(entries, dto.EntryInput{
			AccountID: domain.AccountPlatformFeeRevenue, Side: domain.Credit, Amount: fee.Amount, Description: "Platform fee",
		})
	}
	entries = append(entries, dto.EntryInput{
		AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: net.Round().Amount, Description: "Sales revenue (net of platform fee)",
	})

	return s.RecordTransaction(ctx, dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: externalReference,
		Description:       description,
		CurrencyCode:      net.Currency,
		Entries:           entries,
		CreatedBy:         createdBy,
	})
}

// RecordRefund applies the mirror recipe: sales revenue is debited and
// bank/cash credited. The original transaction is untouched; the refund is a
// new transaction linked by OriginalReference, and at most one refund may
// reference a given payment.
func (s *ledgerService) RecordRefund(ctx context.Context, originalReference, refundReference string, amount domain.Money, description, createdBy string) (*domain.LedgerTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", apperrors.ErrValidation)
	}

	original, err := s.ledgerRepo.FindTransactionByExternalReference(ctx, originalReference)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no payment with reference %s", apperrors.ErrNotFound, originalReference)
		}
		return nil, fmt.Errorf("failed to look up original payment: %w", err)
	}
	if original.Type != domain.PaymentReceived {
		return nil, fmt.Errorf("%w: transaction %s is not a payment", apperrors.ErrValidation, originalReference)
	}

	if _, err := s.ledgerRepo.FindRefundByOriginalReference(ctx, originalReference); err == nil {
		return nil, fmt.Errorf("%w: payment %s", apperrors.ErrDuplicateRefund, originalReference)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing refund: %w", err)
	}

	amount = amount.Round()
	gross := original.DebitTotal()
	if cmp, err := amount.Cmp(gross); err != nil {
		return nil, err
	} else if cmp > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrRefundExceedsGross, amount, gross)
	}

	return s.RecordTransaction(ctx, dto.RecordTransactionRequest{
		Type:              domain.RefundIssued,
		ExternalReference: refundReference,
		OriginalReference: &originalReference,
		Description:       description,
		CurrencyCode:      amount.Currency,
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountSalesRevenue, Side: domain.Debit, Amount: amount.Amount, Description: "Refund issued"},
			{AccountID: domain.AccountBankCash, Side: domain.Credit, Amount: amount.Amount, Description: "Refund paid out"},
		},
		CreatedBy: createdBy,
	})
}

func (s *ledgerService) GetTransaction(ctx context.Context, transactionID string) (*domain.LedgerTransaction, error) {
	txn, err := s.ledgerRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return txn, nil
}

func (s *ledgerService) GetTransactionByExternalReference(ctx context.Context, externalReference string) (*domain.LedgerTransaction, error) {
	txn, err := s.ledgerRepo.FindTransactionByExternalReference(ctx, externalReference)
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by reference %s: %w", externalReference, err)
	}
	return txn, nil
}

func (s *ledgerService) FindRefundForPayment(ctx context.Context, originalReference string) (*domain.LedgerTransaction, error) {
	txn, err := s.ledgerRepo.FindRefundByOriginalReference(ctx, originalReference)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// GetAccountBalance returns the projected balance. The stored balance is a
// cache over the entries; RecomputeAccountBalance is the strongly consistent
// read.
func (s *ledgerService) GetAccountBalance(ctx context.Context, accountID string) (domain.Money, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to find account %s: %w", accountID, err)
	}
	return account.CachedBalance(), nil
}

// RecomputeAccountBalance folds all entries for the account in creation
// order. It must always agree with the cached balance; reporting jobs use it
// to detect projection drift.
func (s *ledgerService) RecomputeAccountBalance(ctx context.Context, accountID string) (domain.Money, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to find account %s: %w", accountID, err)
	}
	sum, err := s.ledgerRepo.SumEntriesForAccount(ctx, accountID)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to fold entries for account %s: %w", accountID, err)
	}
	return domain.Money{Amount: sum, Currency: account.CurrencyCode}, nil
}

// ListTransactions returns paginated history, newest first.
func (s *ledgerService) ListTransactions(ctx context.Context, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var txnType *domain.TransactionType
	if params.Type != nil && *params.Type != "" {
		t := domain.TransactionType(*params.Type)
		txnType = &t
	}

	txns, nextToken, err := s.ledgerRepo.ListTransactions(ctx, txnType, limit, params.NextToken)
	if err != nil {
		logger.Error("Failed to list transactions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to retrieve transactions: %w", err)
	}

	resp := &dto.ListTransactionsResponse{
		Transactions: make([]dto.TransactionResponse, len(txns)),
		NextToken:    nextToken,
	}
	for i := range txns {
		if params.IncludeEntries && len(txns[i].Entries) == 0 {
			entries, err := s.ledgerRepo.FindEntriesByTransactionID(ctx, txns[i].TransactionID)
			if err != nil {
				logger.Warn("Failed to fetch entries for transaction", slog.String("transaction_id", txns[i].TransactionID), slog.String("error", err.Error()))
			} else {
				txns[i].Entries = entries
			}
		}
		resp.Transactions[i] = dto.ToTransactionResponse(&txns[i])
	}

	logger.Debug("Transactions listed", slog.Int("count", len(txns)))
	return resp, nil
}

// uniqueStrings returns a slice containing only the unique strings from the input.
func uniqueStrings(input []string) []string {
	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, str := range input {
		if _, ok := seen[str]; !ok {
			seen[str] = struct{}{}
			result = append(result, str)
		}
	}
	return result
}
