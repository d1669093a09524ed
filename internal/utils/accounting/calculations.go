package accounting

import (
	"fmt"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CalculateSignedAmount applies the correct sign to an entry amount based on
// account type and entry side. Used by both the service layer and the balance
// projector so the accounting convention stays in one place.
// DEBIT to ASSET/EXPENSE -> Positive (+)
// CREDIT to ASSET/EXPENSE -> Negative (-)
// DEBIT to LIABILITY/EQUITY/REVENUE -> Negative (-)
// CREDIT to LIABILITY/EQUITY/REVENUE -> Positive (+)
func CalculateSignedAmount(entry domain.LedgerEntry, accountType domain.AccountType) (decimal.Decimal, error) {
	signedAmount := entry.Amount.Amount
	isDebit := entry.Side == domain.Debit

	switch accountType {
	case domain.Asset, domain.Expense:
		if !isDebit {
			signedAmount = signedAmount.Neg()
		}
	case domain.Liability, domain.Equity, domain.Revenue:
		if isDebit {
			signedAmount = signedAmount.Neg()
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown account type '%s' for account ID %s", accountType, entry.AccountID)
	}
	return signedAmount, nil
}

// ValidateTransactionBalance checks the double-entry invariant for a proposed
// set of entries: at least two entries, a single currency, positive amounts,
// and total debits equal to total credits. The returned error carries both
// totals so an unbalanced recipe fails loudly with full detail.
func ValidateTransactionBalance(currencyCode string, entries []domain.LedgerEntry) error {
	if len(entries) < 2 {
		return fmt.Errorf("%w: transaction must have at least two entries", apperrors.ErrValidation)
	}

	debits := decimal.Zero
	credits := decimal.Zero
	for _, e := range entries {
		if e.Amount.Currency != currencyCode {
			return fmt.Errorf("%w: entry for account %s is %s, transaction is %s",
				apperrors.ErrCurrencyMismatch, e.AccountID, e.Amount.Currency, currencyCode)
		}
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: entry amount must be positive for account %s", apperrors.ErrValidation, e.AccountID)
		}
		if e.Side == domain.Debit {
			debits = debits.Add(e.Amount.Amount)
		} else {
			credits = credits.Add(e.Amount.Amount)
		}
	}

	if !debits.Equal(credits) {
		return fmt.Errorf("%w: debits total %s, credits total %s",
			apperrors.ErrUnbalancedTransaction, debits.String(), credits.String())
	}
	return nil
}

// SplitPlatformFee computes the gross charge and platform fee for a net
// amount at the given fee rate. The fee is rounded half-up to the currency's
// minor unit before the gross is derived, so gross == net + fee exactly.
func SplitPlatformFee(net domain.Money, feeRate decimal.Decimal) (gross domain.Money, fee domain.Money, err error) {
	if feeRate.IsNegative() {
		return domain.Money{}, domain.Money{}, fmt.Errorf("%w: platform fee rate must not be negative", apperrors.ErrValidation)
	}
	net = net.Round()
	fee = net.MulRate(feeRate)
	gross, err = net.Add(fee)
	if err != nil {
		return domain.Money{}, domain.Money{}, err
	}
	return gross, fee, nil
}
