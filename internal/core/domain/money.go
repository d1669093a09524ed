package domain

import (
	"fmt"
	"regexp"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the decimal precision of the supported currencies.
const MinorUnitPlaces = 2

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Money is an exact decimal amount in a single ISO 4217 currency.
// All monetary arithmetic in the engine goes through this type; there is no
// floating point anywhere on a money path.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value, validating the currency code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if !currencyCodePattern.MatchString(currency) {
		return Money{}, fmt.Errorf("%w: invalid currency code %q", apperrors.ErrValidation, currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// checkCurrency rejects arithmetic across currencies.
func (m Money) checkCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", apperrors.ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// Add returns m + other, failing on mixed currencies.
func (m Money) Add(other Money) (Money, error) {
	if err := m.checkCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other, failing on mixed currencies.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.checkCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// MulRate multiplies by a scalar rate and rounds half-up to the currency's
// minor unit. Used for percentage fee calculations (e.g. a 10% platform fee).
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(rate).Round(MinorUnitPlaces), Currency: m.Currency}
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Cmp compares two amounts of the same currency: -1 if m < other, 0 if equal, 1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.checkCurrency(other); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Round normalizes the amount to the currency's minor-unit precision, half-up.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(MinorUnitPlaces), Currency: m.Currency}
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.StringFixed(MinorUnitPlaces) + " " + m.Currency
}
