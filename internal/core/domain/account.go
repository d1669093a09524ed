package domain

import (
	"github.com/shopspring/decimal"
)

// AccountType defines the fundamental accounting type of an account.
// It determines the account's normal balance: asset/expense accounts increase
// on debit, liability/equity/revenue accounts increase on credit.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// Well-known accounts used by the payment transaction recipes.
const (
	AccountBankCash           = "BANK_CASH"
	AccountSalesRevenue       = "SALES_REVENUE"
	AccountPlatformFeeRevenue = "PLATFORM_FEE_REVENUE"
)

// Account represents a named bucket whose balance is the fold of all ledger
// entries referencing it. The stored Balance is a cache maintained by the
// balance projector; the entries remain the source of truth.
type Account struct {
	AccountID    string          `json:"accountID"` // Stable identifier, e.g. "BANK_CASH"
	Name         string          `json:"name"`
	AccountType  AccountType     `json:"accountType"`
	CurrencyCode string          `json:"currencyCode"`
	Description  string          `json:"description"`
	IsActive     bool            `json:"isActive"`
	Balance      decimal.Decimal `json:"balance"`
	AuditFields
}

// CachedBalance returns the projected balance as a Money value.
func (a Account) CachedBalance() Money {
	return Money{Amount: a.Balance, Currency: a.CurrencyCode}
}
