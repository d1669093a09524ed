package domain

import "time"

// EntrySide indicates whether a ledger entry is a debit or a credit.
type EntrySide string

const (
	Debit  EntrySide = "DEBIT"
	Credit EntrySide = "CREDIT"
)

// TransactionType classifies the business event a ledger transaction records.
type TransactionType string

const (
	PaymentReceived TransactionType = "PAYMENT_RECEIVED"
	RefundIssued    TransactionType = "REFUND_ISSUED"
	PlatformFee     TransactionType = "PLATFORM_FEE"
)

// LedgerEntry is a single immutable debit or credit line within a transaction.
// Entries are append-only: never updated or deleted, reversed only by new
// offsetting entries in a later transaction.
type LedgerEntry struct {
	EntryID           string            `json:"entryID"`
	TransactionID     string            `json:"transactionID"`
	AccountID         string            `json:"accountID"`
	Side              EntrySide         `json:"side"`
	Amount            Money             `json:"amount"`
	Description       string            `json:"description"`
	ExternalReference string            `json:"externalReference,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// LedgerTransaction is a balanced group of at least two entries recording one
// money movement. Invariant: per currency, the sum of debit amounts equals the
// sum of credit amounts; this is enforced before anything is persisted.
type LedgerTransaction struct {
	TransactionID     string          `json:"transactionID"`
	Type              TransactionType `json:"type"`
	ExternalReference string          `json:"externalReference"` // Unique; the idempotency key for ledger writes
	OriginalReference *string         `json:"originalReference,omitempty"`
	Description       string          `json:"description"`
	CurrencyCode      string          `json:"currencyCode"`
	Entries           []LedgerEntry   `json:"entries,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	CreatedBy         string          `json:"createdBy"`
}

// DebitTotal sums the debit entries. Valid only for single-currency
// transactions, which is all the engine permits.
func (t LedgerTransaction) DebitTotal() Money {
	total := Money{Currency: t.CurrencyCode}
	for _, e := range t.Entries {
		if e.Side == Debit {
			total.Amount = total.Amount.Add(e.Amount.Amount)
		}
	}
	return total
}

// CreditTotal sums the credit entries.
func (t LedgerTransaction) CreditTotal() Money {
	total := Money{Currency: t.CurrencyCode}
	for _, e := range t.Entries {
		if e.Side == Credit {
			total.Amount = total.Amount.Add(e.Amount.Amount)
		}
	}
	return total
}
