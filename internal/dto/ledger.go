package dto

import (
	"time"

	"github.com/afyapay/payments_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// EntryInput is a single debit or credit line in a transaction request.
type EntryInput struct {
	AccountID   string            `json:"accountID" binding:"required"`
	Side        domain.EntrySide  `json:"side" binding:"required,oneof=DEBIT CREDIT"`
	Amount      decimal.Decimal   `json:"amount" binding:"required"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RecordTransactionRequest is the internal command for creating a balanced
// ledger transaction. It is built by the payment orchestrator and the
// reconciler; external callers never write to the ledger directly.
type RecordTransactionRequest struct {
	Type              domain.TransactionType `json:"type"`
	ExternalReference string                 `json:"externalReference"`
	OriginalReference *string                `json:"originalReference,omitempty"`
	Description       string                 `json:"description"`
	CurrencyCode      string                 `json:"currencyCode"`
	Entries           []EntryInput           `json:"entries"`
	CreatedBy         string                 `json:"createdBy"`
}

// ListTransactionsParams holds filters for the transaction history query.
type ListTransactionsParams struct {
	Type           *string `form:"type"`
	Limit          int     `form:"limit"`
	NextToken      *string `form:"nextToken"`
	IncludeEntries bool    `form:"includeEntries"`
}

// EntryResponse is the API shape of a ledger entry.
type EntryResponse struct {
	EntryID           string            `json:"entryID"`
	AccountID         string            `json:"accountID"`
	Side              domain.EntrySide  `json:"side"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Description       string            `json:"description,omitempty"`
	ExternalReference string            `json:"externalReference,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// TransactionResponse is the API shape of a ledger transaction.
type TransactionResponse struct {
	TransactionID     string                 `json:"transactionID"`
	Type              domain.TransactionType `json:"type"`
	ExternalReference string                 `json:"externalReference"`
	OriginalReference *string                `json:"originalReference,omitempty"`
	Description       string                 `json:"description"`
	CurrencyCode      string                 `json:"currencyCode"`
	Entries           []EntryResponse        `json:"entries,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// ListTransactionsResponse is a page of transaction history.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextToken    *string               `json:"nextToken,omitempty"`
}

// BalanceResponse is the API shape of a projected account balance.
type BalanceResponse struct {
	AccountID string          `json:"accountID"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ToTransactionResponse converts a domain transaction to its API shape.
func ToTransactionResponse(txn *domain.LedgerTransaction) TransactionResponse {
	resp := TransactionResponse{
		TransactionID:     txn.TransactionID,
		Type:              txn.Type,
		ExternalReference: txn.ExternalReference,
		OriginalReference: txn.OriginalReference,
		Description:       txn.Description,
		CurrencyCode:      txn.CurrencyCode,
		CreatedAt:         txn.CreatedAt,
	}
	for _, e := range txn.Entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			EntryID:           e.EntryID,
			AccountID:         e.AccountID,
			Side:              e.Side,
			Amount:            e.Amount.Amount,
			Currency:          e.Amount.Currency,
			Description:       e.Description,
			ExternalReference: e.ExternalReference,
			Metadata:          e.Metadata,
			CreatedAt:         e.CreatedAt,
		})
	}
	return resp
}
