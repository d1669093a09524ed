package dto

import (
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the external command to charge a user for a
// resource (e.g. a consultation booking fee).
type CreatePaymentRequest struct {
	UserID          string          `json:"userID" binding:"required"`
	ResourceID      string          `json:"resourceID" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Currency        string          `json:"currency" binding:"required,currencycode"`
	PlatformFeeRate decimal.Decimal `json:"platformFeeRate"`
	Method          string          `json:"method" binding:"required"`
	Description     string          `json:"description"`
}

// RefundRequest asks for a refund of a previously captured payment,
// identified by the gateway's external reference.
type RefundRequest struct {
	ExternalReference string          `json:"externalReference" binding:"required"`
	Amount            decimal.Decimal `json:"amount" binding:"required"`
	Currency          string          `json:"currency" binding:"required,currencycode"`
	Reason            string          `json:"reason"`
}
