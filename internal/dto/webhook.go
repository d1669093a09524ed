package dto

import "github.com/shopspring/decimal"

// WebhookPayload carries the gateway's view of the affected payment. Which
// fields are populated depends on the event type.
type WebhookPayload struct {
	IdempotencyKey    string          `json:"idempotencyKey,omitempty"` // Fingerprint forwarded on the original charge
	ExternalReference string          `json:"externalReference,omitempty"`
	RefundReference   string          `json:"refundReference,omitempty"`
	OriginalReference string          `json:"originalReference,omitempty"`
	UserID            string          `json:"userID,omitempty"`
	ResourceID        string          `json:"resourceID,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	PlatformFeeRate   decimal.Decimal `json:"platformFeeRate"`
	FailureReason     string          `json:"failureReason,omitempty"`
}

// WebhookEvent is an asynchronous gateway notification. Signature
// verification happens at the transport edge before this reaches the
// reconciler.
type WebhookEvent struct {
	EventID string         `json:"eventID" binding:"required"`
	Type    string         `json:"type" binding:"required"`
	Payload WebhookPayload `json:"payload" binding:"required"`
}
