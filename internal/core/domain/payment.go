package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the terminal-looking status returned to every caller of the
// payment orchestrator. A caller always receives one of these; never a
// partially-applied state.
type PaymentStatus string

const (
	// PaymentPending means the outcome is not yet known (identical request in
	// flight, or gateway timeout awaiting webhook confirmation). The caller
	// should retry shortly.
	PaymentPending PaymentStatus = "PENDING"
	// PaymentSucceeded means the charge was confirmed and the ledger
	// transaction committed.
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	// PaymentFailed means the gateway definitively declined the charge.
	PaymentFailed PaymentStatus = "FAILED"
)

// PaymentRequest is the command value object accepted by the orchestrator.
type PaymentRequest struct {
	UserID          string
	ResourceID      string // The resource being paid for, e.g. a consultation booking
	Amount          Money  // Net amount owed to the provider, before platform fee
	PlatformFeeRate decimal.Decimal
	Method          string
	Description     string
}

// PaymentResult records the outcome of a payment attempt. Results for
// completed attempts are cached in the idempotency store and returned
// unchanged to every retry within the fingerprint window.
type PaymentResult struct {
	Success           bool          `json:"success"`
	Status            PaymentStatus `json:"status"`
	Fingerprint       string        `json:"fingerprint"`
	ExternalReference string        `json:"externalReference,omitempty"`
	TransactionID     string        `json:"transactionID,omitempty"` // Ledger transaction, when one was recorded
	Amount            Money         `json:"amount"`
	Gateway           string        `json:"gateway,omitempty"`
	FailureReason     string        `json:"failureReason,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// IdempotencyStatus is the lifecycle state of an idempotency record.
type IdempotencyStatus string

const (
	// ClaimInProgress marks a short-lived claim written before the gateway
	// call; it prevents duplicate in-flight processing and self-heals via TTL
	// if the orchestrator crashes.
	ClaimInProgress IdempotencyStatus = "IN_PROGRESS"
	// ClaimCompleted marks a finalized record holding the cached outcome.
	ClaimCompleted IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecord maps a request fingerprint to a previously computed
// payment outcome. A finalized record is created only once an outcome is
// known; before that the fingerprint holds an IN_PROGRESS claim.
type IdempotencyRecord struct {
	Fingerprint string            `json:"fingerprint"`
	Status      IdempotencyStatus `json:"status"`
	Result      *PaymentResult    `json:"result,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// Expired reports whether the record is past its TTL at the given instant.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
