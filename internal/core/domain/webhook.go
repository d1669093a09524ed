package domain

import "time"

// WebhookEventType identifies the asynchronous gateway notification kind.
type WebhookEventType string

const (
	EventPaymentSucceeded WebhookEventType = "payment.succeeded"
	EventPaymentFailed    WebhookEventType = "payment.failed"
	EventRefundIssued     WebhookEventType = "refund.issued"
)

// WebhookOutcome is the recorded result of applying a gateway event. It is
// persisted keyed by event ID so duplicate deliveries return the prior
// outcome instead of re-applying the event.
type WebhookOutcome struct {
	EventID       string    `json:"eventID"`
	EventType     string    `json:"eventType"`
	Duplicate     bool      `json:"duplicate"`
	TransactionID string    `json:"transactionID,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	ProcessedAt   time.Time `json:"processedAt"`
}
