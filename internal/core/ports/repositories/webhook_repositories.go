package repositories

import (
	"context"
	"time"

	"github.com/afyapay/payments_engine/internal/core/domain"
)

// WebhookEventRepository tracks processed gateway event IDs so each external
// event is applied at most once. Claim-then-complete mirrors the idempotency
// store: a claimed-but-unfinished event is released on failure so redelivery
// can retry it.
type WebhookEventRepository interface {
	// ClaimEvent atomically marks the event as being processed. If the event
	// was already claimed or completed, claimed is false and the stored
	// outcome (nil while still in flight) is returned.
	ClaimEvent(ctx context.Context, eventID string, eventType string, ttl time.Duration) (claimed bool, prior *domain.WebhookOutcome, err error)

	// CompleteEvent stores the outcome for the claimed event.
	CompleteEvent(ctx context.Context, eventID string, outcome domain.WebhookOutcome) error

	// ReleaseEvent drops the claim so a redelivery can re-apply the event.
	ReleaseEvent(ctx context.Context, eventID string) error
}
