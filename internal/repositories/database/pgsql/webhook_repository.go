package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
)

const (
	webhookStatusInProgress = "IN_PROGRESS"
	webhookStatusCompleted  = "COMPLETED"
)

// PgxWebhookRepository tracks processed gateway event IDs. Completed events
// are kept permanently; an abandoned in-flight claim expires and can be
// reclaimed by a redelivery.
type PgxWebhookRepository struct {
	BaseRepository
}

func newPgxWebhookRepository(pool *pgxpool.Pool) portsrepo.WebhookEventRepository {
	return &PgxWebhookRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.WebhookEventRepository = (*PgxWebhookRepository)(nil)

// ClaimEvent atomically marks the event as being processed. Only an expired
// in-flight claim can be stolen; a completed event is permanent.
func (r *PgxWebhookRepository) ClaimEvent(ctx context.Context, eventID string, eventType string, ttl time.Duration) (bool, *domain.WebhookOutcome, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO processed_webhook_events (event_id, event_type, status, outcome, claimed_at, expires_at)
		VALUES ($1, $2, $3, NULL, $4, $5)
		ON CONFLICT (event_id) DO UPDATE
		SET event_type = EXCLUDED.event_type, status = EXCLUDED.status,
		    claimed_at = EXCLUDED.claimed_at, expires_at = EXCLUDED.expires_at
		WHERE processed_webhook_events.status = $3
		  AND processed_webhook_events.expires_at <= EXCLUDED.claimed_at
		RETURNING event_id;
	`
	var returned string
	err := r.Pool.QueryRow(ctx, query, eventID, eventType, webhookStatusInProgress, now, now.Add(ttl)).Scan(&returned)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to claim webhook event %s: %w", eventID, err)
	}

	// Already claimed or completed. Surface the stored outcome, if any.
	var status string
	var outcomeJSON []byte
	err = r.Pool.QueryRow(ctx,
		`SELECT status, outcome FROM processed_webhook_events WHERE event_id = $1;`,
		eventID,
	).Scan(&status, &outcomeJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Released between the claim attempt and this read.
			return false, nil, fmt.Errorf("%w: webhook event record vanished during claim", apperrors.ErrConflict)
		}
		return false, nil, fmt.Errorf("failed to read webhook event %s: %w", eventID, err)
	}
	if status != webhookStatusCompleted || len(outcomeJSON) == 0 {
		return false, nil, nil
	}
	var outcome domain.WebhookOutcome
	if err := json.Unmarshal(outcomeJSON, &outcome); err != nil {
		return false, nil, fmt.Errorf("failed to decode webhook outcome for event %s: %w", eventID, err)
	}
	return false, &outcome, nil
}

// CompleteEvent stores the outcome for the claimed event and makes the
// record permanent.
func (r *PgxWebhookRepository) CompleteEvent(ctx context.Context, eventID string, outcome domain.WebhookOutcome) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode webhook outcome: %w", err)
	}
	query := `
		UPDATE processed_webhook_events
		SET status = $2, outcome = $3, expires_at = NULL
		WHERE event_id = $1;
	`
	tag, err := r.Pool.Exec(ctx, query, eventID, webhookStatusCompleted, outcomeJSON)
	if err != nil {
		return fmt.Errorf("failed to complete webhook event %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no claim for webhook event %s", apperrors.ErrNotFound, eventID)
	}
	return nil
}

// ReleaseEvent drops an in-flight claim so the gateway's redelivery can
// retry the event. Completed events are never released.
func (r *PgxWebhookRepository) ReleaseEvent(ctx context.Context, eventID string) error {
	_, err := r.Pool.Exec(ctx,
		`DELETE FROM processed_webhook_events WHERE event_id = $1 AND status = $2;`,
		eventID, webhookStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to release webhook event %s: %w", eventID, err)
	}
	return nil
}
