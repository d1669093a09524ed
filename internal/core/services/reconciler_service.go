package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/dto"
	"github.com/afyapay/payments_engine/internal/middleware"
	"github.com/afyapay/payments_engine/internal/platform/metrics"
)

// ReconcilerConfig carries the reconciler's tunables.
type ReconcilerConfig struct {
	// EventTTL bounds how long a claimed-but-unfinished event blocks
	// redeliveries before the claim self-heals.
	EventTTL time.Duration
	// ResultTTL is how long a finalized payment outcome stays cached when the
	// reconciler completes a payment on the orchestrator's behalf.
	ResultTTL time.Duration
}

// reconcilerService applies asynchronous gateway notifications to the ledger
// at most once per event ID. It is the authority for payments whose gateway
// call timed out: the webhook, not the orchestrator, decides the outcome.
type reconcilerService struct {
	ledgerSvc   portssvc.LedgerSvcFacade
	idemRepo    portsrepo.IdempotencyRepository
	webhookRepo portsrepo.WebhookEventRepository
	cfg         ReconcilerConfig
}

// NewReconcilerService creates the webhook reconciler.
func NewReconcilerService(ledgerSvc portssvc.LedgerSvcFacade, idemRepo portsrepo.IdempotencyRepository, webhookRepo portsrepo.WebhookEventRepository, cfg ReconcilerConfig) portssvc.ReconcilerSvcFacade {
	return &reconcilerService{
		ledgerSvc:   ledgerSvc,
		idemRepo:    idemRepo,
		webhookRepo: webhookRepo,
		cfg:         cfg,
	}
}

var _ portssvc.ReconcilerSvcFacade = (*reconcilerService)(nil)

// Apply processes one gateway event. Claim-then-complete per event ID makes
// redeliveries no-ops: a completed event returns its stored outcome, an
// in-flight claim is reported as a conflict, and a transient failure releases
// the claim so the gateway's redelivery retries it.
func (s *reconcilerService) Apply(ctx context.Context, event dto.WebhookEvent) (*domain.WebhookOutcome, error) {
	logger := middleware.GetLoggerFromCtx(ctx).With(
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.Type),
	)

	claimed, prior, err := s.webhookRepo.ClaimEvent(ctx, event.EventID, event.Type, s.cfg.EventTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	if !claimed {
		if prior != nil {
			logger.Info("Duplicate webhook delivery, returning stored outcome")
			metrics.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
			dup := *prior
			dup.Duplicate = true
			return &dup, nil
		}
		logger.Info("Webhook event already being processed")
		return nil, fmt.Errorf("%w: event %s is in flight", apperrors.ErrDuplicateClaim, event.EventID)
	}

	outcome, err := s.applyClaimed(ctx, logger, event)
	if err != nil {
		if outcome != nil {
			// Terminal business rejection (e.g. a duplicate refund). Record
			// it so redeliveries do not retry a doomed event.
			if compErr := s.webhookRepo.CompleteEvent(ctx, event.EventID, *outcome); compErr != nil {
				logger.Error("Failed to store webhook outcome", slog.String("error", compErr.Error()))
			}
			metrics.WebhookEventsTotal.WithLabelValues(event.Type, "rejected").Inc()
			return outcome, err
		}
		// Transient failure: release so redelivery can retry.
		if relErr := s.webhookRepo.ReleaseEvent(ctx, event.EventID); relErr != nil {
			logger.Error("Failed to release webhook claim", slog.String("error", relErr.Error()))
		}
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return nil, err
	}

	if err := s.webhookRepo.CompleteEvent(ctx, event.EventID, *outcome); err != nil {
		// The ledger write already happened and is idempotent on its external
		// reference, so a redelivery converges on the same outcome.
		logger.Error("Failed to store webhook outcome", slog.String("error", err.Error()))
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Type, "applied").Inc()
	logger.Info("Webhook event applied", slog.String("transaction_id", outcome.TransactionID))
	return outcome, nil
}

// applyClaimed dispatches on event type. A non-nil outcome alongside a
// non-nil error marks a terminal rejection that must be stored, not retried.
func (s *reconcilerService) applyClaimed(ctx context.Context, logger *slog.Logger, event dto.WebhookEvent) (*domain.WebhookOutcome, error) {
	now := time.Now().UTC()

	switch domain.WebhookEventType(event.Type) {
	case domain.EventPaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, logger, event, now)

	case domain.EventPaymentFailed:
		return s.applyPaymentFailed(ctx, logger, event, now)

	case domain.EventRefundIssued:
		return s.applyRefundIssued(ctx, event, now)

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", apperrors.ErrValidation, event.Type)
	}
}

func (s *reconcilerService) applyPaymentSucceeded(ctx context.Context, logger *slog.Logger, event dto.WebhookEvent, now time.Time) (*domain.WebhookOutcome, error) {
	p := event.Payload
	if p.ExternalReference == "" {
		return nil, fmt.Errorf("%w: payment.succeeded requires an external reference", apperrors.ErrValidation)
	}
	net, err := domain.NewMoney(p.Amount, p.Currency)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Payment confirmed via webhook for %s", p.ResourceID)
	txn, err := s.ledgerSvc.RecordPaymentCaptured(ctx, p.ExternalReference, net, p.PlatformFeeRate, description, "webhook-reconciler")
	if err != nil {
		return nil, err
	}

	// Close out the orchestrator's pending claim so retried client requests
	// get the settled outcome instead of PENDING.
	if p.IdempotencyKey != "" {
		result := domain.PaymentResult{
			Success:           true,
			Status:            domain.PaymentSucceeded,
			Fingerprint:       p.IdempotencyKey,
			ExternalReference: p.ExternalReference,
			TransactionID:     txn.TransactionID,
			Amount:            net,
			CreatedAt:         now,
		}
		if err := s.idemRepo.Finalize(ctx, p.IdempotencyKey, result, s.cfg.ResultTTL); err != nil {
			logger.Warn("Failed to finalize idempotency record from webhook", slog.String("error", err.Error()))
		}
	}

	return &domain.WebhookOutcome{
		EventID:       event.EventID,
		EventType:     event.Type,
		TransactionID: txn.TransactionID,
		Detail:        "payment recorded",
		ProcessedAt:   now,
	}, nil
}

func (s *reconcilerService) applyPaymentFailed(ctx context.Context, logger *slog.Logger, event dto.WebhookEvent, now time.Time) (*domain.WebhookOutcome, error) {
	p := event.Payload

	// A failed payment writes nothing to the ledger. Releasing the claim lets
	// the client attempt the payment again.
	if p.IdempotencyKey != "" {
		if err := s.idemRepo.Release(ctx, p.IdempotencyKey); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to release idempotency claim: %w", err)
		}
		logger.Info("Released idempotency claim for failed payment")
	}

	return &domain.WebhookOutcome{
		EventID:     event.EventID,
		EventType:   event.Type,
		Detail:      fmt.Sprintf("payment failed: %s", p.FailureReason),
		ProcessedAt: now,
	}, nil
}

func (s *reconcilerService) applyRefundIssued(ctx context.Context, event dto.WebhookEvent, now time.Time) (*domain.WebhookOutcome, error) {
	p := event.Payload
	if p.OriginalReference == "" || p.RefundReference == "" {
		return nil, fmt.Errorf("%w: refund.issued requires original and refund references", apperrors.ErrValidation)
	}
	amount, err := domain.NewMoney(p.Amount, p.Currency)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Refund confirmed via webhook for payment %s", p.OriginalReference)
	txn, err := s.ledgerSvc.RecordRefund(ctx, p.OriginalReference, p.RefundReference, amount, description, "webhook-reconciler")
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateRefund) {
			// Terminal: redelivering this event can never succeed.
			return &domain.WebhookOutcome{
				EventID:     event.EventID,
				EventType:   event.Type,
				Detail:      fmt.Sprintf("refund already recorded for payment %s", p.OriginalReference),
				ProcessedAt: now,
			}, err
		}
		return nil, err
	}

	return &domain.WebhookOutcome{
		EventID:       event.EventID,
		EventType:     event.Type,
		TransactionID: txn.TransactionID,
		Detail:        "refund recorded",
		ProcessedAt:   now,
	}, nil
}
