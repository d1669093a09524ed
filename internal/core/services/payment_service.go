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
	"github.com/afyapay/payments_engine/internal/utils/fingerprint"
)

// PaymentConfig carries the orchestrator's tunables.
type PaymentConfig struct {
	// ClaimTTL bounds how long an in-flight claim blocks identical requests.
	// A crashed orchestrator self-heals once the claim expires.
	ClaimTTL time.Duration
	// ResultTTL is how long a finalized outcome stays cached.
	ResultTTL time.Duration
	// FingerprintWindow is the coarse time bucket folded into the request
	// fingerprint. Identical requests inside one window are duplicates;
	// across windows they are distinct intents.
	FingerprintWindow time.Duration
	// GatewayTimeout bounds each gateway call.
	GatewayTimeout time.Duration
}

// paymentService orchestrates the idempotent payment flow across the
// idempotency store, the gateway, and the ledger.
type paymentService struct {
	ledgerSvc portssvc.LedgerSvcFacade
	idemRepo  portsrepo.IdempotencyRepository
	gateway   portssvc.PaymentGateway
	cfg       PaymentConfig
}

// NewPaymentService creates the payment orchestrator.
func NewPaymentService(ledgerSvc portssvc.LedgerSvcFacade, idemRepo portsrepo.IdempotencyRepository, gateway portssvc.PaymentGateway, cfg PaymentConfig) portssvc.PaymentSvcFacade {
	return &paymentService{
		ledgerSvc: ledgerSvc,
		idemRepo:  idemRepo,
		gateway:   gateway,
		cfg:       cfg,
	}
}

var _ portssvc.PaymentSvcFacade = (*paymentService)(nil)

// ProcessPayment runs one payment attempt end to end. The flow is
// claim -> charge -> commit -> finalize; every exit path leaves the
// idempotency store in a state from which a retry converges on exactly one
// gateway charge and one ledger transaction.
func (s *paymentService) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.UserID == "" || req.ResourceID == "" {
		return nil, fmt.Errorf("%w: user and resource identifiers are required", apperrors.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", apperrors.ErrValidation)
	}
	if req.PlatformFeeRate.IsNegative() {
		return nil, fmt.Errorf("%w: platform fee rate cannot be negative", apperrors.ErrValidation)
	}

	fp := fingerprint.Compute(req.UserID, req.ResourceID, req.Amount, time.Now().UTC(), s.cfg.FingerprintWindow)
	logger = logger.With(slog.String("fingerprint", fp))

	// Fast path: a live record already holds the outcome or marks an
	// identical request in flight.
	if record, err := s.idemRepo.Find(ctx, fp); err == nil {
		return s.resultFromRecord(logger, fp, record, req), nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to consult idempotency store: %w", err)
	}

	claimed, existing, err := s.idemRepo.Claim(ctx, fp, s.cfg.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if !claimed {
		// Lost the race to a concurrent identical request.
		return s.resultFromRecord(logger, fp, existing, req), nil
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	charge, err := s.gateway.Charge(gatewayCtx, portssvc.GatewayChargeRequest{
		Amount:         req.Amount,
		Method:         req.Method,
		IdempotencyKey: fp,
		Description:    req.Description,
	})
	metrics.GatewayCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, apperrors.ErrGatewayTimeout) {
			// Outcome unknown. The claim stays in place so retries within the
			// TTL see PENDING instead of double-charging; the webhook
			// reconciler supplies the real outcome.
			logger.Warn("Gateway call timed out, deferring to reconciliation",
				slog.String("gateway", s.gateway.Name()))
			metrics.PaymentsTotal.WithLabelValues(string(domain.PaymentPending)).Inc()
			return s.pendingResult(fp, req), nil
		}
		// Transport-level failure before the charge could be attempted.
		// Release the claim so the client can retry immediately.
		if relErr := s.idemRepo.Release(ctx, fp); relErr != nil {
			logger.Error("Failed to release claim after gateway error", slog.String("error", relErr.Error()))
		}
		return nil, fmt.Errorf("gateway charge failed: %w", err)
	}

	switch charge.Status {
	case portssvc.GatewayStatusDeclined:
		// A decline is a terminal business outcome, not an error. Release the
		// claim: a later identical request is a fresh attempt (e.g. after the
		// user tops up their account).
		if relErr := s.idemRepo.Release(ctx, fp); relErr != nil {
			logger.Error("Failed to release claim after decline", slog.String("error", relErr.Error()))
		}
		logger.Info("Payment declined by gateway",
			slog.String("gateway", s.gateway.Name()),
			slog.String("reason", charge.FailureReason))
		metrics.PaymentsTotal.WithLabelValues(string(domain.PaymentFailed)).Inc()
		return &domain.PaymentResult{
			Success:       false,
			Status:        domain.PaymentFailed,
			Fingerprint:   fp,
			Amount:        req.Amount,
			Gateway:       s.gateway.Name(),
			FailureReason: charge.FailureReason,
			CreatedAt:     time.Now().UTC(),
		}, nil

	case portssvc.GatewayStatusPending:
		// Gateway accepted but has not settled. Same handling as a timeout.
		logger.Info("Gateway reported pending, awaiting webhook",
			slog.String("external_reference", charge.ExternalReference))
		metrics.PaymentsTotal.WithLabelValues(string(domain.PaymentPending)).Inc()
		return s.pendingResult(fp, req), nil

	case portssvc.GatewayStatusSucceeded:
		txn, err := s.ledgerSvc.RecordPaymentCaptured(ctx, charge.ExternalReference, req.Amount, req.PlatformFeeRate, s.chargeDescription(req), req.UserID)
		if err != nil {
			// Money moved but the ledger write failed. Keep the claim: the
			// retry path re-enters RecordPaymentCaptured, which is idempotent
			// on the external reference, so no double entry can result.
			logger.Error("Ledger commit failed after successful charge",
				slog.String("external_reference", charge.ExternalReference),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: charge %s confirmed but not yet recorded: %v",
				apperrors.ErrLedgerWrite, charge.ExternalReference, err)
		}

		result := domain.PaymentResult{
			Success:           true,
			Status:            domain.PaymentSucceeded,
			Fingerprint:       fp,
			ExternalReference: charge.ExternalReference,
			TransactionID:     txn.TransactionID,
			Amount:            req.Amount,
			Gateway:           s.gateway.Name(),
			CreatedAt:         time.Now().UTC(),
		}
		if err := s.idemRepo.Finalize(ctx, fp, result, s.cfg.ResultTTL); err != nil {
			// The ledger already guards against double entry via the external
			// reference, so a failed finalize costs only a redundant gateway
			// dedup on retry.
			logger.Error("Failed to finalize idempotency record", slog.String("error", err.Error()))
		}

		logger.Info("Payment succeeded",
			slog.String("external_reference", charge.ExternalReference),
			slog.String("transaction_id", txn.TransactionID))
		metrics.PaymentsTotal.WithLabelValues(string(domain.PaymentSucceeded)).Inc()
		return &result, nil

	default:
		if relErr := s.idemRepo.Release(ctx, fp); relErr != nil {
			logger.Error("Failed to release claim after unknown gateway status", slog.String("error", relErr.Error()))
		}
		return nil, fmt.Errorf("gateway returned unknown status %q", charge.Status)
	}
}

// RefundPayment refunds a captured payment. The pre-checks here give the
// caller a fast answer; the ledger service re-validates atomically so a
// concurrent duplicate still cannot slip through.
func (s *paymentService) RefundPayment(ctx context.Context, req dto.RefundRequest, requestedBy string) (*domain.LedgerTransaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", apperrors.ErrValidation)
	}

	original, err := s.ledgerSvc.GetTransactionByExternalReference(ctx, req.ExternalReference)
	if err != nil {
		return nil, err
	}
	if original.Type != domain.PaymentReceived {
		return nil, fmt.Errorf("%w: transaction %s is not a payment", apperrors.ErrValidation, req.ExternalReference)
	}

	if _, err := s.ledgerSvc.FindRefundForPayment(ctx, req.ExternalReference); err == nil {
		return nil, fmt.Errorf("%w: payment %s", apperrors.ErrDuplicateRefund, req.ExternalReference)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing refund: %w", err)
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	refund, err := s.gateway.Refund(gatewayCtx, req.ExternalReference, amount)
	if err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}
	if refund.Status == portssvc.GatewayStatusDeclined {
		return nil, fmt.Errorf("%w: gateway declined refund: %s", apperrors.ErrGatewayDeclined, refund.FailureReason)
	}

	description := req.Reason
	if description == "" {
		description = fmt.Sprintf("Refund for payment %s", req.ExternalReference)
	}

	txn, err := s.ledgerSvc.RecordRefund(ctx, req.ExternalReference, refund.RefundReference, amount, description, requestedBy)
	if err != nil {
		return nil, err
	}

	logger.Info("Refund recorded",
		slog.String("original_reference", req.ExternalReference),
		slog.String("refund_reference", refund.RefundReference),
		slog.String("transaction_id", txn.TransactionID))
	return txn, nil
}

// resultFromRecord maps a live idempotency record to the caller's result: a
// finalized record returns the cached outcome verbatim, an in-flight claim
// returns PENDING.
func (s *paymentService) resultFromRecord(logger *slog.Logger, fp string, record *domain.IdempotencyRecord, req domain.PaymentRequest) *domain.PaymentResult {
	metrics.IdempotencyHitsTotal.Inc()
	if record.Status == domain.ClaimCompleted && record.Result != nil {
		logger.Info("Duplicate payment request, returning cached outcome",
			slog.String("status", string(record.Result.Status)))
		return record.Result
	}
	logger.Info("Identical payment request already in flight")
	return s.pendingResult(fp, req)
}

func (s *paymentService) pendingResult(fp string, req domain.PaymentRequest) *domain.PaymentResult {
	return &domain.PaymentResult{
		Success:     false,
		Status:      domain.PaymentPending,
		Fingerprint: fp,
		Amount:      req.Amount,
		Gateway:     s.gateway.Name(),
		CreatedAt:   time.Now().UTC(),
	}
}

func (s *paymentService) chargeDescription(req domain.PaymentRequest) string {
	if req.Description != "" {
		return req.Description
	}
	return fmt.Sprintf("Payment for %s by user %s", req.ResourceID, req.UserID)
}
