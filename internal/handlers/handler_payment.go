package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/dto"
	"github.com/afyapay/payments_engine/internal/middleware"
	"github.com/afyapay/payments_engine/internal/platform/config"
)

// paymentHandler handles HTTP requests for payments and refunds.
type paymentHandler struct {
	paymentService portssvc.PaymentSvcFacade
	cfg            *config.Config
}

func newPaymentHandler(paymentService portssvc.PaymentSvcFacade, cfg *config.Config) *paymentHandler {
	return &paymentHandler{paymentService: paymentService, cfg: cfg}
}

// createPayment charges a user for a resource. The response status mirrors
// the orchestrator's outcome: 200 for a settled charge, 202 while the
// outcome is pending, 402 for a decline.
func (h *paymentHandler) createPayment(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for createPayment", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	feeRate := req.PlatformFeeRate
	if feeRate.IsZero() {
		feeRate = h.cfg.DefaultPlatformFeeRate
	}

	result, err := h.paymentService.ProcessPayment(c.Request.Context(), domain.PaymentRequest{
		UserID:          req.UserID,
		ResourceID:      req.ResourceID,
		Amount:          amount,
		PlatformFeeRate: feeRate,
		Method:          req.Method,
		Description:     req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			logger.Warn("Validation error processing payment", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrLedgerWrite):
			// The charge may have settled; the client must retry with the
			// same request so the ledger commit can converge.
			logger.Error("Ledger write failed during payment", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment accepted but not yet recorded; please retry"})
		default:
			logger.Error("Failed to process payment", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
		}
		return
	}

	switch result.Status {
	case domain.PaymentSucceeded:
		c.JSON(http.StatusOK, result)
	case domain.PaymentPending:
		c.JSON(http.StatusAccepted, result)
	default:
		c.JSON(http.StatusPaymentRequired, result)
	}
}

// refundPayment refunds a previously captured payment identified by its
// gateway reference.
func (h *paymentHandler) refundPayment(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	reference := c.Param("reference")

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for refundPayment", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	req.ExternalReference = reference

	txn, err := h.paymentService.RefundPayment(c.Request.Context(), req, actorID(c))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Warn("Refund target not found", slog.String("external_reference", reference))
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, apperrors.ErrDuplicateRefund):
			logger.Warn("Duplicate refund rejected", slog.String("external_reference", reference))
			c.JSON(http.StatusConflict, gin.H{"error": "Payment has already been refunded"})
		case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrCurrencyMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrGatewayDeclined):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to refund payment", slog.String("error", err.Error()), slog.String("external_reference", reference))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refund payment"})
		}
		return
	}

	logger.Info("Refund processed", slog.String("transaction_id", txn.TransactionID))
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// registerPaymentRoutes registers payment specific routes.
func registerPaymentRoutes(group *gin.RouterGroup, cfg *config.Config, paymentService portssvc.PaymentSvcFacade, rateLimiter *limiter.Limiter) {
	h := newPaymentHandler(paymentService, cfg)

	payments := group.Group("/payments")
	payments.Use(middleware.RateLimit(rateLimiter))
	{
		payments.POST("", h.createPayment)
		payments.POST("/:reference/refund", h.refundPayment)
	}
}
