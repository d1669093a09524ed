package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afyapay/payments_engine/internal/apperrors"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/dto"
	"github.com/afyapay/payments_engine/internal/middleware"
)

// webhookHandler receives asynchronous gateway notifications. The gateway
// retries deliveries until it sees a 2xx, so the handler acknowledges
// everything that must not be redelivered, including terminal rejections.
type webhookHandler struct {
	reconciler portssvc.ReconcilerSvcFacade
}

func newWebhookHandler(reconciler portssvc.ReconcilerSvcFacade) *webhookHandler {
	return &webhookHandler{reconciler: reconciler}
}

func (h *webhookHandler) receiveGatewayEvent(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var event dto.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		logger.Error("Failed to bind JSON for webhook event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event format"})
		return
	}

	outcome, err := h.reconciler.Apply(c.Request.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrDuplicateClaim):
			// An identical delivery is being processed right now. 409 makes
			// the gateway redeliver later, by which time the outcome exists.
			c.JSON(http.StatusConflict, gin.H{"error": "Event is already being processed"})
		case errors.Is(err, apperrors.ErrDuplicateRefund):
			// Terminal rejection: acknowledge so the gateway stops
			// redelivering a refund that can never apply.
			logger.Warn("Webhook refund rejected as duplicate", slog.String("event_id", event.EventID))
			c.JSON(http.StatusOK, outcome)
		case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrCurrencyMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to apply webhook event", slog.String("error", err.Error()), slog.String("event_id", event.EventID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		}
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// registerWebhookRoutes registers the gateway notification endpoint.
func registerWebhookRoutes(r *gin.Engine, reconciler portssvc.ReconcilerSvcFacade) {
	h := newWebhookHandler(reconciler)
	r.POST("/webhooks/gateway", h.receiveGatewayEvent)
}
