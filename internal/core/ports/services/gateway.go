package services

import (
	"context"

	"github.com/afyapay/payments_engine/internal/core/domain"
)

// GatewayStatus is the outcome reported by the external payment gateway.
type GatewayStatus string

const (
	GatewayStatusSucceeded GatewayStatus = "SUCCEEDED"
	GatewayStatusDeclined  GatewayStatus = "DECLINED"
	GatewayStatusPending   GatewayStatus = "PENDING"
)

// GatewayChargeRequest is the charge command sent to the gateway. The
// engine's own idempotency key is forwarded so retried gateway calls are
// themselves deduplicated on the gateway side.
type GatewayChargeRequest struct {
	Amount         domain.Money
	Method         string
	IdempotencyKey string
	Description    string
}

// GatewayChargeResult is the gateway's response to a charge.
type GatewayChargeResult struct {
	ExternalReference string
	Status            GatewayStatus
	FailureReason     string
}

// GatewayRefundResult is the gateway's response to a refund.
type GatewayRefundResult struct {
	RefundReference string
	Status          GatewayStatus
	FailureReason   string
}

// PaymentGateway is the contract an adapter to a real payment network must
// satisfy. The engine never talks to a network directly; calls carry a
// bounded timeout and an ErrGatewayTimeout outcome means the result is
// unknown and the webhook reconciler will supply it later.
type PaymentGateway interface {
	Name() string
	Charge(ctx context.Context, req GatewayChargeRequest) (*GatewayChargeResult, error)
	Refund(ctx context.Context, externalReference string, amount domain.Money) (*GatewayRefundResult, error)
}
