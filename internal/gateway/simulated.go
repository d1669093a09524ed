// Package gateway holds payment gateway adapters. The simulated gateway
// stands in for a real payment network in local runs and tests.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/afyapay/payments_engine/internal/core/domain"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
)

// Method prefixes the simulator reacts to, mimicking a sandbox gateway's
// magic values.
const (
	methodDeclinePrefix = "declined"
	methodPendingPrefix = "pending"
)

// SimulatedGateway is an in-memory PaymentGateway. It honours the forwarded
// idempotency key: a retried charge returns the original external reference
// instead of minting a new one, the way a real gateway deduplicates.
type SimulatedGateway struct {
	mu      sync.Mutex
	charges map[string]*portssvc.GatewayChargeResult // keyed by idempotency key
	refunds map[string]string                        // original reference -> refund reference
}

// NewSimulatedGateway creates the simulator.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		charges: make(map[string]*portssvc.GatewayChargeResult),
		refunds: make(map[string]string),
	}
}

var _ portssvc.PaymentGateway = (*SimulatedGateway)(nil)

func (g *SimulatedGateway) Name() string { return "simulated" }

// Charge settles immediately. Methods starting with "declined" are declined;
// methods starting with "pending" settle later via webhook.
func (g *SimulatedGateway) Charge(ctx context.Context, req portssvc.GatewayChargeRequest) (*portssvc.GatewayChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.IdempotencyKey != "" {
		if prior, ok := g.charges[req.IdempotencyKey]; ok {
			return prior, nil
		}
	}

	var result *portssvc.GatewayChargeResult
	switch {
	case strings.HasPrefix(req.Method, methodDeclinePrefix):
		result = &portssvc.GatewayChargeResult{
			Status:        portssvc.GatewayStatusDeclined,
			FailureReason: "insufficient funds",
		}
	case strings.HasPrefix(req.Method, methodPendingPrefix):
		result = &portssvc.GatewayChargeResult{
			ExternalReference: "sim_" + uuid.NewString(),
			Status:            portssvc.GatewayStatusPending,
		}
	default:
		result = &portssvc.GatewayChargeResult{
			ExternalReference: "sim_" + uuid.NewString(),
			Status:            portssvc.GatewayStatusSucceeded,
		}
	}

	if req.IdempotencyKey != "" {
		g.charges[req.IdempotencyKey] = result
	}
	return result, nil
}

// Refund succeeds for any reference previously charged through this
// simulator instance, and for unknown references too, since the ledger layer
// is the authority on whether the payment exists.
func (g *SimulatedGateway) Refund(ctx context.Context, externalReference string, amount domain.Money) (*portssvc.GatewayRefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prior, ok := g.refunds[externalReference]; ok {
		return &portssvc.GatewayRefundResult{
			RefundReference: prior,
			Status:          portssvc.GatewayStatusSucceeded,
		}, nil
	}

	ref := fmt.Sprintf("simrf_%s", uuid.NewString())
	g.refunds[externalReference] = ref
	return &portssvc.GatewayRefundResult{
		RefundReference: ref,
		Status:          portssvc.GatewayStatusSucceeded,
	}, nil
}
