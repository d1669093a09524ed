package services

import (
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
)

// NewServiceContainer wires the full service graph.
func NewServiceContainer(repos portsrepo.RepositoryProvider, gateway portssvc.PaymentGateway, publisher portssvc.EventPublisher, paymentCfg PaymentConfig, reconCfg ReconcilerConfig) *portssvc.ServiceContainer {
	ledgerSvc := NewLedgerService(repos.LedgerRepo, repos.AccountRepo, publisher)
	return &portssvc.ServiceContainer{
		Ledger:     ledgerSvc,
		Account:    NewAccountService(repos.AccountRepo),
		Payment:    NewPaymentService(ledgerSvc, repos.IdempotencyRepo, gateway, paymentCfg),
		Reconciler: NewReconcilerService(ledgerSvc, repos.IdempotencyRepo, repos.WebhookRepo, reconCfg),
	}
}
