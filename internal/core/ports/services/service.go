package services

// ServiceContainer holds the service facades handed to the HTTP layer.
type ServiceContainer struct {
	Ledger     LedgerSvcFacade
	Account    AccountSvcFacade
	Payment    PaymentSvcFacade
	Reconciler ReconcilerSvcFacade
}
