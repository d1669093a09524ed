package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
)

// NewRepositoryProvider wires the postgres-backed repositories.
func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	accountRepo := newPgxAccountRepository(dbPool)
	return portsrepo.RepositoryProvider{
		LedgerRepo:      newPgxLedgerRepository(dbPool, accountRepo),
		AccountRepo:     accountRepo,
		IdempotencyRepo: newPgxIdempotencyRepository(dbPool),
		WebhookRepo:     newPgxWebhookRepository(dbPool),
	}
}
