// Package metrics exposes Prometheus instrumentation for the payment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsTotal counts payment attempts by terminal status
	// (succeeded, failed, pending).
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments_engine",
		Name:      "payments_total",
		Help:      "Payment attempts by resulting status.",
	}, []string{"status"})

	// IdempotencyHitsTotal counts requests answered from the idempotency
	// store without a gateway call.
	IdempotencyHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "payments_engine",
		Name:      "idempotency_hits_total",
		Help:      "Payment requests answered with a cached outcome.",
	})

	// LedgerTransactionsTotal counts committed ledger transactions by type.
	LedgerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments_engine",
		Name:      "ledger_transactions_total",
		Help:      "Committed ledger transactions by type.",
	}, []string{"type"})

	// WebhookEventsTotal counts reconciler event applications by type and
	// outcome (applied, duplicate, error).
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments_engine",
		Name:      "webhook_events_total",
		Help:      "Webhook events by type and reconciliation outcome.",
	}, []string{"type", "outcome"})

	// GatewayCallDuration observes gateway charge latency.
	GatewayCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "payments_engine",
		Name:      "gateway_call_duration_seconds",
		Help:      "Latency of external gateway charge calls.",
		Buckets:   prometheus.DefBuckets,
	})
)
