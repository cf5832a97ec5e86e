// Package metrics exposes the payment-subsystem Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksProcessed counts gateway notifications by outcome:
	// applied, duplicate, unknown_payment, error.
	WebhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhooks_processed_total",
		Help: "Gateway webhook notifications processed, by outcome.",
	}, []string{"outcome"})

	PaymentsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Payments that reached COMPLETED and were split.",
	})

	EscrowReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_releases_total",
		Help: "Professional splits released to balances.",
	})

	WithdrawalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_decided_total",
		Help: "Withdrawal decisions, by outcome: completed, rejected, failed.",
	}, []string{"outcome"})

	RefundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_processed_total",
		Help: "Refund processing results, by outcome: completed, rejected.",
	}, []string{"outcome"})
)
