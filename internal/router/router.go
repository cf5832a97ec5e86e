// Package router assembles the HTTP surface of the payment subsystem.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consertaja/backend/internal/jobs"
	"github.com/consertaja/backend/internal/ledger"
	"github.com/consertaja/backend/internal/payments"
	"github.com/consertaja/backend/internal/refunds"
	"github.com/consertaja/backend/internal/withdrawals"
)

// Handlers carries the per-domain handlers the router mounts.
type Handlers struct {
	Jobs        *jobs.Handler
	Payments    *payments.Handler
	Withdrawals *withdrawals.Handler
	Refunds     *refunds.Handler
	Ledger      *ledger.Handler
}

// New returns the API handler. auth wraps every route except the gateway
// webhook (the gateway is the caller and carries no token), health and
// metrics.
func New(h Handlers, auth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}

	protected("GET /v1/jobs/{id}", h.Jobs.Get)
	protected("POST /v1/jobs/{id}/approve-completion", h.Jobs.ApproveCompletion)
	protected("POST /v1/jobs/{id}/transition", h.Jobs.Transition)
	protected("GET /v1/jobs/{id}/payment", h.Payments.GetByJob)

	protected("POST /v1/payments", h.Payments.Create)
	protected("GET /v1/payments/{id}", h.Payments.Get)
	protected("GET /v1/payments/{id}/refunds", h.Refunds.ListByPayment)

	protected("POST /v1/withdrawals", h.Withdrawals.Request)
	protected("GET /v1/withdrawals", h.Withdrawals.List)
	protected("GET /v1/withdrawals/{id}", h.Withdrawals.Get)
	protected("POST /v1/withdrawals/{id}/decision", h.Withdrawals.Decide)

	protected("POST /v1/refunds", h.Refunds.Request)
	protected("GET /v1/refunds/{id}", h.Refunds.Get)
	protected("POST /v1/refunds/{id}/approve", h.Refunds.Approve)

	protected("GET /v1/balance", h.Ledger.Balance)
	protected("GET /v1/balance/transactions", h.Ledger.Transactions)

	// Unauthenticated: the gateway calls this.
	mux.HandleFunc("POST /v1/webhooks/payments", h.Payments.Webhook)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}
