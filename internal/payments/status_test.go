package payments

import (
	"testing"

	"github.com/consertaja/backend/internal/models"
)

func TestMapGatewayStatus(t *testing.T) {
	cases := map[string]string{
		"pending":    models.PaymentStatusPending,
		"in_process": models.PaymentStatusProcessing,
		"approved":   models.PaymentStatusCompleted,
		"rejected":   models.PaymentStatusFailed,
		"cancelled":  models.PaymentStatusCancelled,
		"refunded":   models.PaymentStatusRefunded,
		// Unrecognized provider statuses stay PENDING so the poller keeps
		// looking at them.
		"authorized":  models.PaymentStatusPending,
		"chargedback": models.PaymentStatusPending,
		"":            models.PaymentStatusPending,
	}
	for in, want := range cases {
		if got := MapGatewayStatus(in); got != want {
			t.Errorf("MapGatewayStatus(%q): got %s, want %s", in, got, want)
		}
	}
}
