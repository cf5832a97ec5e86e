package payments

import (
	"strings"

	"github.com/consertaja/backend/internal/models"
)

// gatewayStatuses is the fixed external -> internal status table.
var gatewayStatuses = map[string]string{
	"pending":    models.PaymentStatusPending,
	"in_process": models.PaymentStatusProcessing,
	"approved":   models.PaymentStatusCompleted,
	"rejected":   models.PaymentStatusFailed,
	"cancelled":  models.PaymentStatusCancelled,
	"refunded":   models.PaymentStatusRefunded,
}

// MapGatewayStatus translates a gateway status into the internal payment
// status. Unrecognized values map to PENDING so a later notification or
// poll can still move the payment forward.
func MapGatewayStatus(external string) string {
	if s, ok := gatewayStatuses[strings.ToLower(strings.TrimSpace(external))]; ok {
		return s
	}
	return models.PaymentStatusPending
}
