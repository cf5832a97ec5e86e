package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending           = "PENDING"
	PaymentStatusProcessing        = "PROCESSING"
	PaymentStatusCompleted         = "COMPLETED"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusCancelled         = "CANCELLED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          = "REFUNDED"
)

const (
	PaymentMethodPix        = "PIX"
	PaymentMethodCreditCard = "CREDIT_CARD"
	PaymentMethodDebitCard  = "DEBIT_CARD"
	PaymentMethodBoleto     = "BOLETO"
)

// Payment is the single charge taken for a job. At most one row per job;
// rows are never deleted, only advanced by the orchestrator and the
// webhook reconciler.
type Payment struct {
	ID               uuid.UUID  `json:"id"`
	JobID            uuid.UUID  `json:"job_id"`
	Amount           int64      `json:"amount"` // minor currency units
	Method           string     `json:"method"`
	Status           string     `json:"status"`
	GatewayPaymentID *string    `json:"gateway_payment_id,omitempty"`
	Installments     int        `json:"installments"`
	QRCode           *string    `json:"qr_code,omitempty"` // Pix copy-and-paste payload
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
