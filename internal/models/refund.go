package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RefundStatusPending   = "PENDING"
	RefundStatusApproved  = "APPROVED"
	RefundStatusCompleted = "COMPLETED"
	RefundStatusRejected  = "REJECTED"
)

// Refund is a full or partial reversal of a settled payment. The sum of
// COMPLETED refund amounts for a payment never exceeds Payment.Amount.
type Refund struct {
	ID              uuid.UUID  `json:"id"`
	PaymentID       uuid.UUID  `json:"payment_id"`
	Amount          int64      `json:"amount"`
	Reason          string     `json:"reason"`
	RequestedByID   uuid.UUID  `json:"requested_by_id"`
	Status          string     `json:"status"`
	ApprovedByID    *uuid.UUID `json:"approved_by_id,omitempty"`
	GatewayRefundID *string    `json:"gateway_refund_id,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
