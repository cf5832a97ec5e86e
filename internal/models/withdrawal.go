package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusApproved   = "APPROVED"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusRejected   = "REJECTED"
	WithdrawalStatusFailed     = "FAILED"
)

type Withdrawal struct {
	ID              uuid.UUID  `json:"id"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	Amount          int64      `json:"amount"`
	PixKey          string     `json:"pix_key"`
	Status          string     `json:"status"`
	ApprovedByID    *uuid.UUID `json:"approved_by_id,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
