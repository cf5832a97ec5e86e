package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor roles resolved by the identity layer before requests reach this subsystem.
const (
	RoleClient       = "CLIENT"
	RoleProfessional = "PROFESSIONAL"
	RoleAdmin        = "ADMIN"
)

// Job lifecycle statuses. The transition graph lives in internal/jobs.
const (
	JobStatusCreated         = "CREATED"
	JobStatusQuoted          = "QUOTED"
	JobStatusQuoteAccepted   = "QUOTE_ACCEPTED"
	JobStatusPendingPayment  = "PENDING_PAYMENT"
	JobStatusPaid            = "PAID"
	JobStatusInProgress      = "IN_PROGRESS"
	JobStatusPendingApproval = "PENDING_APPROVAL"
	JobStatusCompleted       = "COMPLETED"
	JobStatusInGuarantee     = "IN_GUARANTEE"
	JobStatusDisputed        = "DISPUTED"
	JobStatusClosed          = "CLOSED"
	JobStatusCancelled       = "CANCELLED"
)

type Job struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	ProfessionalID *uuid.UUID `json:"professional_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	PriceFinal     *int64     `json:"price_final,omitempty"` // minor currency units (centavos)
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	GuaranteeUntil *time.Time `json:"guarantee_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
