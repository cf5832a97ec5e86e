package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SplitRecipientProfessional = "PROFESSIONAL"
	SplitRecipientPlatform     = "PLATFORM"

	SplitStatusHeld     = "HELD"
	SplitStatusReleased = "RELEASED"
)

// PaymentSplit is one leg of a settled payment. For any payment the split
// amounts sum exactly to Payment.Amount: the platform leg is floored and the
// professional leg takes the remainder.
type PaymentSplit struct {
	ID            uuid.UUID  `json:"id"`
	PaymentID     uuid.UUID  `json:"payment_id"`
	RecipientType string     `json:"recipient_type"`
	RecipientID   *uuid.UUID `json:"recipient_id,omitempty"` // nil for the platform leg
	Amount        int64      `json:"amount"`
	Percentage    float64    `json:"percentage"`
	Status        string     `json:"status"`
	HeldUntil     *time.Time `json:"held_until,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
