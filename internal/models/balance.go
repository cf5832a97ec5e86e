package models

import (
	"time"

	"github.com/google/uuid"
)

// Balance is one row per professional, created lazily on first credit.
// Invariant after every ledger operation:
//
//	Available + Held == TotalEarned - TotalWithdrawn
type Balance struct {
	UserID         uuid.UUID `json:"user_id"`
	Available      int64     `json:"available"`
	Held           int64     `json:"held"`
	TotalEarned    int64     `json:"total_earned"`
	TotalWithdrawn int64     `json:"total_withdrawn"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
