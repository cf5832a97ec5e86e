package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionSplitProfessional = "SPLIT_PROFESSIONAL"
	TransactionWithdrawal        = "WITHDRAWAL"
	TransactionAdjustment        = "ADJUSTMENT"
)

// Transaction is the append-only audit trail of the ledger. One row is
// written for every ledger event; reservations (withdrawal holds) are not
// ledger events and write nothing here. Rows are never mutated or deleted.
type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"` // signed: credits positive, withdrawals negative
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty"`
	JobID         *uuid.UUID `json:"job_id,omitempty"`
	WithdrawalID  *uuid.UUID `json:"withdrawal_id,omitempty"`
	Description   string     `json:"description"`
	CreatedAt     time.Time  `json:"created_at"`
}
