// Package ledger is the only writer of professional balances and the sole
// source of the append-only transaction log. Every mutation is one atomic
// read-modify-write against the user's row, executed under the caller's
// transaction with the row locked.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/models"
)

var (
	// ErrInsufficientBalance is returned when available funds do not cover
	// the requested hold.
	ErrInsufficientBalance = errors.New("insufficient available balance")
	// ErrInsufficientHeld indicates a reservation bookkeeping bug: a
	// release or debit asked for more than is held.
	ErrInsufficientHeld = errors.New("held amount smaller than requested")

	errNonPositiveAmount = errors.New("amount must be positive")
)

// Refs are the optional entity references recorded on a transaction row.
type Refs struct {
	PaymentID    *uuid.UUID
	JobID        *uuid.UUID
	WithdrawalID *uuid.UUID
}

// BalanceRepo is the minimal balance row access the service needs. All
// methods that take a pgx.Tx run inside the caller's transaction.
type BalanceRepo interface {
	// UpsertForUpdate creates the zero-value row if absent, then returns it
	// locked. Used by credits so balances appear lazily on first earning.
	UpsertForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Balance, error)
	// GetForUpdate returns the locked row or pgx.ErrNoRows.
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Balance, error)
	Save(ctx context.Context, tx pgx.Tx, b *models.Balance) error
	Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
}

// TransactionRepo appends audit rows.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
}

type Service struct {
	balances BalanceRepo
	txns     TransactionRepo
	log      *slog.Logger
}

func NewService(balances BalanceRepo, txns TransactionRepo, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{balances: balances, txns: txns, log: log}
}

// Credit adds an earning to the user's available balance and appends
// exactly one transaction row. The balance row is created lazily.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, txnType, description string, refs Refs) error {
	if amount <= 0 {
		return fmt.Errorf("credit: %w", errNonPositiveAmount)
	}
	b, err := s.balances.UpsertForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	before := b.Available
	b.Available += amount
	b.TotalEarned += amount
	if err := s.balances.Save(ctx, tx, b); err != nil {
		return err
	}
	return s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          txnType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  b.Available,
		PaymentID:     refs.PaymentID,
		JobID:         refs.JobID,
		WithdrawalID:  refs.WithdrawalID,
		Description:   description,
	})
}

// Hold reserves amount for a pending withdrawal, moving it from available
// to held. Reservations are not ledger events and write no transaction row.
func (s *Service) Hold(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("hold: %w", errNonPositiveAmount)
	}
	b, err := s.balances.GetForUpdate(ctx, tx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInsufficientBalance
	}
	if err != nil {
		return err
	}
	if b.Available < amount {
		return ErrInsufficientBalance
	}
	b.Available -= amount
	b.Held += amount
	return s.balances.Save(ctx, tx, b)
}

// ReleaseHold reverses a reservation, moving amount back from held to
// available. Like Hold it writes no transaction row.
func (s *Service) ReleaseHold(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("release hold: %w", errNonPositiveAmount)
	}
	b, err := s.balances.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if b.Held < amount {
		return fmt.Errorf("%w: held %d, requested %d", ErrInsufficientHeld, b.Held, amount)
	}
	b.Held -= amount
	b.Available += amount
	return s.balances.Save(ctx, tx, b)
}

// DebitWithdrawal consumes a reservation after a successful payout:
// held shrinks, totalWithdrawn grows, and the payout is recorded as a
// negative-amount transaction.
func (s *Service) DebitWithdrawal(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, withdrawalID uuid.UUID) error {
	if amount <= 0 {
		return fmt.Errorf("debit withdrawal: %w", errNonPositiveAmount)
	}
	b, err := s.balances.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if b.Held < amount {
		return fmt.Errorf("%w: held %d, requested %d", ErrInsufficientHeld, b.Held, amount)
	}
	b.Held -= amount
	b.TotalWithdrawn += amount
	if err := s.balances.Save(ctx, tx, b); err != nil {
		return err
	}
	return s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          models.TransactionWithdrawal,
		Amount:        -amount,
		BalanceBefore: b.Available,
		BalanceAfter:  b.Available,
		WithdrawalID:  &withdrawalID,
		Description:   "withdrawal payout",
	})
}

// Balance returns the user's balance, zero-valued when no row exists yet.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	b, err := s.balances.Get(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Balance{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// History returns the most recent transaction rows for the user.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.txns.ListByUser(ctx, userID, limit)
}
