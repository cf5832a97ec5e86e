// Package withdrawals drives professional payouts: a request reserves the
// money, an admin decision either reverses the reservation or pushes the
// payout through the Pix transfer and consumes it.
package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/config"
	"github.com/consertaja/backend/internal/gateway"
	"github.com/consertaja/backend/internal/ledger"
	"github.com/consertaja/backend/internal/metrics"
	"github.com/consertaja/backend/internal/models"
)

var (
	// ErrNotFound is returned when the withdrawal does not exist.
	ErrNotFound = errors.New("withdrawal not found")
	// ErrBelowMinimum rejects requests under the configured floor.
	ErrBelowMinimum = errors.New("amount below minimum withdrawal")
	// ErrNotPending is returned when a decision targets a withdrawal that
	// has already been decided.
	ErrNotPending = errors.New("withdrawal is not pending")
	// ErrPixKeyRequired rejects requests without a payout destination.
	ErrPixKeyRequired = errors.New("pix key is required")
)

// Repo is the withdrawal persistence contract.
type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	SetDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, approvedBy uuid.UUID, reason *string) error
	SetProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, processedAt time.Time) error
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit int) ([]*models.Withdrawal, error)
}

// Ledger is the balance surface the workflow mutates. Hold/ReleaseHold are
// reservations; only DebitWithdrawal writes a transaction row.
type Ledger interface {
	Hold(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error
	ReleaseHold(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error
	DebitWithdrawal(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, withdrawalID uuid.UUID) error
}

// Notifier enqueues fire-and-forget events inside the transaction.
type Notifier interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, kind string, userID uuid.UUID, payload map[string]string) error
}

type Service struct {
	repo    Repo
	ledger  Ledger
	payouts gateway.PixPayouts
	notify  Notifier
	cfg     config.Withdrawals
	log     *slog.Logger
}

func NewService(repo Repo, ledger Ledger, payouts gateway.PixPayouts, notify Notifier, cfg config.Withdrawals, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PayoutTimeout <= 0 {
		cfg.PayoutTimeout = 30 * time.Second
	}
	return &Service{repo: repo, ledger: ledger, payouts: payouts, notify: notify, cfg: cfg, log: log}
}

// Request creates a PENDING withdrawal and atomically moves the amount from
// available to held. The reservation writes no transaction row; it becomes
// a ledger event only if the payout completes.
func (s *Service) Request(ctx context.Context, professionalID uuid.UUID, amount int64, pixKey string) (*models.Withdrawal, error) {
	if amount < s.cfg.MinAmount {
		return nil, fmt.Errorf("%w: minimum is %d", ErrBelowMinimum, s.cfg.MinAmount)
	}
	if pixKey == "" {
		return nil, ErrPixKeyRequired
	}

	w := &models.Withdrawal{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		Amount:         amount,
		PixKey:         pixKey,
		Status:         models.WithdrawalStatusPending,
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Hold first: an insufficient balance must fail before the row exists.
	if err := s.ledger.Hold(ctx, tx, professionalID, amount); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTx(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("withdrawal requested", "withdrawal_id", w.ID, "professional_id", professionalID, "amount", amount)
	return w, nil
}

// Decide applies an admin decision to a PENDING withdrawal. A rejection
// reverses the reservation and stores the reason. An approval immediately
// drives processing: the withdrawal is committed PROCESSING, the Pix
// transfer runs outside any transaction, and a second transaction applies
// the outcome (COMPLETED with the ledger debit, or FAILED with the
// reservation reversed), so a crash mid-payout leaves a PROCESSING row to
// investigate instead of money moved twice or not at all.
func (s *Service) Decide(ctx context.Context, withdrawalID, adminID uuid.UUID, approve bool, reason string) (*models.Withdrawal, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w, err := s.repo.GetByIDForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if w.Status != models.WithdrawalStatusPending {
		return nil, fmt.Errorf("%w: status=%s", ErrNotPending, w.Status)
	}

	if !approve {
		return s.reject(ctx, tx, w, adminID, reason)
	}

	if err := s.repo.SetDecision(ctx, tx, w.ID, models.WithdrawalStatusProcessing, adminID, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	w.Status = models.WithdrawalStatusProcessing
	w.ApprovedByID = &adminID

	return s.process(ctx, w)
}

func (s *Service) reject(ctx context.Context, tx pgx.Tx, w *models.Withdrawal, adminID uuid.UUID, reason string) (*models.Withdrawal, error) {
	if err := s.repo.SetDecision(ctx, tx, w.ID, models.WithdrawalStatusRejected, adminID, &reason); err != nil {
		return nil, err
	}
	if err := s.ledger.ReleaseHold(ctx, tx, w.ProfessionalID, w.Amount); err != nil {
		return nil, err
	}
	if s.notify != nil {
		if err := s.notify.EnqueueTx(ctx, tx, "withdrawal.decided", w.ProfessionalID, map[string]string{
			"withdrawal_id": w.ID.String(),
			"status":        models.WithdrawalStatusRejected,
			"reason":        reason,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.WithdrawalsDecided.WithLabelValues("rejected").Inc()

	w.Status = models.WithdrawalStatusRejected
	w.ApprovedByID = &adminID
	w.RejectionReason = &reason
	s.log.Info("withdrawal rejected", "withdrawal_id", w.ID, "reason", reason)
	return w, nil
}

// process runs the payout and records its outcome. The withdrawal is
// already committed PROCESSING when this is called.
func (s *Service) process(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error) {
	payoutCtx, cancel := context.WithTimeout(ctx, s.cfg.PayoutTimeout)
	payoutErr := s.payouts.Transfer(payoutCtx, w.PixKey, w.Amount, w.ID.String())
	cancel()

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if payoutErr != nil {
		// Terminal failure: the professional keeps the money.
		if err := s.repo.SetProcessed(ctx, tx, w.ID, models.WithdrawalStatusFailed, now); err != nil {
			return nil, err
		}
		if err := s.ledger.ReleaseHold(ctx, tx, w.ProfessionalID, w.Amount); err != nil {
			return nil, err
		}
		if err := s.notifyDecision(ctx, tx, w, models.WithdrawalStatusFailed); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		metrics.WithdrawalsDecided.WithLabelValues("failed").Inc()
		w.Status = models.WithdrawalStatusFailed
		w.ProcessedAt = &now
		s.log.Warn("withdrawal payout failed, reservation reversed", "withdrawal_id", w.ID, "error", payoutErr)
		return w, nil
	}

	if err := s.repo.SetProcessed(ctx, tx, w.ID, models.WithdrawalStatusCompleted, now); err != nil {
		return nil, err
	}
	if err := s.ledger.DebitWithdrawal(ctx, tx, w.ProfessionalID, w.Amount, w.ID); err != nil {
		return nil, err
	}
	if err := s.notifyDecision(ctx, tx, w, models.WithdrawalStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.WithdrawalsDecided.WithLabelValues("completed").Inc()

	w.Status = models.WithdrawalStatusCompleted
	w.ProcessedAt = &now
	s.log.Info("withdrawal completed", "withdrawal_id", w.ID, "amount", w.Amount)
	return w, nil
}

func (s *Service) notifyDecision(ctx context.Context, tx pgx.Tx, w *models.Withdrawal, status string) error {
	if s.notify == nil {
		return nil
	}
	return s.notify.EnqueueTx(ctx, tx, "withdrawal.decided", w.ProfessionalID, map[string]string{
		"withdrawal_id": w.ID.String(),
		"status":        status,
		"amount":        strconv.FormatInt(w.Amount, 10),
	})
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

// List returns the professional's most recent withdrawals.
func (s *Service) List(ctx context.Context, professionalID uuid.UUID, limit int) ([]*models.Withdrawal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByProfessional(ctx, professionalID, limit)
}

var _ Ledger = (*ledger.Service)(nil)
