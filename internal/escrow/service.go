// Package escrow splits settled payments between the platform and the
// professional and releases the professional's hold when the client
// approves the finished job.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/consertaja/backend/internal/config"
	"github.com/consertaja/backend/internal/ledger"
	"github.com/consertaja/backend/internal/metrics"
	"github.com/consertaja/backend/internal/models"
)

// SplitRepo is the payment_splits access the engine needs.
type SplitRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.PaymentSplit) error
	ExistsForPayment(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (bool, error)
	// GetProfessionalForUpdate returns the payment's PROFESSIONAL split
	// locked, or pgx.ErrNoRows.
	GetProfessionalForUpdate(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (*models.PaymentSplit, error)
	MarkReleased(ctx context.Context, tx pgx.Tx, id uuid.UUID, releasedAt time.Time) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.PaymentSplit, error)
}

// PaymentLookup resolves the payment a release refers to.
type PaymentLookup interface {
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error)
}

// Ledger is the balance-crediting contract, satisfied by ledger.Service.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, txnType, description string, refs ledger.Refs) error
}

// Notifier enqueues a fire-and-forget event inside the transaction.
type Notifier interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, kind string, userID uuid.UUID, payload map[string]string) error
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service struct {
	pool     TxBeginner
	splits   SplitRepo
	payments PaymentLookup
	ledger   Ledger
	notify   Notifier
	cfg      config.Escrow
	log      *slog.Logger
}

func NewService(pool TxBeginner, splits SplitRepo, payments PaymentLookup, ldg Ledger, notify Notifier, cfg config.Escrow, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: pool, splits: splits, payments: payments, ledger: ldg, notify: notify, cfg: cfg, log: log}
}

// CreateSplits writes the two legs of a settled payment inside the caller's
// transaction. The platform leg is floor(amount * fee) and released at
// creation; the professional leg is the remainder and stays held until the
// job is approved, so the legs always sum exactly to the payment amount.
// Calling it again for the same payment is a no-op.
func (s *Service) CreateSplits(ctx context.Context, tx pgx.Tx, p *models.Payment, professionalID uuid.UUID) error {
	exists, err := s.splits.ExistsForPayment(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	if exists {
		s.log.Warn("splits already exist for payment, skipping", "payment_id", p.ID)
		return nil
	}

	platformAmount := decimal.NewFromInt(p.Amount).
		Mul(decimal.NewFromFloat(s.cfg.PlatformFeePercentage)).
		Floor().IntPart()
	professionalAmount := p.Amount - platformAmount
	if professionalAmount < 0 {
		return fmt.Errorf("platform fee %d exceeds payment amount %d", platformAmount, p.Amount)
	}

	now := time.Now().UTC()
	heldUntil := now.Add(time.Duration(s.cfg.HoldHours) * time.Hour)

	if err := s.splits.CreateTx(ctx, tx, &models.PaymentSplit{
		ID:            uuid.New(),
		PaymentID:     p.ID,
		RecipientType: models.SplitRecipientPlatform,
		Amount:        platformAmount,
		Percentage:    s.cfg.PlatformFeePercentage,
		Status:        models.SplitStatusReleased,
		ReleasedAt:    &now,
	}); err != nil {
		return err
	}
	return s.splits.CreateTx(ctx, tx, &models.PaymentSplit{
		ID:            uuid.New(),
		PaymentID:     p.ID,
		RecipientType: models.SplitRecipientProfessional,
		RecipientID:   &professionalID,
		Amount:        professionalAmount,
		Percentage:    s.cfg.ProfessionalPercentage,
		Status:        models.SplitStatusHeld,
		HeldUntil:     &heldUntil,
	})
}

// Release releases the professional's held split for the job and credits
// their balance. Safe to call repeatedly: a missing or already-released
// split is a silent no-op, so double approval never double-pays.
func (s *Service) Release(ctx context.Context, jobID uuid.UUID) error {
	payment, err := s.payments.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Info("no payment for job, nothing to release", "job_id", jobID)
			return nil
		}
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	split, err := s.splits.GetProfessionalForUpdate(ctx, tx, payment.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Info("no professional split for payment, nothing to release", "payment_id", payment.ID)
			return nil
		}
		return err
	}
	if split.Status == models.SplitStatusReleased {
		s.log.Info("split already released", "split_id", split.ID)
		return nil
	}
	if split.RecipientID == nil {
		return fmt.Errorf("professional split %s has no recipient", split.ID)
	}

	now := time.Now().UTC()
	if err := s.splits.MarkReleased(ctx, tx, split.ID, now); err != nil {
		return err
	}
	if err := s.ledger.Credit(ctx, tx, *split.RecipientID, split.Amount,
		models.TransactionSplitProfessional, "escrow release for completed job",
		ledger.Refs{PaymentID: &payment.ID, JobID: &jobID}); err != nil {
		return err
	}
	if s.notify != nil {
		if err := s.notify.EnqueueTx(ctx, tx, "escrow.released", *split.RecipientID, map[string]string{
			"job_id":     jobID.String(),
			"payment_id": payment.ID.String(),
			"amount":     fmt.Sprintf("%d", split.Amount),
		}); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	metrics.EscrowReleases.Inc()
	s.log.Info("escrow released", "job_id", jobID, "split_id", split.ID, "amount", split.Amount)
	return nil
}

// Splits returns the split legs recorded for a payment.
func (s *Service) Splits(ctx context.Context, paymentID uuid.UUID) ([]*models.PaymentSplit, error) {
	return s.splits.ListByPayment(ctx, paymentID)
}
