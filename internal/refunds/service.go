// Package refunds reverses settled payments through the gateway, fully or
// in part. Client requests wait for an admin; admin requests process
// immediately. The sum of COMPLETED refunds never exceeds the payment
// amount, checked at admission and again at approval under the payment
// row lock.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/gateway"
	"github.com/consertaja/backend/internal/metrics"
	"github.com/consertaja/backend/internal/models"
)

var (
	// ErrNotFound is returned when the refund or payment does not exist.
	ErrNotFound = errors.New("refund not found")
	// ErrPaymentNotFound is returned when the target payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrForbidden is returned when the requester is neither an admin nor
	// the paying client.
	ErrForbidden = errors.New("requester may not refund this payment")
	// ErrNotRefundable is returned when the payment is not in a refundable
	// state.
	ErrNotRefundable = errors.New("payment is not refundable")
	// ErrExceedsPayment rejects refunds that would overdraw the payment.
	ErrExceedsPayment = errors.New("refund exceeds remaining payment amount")
	// ErrNotPending is returned when an approval targets a decided refund.
	ErrNotPending = errors.New("refund is not pending")

	errNonPositiveAmount = errors.New("refund amount must be positive")
)

// Repo is the refund persistence contract.
type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, r *models.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Refund, error)
	SetApproved(ctx context.Context, tx pgx.Tx, id uuid.UUID, approvedBy uuid.UUID) error
	SetProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, gatewayRefundID *string, processedAt time.Time) error
	// SumCompletedTx totals COMPLETED refund amounts for the payment, read
	// inside the caller's transaction so the admission check is race-free.
	SumCompletedTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (int64, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.Refund, error)
}

// PaymentsRepo is the narrow payment access the workflow needs.
type PaymentsRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, paidAt *time.Time) error
}

// JobsRepo resolves the paying client for the authorization check.
type JobsRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// Notifier enqueues fire-and-forget events inside the transaction.
type Notifier interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, kind string, userID uuid.UUID, payload map[string]string) error
}

type Service struct {
	repo           Repo
	payments       PaymentsRepo
	jobs           JobsRepo
	gw             gateway.Adapter
	notify         Notifier
	gatewayTimeout time.Duration
	log            *slog.Logger
}

func NewService(repo Repo, payments PaymentsRepo, jobsRepo JobsRepo, gw gateway.Adapter, notify Notifier, gatewayTimeout time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &Service{
		repo:           repo,
		payments:       payments,
		jobs:           jobsRepo,
		gw:             gw,
		notify:         notify,
		gatewayTimeout: gatewayTimeout,
		log:            log,
	}
}

// Request admits a refund. Admins may refund any payment; clients only
// their own. Admin-originated requests process immediately;
// client-originated ones stay PENDING for an admin decision.
func (s *Service) Request(ctx context.Context, paymentID uuid.UUID, amount int64, reason string, requesterID uuid.UUID, requesterRole string) (*models.Refund, error) {
	if amount <= 0 {
		return nil, errNonPositiveAmount
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.payments.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if p.Status != models.PaymentStatusCompleted && p.Status != models.PaymentStatusPartiallyRefunded {
		return nil, fmt.Errorf("%w: status=%s", ErrNotRefundable, p.Status)
	}
	if requesterRole != models.RoleAdmin {
		job, err := s.jobs.GetByID(ctx, p.JobID)
		if err != nil {
			return nil, err
		}
		if job.ClientID != requesterID {
			return nil, ErrForbidden
		}
	}

	refunded, err := s.repo.SumCompletedTx(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if refunded+amount > p.Amount {
		return nil, fmt.Errorf("%w: %d of %d already refunded", ErrExceedsPayment, refunded, p.Amount)
	}

	r := &models.Refund{
		ID:            uuid.New(),
		PaymentID:     p.ID,
		Amount:        amount,
		Reason:        reason,
		RequestedByID: requesterID,
		Status:        models.RefundStatusPending,
	}
	if err := s.repo.CreateTx(ctx, tx, r); err != nil {
		return nil, err
	}
	if requesterRole == models.RoleAdmin {
		if err := s.repo.SetApproved(ctx, tx, r.ID, requesterID); err != nil {
			return nil, err
		}
		r.Status = models.RefundStatusApproved
		r.ApprovedByID = &requesterID
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("refund requested", "refund_id", r.ID, "payment_id", p.ID, "amount", amount, "role", requesterRole)
	if r.Status == models.RefundStatusApproved {
		return s.process(ctx, r, p)
	}
	return r, nil
}

// Approve applies an admin decision to a client-originated refund and
// drives processing.
func (s *Service) Approve(ctx context.Context, refundID, adminID uuid.UUID) (*models.Refund, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := s.repo.GetByIDForUpdate(ctx, tx, refundID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if r.Status != models.RefundStatusPending {
		return nil, fmt.Errorf("%w: status=%s", ErrNotPending, r.Status)
	}

	p, err := s.payments.GetByIDForUpdate(ctx, tx, r.PaymentID)
	if err != nil {
		return nil, err
	}

	// Re-run the admission check under the payment lock: other refunds may
	// have completed since this one was admitted, and the completed total
	// must never exceed the payment.
	refunded, err := s.repo.SumCompletedTx(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if refunded+r.Amount > p.Amount {
		if err := s.repo.SetProcessed(ctx, tx, r.ID, models.RefundStatusRejected, nil, time.Now().UTC()); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		metrics.RefundsProcessed.WithLabelValues("rejected").Inc()
		s.log.Warn("refund no longer fits payment, rejected",
			"refund_id", r.ID, "payment_id", p.ID, "refunded", refunded, "amount", r.Amount)
		return nil, fmt.Errorf("%w: %d of %d already refunded", ErrExceedsPayment, refunded, p.Amount)
	}

	if err := s.repo.SetApproved(ctx, tx, r.ID, adminID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.Status = models.RefundStatusApproved
	r.ApprovedByID = &adminID

	return s.process(ctx, r, p)
}

// process calls the gateway and records the terminal outcome. A gateway
// failure is REJECTED, leaving the payment untouched; the requester may
// file again.
func (s *Service) process(ctx context.Context, r *models.Refund, p *models.Payment) (*models.Refund, error) {
	if p.GatewayPaymentID == nil {
		return nil, fmt.Errorf("payment %s has no gateway id to refund against", p.ID)
	}

	var amount *int64
	if r.Amount < p.Amount {
		a := r.Amount
		amount = &a
	}
	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	refundID, gwErr := s.gw.RefundPayment(gwCtx, *p.GatewayPaymentID, amount)
	cancel()

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if gwErr != nil {
		if err := s.repo.SetProcessed(ctx, tx, r.ID, models.RefundStatusRejected, nil, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		metrics.RefundsProcessed.WithLabelValues("rejected").Inc()
		r.Status = models.RefundStatusRejected
		r.ProcessedAt = &now
		s.log.Warn("gateway refund failed, refund rejected", "refund_id", r.ID, "error", gwErr)
		return r, nil
	}

	if err := s.repo.SetProcessed(ctx, tx, r.ID, models.RefundStatusCompleted, &refundID, now); err != nil {
		return nil, err
	}

	// Recompute the payment status from the completed total, under the
	// payment lock so concurrent refunds serialize.
	locked, err := s.payments.GetByIDForUpdate(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	refunded, err := s.repo.SumCompletedTx(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	status := models.PaymentStatusPartiallyRefunded
	if refunded >= locked.Amount {
		status = models.PaymentStatusRefunded
	}
	if err := s.payments.UpdateStatus(ctx, tx, p.ID, status, nil); err != nil {
		return nil, err
	}
	if s.notify != nil {
		if err := s.notify.EnqueueTx(ctx, tx, "refund.decided", r.RequestedByID, map[string]string{
			"refund_id":  r.ID.String(),
			"payment_id": p.ID.String(),
			"status":     models.RefundStatusCompleted,
			"amount":     strconv.FormatInt(r.Amount, 10),
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.RefundsProcessed.WithLabelValues("completed").Inc()

	r.Status = models.RefundStatusCompleted
	r.GatewayRefundID = &refundID
	r.ProcessedAt = &now
	s.log.Info("refund completed", "refund_id", r.ID, "payment_id", p.ID, "payment_status", status)
	return r, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	r, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListByPayment returns all refunds filed against a payment.
func (s *Service) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.Refund, error) {
	return s.repo.ListByPayment(ctx, paymentID)
}
