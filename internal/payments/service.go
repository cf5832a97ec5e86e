// Package payments owns the payment row for a job: the orchestrator that
// creates it, the webhook reconciler that advances it, and the poller that
// repairs payments the gateway never called back about.
package payments

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
	"github.com/consertaja/backend/internal/jobs"
	"github.com/consertaja/backend/internal/metrics"
	"github.com/consertaja/backend/internal/models"
)

var (
	// ErrNotFound is returned when no payment exists for the given id/job.
	ErrNotFound = errors.New("payment not found")
	// ErrPaymentExists enforces the one-payment-per-job invariant.
	ErrPaymentExists = errors.New("job already has a payment")
	// ErrNotJobClient is returned when the requester is not the job's client.
	ErrNotJobClient = errors.New("requester is not the job client")
	// ErrJobNotPayable is returned when the job has no final price or is not
	// in the state that may begin payment.
	ErrJobNotPayable = errors.New("job is not ready for payment")
)

const maxInstallments = 12

// Repo is the payment persistence contract.
type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error)
	GetByGatewayIDForUpdate(ctx context.Context, tx pgx.Tx, gatewayID string) (*models.Payment, error)
	SetGatewayResult(ctx context.Context, tx pgx.Tx, id uuid.UUID, gatewayID string, qrCode *string, expiresAt *time.Time) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, paidAt *time.Time) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error)
}

// JobsRepo is the narrow job access the orchestrator needs.
type JobsRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// SplitCreator is satisfied by escrow.Service.
type SplitCreator interface {
	CreateSplits(ctx context.Context, tx pgx.Tx, p *models.Payment, professionalID uuid.UUID) error
}

// Notifier enqueues fire-and-forget events inside the transaction.
type Notifier interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, kind string, userID uuid.UUID, payload map[string]string) error
}

type Service struct {
	repo           Repo
	jobs           JobsRepo
	gw             gateway.Adapter
	splits         SplitCreator
	notify         Notifier
	gatewayTimeout time.Duration
	staleAfter     time.Duration
	log            *slog.Logger
}

func NewService(repo Repo, jobsRepo JobsRepo, gw gateway.Adapter, splits SplitCreator, notify Notifier, gatewayTimeout, staleAfter time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &Service{
		repo:           repo,
		jobs:           jobsRepo,
		gw:             gw,
		splits:         splits,
		notify:         notify,
		gatewayTimeout: gatewayTimeout,
		staleAfter:     staleAfter,
		log:            log,
	}
}

// CreatePayment creates the single payment for a job. The row is persisted
// PENDING before the gateway call so a transport failure leaves a
// reconciliable payment instead of a lost one; an immediately approved
// payment settles synchronously through the same path webhooks use.
func (s *Service) CreatePayment(ctx context.Context, jobID uuid.UUID, method string, requesterID uuid.UUID, installments int) (*models.Payment, error) {
	installments = clampInstallments(method, installments)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != requesterID {
		return nil, ErrNotJobClient
	}
	if existing, err := s.repo.GetByJobID(ctx, jobID); err == nil && existing != nil {
		return nil, ErrPaymentExists
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if job.PriceFinal == nil || job.Status != models.JobStatusQuoteAccepted {
		return nil, fmt.Errorf("%w: status=%s", ErrJobNotPayable, job.Status)
	}

	payment := &models.Payment{
		ID:           uuid.New(),
		JobID:        jobID,
		Amount:       *job.PriceFinal,
		Method:       method,
		Status:       models.PaymentStatusPending,
		Installments: installments,
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Re-check under the row lock: a concurrent request may have started
	// payment for the same job between the reads above and here.
	job, err = s.jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job.PriceFinal == nil || job.Status != models.JobStatusQuoteAccepted {
		return nil, fmt.Errorf("%w: status=%s", ErrJobNotPayable, job.Status)
	}
	if !jobs.CanTransition(job.Status, models.JobStatusPendingPayment, models.RoleClient) {
		return nil, fmt.Errorf("%w: status=%s", ErrJobNotPayable, job.Status)
	}
	if err := s.repo.CreateTx(ctx, tx, payment); err != nil {
		return nil, err
	}
	if err := s.jobs.UpdateStatus(ctx, tx, jobID, models.JobStatusPendingPayment); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	result, err := s.gw.CreatePayment(gwCtx, gateway.CreateRequest{
		Amount:       payment.Amount,
		Method:       method,
		Description:  fmt.Sprintf("ConsertaJá job %s: %s", job.ID, job.Title),
		Reference:    payment.ID.String(),
		Installments: installments,
	})
	if err != nil {
		// Not surfaced to the caller: the payment stays PENDING and the
		// poller reconciles it by external reference.
		s.log.Warn("gateway create failed, payment left pending for reconciliation",
			"payment_id", payment.ID, "error", err)
		return payment, nil
	}

	return s.applyGatewayResult(ctx, payment.ID, result)
}

// applyGatewayResult stores the gateway's id/QR data and applies its status
// through the same settlement path the webhook reconciler uses.
func (s *Service) applyGatewayResult(ctx context.Context, paymentID uuid.UUID, result *gateway.CreateResult) (*models.Payment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	var qr *string
	if result.QRCode != "" {
		qr = &result.QRCode
	}
	if err := s.repo.SetGatewayResult(ctx, tx, p.ID, result.ExternalID, qr, result.ExpiresAt); err != nil {
		return nil, err
	}
	p.GatewayPaymentID = &result.ExternalID
	p.QRCode = qr
	p.ExpiresAt = result.ExpiresAt

	mapped := MapGatewayStatus(result.Status)
	settled := false
	switch {
	case mapped == p.Status:
		// Still pending at the gateway; nothing more to do.
	case mapped == models.PaymentStatusCompleted:
		if err := s.settleTx(ctx, tx, p); err != nil {
			return nil, err
		}
		settled = true
	default:
		if err := s.repo.UpdateStatus(ctx, tx, p.ID, mapped, nil); err != nil {
			return nil, err
		}
		p.Status = mapped
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if settled {
		metrics.PaymentsSettled.Inc()
	}
	return p, nil
}

// ApplyWebhook applies an out-of-band gateway notification idempotently.
// Unknown payments and duplicate deliveries succeed silently; the
// equal-status check runs under the row lock that performs the update.
func (s *Service) ApplyWebhook(ctx context.Context, gatewayPaymentID, externalStatus string) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetByGatewayIDForUpdate(ctx, tx, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Info("webhook for unknown payment ignored", "gateway_payment_id", gatewayPaymentID)
			metrics.WebhooksProcessed.WithLabelValues("unknown_payment").Inc()
			return nil
		}
		metrics.WebhooksProcessed.WithLabelValues("error").Inc()
		return err
	}

	mapped := MapGatewayStatus(externalStatus)
	if mapped == p.Status {
		metrics.WebhooksProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}

	settled := false
	if mapped == models.PaymentStatusCompleted {
		if err := s.settleTx(ctx, tx, p); err != nil {
			metrics.WebhooksProcessed.WithLabelValues("error").Inc()
			return err
		}
		settled = true
	} else {
		if err := s.repo.UpdateStatus(ctx, tx, p.ID, mapped, nil); err != nil {
			metrics.WebhooksProcessed.WithLabelValues("error").Inc()
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		metrics.WebhooksProcessed.WithLabelValues("error").Inc()
		return err
	}
	metrics.WebhooksProcessed.WithLabelValues("applied").Inc()
	if settled {
		metrics.PaymentsSettled.Inc()
	}
	s.log.Info("webhook applied", "gateway_payment_id", gatewayPaymentID, "status", mapped)
	return nil
}

// settleTx marks the payment COMPLETED, creates the escrow splits and moves
// the job to PAID, all inside the caller's transaction.
func (s *Service) settleTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	job, err := s.jobs.GetByIDForUpdate(ctx, tx, p.JobID)
	if err != nil {
		return err
	}
	if job.ProfessionalID == nil {
		return fmt.Errorf("job %s has no professional to split payment for", job.ID)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, tx, p.ID, models.PaymentStatusCompleted, &now); err != nil {
		return err
	}
	p.Status = models.PaymentStatusCompleted
	p.PaidAt = &now

	if err := s.splits.CreateSplits(ctx, tx, p, *job.ProfessionalID); err != nil {
		return err
	}
	if job.Status != models.JobStatusPaid {
		if err := s.jobs.UpdateStatus(ctx, tx, job.ID, models.JobStatusPaid); err != nil {
			return err
		}
	}
	if s.notify != nil {
		if err := s.notify.EnqueueTx(ctx, tx, "payment.settled", job.ClientID, map[string]string{
			"job_id":     job.ID.String(),
			"payment_id": p.ID.String(),
			"amount":     strconv.FormatInt(p.Amount, 10),
		}); err != nil {
			return err
		}
	}
	return nil
}

// ReconcilePending re-polls the gateway for payments that have been sitting
// in a non-terminal state, applying results through the webhook path.
func (s *Service) ReconcilePending(ctx context.Context) error {
	stale, err := s.repo.ListStalePending(ctx, time.Now().UTC().Add(-s.staleAfter), 100)
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := s.reconcileOne(ctx, p); err != nil {
			s.log.Warn("payment reconcile failed", "payment_id", p.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) reconcileOne(ctx context.Context, p *models.Payment) error {
	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	if p.GatewayPaymentID != nil {
		status, err := s.gw.GetPaymentStatus(gwCtx, *p.GatewayPaymentID)
		if err != nil {
			return err
		}
		return s.ApplyWebhook(ctx, *p.GatewayPaymentID, status)
	}

	// Creation died before an id was stored; recover by the external
	// reference we sent with the create call.
	result, err := s.gw.FindPaymentByReference(gwCtx, p.ID.String())
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			s.log.Info("payment never reached the gateway", "payment_id", p.ID)
			return nil
		}
		return err
	}
	_, err = s.applyGatewayResult(ctx, p.ID, result)
	return err
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.GetByJobID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// clampInstallments keeps installments meaningful: only card payments may
// carry more than one, capped at twelve.
func clampInstallments(method string, installments int) int {
	if method != models.PaymentMethodCreditCard {
		return 1
	}
	if installments < 1 {
		return 1
	}
	if installments > maxInstallments {
		return maxInstallments
	}
	return installments
}
