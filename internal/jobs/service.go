package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/models"
)

// ErrNotJobClient is returned when someone other than the job's client tries
// to approve its completion.
var ErrNotJobClient = errors.New("requester is not the job client")

// Repo is the minimal job repository interface the service needs.
type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	SetCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, completedAt, guaranteeUntil time.Time) error
}

// EscrowReleaser releases the professional's held split for a job. The call
// is idempotent: retried approvals never double-pay.
type EscrowReleaser interface {
	Release(ctx context.Context, jobID uuid.UUID) error
}

type Service struct {
	repo          Repo
	escrow        EscrowReleaser
	guaranteeDays int
	log           *slog.Logger
}

func NewService(repo Repo, escrow EscrowReleaser, guaranteeDays int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, escrow: escrow, guaranteeDays: guaranteeDays, log: log}
}

func (s *Service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.repo.GetByID(ctx, jobID)
}

// ApproveCompletion transitions a PENDING_APPROVAL job to COMPLETED on
// behalf of its client and then releases the escrowed professional share.
func (s *Service) ApproveCompletion(ctx context.Context, jobID, actorID uuid.UUID, role string) (*models.Job, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID && role != models.RoleAdmin {
		return nil, ErrNotJobClient
	}

	// An already-COMPLETED job is a retried approval: skip the status write
	// and drive the idempotent release again, so a transient release failure
	// after the first commit can be recovered by approving once more.
	if job.Status == models.JobStatusCompleted {
		_ = tx.Rollback(ctx)
		if err := s.escrow.Release(ctx, jobID); err != nil {
			s.log.Error("escrow release on retried approval failed", "job_id", jobID, "error", err)
			return job, err
		}
		return job, nil
	}
	if !CanTransition(job.Status, models.JobStatusCompleted, role) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, models.JobStatusCompleted)
	}

	now := time.Now().UTC()
	guaranteeUntil := now.AddDate(0, 0, s.guaranteeDays)
	if err := s.repo.SetCompleted(ctx, tx, jobID, now, guaranteeUntil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.GuaranteeUntil = &guaranteeUntil

	// Release runs in its own transaction; a failure here leaves the job
	// COMPLETED and the split HELD, and a retried approval resolves it.
	if err := s.escrow.Release(ctx, jobID); err != nil {
		s.log.Error("escrow release after completion approval failed", "job_id", jobID, "error", err)
		return job, err
	}
	return job, nil
}

// Transition applies a generic role-guarded status change that carries no
// payment side effects.
func (s *Service) Transition(ctx context.Context, jobID uuid.UUID, next, role string) (*models.Job, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(job.Status, next, role) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}
	if err := s.repo.UpdateStatus(ctx, tx, jobID, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	job.Status = next
	return job, nil
}
