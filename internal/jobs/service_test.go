package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/models"
	"github.com/consertaja/backend/internal/testutil"
)

type memJobs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Job
}

func (m *memJobs) Begin(context.Context) (pgx.Tx, error) { return testutil.NoopTx{}, nil }

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return m.GetByID(ctx, id)
}

func (m *memJobs) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	return nil
}

func (m *memJobs) SetCompleted(_ context.Context, _ pgx.Tx, id uuid.UUID, completedAt, guaranteeUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = models.JobStatusCompleted
	c, g := completedAt, guaranteeUntil
	j.CompletedAt = &c
	j.GuaranteeUntil = &g
	return nil
}

type releaseRecorder struct {
	calls []uuid.UUID
	err   error
}

func (r *releaseRecorder) Release(_ context.Context, jobID uuid.UUID) error {
	r.calls = append(r.calls, jobID)
	return r.err
}

func approvableJob(client uuid.UUID) *models.Job {
	return &models.Job{
		ID:       uuid.New(),
		ClientID: client,
		Status:   models.JobStatusPendingApproval,
	}
}

func TestApproveCompletion(t *testing.T) {
	client := uuid.New()
	job := approvableJob(client)
	repo := &memJobs{rows: map[uuid.UUID]*models.Job{job.ID: job}}
	escrow := &releaseRecorder{}
	svc := NewService(repo, escrow, 90, nil)

	got, err := svc.ApproveCompletion(context.Background(), job.ID, client, models.RoleClient)
	if err != nil {
		t.Fatalf("ApproveCompletion: %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Errorf("status: got %s, want COMPLETED", got.Status)
	}
	if got.CompletedAt == nil || got.GuaranteeUntil == nil {
		t.Fatal("completed_at and guarantee_until must be set")
	}
	wantGuarantee := got.CompletedAt.AddDate(0, 0, 90)
	if !got.GuaranteeUntil.Equal(wantGuarantee) {
		t.Errorf("guarantee_until: got %v, want %v", got.GuaranteeUntil, wantGuarantee)
	}
	if len(escrow.calls) != 1 || escrow.calls[0] != job.ID {
		t.Errorf("escrow release calls: %v", escrow.calls)
	}
}

func TestApproveCompletion_Guards(t *testing.T) {
	client := uuid.New()
	job := approvableJob(client)
	repo := &memJobs{rows: map[uuid.UUID]*models.Job{job.ID: job}}
	escrow := &releaseRecorder{}
	svc := NewService(repo, escrow, 90, nil)
	ctx := context.Background()

	if _, err := svc.ApproveCompletion(ctx, uuid.New(), client, models.RoleClient); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown job: got %v, want ErrNotFound", err)
	}
	if _, err := svc.ApproveCompletion(ctx, job.ID, uuid.New(), models.RoleClient); !errors.Is(err, ErrNotJobClient) {
		t.Errorf("stranger: got %v, want ErrNotJobClient", err)
	}

	job2 := approvableJob(client)
	job2.Status = models.JobStatusInProgress
	repo.rows[job2.ID] = job2
	if _, err := svc.ApproveCompletion(ctx, job2.ID, client, models.RoleClient); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("IN_PROGRESS job: got %v, want ErrInvalidTransition", err)
	}
	if len(escrow.calls) != 0 {
		t.Error("failed approvals must not release escrow")
	}
}

// A retried approval surfaces the escrow error but leaves the job
// COMPLETED; the caller retries and the idempotent release resolves it.
func TestApproveCompletion_ReleaseFailureSurfaces(t *testing.T) {
	client := uuid.New()
	job := approvableJob(client)
	repo := &memJobs{rows: map[uuid.UUID]*models.Job{job.ID: job}}
	escrow := &releaseRecorder{err: errors.New("db down")}
	svc := NewService(repo, escrow, 90, nil)

	if _, err := svc.ApproveCompletion(context.Background(), job.ID, client, models.RoleClient); err == nil {
		t.Fatal("release failure must surface")
	}
	stored, _ := repo.GetByID(context.Background(), job.ID)
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("job must stay COMPLETED, got %s", stored.Status)
	}
}

// After a transient release failure the client retries the approval: the
// job is already COMPLETED, so the retry must skip the transition and drive
// the idempotent release again instead of failing the state check.
func TestApproveCompletion_RetryAfterReleaseFailure(t *testing.T) {
	client := uuid.New()
	job := approvableJob(client)
	repo := &memJobs{rows: map[uuid.UUID]*models.Job{job.ID: job}}
	escrow := &releaseRecorder{err: errors.New("db down")}
	svc := NewService(repo, escrow, 90, nil)
	ctx := context.Background()

	if _, err := svc.ApproveCompletion(ctx, job.ID, client, models.RoleClient); err == nil {
		t.Fatal("first approval must surface the release failure")
	}

	escrow.err = nil
	got, err := svc.ApproveCompletion(ctx, job.ID, client, models.RoleClient)
	if err != nil {
		t.Fatalf("retried approval: %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Errorf("status: got %s, want COMPLETED", got.Status)
	}
	if len(escrow.calls) != 2 {
		t.Fatalf("release calls: got %d, want 2", len(escrow.calls))
	}

	// The retry must not touch completion timestamps or write a second
	// transition.
	stored, _ := repo.GetByID(ctx, job.ID)
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("stored status: got %s, want COMPLETED", stored.Status)
	}

	// A stranger still cannot drive the retry path.
	if _, err := svc.ApproveCompletion(ctx, job.ID, uuid.New(), models.RoleClient); !errors.Is(err, ErrNotJobClient) {
		t.Errorf("stranger retry: got %v, want ErrNotJobClient", err)
	}
}

func TestTransition(t *testing.T) {
	client := uuid.New()
	job := &models.Job{ID: uuid.New(), ClientID: client, Status: models.JobStatusPaid}
	repo := &memJobs{rows: map[uuid.UUID]*models.Job{job.ID: job}}
	svc := NewService(repo, &releaseRecorder{}, 90, nil)
	ctx := context.Background()

	got, err := svc.Transition(ctx, job.ID, models.JobStatusInProgress, models.RoleProfessional)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != models.JobStatusInProgress {
		t.Errorf("status: got %s, want IN_PROGRESS", got.Status)
	}

	if _, err := svc.Transition(ctx, job.ID, models.JobStatusClosed, models.RoleProfessional); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("illegal transition: got %v, want ErrInvalidTransition", err)
	}
}
