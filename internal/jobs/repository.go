package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consertaja/backend/internal/models"
)

// ErrNotFound is returned when no job exists for the given id.
var ErrNotFound = errors.New("job not found")

const jobColumns = `id, client_id, professional_id, title, description, status, price_final, started_at, completed_at, guarantee_until, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetByIDForUpdate locks the job row. Call within a transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus writes a payment-milestone status transition inside the
// caller's transaction.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// SetCompleted marks the job COMPLETED with its completion and guarantee
// timestamps. Call within a transaction holding the row lock.
func (r *Repository) SetCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, completedAt, guaranteeUntil time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, completed_at = $3, guarantee_until = $4, updated_at = now()
		WHERE id = $1
	`, id, models.JobStatusCompleted, completedAt, guaranteeUntil)
	return err
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ClientID, &j.ProfessionalID, &j.Title, &j.Description, &j.Status, &j.PriceFinal, &j.StartedAt, &j.CompletedAt, &j.GuaranteeUntil, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}
