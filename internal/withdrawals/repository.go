package withdrawals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consertaja/backend/internal/models"
)

const withdrawalColumns = `id, professional_id, amount, pix_key, status, approved_by_id, rejection_reason, processed_at, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

var _ Repo = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
	return tx.QueryRow(ctx, `
		INSERT INTO withdrawals (id, professional_id, amount, pix_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, w.ID, w.ProfessionalID, w.Amount, w.PixKey, w.Status).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	return scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) SetDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, approvedBy uuid.UUID, reason *string) error {
	_, err := tx.Exec(ctx, `
		UPDATE withdrawals SET status = $2, approved_by_id = $3, rejection_reason = $4, updated_at = now()
		WHERE id = $1
	`, id, status, approvedBy, reason)
	return err
}

func (r *Repository) SetProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, processedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE withdrawals SET status = $2, processed_at = $3, updated_at = now()
		WHERE id = $1
	`, id, status, processedAt)
	return err
}

func (r *Repository) ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit int) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE professional_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, professionalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := row.Scan(&w.ID, &w.ProfessionalID, &w.Amount, &w.PixKey, &w.Status, &w.ApprovedByID, &w.RejectionReason, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
