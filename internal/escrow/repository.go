package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consertaja/backend/internal/models"
)

const splitColumns = `id, payment_id, recipient_type, recipient_id, amount, percentage, status, held_until, released_at, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

var _ SplitRepo = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, s *models.PaymentSplit) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payment_splits (id, payment_id, recipient_type, recipient_id, amount, percentage, status, held_until, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, s.ID, s.PaymentID, s.RecipientType, s.RecipientID, s.Amount, s.Percentage, s.Status, s.HeldUntil, s.ReleasedAt).Scan(&s.CreatedAt)
}

func (r *Repository) ExistsForPayment(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM payment_splits WHERE payment_id = $1)
	`, paymentID).Scan(&exists)
	return exists, err
}

func (r *Repository) GetProfessionalForUpdate(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (*models.PaymentSplit, error) {
	return scanSplit(tx.QueryRow(ctx, `
		SELECT `+splitColumns+` FROM payment_splits
		WHERE payment_id = $1 AND recipient_type = $2
		FOR UPDATE
	`, paymentID, models.SplitRecipientProfessional))
}

func (r *Repository) MarkReleased(ctx context.Context, tx pgx.Tx, id uuid.UUID, releasedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE payment_splits SET status = $2, released_at = $3 WHERE id = $1
	`, id, models.SplitStatusReleased, releasedAt)
	return err
}

func (r *Repository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.PaymentSplit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+splitColumns+` FROM payment_splits WHERE payment_id = $1 ORDER BY recipient_type
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentSplit
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanSplit(row pgx.Row) (*models.PaymentSplit, error) {
	var s models.PaymentSplit
	if err := row.Scan(&s.ID, &s.PaymentID, &s.RecipientType, &s.RecipientID, &s.Amount, &s.Percentage, &s.Status, &s.HeldUntil, &s.ReleasedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
