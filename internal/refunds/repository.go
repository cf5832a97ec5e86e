package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consertaja/backend/internal/models"
)

const refundColumns = `id, payment_id, amount, reason, requested_by_id, status, approved_by_id, gateway_refund_id, processed_at, created_at`

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

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, f *models.Refund) error {
	return tx.QueryRow(ctx, `
		INSERT INTO refunds (id, payment_id, amount, reason, requested_by_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, f.ID, f.PaymentID, f.Amount, f.Reason, f.RequestedByID, f.Status).Scan(&f.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	return scanRefund(r.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Refund, error) {
	return scanRefund(tx.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) SetApproved(ctx context.Context, tx pgx.Tx, id uuid.UUID, approvedBy uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE refunds SET status = $2, approved_by_id = $3 WHERE id = $1
	`, id, models.RefundStatusApproved, approvedBy)
	return err
}

func (r *Repository) SetProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, gatewayRefundID *string, processedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE refunds SET status = $2, gateway_refund_id = $3, processed_at = $4 WHERE id = $1
	`, id, status, gatewayRefundID, processedAt)
	return err
}

func (r *Repository) SumCompletedTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (int64, error) {
	var sum int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = $1 AND status = $2
	`, paymentID, models.RefundStatusCompleted).Scan(&sum)
	return sum, err
}

func (r *Repository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.Refund, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Refund
	for rows.Next() {
		f, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func scanRefund(row pgx.Row) (*models.Refund, error) {
	var f models.Refund
	if err := row.Scan(&f.ID, &f.PaymentID, &f.Amount, &f.Reason, &f.RequestedByID, &f.Status, &f.ApprovedByID, &f.GatewayRefundID, &f.ProcessedAt, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
