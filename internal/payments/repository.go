package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consertaja/backend/internal/models"
)

const paymentColumns = `id, job_id, amount, method, status, gateway_payment_id, installments, qr_code, expires_at, paid_at, created_at, updated_at`

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

// CreateTx inserts the payment row. The unique index on job_id enforces
// one-payment-per-job at write time; a violation surfaces as
// ErrPaymentExists.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (id, job_id, amount, method, status, gateway_payment_id, installments, qr_code, expires_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, p.ID, p.JobID, p.Amount, p.Method, p.Status, p.GatewayPaymentID, p.Installments, p.QRCode, p.ExpiresAt, p.PaidAt).Scan(&p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrPaymentExists
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *Repository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE job_id = $1`, jobID))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// GetByGatewayIDForUpdate locks the payment row for the webhook
// check-then-act sequence.
func (r *Repository) GetByGatewayIDForUpdate(ctx context.Context, tx pgx.Tx, gatewayID string) (*models.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_payment_id = $1 FOR UPDATE`, gatewayID))
}

func (r *Repository) SetGatewayResult(ctx context.Context, tx pgx.Tx, id uuid.UUID, gatewayID string, qrCode *string, expiresAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments SET gateway_payment_id = $2, qr_code = $3, expires_at = $4, updated_at = now()
		WHERE id = $1
	`, id, gatewayID, qrCode, expiresAt)
	return err
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, paidAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = now()
		WHERE id = $1
	`, id, status, paidAt)
	return err
}

// ListStalePending returns non-terminal payments that have not moved since
// olderThan, for the reconciliation poller.
func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC LIMIT $4
	`, models.PaymentStatusPending, models.PaymentStatusProcessing, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(&p.ID, &p.JobID, &p.Amount, &p.Method, &p.Status, &p.GatewayPaymentID, &p.Installments, &p.QRCode, &p.ExpiresAt, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
