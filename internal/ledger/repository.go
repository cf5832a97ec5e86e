package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consertaja/backend/internal/models"
)

const balanceColumns = `user_id, available, held, total_earned, total_withdrawn, created_at, updated_at`

type BalanceRepository struct {
	pool *pgxpool.Pool
}

var _ BalanceRepo = (*BalanceRepository)(nil)

func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// UpsertForUpdate inserts the zero row if missing, then locks and returns
// it. Two statements so concurrent first credits serialize on the lock.
func (r *BalanceRepository) UpsertForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Balance, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, err
	}
	return r.GetForUpdate(ctx, tx, userID)
}

func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Balance, error) {
	return scanBalance(tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 FOR UPDATE`, userID))
}

func (r *BalanceRepository) Save(ctx context.Context, tx pgx.Tx, b *models.Balance) error {
	_, err := tx.Exec(ctx, `
		UPDATE balances SET available = $2, held = $3, total_earned = $4, total_withdrawn = $5, updated_at = now()
		WHERE user_id = $1
	`, b.UserID, b.Available, b.Held, b.TotalEarned, b.TotalWithdrawn)
	return err
}

func (r *BalanceRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances WHERE user_id = $1`, userID))
}

func scanBalance(row pgx.Row) (*models.Balance, error) {
	var b models.Balance
	if err := row.Scan(&b.UserID, &b.Available, &b.Held, &b.TotalEarned, &b.TotalWithdrawn, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

type TransactionRepository struct {
	pool *pgxpool.Pool
}

var _ TransactionRepo = (*TransactionRepository)(nil)

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, balance_before, balance_after, payment_id, job_id, withdrawal_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, t.ID, t.UserID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter, t.PaymentID, t.JobID, t.WithdrawalID, t.Description).Scan(&t.CreatedAt)
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, amount, balance_before, balance_after, payment_id, job_id, withdrawal_id, description, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.PaymentID, &t.JobID, &t.WithdrawalID, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
