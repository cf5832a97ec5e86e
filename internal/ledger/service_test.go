package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for BalanceRepo and TransactionRepo. These let us test the
// real ledger arithmetic without a database.
// ---------------------------------------------------------------------------

type memBalances struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Balance
}

func newMemBalances() *memBalances {
	return &memBalances{rows: make(map[uuid.UUID]*models.Balance)}
}

func (m *memBalances) UpsertForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[userID]; !ok {
		m.rows[userID] = &models.Balance{UserID: userID}
	}
	cp := *m.rows[userID]
	return &cp, nil
}

func (m *memBalances) GetForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *memBalances) Save(_ context.Context, _ pgx.Tx, b *models.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.rows[b.UserID] = &cp
	return nil
}

func (m *memBalances) Get(_ context.Context, userID uuid.UUID) (*models.Balance, error) {
	return m.GetForUpdate(context.Background(), nil, userID)
}

func (m *memBalances) row(userID uuid.UUID) models.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[userID]
	if !ok {
		return models.Balance{UserID: userID}
	}
	return *b
}

type memTxns struct {
	mu   sync.Mutex
	rows []*models.Transaction
}

func (m *memTxns) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memTxns) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].UserID == userID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *memTxns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// requireInvariant checks available + held == totalEarned - totalWithdrawn.
func requireInvariant(t *testing.T, b models.Balance) {
	t.Helper()
	if b.Available+b.Held != b.TotalEarned-b.TotalWithdrawn {
		t.Fatalf("balance invariant violated: available=%d held=%d earned=%d withdrawn=%d",
			b.Available, b.Held, b.TotalEarned, b.TotalWithdrawn)
	}
}

// ---------------------------------------------------------------------------
// Credit
// ---------------------------------------------------------------------------

func TestCredit_CreatesBalanceLazily(t *testing.T) {
	balances := newMemBalances()
	txns := &memTxns{}
	svc := NewService(balances, txns, nil)

	user := uuid.New()
	paymentID := uuid.New()
	ctx := context.Background()

	err := svc.Credit(ctx, nil, user, 8000, models.TransactionSplitProfessional, "escrow release", Refs{PaymentID: &paymentID})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}

	b := balances.row(user)
	if b.Available != 8000 || b.TotalEarned != 8000 || b.Held != 0 {
		t.Errorf("balance after credit: %+v", b)
	}
	requireInvariant(t, b)

	if txns.count() != 1 {
		t.Fatalf("transaction rows: got %d, want 1", txns.count())
	}
	row := txns.rows[0]
	if row.Amount != 8000 || row.BalanceBefore != 0 || row.BalanceAfter != 8000 {
		t.Errorf("transaction row: %+v", row)
	}
	if row.PaymentID == nil || *row.PaymentID != paymentID {
		t.Error("transaction should reference the payment")
	}
}

func TestCredit_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newMemBalances(), &memTxns{}, nil)
	if err := svc.Credit(context.Background(), nil, uuid.New(), 0, models.TransactionSplitProfessional, "", Refs{}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

// ---------------------------------------------------------------------------
// Hold / ReleaseHold
// ---------------------------------------------------------------------------

func TestHold_MovesAvailableToHeld(t *testing.T) {
	balances := newMemBalances()
	txns := &memTxns{}
	svc := NewService(balances, txns, nil)
	user := uuid.New()
	ctx := context.Background()

	if err := svc.Credit(ctx, nil, user, 8000, models.TransactionSplitProfessional, "", Refs{}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := svc.Hold(ctx, nil, user, 5000); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	b := balances.row(user)
	if b.Available != 3000 || b.Held != 5000 {
		t.Errorf("after hold: available=%d held=%d, want 3000/5000", b.Available, b.Held)
	}
	requireInvariant(t, b)

	// A reservation is not a ledger event.
	if txns.count() != 1 {
		t.Errorf("transaction rows after hold: got %d, want 1", txns.count())
	}

	if err := svc.ReleaseHold(ctx, nil, user, 5000); err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	b = balances.row(user)
	if b.Available != 8000 || b.Held != 0 {
		t.Errorf("after release: available=%d held=%d, want 8000/0", b.Available, b.Held)
	}
	requireInvariant(t, b)
	if txns.count() != 1 {
		t.Errorf("transaction rows after release: got %d, want 1", txns.count())
	}
}

func TestHold_InsufficientBalance(t *testing.T) {
	balances := newMemBalances()
	svc := NewService(balances, &memTxns{}, nil)
	user := uuid.New()
	ctx := context.Background()

	// No balance row at all.
	if err := svc.Hold(ctx, nil, user, 100); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if err := svc.Credit(ctx, nil, user, 500, models.TransactionSplitProfessional, "", Refs{}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := svc.Hold(ctx, nil, user, 600); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	b := balances.row(user)
	if b.Available != 500 || b.Held != 0 {
		t.Errorf("failed hold must not mutate balance: %+v", b)
	}
}

// ---------------------------------------------------------------------------
// DebitWithdrawal
// ---------------------------------------------------------------------------

func TestDebitWithdrawal(t *testing.T) {
	balances := newMemBalances()
	txns := &memTxns{}
	svc := NewService(balances, txns, nil)
	user := uuid.New()
	withdrawal := uuid.New()
	ctx := context.Background()

	if err := svc.Credit(ctx, nil, user, 8000, models.TransactionSplitProfessional, "", Refs{}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := svc.Hold(ctx, nil, user, 5000); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if err := svc.DebitWithdrawal(ctx, nil, user, 5000, withdrawal); err != nil {
		t.Fatalf("DebitWithdrawal: %v", err)
	}

	b := balances.row(user)
	if b.Available != 3000 || b.Held != 0 || b.TotalWithdrawn != 5000 || b.TotalEarned != 8000 {
		t.Errorf("after debit: %+v", b)
	}
	requireInvariant(t, b)

	if txns.count() != 2 {
		t.Fatalf("transaction rows: got %d, want 2", txns.count())
	}
	row := txns.rows[1]
	if row.Amount != -5000 {
		t.Errorf("withdrawal transaction amount: got %d, want -5000", row.Amount)
	}
	if row.Type != models.TransactionWithdrawal {
		t.Errorf("withdrawal transaction type: got %s", row.Type)
	}
	if row.WithdrawalID == nil || *row.WithdrawalID != withdrawal {
		t.Error("transaction should reference the withdrawal")
	}
}

func TestDebitWithdrawal_MoreThanHeld(t *testing.T) {
	balances := newMemBalances()
	svc := NewService(balances, &memTxns{}, nil)
	user := uuid.New()
	ctx := context.Background()

	if err := svc.Credit(ctx, nil, user, 1000, models.TransactionSplitProfessional, "", Refs{}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := svc.DebitWithdrawal(ctx, nil, user, 1000, uuid.New()); !errors.Is(err, ErrInsufficientHeld) {
		t.Fatalf("expected ErrInsufficientHeld, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Balance reads
// ---------------------------------------------------------------------------

func TestBalance_ZeroValueWhenAbsent(t *testing.T) {
	svc := NewService(newMemBalances(), &memTxns{}, nil)
	user := uuid.New()

	b, err := svc.Balance(context.Background(), user)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if b.UserID != user || b.Available != 0 || b.Held != 0 || b.TotalEarned != 0 || b.TotalWithdrawn != 0 {
		t.Errorf("zero-state balance: %+v", b)
	}
}
