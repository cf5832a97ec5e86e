package refunds

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/consertaja/backend/internal/gateway"
	"github.com/consertaja/backend/internal/models"
	"github.com/consertaja/backend/internal/testutil"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type memRefunds struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Refund
}

func newMemRefunds() *memRefunds {
	return &memRefunds{rows: map[uuid.UUID]*models.Refund{}}
}

func (m *memRefunds) Begin(context.Context) (pgx.Tx, error) { return testutil.NoopTx{}, nil }

func (m *memRefunds) CreateTx(_ context.Context, _ pgx.Tx, r *models.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memRefunds) GetByID(_ context.Context, id uuid.UUID) (*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *memRefunds) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Refund, error) {
	return m.GetByID(ctx, id)
}

func (m *memRefunds) SetApproved(_ context.Context, _ pgx.Tx, id uuid.UUID, approvedBy uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	r.Status = models.RefundStatusApproved
	a := approvedBy
	r.ApprovedByID = &a
	return nil
}

func (m *memRefunds) SetProcessed(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, gatewayRefundID *string, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	r.Status = status
	r.GatewayRefundID = gatewayRefundID
	t := processedAt
	r.ProcessedAt = &t
	return nil
}

func (m *memRefunds) SumCompletedTx(_ context.Context, _ pgx.Tx, paymentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, r := range m.rows {
		if r.PaymentID == paymentID && r.Status == models.RefundStatusCompleted {
			sum += r.Amount
		}
	}
	return sum, nil
}

func (m *memRefunds) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Refund
	for _, r := range m.rows {
		if r.PaymentID == paymentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memPayments struct {
	rows map[uuid.UUID]*models.Payment
}

func (m *memPayments) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Payment, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, _ *time.Time) error {
	p, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Status = status
	return nil
}

type memJobs struct {
	rows map[uuid.UUID]*models.Job
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

// refundGateway scripts RefundPayment only.
type refundGateway struct {
	err   error
	calls []struct {
		ExternalID string
		Amount     *int64
	}
}

func (g *refundGateway) CreatePayment(context.Context, gateway.CreateRequest) (*gateway.CreateResult, error) {
	return nil, errors.New("not scripted")
}

func (g *refundGateway) RefundPayment(_ context.Context, externalID string, amount *int64) (string, error) {
	g.calls = append(g.calls, struct {
		ExternalID string
		Amount     *int64
	}{externalID, amount})
	if g.err != nil {
		return "", g.err
	}
	return "rf-1", nil
}

func (g *refundGateway) GetPaymentStatus(context.Context, string) (string, error) {
	return "", gateway.ErrNotFound
}

func (g *refundGateway) FindPaymentByReference(context.Context, string) (*gateway.CreateResult, error) {
	return nil, gateway.ErrNotFound
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type fixture struct {
	svc      *Service
	refunds  *memRefunds
	payments *memPayments
	gw       *refundGateway
	payment  *models.Payment
	clientID uuid.UUID
}

func newFixture(gwErr error) *fixture {
	clientID := uuid.New()
	gwID := "mp-100"
	payment := &models.Payment{
		ID:               uuid.New(),
		JobID:            uuid.New(),
		Amount:           10000,
		Status:           models.PaymentStatusCompleted,
		GatewayPaymentID: &gwID,
	}
	job := &models.Job{ID: payment.JobID, ClientID: clientID, Status: models.JobStatusPaid}

	refunds := newMemRefunds()
	payments := &memPayments{rows: map[uuid.UUID]*models.Payment{payment.ID: payment}}
	jobs := &memJobs{rows: map[uuid.UUID]*models.Job{job.ID: job}}
	gw := &refundGateway{err: gwErr}

	return &fixture{
		svc:      NewService(refunds, payments, jobs, gw, nil, time.Second, nil),
		refunds:  refunds,
		payments: payments,
		gw:       gw,
		payment:  payment,
		clientID: clientID,
	}
}

// ---------------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------------

func TestRequest_ClientStaysPending(t *testing.T) {
	f := newFixture(nil)

	r, err := f.svc.Request(context.Background(), f.payment.ID, 4000, "broken part", f.clientID, models.RoleClient)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if r.Status != models.RefundStatusPending {
		t.Errorf("status: got %s, want PENDING", r.Status)
	}
	if len(f.gw.calls) != 0 {
		t.Error("client request must not hit the gateway before approval")
	}
	if f.payment.Status != models.PaymentStatusCompleted {
		t.Errorf("payment untouched: got %s", f.payment.Status)
	}
}

func TestRequest_AdminProcessesImmediately(t *testing.T) {
	f := newFixture(nil)
	admin := uuid.New()

	r, err := f.svc.Request(context.Background(), f.payment.ID, 4000, "goodwill", admin, models.RoleAdmin)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if r.Status != models.RefundStatusCompleted {
		t.Errorf("status: got %s, want COMPLETED", r.Status)
	}
	if r.GatewayRefundID == nil || *r.GatewayRefundID != "rf-1" {
		t.Error("gateway refund id not stored")
	}
	if len(f.gw.calls) != 1 {
		t.Fatalf("gateway calls: got %d, want 1", len(f.gw.calls))
	}
	// Partial refund passes the amount through.
	if f.gw.calls[0].Amount == nil || *f.gw.calls[0].Amount != 4000 {
		t.Error("partial refund must pass the amount to the gateway")
	}
	if f.payment.Status != models.PaymentStatusPartiallyRefunded {
		t.Errorf("payment: got %s, want PARTIALLY_REFUNDED", f.payment.Status)
	}
}

func TestRequest_FullRefundMarksRefunded(t *testing.T) {
	f := newFixture(nil)
	admin := uuid.New()

	r, err := f.svc.Request(context.Background(), f.payment.ID, 10000, "order cancelled", admin, models.RoleAdmin)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if r.Status != models.RefundStatusCompleted {
		t.Errorf("status: got %s, want COMPLETED", r.Status)
	}
	// Full refunds omit the amount so the provider refunds everything.
	if f.gw.calls[0].Amount != nil {
		t.Error("full refund must not pass an amount")
	}
	if f.payment.Status != models.PaymentStatusRefunded {
		t.Errorf("payment: got %s, want REFUNDED", f.payment.Status)
	}
}

func TestRequest_Guards(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.svc.Request(ctx, uuid.New(), 1000, "x", f.clientID, models.RoleClient); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("unknown payment: got %v, want ErrPaymentNotFound", err)
	}
	if _, err := f.svc.Request(ctx, f.payment.ID, 1000, "x", uuid.New(), models.RoleClient); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: got %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Request(ctx, f.payment.ID, 10001, "x", f.clientID, models.RoleClient); !errors.Is(err, ErrExceedsPayment) {
		t.Errorf("over amount: got %v, want ErrExceedsPayment", err)
	}

	f.payment.Status = models.PaymentStatusPending
	if _, err := f.svc.Request(ctx, f.payment.ID, 1000, "x", f.clientID, models.RoleClient); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("pending payment: got %v, want ErrNotRefundable", err)
	}
}

// The admission check runs against completed refunds, so a second refund
// may only claim what remains.
func TestRequest_RemainingAmountOnly(t *testing.T) {
	f := newFixture(nil)
	admin := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.Request(ctx, f.payment.ID, 7000, "first", admin, models.RoleAdmin); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := f.svc.Request(ctx, f.payment.ID, 4000, "second", admin, models.RoleAdmin); !errors.Is(err, ErrExceedsPayment) {
		t.Errorf("over remaining: got %v, want ErrExceedsPayment", err)
	}
	r, err := f.svc.Request(ctx, f.payment.ID, 3000, "second", admin, models.RoleAdmin)
	if err != nil {
		t.Fatalf("remaining refund: %v", err)
	}
	if r.Status != models.RefundStatusCompleted {
		t.Errorf("status: got %s, want COMPLETED", r.Status)
	}
	if f.payment.Status != models.PaymentStatusRefunded {
		t.Errorf("payment after exhausting refunds: got %s, want REFUNDED", f.payment.Status)
	}
}

// ---------------------------------------------------------------------------
// Approve
// ---------------------------------------------------------------------------

func TestApprove_ProcessesClientRefund(t *testing.T) {
	f := newFixture(nil)
	admin := uuid.New()
	ctx := context.Background()

	r, err := f.svc.Request(ctx, f.payment.ID, 4000, "broken part", f.clientID, models.RoleClient)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	approved, err := f.svc.Approve(ctx, r.ID, admin)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != models.RefundStatusCompleted {
		t.Errorf("status: got %s, want COMPLETED", approved.Status)
	}
	if approved.ApprovedByID == nil || *approved.ApprovedByID != admin {
		t.Error("approver not recorded")
	}
	if f.payment.Status != models.PaymentStatusPartiallyRefunded {
		t.Errorf("payment: got %s, want PARTIALLY_REFUNDED", f.payment.Status)
	}

	if _, err := f.svc.Approve(ctx, r.ID, admin); !errors.Is(err, ErrNotPending) {
		t.Errorf("second approval: got %v, want ErrNotPending", err)
	}
}

// Two pending refunds can each fit the payment at admission time; once the
// first completes, approving the second must re-check the completed total
// and reject it instead of overdrawing the payment.
func TestApprove_RejectsWhenRefundNoLongerFits(t *testing.T) {
	f := newFixture(nil)
	admin := uuid.New()
	ctx := context.Background()

	first, err := f.svc.Request(ctx, f.payment.ID, 7000, "broken part", f.clientID, models.RoleClient)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := f.svc.Request(ctx, f.payment.ID, 7000, "late arrival", f.clientID, models.RoleClient)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if _, err := f.svc.Approve(ctx, first.ID, admin); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if _, err := f.svc.Approve(ctx, second.ID, admin); !errors.Is(err, ErrExceedsPayment) {
		t.Fatalf("approve second: got %v, want ErrExceedsPayment", err)
	}

	stored, err := f.svc.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.RefundStatusRejected {
		t.Errorf("second refund: got %s, want REJECTED", stored.Status)
	}
	if len(f.gw.calls) != 1 {
		t.Fatalf("gateway calls: got %d, want 1", len(f.gw.calls))
	}
	total, _ := f.refunds.SumCompletedTx(ctx, nil, f.payment.ID)
	if total > f.payment.Amount {
		t.Errorf("completed refunds %d exceed payment amount %d", total, f.payment.Amount)
	}
	if f.payment.Status != models.PaymentStatusPartiallyRefunded {
		t.Errorf("payment: got %s, want PARTIALLY_REFUNDED", f.payment.Status)
	}
}

func TestApprove_GatewayFailureRejects(t *testing.T) {
	f := newFixture(errors.New("provider timeout"))
	admin := uuid.New()
	ctx := context.Background()

	r, err := f.svc.Request(ctx, f.payment.ID, 4000, "broken part", f.clientID, models.RoleClient)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	processed, err := f.svc.Approve(ctx, r.ID, admin)
	if err != nil {
		t.Fatalf("Approve: gateway failure is terminal, not an error: %v", err)
	}
	if processed.Status != models.RefundStatusRejected {
		t.Errorf("status: got %s, want REJECTED", processed.Status)
	}
	if f.payment.Status != models.PaymentStatusCompleted {
		t.Errorf("payment must stay COMPLETED, got %s", f.payment.Status)
	}
}
