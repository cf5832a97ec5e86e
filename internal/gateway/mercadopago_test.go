package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
)

type fakePaymentClient struct {
	getErr  error
	getResp *payment.Response
}

func (f *fakePaymentClient) Create(context.Context, payment.Request) (*payment.Response, error) {
	return nil, errors.New("not scripted")
}

func (f *fakePaymentClient) Search(context.Context, payment.SearchRequest) (*payment.SearchResponse, error) {
	return nil, errors.New("not scripted")
}

func (f *fakePaymentClient) Get(context.Context, int) (*payment.Response, error) {
	return f.getResp, f.getErr
}

func (f *fakePaymentClient) Cancel(context.Context, int) (*payment.Response, error) {
	return nil, errors.New("not scripted")
}

func (f *fakePaymentClient) Capture(context.Context, int) (*payment.Response, error) {
	return nil, errors.New("not scripted")
}

func (f *fakePaymentClient) CaptureAmount(context.Context, int, float64) (*payment.Response, error) {
	return nil, errors.New("not scripted")
}

type fakeRefundClient struct {
	fullCalls    []int
	partialCalls []struct {
		PaymentID int
		Amount    float64
	}
}

func (f *fakeRefundClient) Get(context.Context, int, int) (*refund.Response, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeRefundClient) List(context.Context, int) ([]refund.Response, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeRefundClient) Create(_ context.Context, paymentID int) (*refund.Response, error) {
	f.fullCalls = append(f.fullCalls, paymentID)
	return &refund.Response{ID: 900}, nil
}

func (f *fakeRefundClient) CreatePartialRefund(_ context.Context, paymentID int, amount float64) (*refund.Response, error) {
	f.partialCalls = append(f.partialCalls, struct {
		PaymentID int
		Amount    float64
	}{paymentID, amount})
	return &refund.Response{ID: 901}, nil
}

func newTestGateway(pc payment.Client, rc refund.Client) *MercadoPago {
	return &MercadoPago{payments: pc, refunds: rc, log: slog.Default()}
}

func TestRefundPayment_PartialPassesIDAndMajorUnits(t *testing.T) {
	rc := &fakeRefundClient{}
	g := newTestGateway(&fakePaymentClient{}, rc)

	amount := int64(4550)
	id, err := g.RefundPayment(context.Background(), "123", &amount)
	if err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if id != "901" {
		t.Errorf("refund id: got %s, want 901", id)
	}
	if len(rc.partialCalls) != 1 {
		t.Fatalf("partial calls: got %d, want 1", len(rc.partialCalls))
	}
	if rc.partialCalls[0].PaymentID != 123 {
		t.Errorf("payment id: got %d, want 123", rc.partialCalls[0].PaymentID)
	}
	if rc.partialCalls[0].Amount != 45.50 {
		t.Errorf("amount: got %v, want 45.50 BRL", rc.partialCalls[0].Amount)
	}
}

func TestRefundPayment_FullOmitsAmount(t *testing.T) {
	rc := &fakeRefundClient{}
	g := newTestGateway(&fakePaymentClient{}, rc)

	id, err := g.RefundPayment(context.Background(), "123", nil)
	if err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if id != "900" {
		t.Errorf("refund id: got %s, want 900", id)
	}
	if len(rc.fullCalls) != 1 || rc.fullCalls[0] != 123 {
		t.Errorf("full calls: %v", rc.fullCalls)
	}
	if len(rc.partialCalls) != 0 {
		t.Error("full refund must not call the partial endpoint")
	}
}

func TestGetPaymentStatus_MapsAPINotFound(t *testing.T) {
	pc := &fakePaymentClient{getErr: &mperror.ResponseError{
		StatusCode: http.StatusNotFound,
		Message:    "payment not found",
	}}
	g := newTestGateway(pc, &fakeRefundClient{})

	if _, err := g.GetPaymentStatus(context.Background(), "123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 response: got %v, want ErrNotFound", err)
	}

	pc.getErr = &mperror.ResponseError{StatusCode: http.StatusInternalServerError, Message: "upstream down"}
	if _, err := g.GetPaymentStatus(context.Background(), "123"); errors.Is(err, ErrNotFound) {
		t.Error("500 response must not map to ErrNotFound")
	}

	pc.getErr = errors.New("dial tcp: connection refused")
	if _, err := g.GetPaymentStatus(context.Background(), "123"); errors.Is(err, ErrNotFound) {
		t.Error("transport error must not map to ErrNotFound")
	}
}
