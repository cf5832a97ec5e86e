package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"

	"github.com/consertaja/backend/internal/models"
)

// ErrMissingAccessToken is returned when MERCADOPAGO_ACCESS_TOKEN is unset.
var ErrMissingAccessToken = errors.New("missing MercadoPago access token")

// methodIDs maps internal payment methods to MercadoPago method ids.
var methodIDs = map[string]string{
	models.PaymentMethodPix:        "pix",
	models.PaymentMethodCreditCard: "credit_card",
	models.PaymentMethodDebitCard:  "debit_card",
	models.PaymentMethodBoleto:     "bolbradesco",
}

// MercadoPago implements Adapter on the official MercadoPago SDK.
type MercadoPago struct {
	payments payment.Client
	refunds  refund.Client
	log      *slog.Logger
}

var _ Adapter = (*MercadoPago)(nil)

func NewMercadoPago(accessToken string, log *slog.Logger) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if log == nil {
		log = slog.Default()
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &MercadoPago{
		payments: payment.NewClient(cfg),
		refunds:  refund.NewClient(cfg),
		log:      log,
	}, nil
}

func (g *MercadoPago) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	methodID, ok := methodIDs[req.Method]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", req.Method)
	}

	mpReq := payment.Request{
		TransactionAmount: toMajorUnits(req.Amount),
		PaymentMethodID:   methodID,
		Description:       req.Description,
		ExternalReference: req.Reference,
		Installments:      req.Installments,
		Payer:             &payment.PayerRequest{Email: req.PayerEmail},
	}

	resp, err := g.payments.Create(ctx, mpReq)
	if err != nil {
		return nil, fmt.Errorf("mercadopago create: %w", err)
	}
	g.log.Info("gateway payment created",
		"external_id", resp.ID, "status", resp.Status, "reference", req.Reference)
	return resultFromResponse(resp), nil
}

func (g *MercadoPago) RefundPayment(ctx context.Context, externalID string, amount *int64) (string, error) {
	id, err := strconv.Atoi(externalID)
	if err != nil {
		return "", fmt.Errorf("invalid gateway payment id %q: %w", externalID, err)
	}

	var resp *refund.Response
	if amount == nil {
		resp, err = g.refunds.Create(ctx, id)
	} else {
		resp, err = g.refunds.CreatePartialRefund(ctx, id, toMajorUnits(*amount))
	}
	if err != nil {
		return "", fmt.Errorf("mercadopago refund: %w", err)
	}
	g.log.Info("gateway refund created", "external_id", externalID, "refund_id", resp.ID)
	return strconv.Itoa(resp.ID), nil
}

func (g *MercadoPago) GetPaymentStatus(ctx context.Context, externalID string) (string, error) {
	id, err := strconv.Atoi(externalID)
	if err != nil {
		return "", fmt.Errorf("invalid gateway payment id %q: %w", externalID, err)
	}
	resp, err := g.payments.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("mercadopago get: %w", err)
	}
	return resp.Status, nil
}

func (g *MercadoPago) FindPaymentByReference(ctx context.Context, reference string) (*CreateResult, error) {
	resp, err := g.payments.Search(ctx, payment.SearchRequest{
		Filters: map[string]string{"external_reference": reference},
	})
	if err != nil {
		return nil, fmt.Errorf("mercadopago search: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFound
	}
	return resultFromResponse(&resp.Results[0]), nil
}

func resultFromResponse(resp *payment.Response) *CreateResult {
	res := &CreateResult{
		ExternalID: strconv.Itoa(resp.ID),
		Status:     resp.Status,
		QRCode:     resp.PointOfInteraction.TransactionData.QRCode,
	}
	if !resp.DateOfExpiration.IsZero() {
		exp := resp.DateOfExpiration.UTC()
		res.ExpiresAt = &exp
	}
	return res
}

// toMajorUnits converts integer centavos to the BRL float the SDK expects.
func toMajorUnits(amount int64) float64 {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).InexactFloat64()
}

func isNotFound(err error) bool {
	var respErr *mperror.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
