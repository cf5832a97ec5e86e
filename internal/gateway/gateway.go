// Package gateway defines the adapter contract to the external payment
// provider. The provider settles asynchronously: a created payment returns
// either an immediate terminal status or a pending one that a webhook or a
// status poll resolves later. Webhook authenticity verification is a
// transport-layer concern and not part of this contract.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the provider knows nothing about the
// requested payment or reference.
var ErrNotFound = errors.New("gateway payment not found")

// CreateRequest is the provider-agnostic payment creation request.
type CreateRequest struct {
	Amount       int64 // minor currency units
	Method       string
	Description  string
	PayerEmail   string
	Reference    string // internal payment id, round-trips as the provider's external reference
	Installments int
}

// CreateResult carries the provider's view of a payment.
type CreateResult struct {
	ExternalID string
	Status     string
	QRCode     string // Pix copy-and-paste payload, empty for other methods
	ExpiresAt  *time.Time
}

// Adapter is the contract the payment orchestrator, the webhook reconciler
// and the refund workflow depend on. All calls block on the provider's
// network boundary and honor the caller's context deadline.
type Adapter interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	RefundPayment(ctx context.Context, externalID string, amount *int64) (refundID string, err error)
	GetPaymentStatus(ctx context.Context, externalID string) (string, error)
	// FindPaymentByReference recovers a payment whose creation call failed
	// after the provider accepted it, using the external reference we sent.
	FindPaymentByReference(ctx context.Context, reference string) (*CreateResult, error)
}

// PixPayouts transfers withdrawal money to a professional's Pix key.
type PixPayouts interface {
	Transfer(ctx context.Context, pixKey string, amount int64, reference string) error
}
