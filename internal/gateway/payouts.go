package gateway

import (
	"context"
	"log/slog"
)

// ManualPayouts is the PixPayouts implementation used until an automated
// payout provider is integrated: it records the transfer for the finance
// desk and reports success. Withdrawal approval already passed the admin
// check, so the money side stays consistent either way.
type ManualPayouts struct {
	log *slog.Logger
}

var _ PixPayouts = (*ManualPayouts)(nil)

func NewManualPayouts(log *slog.Logger) *ManualPayouts {
	if log == nil {
		log = slog.Default()
	}
	return &ManualPayouts{log: log}
}

func (p *ManualPayouts) Transfer(ctx context.Context, pixKey string, amount int64, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.log.Info("pix payout queued for manual transfer",
		"pix_key", maskPixKey(pixKey), "amount", amount, "reference", reference)
	return nil
}

// maskPixKey hides the middle of the key in logs.
func maskPixKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}
