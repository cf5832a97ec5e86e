// Package notifications delivers fire-and-forget events (payment settled,
// escrow released, withdrawal/refund decided). Events are enqueued as River
// jobs inside the same transaction as the ledger mutation that produced
// them, so delivery failures retry independently and never roll the
// mutation back.
package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

type Event struct {
	Kind       string            `json:"kind"`
	UserID     uuid.UUID         `json:"user_id"`
	Payload    map[string]string `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type DispatchArgs struct {
	Event Event `json:"event"`
}

func (DispatchArgs) Kind() string { return "notification.dispatch" }

// InsertTxFunc enqueues a dispatch job within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args DispatchArgs) error

// Enqueuer is what services hold; it satisfies the Notifier interfaces of
// the escrow, payments, withdrawals and refunds packages.
type Enqueuer struct {
	insert InsertTxFunc
}

func NewEnqueuer(insert InsertTxFunc) *Enqueuer {
	return &Enqueuer{insert: insert}
}

func (e *Enqueuer) EnqueueTx(ctx context.Context, tx pgx.Tx, kind string, userID uuid.UUID, payload map[string]string) error {
	return e.insert(ctx, tx, DispatchArgs{Event: Event{
		Kind:       kind,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}})
}

// Publisher is the delivery transport.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// DispatchWorker publishes queued events. Errors bubble up so River
// retries with backoff.
type DispatchWorker struct {
	river.WorkerDefaults[DispatchArgs]
	publisher Publisher
	log       *slog.Logger
}

func NewDispatchWorker(publisher Publisher, log *slog.Logger) *DispatchWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchWorker{publisher: publisher, log: log}
}

func (w *DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchArgs]) error {
	ev := job.Args.Event
	if err := w.publisher.Publish(ctx, ev); err != nil {
		w.log.Warn("notification publish failed, will retry", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		return err
	}
	return nil
}
