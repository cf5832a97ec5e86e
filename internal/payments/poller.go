package payments

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "payments.reconcile" }

// Reconciler is implemented by Service.
type Reconciler interface {
	ReconcilePending(ctx context.Context) error
}

// ReconcileWorker runs the periodic stale-payment sweep.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	svc Reconciler
	log *slog.Logger
}

func NewReconcileWorker(svc Reconciler, log *slog.Logger) *ReconcileWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileWorker{svc: svc, log: log}
}

func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileArgs]) error {
	w.log.Info("reconciling stale payments")
	return w.svc.ReconcilePending(ctx)
}
