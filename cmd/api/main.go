package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/consertaja/backend/internal/config"
	"github.com/consertaja/backend/internal/database"
	"github.com/consertaja/backend/internal/escrow"
	"github.com/consertaja/backend/internal/gateway"
	"github.com/consertaja/backend/internal/jobs"
	"github.com/consertaja/backend/internal/ledger"
	"github.com/consertaja/backend/internal/middleware"
	"github.com/consertaja/backend/internal/notifications"
	"github.com/consertaja/backend/internal/payments"
	"github.com/consertaja/backend/internal/refunds"
	"github.com/consertaja/backend/internal/router"
	"github.com/consertaja/backend/internal/withdrawals"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(pool); err != nil {
		slog.Error("Schema migrations failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first (e.g. make dev-up)", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Payment gateway
	gw, err := gateway.NewMercadoPago(cfg.MercadoPagoAccessToken, logger)
	if err != nil {
		slog.Error("Failed to initialize payment gateway (is MERCADOPAGO_ACCESS_TOKEN set?)", "error", err)
		os.Exit(1)
	}
	payouts := gateway.NewManualPayouts(logger)

	// Notifications: insert func is set after the River client is created
	// (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn notifications.InsertTxFunc
	enqueuer := notifications.NewEnqueuer(func(ctx context.Context, tx pgx.Tx, args notifications.DispatchArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	})

	// Ledger
	balanceRepo := ledger.NewBalanceRepository(pool)
	txnRepo := ledger.NewTransactionRepository(pool)
	ledgerSvc := ledger.NewService(balanceRepo, txnRepo, logger)

	// Escrow
	paymentsRepo := payments.NewRepository(pool)
	splitRepo := escrow.NewRepository(pool)
	escrowSvc := escrow.NewService(pool, splitRepo, paymentsRepo, ledgerSvc, enqueuer, cfg.Escrow, logger)

	// Jobs
	jobsRepo := jobs.NewRepository(pool)
	jobsSvc := jobs.NewService(jobsRepo, escrowSvc, cfg.GuaranteeDays, logger)

	// Payments
	paymentsSvc := payments.NewService(paymentsRepo, jobsRepo, gw, escrowSvc, enqueuer, cfg.GatewayTimeout, cfg.ReconcileStaleAfter, logger)

	// Withdrawals & refunds
	withdrawalsRepo := withdrawals.NewRepository(pool)
	withdrawalsSvc := withdrawals.NewService(withdrawalsRepo, ledgerSvc, payouts, enqueuer, cfg.Withdrawals, logger)

	refundsRepo := refunds.NewRepository(pool)
	refundsSvc := refunds.NewService(refundsRepo, paymentsRepo, jobsRepo, gw, enqueuer, cfg.GatewayTimeout, logger)

	// Notification transport: Kafka when brokers are configured, logs
	// otherwise (local development).
	var publisher notifications.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = notifications.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		slog.Warn("KAFKA_BROKERS not set, notifications go to the log")
		publisher = notifications.NewLogPublisher(logger)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, notifications.NewDispatchWorker(publisher, logger))
	river.AddWorker(workers, payments.NewReconcileWorker(paymentsSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.ReconcileInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return payments.ReconcileArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notifications.DispatchArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	auth := middleware.ActorAuth([]byte(cfg.JWTSecret))
	apiHandler := router.New(router.Handlers{
		Jobs:        &jobs.Handler{Svc: jobsSvc, Logger: logger},
		Payments:    &payments.Handler{Svc: paymentsSvc, Logger: logger},
		Withdrawals: &withdrawals.Handler{Svc: withdrawalsSvc, Logger: logger},
		Refunds:     &refunds.Handler{Svc: refundsSvc, Logger: logger},
		Ledger:      &ledger.Handler{Svc: ledgerSvc, Logger: logger},
	}, auth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://app.consertaja.com.br"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiHandler)

	// Start River client (reconciliation poller + notification dispatch)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
