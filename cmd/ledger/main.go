package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.OpenStore(context.Background(), logger, cfg)
	defer store.Cleanup()

	opts := []services.Option{services.WithLogger(logger)}
	evaluator := services.NewThresholdEvaluator(store.Store, cfg.AlertDedupWindow, opts...)

	queue, stopQueue := thresholdQueue(logger, cfg, evaluator)
	txns := services.NewTransactionService(store.Store, queue, opts...)
	recurring := services.NewRecurringProcessor(store.Store, txns, services.RecurringProcessorConfig{
		Interval:    cfg.RecurringInterval,
		Concurrency: cfg.RecurringConcurrency,
	}, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Transactions: txns,
		Catalog:      services.NewCatalogService(store.Store, opts...),
		Alerts:       services.NewAlertService(store.Store, opts...),
		Recurring:    recurring,
		Reconciler:   services.NewReconciler(store.Store),
		Overview:     services.NewOverviewService(store.Store, opts...),
	}, apphttp.Options{
		RateLimitRPM:   cfg.RateLimitRPM,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger,
	})

	parent, fail := context.WithCancel(context.Background())
	defer fail()

	ctx, done := cli.GracefulShutdown(parent, logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := recurring.Stop(ctx); err != nil {
			logger.Error("Recurring processor shutdown error", log.FieldError, err)
		}
		// Checks queued by in-flight requests are drained after the
		// server stops accepting work.
		stopQueue(ctx)
	})

	if cfg.RecurringEnabled {
		if err := recurring.Start(ctx); err != nil {
			logger.Error("Failed to start recurring processor", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Recurring processor disabled; expecting recurring-worker to run it")
	}

	go func() {
		logger.Info("Starting ledger server",
			"port", cfg.Port,
			"storage", cfg.StorageBackend,
			"threshold_backend", cfg.ThresholdBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			fail()
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// thresholdQueue returns where the engine sends threshold checks after
// commit. The AMQP backend hands them to cmd/threshold-worker; when the
// broker cannot be reached the in-process pool takes over.
func thresholdQueue(logger *log.Logger, cfg *config.Config, evaluator *services.ThresholdEvaluator) (services.ThresholdQueue, func(context.Context)) {
	if cfg.ThresholdBackend == config.ThresholdAMQP {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err == nil {
			logger.Info("Threshold checks published over AMQP",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			return client, func(context.Context) { _ = client.Close() }
		}
		logger.Warn("Failed to initialize AMQP client, evaluating thresholds in process", log.FieldError, err)
	}

	pool := worker.NewPool(evaluator.Handle, worker.PoolConfig{
		Workers:   cfg.EvaluatorWorkers,
		QueueSize: cfg.EvaluatorQueueSize,
	}, logger)
	if err := pool.Start(); err != nil {
		logger.Error("Failed to start evaluator pool", log.FieldError, err)
		os.Exit(1)
	}
	return pool, func(ctx context.Context) {
		if err := pool.Stop(ctx); err != nil {
			logger.Warn("Evaluator pool did not drain", log.FieldError, err)
		}
		processed, failed := pool.Stats()
		logger.Info("Evaluator pool stopped", "processed", processed, "failed", failed)
	}
}

