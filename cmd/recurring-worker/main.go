package main

import (
	"context"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.StorageBackend == config.StorageMemory {
		logger.Error("recurring-worker needs a shared store; memory storage is per process")
		os.Exit(1)
	}

	store := cli.OpenStore(context.Background(), logger, cfg)
	defer store.Cleanup()

	// Postings made here still need threshold checks. With AMQP they go
	// to the threshold-worker; otherwise they are evaluated inline.
	opts := []services.Option{services.WithLogger(logger)}
	var queue services.ThresholdQueue
	if cfg.ThresholdBackend == config.ThresholdAMQP {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, evaluating thresholds inline", log.FieldError, err)
		} else {
			defer client.Close()
			queue = client
		}
	}
	if queue == nil {
		evaluator := services.NewThresholdEvaluator(store.Store, cfg.AlertDedupWindow, opts...)
		queue = services.ThresholdQueueFunc(evaluator.Handle)
	}

	txns := services.NewTransactionService(store.Store, queue, opts...)
	processor := services.NewRecurringProcessor(store.Store, txns, services.RecurringProcessorConfig{
		Interval:    cfg.RecurringInterval,
		Concurrency: cfg.RecurringConcurrency,
	}, opts...)

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"concurrency", cfg.RecurringConcurrency,
		"storage", cfg.StorageBackend)

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Recurring processor shutdown error", log.FieldError, err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start recurring processor", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("recurring-worker stopped")
}
