package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting threshold-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.StorageBackend == config.StorageMemory {
		logger.Error("threshold-worker needs a shared store; memory storage is per process")
		os.Exit(1)
	}

	store := cli.OpenStore(context.Background(), logger, cfg)
	defer store.Cleanup()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	evaluator := services.NewThresholdEvaluator(store.Store, cfg.AlertDedupWindow, services.WithLogger(logger))
	handler := worker.NewThresholdWorker(evaluator, logger)

	parent, fail := context.WithCancel(context.Background())
	defer fail()
	ctx, done := cli.GracefulShutdown(parent, logger, 10*time.Second, nil)

	go func() {
		if err := client.ConsumeThresholdChecks(ctx, handler.HandleCheckMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			fail()
		}
	}()

	logger.Info("Consuming threshold checks", "queue", cfg.AMQPQueue)
	cli.WaitForShutdown(ctx, done)
	logger.Info("threshold-worker stopped")
}
