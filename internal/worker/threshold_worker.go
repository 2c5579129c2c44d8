package worker

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// Evaluator is the part of services.ThresholdEvaluator the worker needs.
type Evaluator interface {
	Handle(ctx context.Context, check services.ThresholdCheck) error
}

// ThresholdWorker handles threshold check messages delivered over AMQP.
type ThresholdWorker struct {
	evaluator Evaluator
	logger    *log.Logger
}

func NewThresholdWorker(evaluator Evaluator, logger *log.Logger) *ThresholdWorker {
	if logger == nil {
		logger = log.ForComponent(log.ComponentWorker)
	}
	return &ThresholdWorker{evaluator: evaluator, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleCheckMessage runs one delivered check. Only storage outages are
// returned as retryable; anything else is logged and dropped so a poison
// message cannot loop.
func (w *ThresholdWorker) HandleCheckMessage(ctx context.Context, msg *amqp.ThresholdCheckMessage) error {
	if err := msg.Validate(); err != nil {
		w.logger.WarnContext(ctx, "Dropping invalid threshold check message", log.FieldError, err)
		return nil
	}

	w.logger.DebugContext(ctx, "Processing threshold check message",
		log.FieldOwner, msg.Owner,
		log.FieldCategoryID, msg.CategoryID,
		log.FieldDate, msg.Date.String())

	err := w.evaluator.Handle(ctx, msg.Check())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrStorageUnavailable):
		return fmt.Errorf("%w: %w", amqp.ErrRetryable, err)
	default:
		w.logger.ErrorContext(ctx, "Threshold check failed",
			log.FieldOwner, msg.Owner,
			log.FieldCategoryID, msg.CategoryID,
			log.FieldError, err)
		return nil
	}
}
