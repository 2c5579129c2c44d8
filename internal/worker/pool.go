package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ledger/internal/log"
	"ledger/internal/services"
)

var (
	ErrQueueFull   = errors.New("threshold queue is full")
	ErrPoolStopped = errors.New("threshold pool is stopped")
)

// Handler processes one threshold check.
type Handler func(ctx context.Context, check services.ThresholdCheck) error

// PoolConfig holds configuration for the in-process evaluator pool
type PoolConfig struct {
	// Workers is the number of goroutines draining the queue (default: 2)
	Workers int

	// QueueSize is the buffer capacity; Enqueue fails fast when full (default: 256)
	QueueSize int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:   2,
		QueueSize: 256,
	}
}

type job struct {
	ctx   context.Context
	check services.ThresholdCheck
}

// Pool is an in-process services.ThresholdQueue. Checks are buffered and
// handled by a fixed set of workers; Enqueue never blocks the caller.
type Pool struct {
	handler Handler
	config  PoolConfig
	logger  *log.Logger
	jobs    chan job

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

func NewPool(handler Handler, config PoolConfig, logger *log.Logger) *Pool {
	def := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = log.ForComponent(log.ComponentWorker)
	}
	return &Pool{
		handler: handler,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		jobs:    make(chan job, config.QueueSize),
	}
}

// Enqueue implements services.ThresholdQueue.
func (p *Pool) Enqueue(ctx context.Context, check services.ThresholdCheck) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job{ctx: ctx, check: check}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. Checks enqueued before Start are kept.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return fmt.Errorf("threshold pool is already running")
	}
	p.started = true

	for i := range p.config.Workers {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info("Threshold pool started",
		"workers", p.config.Workers,
		"queue_size", p.config.QueueSize)
	return nil
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		if err := p.handle(j); err != nil {
			p.failed.Add(1)
			p.logger.ErrorContext(j.ctx, "Threshold check failed",
				"worker", id,
				log.FieldOwner, j.check.Owner,
				log.FieldCategoryID, j.check.CategoryID,
				log.FieldError, err)
			continue
		}
		p.processed.Add(1)
	}
}

func (p *Pool) handle(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(j.ctx, j.check)
}

// Stop rejects new checks, drains the buffered ones and waits for the
// workers until ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Threshold pool stopped",
			"processed", p.processed.Load(),
			"failed", p.failed.Load())
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Threshold pool stop timed out", "pending", len(p.jobs))
		return ctx.Err()
	}
}

// Stats returns how many checks were handled and how many failed.
func (p *Pool) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}
