package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

type RecurringStatus string

const (
	RecurringSuccess RecurringStatus = "success"
	RecurringSkipped RecurringStatus = "skipped"
	RecurringError   RecurringStatus = "error"
)

// RecurringResult is the outcome of one definition in a pass.
type RecurringResult struct {
	ID            string          `json:"id"`
	Status        RecurringStatus `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	Err           error           `json:"-"`
	Error         string          `json:"error,omitempty"`
}

// RecurringProcessorConfig holds configuration for the recurring processor
type RecurringProcessorConfig struct {
	// Interval is how often the loop runs a pass (default: 1h)
	Interval time.Duration

	// Concurrency bounds how many accounts are processed at once (default: 4)
	Concurrency int
}

// DefaultRecurringProcessorConfig returns sensible defaults
func DefaultRecurringProcessorConfig() RecurringProcessorConfig {
	return RecurringProcessorConfig{
		Interval:    time.Hour,
		Concurrency: 4,
	}
}

// RecurringProcessor posts due recurring definitions through the
// transaction engine. Definitions on different accounts run concurrently;
// those on the same account run in order.
type RecurringProcessor struct {
	store  ledger.Reader
	txns   *TransactionService
	config RecurringProcessorConfig
	runtime

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecurringProcessor creates a new recurring processor
func NewRecurringProcessor(store ledger.Reader, txns *TransactionService, config RecurringProcessorConfig, opts ...Option) *RecurringProcessor {
	def := DefaultRecurringProcessorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	return &RecurringProcessor{
		store:   store,
		txns:    txns,
		config:  config,
		runtime: newRuntime(log.ComponentRecurring, opts),
	}
}

// ProcessDue runs one pass for the calendar day of now. The returned error
// is set only when the due list itself cannot be read; per-definition
// failures are reported in the results.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) ([]RecurringResult, error) {
	if p.store == nil || p.txns == nil {
		return nil, fmt.Errorf("processor not properly initialized")
	}

	today := core.DateOf(now)
	due, err := p.store.ListDueRecurring(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list due recurring: %w", err)
	}

	p.logger.InfoContext(ctx, "Processing recurring transactions",
		"due", len(due),
		"processing_date", today.String())

	// Group by account, keeping the due order inside each group.
	var (
		order  []string
		groups = map[string][]int{}
	)
	for i, r := range due {
		if _, seen := groups[r.AccountID]; !seen {
			order = append(order, r.AccountID)
		}
		groups[r.AccountID] = append(groups[r.AccountID], i)
	}

	results := make([]RecurringResult, len(due))
	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)
	for _, accountID := range order {
		idxs := groups[accountID]
		g.Go(func() error {
			for _, i := range idxs {
				results[i] = p.processOne(ctx, due[i], today)
			}
			return nil
		})
	}
	_ = g.Wait()

	var posted, failed int
	for _, r := range results {
		switch r.Status {
		case RecurringSuccess:
			posted++
		case RecurringError:
			failed++
		}
	}
	p.logger.InfoContext(ctx, "Recurring processing complete",
		"posted", posted,
		"failed", failed,
		"total_checked", len(due))

	return results, nil
}

func (p *RecurringProcessor) processOne(ctx context.Context, def core.RecurringDefinition, today core.Date) RecurringResult {
	res := RecurringResult{ID: def.ID}
	if err := ctx.Err(); err != nil {
		res.Status, res.Err, res.Error = RecurringError, err, err.Error()
		return res
	}

	t, posted, err := p.txns.PostRecurring(ctx, def, today)
	switch {
	case err != nil:
		res.Status, res.Err, res.Error = RecurringError, err, err.Error()
		p.logger.ErrorContext(ctx, "Failed to post recurring transaction",
			log.FieldRecurringID, def.ID,
			log.FieldAccountID, def.AccountID,
			log.FieldError, err)
	case !posted:
		res.Status = RecurringSkipped
	default:
		res.Status = RecurringSuccess
		res.TransactionID = t.ID
	}
	return res
}

// Start begins the processing loop. Returns an error if already running.
func (p *RecurringProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("recurring processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Recurring processor started", "interval", p.config.Interval)
	return nil
}

// Stop gracefully stops the processor and waits for the current pass.
// Calling it again after a timed out Stop keeps waiting for that pass.
func (p *RecurringProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Recurring processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Recurring processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *RecurringProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecurringProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Process immediately on startup
	p.pass(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *RecurringProcessor) pass(ctx context.Context) {
	if _, err := p.ProcessDue(ctx, p.now()); err != nil {
		p.logger.ErrorContext(ctx, "Recurring pass failed", log.FieldError, err)
	}
}
