package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

// DefaultDedupWindow is how long an unread alert suppresses an identical one.
const DefaultDedupWindow = 24 * time.Hour

var warningRatio = decimal.RequireFromString("0.9")

// ThresholdCheck asks the evaluator to look at the allocation for a
// category on a date.
type ThresholdCheck struct {
	Owner      string    `json:"owner"`
	CategoryID string    `json:"categoryId"`
	Date       core.Date `json:"date"`
}

// ThresholdQueue hands checks to the evaluator without waiting for it.
type ThresholdQueue interface {
	Enqueue(ctx context.Context, check ThresholdCheck) error
}

// ThresholdQueueFunc adapts a function to ThresholdQueue.
type ThresholdQueueFunc func(ctx context.Context, check ThresholdCheck) error

func (f ThresholdQueueFunc) Enqueue(ctx context.Context, check ThresholdCheck) error {
	return f(ctx, check)
}

// ThresholdEvaluator raises budget alerts. It reads allocations and writes
// alerts only.
type ThresholdEvaluator struct {
	store  ledger.Store
	window time.Duration
	runtime
}

func NewThresholdEvaluator(store ledger.Store, dedupWindow time.Duration, opts ...Option) *ThresholdEvaluator {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &ThresholdEvaluator{
		store:   store,
		window:  dedupWindow,
		runtime: newRuntime(log.ComponentThreshold, opts),
	}
}

// Handle runs a queued check.
func (e *ThresholdEvaluator) Handle(ctx context.Context, check ThresholdCheck) error {
	return e.CheckThresholds(ctx, check.Owner, check.CategoryID, check.Date)
}

// CheckThresholds evaluates the allocation for categoryID active on date
// and records an alert unless an identical unread one was raised within
// the de-duplication window. Lookup, de-duplication and insert share one
// atomic unit.
func (e *ThresholdEvaluator) CheckThresholds(ctx context.Context, owner, categoryID string, date core.Date) error {
	var (
		raised     *core.Alert
		suppressed bool
	)
	err := e.store.Atomic(ctx, func(tx ledger.Tx) error {
		b, a, ok, err := tx.FindAllocation(ctx, owner, categoryID, date)
		if err != nil || !ok {
			return err
		}
		priority, ok := Evaluate(b, a)
		if !ok {
			return nil
		}

		now := e.now().UTC()
		alert := budgetAlert(b, a, priority)
		dup, err := tx.FindRecentAlert(ctx, owner, b.ID, alert.Title, now.Add(-e.window))
		if err != nil {
			return err
		}
		if dup {
			suppressed = true
			return nil
		}

		alert.ID = e.newID()
		alert.CreatedAt = now
		if err := tx.InsertAlert(ctx, alert); err != nil {
			return err
		}
		raised = &alert
		return nil
	})
	if err != nil {
		return fmt.Errorf("check thresholds for %s/%s: %w", owner, categoryID, err)
	}

	switch {
	case raised != nil:
		e.logger.InfoContext(ctx, "Budget alert raised",
			log.FieldOwner, owner,
			log.FieldBudgetID, raised.BudgetID,
			log.FieldCategoryID, categoryID,
			log.FieldPriority, raised.Priority)
	case suppressed:
		e.logger.DebugContext(ctx, "Budget alert suppressed by de-duplication window",
			log.FieldOwner, owner,
			log.FieldCategoryID, categoryID)
	}
	return nil
}

// Evaluate applies the alert rules to an allocation, highest priority
// first. ok is false when no alert is warranted.
func Evaluate(b core.Budget, a core.BudgetAllocation) (core.Priority, bool) {
	if !a.Spent.IsPositive() {
		return "", false
	}
	if a.Spent.GreaterThanOrEqual(a.Amount) {
		return core.PriorityCritical, true
	}
	if b.AlertThreshold != nil && a.Remaining().LessThanOrEqual(*b.AlertThreshold) {
		return core.PriorityHigh, true
	}
	if a.Spent.Decimal().GreaterThanOrEqual(a.Amount.MulRatio(warningRatio)) {
		return core.PriorityMedium, true
	}
	return "", false
}

func budgetAlert(b core.Budget, a core.BudgetAllocation, p core.Priority) core.Alert {
	var title string
	switch p {
	case core.PriorityCritical:
		title = "Budget exceeded"
	case core.PriorityHigh:
		title = "Budget threshold reached"
	default:
		title = "Budget almost spent"
	}
	return core.Alert{
		Owner:      b.Owner,
		Type:       core.AlertTypeBudget,
		Title:      fmt.Sprintf("%s: %s / %s", title, b.Name, a.CategoryID),
		Message:    fmt.Sprintf("Spent %s of %s allocated to %s in %q (remaining %s).", a.Spent, a.Amount, a.CategoryID, b.Name, a.Remaining()),
		Priority:   p,
		BudgetID:   b.ID,
		CategoryID: a.CategoryID,
	}
}
