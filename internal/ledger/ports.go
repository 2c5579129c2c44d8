// Package ledger declares the storage ports the engine depends on.
//
// The engine's only hard requirement from storage is Atomic: a group of
// reads and writes that either all commit or all abort. Balance and spent
// adjustments are expressed as deltas so implementations can apply them as
// in-place increments instead of read-modify-write cycles.
package ledger

import (
	"context"
	"time"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// Store is a durable ledger. Reads outside Atomic see committed state.
	Store interface {
		Reader

		// Atomic runs fn inside one atomic unit. If fn returns an error
		// nothing it wrote is kept. Implementations bound the unit with a
		// timeout and report expiry as core.ErrStorageUnavailable.
		Atomic(ctx context.Context, fn func(tx Tx) error) error

		Close() error
	}

	// Reader holds the queries available both inside and outside an
	// atomic unit.
	Reader interface {
		GetCategory(ctx context.Context, id string) (core.Category, error)
		// ListCategories returns the owner's categories flat, ordered by
		// name then id.
		ListCategories(ctx context.Context, owner string) ([]core.Category, error)

		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context, owner string) ([]core.Account, error)

		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error)

		GetBudget(ctx context.Context, id string) (core.Budget, error)
		ListBudgets(ctx context.Context, owner string) ([]core.Budget, error)

		// FindAllocation returns the allocation for categoryID in the
		// owner's active budget whose window contains date. When several
		// budgets match, the most recently created wins (ties broken by
		// id). ok is false when nothing matches.
		FindAllocation(ctx context.Context, owner, categoryID string, date core.Date) (b core.Budget, a core.BudgetAllocation, ok bool, err error)

		GetRecurring(ctx context.Context, id string) (core.RecurringDefinition, error)
		ListRecurring(ctx context.Context, owner string) ([]core.RecurringDefinition, error)
		// ListDueRecurring returns active definitions with NextDate <= today
		// and EndDate empty or >= today, ordered by NextDate then id.
		ListDueRecurring(ctx context.Context, today core.Date) ([]core.RecurringDefinition, error)

		GetAlert(ctx context.Context, id string) (core.Alert, error)
		ListAlerts(ctx context.Context, owner string, limit int) ([]core.Alert, error)
		CountUnreadAlerts(ctx context.Context, owner string) (int, error)
		// FindRecentAlert reports whether an unread alert with this title
		// exists for owner and budget created at or after since.
		FindRecentAlert(ctx context.Context, owner, budgetID, title string, since time.Time) (bool, error)

		// ReadMonthOverview totals the owner's non-deleted income and
		// expenses dated within [from, to] and groups expenses by category.
		// TotalBalance sums the owner's active accounts. Shares are left
		// for the caller.
		ReadMonthOverview(ctx context.Context, owner string, from, to core.Date) (core.MonthOverview, error)

		// SumTransactions returns the signed sum of all non-deleted
		// transactions on the account. Audit use only.
		SumTransactions(ctx context.Context, accountID string) (core.Money, error)
	}

	// Tx is the view of the store inside an atomic unit.
	Tx interface {
		Reader

		InsertCategory(ctx context.Context, c core.Category) error

		InsertAccount(ctx context.Context, a core.Account) error
		SetAccountActive(ctx context.Context, id string, active bool) error
		// AdjustBalance adds delta to the account's current balance.
		AdjustBalance(ctx context.Context, accountID string, delta core.Money) error

		InsertTransaction(ctx context.Context, t core.Transaction) error
		// UpdateTransaction overwrites every mutable column of t.
		UpdateTransaction(ctx context.Context, t core.Transaction) error

		// InsertBudget stores the budget and its allocations.
		InsertBudget(ctx context.Context, b core.Budget) error
		SetBudgetActive(ctx context.Context, id string, active bool) error
		// AdjustAllocationSpent adds delta to the allocation's spent total.
		AdjustAllocationSpent(ctx context.Context, allocationID string, delta core.Money) error

		InsertRecurring(ctx context.Context, r core.RecurringDefinition) error
		// AdvanceRecurring moves NextDate from expected to next and sets
		// the active flag. It returns false without writing when the stored
		// NextDate no longer equals expected, which means another pass
		// already processed this occurrence.
		AdvanceRecurring(ctx context.Context, id string, expected, next core.Date, active bool) (bool, error)
		SetRecurringActive(ctx context.Context, id string, active bool) error

		InsertAlert(ctx context.Context, a core.Alert) error
		MarkAlertRead(ctx context.Context, id string) error
		MarkAllAlertsRead(ctx context.Context, owner string) (int, error)
	}

	// TransactionFilter narrows ListTransactions. Zero fields match all.
	TransactionFilter struct {
		Owner          string
		AccountID      string
		From, To       core.Date
		IncludeDeleted bool
		Limit          int
	}
)
