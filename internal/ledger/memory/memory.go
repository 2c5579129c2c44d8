// Package memory is an in-process ledger.Store. Each atomic unit works on a
// private copy of the state that is published only when the unit succeeds,
// so a failing unit leaves nothing behind.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

const defaultTimeout = 5 * time.Second

type Store struct {
	mu      sync.RWMutex
	current *state

	// writer is a one-slot semaphore; atomic units queue on it so waiting
	// can be abandoned when the context expires.
	writer  chan struct{}
	timeout time.Duration
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return NewWithTimeout(defaultTimeout)
}

// NewWithTimeout bounds each atomic unit, including the wait for the
// writer slot, by timeout.
func NewWithTimeout(timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		current: newState(),
		writer:  make(chan struct{}, 1),
		timeout: timeout,
	}
}

func (s *Store) Close() error { return nil }

// Atomic implements ledger.Store
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return core.Unavailable("acquire writer", ctx.Err())
	}
	defer func() { <-s.writer }()

	work := s.snapshot().clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return core.Unavailable("commit", err)
	}

	s.mu.Lock()
	s.current = work
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return s.snapshot().GetCategory(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	return s.snapshot().ListCategories(ctx, owner)
}

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.snapshot().GetAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context, owner string) ([]core.Account, error) {
	return s.snapshot().ListAccounts(ctx, owner)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.snapshot().GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return s.snapshot().ListTransactions(ctx, f)
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	return s.snapshot().GetBudget(ctx, id)
}

func (s *Store) ListBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	return s.snapshot().ListBudgets(ctx, owner)
}

func (s *Store) FindAllocation(ctx context.Context, owner, categoryID string, date core.Date) (core.Budget, core.BudgetAllocation, bool, error) {
	return s.snapshot().FindAllocation(ctx, owner, categoryID, date)
}

func (s *Store) GetRecurring(ctx context.Context, id string) (core.RecurringDefinition, error) {
	return s.snapshot().GetRecurring(ctx, id)
}

func (s *Store) ListRecurring(ctx context.Context, owner string) ([]core.RecurringDefinition, error) {
	return s.snapshot().ListRecurring(ctx, owner)
}

func (s *Store) ListDueRecurring(ctx context.Context, today core.Date) ([]core.RecurringDefinition, error) {
	return s.snapshot().ListDueRecurring(ctx, today)
}

func (s *Store) GetAlert(ctx context.Context, id string) (core.Alert, error) {
	return s.snapshot().GetAlert(ctx, id)
}

func (s *Store) ListAlerts(ctx context.Context, owner string, limit int) ([]core.Alert, error) {
	return s.snapshot().ListAlerts(ctx, owner, limit)
}

func (s *Store) CountUnreadAlerts(ctx context.Context, owner string) (int, error) {
	return s.snapshot().CountUnreadAlerts(ctx, owner)
}

func (s *Store) FindRecentAlert(ctx context.Context, owner, budgetID, title string, since time.Time) (bool, error) {
	return s.snapshot().FindRecentAlert(ctx, owner, budgetID, title, since)
}

func (s *Store) SumTransactions(ctx context.Context, accountID string) (core.Money, error) {
	return s.snapshot().SumTransactions(ctx, accountID)
}

func (s *Store) ReadMonthOverview(ctx context.Context, owner string, from, to core.Date) (core.MonthOverview, error) {
	return s.snapshot().ReadMonthOverview(ctx, owner, from, to)
}

// state is one immutable-once-published version of the ledger. Budgets are
// kept without their allocations; allocations live in their own map.
type state struct {
	categories   map[string]core.Category
	accounts     map[string]core.Account
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	allocations  map[string]core.BudgetAllocation
	recurring    map[string]core.RecurringDefinition
	alerts       map[string]core.Alert
}

var _ ledger.Tx = (*state)(nil)

func newState() *state {
	return &state{
		categories:   map[string]core.Category{},
		accounts:     map[string]core.Account{},
		transactions: map[string]core.Transaction{},
		budgets:      map[string]core.Budget{},
		allocations:  map[string]core.BudgetAllocation{},
		recurring:    map[string]core.RecurringDefinition{},
		alerts:       map[string]core.Alert{},
	}
}

func (st *state) clone() *state {
	return &state{
		categories:   cloneMap(st.categories),
		accounts:     cloneMap(st.accounts),
		transactions: cloneMap(st.transactions),
		budgets:      cloneMap(st.budgets),
		allocations:  cloneMap(st.allocations),
		recurring:    cloneMap(st.recurring),
		alerts:       cloneMap(st.alerts),
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *state) GetCategory(_ context.Context, id string) (core.Category, error) {
	c, ok := st.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("%w: %s", core.ErrCategoryNotFound, id)
	}
	return c, nil
}

func (st *state) ListCategories(_ context.Context, owner string) ([]core.Category, error) {
	var out []core.Category
	for _, c := range st.categories {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b core.Category) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (st *state) InsertCategory(_ context.Context, c core.Category) error {
	if _, exists := st.categories[c.ID]; exists {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	if c.ParentID != "" {
		if _, ok := st.categories[c.ParentID]; !ok {
			return fmt.Errorf("%w: %s", core.ErrCategoryNotFound, c.ParentID)
		}
	}
	c.Subcategories = nil
	st.categories[c.ID] = c
	return nil
}

func (st *state) GetAccount(_ context.Context, id string) (core.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return a, nil
}

func (st *state) ListAccounts(_ context.Context, owner string) ([]core.Account, error) {
	var out []core.Account
	for _, a := range st.accounts {
		if a.Owner == owner {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b core.Account) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (st *state) InsertAccount(_ context.Context, a core.Account) error {
	if _, exists := st.accounts[a.ID]; exists {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	st.accounts[a.ID] = a
	return nil
}

func (st *state) SetAccountActive(_ context.Context, id string, active bool) error {
	a, ok := st.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	a.Active = active
	st.accounts[id] = a
	return nil
}

func (st *state) AdjustBalance(_ context.Context, accountID string, delta core.Money) error {
	a, ok := st.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	a.CurrentBalance = a.CurrentBalance.Add(delta)
	st.accounts[accountID] = a
	return nil
}

func (st *state) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	t, ok := st.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	return t, nil
}

func (st *state) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range st.transactions {
		if f.Owner != "" && t.Owner != f.Owner {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if !f.IncludeDeleted && t.IsDeleted() {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && f.To.Before(t.Date) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		return cmp.Or(
			b.Date.Compare(a.Date.Time),
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (st *state) InsertTransaction(_ context.Context, t core.Transaction) error {
	if _, exists := st.transactions[t.ID]; exists {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	st.transactions[t.ID] = t
	return nil
}

func (st *state) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if _, ok := st.transactions[t.ID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, t.ID)
	}
	st.transactions[t.ID] = t
	return nil
}

func (st *state) SumTransactions(_ context.Context, accountID string) (core.Money, error) {
	var sum core.Money
	for _, t := range st.transactions {
		if t.AccountID == accountID && !t.IsDeleted() {
			sum = sum.Add(t.Effect())
		}
	}
	return sum, nil
}

func (st *state) ReadMonthOverview(_ context.Context, owner string, from, to core.Date) (core.MonthOverview, error) {
	var ov core.MonthOverview
	for _, a := range st.accounts {
		if a.Owner == owner && a.Active {
			ov.TotalBalance = ov.TotalBalance.Add(a.CurrentBalance)
		}
	}

	byCategory := map[string]*core.CategoryAmount{}
	for _, t := range st.transactions {
		if t.Owner != owner || t.IsDeleted() || t.Date.Before(from) || to.Before(t.Date) {
			continue
		}
		switch t.Kind {
		case core.Income:
			ov.Income = ov.Income.Add(t.Amount)
		case core.Expense:
			ov.Expenses = ov.Expenses.Add(t.Amount)
			if t.CategoryID == "" {
				continue
			}
			ca, ok := byCategory[t.CategoryID]
			if !ok {
				ca = &core.CategoryAmount{CategoryID: t.CategoryID, Name: st.categories[t.CategoryID].Name}
				byCategory[t.CategoryID] = ca
			}
			ca.Amount = ca.Amount.Add(t.Amount)
			ca.Count++
		}
	}
	for _, ca := range byCategory {
		ov.ByCategory = append(ov.ByCategory, *ca)
	}
	return ov, nil
}

func (st *state) withAllocations(b core.Budget) core.Budget {
	b.Allocations = nil
	for _, a := range st.allocations {
		if a.BudgetID == b.ID {
			b.Allocations = append(b.Allocations, a)
		}
	}
	slices.SortFunc(b.Allocations, func(x, y core.BudgetAllocation) int {
		return cmp.Compare(x.CategoryID, y.CategoryID)
	})
	return b
}

func (st *state) GetBudget(_ context.Context, id string) (core.Budget, error) {
	b, ok := st.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("%w: %s", core.ErrBudgetNotFound, id)
	}
	return st.withAllocations(b), nil
}

func (st *state) ListBudgets(_ context.Context, owner string) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range st.budgets {
		if b.Owner == owner {
			out = append(out, st.withAllocations(b))
		}
	}
	slices.SortFunc(out, newestBudgetFirst)
	return out, nil
}

func newestBudgetFirst(a, b core.Budget) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
}

func (st *state) FindAllocation(_ context.Context, owner, categoryID string, date core.Date) (core.Budget, core.BudgetAllocation, bool, error) {
	var candidates []core.Budget
	for _, b := range st.budgets {
		if b.Owner == owner && b.ActiveOn(date) {
			candidates = append(candidates, b)
		}
	}
	slices.SortFunc(candidates, newestBudgetFirst)
	for _, b := range candidates {
		for _, a := range st.allocations {
			if a.BudgetID == b.ID && a.CategoryID == categoryID {
				return st.withAllocations(b), a, true, nil
			}
		}
	}
	return core.Budget{}, core.BudgetAllocation{}, false, nil
}

func (st *state) InsertBudget(_ context.Context, b core.Budget) error {
	if _, exists := st.budgets[b.ID]; exists {
		return fmt.Errorf("budget %s already exists", b.ID)
	}
	for _, a := range b.Allocations {
		a.BudgetID = b.ID
		st.allocations[a.ID] = a
	}
	b.Allocations = nil
	st.budgets[b.ID] = b
	return nil
}

func (st *state) SetBudgetActive(_ context.Context, id string, active bool) error {
	b, ok := st.budgets[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrBudgetNotFound, id)
	}
	b.Active = active
	st.budgets[id] = b
	return nil
}

func (st *state) AdjustAllocationSpent(_ context.Context, allocationID string, delta core.Money) error {
	a, ok := st.allocations[allocationID]
	if !ok {
		return fmt.Errorf("allocation %s: %w", allocationID, core.ErrNotFound)
	}
	a.Spent = a.Spent.Add(delta)
	st.allocations[allocationID] = a
	return nil
}

func (st *state) GetRecurring(_ context.Context, id string) (core.RecurringDefinition, error) {
	r, ok := st.recurring[id]
	if !ok {
		return core.RecurringDefinition{}, fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
	}
	return r, nil
}

func (st *state) ListRecurring(_ context.Context, owner string) ([]core.RecurringDefinition, error) {
	var out []core.RecurringDefinition
	for _, r := range st.recurring {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, byNextDate)
	return out, nil
}

func (st *state) ListDueRecurring(_ context.Context, today core.Date) ([]core.RecurringDefinition, error) {
	var out []core.RecurringDefinition
	for _, r := range st.recurring {
		if r.DueOn(today) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, byNextDate)
	return out, nil
}

func byNextDate(a, b core.RecurringDefinition) int {
	return cmp.Or(a.NextDate.Compare(b.NextDate.Time), cmp.Compare(a.ID, b.ID))
}

func (st *state) InsertRecurring(_ context.Context, r core.RecurringDefinition) error {
	if _, exists := st.recurring[r.ID]; exists {
		return fmt.Errorf("recurring definition %s already exists", r.ID)
	}
	st.recurring[r.ID] = r
	return nil
}

func (st *state) AdvanceRecurring(_ context.Context, id string, expected, next core.Date, active bool) (bool, error) {
	r, ok := st.recurring[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
	}
	if !r.NextDate.Equal(expected) {
		return false, nil
	}
	r.NextDate = next
	r.Active = active
	st.recurring[id] = r
	return true, nil
}

func (st *state) SetRecurringActive(_ context.Context, id string, active bool) error {
	r, ok := st.recurring[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
	}
	r.Active = active
	st.recurring[id] = r
	return nil
}

func (st *state) GetAlert(_ context.Context, id string) (core.Alert, error) {
	a, ok := st.alerts[id]
	if !ok {
		return core.Alert{}, fmt.Errorf("%w: %s", core.ErrAlertNotFound, id)
	}
	return a, nil
}

func (st *state) ListAlerts(_ context.Context, owner string, limit int) ([]core.Alert, error) {
	var out []core.Alert
	for _, a := range st.alerts {
		if a.Owner == owner {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b core.Alert) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *state) CountUnreadAlerts(_ context.Context, owner string) (int, error) {
	n := 0
	for _, a := range st.alerts {
		if a.Owner == owner && !a.Read {
			n++
		}
	}
	return n, nil
}

func (st *state) FindRecentAlert(_ context.Context, owner, budgetID, title string, since time.Time) (bool, error) {
	for _, a := range st.alerts {
		if a.Owner == owner && a.BudgetID == budgetID && a.Title == title && !a.Read && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) InsertAlert(_ context.Context, a core.Alert) error {
	if _, exists := st.alerts[a.ID]; exists {
		return fmt.Errorf("alert %s already exists", a.ID)
	}
	st.alerts[a.ID] = a
	return nil
}

func (st *state) MarkAlertRead(_ context.Context, id string) error {
	a, ok := st.alerts[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAlertNotFound, id)
	}
	a.Read = true
	st.alerts[id] = a
	return nil
}

func (st *state) MarkAllAlertsRead(_ context.Context, owner string) (int, error) {
	n := 0
	for id, a := range st.alerts {
		if a.Owner == owner && !a.Read {
			a.Read = true
			st.alerts[id] = a
			n++
		}
	}
	return n, nil
}
