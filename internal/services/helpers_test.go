package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/ledger/memory"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store     ledger.Store
	clock     *testClock
	opts      []Option
	txns      *TransactionService
	evaluator *ThresholdEvaluator
	catalog   *CatalogService
	alerts    *AlertService
	checks    atomic.Int64
}

// testCategories are seeded for every harness, keyed by owner. Ids are
// global, so each owner gets its own.
var testCategories = map[string][]core.Category{
	"u1": {
		{ID: "food", Name: "Food", Type: core.Expense},
		{ID: "fun", Name: "Fun", Type: core.Expense},
		{ID: "groceries", Name: "Groceries", Type: core.Expense},
		{ID: "rent", Name: "Rent", Type: core.Expense},
		{ID: "salary", Name: "Salary", Type: core.Income},
	},
	"u2": {
		{ID: "u2-food", Name: "Food", Type: core.Expense},
	},
}

type storeFactory struct {
	name string
	open func(t *testing.T) ledger.Store
}

var storeFactories = []storeFactory{
	{"memory", func(*testing.T) ledger.Store { return memory.New() }},
	{"sqlite", func(t *testing.T) ledger.Store {
		t.Helper()
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), 0)
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	}},
}

// newHarness wires the engine over a memory store with the threshold
// evaluator running synchronously after each commit.
func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, memory.New())
}

// eachStore runs fn once per store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, h *harness)) {
	t.Helper()
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			fn(t, newHarnessWith(t, f.open(t)))
		})
	}
}

func newHarnessWith(t *testing.T, store ledger.Store) *harness {
	t.Helper()
	var seq atomic.Int64
	h := &harness{
		store: store,
		clock: &testClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	h.opts = []Option{
		WithLogger(log.Discard()),
		WithClock(h.clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }),
	}
	h.evaluator = NewThresholdEvaluator(h.store, DefaultDedupWindow, h.opts...)
	queue := ThresholdQueueFunc(func(ctx context.Context, c ThresholdCheck) error {
		h.checks.Add(1)
		return h.evaluator.Handle(ctx, c)
	})
	h.txns = NewTransactionService(h.store, queue, h.opts...)
	h.catalog = NewCatalogService(h.store, h.opts...)
	h.alerts = NewAlertService(h.store, h.opts...)

	err := h.store.Atomic(context.Background(), func(tx ledger.Tx) error {
		for owner, cats := range testCategories {
			for _, c := range cats {
				c.Owner = owner
				c.CreatedAt = h.clock.Now()
				if err := tx.InsertCategory(context.Background(), c); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed categories: %v", err)
	}
	return h
}

func (h *harness) account(t *testing.T, owner string, balance float64) core.Account {
	t.Helper()
	a, err := h.catalog.CreateAccount(context.Background(), CreateAccountInput{
		Owner: owner, Name: "Checking", Currency: "USD", InitialBalance: core.NewMoney(balance),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

// marchBudget creates a March 2024 budget with the given allocations.
func (h *harness) marchBudget(t *testing.T, owner string, threshold *core.Money, allocs map[string]float64) core.Budget {
	t.Helper()
	in := CreateBudgetInput{
		Owner: owner, Name: "March", Period: core.Monthly,
		StartDate: core.NewDate(2024, 3, 1), EndDate: core.NewDate(2024, 3, 31),
		TotalAmount: core.NewMoney(5000), AlertThreshold: threshold,
	}
	for cat, amt := range allocs {
		in.Allocations = append(in.Allocations, AllocationInput{CategoryID: cat, Amount: core.NewMoney(amt)})
	}
	b, err := h.catalog.CreateBudget(context.Background(), in)
	if err != nil {
		t.Fatalf("create budget: %v", err)
	}
	return b
}

func (h *harness) expense(t *testing.T, a core.Account, category string, amount float64, day int) core.Transaction {
	t.Helper()
	tr, err := h.txns.Create(context.Background(), CreateTransactionInput{
		Owner: a.Owner, AccountID: a.ID, CategoryID: category, Kind: core.Expense,
		Amount: core.NewMoney(amount), Description: "expense", Date: core.NewDate(2024, 3, day),
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	return tr
}

func (h *harness) balance(t *testing.T, id string) core.Money {
	t.Helper()
	a, err := h.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a.CurrentBalance
}

func (h *harness) spent(t *testing.T, owner, category string, day core.Date) core.Money {
	t.Helper()
	_, a, ok, err := h.store.FindAllocation(context.Background(), owner, category, day)
	if err != nil || !ok {
		t.Fatalf("find allocation %s: ok=%v err=%v", category, ok, err)
	}
	return a.Spent
}

// assertConsistent recomputes balances and spent totals from the stored
// transactions and compares them with the running totals.
func (h *harness) assertConsistent(t *testing.T, owner string) {
	t.Helper()
	ctx := context.Background()

	recs, err := NewReconciler(h.store).ReconcileOwner(ctx, owner)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	for _, r := range recs {
		if !r.Consistent {
			t.Fatalf("account %s drifted: stored %s computed %s", r.AccountID, r.Stored, r.Computed)
		}
	}

	budgets, _ := h.store.ListBudgets(ctx, owner)
	txs, _ := h.store.ListTransactions(ctx, ledger.TransactionFilter{Owner: owner})
	for _, b := range budgets {
		for _, a := range b.Allocations {
			var want core.Money
			for _, tr := range txs {
				if tr.AllocationID == a.ID {
					want = want.Add(tr.Amount)
				}
			}
			if !a.Spent.Equal(want) {
				t.Fatalf("allocation %s/%s spent = %s, want %s", b.Name, a.CategoryID, a.Spent, want)
			}
		}
	}
}

// allocation returns the stored allocation for category in budget b.
func (h *harness) allocation(t *testing.T, b core.Budget, category string) core.BudgetAllocation {
	t.Helper()
	got, err := h.store.GetBudget(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	for _, a := range got.Allocations {
		if a.CategoryID == category {
			return a
		}
	}
	t.Fatalf("budget %s has no %s allocation", b.Name, category)
	return core.BudgetAllocation{}
}
