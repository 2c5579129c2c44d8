package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), 2*time.Second)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedCategories(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		for _, c := range []core.Category{
			{ID: "rent", Owner: "u1", Name: "Rent", Type: core.Expense, CreatedAt: created},
			{ID: "food", Owner: "u1", Name: "Food", Type: core.Expense, CreatedAt: created},
		} {
			if err := tx.InsertCategory(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed categories: %v", err)
	}
}

func seed(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	seedCategories(t, repo)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	threshold := core.NewMoney(50)
	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertAccount(ctx, core.Account{
			ID: "a1", Owner: "u1", Name: "Checking", Currency: "USD",
			InitialBalance: core.NewMoney(1000), CurrentBalance: core.NewMoney(1000),
			Active: true, CreatedAt: created,
		}); err != nil {
			return err
		}
		return tx.InsertBudget(ctx, core.Budget{
			ID: "b1", Owner: "u1", Name: "March", Period: core.Monthly,
			StartDate: core.NewDate(2024, 3, 1), EndDate: core.NewDate(2024, 3, 31),
			TotalAmount: core.NewMoney(1000), AlertThreshold: &threshold, Active: true, CreatedAt: created,
			Allocations: []core.BudgetAllocation{
				{ID: "al1", CategoryID: "rent", Amount: core.NewMoney(800)},
				{ID: "al2", CategoryID: "food", Amount: core.NewMoney(200)},
			},
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMigrationsApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	repo, err := NewSQLiteRepository(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo.Close()

	v, dirty, err := MigrationVersion(DSN(path))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 || dirty {
		t.Fatalf("version = %d dirty = %v, want 1 clean", v, dirty)
	}

	// Reopening must be a no-op migration.
	repo, err = NewSQLiteRepository(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	repo.Close()
}

func TestAccountRoundTripAndIncrements(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.AdjustBalance(ctx, "a1", core.NewMoney(-820)); err != nil {
			return err
		}
		return tx.AdjustBalance(ctx, "a1", core.NewMoney(0.01))
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}

	a, err := repo.GetAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !a.CurrentBalance.Equal(core.NewMoney(180.01)) || !a.InitialBalance.Equal(core.NewMoney(1000)) {
		t.Fatalf("unexpected account: %+v", a)
	}

	_, err = repo.GetAccount(ctx, "missing")
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	err = repo.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.AdjustBalance(ctx, "missing", core.NewMoney(1))
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on adjust, got %v", err)
	}
}

func TestAtomicRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		err := tx.InsertTransaction(ctx, core.Transaction{
			ID: "t1", Owner: "u1", AccountID: "a1", Kind: core.Expense,
			Amount: core.NewMoney(10), Description: "x", Date: core.NewDate(2024, 3, 2),
		})
		if err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, "a1", core.NewMoney(-10)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "t1"); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("transaction survived rollback: %v", err)
	}
	a, _ := repo.GetAccount(ctx, "a1")
	if !a.CurrentBalance.Equal(core.NewMoney(1000)) {
		t.Fatalf("balance = %s, want 1000.00", a.CurrentBalance)
	}
}

func TestTransactionPersistence(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	in := core.Transaction{
		ID: "t1", Owner: "u1", AccountID: "a1", CategoryID: "rent", AllocationID: "al1", Kind: core.Expense,
		Amount: core.NewMoney(820), Description: "Rent", Date: core.NewDate(2024, 3, 2),
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Atomic(ctx, func(tx ledger.Tx) error { return tx.InsertTransaction(ctx, in) }); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != core.Expense || !got.Amount.Equal(in.Amount) || !got.Date.Equal(in.Date) || got.IsDeleted() {
		t.Fatalf("unexpected transaction: %+v", got)
	}
	if got.CategoryID != "rent" || got.AllocationID != "al1" {
		t.Fatalf("links not persisted: category=%q allocation=%q", got.CategoryID, got.AllocationID)
	}

	got.Deletion = core.Deletion{Deleted: true, At: now.Add(time.Hour)}
	got.UpdatedAt = now.Add(time.Hour)
	if err := repo.Atomic(ctx, func(tx ledger.Tx) error { return tx.UpdateTransaction(ctx, got) }); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, _ := repo.GetTransaction(ctx, "t1")
	if !again.IsDeleted() || !again.Deletion.At.Equal(now.Add(time.Hour)) {
		t.Fatalf("deletion not persisted: %+v", again.Deletion)
	}

	list, err := repo.ListTransactions(ctx, ledger.TransactionFilter{AccountID: "a1"})
	if err != nil || len(list) != 0 {
		t.Fatalf("deleted transaction listed: %v %v", list, err)
	}
	list, _ = repo.ListTransactions(ctx, ledger.TransactionFilter{AccountID: "a1", IncludeDeleted: true})
	if len(list) != 1 {
		t.Fatalf("expected 1 with deleted, got %d", len(list))
	}

	sum, err := repo.SumTransactions(ctx, "a1")
	if err != nil || !sum.IsZero() {
		t.Fatalf("sum = %s err = %v", sum, err)
	}
}

func TestFindAllocation(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	b, a, ok, err := repo.FindAllocation(ctx, "u1", "rent", core.NewDate(2024, 3, 31))
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if a.ID != "al1" || b.ID != "b1" || len(b.Allocations) != 2 {
		t.Fatalf("unexpected match: budget=%+v alloc=%+v", b, a)
	}
	if b.AlertThreshold == nil || !b.AlertThreshold.Equal(core.NewMoney(50)) {
		t.Fatalf("threshold not loaded: %v", b.AlertThreshold)
	}

	if _, _, ok, _ := repo.FindAllocation(ctx, "u1", "rent", core.NewDate(2024, 4, 1)); ok {
		t.Fatal("matched outside the window")
	}
	if _, _, ok, _ := repo.FindAllocation(ctx, "u2", "rent", core.NewDate(2024, 3, 2)); ok {
		t.Fatal("matched another owner's budget")
	}

	if err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.AdjustAllocationSpent(ctx, "al1", core.NewMoney(820))
	}); err != nil {
		t.Fatalf("adjust spent: %v", err)
	}
	_, a, _, _ = repo.FindAllocation(ctx, "u1", "rent", core.NewDate(2024, 3, 2))
	if !a.Spent.Equal(core.NewMoney(820)) || !a.Remaining().Equal(core.NewMoney(-20)) {
		t.Fatalf("spent = %s remaining = %s", a.Spent, a.Remaining())
	}
}

func TestDuplicateAllocationRejected(t *testing.T) {
	repo := newTestRepo(t)
	seedCategories(t, repo)
	ctx := context.Background()
	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertBudget(ctx, core.Budget{
			ID: "b1", Owner: "u1", Name: "x", Period: core.Monthly,
			StartDate: core.NewDate(2024, 3, 1), EndDate: core.NewDate(2024, 3, 31),
			TotalAmount: core.NewMoney(10), Active: true,
			Allocations: []core.BudgetAllocation{
				{ID: "x1", CategoryID: "rent", Amount: core.NewMoney(5)},
				{ID: "x2", CategoryID: "rent", Amount: core.NewMoney(5)},
			},
		})
	})
	if err == nil {
		t.Fatal("expected unique constraint violation")
	}
	if _, err := repo.GetBudget(ctx, "b1"); !errors.Is(err, core.ErrBudgetNotFound) {
		t.Fatalf("partial budget persisted: %v", err)
	}
}

func TestRecurringDueAndAdvance(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	defs := []core.RecurringDefinition{
		{ID: "r1", Owner: "u1", AccountID: "a1", Kind: core.Expense, Amount: core.NewMoney(10),
			Description: "gym", Frequency: core.FreqMonthly, Interval: 1,
			NextDate: core.NewDate(2024, 1, 5), EndDate: core.NewDate(2024, 2, 1), Active: true},
		{ID: "r2", Owner: "u1", AccountID: "a1", Kind: core.Income, Amount: core.NewMoney(100),
			Description: "salary", Frequency: core.FreqMonthly, Interval: 1,
			NextDate: core.NewDate(2024, 1, 10), Active: true},
		{ID: "r3", Owner: "u1", AccountID: "a1", Kind: core.Expense, Amount: core.NewMoney(1),
			Description: "ended", Frequency: core.FreqDaily, Interval: 1,
			NextDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 1, 2), Active: true},
	}
	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		for _, d := range defs {
			if err := tx.InsertRecurring(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	due, err := repo.ListDueRecurring(ctx, core.NewDate(2024, 1, 5))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "r1" || !due[0].EndDate.Equal(core.NewDate(2024, 2, 1)) {
		t.Fatalf("unexpected due list: %+v", due)
	}

	var swapped, again bool
	err = repo.Atomic(ctx, func(tx ledger.Tx) error {
		var err error
		if swapped, err = tx.AdvanceRecurring(ctx, "r1", core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5), false); err != nil {
			return err
		}
		again, err = tx.AdvanceRecurring(ctx, "r1", core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5), false)
		return err
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !swapped || again {
		t.Fatalf("swapped=%v again=%v", swapped, again)
	}

	r1, _ := repo.GetRecurring(ctx, "r1")
	if r1.Active || !r1.NextDate.Equal(core.NewDate(2024, 2, 5)) {
		t.Fatalf("unexpected r1: %+v", r1)
	}

	err = repo.Atomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.AdvanceRecurring(ctx, "nope", core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5), true)
		return err
	})
	if !errors.Is(err, core.ErrRecurringNotFound) {
		t.Fatalf("expected ErrRecurringNotFound, got %v", err)
	}
}

func TestAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertAlert(ctx, core.Alert{
			ID: "x1", Owner: "u1", Type: core.AlertTypeBudget, Title: "Budget exceeded",
			Message: "m", Priority: core.PriorityCritical, CreatedAt: now, BudgetID: "b1", CategoryID: "rent",
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := repo.FindRecentAlert(ctx, "u1", "b1", "Budget exceeded", now.Add(-24*time.Hour))
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	found, _ = repo.FindRecentAlert(ctx, "u1", "b1", "Budget exceeded", now.Add(time.Second))
	if found {
		t.Fatal("alert older than window reported")
	}

	if n, _ := repo.CountUnreadAlerts(ctx, "u1"); n != 1 {
		t.Fatalf("unread = %d", n)
	}
	if err := repo.Atomic(ctx, func(tx ledger.Tx) error { return tx.MarkAlertRead(ctx, "x1") }); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	list, _ := repo.ListAlerts(ctx, "u1", 10)
	if len(list) != 1 || !list[0].Read || list[0].Priority != core.PriorityCritical {
		t.Fatalf("unexpected alerts: %+v", list)
	}

	err = repo.Atomic(ctx, func(tx ledger.Tx) error { return tx.MarkAlertRead(ctx, "missing") })
	if !errors.Is(err, core.ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestConcurrentIncrementsSerialize(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Atomic(ctx, func(tx ledger.Tx) error {
				if err := tx.AdjustBalance(ctx, "a1", core.NewMoney(-1.1)); err != nil {
					return err
				}
				return tx.AdjustAllocationSpent(ctx, "al2", core.NewMoney(1.1))
			})
			if err != nil {
				t.Errorf("atomic: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := repo.GetAccount(ctx, "a1")
	if !a.CurrentBalance.Equal(core.NewMoney(978)) {
		t.Fatalf("balance = %s, want 978.00", a.CurrentBalance)
	}
	_, al, _, _ := repo.FindAllocation(ctx, "u1", "food", core.NewDate(2024, 3, 10))
	if !al.Spent.Equal(core.NewMoney(22)) {
		t.Fatalf("spent = %s, want 22.00", al.Spent)
	}
}

func TestAtomicTimeoutIsUnavailable(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()

	// Hold the only connection so the unit cannot start.
	conn, err := repo.db.Conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()

	called := false
	err = repo.Atomic(context.Background(), func(tx ledger.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if called {
		t.Fatal("unit ran without a connection")
	}
}

func TestCategories(t *testing.T) {
	repo := newTestRepo(t)
	seedCategories(t, repo)
	ctx := context.Background()
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	insert := func(c core.Category) error {
		return repo.Atomic(ctx, func(tx ledger.Tx) error { return tx.InsertCategory(ctx, c) })
	}
	if err := insert(core.Category{ID: "takeaway", Owner: "u1", Name: "Takeaway", Type: core.Expense,
		ParentID: "food", Color: "#f59e0b", Icon: "box", CreatedAt: created}); err != nil {
		t.Fatalf("insert subcategory: %v", err)
	}

	got, err := repo.GetCategory(ctx, "takeaway")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ParentID != "food" || got.Color != "#f59e0b" || got.Icon != "box" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected category %+v", got)
	}
	root, _ := repo.GetCategory(ctx, "rent")
	if root.ParentID != "" {
		t.Fatalf("top-level category has parent %q", root.ParentID)
	}
	if _, err := repo.GetCategory(ctx, "missing"); !errors.Is(err, core.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}

	list, err := repo.ListCategories(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, c := range list {
		names = append(names, c.Name)
	}
	if len(names) != 3 || names[0] != "Food" || names[1] != "Rent" || names[2] != "Takeaway" {
		t.Fatalf("names = %v", names)
	}

	tests := []struct {
		name string
		c    core.Category
	}{
		{"duplicate id", core.Category{ID: "rent", Owner: "u1", Name: "Rent", Type: core.Expense, CreatedAt: created}},
		{"missing parent", core.Category{ID: "x", Owner: "u1", Name: "X", Type: core.Expense, ParentID: "nope", CreatedAt: created}},
		{"transfer type", core.Category{ID: "y", Owner: "u1", Name: "Y", Type: core.Transfer, CreatedAt: created}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := insert(tt.c); err == nil {
				t.Fatal("expected insert to fail")
			}
		})
	}
}

func TestUnknownCategoryRejectedByForeignKey(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertTransaction(ctx, core.Transaction{
			ID: "t1", Owner: "u1", AccountID: "a1", CategoryID: "travel", Kind: core.Expense,
			Amount: core.NewMoney(1), Description: "x", Date: core.NewDate(2024, 3, 2),
		})
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
	if _, err := repo.GetTransaction(ctx, "t1"); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("transaction persisted: %v", err)
	}
}

func TestReadMonthOverview(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	txs := []core.Transaction{
		{ID: "t1", Kind: core.Income, Amount: core.NewMoney(300), Date: core.NewDate(2024, 3, 1)},
		{ID: "t2", Kind: core.Expense, CategoryID: "rent", Amount: core.NewMoney(800), Date: core.NewDate(2024, 3, 2)},
		{ID: "t3", Kind: core.Expense, CategoryID: "food", Amount: core.NewMoney(120), Date: core.NewDate(2024, 3, 31)},
		{ID: "t4", Kind: core.Expense, CategoryID: "food", Amount: core.NewMoney(80), Date: core.NewDate(2024, 3, 15)},
		{ID: "t5", Kind: core.Expense, Amount: core.NewMoney(5), Date: core.NewDate(2024, 3, 3)},
		{ID: "t6", Kind: core.Transfer, Amount: core.NewMoney(50), Date: core.NewDate(2024, 3, 4)},
		{ID: "t7", Kind: core.Expense, CategoryID: "food", Amount: core.NewMoney(999), Date: core.NewDate(2024, 4, 1)},
		{ID: "t8", Kind: core.Expense, CategoryID: "food", Amount: core.NewMoney(40), Date: core.NewDate(2024, 3, 9),
			Deletion: core.Deletion{Deleted: true, At: now}},
	}
	err := repo.Atomic(ctx, func(tx ledger.Tx) error {
		for _, tr := range txs {
			tr.Owner, tr.AccountID, tr.Description = "u1", "a1", "x"
			tr.CreatedAt, tr.UpdatedAt = now, now
			if err := tx.InsertTransaction(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ov, err := repo.ReadMonthOverview(ctx, "u1", core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 31))
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if !ov.TotalBalance.Equal(core.NewMoney(1000)) {
		t.Fatalf("total balance = %s", ov.TotalBalance)
	}
	if !ov.Income.Equal(core.NewMoney(300)) || !ov.Expenses.Equal(core.NewMoney(1005)) {
		t.Fatalf("income = %s expenses = %s", ov.Income, ov.Expenses)
	}

	byID := map[string]core.CategoryAmount{}
	for _, ca := range ov.ByCategory {
		byID[ca.CategoryID] = ca
	}
	if len(byID) != 2 {
		t.Fatalf("categories = %+v", ov.ByCategory)
	}
	if food := byID["food"]; food.Name != "Food" || food.Count != 2 || !food.Amount.Equal(core.NewMoney(200)) {
		t.Fatalf("food = %+v", food)
	}
	if rent := byID["rent"]; rent.Count != 1 || !rent.Amount.Equal(core.NewMoney(800)) {
		t.Fatalf("rent = %+v", rent)
	}

	empty, err := repo.ReadMonthOverview(ctx, "u2", core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 31))
	if err != nil || !empty.TotalBalance.IsZero() || !empty.Expenses.IsZero() || len(empty.ByCategory) != 0 {
		t.Fatalf("other owner overview = %+v err = %v", empty, err)
	}
}
