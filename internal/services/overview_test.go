package services

import (
	"context"
	"errors"
	"testing"

	"ledger/internal/core"
)

func TestOverview_Month(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		svc := NewOverviewService(h.store, h.opts...)
		acct := h.account(t, "u1", 1000)
		closed := h.account(t, "u1", 200)
		if err := h.catalog.DeactivateAccount(ctx, "u1", closed.ID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		march := h.marchBudget(t, "u1", nil, map[string]float64{"food": 300})
		stale := h.marchBudget(t, "u1", nil, map[string]float64{"rent": 100})
		if err := h.catalog.DeactivateBudget(ctx, "u1", stale.ID); err != nil {
			t.Fatalf("deactivate budget: %v", err)
		}

		post := func(kind core.Kind, category string, amount float64, date core.Date) core.Transaction {
			t.Helper()
			tr, err := h.txns.Create(ctx, CreateTransactionInput{
				Owner: "u1", AccountID: acct.ID, CategoryID: category, Kind: kind,
				Amount: core.NewMoney(amount), Description: "entry", Date: date,
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			return tr
		}
		post(core.Income, "salary", 500, core.NewDate(2024, 3, 1))
		post(core.Expense, "food", 100, core.NewDate(2024, 3, 5))
		post(core.Expense, "food", 50, core.NewDate(2024, 3, 31))
		post(core.Expense, "rent", 150, core.NewDate(2024, 3, 7))
		post(core.Expense, "", 20, core.NewDate(2024, 3, 8))
		post(core.Transfer, "", 30, core.NewDate(2024, 3, 9))
		post(core.Expense, "food", 999, core.NewDate(2024, 4, 1))
		gone := post(core.Expense, "fun", 40, core.NewDate(2024, 3, 10))
		if err := h.txns.Delete(ctx, gone.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}

		ov, err := svc.Month(ctx, "u1", 2024, 3)
		if err != nil {
			t.Fatalf("overview: %v", err)
		}
		if ov.Year != 2024 || ov.Month != 3 {
			t.Fatalf("period = %d-%d", ov.Year, ov.Month)
		}
		if !ov.TotalBalance.Equal(core.NewMoney(151)) {
			t.Fatalf("total balance = %s, want 151.00", ov.TotalBalance)
		}
		if !ov.Income.Equal(core.NewMoney(500)) || !ov.Expenses.Equal(core.NewMoney(320)) {
			t.Fatalf("income = %s expenses = %s", ov.Income, ov.Expenses)
		}
		if !ov.Net().Equal(core.NewMoney(180)) {
			t.Fatalf("net = %s", ov.Net())
		}

		want := []struct {
			id, name, share string
			amount          float64
			count           int
		}{
			{"food", "Food", "46.88", 150, 2},
			{"rent", "Rent", "46.88", 150, 1},
		}
		if len(ov.ByCategory) != len(want) {
			t.Fatalf("categories = %+v", ov.ByCategory)
		}
		for i, w := range want {
			got := ov.ByCategory[i]
			if got.CategoryID != w.id || got.Name != w.name || got.Count != w.count ||
				!got.Amount.Equal(core.NewMoney(w.amount)) || got.Share.String() != w.share {
				t.Fatalf("row %d = %+v, want %+v", i, got, w)
			}
		}

		if len(ov.Budgets) != 1 || ov.Budgets[0].ID != march.ID {
			t.Fatalf("budgets = %+v", ov.Budgets)
		}
	})
}

func TestOverview_EmptyAndInvalidMonth(t *testing.T) {
	h := newHarness(t)
	svc := NewOverviewService(h.store, h.opts...)
	ctx := context.Background()

	ov, err := svc.CurrentMonth(ctx, "nobody")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Year != 2024 || ov.Month != 3 {
		t.Fatalf("current month = %d-%d, want 2024-3", ov.Year, ov.Month)
	}
	if !ov.Expenses.IsZero() || ov.ByCategory == nil || ov.Budgets == nil {
		t.Fatalf("unexpected empty overview %+v", ov)
	}

	for _, m := range []int{0, 13} {
		if _, err := svc.Month(ctx, "u1", 2024, m); !errors.Is(err, core.ErrInvalidDate) {
			t.Fatalf("month %d: expected ErrInvalidDate, got %v", m, err)
		}
	}
}
