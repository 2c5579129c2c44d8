package core

import (
	"errors"
	"strings"
	"testing"
)

func TestKindEffect(t *testing.T) {
	amount := NewMoney(12.5)
	cases := []struct {
		kind Kind
		want Money
	}{
		{Income, NewMoney(12.5)},
		{Expense, NewMoney(-12.5)},
		{Transfer, NewMoney(-12.5)},
	}
	for _, tc := range cases {
		if got := tc.kind.Effect(amount); !got.Equal(tc.want) {
			t.Errorf("%s effect = %s, want %s", tc.kind, got, tc.want)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Kind:        Expense,
		Amount:      NewMoney(1),
		Description: "ok",
		Date:        NewDate(2024, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		name string
		mut  func(*Transaction)
		want error
	}{
		{"kind", func(tx *Transaction) { tx.Kind = "REFUND" }, ErrInvalidKind},
		{"amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"description", func(tx *Transaction) { tx.Description = " " }, ErrEmptyDescription},
	}
	for _, tc := range bads {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mut(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{
		Name:        "Household",
		Period:      Monthly,
		StartDate:   NewDate(2024, 1, 1),
		EndDate:     NewDate(2024, 1, 31),
		TotalAmount: NewMoney(2000),
		Allocations: []BudgetAllocation{
			{CategoryID: "rent", Amount: NewMoney(800)},
			{CategoryID: "food", Amount: NewMoney(0)},
		},
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	dup := b
	dup.Allocations = append([]BudgetAllocation{}, b.Allocations...)
	dup.Allocations = append(dup.Allocations, BudgetAllocation{CategoryID: "rent", Amount: NewMoney(1)})
	if err := dup.Validate(); !errors.Is(err, ErrDuplicateAllocation) {
		t.Fatalf("expected duplicate allocation error, got %v", err)
	}

	long := b
	long.EndDate = NewDate(2025, 6, 1)
	if err := long.Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestRecurringDueOn(t *testing.T) {
	r := RecurringDefinition{
		Active:   true,
		NextDate: NewDate(2024, 1, 5),
		EndDate:  NewDate(2024, 2, 1),
	}
	cases := []struct {
		today Date
		want  bool
	}{
		{NewDate(2024, 1, 4), false},
		{NewDate(2024, 1, 5), true},
		{NewDate(2024, 2, 1), true},
		{NewDate(2024, 2, 2), false},
	}
	for _, tc := range cases {
		if got := r.DueOn(tc.today); got != tc.want {
			t.Errorf("DueOn(%s) = %v, want %v", tc.today, got, tc.want)
		}
	}

	r.Active = false
	if r.DueOn(NewDate(2024, 1, 5)) {
		t.Error("inactive definition must never be due")
	}
}

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		name string
		c    Category
		want error
	}{
		{"ok", Category{Name: "Food", Type: Expense}, nil},
		{"income", Category{Name: "Salary", Type: Income}, nil},
		{"max length", Category{Name: strings.Repeat("a", MaxCategoryNameLen), Type: Expense}, nil},
		{"blank", Category{Name: " ", Type: Expense}, ErrValidation},
		{"too long", Category{Name: strings.Repeat("a", MaxCategoryNameLen+1), Type: Expense}, ErrValidation},
		{"transfer", Category{Name: "Moves", Type: Transfer}, ErrValidation},
		{"no type", Category{Name: "Food"}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
