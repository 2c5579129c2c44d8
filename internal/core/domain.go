package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	Income   Kind = "INCOME"
	Expense  Kind = "EXPENSE"
	Transfer Kind = "TRANSFER"
)

const (
	Monthly   BudgetPeriod = "MONTHLY"
	Quarterly BudgetPeriod = "QUARTERLY"
	Yearly    BudgetPeriod = "YEARLY"
)

const (
	FreqDaily     Frequency = "DAILY"
	FreqWeekly    Frequency = "WEEKLY"
	FreqBiweekly  Frequency = "BIWEEKLY"
	FreqMonthly   Frequency = "MONTHLY"
	FreqBimonthly Frequency = "BIMONTHLY"
	FreqQuarterly Frequency = "QUARTERLY"
	FreqYearly    Frequency = "YEARLY"
)

const (
	PriorityInfo     Priority = "info"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AlertTypeBudget marks alerts raised by the threshold evaluator.
const AlertTypeBudget = "budget"

// MaxCategoryNameLen bounds category names, in bytes.
const MaxCategoryNameLen = 50

// MaxDescriptionLen bounds transaction and recurring descriptions, in bytes.
const MaxDescriptionLen = 255

type (
	// Kind is the direction of a transaction.
	Kind string

	BudgetPeriod string

	Frequency string

	Priority string

	// Category classifies transactions and is the key budget allocations
	// are matched on. A category has at most one level of parent.
	Category struct {
		ID            string     `json:"id"`
		Owner         string     `json:"owner"`
		Name          string     `json:"name"`
		Type          Kind       `json:"type"`
		ParentID      string     `json:"parentId,omitempty"`
		Color         string     `json:"color,omitempty"`
		Icon          string     `json:"icon,omitempty"`
		CreatedAt     time.Time  `json:"createdAt"`
		Subcategories []Category `json:"subcategories,omitempty"`
	}

	Account struct {
		ID             string    `json:"id"`
		Owner          string    `json:"owner"`
		Name           string    `json:"name"`
		Currency       string    `json:"currency"`
		InitialBalance Money     `json:"initialBalance"`
		CurrentBalance Money     `json:"currentBalance"`
		Active         bool      `json:"active"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	// Deletion is the soft-delete state of a transaction. The zero value
	// is an active transaction.
	Deletion struct {
		Deleted bool      `json:"deleted"`
		At      time.Time `json:"deletedAt,omitzero"`
	}

	// Transaction is one posting against an account. AllocationID records
	// the allocation it was counted against, empty when none matched;
	// reversals go to that allocation.
	Transaction struct {
		ID           string    `json:"id"`
		Owner        string    `json:"owner"`
		AccountID    string    `json:"accountId"`
		CategoryID   string    `json:"categoryId,omitempty"`
		Kind         Kind      `json:"kind"`
		Amount       Money     `json:"amount"`
		Description  string    `json:"description"`
		Date         Date      `json:"date"`
		Deletion     Deletion  `json:"deletion"`
		RecurringID  string    `json:"recurringId,omitempty"`
		AllocationID string    `json:"allocationId,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	Budget struct {
		ID             string             `json:"id"`
		Owner          string             `json:"owner"`
		Name           string             `json:"name"`
		Period         BudgetPeriod       `json:"period"`
		StartDate      Date               `json:"startDate"`
		EndDate        Date               `json:"endDate"`
		TotalAmount    Money              `json:"totalAmount"`
		AlertThreshold *Money             `json:"alertThreshold,omitempty"`
		Active         bool               `json:"active"`
		CreatedAt      time.Time          `json:"createdAt"`
		Allocations    []BudgetAllocation `json:"allocations,omitempty"`
	}

	BudgetAllocation struct {
		ID         string `json:"id"`
		BudgetID   string `json:"budgetId"`
		CategoryID string `json:"categoryId"`
		Amount     Money  `json:"amount"`
		Spent      Money  `json:"spent"`
	}

	RecurringDefinition struct {
		ID          string    `json:"id"`
		Owner       string    `json:"owner"`
		AccountID   string    `json:"accountId"`
		CategoryID  string    `json:"categoryId,omitempty"`
		Kind        Kind      `json:"kind"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Frequency   Frequency `json:"frequency"`
		Interval    int       `json:"interval"`
		NextDate    Date      `json:"nextDate"`
		EndDate     Date      `json:"endDate,omitzero"`
		Active      bool      `json:"active"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	Alert struct {
		ID         string    `json:"id"`
		Owner      string    `json:"owner"`
		Type       string    `json:"type"`
		Title      string    `json:"title"`
		Message    string    `json:"message"`
		Priority   Priority  `json:"priority"`
		Read       bool      `json:"isRead"`
		CreatedAt  time.Time `json:"createdAt"`
		BudgetID   string    `json:"budgetId,omitempty"`
		CategoryID string    `json:"categoryId,omitempty"`
	}
)

func (k Kind) Valid() bool {
	switch k {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

// Effect is the signed balance change of amount for this kind: positive
// for income, negative for expenses and transfers.
func (k Kind) Effect(amount Money) Money {
	if k == Income {
		return amount
	}
	return amount.Neg()
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: category name is required", ErrValidation)
	}
	if len(name) > MaxCategoryNameLen {
		return fmt.Errorf("%w: category name too long (max %d characters)", ErrValidation, MaxCategoryNameLen)
	}
	if c.Type != Income && c.Type != Expense {
		return fmt.Errorf("%w: category type must be %s or %s, got %q", ErrValidation, Income, Expense, c.Type)
	}
	return nil
}

func (p BudgetPeriod) Valid() bool {
	switch p {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiweekly, FreqMonthly, FreqBimonthly, FreqQuarterly, FreqYearly:
		return true
	}
	return false
}

// IsDeleted reports whether the transaction has been soft-deleted.
func (t Transaction) IsDeleted() bool { return t.Deletion.Deleted }

// Effect is the signed change this transaction applies to its account.
func (t Transaction) Effect() Money { return t.Kind.Effect(t.Amount) }

// AffectsBudget reports whether the transaction counts against a budget
// allocation.
func (t Transaction) AffectsBudget() bool {
	return t.Kind == Expense && t.CategoryID != "" && !t.IsDeleted()
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, MaxDescriptionLen)
	}
	return nil
}

// Remaining is the allocated amount not yet spent; negative when overspent.
func (a BudgetAllocation) Remaining() Money { return a.Amount.Sub(a.Spent) }

// ActiveOn reports whether the budget applies to the given date.
func (b Budget) ActiveOn(d Date) bool {
	return b.Active && d.Within(b.StartDate, b.EndDate)
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: budget name is required", ErrValidation)
	}
	if !b.Period.Valid() {
		return fmt.Errorf("%w: unknown budget period %q", ErrValidation, b.Period)
	}
	if err := ValidatePeriod(b.StartDate, b.EndDate); err != nil {
		return err
	}
	if err := ValidateAmount(b.TotalAmount); err != nil {
		return err
	}
	if b.AlertThreshold != nil && b.AlertThreshold.IsNegative() {
		return fmt.Errorf("%w: alert threshold cannot be negative", ErrInvalidAmount)
	}
	seen := make(map[string]struct{}, len(b.Allocations))
	for _, a := range b.Allocations {
		if strings.TrimSpace(a.CategoryID) == "" {
			return fmt.Errorf("%w: allocation category is required", ErrValidation)
		}
		if a.Amount.IsNegative() {
			return fmt.Errorf("%w: allocation for %s cannot be negative", ErrInvalidAmount, a.CategoryID)
		}
		if _, dup := seen[a.CategoryID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAllocation, a.CategoryID)
		}
		seen[a.CategoryID] = struct{}{}
	}
	return nil
}

func (r RecurringDefinition) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", ErrInvalidFrequency)
	}
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrEmptyDescription
	}
	if len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, MaxDescriptionLen)
	}
	if r.NextDate.IsZero() {
		return fmt.Errorf("%w: next date is required", ErrInvalidDate)
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.NextDate) {
		return fmt.Errorf("%w: end date must not precede next date", ErrInvalidDate)
	}
	return nil
}

// DueOn reports whether the definition should produce a transaction on
// the given day.
func (r RecurringDefinition) DueOn(today Date) bool {
	if !r.Active || today.Before(r.NextDate) {
		return false
	}
	return r.EndDate.IsZero() || !r.EndDate.Before(today)
}
