package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

type (
	CreateCategoryInput struct {
		Owner    string    `json:"-"`
		Name     string    `json:"name"`
		Type     core.Kind `json:"type"`
		ParentID string    `json:"parentId,omitempty"`
		Color    string    `json:"color,omitempty"`
		Icon     string    `json:"icon,omitempty"`
	}

	CreateAccountInput struct {
		Owner          string     `json:"-"`
		Name           string     `json:"name"`
		Currency       string     `json:"currency"`
		InitialBalance core.Money `json:"initialBalance"`
	}

	AllocationInput struct {
		CategoryID string     `json:"categoryId"`
		Amount     core.Money `json:"amount"`
	}

	CreateBudgetInput struct {
		Owner          string            `json:"-"`
		Name           string            `json:"name"`
		Period         core.BudgetPeriod `json:"period"`
		StartDate      core.Date         `json:"startDate"`
		EndDate        core.Date         `json:"endDate"`
		TotalAmount    core.Money        `json:"totalAmount"`
		AlertThreshold *core.Money       `json:"alertThreshold,omitempty"`
		Allocations    []AllocationInput `json:"allocations"`
	}

	CreateRecurringInput struct {
		Owner       string         `json:"-"`
		AccountID   string         `json:"accountId"`
		CategoryID  string         `json:"categoryId,omitempty"`
		Kind        core.Kind      `json:"kind"`
		Amount      core.Money     `json:"amount"`
		Description string         `json:"description"`
		Frequency   core.Frequency `json:"frequency"`
		Interval    int            `json:"interval"`
		NextDate    core.Date      `json:"nextDate"`
		EndDate     core.Date      `json:"endDate"`
	}
)

// CatalogService manages the records the engine posts against: categories,
// accounts, budgets and recurring definitions. It never changes a balance or a
// spent total after creation.
type CatalogService struct {
	store ledger.Store
	runtime
}

func NewCatalogService(store ledger.Store, opts ...Option) *CatalogService {
	return &CatalogService{store: store, runtime: newRuntime(log.ComponentCatalog, opts)}
}

// Categories

// defaultCategories are seeded for owners that have none.
var defaultCategories = []CreateCategoryInput{
	{Name: "Salary", Type: core.Income, Color: "#10b981", Icon: "wallet"},
	{Name: "Rent/Mortgage", Type: core.Expense, Color: "#3b82f6", Icon: "home"},
	{Name: "Groceries", Type: core.Expense, Color: "#f59e0b", Icon: "shopping-cart"},
	{Name: "Transport", Type: core.Expense, Color: "#6366f1", Icon: "bus"},
	{Name: "Leisure", Type: core.Expense, Color: "#ec4899", Icon: "film"},
	{Name: "Health", Type: core.Expense, Color: "#ef4444", Icon: "activity"},
}

func (s *CatalogService) newCategory(in CreateCategoryInput) (core.Category, error) {
	c := core.Category{
		ID:        s.newID(),
		Owner:     in.Owner,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		ParentID:  strings.TrimSpace(in.ParentID),
		Color:     strings.TrimSpace(in.Color),
		Icon:      strings.TrimSpace(in.Icon),
		CreatedAt: s.now().UTC(),
	}
	return c, c.Validate()
}

// CreateCategory stores a category. A parent must belong to the same
// owner and be top level itself.
func (s *CatalogService) CreateCategory(ctx context.Context, in CreateCategoryInput) (core.Category, error) {
	c, err := s.newCategory(in)
	if err != nil {
		return core.Category{}, err
	}

	err = s.store.Atomic(ctx, func(tx ledger.Tx) error {
		if c.ParentID != "" {
			parent, err := tx.GetCategory(ctx, c.ParentID)
			if err != nil {
				return err
			}
			if parent.Owner != c.Owner {
				return fmt.Errorf("%w: %s", core.ErrCategoryNotFound, c.ParentID)
			}
			if parent.ParentID != "" {
				return fmt.Errorf("%w: category %s is already a subcategory", core.ErrValidation, parent.ID)
			}
		}
		return tx.InsertCategory(ctx, c)
	})
	if err != nil {
		return core.Category{}, err
	}
	s.logger.InfoContext(ctx, "Category created", log.FieldCategoryID, c.ID, log.FieldOwner, c.Owner)
	return c, nil
}

// ListCategories returns the owner's top-level categories ordered by name,
// each with its subcategories.
func (s *CatalogService) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	flat, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		return nil, err
	}
	children := map[string][]core.Category{}
	for _, c := range flat {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c)
		}
	}
	var out []core.Category
	for _, c := range flat {
		if c.ParentID == "" {
			c.Subcategories = children[c.ID]
			out = append(out, c)
		}
	}
	return out, nil
}

// SeedDefaultCategories creates the default categories when the owner has
// none and reports how many were created.
func (s *CatalogService) SeedDefaultCategories(ctx context.Context, owner string) (int, error) {
	created := 0
	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		existing, err := tx.ListCategories(ctx, owner)
		if err != nil || len(existing) > 0 {
			return err
		}
		for _, in := range defaultCategories {
			in.Owner = owner
			c, err := s.newCategory(in)
			if err != nil {
				return err
			}
			if err := tx.InsertCategory(ctx, c); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.logger.InfoContext(ctx, "Default categories seeded", log.FieldOwner, owner, "count", created)
	}
	return created, nil
}

// Accounts

func (s *CatalogService) CreateAccount(ctx context.Context, in CreateAccountInput) (core.Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return core.Account{}, fmt.Errorf("%w: account name is required", core.ErrValidation)
	}
	code := strings.ToUpper(strings.TrimSpace(in.Currency))
	if money.GetCurrency(code) == nil {
		return core.Account{}, fmt.Errorf("%w: unknown currency %q", core.ErrValidation, in.Currency)
	}
	if in.InitialBalance.GreaterThan(core.MaxAmount) || in.InitialBalance.LessThan(core.MaxAmount.Neg()) {
		return core.Account{}, fmt.Errorf("%w: initial balance %s out of range", core.ErrInvalidAmount, in.InitialBalance)
	}

	a := core.Account{
		ID:             s.newID(),
		Owner:          in.Owner,
		Name:           name,
		Currency:       code,
		InitialBalance: in.InitialBalance,
		CurrentBalance: in.InitialBalance,
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Atomic(ctx, func(tx ledger.Tx) error { return tx.InsertAccount(ctx, a) }); err != nil {
		return core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Account created", log.FieldAccountID, a.ID, log.FieldOwner, a.Owner)
	return a, nil
}

// GetAccount returns the owner's account; other owners' accounts are
// reported as not found.
func (s *CatalogService) GetAccount(ctx context.Context, owner, id string) (core.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if a.Owner != owner {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *CatalogService) ListAccounts(ctx context.Context, owner string) ([]core.Account, error) {
	return s.store.ListAccounts(ctx, owner)
}

func (s *CatalogService) DeactivateAccount(ctx context.Context, owner, id string) error {
	return s.store.Atomic(ctx, func(tx ledger.Tx) error {
		a, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if a.Owner != owner {
			return fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
		}
		return tx.SetAccountActive(ctx, id, false)
	})
}

// Budgets

func (s *CatalogService) CreateBudget(ctx context.Context, in CreateBudgetInput) (core.Budget, error) {
	b := core.Budget{
		ID:             s.newID(),
		Owner:          in.Owner,
		Name:           strings.TrimSpace(in.Name),
		Period:         in.Period,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		TotalAmount:    in.TotalAmount,
		AlertThreshold: in.AlertThreshold,
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}
	for _, ai := range in.Allocations {
		b.Allocations = append(b.Allocations, core.BudgetAllocation{
			ID:         s.newID(),
			BudgetID:   b.ID,
			CategoryID: strings.TrimSpace(ai.CategoryID),
			Amount:     ai.Amount,
		})
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		for _, a := range b.Allocations {
			if err := ownedCategory(ctx, tx, b.Owner, a.CategoryID); err != nil {
				return err
			}
		}
		return tx.InsertBudget(ctx, b)
	})
	if err != nil {
		return core.Budget{}, err
	}
	s.logger.InfoContext(ctx, "Budget created",
		log.FieldBudgetID, b.ID,
		log.FieldOwner, b.Owner,
		"allocations", len(b.Allocations))
	return b, nil
}

func (s *CatalogService) GetBudget(ctx context.Context, owner, id string) (core.Budget, error) {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return core.Budget{}, err
	}
	if b.Owner != owner {
		return core.Budget{}, fmt.Errorf("%w: %s", core.ErrBudgetNotFound, id)
	}
	return b, nil
}

func (s *CatalogService) ListBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	return s.store.ListBudgets(ctx, owner)
}

// DeactivateBudget stops the budget from matching new postings. Spent
// totals already recorded are kept.
func (s *CatalogService) DeactivateBudget(ctx context.Context, owner, id string) error {
	return s.store.Atomic(ctx, func(tx ledger.Tx) error {
		b, err := tx.GetBudget(ctx, id)
		if err != nil {
			return err
		}
		if b.Owner != owner {
			return fmt.Errorf("%w: %s", core.ErrBudgetNotFound, id)
		}
		return tx.SetBudgetActive(ctx, id, false)
	})
}

// Recurring definitions

func (s *CatalogService) CreateRecurring(ctx context.Context, in CreateRecurringInput) (core.RecurringDefinition, error) {
	if in.Interval == 0 {
		in.Interval = 1
	}
	r := core.RecurringDefinition{
		ID:          s.newID(),
		Owner:       in.Owner,
		AccountID:   in.AccountID,
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Kind:        in.Kind,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Frequency:   in.Frequency,
		Interval:    in.Interval,
		NextDate:    in.NextDate,
		EndDate:     in.EndDate,
		Active:      true,
		CreatedAt:   s.now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return core.RecurringDefinition{}, err
	}

	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		a, err := tx.GetAccount(ctx, r.AccountID)
		if err != nil {
			return err
		}
		if a.Owner != r.Owner {
			return fmt.Errorf("%w: %s", core.ErrAccountNotFound, r.AccountID)
		}
		if err := ownedCategory(ctx, tx, r.Owner, r.CategoryID); err != nil {
			return err
		}
		return tx.InsertRecurring(ctx, r)
	})
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	s.logger.InfoContext(ctx, "Recurring definition created",
		log.FieldRecurringID, r.ID,
		"frequency", r.Frequency,
		"next_date", r.NextDate.String())
	return r, nil
}

func (s *CatalogService) ListRecurring(ctx context.Context, owner string) ([]core.RecurringDefinition, error) {
	return s.store.ListRecurring(ctx, owner)
}

func (s *CatalogService) DeactivateRecurring(ctx context.Context, owner, id string) error {
	return s.store.Atomic(ctx, func(tx ledger.Tx) error {
		r, err := tx.GetRecurring(ctx, id)
		if err != nil {
			return err
		}
		if r.Owner != owner {
			return fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
		}
		return tx.SetRecurringActive(ctx, id, false)
	})
}
