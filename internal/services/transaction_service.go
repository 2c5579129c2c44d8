package services

import (
	"context"
	"fmt"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

const recurringSuffix = " (recurring)"

// CreateTransactionInput carries the caller-supplied fields of a new
// transaction.
type CreateTransactionInput struct {
	Owner       string     `json:"-"`
	AccountID   string     `json:"accountId"`
	CategoryID  string     `json:"categoryId,omitempty"`
	Kind        core.Kind  `json:"kind"`
	Amount      core.Money `json:"amount"`
	Description string     `json:"description"`
	Date        core.Date  `json:"date"`
}

// TransactionPatch holds the fields to change; nil keeps the prior value.
// An empty CategoryID clears the category.
type TransactionPatch struct {
	AccountID   *string     `json:"accountId,omitempty"`
	CategoryID  *string     `json:"categoryId,omitempty"`
	Kind        *core.Kind  `json:"kind,omitempty"`
	Amount      *core.Money `json:"amount,omitempty"`
	Description *string     `json:"description,omitempty"`
	Date        *core.Date  `json:"date,omitempty"`
}

func (p TransactionPatch) apply(t core.Transaction) core.Transaction {
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}

// TransactionService is the only writer of account balances and
// allocation spent totals. Every mutation runs in one store atomic unit;
// threshold checks are queued after commit.
type TransactionService struct {
	store ledger.Store
	queue ThresholdQueue
	runtime
}

// NewTransactionService wires the engine. queue may be nil, in which case
// no threshold checks are requested.
func NewTransactionService(store ledger.Store, queue ThresholdQueue, opts ...Option) *TransactionService {
	return &TransactionService{
		store:   store,
		queue:   queue,
		runtime: newRuntime(log.ComponentLedger, opts),
	}
}

func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) List(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// Create validates and posts a new transaction.
func (s *TransactionService) Create(ctx context.Context, in CreateTransactionInput) (core.Transaction, error) {
	now := s.now().UTC()
	t := core.Transaction{
		ID:          s.newID(),
		Owner:       in.Owner,
		AccountID:   in.AccountID,
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Kind:        in.Kind,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		posted, err := s.post(ctx, tx, t)
		t = posted
		return err
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction created", log.NewFields().
		WithTransaction(t.ID, t.AccountID, string(t.Kind), t.Amount.String(), t.Date.String()).
		WithOperation(log.OpCreate).ToSlice()...)
	s.requestCheck(ctx, t)
	return t, nil
}

// Update reverses the stored effect of the transaction and applies the
// patched one, on balances and allocations alike.
func (s *TransactionService) Update(ctx context.Context, id string, patch TransactionPatch) (core.Transaction, error) {
	var updated core.Transaction
	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		old, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if old.IsDeleted() {
			return fmt.Errorf("%w: %s is deleted", core.ErrTransactionNotFound, id)
		}

		next := patch.apply(old)
		next.CategoryID = strings.TrimSpace(next.CategoryID)
		next.Description = strings.TrimSpace(next.Description)
		next.AllocationID = ""
		next.UpdatedAt = s.now().UTC()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := ownedCategory(ctx, tx, next.Owner, next.CategoryID); err != nil {
			return err
		}

		if next.AccountID != old.AccountID {
			from, err := tx.GetAccount(ctx, old.AccountID)
			if err != nil {
				return err
			}
			to, err := s.ownedAccount(ctx, tx, next.Owner, next.AccountID)
			if err != nil {
				return err
			}
			if !strings.EqualFold(from.Currency, to.Currency) {
				return fmt.Errorf("%w: %s to %s", core.ErrCurrencyMismatch, from.Currency, to.Currency)
			}
		}

		if err := s.unapply(ctx, tx, old); err != nil {
			return err
		}
		if next, err = s.apply(ctx, tx, next); err != nil {
			return err
		}
		if err := tx.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction updated", log.NewFields().
		WithTransaction(updated.ID, updated.AccountID, string(updated.Kind), updated.Amount.String(), updated.Date.String()).
		WithOperation(log.OpUpdate).ToSlice()...)
	s.requestCheck(ctx, updated)
	return updated, nil
}

// Delete soft-deletes the transaction and reverses its effect. Deleting an
// already deleted transaction is a no-op.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	var removed bool
	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.IsDeleted() {
			return nil
		}
		if err := s.unapply(ctx, tx, t); err != nil {
			return err
		}

		now := s.now().UTC()
		t.Deletion = core.Deletion{Deleted: true, At: now}
		t.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return err
	}

	if removed {
		s.logger.InfoContext(ctx, "Transaction deleted", log.FieldTxID, id, log.FieldOperation, log.OpDelete)
	}
	return nil
}

// PostRecurring materialises the occurrence of def due on def.NextDate and
// advances the definition in the same atomic unit. posted is false when
// the occurrence is no longer due, which happens when another pass got to
// it first.
func (s *TransactionService) PostRecurring(ctx context.Context, def core.RecurringDefinition, today core.Date) (t core.Transaction, posted bool, err error) {
	err = s.store.Atomic(ctx, func(tx ledger.Tx) error {
		cur, err := tx.GetRecurring(ctx, def.ID)
		if err != nil {
			return err
		}
		if !cur.DueOn(today) || !cur.NextDate.Equal(def.NextDate) {
			return nil
		}

		next, err := NextOccurrence(cur)
		if err != nil {
			return err
		}
		active := cur.EndDate.IsZero() || !next.After(cur.EndDate)
		swapped, err := tx.AdvanceRecurring(ctx, cur.ID, cur.NextDate, next, active)
		if err != nil || !swapped {
			return err
		}

		now := s.now().UTC()
		t = core.Transaction{
			ID:          s.newID(),
			Owner:       cur.Owner,
			AccountID:   cur.AccountID,
			CategoryID:  cur.CategoryID,
			Kind:        cur.Kind,
			Amount:      cur.Amount,
			Description: recurringDescription(cur.Description),
			Date:        cur.NextDate,
			RecurringID: cur.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if t, err = s.post(ctx, tx, t); err != nil {
			return err
		}
		posted = true
		return nil
	})
	if err != nil || !posted {
		return core.Transaction{}, false, err
	}

	s.logger.InfoContext(ctx, "Recurring transaction posted", log.NewFields().
		WithTransaction(t.ID, t.AccountID, string(t.Kind), t.Amount.String(), t.Date.String()).
		WithOperation(log.OpPost).ToSlice()...)
	s.requestCheck(ctx, t)
	return t, true, nil
}

func recurringDescription(desc string) string {
	if limit := core.MaxDescriptionLen - len(recurringSuffix); len(desc) > limit {
		desc = strings.TrimSpace(strings.ToValidUTF8(desc[:limit], ""))
	}
	return desc + recurringSuffix
}

// post applies the effect of t and inserts it with its allocation link.
func (s *TransactionService) post(ctx context.Context, tx ledger.Tx, t core.Transaction) (core.Transaction, error) {
	if _, err := s.ownedAccount(ctx, tx, t.Owner, t.AccountID); err != nil {
		return t, err
	}
	if err := ownedCategory(ctx, tx, t.Owner, t.CategoryID); err != nil {
		return t, err
	}
	t, err := s.apply(ctx, tx, t)
	if err != nil {
		return t, err
	}
	return t, tx.InsertTransaction(ctx, t)
}

func (s *TransactionService) ownedAccount(ctx context.Context, tx ledger.Tx, owner, id string) (core.Account, error) {
	a, err := tx.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if a.Owner != owner {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	if !a.Active {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrInactiveAccount, id)
	}
	return a, nil
}

// ownedCategory checks that a non-empty category id names one of owner's
// categories.
func ownedCategory(ctx context.Context, r ledger.Reader, owner, id string) error {
	if id == "" {
		return nil
	}
	c, err := r.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.Owner != owner {
		return fmt.Errorf("%w: %s", core.ErrCategoryNotFound, id)
	}
	return nil
}

// apply adds the effect of t to its account and to the allocation matched
// at t's date, recording that allocation on the returned transaction.
func (s *TransactionService) apply(ctx context.Context, tx ledger.Tx, t core.Transaction) (core.Transaction, error) {
	t.AllocationID = ""
	if err := tx.AdjustBalance(ctx, t.AccountID, t.Effect()); err != nil {
		return t, err
	}
	if !t.AffectsBudget() {
		return t, nil
	}
	_, a, ok, err := tx.FindAllocation(ctx, t.Owner, t.CategoryID, t.Date)
	if err != nil || !ok {
		return t, err
	}
	if err := tx.AdjustAllocationSpent(ctx, a.ID, t.Amount); err != nil {
		return t, err
	}
	t.AllocationID = a.ID
	return t, nil
}

// unapply removes the effect of t from its account and from the allocation
// it was counted against, whatever budgets exist now.
func (s *TransactionService) unapply(ctx context.Context, tx ledger.Tx, t core.Transaction) error {
	if err := tx.AdjustBalance(ctx, t.AccountID, t.Effect().Neg()); err != nil {
		return err
	}
	if t.AllocationID == "" {
		return nil
	}
	return tx.AdjustAllocationSpent(ctx, t.AllocationID, t.Amount.Neg())
}

// requestCheck queues a threshold check for t. Failures are logged only.
func (s *TransactionService) requestCheck(ctx context.Context, t core.Transaction) {
	if s.queue == nil || !t.AffectsBudget() {
		return
	}
	check := ThresholdCheck{Owner: t.Owner, CategoryID: t.CategoryID, Date: t.Date}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), check); err != nil {
		s.logger.WarnContext(ctx, "Failed to queue threshold check",
			log.FieldTxID, t.ID,
			log.FieldCategoryID, t.CategoryID,
			log.FieldError, err)
	}
}
