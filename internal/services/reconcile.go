package services

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Reconciliation compares an account's stored balance with the balance
// recomputed from its transactions.
type Reconciliation struct {
	AccountID  string     `json:"accountId"`
	Initial    core.Money `json:"initialBalance"`
	Stored     core.Money `json:"storedBalance"`
	Computed   core.Money `json:"computedBalance"`
	Drift      core.Money `json:"drift"`
	Consistent bool       `json:"consistent"`
}

// Reconciler is the audit path. It scans transactions and never writes.
type Reconciler struct {
	store ledger.Reader
}

func NewReconciler(store ledger.Reader) *Reconciler {
	return &Reconciler{store: store}
}

func (r *Reconciler) Reconcile(ctx context.Context, accountID string) (Reconciliation, error) {
	a, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum, err := r.store.SumTransactions(ctx, accountID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("sum transactions for %s: %w", accountID, err)
	}

	computed := a.InitialBalance.Add(sum)
	drift := a.CurrentBalance.Sub(computed)
	return Reconciliation{
		AccountID:  a.ID,
		Initial:    a.InitialBalance,
		Stored:     a.CurrentBalance,
		Computed:   computed,
		Drift:      drift,
		Consistent: drift.IsZero(),
	}, nil
}

// ReconcileOwner reconciles every account of owner.
func (r *Reconciler) ReconcileOwner(ctx context.Context, owner string) ([]Reconciliation, error) {
	accounts, err := r.store.ListAccounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Reconciliation, 0, len(accounts))
	for _, a := range accounts {
		rec, err := r.Reconcile(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
