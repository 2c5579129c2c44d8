package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// Categories

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	var in services.CreateCategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in.Owner = owner

	c, err := s.svc.Catalog.CreateCategory(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	tree, err := s.svc.Catalog.ListCategories(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if tree == nil {
		tree = []core.Category{}
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleSeedCategories(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	n, err := s.svc.Catalog.SeedDefaultCategories(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": n})
}

// Accounts

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	var in services.CreateAccountInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in.Owner = owner

	a, err := s.svc.Catalog.CreateAccount(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	accounts, err := s.svc.Catalog.ListAccounts(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	a, err := s.svc.Catalog.GetAccount(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	if err := s.svc.Catalog.DeactivateAccount(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcileAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	a, err := s.svc.Catalog.GetAccount(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpReconcile, err)
		return
	}
	rec, err := s.svc.Reconciler.Reconcile(r.Context(), a.ID)
	if err != nil {
		writeError(w, r, log.OpReconcile, err)
		return
	}
	if !rec.Consistent {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Balance drift detected",
			log.FieldAccountID, rec.AccountID,
			"stored", rec.Stored.String(),
			"computed", rec.Computed.String())
	}
	writeJSON(w, http.StatusOK, rec)
}

// Budgets

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	var in services.CreateBudgetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in.Owner = owner

	b, err := s.svc.Catalog.CreateBudget(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	budgets, err := s.svc.Catalog.ListBudgets(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	b, err := s.svc.Catalog.GetBudget(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeactivateBudget(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	if err := s.svc.Catalog.DeactivateBudget(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recurring definitions

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	var in services.CreateRecurringInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in.Owner = owner

	def, err := s.svc.Catalog.CreateRecurring(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	defs, err := s.svc.Catalog.ListRecurring(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleDeactivateRecurring(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	if err := s.svc.Catalog.DeactivateRecurring(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type processSummary struct {
	Date    string `json:"date"`
	Posted  int    `json:"posted"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// handleProcessRecurring runs one scheduler pass on demand. The pass
// covers every owner, so only counts are returned.
func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request) {
	if _, ok := withOwner(w, r); !ok {
		return
	}
	now := s.now()
	results, err := s.svc.Recurring.ProcessDue(r.Context(), now)
	if err != nil {
		writeError(w, r, log.OpPost, err)
		return
	}

	summary := processSummary{Date: now.UTC().Format("2006-01-02")}
	for _, res := range results {
		switch res.Status {
		case services.RecurringSuccess:
			summary.Posted++
		case services.RecurringSkipped:
			summary.Skipped++
		case services.RecurringError:
			summary.Failed++
		}
	}
	writeJSON(w, http.StatusOK, summary)
}
