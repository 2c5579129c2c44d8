package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/services"
)

const replayedHeader = "Idempotent-Replayed"

// handleCreateTransaction posts a transaction. With an Idempotency-Key
// header a retried request is answered from the first response instead
// of being posted again.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	fp := cache.Fingerprint(body)
	if key != "" {
		stored, outcome := s.idempotency.Reserve(owner, key, fp)
		switch outcome {
		case cache.Replay:
			NewJSONResponse().Status(stored.Status).Header(replayedHeader, "true").
				Body(json.RawMessage(stored.Body)).Write(w)
			return
		case cache.InFlight:
			ErrorResponse(http.StatusConflict, "a request with this idempotency key is in progress").Write(w)
			return
		case cache.Mismatch:
			ErrorResponse(http.StatusUnprocessableEntity, "idempotency key was used with a different request body").Write(w)
			return
		}
	}

	t, err := s.createTransaction(r, owner, body)
	if err != nil {
		if key != "" {
			s.idempotency.Release(owner, key)
		}
		writeError(w, r, log.OpCreate, err)
		return
	}

	resp, err := json.Marshal(t)
	if err != nil {
		if key != "" {
			s.idempotency.Release(owner, key)
		}
		writeError(w, r, log.OpCreate, fmt.Errorf("encode transaction: %w", err))
		return
	}
	if key != "" {
		s.idempotency.Complete(owner, key, fp, http.StatusCreated, resp)
	}
	NewJSONResponse().Status(http.StatusCreated).Body(json.RawMessage(resp)).Write(w)
}

func (s *Server) createTransaction(r *http.Request, owner string, body []byte) (core.Transaction, error) {
	var in services.CreateTransactionInput
	if err := decodeBody(body, &in); err != nil {
		return core.Transaction{}, err
	}
	in.Owner = owner
	return s.svc.Transactions.Create(r.Context(), in)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	f, err := transactionFilter(r, owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	txns, err := s.svc.Transactions.List(r.Context(), f)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func transactionFilter(r *http.Request, owner string) (ledger.TransactionFilter, error) {
	f := ledger.TransactionFilter{
		Owner:     owner,
		AccountID: r.URL.Query().Get("accountId"),
	}
	var err error
	if f.From, err = queryDate(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		return f, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: to must not be before from", core.ErrValidation)
	}
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		return f, err
	}
	if f.IncludeDeleted, err = queryBool(r, "includeDeleted"); err != nil {
		return f, err
	}
	return f, nil
}

// ownedTransaction loads id and hides transactions of other owners
// behind a not-found error.
func (s *Server) ownedTransaction(r *http.Request, owner, id string) (core.Transaction, error) {
	t, err := s.svc.Transactions.Get(r.Context(), id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Owner != owner {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	return t, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	t, err := s.ownedTransaction(r, owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	var patch services.TransactionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	t, err := s.ownedTransaction(r, owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	updated, err := s.svc.Transactions.Update(r.Context(), t.ID, patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	t, err := s.ownedTransaction(r, owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	if err := s.svc.Transactions.Delete(r.Context(), t.ID); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
