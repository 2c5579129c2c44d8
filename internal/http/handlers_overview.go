package http

import (
	"net/http"

	"ledger/internal/log"
)

// handleOverview answers GET /api/overview?year=&month=. Missing
// parameters default to the current month.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	now := s.now().UTC()
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	ov, err := s.svc.Overview.Month(r.Context(), owner, year, month)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
