package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

type alertsResponse struct {
	Alerts []core.Alert `json:"alerts"`
	Unread int          `json:"unread"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	alerts, err := s.svc.Alerts.List(r.Context(), owner, limit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	unread, err := s.svc.Alerts.UnreadCount(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if alerts == nil {
		alerts = []core.Alert{}
	}
	writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts, Unread: unread})
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	if err := s.svc.Alerts.MarkRead(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := withOwner(w, r)
	if !ok {
		return
	}
	n, err := s.svc.Alerts.MarkAllRead(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
